package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/thoughtforge/thoughtsync/internal/apperr"
	"github.com/thoughtforge/thoughtsync/internal/persistence"
	"github.com/thoughtforge/thoughtsync/internal/syncer"
)

// Application error codes, outside the JSON-RPC reserved range.
const (
	ErrCodeTimeout          = -32001
	ErrCodeRemote           = -32002
	ErrCodeRateLimited      = -32003
	ErrCodeUnauthenticated  = -32004
	ErrCodeSyncInFlight     = -32005
	ErrCodeRemoteNotEnabled = -32006
)

// Error represents an API error
type Error struct {
	Code    int
	Message string
	Data    interface{}
}

// NewError creates a new API error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

var errAuthRequired = NewError(ErrCodeUnauthenticated, "Authentication required")

func invalidParams(err error) *Error {
	return &Error{Code: ErrInvalidParams, Message: "Invalid params", Data: err.Error()}
}

// classify maps a domain error onto a JSON-RPC error object.
func classify(err error) *JSONRPCError {
	var (
		apiErr   *Error
		limited  *apperr.RateLimitedError
		reorder  *persistence.ReorderError
		remote   *apperr.RemoteError
		invalids validator.ValidationErrors
	)

	switch {
	case errors.As(err, &apiErr):
		return &JSONRPCError{Code: apiErr.Code, Message: apiErr.Message, Data: apiErr.Data}
	case errors.As(err, &limited):
		return &JSONRPCError{
			Code:    ErrCodeRateLimited,
			Message: "Rate limit exceeded",
			Data:    gin.H{"resetTime": limited.ResetAt.UTC().Format(time.RFC3339)},
		}
	case errors.As(err, &reorder):
		inner := classify(reorder.Err)
		inner.Data = gin.H{
			"position":  reorder.Position,
			"thoughtId": reorder.ThoughtID,
			"cause":     reorder.Err.Error(),
		}
		return inner
	case errors.Is(err, apperr.ErrTimeout):
		return &JSONRPCError{Code: ErrCodeTimeout, Message: "Remote call timed out", Data: gin.H{"retryable": true}}
	case errors.Is(err, apperr.ErrInvalidIdentifier),
		errors.Is(err, persistence.ErrIncompleteOrder),
		errors.As(err, &invalids):
		return &JSONRPCError{Code: ErrInvalidParams, Message: "Invalid params", Data: err.Error()}
	case errors.Is(err, apperr.ErrSyncInFlight):
		return &JSONRPCError{Code: ErrCodeSyncInFlight, Message: "Sync already in progress"}
	case errors.Is(err, apperr.ErrRemoteNotConfigured), errors.Is(err, syncer.ErrNoUser):
		return &JSONRPCError{Code: ErrCodeRemoteNotEnabled, Message: "Remote backend not available", Data: err.Error()}
	case errors.As(err, &remote):
		return &JSONRPCError{
			Code:    ErrCodeRemote,
			Message: "Remote backend error",
			Data:    gin.H{"code": remote.Code, "retryable": apperr.IsRetryable(err)},
		}
	default:
		return &JSONRPCError{Code: ErrInternalError, Message: "Internal error"}
	}
}
