// Package apperr defines the error taxonomy shared by the persistence and
// sync layers.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is returned when a guarded remote call misses its deadline.
	// The call may still complete remotely; its result is discarded.
	ErrTimeout = errors.New("remote call timed out")

	// ErrInvalidIdentifier is returned when an id does not have the shape the
	// operation requires.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrRemoteNotConfigured is returned by remote-only operations in local mode.
	ErrRemoteNotConfigured = errors.New("remote backend not configured")

	// ErrSyncInFlight is returned when a sync pass for the same user is running.
	ErrSyncInFlight = errors.New("sync already in progress for user")
)

// RemoteCode classifies backend failures.
type RemoteCode string

const (
	CodeDuplicateKey RemoteCode = "DUPLICATE_KEY"
	CodeNotFound     RemoteCode = "NOT_FOUND"
	CodeUnavailable  RemoteCode = "UNAVAILABLE"
	CodeInternal     RemoteCode = "INTERNAL"
)

// RemoteError is a backend rejection.
type RemoteError struct {
	Op   string
	Code RemoteCode
	Err  error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote %s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("remote %s: %s", e.Op, e.Code)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Remote builds a RemoteError.
func Remote(op string, code RemoteCode, err error) error {
	return &RemoteError{Op: op, Code: code, Err: err}
}

// IsDuplicateKey reports whether err is a duplicate-key rejection.
func IsDuplicateKey(err error) bool {
	return hasCode(err, CodeDuplicateKey)
}

// IsNotFound reports whether err is a remote not-found.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsRetryable reports whether the caller should try again later rather than
// treat the operation as failed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || hasCode(err, CodeUnavailable)
}

func hasCode(err error, code RemoteCode) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Code == code
}

// InvalidID wraps ErrInvalidIdentifier with the offending value.
func InvalidID(id string) error {
	return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
}

// RateLimitedError is returned when the template quota for the current
// window is spent.
type RateLimitedError struct {
	ResetAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.ResetAt.UTC().Format(time.RFC3339))
}

// SyncCounts summarizes one migration pass.
type SyncCounts struct {
	ThoughtsMigrated  int `json:"thoughtsMigrated"`
	ThoughtsFailed    int `json:"thoughtsFailed"`
	FavoritesMigrated int `json:"favoritesMigrated"`
	FavoritesFailed   int `json:"favoritesFailed"`
	FavoritesSkipped  int `json:"favoritesSkipped"`
}

// PartialSyncError reports a pass in which some records did not migrate.
// It is informational; unmigrated records stay local for the next pass.
type PartialSyncError struct {
	Counts SyncCounts
}

func (e *PartialSyncError) Error() string {
	c := e.Counts
	return fmt.Sprintf("partial sync: thoughts %d migrated/%d failed, favorites %d migrated/%d failed/%d skipped",
		c.ThoughtsMigrated, c.ThoughtsFailed, c.FavoritesMigrated, c.FavoritesFailed, c.FavoritesSkipped)
}
