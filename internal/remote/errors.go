package remote

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/thoughtforge/thoughtsync/internal/apperr"
	"github.com/thoughtforge/thoughtsync/internal/ids"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// translate maps driver and ORM errors onto the apperr taxonomy.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}

	var re *apperr.RemoteError
	if errors.As(err, &re) || errors.Is(err, apperr.ErrInvalidIdentifier) {
		return err
	}

	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation:
		return apperr.Remote(op, apperr.CodeDuplicateKey, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Remote(op, apperr.CodeDuplicateKey, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.Remote(op, apperr.CodeNotFound, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperr.Remote(op, apperr.CodeUnavailable, err)
	default:
		return apperr.Remote(op, apperr.CodeInternal, err)
	}
}

func notFound(op string) error {
	return apperr.Remote(op, apperr.CodeNotFound, nil)
}

func invalidID(id ids.ID) error {
	return apperr.InvalidID(id.String())
}
