package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"restaurant-pos/internal/poserr"
)

// SQLSTATE codes the engine reacts to
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeCheckViolation       = "23514"
)

// mapError turns a driver error into a poserr. Errors that already carry a
// kind pass through untouched.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if poserr.KindOf(err) != "" {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return poserr.Conflict("%s: duplicate %s", op, pgErr.ConstraintName)
		case codeSerializationFailure, codeDeadlockDetected:
			return poserr.Conflict("%s: concurrent update, retry", op)
		case codeCheckViolation:
			return poserr.Validation(pgErr.ColumnName, "%s: %s", op, pgErr.Message)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return poserr.Unavailable(op+": timed out", err)
	}
	return poserr.Unavailable(op, err)
}
