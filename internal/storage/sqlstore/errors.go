package sqlstore

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"restaurant-pos/internal/poserr"
)

// MySQL server error numbers
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockDeadlock    = 1213
	mysqlLockWaitTimeout = 1205
	mysqlCheckConstraint = 3819
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

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return poserr.Conflict("%s: duplicate key", op)
		case sqlite3.SQLITE_CONSTRAINT_CHECK:
			return poserr.Validation("", "%s: %s", op, liteErr.Error())
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return poserr.Unavailable(op+": database is busy", err)
		}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateEntry:
			return poserr.Conflict("%s: %s", op, myErr.Message)
		case mysqlLockDeadlock, mysqlLockWaitTimeout:
			return poserr.Conflict("%s: concurrent update, retry", op)
		case mysqlCheckConstraint:
			return poserr.Validation("", "%s: %s", op, myErr.Message)
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return poserr.Unavailable(op+": timed out", err)
	}
	return poserr.Unavailable(op, err)
}
