// internal/repository/postgres/errors.go
package postgres

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"tradebybarter-ledger/internal/util"
)

const uniqueViolation = "23505"

// mapError converts driver errors into the util taxonomy. notFound is returned
// for sql.ErrNoRows; anything unrecognised is wrapped as a storage failure.
func mapError(op string, err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return util.StorageError(op, err)
}

// isUniqueViolation reports whether err is a unique constraint violation, optionally on a named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
