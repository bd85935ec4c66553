package postgres

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xraph/fieldops"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isDomainError reports whether err is a domain rejection that must pass
// through to the caller unwrapped rather than being treated as a
// transient persistence failure.
func isDomainError(err error) bool {
	return errors.Is(err, fieldops.ErrJobNotFound) ||
		errors.Is(err, fieldops.ErrTechnicianNotFound) ||
		errors.Is(err, fieldops.ErrTechnicianConflict)
}
