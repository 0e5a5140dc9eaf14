package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes the stores translate into domain errors.
const (
	CodeUniqueViolation     = "23505"
	CodeCheckViolation      = "23514"
	CodeNotNullViolation    = "23502"
	CodeForeignKeyViolation = "23503"
)

// IsUniqueViolation reports whether err carries a postgres unique violation.
func IsUniqueViolation(err error) bool {
	return hasCode(err, CodeUniqueViolation)
}

// IsConstraintViolation reports whether err is any integrity constraint
// failure raised by postgres.
func IsConstraintViolation(err error) bool {
	return hasCode(err, CodeUniqueViolation) ||
		hasCode(err, CodeCheckViolation) ||
		hasCode(err, CodeNotNullViolation) ||
		hasCode(err, CodeForeignKeyViolation)
}

// IsNoRows reports whether err is pgx.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
