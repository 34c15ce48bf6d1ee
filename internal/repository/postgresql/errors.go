package postgresql

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"parking_garage/internal/repository"
)

const (
	pgUniqueViolation      = "23505"
	pgExclusionViolation   = "23P01"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// mapError turns driver errors into the repository sentinels, keeping the
// original error in the chain.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation, pgExclusionViolation:
		return fmt.Errorf("%w: %s (%s)", repository.ErrConflict, pgErr.ConstraintName, pgErr.Message)
	case pgForeignKeyViolation:
		return fmt.Errorf("%w: %s references a missing row", repository.ErrNotFound, pgErr.ConstraintName)
	case pgSerializationFailure, pgDeadlockDetected:
		return fmt.Errorf("%w: %s", repository.ErrRetryable, pgErr.Message)
	}
	return err
}
