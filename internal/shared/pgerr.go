package shared

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgExclusionViolation   = "23P01"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// MapPgError translates constraint and serialization failures into the ledger taxonomy.
func MapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return Conflict("db.unique_violation", "duplicate "+pgErr.ConstraintName).Wrap(err)
	case pgExclusionViolation:
		return Conflict("db.exclusion_violation", "overlapping row for "+pgErr.ConstraintName).Wrap(err)
	case pgSerializationFailure, pgDeadlockDetected:
		return Conflict("db.retry", "concurrent update, retry").Wrap(err)
	case pgForeignKeyViolation:
		return NotFound("db.reference_missing", "referenced row missing for "+pgErr.ConstraintName).Wrap(err)
	}
	return err
}
