package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rafflio/platform/internal/domain"
)

// mapPgError turns constraint violations into AppErrors and wraps the rest.
func mapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return domain.ErrConflict(fmt.Sprintf("%s: duplicate %s", op, constraintSubject(pgErr)))
		case pgerrcode.ForeignKeyViolation:
			return domain.ErrValidation(fmt.Sprintf("%s: referenced record does not exist", op))
		case pgerrcode.CheckViolation:
			return domain.ErrValidation(fmt.Sprintf("%s: %s violated", op, pgErr.ConstraintName))
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func constraintSubject(e *pgconn.PgError) string {
	if e.ConstraintName != "" {
		return e.ConstraintName
	}
	return "value"
}
