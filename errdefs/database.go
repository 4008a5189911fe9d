package errdefs

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ConstraintKind classifies a database constraint failure
type ConstraintKind string

const (
	ConstraintUnique          ConstraintKind = "unique"
	ConstraintForeignKey      ConstraintKind = "foreign_key"
	ConstraintNotNull         ConstraintKind = "not_null"
	ConstraintCheck           ConstraintKind = "check"
	ConstraintUndefinedTable  ConstraintKind = "undefined_table"
	ConstraintUndefinedColumn ConstraintKind = "undefined_column"
)

// SQLSTATE codes the core knows how to classify
var sqlStateKinds = map[string]ConstraintKind{
	"23505": ConstraintUnique,
	"23503": ConstraintForeignKey,
	"23502": ConstraintNotNull,
	"23514": ConstraintCheck,
	"42P01": ConstraintUndefinedTable,
	"42703": ConstraintUndefinedColumn,
}

// ConstraintViolationError is a database error translated into the taxonomy
type ConstraintViolationError struct {
	Kind       ConstraintKind
	Code       string
	Table      string
	Column     string
	Constraint string
	Detail     string
	Err        error
}

func (e *ConstraintViolationError) Error() string {
	msg := fmt.Sprintf("%s violation", e.Kind)
	if e.Constraint != "" {
		msg += fmt.Sprintf(" on constraint %q", e.Constraint)
	}
	if e.Table != "" {
		msg += fmt.Sprintf(" (table %s", e.Table)
		if e.Column != "" {
			msg += fmt.Sprintf(", column %s", e.Column)
		}
		msg += ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ConstraintViolationError) Unwrap() error { return e.Err }

// HTTPStatus returns the status for the violation kind
func (e *ConstraintViolationError) HTTPStatus() int {
	switch e.Kind {
	case ConstraintUnique, ConstraintForeignKey:
		return http.StatusConflict
	case ConstraintNotNull, ConstraintCheck:
		return http.StatusUnprocessableEntity
	case ConstraintUndefinedTable:
		return http.StatusNotFound
	case ConstraintUndefinedColumn:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// FromDatabase translates driver errors from lib/pq or pgx into a
// ConstraintViolationError. Errors with an unknown SQLSTATE are returned unchanged.
func FromDatabase(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		kind, ok := sqlStateKinds[string(pqErr.Code)]
		if !ok {
			return err
		}
		return &ConstraintViolationError{
			Kind:       kind,
			Code:       string(pqErr.Code),
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Constraint: pqErr.Constraint,
			Detail:     pqErr.Detail,
			Err:        err,
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind, ok := sqlStateKinds[pgErr.Code]
		if !ok {
			return err
		}
		return &ConstraintViolationError{
			Kind:       kind,
			Code:       pgErr.Code,
			Table:      pgErr.TableName,
			Column:     pgErr.ColumnName,
			Constraint: pgErr.ConstraintName,
			Detail:     pgErr.Detail,
			Err:        err,
		}
	}

	return err
}
