package errdefs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not_found", &SchemaNotFoundError{Table: "users"}, http.StatusNotFound},
		{"wrapped_not_found", fmt.Errorf("lookup: %w", &SchemaNotFoundError{Table: "users"}), http.StatusNotFound},
		{"validation", ValidationErrors{{Field: "email", Code: "REQUIRED"}}, http.StatusUnprocessableEntity},
		{"malformed", &MalformedIdentifierError{Kind: "table", Value: "Users"}, http.StatusBadRequest},
		{"unsupported_type", &UnsupportedTypeError{Field: "x", DataType: "json"}, http.StatusBadRequest},
		{"unsupported_operation", &UnsupportedOperationError{Operation: "drop_column"}, http.StatusInternalServerError},
		{"unavailable", &SourceUnavailableError{Op: "fetch", Err: context.DeadlineExceeded}, http.StatusServiceUnavailable},
		{"unique", &ConstraintViolationError{Kind: ConstraintUnique}, http.StatusConflict},
		{"not_null", &ConstraintViolationError{Kind: ConstraintNotNull}, http.StatusUnprocessableEntity},
		{"undefined_table", &ConstraintViolationError{Kind: ConstraintUndefinedTable}, http.StatusNotFound},
		{"undefined_column", &ConstraintViolationError{Kind: ConstraintUndefinedColumn}, http.StatusBadRequest},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestFromDatabase(t *testing.T) {
	t.Run("lib_pq_unique", func(t *testing.T) {
		err := FromDatabase(&pq.Error{Code: "23505", Table: "users", Constraint: "users_email_key"})

		var cv *ConstraintViolationError
		require.True(t, errors.As(err, &cv))
		assert.Equal(t, ConstraintUnique, cv.Kind)
		assert.Equal(t, "users", cv.Table)
		assert.Equal(t, http.StatusConflict, HTTPStatus(err))
	})

	t.Run("pgx_foreign_key", func(t *testing.T) {
		err := FromDatabase(fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23503", TableName: "posts"}))

		var cv *ConstraintViolationError
		require.True(t, errors.As(err, &cv))
		assert.Equal(t, ConstraintForeignKey, cv.Kind)
		assert.Equal(t, http.StatusConflict, HTTPStatus(err))
	})

	t.Run("pgx_undefined_column", func(t *testing.T) {
		err := FromDatabase(&pgconn.PgError{Code: "42703", ColumnName: "nope"})
		assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
	})

	t.Run("unknown_code_passthrough", func(t *testing.T) {
		orig := &pq.Error{Code: "XX000"}
		assert.Same(t, orig, FromDatabase(orig))
	})

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, FromDatabase(nil))
	})
}

func TestValidationErrorsMessage(t *testing.T) {
	errs := ValidationErrors{
		{Field: "email", Code: "REQUIRED", Message: "email is required"},
		{Field: "age", Code: "MIN_VALUE", Message: "age must be at least 0"},
	}
	assert.Equal(t, "validation failed: email: email is required; age: age must be at least 0", errs.Error())
}
