// Package errdefs defines the error taxonomy shared by the designer core
// and its mapping onto HTTP status codes.
package errdefs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// SchemaNotFoundError is returned when a table is missing or not active
type SchemaNotFoundError struct {
	Table  string
	Reason string
}

func (e *SchemaNotFoundError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("table %q not found: %s", e.Table, e.Reason)
	}
	return fmt.Sprintf("table %q not found", e.Table)
}

// UnsupportedTypeError is returned for a field data type the core cannot map
type UnsupportedTypeError struct {
	Field    string
	DataType string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported data type %q for field %q", e.DataType, e.Field)
}

// UnsupportedOperationError is returned when an operation cannot be performed,
// for example a rollback whose original definition is unknown
type UnsupportedOperationError struct {
	Operation string
	Reason    string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported operation %s: %s", e.Operation, e.Reason)
}

// MalformedIdentifierError rejects a table, column or constraint name before
// any SQL is produced
type MalformedIdentifierError struct {
	Kind  string
	Value string
}

func (e *MalformedIdentifierError) Error() string {
	return fmt.Sprintf("malformed %s identifier %q", e.Kind, e.Value)
}

// InvalidSchemaError reports a table definition that breaks a schema invariant
type InvalidSchemaError struct {
	Table  string
	Reason string
}

func (e *InvalidSchemaError) Error() string {
	return fmt.Sprintf("invalid schema for table %q: %s", e.Table, e.Reason)
}

// SourceUnavailableError wraps a failed or timed out schema fetch. It is
// recoverable: callers may retry.
type SourceUnavailableError struct {
	Op  string
	Err error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("schema source unavailable during %s: %v", e.Op, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// Temporary marks the error as retryable
func (e *SourceUnavailableError) Temporary() bool { return true }

// FieldError is a single field-level validation failure
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates every field error of a request
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
}

// HTTPStatus maps an error from the taxonomy onto a response status
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var (
		notFound    *SchemaNotFoundError
		validation  ValidationErrors
		unsupported *UnsupportedOperationError
		badType     *UnsupportedTypeError
		malformed   *MalformedIdentifierError
		invalid     *InvalidSchemaError
		constraint  *ConstraintViolationError
		unavailable *SourceUnavailableError
	)

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	case errors.As(err, &constraint):
		return constraint.HTTPStatus()
	case errors.As(err, &malformed), errors.As(err, &badType), errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &unsupported):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
