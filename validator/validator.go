// Package validator checks generated CRUD requests against the designer
// schema of their table.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alc6/tabledesigner/errdefs"
	"github.com/alc6/tabledesigner/registry"
	"github.com/alc6/tabledesigner/schema"
)

// Operation is the CRUD action a request performs
type Operation string

const (
	OpList   Operation = "list"
	OpGet    Operation = "get"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Error codes
const (
	CodeRequired           = "REQUIRED"
	CodeTypeMismatch       = "TYPE_MISMATCH"
	CodeMinLength          = "MIN_LENGTH"
	CodeMaxLength          = "MAX_LENGTH"
	CodePatternMismatch    = "PATTERN_MISMATCH"
	CodeMinValue           = "MIN_VALUE"
	CodeMaxValue           = "MAX_VALUE"
	CodePrecisionExceeded  = "PRECISION_EXCEEDED"
	CodeInvalidDate        = "INVALID_DATE"
	CodeInvalidUUID        = "INVALID_UUID"
	CodeInvalidTableName   = "INVALID_TABLE_NAME"
	CodeInvalidPage        = "INVALID_PAGE"
	CodeInvalidLimit       = "INVALID_LIMIT"
	CodeInvalidSortField   = "INVALID_SORT_FIELD"
	CodeInvalidOrder       = "INVALID_ORDER"
	CodeUnknownFilterField = "UNKNOWN_FILTER_FIELD"
	CodeInvalidOperator    = "INVALID_OPERATOR"
	CodeInvalidFilterValue = "INVALID_FILTER_VALUE"
)

// Warning codes
const (
	WarnLongSearchTerm        = "LONG_SEARCH_TERM"
	WarnLargeText             = "LARGE_TEXT"
	WarnPrecisionLoss         = "PRECISION_LOSS"
	WarnFarFutureDate         = "FAR_FUTURE_DATE"
	WarnFarPastDate           = "FAR_PAST_DATE"
	WarnImmutableFieldIgnored = "IMMUTABLE_FIELD_IGNORED"
)

const (
	MaxLimit          = 100
	MaxSearchLength   = 1000
	LargeTextLength   = 10000
	DateWarningWindow = 100
)

// Operators accepted in <field>__<operator> filters
var Operators = []string{"eq", "ne", "gt", "gte", "lt", "lte", "like", "ilike", "in", "not_in"}

var reservedQuery = map[string]struct{}{
	"page": {}, "limit": {}, "sort": {}, "order": {}, "search": {},
}

// Request is one inbound CRUD call
type Request struct {
	Table     string
	Operation Operation
	Params    map[string]string
	Query     map[string]any
	Body      map[string]any
}

// Warning is informational and never fails a request
type Warning struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result aggregates every error and warning of a request
type Result struct {
	Valid    bool                     `json:"valid"`
	Errors   errdefs.ValidationErrors `json:"errors,omitempty"`
	Warnings []Warning                `json:"warnings,omitempty"`
	// Data holds the body values after coercion, keyed by field name
	Data map[string]any `json:"-"`
}

// Err returns the aggregated errors, or nil when the request is valid
func (r *Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors
}

func (r *Result) fail(field, code, msg string, value any) {
	r.Errors = append(r.Errors, errdefs.FieldError{Field: field, Code: code, Message: msg, Value: value})
}

func (r *Result) warn(field, code, msg string) {
	r.Warnings = append(r.Warnings, Warning{Field: field, Code: code, Message: msg})
}

// Tables resolves the schema a request is validated against
type Tables interface {
	ValidateTableExists(ctx context.Context, name string) (registry.TableCheck, error)
}

// Validator runs params, query and body validation in that order
type Validator struct {
	tables Tables
	log    *slog.Logger
	now    func() time.Time
}

// New creates a validator. A nil logger uses slog.Default.
func New(tables Tables, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{tables: tables, log: logger, now: time.Now}
}

// WithClock overrides the clock used for date warnings
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Validate checks req. Field problems are reported in the Result; a missing
// or inactive table and source outages are returned as errors.
func (v *Validator) Validate(ctx context.Context, req Request) (*Result, error) {
	res := &Result{}

	if !schema.ValidIdentifier(req.Table) {
		res.fail("table", CodeInvalidTableName, "table name must match ^[a-z][a-z0-9_]*$", req.Table)
		return res, nil
	}

	check, err := v.tables.ValidateTableExists(ctx, req.Table)
	if err != nil {
		return nil, err
	}
	if !check.Valid {
		reason := "table does not exist"
		if check.Table != nil {
			reason = fmt.Sprintf("table is %s", check.Table.Status)
		}
		return nil, &errdefs.SchemaNotFoundError{Table: req.Table, Reason: reason}
	}

	return v.ValidateAgainst(check.Table, req), nil
}

// ValidateAgainst runs the three stages against an already resolved table
func (v *Validator) ValidateAgainst(table *schema.TableSchema, req Request) *Result {
	res := &Result{}
	v.validateParams(res, req)
	if req.Operation == OpList {
		v.validateQuery(res, table, req.Query)
	}
	if req.Operation == OpCreate || req.Operation == OpUpdate {
		v.validateBody(res, table, req)
	}
	res.Valid = len(res.Errors) == 0

	v.log.Debug("request validated",
		"table", table.TableName,
		"operation", req.Operation,
		"errors", len(res.Errors),
		"warnings", len(res.Warnings))
	return res
}

func (v *Validator) validateParams(res *Result, req Request) {
	switch req.Operation {
	case OpGet, OpUpdate, OpDelete:
	default:
		return
	}
	id, ok := req.Params["id"]
	if !ok || id == "" {
		res.fail("id", CodeRequired, "id is required", nil)
		return
	}
	if _, err := uuid.Parse(id); err != nil {
		res.fail("id", CodeInvalidUUID, "id must be a UUID", id)
	}
}

func (v *Validator) validateQuery(res *Result, table *schema.TableSchema, query map[string]any) {
	if raw, ok := query["page"]; ok {
		if n, ok := asInt(raw); !ok || n < 1 {
			res.fail("page", CodeInvalidPage, "page must be an integer >= 1", raw)
		}
	}
	if raw, ok := query["limit"]; ok {
		if n, ok := asInt(raw); !ok || n < 1 || n > MaxLimit {
			res.fail("limit", CodeInvalidLimit, fmt.Sprintf("limit must be an integer between 1 and %d", MaxLimit), raw)
		}
	}
	if raw, ok := query["sort"]; ok {
		name := fmt.Sprint(raw)
		if _, exists := table.Field(name); !exists {
			res.fail("sort", CodeInvalidSortField, fmt.Sprintf("unknown sort field %q", name), raw)
		}
	}
	if raw, ok := query["order"]; ok {
		switch strings.ToLower(fmt.Sprint(raw)) {
		case "asc", "desc":
		default:
			res.fail("order", CodeInvalidOrder, "order must be asc or desc", raw)
		}
	}
	if raw, ok := query["search"]; ok {
		if s := fmt.Sprint(raw); len([]rune(s)) > MaxSearchLength {
			res.warn("search", WarnLongSearchTerm, fmt.Sprintf("search terms over %d characters are slow", MaxSearchLength))
		}
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, reserved := reservedQuery[key]; reserved {
			continue
		}
		idx := strings.LastIndex(key, "__")
		if idx <= 0 {
			v.log.Debug("ignoring unknown query parameter", "table", table.TableName, "param", key)
			continue
		}
		v.validateFilter(res, table, key, key[:idx], key[idx+2:], query[key])
	}
}

func (v *Validator) validateFilter(res *Result, table *schema.TableSchema, key, fieldName, op string, value any) {
	field, ok := table.Field(fieldName)
	if !ok {
		res.fail(key, CodeUnknownFilterField, fmt.Sprintf("unknown filter field %q", fieldName), value)
		return
	}

	switch op {
	case "in", "not_in":
		items, ok := asList(value)
		if !ok || len(items) == 0 {
			res.fail(key, CodeInvalidFilterValue, op+" requires an array or a comma-separated list", value)
			return
		}
		for _, item := range items {
			if !v.filterValueOK(field, item) {
				res.fail(key, CodeInvalidFilterValue, fmt.Sprintf("%v is not a valid %s value", item, field.DataType), value)
				return
			}
		}
	case "like", "ilike":
		if _, ok := value.(string); !ok || field.DataType != schema.TypeText {
			res.fail(key, CodeInvalidFilterValue, op+" requires a string value on a text field", value)
		}
	case "eq", "ne", "gt", "gte", "lt", "lte":
		if !v.filterValueOK(field, value) {
			res.fail(key, CodeInvalidFilterValue, fmt.Sprintf("%v is not a valid %s value", value, field.DataType), value)
		}
	default:
		res.fail(key, CodeInvalidOperator, fmt.Sprintf("unknown operator %q", op), value)
	}
}

// filterValueOK applies only the type checks of a field, not its bounds
func (v *Validator) filterValueOK(field schema.FieldSchema, value any) bool {
	rule, ok := typeRules[field.DataType]
	if !ok {
		return false
	}
	out := rule(v.checkContext(), schema.FieldSchema{FieldName: field.FieldName, DataType: field.DataType}, value)
	return len(out.errors) == 0
}

func (v *Validator) validateBody(res *Result, table *schema.TableSchema, req Request) {
	body := req.Body
	res.Data = make(map[string]any, len(body))
	known := make(map[string]struct{}, len(table.Fields))

	for _, f := range table.Fields {
		known[f.FieldName] = struct{}{}
		value, present := body[f.FieldName]

		if req.Operation == OpCreate && f.IsPrimaryKey {
			continue
		}
		if req.Operation == OpUpdate && f.Immutable {
			if present {
				res.warn(f.FieldName, WarnImmutableFieldIgnored, "immutable fields are ignored on update")
			}
			continue
		}

		if !present || value == nil {
			if req.Operation == OpCreate && f.IsRequired && f.DefaultValue == nil {
				res.fail(f.FieldName, CodeRequired, f.FieldName+" is required", nil)
			} else if present && f.IsRequired {
				res.fail(f.FieldName, CodeRequired, f.FieldName+" cannot be null", nil)
			}
			continue
		}

		rule, ok := typeRules[f.DataType]
		if !ok {
			res.fail(f.FieldName, CodeTypeMismatch, fmt.Sprintf("unsupported data type %q", f.DataType), value)
			continue
		}
		out := rule(v.checkContext(), f, value)
		res.Errors = append(res.Errors, out.errors...)
		res.Warnings = append(res.Warnings, out.warnings...)
		if len(out.errors) == 0 {
			res.Data[f.FieldName] = out.value
		}
	}

	for key := range body {
		if _, ok := known[key]; !ok {
			v.log.Debug("ignoring unknown body field", "table", table.TableName, "field", key)
		}
	}
}

func (v *Validator) checkContext() checkContext {
	return checkContext{now: v.now()}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

// asList accepts JSON arrays and comma-separated strings
func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case string:
		if strings.TrimSpace(l) == "" {
			return nil, false
		}
		parts := strings.Split(l, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.TrimSpace(p))
		}
		return out, true
	default:
		return nil, false
	}
}
