package validator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alc6/tabledesigner/errdefs"
	"github.com/alc6/tabledesigner/providers"
	"github.com/alc6/tabledesigner/registry"
	"github.com/alc6/tabledesigner/schema"
)

const validID = "3f2504e0-4f89-41d3-9a0c-0305e82c3301"

func usersTable() schema.TableSchema {
	return schema.TableSchema{
		TableName: "users",
		Fields: []schema.FieldSchema{
			{FieldName: "id", DataType: schema.TypeNumber, IsRequired: true, IsPrimaryKey: true},
			{FieldName: "email", DataType: schema.TypeText, IsRequired: true, Config: schema.FieldConfig{MaxLength: schema.Int(255)}},
			{FieldName: "created_at", DataType: schema.TypeDate, IsRequired: true, Immutable: true, DefaultValue: "NOW()"},
		},
	}
}

func productsTable() schema.TableSchema {
	return schema.TableSchema{
		TableName: "products",
		Fields: []schema.FieldSchema{
			{FieldName: "id", DataType: schema.TypeNumber, IsPrimaryKey: true},
			{FieldName: "code", DataType: schema.TypeText, Config: schema.FieldConfig{MinLength: schema.Int(2), MaxLength: schema.Int(5), Pattern: "^[A-Z]+$"}},
			{FieldName: "score", DataType: schema.TypeNumber, Config: schema.FieldConfig{MinValue: schema.Float(0), MaxValue: schema.Float(100)}},
			{FieldName: "price", DataType: schema.TypeNumber, Config: schema.FieldConfig{Precision: schema.Int(5), Scale: schema.Int(2)}},
			{FieldName: "released_at", DataType: schema.TypeDate},
			{FieldName: "in_stock", DataType: schema.TypeBoolean},
		},
	}
}

func newValidator(t *testing.T, tables ...schema.TableSchema) *Validator {
	t.Helper()
	archived := usersTable()
	archived.TableName = "legacy_users"
	archived.Status = schema.StatusArchived
	tables = append(tables, archived)

	source := providers.NewSnapshotSource(schema.Snapshot{ProjectID: "shop", Tables: tables})
	reg := registry.New(source, registry.Options{})
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	return New(reg, nil).WithClock(func() time.Time { return now })
}

func codes(errs errdefs.ValidationErrors) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Field+":"+e.Code)
	}
	return out
}

func TestCreateMissingEmailScenario(t *testing.T) {
	v := newValidator(t, usersTable())

	res, err := v.Validate(context.Background(), Request{Table: "users", Operation: OpCreate, Body: map[string]any{}})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "email", res.Errors[0].Field)
	assert.Equal(t, CodeRequired, res.Errors[0].Code)
	assert.Equal(t, 422, errdefs.HTTPStatus(res.Err()))
}

func TestCreateMissingEmailWithoutDefaults(t *testing.T) {
	users := usersTable()
	users.Fields[2].DefaultValue = nil
	v := newValidator(t, users)

	res, err := v.Validate(context.Background(), Request{
		Table:     "users",
		Operation: OpCreate,
		Body:      map[string]any{"created_at": "2024-01-01T00:00:00Z"},
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"email:" + CodeRequired}, codes(res.Errors))

	res, err = v.Validate(context.Background(), Request{Table: "users", Operation: OpCreate, Body: map[string]any{}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"email:" + CodeRequired, "created_at:" + CodeRequired}, codes(res.Errors))
}

func TestCreateWrongEmailTypeScenario(t *testing.T) {
	v := newValidator(t, usersTable())

	res, err := v.Validate(context.Background(), Request{Table: "users", Operation: OpCreate, Body: map[string]any{"email": 123.0}})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, []string{"email:" + CodeTypeMismatch}, codes(res.Errors))
}

func TestTextMaxLengthBoundary(t *testing.T) {
	v := newValidator(t, usersTable())
	ctx := context.Background()

	for _, n := range []int{1, 10, 255} {
		res, err := v.Validate(ctx, Request{Table: "users", Operation: OpCreate, Body: map[string]any{"email": strings.Repeat("a", n)}})
		require.NoError(t, err)
		assert.True(t, res.Valid, "length %d is valid", n)

		res, err = v.Validate(ctx, Request{Table: "users", Operation: OpCreate, Body: map[string]any{"email": strings.Repeat("a", n+1)}})
		require.NoError(t, err)
		if n+1 > 255 {
			assert.Equal(t, []string{"email:" + CodeMaxLength}, codes(res.Errors))
		}
	}
}

func TestNumberBounds(t *testing.T) {
	v := newValidator(t, productsTable())
	ctx := context.Background()

	tests := []struct {
		value any
		code  string
	}{
		{-1.0, CodeMinValue},
		{101.0, CodeMaxValue},
		{0.0, ""},
		{100.0, ""},
		{"50", ""},
		{"fifty", CodeTypeMismatch},
	}
	for _, tt := range tests {
		res, err := v.Validate(ctx, Request{Table: "products", Operation: OpCreate, Body: map[string]any{"score": tt.value}})
		require.NoError(t, err)
		if tt.code == "" {
			assert.True(t, res.Valid, "%v should pass", tt.value)
			continue
		}
		assert.Equal(t, []string{"score:" + tt.code}, codes(res.Errors), "%v", tt.value)
	}
}

func TestNumberPrecision(t *testing.T) {
	v := newValidator(t, productsTable())
	ctx := context.Background()

	res, err := v.Validate(ctx, Request{Table: "products", Operation: OpCreate, Body: map[string]any{"price": 12.345}})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarnPrecisionLoss, res.Warnings[0].Code)
	assert.True(t, decimal.RequireFromString("12.345").Equal(res.Data["price"].(decimal.Decimal)))

	res, err = v.Validate(ctx, Request{Table: "products", Operation: OpCreate, Body: map[string]any{"price": 1234.5}})
	require.NoError(t, err)
	assert.Equal(t, []string{"price:" + CodePrecisionExceeded}, codes(res.Errors))
}

func TestTextRules(t *testing.T) {
	v := newValidator(t, productsTable())
	ctx := context.Background()

	tests := []struct {
		value string
		want  []string
	}{
		{"AB", nil},
		{"A", []string{"code:" + CodeMinLength}},
		{"ABCDEF", []string{"code:" + CodeMaxLength}},
		{"ab", []string{"code:" + CodePatternMismatch}},
	}
	for _, tt := range tests {
		res, err := v.Validate(ctx, Request{Table: "products", Operation: OpCreate, Body: map[string]any{"code": tt.value}})
		require.NoError(t, err)
		if tt.want == nil {
			assert.True(t, res.Valid, tt.value)
			continue
		}
		assert.Equal(t, tt.want, codes(res.Errors), tt.value)
	}
}

func TestDateRules(t *testing.T) {
	v := newValidator(t, productsTable())
	ctx := context.Background()

	valid := []string{"2024-01-02T03:04:05Z", "2024-01-02T03:04:05.123Z", "now()", "CURRENT_DATE"}
	for _, s := range valid {
		res, err := v.Validate(ctx, Request{Table: "products", Operation: OpCreate, Body: map[string]any{"released_at": s}})
		require.NoError(t, err)
		assert.True(t, res.Valid, s)
	}

	for _, s := range []string{"2024-01-02", "2024-01-02T03:04:05+02:00", "2024-13-40T03:04:05Z"} {
		res, err := v.Validate(ctx, Request{Table: "products", Operation: OpCreate, Body: map[string]any{"released_at": s}})
		require.NoError(t, err)
		assert.Equal(t, []string{"released_at:" + CodeInvalidDate}, codes(res.Errors), s)
	}

	res, err := v.Validate(ctx, Request{Table: "products", Operation: OpCreate, Body: map[string]any{"released_at": "2200-01-01T00:00:00Z"}})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarnFarFutureDate, res.Warnings[0].Code)

	res, err = v.Validate(ctx, Request{Table: "products", Operation: OpCreate, Body: map[string]any{"released_at": "1850-01-01T00:00:00Z"}})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarnFarPastDate, res.Warnings[0].Code)
}

func TestBooleanRules(t *testing.T) {
	v := newValidator(t, productsTable())
	ctx := context.Background()

	for _, value := range []any{true, false, "true", "false", 0.0, 1.0, json.Number("0"), json.Number("1")} {
		res, err := v.Validate(ctx, Request{Table: "products", Operation: OpCreate, Body: map[string]any{"in_stock": value}})
		require.NoError(t, err)
		assert.True(t, res.Valid, "%v", value)
	}
	for _, value := range []any{"yes", 2.0, []any{}, json.Number("2"), json.Number("1.0")} {
		res, err := v.Validate(ctx, Request{Table: "products", Operation: OpCreate, Body: map[string]any{"in_stock": value}})
		require.NoError(t, err)
		assert.Equal(t, []string{"in_stock:" + CodeTypeMismatch}, codes(res.Errors), "%v", value)
	}
}

func TestUpdateSkipsImmutableAndRequired(t *testing.T) {
	v := newValidator(t, usersTable())

	res, err := v.Validate(context.Background(), Request{
		Table:     "users",
		Operation: OpUpdate,
		Params:    map[string]string{"id": validID},
		Body:      map[string]any{"created_at": "2020-01-01T00:00:00Z", "nickname": "ignored"},
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarnImmutableFieldIgnored, res.Warnings[0].Code)

	res, err = v.Validate(context.Background(), Request{
		Table:     "users",
		Operation: OpUpdate,
		Params:    map[string]string{"id": validID},
		Body:      map[string]any{"email": nil},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"email:" + CodeRequired}, codes(res.Errors))
}

func TestParams(t *testing.T) {
	v := newValidator(t, usersTable())
	ctx := context.Background()

	res, err := v.Validate(ctx, Request{Table: "users", Operation: OpGet})
	require.NoError(t, err)
	assert.Equal(t, []string{"id:" + CodeRequired}, codes(res.Errors))

	res, err = v.Validate(ctx, Request{Table: "users", Operation: OpDelete, Params: map[string]string{"id": "123"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"id:" + CodeInvalidUUID}, codes(res.Errors))

	res, err = v.Validate(ctx, Request{Table: "users", Operation: OpGet, Params: map[string]string{"id": validID}})
	require.NoError(t, err)
	assert.True(t, res.Valid)

	res, err = v.Validate(ctx, Request{Table: "Users!", Operation: OpGet})
	require.NoError(t, err)
	assert.Equal(t, []string{"table:" + CodeInvalidTableName}, codes(res.Errors))
}

func TestUnknownAndInactiveTables(t *testing.T) {
	v := newValidator(t, usersTable())
	ctx := context.Background()

	var notFound *errdefs.SchemaNotFoundError
	_, err := v.Validate(ctx, Request{Table: "orders", Operation: OpList})
	assert.True(t, errors.As(err, &notFound))

	_, err = v.Validate(ctx, Request{Table: "legacy_users", Operation: OpList})
	require.True(t, errors.As(err, &notFound))
	assert.Contains(t, err.Error(), "archived")
}

func TestQueryValidation(t *testing.T) {
	v := newValidator(t, productsTable())
	ctx := context.Background()

	res, err := v.Validate(ctx, Request{Table: "products", Operation: OpList, Query: map[string]any{
		"page":         "2",
		"limit":        "100",
		"sort":         "price",
		"order":        "DESC",
		"search":       "shoe",
		"score__gte":   "10",
		"code__in":     "AB,CD",
		"code__ilike":  "%a%",
		"in_stock__eq": "true",
		"utm_source":   "newsletter",
	}})
	require.NoError(t, err)
	assert.True(t, res.Valid, "%v", res.Errors)

	res, err = v.Validate(ctx, Request{Table: "products", Operation: OpList, Query: map[string]any{
		"page":            "0",
		"limit":           "101",
		"sort":            "color",
		"order":           "sideways",
		"color__eq":       "red",
		"score__between":  "1",
		"score__in":       10.0,
		"released_at__gt": "yesterday",
		"score__like":     "1%",
		"search":          strings.Repeat("x", MaxSearchLength+1),
	}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"page:" + CodeInvalidPage,
		"limit:" + CodeInvalidLimit,
		"sort:" + CodeInvalidSortField,
		"order:" + CodeInvalidOrder,
		"color__eq:" + CodeUnknownFilterField,
		"score__between:" + CodeInvalidOperator,
		"score__in:" + CodeInvalidFilterValue,
		"released_at__gt:" + CodeInvalidFilterValue,
		"score__like:" + CodeInvalidFilterValue,
	}, codes(res.Errors))
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarnLongSearchTerm, res.Warnings[0].Code)

	res, err = v.Validate(ctx, Request{Table: "products", Operation: OpList, Query: map[string]any{"limit": 0.0}})
	require.NoError(t, err)
	assert.Equal(t, []string{"limit:" + CodeInvalidLimit}, codes(res.Errors))
}

func TestAggregatesEveryStage(t *testing.T) {
	v := newValidator(t, productsTable())

	res, err := v.Validate(context.Background(), Request{
		Table:     "products",
		Operation: OpUpdate,
		Params:    map[string]string{"id": "nope"},
		Body:      map[string]any{"score": 500.0, "code": 1.0},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"id:" + CodeInvalidUUID,
		"code:" + CodeTypeMismatch,
		"score:" + CodeMaxValue,
	}, codes(res.Errors))
}
