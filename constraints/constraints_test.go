package constraints

import (
	"errors"
	"testing"

	"github.com/alc6/tabledesigner/errdefs"
	"github.com/alc6/tabledesigner/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldToColumn(t *testing.T) {
	tests := []struct {
		name  string
		field schema.FieldSchema
		want  Column
	}{
		{
			name:  "text_default_length",
			field: schema.FieldSchema{FieldName: "title", DataType: schema.TypeText},
			want:  Column{Name: "title", Type: "VARCHAR(255)"},
		},
		{
			name: "text_with_bounds_and_pattern",
			field: schema.FieldSchema{
				FieldName:  "code",
				DataType:   schema.TypeText,
				IsRequired: true,
				Config:     schema.FieldConfig{MinLength: schema.Int(2), MaxLength: schema.Int(8), Pattern: "^[A-Z]+$"},
			},
			want: Column{Name: "code", Type: "VARCHAR(8)", Constraints: []string{
				"NOT NULL",
				"CHECK (length(code) BETWEEN 2 AND 8)",
				"CHECK (code ~ '^[A-Z]+$')",
			}},
		},
		{
			name:  "text_length_capped",
			field: schema.FieldSchema{FieldName: "body", DataType: schema.TypeText, Config: schema.FieldConfig{MaxLength: schema.Int(100000)}},
			want:  Column{Name: "body", Type: "VARCHAR(65535)"},
		},
		{
			name:  "number_defaults",
			field: schema.FieldSchema{FieldName: "price", DataType: schema.TypeNumber},
			want:  Column{Name: "price", Type: "DECIMAL(10,2)"},
		},
		{
			name: "number_range",
			field: schema.FieldSchema{
				FieldName: "score",
				DataType:  schema.TypeNumber,
				Config:    schema.FieldConfig{Precision: schema.Int(5), Scale: schema.Int(0), MinValue: schema.Float(0), MaxValue: schema.Float(100)},
			},
			want: Column{Name: "score", Type: "DECIMAL(5,0)", Constraints: []string{"CHECK (score BETWEEN 0 AND 100)"}},
		},
		{
			name:  "number_min_only",
			field: schema.FieldSchema{FieldName: "qty", DataType: schema.TypeNumber, Config: schema.FieldConfig{MinValue: schema.Float(1.5)}},
			want:  Column{Name: "qty", Type: "DECIMAL(10,2)", Constraints: []string{"CHECK (qty >= 1.5)"}},
		},
		{
			name:  "date_with_function_default",
			field: schema.FieldSchema{FieldName: "created_at", DataType: schema.TypeDate, IsRequired: true, DefaultValue: "now()"},
			want:  Column{Name: "created_at", Type: "TIMESTAMP", Constraints: []string{"NOT NULL", "DEFAULT NOW()"}},
		},
		{
			name:  "boolean_default",
			field: schema.FieldSchema{FieldName: "active", DataType: schema.TypeBoolean, DefaultValue: "true"},
			want:  Column{Name: "active", Type: "BOOLEAN", Constraints: []string{"DEFAULT TRUE"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FieldToColumn(tt.field)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFieldToColumnIsDeterministic(t *testing.T) {
	field := schema.FieldSchema{
		FieldName:    "email",
		DataType:     schema.TypeText,
		IsRequired:   true,
		DefaultValue: "o'brien@example.com",
		Config:       schema.FieldConfig{MaxLength: schema.Int(120), MinLength: schema.Int(3)},
	}

	first, err := FieldToColumn(field)
	require.NoError(t, err)
	second, err := FieldToColumn(field)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "email VARCHAR(120) NOT NULL DEFAULT 'o''brien@example.com' CHECK (length(email) BETWEEN 3 AND 120)", first.Definition())
}

func TestColumnChecks(t *testing.T) {
	col := Column{Name: "code", Type: "VARCHAR(8)", Constraints: []string{"NOT NULL", "CHECK (length(code) BETWEEN 2 AND 8)", "DEFAULT 'AA'"}}

	assert.Equal(t, []string{"CHECK (length(code) BETWEEN 2 AND 8)"}, col.Checks())
	assert.Equal(t, "products_code_check", CheckName("products", "code", 0))
	assert.Equal(t, "products_code_check1", CheckName("products", "code", 1))
}

func TestFieldToColumnUnsupportedType(t *testing.T) {
	_, err := FieldToColumn(schema.FieldSchema{FieldName: "meta", DataType: "json"})

	var unsupported *errdefs.UnsupportedTypeError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "json", unsupported.DataType)
}

func TestFormatDefault(t *testing.T) {
	tests := []struct {
		name    string
		dt      schema.DataType
		value   any
		want    string
		wantErr bool
	}{
		{"text_escaped", schema.TypeText, "it's", "'it''s'", false},
		{"number_float", schema.TypeNumber, 12.5, "12.5", false},
		{"number_string", schema.TypeNumber, "42.10", "42.10", false},
		{"number_invalid", schema.TypeNumber, "1; DROP TABLE x", "", true},
		{"bool_true", schema.TypeBoolean, true, "TRUE", false},
		{"bool_zero", schema.TypeBoolean, float64(0), "FALSE", false},
		{"bool_invalid", schema.TypeBoolean, "maybe", "", true},
		{"date_function", schema.TypeDate, "current_timestamp", "CURRENT_TIMESTAMP", false},
		{"date_literal", schema.TypeDate, "2024-01-01T00:00:00Z", "'2024-01-01T00:00:00Z'", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatDefault(tt.dt, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestColumnAccessors(t *testing.T) {
	col := Column{Name: "n", Type: "DECIMAL(10,2)", Constraints: []string{"NOT NULL", "DEFAULT 0"}}
	assert.True(t, col.NotNull())

	def, ok := col.Default()
	assert.True(t, ok)
	assert.Equal(t, "0", def)

	_, ok = Column{Name: "n"}.Default()
	assert.False(t, ok)
}
