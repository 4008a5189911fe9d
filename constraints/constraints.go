// Package constraints maps designer fields onto PostgreSQL column types and
// constraint clauses.
package constraints

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alc6/tabledesigner/errdefs"
	"github.com/alc6/tabledesigner/schema"
)

const (
	DefaultTextLength = 255
	MaxTextLength     = 65535
	DefaultPrecision  = 10
	DefaultScale      = 2

	// MaxColumnChecks is the most CHECK clauses any type rule emits
	MaxColumnChecks = 2
)

// Column is the physical form of a field
type Column struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Constraints []string `json:"constraints,omitempty"`
}

// Definition renders the column as used inside CREATE TABLE and ADD COLUMN
func (c Column) Definition() string {
	if len(c.Constraints) == 0 {
		return c.Name + " " + c.Type
	}
	return c.Name + " " + c.Type + " " + strings.Join(c.Constraints, " ")
}

// NotNull reports whether the column carries a NOT NULL clause
func (c Column) NotNull() bool {
	for _, con := range c.Constraints {
		if con == "NOT NULL" {
			return true
		}
	}
	return false
}

// Default returns the DEFAULT literal of the column, if any
func (c Column) Default() (string, bool) {
	for _, con := range c.Constraints {
		if v, ok := strings.CutPrefix(con, "DEFAULT "); ok {
			return v, true
		}
	}
	return "", false
}

// Checks returns the CHECK clauses of the column
func (c Column) Checks() []string {
	var out []string
	for _, con := range c.Constraints {
		if strings.HasPrefix(con, "CHECK ") {
			out = append(out, con)
		}
	}
	return out
}

// CheckName is the name PostgreSQL gives the n-th unnamed CHECK clause of a
// column: table_column_check, then table_column_check1 and so on.
func CheckName(table, column string, n int) string {
	name := table + "_" + column + "_check"
	if n > 0 {
		name += strconv.Itoa(n)
	}
	return name
}

// typeRule produces the SQL type and type-specific CHECK clauses of a field
type typeRule func(f schema.FieldSchema) (string, []string)

var typeRules = map[schema.DataType]typeRule{
	schema.TypeText:    textColumn,
	schema.TypeNumber:  numberColumn,
	schema.TypeDate:    func(schema.FieldSchema) (string, []string) { return "TIMESTAMP", nil },
	schema.TypeBoolean: func(schema.FieldSchema) (string, []string) { return "BOOLEAN", nil },
}

// FieldToColumn maps a field onto its column type and constraints. It has
// no side effects and always gives the same output for the same field.
func FieldToColumn(f schema.FieldSchema) (Column, error) {
	rule, ok := typeRules[f.DataType]
	if !ok {
		return Column{}, &errdefs.UnsupportedTypeError{Field: f.FieldName, DataType: string(f.DataType)}
	}

	sqlType, checks := rule(f)

	var cons []string
	if f.IsRequired {
		cons = append(cons, "NOT NULL")
	}
	if f.DefaultValue != nil {
		lit, err := FormatDefault(f.DataType, f.DefaultValue)
		if err != nil {
			return Column{}, fmt.Errorf("failed to format default for %s: %w", f.FieldName, err)
		}
		cons = append(cons, "DEFAULT "+lit)
	}
	cons = append(cons, checks...)

	return Column{Name: f.FieldName, Type: sqlType, Constraints: cons}, nil
}

// TextLength returns the effective maximum length of a text field
func TextLength(f schema.FieldSchema) int {
	n := DefaultTextLength
	if f.Config.MaxLength != nil && *f.Config.MaxLength > 0 {
		n = *f.Config.MaxLength
	}
	if n > MaxTextLength {
		n = MaxTextLength
	}
	return n
}

// NumericShape returns the precision and scale of a number field
func NumericShape(f schema.FieldSchema) (precision, scale int) {
	precision, scale = DefaultPrecision, DefaultScale
	if f.Config.Precision != nil && *f.Config.Precision > 0 {
		precision = *f.Config.Precision
	}
	if f.Config.Scale != nil && *f.Config.Scale >= 0 {
		scale = *f.Config.Scale
	}
	return precision, scale
}

func textColumn(f schema.FieldSchema) (string, []string) {
	maxLen := TextLength(f)
	var checks []string
	if f.Config.MinLength != nil {
		checks = append(checks, fmt.Sprintf("CHECK (length(%s) BETWEEN %d AND %d)", f.FieldName, *f.Config.MinLength, maxLen))
	}
	if f.Config.Pattern != "" {
		checks = append(checks, fmt.Sprintf("CHECK (%s ~ %s)", f.FieldName, QuoteString(f.Config.Pattern)))
	}
	return fmt.Sprintf("VARCHAR(%d)", maxLen), checks
}

func numberColumn(f schema.FieldSchema) (string, []string) {
	precision, scale := NumericShape(f)
	lo, hi := f.Config.MinValue, f.Config.MaxValue

	var checks []string
	switch {
	case lo != nil && hi != nil:
		checks = append(checks, fmt.Sprintf("CHECK (%s BETWEEN %s AND %s)", f.FieldName, formatFloat(*lo), formatFloat(*hi)))
	case lo != nil:
		checks = append(checks, fmt.Sprintf("CHECK (%s >= %s)", f.FieldName, formatFloat(*lo)))
	case hi != nil:
		checks = append(checks, fmt.Sprintf("CHECK (%s <= %s)", f.FieldName, formatFloat(*hi)))
	}
	return fmt.Sprintf("DECIMAL(%d,%d)", precision, scale), checks
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// dateFunctions pass through DEFAULT clauses unquoted
var dateFunctions = map[string]struct{}{
	"NOW()":             {},
	"CURRENT_TIMESTAMP": {},
	"CURRENT_DATE":      {},
	"CURRENT_TIME":      {},
	"LOCALTIMESTAMP":    {},
}

// IsDateFunction reports whether v names a SQL date function
func IsDateFunction(v string) bool {
	_, ok := dateFunctions[strings.ToUpper(strings.TrimSpace(v))]
	return ok
}

// FormatDefault renders a default value as a SQL literal for the given type
func FormatDefault(dt schema.DataType, v any) (string, error) {
	switch dt {
	case schema.TypeBoolean:
		return formatBoolDefault(v)
	case schema.TypeNumber:
		return formatNumberDefault(v)
	case schema.TypeDate:
		if s, ok := v.(string); ok && IsDateFunction(s) {
			return strings.ToUpper(strings.TrimSpace(s)), nil
		}
		return QuoteString(fmt.Sprint(v)), nil
	case schema.TypeText:
		return QuoteString(fmt.Sprint(v)), nil
	default:
		return "", &errdefs.UnsupportedTypeError{DataType: string(dt)}
	}
}

func formatBoolDefault(v any) (string, error) {
	switch b := v.(type) {
	case bool:
		if b {
			return "TRUE", nil
		}
		return "FALSE", nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "t", "yes":
			return "TRUE", nil
		case "false", "0", "f", "no":
			return "FALSE", nil
		}
	case float64:
		if b == 1 {
			return "TRUE", nil
		}
		if b == 0 {
			return "FALSE", nil
		}
	case int:
		if b == 1 {
			return "TRUE", nil
		}
		if b == 0 {
			return "FALSE", nil
		}
	}
	return "", fmt.Errorf("invalid boolean default %v", v)
}

func formatNumberDefault(v any) (string, error) {
	var s string
	switch n := v.(type) {
	case float64:
		return formatFloat(n), nil
	case float32:
		return formatFloat(float64(n)), nil
	case int:
		return strconv.Itoa(n), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case string:
		s = strings.TrimSpace(n)
	default:
		s = fmt.Sprint(v)
	}
	if _, err := decimal.NewFromString(s); err != nil {
		return "", fmt.Errorf("invalid numeric default %q: %w", s, err)
	}
	return s, nil
}

// QuoteString renders s as a single-quoted SQL string literal
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
