package validator

import (
	"github.com/alc6/tabledesigner/constraints"
	"github.com/alc6/tabledesigner/schema"
)

// FieldRule is the declarative form of the checks applied to one field
type FieldRule struct {
	Type      string   `json:"type" yaml:"type"`
	Format    string   `json:"format,omitempty" yaml:"format,omitempty"`
	Required  bool     `json:"required,omitempty" yaml:"required,omitempty"`
	Nullable  bool     `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	MinLength *int     `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Pattern   string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Minimum   *float64 `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum   *float64 `json:"maximum,omitempty" yaml:"maximum,omitempty"`
	Precision int      `json:"precision,omitempty" yaml:"precision,omitempty"`
	Scale     *int     `json:"scale,omitempty" yaml:"scale,omitempty"`
	Enum      []string `json:"enum,omitempty" yaml:"enum,omitempty"`
	Default   any      `json:"default,omitempty" yaml:"default,omitempty"`
}

// Schema lists the field rules of one operation in field order
type Schema struct {
	Operation Operation            `json:"operation" yaml:"operation"`
	Fields    []string             `json:"fields" yaml:"fields"`
	Rules     map[string]FieldRule `json:"rules" yaml:"rules"`
}

type ruleBuilder func(f schema.FieldSchema, r *FieldRule)

var ruleBuilders = map[schema.DataType]ruleBuilder{
	schema.TypeText: func(f schema.FieldSchema, r *FieldRule) {
		r.Type = "string"
		maxLen := constraints.TextLength(f)
		r.MaxLength = &maxLen
		r.MinLength = f.Config.MinLength
		r.Pattern = f.Config.Pattern
	},
	schema.TypeNumber: func(f schema.FieldSchema, r *FieldRule) {
		r.Type = "number"
		precision, scale := constraints.NumericShape(f)
		r.Precision = precision
		r.Scale = &scale
		r.Minimum = f.Config.MinValue
		r.Maximum = f.Config.MaxValue
	},
	schema.TypeDate: func(_ schema.FieldSchema, r *FieldRule) {
		r.Type = "string"
		r.Format = "date-time"
	},
	schema.TypeBoolean: func(_ schema.FieldSchema, r *FieldRule) {
		r.Type = "boolean"
	},
}

// RuleFor builds the declarative rule of a field as validated on create
func RuleFor(f schema.FieldSchema) (FieldRule, bool) {
	build, ok := ruleBuilders[f.DataType]
	if !ok {
		return FieldRule{}, false
	}
	r := FieldRule{
		Required: f.IsRequired && f.DefaultValue == nil,
		Nullable: !f.IsRequired,
		Default:  f.DefaultValue,
	}
	build(f, &r)
	return r, true
}

// BuildSchema returns the rules of op for a table. List describes its
// query parameters. Create skips primary keys, update skips immutable
// fields and requires nothing. Other operations have no rules.
func BuildSchema(table *schema.TableSchema, op Operation) Schema {
	s := Schema{Operation: op, Rules: map[string]FieldRule{}}
	switch op {
	case OpList:
		return listSchema(table)
	case OpCreate, OpUpdate:
	default:
		return s
	}
	for _, f := range table.Fields {
		if op == OpCreate && f.IsPrimaryKey {
			continue
		}
		if op == OpUpdate && f.Immutable {
			continue
		}
		r, ok := RuleFor(f)
		if !ok {
			continue
		}
		if op == OpUpdate {
			r.Required = false
		}
		s.Fields = append(s.Fields, f.FieldName)
		s.Rules[f.FieldName] = r
	}
	return s
}

func listSchema(table *schema.TableSchema) Schema {
	one, maxLimit := 1.0, float64(MaxLimit)
	return Schema{
		Operation: OpList,
		Fields:    []string{"page", "limit", "sort", "order", "search"},
		Rules: map[string]FieldRule{
			"page":   {Type: "integer", Minimum: &one, Default: 1},
			"limit":  {Type: "integer", Minimum: &one, Maximum: &maxLimit, Default: 20},
			"sort":   {Type: "string", Enum: table.FieldNames()},
			"order":  {Type: "string", Enum: []string{"asc", "desc"}, Default: "asc"},
			"search": {Type: "string"},
		},
	}
}
