package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/alc6/tabledesigner/errdefs"
)

// identifierPattern is the only accepted shape for table and column names
var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidIdentifier reports whether name may be used as a SQL identifier
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// CheckIdentifier returns a MalformedIdentifierError when name is not a valid identifier
func CheckIdentifier(kind, name string) error {
	if !ValidIdentifier(name) {
		return &errdefs.MalformedIdentifierError{Kind: kind, Value: name}
	}
	return nil
}

// Normalize applies the immutability rules and orders fields. Primary key
// fields and created_at fields are always immutable.
func (t *TableSchema) Normalize() {
	if t.Status == "" {
		t.Status = StatusActive
	}
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.IsPrimaryKey || f.FieldName == "created_at" {
			f.Immutable = true
		}
	}
	sort.SliceStable(t.Fields, func(i, j int) bool {
		return t.Fields[i].Order < t.Fields[j].Order
	})
}

// Validate checks the table-level invariants
func (t *TableSchema) Validate() error {
	if err := CheckIdentifier("table", t.TableName); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(t.Fields))
	primaryKeys := 0
	for _, f := range t.Fields {
		if err := CheckIdentifier("column", f.FieldName); err != nil {
			return err
		}
		if _, dup := seen[f.FieldName]; dup {
			return &errdefs.InvalidSchemaError{Table: t.TableName, Reason: fmt.Sprintf("duplicate field %q", f.FieldName)}
		}
		seen[f.FieldName] = struct{}{}

		if !f.DataType.Supported() {
			return &errdefs.UnsupportedTypeError{Field: f.FieldName, DataType: string(f.DataType)}
		}
		if f.IsPrimaryKey {
			primaryKeys++
		}
	}
	if primaryKeys > 1 {
		return &errdefs.InvalidSchemaError{Table: t.TableName, Reason: fmt.Sprintf("%d primary key fields, at most one allowed", primaryKeys)}
	}
	return nil
}

// ValidateRelationship checks a relationship against the two tables it links
func ValidateRelationship(rel RelationshipSchema, source, target *TableSchema) error {
	if rel.SourceTable == rel.TargetTable {
		return &errdefs.InvalidSchemaError{Table: rel.SourceTable, Reason: "self-referencing relationships are not supported"}
	}
	if rel.RelationshipType != "" && rel.RelationshipType != OneToMany {
		return &errdefs.InvalidSchemaError{Table: rel.SourceTable, Reason: fmt.Sprintf("unsupported relationship type %q", rel.RelationshipType)}
	}
	if source == nil {
		return &errdefs.SchemaNotFoundError{Table: rel.SourceTable}
	}
	if target == nil {
		return &errdefs.SchemaNotFoundError{Table: rel.TargetTable}
	}

	sf, ok := source.Field(rel.SourceField)
	if !ok {
		return &errdefs.InvalidSchemaError{Table: rel.SourceTable, Reason: fmt.Sprintf("relationship source field %q does not exist", rel.SourceField)}
	}
	tf, ok := target.Field(rel.TargetField)
	if !ok {
		return &errdefs.InvalidSchemaError{Table: rel.TargetTable, Reason: fmt.Sprintf("relationship target field %q does not exist", rel.TargetField)}
	}
	if sf.DataType != tf.DataType {
		return &errdefs.InvalidSchemaError{
			Table:  rel.SourceTable,
			Reason: fmt.Sprintf("field %s (%s) is not compatible with %s.%s (%s)", sf.FieldName, sf.DataType, rel.TargetTable, tf.FieldName, tf.DataType),
		}
	}
	return nil
}

// hashView is the part of a table that affects generated DDL and endpoints
type hashView struct {
	TableName        string               `json:"table_name"`
	Status           TableStatus          `json:"status"`
	Fields           []FieldSchema        `json:"fields"`
	Relationships    []RelationshipSchema `json:"relationships"`
	SearchableFields []string             `json:"searchable_fields"`
	DefaultSort      string               `json:"default_sort"`
	DefaultOrder     string               `json:"default_order"`
}

// Hash returns a stable digest of the structural parts of the table.
// Timestamps and ids are ignored.
func (t *TableSchema) Hash() string {
	view := hashView{
		TableName:        t.TableName,
		Status:           t.Status,
		Fields:           make([]FieldSchema, len(t.Fields)),
		Relationships:    make([]RelationshipSchema, len(t.Relationships)),
		SearchableFields: t.SearchableFields,
		DefaultSort:      t.DefaultSort,
		DefaultOrder:     t.DefaultOrder,
	}
	for i, f := range t.Fields {
		f.ID = ""
		view.Fields[i] = f
	}
	for i, r := range t.Relationships {
		r.ID = ""
		view.Relationships[i] = r
	}
	sort.Slice(view.Relationships, func(i, j int) bool {
		return view.Relationships[i].Key() < view.Relationships[j].Key()
	})

	data, _ := json.Marshal(view)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Clone returns a deep copy of the table
func (t *TableSchema) Clone() *TableSchema {
	c := *t
	c.Fields = make([]FieldSchema, len(t.Fields))
	for i, f := range t.Fields {
		c.Fields[i] = f.clone()
	}
	c.Relationships = append([]RelationshipSchema(nil), t.Relationships...)
	c.SearchableFields = append([]string(nil), t.SearchableFields...)
	return &c
}

func (f FieldSchema) clone() FieldSchema {
	cfg := f.Config
	cfg.MaxLength = cloneInt(cfg.MaxLength)
	cfg.MinLength = cloneInt(cfg.MinLength)
	cfg.Precision = cloneInt(cfg.Precision)
	cfg.Scale = cloneInt(cfg.Scale)
	cfg.MinValue = cloneFloat(cfg.MinValue)
	cfg.MaxValue = cloneFloat(cfg.MaxValue)
	f.Config = cfg
	return f
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Int returns a pointer to v, handy for building field configs
func Int(v int) *int { return &v }

// Float returns a pointer to v, handy for building field configs
func Float(v float64) *float64 { return &v }
