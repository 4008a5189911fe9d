package schema

import "time"

// DataType is the logical type of a designer field
type DataType string

const (
	TypeText    DataType = "text"
	TypeNumber  DataType = "number"
	TypeDate    DataType = "date"
	TypeBoolean DataType = "boolean"
)

// DataTypes lists every supported logical type
var DataTypes = []DataType{TypeText, TypeNumber, TypeDate, TypeBoolean}

// Supported reports whether the logical type is known
func (d DataType) Supported() bool {
	switch d {
	case TypeText, TypeNumber, TypeDate, TypeBoolean:
		return true
	}
	return false
}

// TableStatus is the lifecycle state of a designer table
type TableStatus string

const (
	StatusActive   TableStatus = "active"
	StatusInactive TableStatus = "inactive"
	StatusArchived TableStatus = "archived"
)

// RelationshipType describes the cardinality of a relationship
type RelationshipType string

const (
	OneToMany RelationshipType = "one_to_many"
)

// CascadePolicy is applied to dependent rows when the referenced row changes
type CascadePolicy string

const (
	CascadeCascade    CascadePolicy = "cascade"
	CascadeRestrict   CascadePolicy = "restrict"
	CascadeSetNull    CascadePolicy = "set_null"
	CascadeSetDefault CascadePolicy = "set_default"
	CascadeNoAction   CascadePolicy = "no_action"
)

// FieldConfig carries the type-specific configuration of a field
type FieldConfig struct {
	MaxLength *int     `json:"max_length,omitempty"`
	MinLength *int     `json:"min_length,omitempty"`
	Precision *int     `json:"precision,omitempty"`
	Scale     *int     `json:"scale,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	MinValue  *float64 `json:"min_value,omitempty"`
	MaxValue  *float64 `json:"max_value,omitempty"`
}

// FieldSchema describes one column of a designer table
type FieldSchema struct {
	ID           string      `json:"id,omitempty"`
	Name         string      `json:"name"`
	FieldName    string      `json:"field_name"`
	DataType     DataType    `json:"data_type"`
	IsRequired   bool        `json:"is_required"`
	IsPrimaryKey bool        `json:"is_primary_key"`
	Immutable    bool        `json:"immutable"`
	DefaultValue any         `json:"default_value,omitempty"`
	Config       FieldConfig `json:"field_config"`
	Order        int         `json:"order"`
}

// CascadeConfig holds the referential actions of a relationship
type CascadeConfig struct {
	OnDelete CascadePolicy `json:"on_delete,omitempty"`
	OnUpdate CascadePolicy `json:"on_update,omitempty"`
}

// RelationshipSchema links source_table.source_field to target_table.target_field
type RelationshipSchema struct {
	ID               string           `json:"id,omitempty"`
	SourceTable      string           `json:"source_table"`
	SourceField      string           `json:"source_field"`
	TargetTable      string           `json:"target_table"`
	TargetField      string           `json:"target_field"`
	RelationshipType RelationshipType `json:"relationship_type"`
	Cascade          CascadeConfig    `json:"cascade_config"`
}

// Key identifies a relationship by its endpoints
func (r RelationshipSchema) Key() string {
	return r.SourceTable + "." + r.SourceField + "->" + r.TargetTable + "." + r.TargetField
}

// TableSchema is the full definition of a designer table
type TableSchema struct {
	ID               string               `json:"id,omitempty"`
	TableName        string               `json:"table_name"`
	DisplayName      string               `json:"display_name,omitempty"`
	ProjectID        string               `json:"project_id"`
	Status           TableStatus          `json:"status,omitempty"`
	Fields           []FieldSchema        `json:"fields"`
	Relationships    []RelationshipSchema `json:"relationships,omitempty"`
	SearchableFields []string             `json:"searchable_fields,omitempty"`
	DefaultSort      string               `json:"default_sort,omitempty"`
	DefaultOrder     string               `json:"default_order,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// Snapshot is a point-in-time copy of every table in a project
type Snapshot struct {
	ProjectID string        `json:"project_id"`
	Tables    []TableSchema `json:"tables"`
}

// Field looks up a field by its column identifier
func (t *TableSchema) Field(fieldName string) (FieldSchema, bool) {
	for _, f := range t.Fields {
		if f.FieldName == fieldName {
			return f, true
		}
	}
	return FieldSchema{}, false
}

// PrimaryKey returns the primary key field if the table has one
func (t *TableSchema) PrimaryKey() (FieldSchema, bool) {
	for _, f := range t.Fields {
		if f.IsPrimaryKey {
			return f, true
		}
	}
	return FieldSchema{}, false
}

// IsActive reports whether the table is exposed
func (t *TableSchema) IsActive() bool {
	return t.Status == StatusActive || t.Status == ""
}

// FieldNames returns column identifiers in field order
func (t *TableSchema) FieldNames() []string {
	names := make([]string, 0, len(t.Fields))
	for _, f := range t.Fields {
		names = append(names, f.FieldName)
	}
	return names
}
