// Package apigen derives the CRUD API of a designer table: type
// descriptors, validation schemas, endpoint descriptors with examples, an
// OpenAPI document and a Go source bundle.
package apigen

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/alc6/tabledesigner/constraints"
	"github.com/alc6/tabledesigner/errdefs"
	"github.com/alc6/tabledesigner/schema"
	"github.com/alc6/tabledesigner/validator"
)

// DefaultBasePath prefixes every generated path
const DefaultBasePath = "/api/designer/tables"

// TypeField is one property of a generated type
type TypeField struct {
	Name     string
	GoName   string
	DataType schema.DataType
	Required bool
	Example  any
}

// TypeDescriptor names a generated type and lists its properties
type TypeDescriptor struct {
	Name   string
	Fields []TypeField
}

// Types holds the five descriptors of a table
type Types struct {
	Entity       TypeDescriptor
	Create       TypeDescriptor
	Update       TypeDescriptor
	QueryParams  TypeDescriptor
	ListResponse TypeDescriptor
}

// Parameter is a path or query parameter of an endpoint
type Parameter struct {
	Name        string
	In          string
	Required    bool
	Description string
	Rule        validator.FieldRule
	Example     any
}

// Endpoint describes one generated CRUD handler
type Endpoint struct {
	Name            string
	Operation       validator.Operation
	Method          string
	Path            string
	Summary         string
	Parameters      []Parameter
	RequestType     string
	ResponseType    string
	SuccessStatus   int
	RequestExample  map[string]any
	ResponseExample any
}

// TableAPI is everything generated for one table
type TableAPI struct {
	Table         schema.TableSchema
	TypeName      string
	Types         Types
	Validation    map[validator.Operation]validator.Schema
	Endpoints     []Endpoint
	Relationships []schema.RelationshipSchema
}

// Endpoint looks up a generated endpoint by operation
func (a *TableAPI) Endpoint(op validator.Operation) (Endpoint, bool) {
	for _, ep := range a.Endpoints {
		if ep.Operation == op {
			return ep, true
		}
	}
	return Endpoint{}, false
}

// Generator builds TableAPIs under a base path
type Generator struct {
	basePath string
}

// NewGenerator creates a generator. An empty base path selects DefaultBasePath.
func NewGenerator(basePath string) *Generator {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	return &Generator{basePath: strings.TrimRight(basePath, "/")}
}

// BasePath returns the path prefix of generated endpoints
func (g *Generator) BasePath() string {
	return g.basePath
}

// Generate derives the API of an active table. Relationships whose source
// is the table become equality filters on the list endpoint.
func (g *Generator) Generate(table schema.TableSchema, rels []schema.RelationshipSchema) (*TableAPI, error) {
	t := table.Clone()
	t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("failed to generate api for %s: %w", table.TableName, err)
	}
	if !t.IsActive() {
		return nil, &errdefs.SchemaNotFoundError{Table: t.TableName, Reason: fmt.Sprintf("table is %s", t.Status)}
	}
	for _, f := range t.Fields {
		if !f.DataType.Supported() {
			return nil, &errdefs.UnsupportedTypeError{Field: f.FieldName, DataType: string(f.DataType)}
		}
	}

	if rels == nil {
		rels = t.Relationships
	}
	var own []schema.RelationshipSchema
	for _, r := range rels {
		if r.SourceTable == t.TableName {
			own = append(own, r)
		}
	}

	name := TypeName(t.TableName)
	api := &TableAPI{
		Table:         *t,
		TypeName:      name,
		Relationships: own,
		Validation: map[validator.Operation]validator.Schema{
			validator.OpCreate: validator.BuildSchema(t, validator.OpCreate),
			validator.OpUpdate: validator.BuildSchema(t, validator.OpUpdate),
			validator.OpList:   validator.BuildSchema(t, validator.OpList),
		},
	}
	api.Types = g.types(t, name)
	api.Endpoints = g.endpoints(t, name, own, api.Types)

	slog.Debug("generated table api", "table", t.TableName, "endpoints", len(api.Endpoints), "relationships", len(own))
	return api, nil
}

func (g *Generator) types(t *schema.TableSchema, name string) Types {
	var entity, create, update TypeDescriptor
	entity.Name = name
	create.Name = "Create" + name + "Request"
	update.Name = "Update" + name + "Request"

	for _, f := range t.Fields {
		tf := TypeField{
			Name:     f.FieldName,
			GoName:   GoFieldName(f.FieldName),
			DataType: f.DataType,
			Required: f.IsRequired || f.IsPrimaryKey,
			Example:  exampleValue(t.TableName, f),
		}
		entity.Fields = append(entity.Fields, tf)

		if !f.IsPrimaryKey {
			c := tf
			c.Required = f.IsRequired && f.DefaultValue == nil
			create.Fields = append(create.Fields, c)
		}
		if !f.Immutable {
			u := tf
			u.Required = false
			update.Fields = append(update.Fields, u)
		}
	}

	query := TypeDescriptor{
		Name: name + "QueryParams",
		Fields: []TypeField{
			{Name: "page", GoName: "Page", DataType: schema.TypeNumber, Example: 1},
			{Name: "limit", GoName: "Limit", DataType: schema.TypeNumber, Example: 20},
			{Name: "sort", GoName: "Sort", DataType: schema.TypeText, Example: defaultSort(t)},
			{Name: "order", GoName: "Order", DataType: schema.TypeText, Example: "asc"},
			{Name: "search", GoName: "Search", DataType: schema.TypeText},
		},
	}
	list := TypeDescriptor{
		Name: name + "ListResponse",
		Fields: []TypeField{
			{Name: "data", GoName: "Data", Required: true},
			{Name: "total", GoName: "Total", DataType: schema.TypeNumber, Required: true, Example: 1},
			{Name: "page", GoName: "Page", DataType: schema.TypeNumber, Required: true, Example: 1},
			{Name: "limit", GoName: "Limit", DataType: schema.TypeNumber, Required: true, Example: 20},
			{Name: "total_pages", GoName: "TotalPages", DataType: schema.TypeNumber, Required: true, Example: 1},
		},
	}
	return Types{Entity: entity, Create: create, Update: update, QueryParams: query, ListResponse: list}
}

func (g *Generator) endpoints(t *schema.TableSchema, name string, rels []schema.RelationshipSchema, types Types) []Endpoint {
	collection := g.basePath + "/" + t.TableName
	item := collection + "/{id}"

	entityExample := exampleObject(types.Entity)
	idParam := Parameter{
		Name:        "id",
		In:          "path",
		Required:    true,
		Description: name + " identifier",
		Rule:        validator.FieldRule{Type: "string", Format: "uuid"},
		Example:     exampleID(t.TableName, "id"),
	}

	listRules := validator.BuildSchema(t, validator.OpList)
	var listParams []Parameter
	for _, p := range listRules.Fields {
		listParams = append(listParams, Parameter{Name: p, In: "query", Rule: listRules.Rules[p], Description: queryDescriptions[p]})
	}
	for _, r := range rels {
		f, _ := t.Field(r.SourceField)
		rule, _ := validator.RuleFor(f)
		rule.Required = false
		listParams = append(listParams, Parameter{
			Name:        r.SourceField + "__eq",
			In:          "query",
			Description: fmt.Sprintf("Filter by %s.%s", r.TargetTable, r.TargetField),
			Rule:        rule,
			Example:     exampleValue(t.TableName, f),
		})
	}

	return []Endpoint{
		{
			Name:          "list" + name,
			Operation:     validator.OpList,
			Method:        http.MethodGet,
			Path:          collection,
			Summary:       "List " + t.TableName,
			Parameters:    listParams,
			ResponseType:  types.ListResponse.Name,
			SuccessStatus: http.StatusOK,
			ResponseExample: map[string]any{
				"data":        []any{entityExample},
				"total":       1,
				"page":        1,
				"limit":       20,
				"total_pages": 1,
			},
		},
		{
			Name:            "get" + name + "ById",
			Operation:       validator.OpGet,
			Method:          http.MethodGet,
			Path:            item,
			Summary:         "Get one " + t.TableName + " record",
			Parameters:      []Parameter{idParam},
			ResponseType:    types.Entity.Name,
			SuccessStatus:   http.StatusOK,
			ResponseExample: entityExample,
		},
		{
			Name:            "create" + name,
			Operation:       validator.OpCreate,
			Method:          http.MethodPost,
			Path:            collection,
			Summary:         "Create a " + t.TableName + " record",
			RequestType:     types.Create.Name,
			ResponseType:    types.Entity.Name,
			SuccessStatus:   http.StatusCreated,
			RequestExample:  exampleObject(types.Create),
			ResponseExample: entityExample,
		},
		{
			Name:            "update" + name,
			Operation:       validator.OpUpdate,
			Method:          http.MethodPut,
			Path:            item,
			Summary:         "Update a " + t.TableName + " record",
			Parameters:      []Parameter{idParam},
			RequestType:     types.Update.Name,
			ResponseType:    types.Entity.Name,
			SuccessStatus:   http.StatusOK,
			RequestExample:  exampleObject(types.Update),
			ResponseExample: entityExample,
		},
		{
			Name:          "delete" + name,
			Operation:     validator.OpDelete,
			Method:        http.MethodDelete,
			Path:          item,
			Summary:       "Delete a " + t.TableName + " record",
			Parameters:    []Parameter{idParam},
			SuccessStatus: http.StatusNoContent,
		},
	}
}

var queryDescriptions = map[string]string{
	"page":   "Page number, starting at 1",
	"limit":  "Page size, at most 100",
	"sort":   "Field to sort by",
	"order":  "Sort direction",
	"search": "Free-text search over searchable fields",
}

func defaultSort(t *schema.TableSchema) string {
	if t.DefaultSort != "" {
		return t.DefaultSort
	}
	if pk, ok := t.PrimaryKey(); ok {
		return pk.FieldName
	}
	if len(t.Fields) > 0 {
		return t.Fields[0].FieldName
	}
	return ""
}

func exampleObject(td TypeDescriptor) map[string]any {
	out := make(map[string]any, len(td.Fields))
	for _, f := range td.Fields {
		out[f.Name] = f.Example
	}
	return out
}

// exampleID is a stable UUID per table and field
func exampleID(table, field string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("tabledesigner:"+table+"."+field)).String()
}

// exampleValue picks a plausible value from the field name, falling back to
// the data type
func exampleValue(table string, f schema.FieldSchema) any {
	name := strings.ToLower(f.FieldName)

	if f.IsPrimaryKey || name == "id" || strings.HasSuffix(name, "_id") || strings.HasSuffix(name, "_uuid") {
		if f.DataType == schema.TypeText || f.IsPrimaryKey {
			return exampleID(table, f.FieldName)
		}
	}

	switch f.DataType {
	case schema.TypeBoolean:
		return !strings.HasPrefix(name, "is_deleted")
	case schema.TypeDate:
		return "2024-01-15T10:30:00Z"
	case schema.TypeNumber:
		return exampleNumber(name, f)
	case schema.TypeText:
		return clip(exampleText(name), f)
	}
	return nil
}

func exampleNumber(name string, f schema.FieldSchema) any {
	var v float64 = 42
	switch {
	case containsAny(name, "price", "amount", "cost", "total", "balance"):
		v = 19.99
	case containsAny(name, "quantity", "qty", "count", "stock"):
		v = 10
	case containsAny(name, "age"):
		v = 30
	case containsAny(name, "rating", "score"):
		v = 4.5
	case strings.HasSuffix(name, "_id"):
		v = 1
	}
	if f.Config.MinValue != nil && v < *f.Config.MinValue {
		v = *f.Config.MinValue
	}
	if f.Config.MaxValue != nil && v > *f.Config.MaxValue {
		v = *f.Config.MaxValue
	}
	return v
}

func exampleText(name string) string {
	switch {
	case containsAny(name, "email"):
		return "user@example.com"
	case containsAny(name, "url", "website", "link"):
		return "https://example.com"
	case containsAny(name, "phone", "mobile"):
		return "+1-555-0100"
	case name == "first_name":
		return "Jane"
	case name == "last_name":
		return "Doe"
	case containsAny(name, "name"):
		return "Example Name"
	case containsAny(name, "title"):
		return "Example Title"
	case containsAny(name, "description", "content", "body", "notes"):
		return "Example description"
	case containsAny(name, "status"):
		return "active"
	case containsAny(name, "code", "sku"):
		return "ABC123"
	default:
		return "example"
	}
}

func clip(s string, f schema.FieldSchema) string {
	if limit := constraints.TextLength(f); len(s) > limit {
		return s[:limit]
	}
	return s
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
