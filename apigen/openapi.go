package apigen

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alc6/tabledesigner/schema"
	"github.com/alc6/tabledesigner/validator"
)

// OpenAPIVersion is the version of the emitted document
const OpenAPIVersion = "3.0.3"

// Document is an OpenAPI 3.0 document restricted to what the generator emits
type Document struct {
	OpenAPI    string               `json:"openapi" yaml:"openapi"`
	Info       Info                 `json:"info" yaml:"info"`
	Servers    []Server             `json:"servers,omitempty" yaml:"servers,omitempty"`
	Paths      map[string]*PathItem `json:"paths" yaml:"paths"`
	Components Components           `json:"components" yaml:"components"`
	Tags       []Tag                `json:"tags,omitempty" yaml:"tags,omitempty"`
}

type Info struct {
	Title       string `json:"title" yaml:"title"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type Server struct {
	URL string `json:"url" yaml:"url"`
}

type Tag struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type PathItem struct {
	Get    *OperationObject `json:"get,omitempty" yaml:"get,omitempty"`
	Post   *OperationObject `json:"post,omitempty" yaml:"post,omitempty"`
	Put    *OperationObject `json:"put,omitempty" yaml:"put,omitempty"`
	Delete *OperationObject `json:"delete,omitempty" yaml:"delete,omitempty"`
}

// Operation returns the operation for an HTTP method
func (p *PathItem) Operation(method string) *OperationObject {
	switch method {
	case http.MethodGet:
		return p.Get
	case http.MethodPost:
		return p.Post
	case http.MethodPut:
		return p.Put
	case http.MethodDelete:
		return p.Delete
	}
	return nil
}

func (p *PathItem) set(method string, op *OperationObject) {
	switch method {
	case http.MethodGet:
		p.Get = op
	case http.MethodPost:
		p.Post = op
	case http.MethodPut:
		p.Put = op
	case http.MethodDelete:
		p.Delete = op
	}
}

type OperationObject struct {
	OperationID string                `json:"operationId" yaml:"operationId"`
	Summary     string                `json:"summary,omitempty" yaml:"summary,omitempty"`
	Tags        []string              `json:"tags,omitempty" yaml:"tags,omitempty"`
	Parameters  []ParameterObject     `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	RequestBody *RequestBody          `json:"requestBody,omitempty" yaml:"requestBody,omitempty"`
	Responses   map[string]Response   `json:"responses" yaml:"responses"`
	Security    []map[string][]string `json:"security,omitempty" yaml:"security,omitempty"`
	RateLimit   *RateLimitExtension   `json:"x-rateLimit,omitempty" yaml:"x-rateLimit,omitempty"`
	Cache       *CacheExtension       `json:"x-cache,omitempty" yaml:"x-cache,omitempty"`
}

type ParameterObject struct {
	Name        string  `json:"name" yaml:"name"`
	In          string  `json:"in" yaml:"in"`
	Required    bool    `json:"required,omitempty" yaml:"required,omitempty"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Schema      *Schema `json:"schema" yaml:"schema"`
	Example     any     `json:"example,omitempty" yaml:"example,omitempty"`
}

type RequestBody struct {
	Required bool                 `json:"required" yaml:"required"`
	Content  map[string]MediaType `json:"content" yaml:"content"`
}

type MediaType struct {
	Schema  *Schema `json:"schema" yaml:"schema"`
	Example any     `json:"example,omitempty" yaml:"example,omitempty"`
}

type Response struct {
	Description string               `json:"description" yaml:"description"`
	Content     map[string]MediaType `json:"content,omitempty" yaml:"content,omitempty"`
}

type Schema struct {
	Ref           string                  `json:"$ref,omitempty" yaml:"$ref,omitempty"`
	Type          string                  `json:"type,omitempty" yaml:"type,omitempty"`
	Format        string                  `json:"format,omitempty" yaml:"format,omitempty"`
	Description   string                  `json:"description,omitempty" yaml:"description,omitempty"`
	Properties    map[string]*Schema      `json:"properties,omitempty" yaml:"properties,omitempty"`
	Items         *Schema                 `json:"items,omitempty" yaml:"items,omitempty"`
	Required      []string                `json:"required,omitempty" yaml:"required,omitempty"`
	Enum          []string                `json:"enum,omitempty" yaml:"enum,omitempty"`
	Nullable      bool                    `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	ReadOnly      bool                    `json:"readOnly,omitempty" yaml:"readOnly,omitempty"`
	MinLength     *int                    `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength     *int                    `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Pattern       string                  `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Minimum       *float64                `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum       *float64                `json:"maximum,omitempty" yaml:"maximum,omitempty"`
	Default       any                     `json:"default,omitempty" yaml:"default,omitempty"`
	Example       any                     `json:"example,omitempty" yaml:"example,omitempty"`
	Relationships []RelationshipExtension `json:"x-relationships,omitempty" yaml:"x-relationships,omitempty"`
}

type Components struct {
	Schemas         map[string]*Schema        `json:"schemas" yaml:"schemas"`
	SecuritySchemes map[string]SecurityScheme `json:"securitySchemes,omitempty" yaml:"securitySchemes,omitempty"`
}

type SecurityScheme struct {
	Type         string `json:"type" yaml:"type"`
	Scheme       string `json:"scheme" yaml:"scheme"`
	BearerFormat string `json:"bearerFormat,omitempty" yaml:"bearerFormat,omitempty"`
}

type RateLimitExtension struct {
	Requests int    `json:"requests" yaml:"requests"`
	Window   string `json:"window" yaml:"window"`
}

type CacheExtension struct {
	TTL int `json:"ttl" yaml:"ttl"`
}

type RelationshipExtension struct {
	Field       string `json:"field" yaml:"field"`
	TargetTable string `json:"target_table" yaml:"target_table"`
	TargetField string `json:"target_field" yaml:"target_field"`
	Type        string `json:"type" yaml:"type"`
	OnDelete    string `json:"on_delete,omitempty" yaml:"on_delete,omitempty"`
	OnUpdate    string `json:"on_update,omitempty" yaml:"on_update,omitempty"`
}

// Policy is the exposure policy of one endpoint
type Policy struct {
	RateLimit   *RateLimitExtension
	Cache       *CacheExtension
	RequireAuth bool
}

// PolicyFunc resolves the policy of an endpoint. Returning false leaves the
// endpoint out of the document.
type PolicyFunc func(api *TableAPI, ep Endpoint) (Policy, bool)

// Options controls document metadata and per-endpoint policy
type Options struct {
	Title       string
	Version     string
	Description string
	ServerURL   string
	Policy      PolicyFunc
}

const (
	jsonMedia        = "application/json"
	bearerAuthScheme = "bearerAuth"
)

// OpenAPI builds one document covering every table API
func OpenAPI(apis []*TableAPI, opts Options) *Document {
	if opts.Title == "" {
		opts.Title = "Table Designer API"
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}

	doc := &Document{
		OpenAPI: OpenAPIVersion,
		Info:    Info{Title: opts.Title, Version: opts.Version, Description: opts.Description},
		Paths:   map[string]*PathItem{},
		Components: Components{
			Schemas: map[string]*Schema{
				"Error":           errorSchema(),
				"ValidationError": validationErrorSchema(),
			},
		},
	}
	if opts.ServerURL != "" {
		doc.Servers = []Server{{URL: opts.ServerURL}}
	}

	sorted := append([]*TableAPI(nil), apis...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Table.TableName < sorted[j].Table.TableName })

	auth := false
	for _, api := range sorted {
		doc.Tags = append(doc.Tags, Tag{Name: api.Table.TableName, Description: api.Table.DisplayName})
		addComponents(doc, api)

		for _, ep := range api.Endpoints {
			policy := Policy{}
			if opts.Policy != nil {
				p, include := opts.Policy(api, ep)
				if !include {
					continue
				}
				policy = p
			}

			op := operationObject(api, ep)
			op.RateLimit = policy.RateLimit
			op.Cache = policy.Cache
			if policy.RequireAuth {
				op.Security = []map[string][]string{{bearerAuthScheme: {}}}
				op.Responses["401"] = errorResponse("Authentication required")
				auth = true
			}

			item, ok := doc.Paths[ep.Path]
			if !ok {
				item = &PathItem{}
				doc.Paths[ep.Path] = item
			}
			item.set(ep.Method, op)
		}
	}

	if auth {
		doc.Components.SecuritySchemes = map[string]SecurityScheme{
			bearerAuthScheme: {Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
		}
	}
	return doc
}

// JSON renders the document as indented JSON
func (d *Document) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal openapi document: %w", err)
	}
	return data, nil
}

// YAML renders the document as YAML
func (d *Document) YAML() ([]byte, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal openapi document: %w", err)
	}
	return data, nil
}

func addComponents(doc *Document, api *TableAPI) {
	t := &api.Table
	entity := objectSchema(api.Types.Entity, t, validator.OpGet)
	for _, r := range api.Relationships {
		entity.Relationships = append(entity.Relationships, RelationshipExtension{
			Field:       r.SourceField,
			TargetTable: r.TargetTable,
			TargetField: r.TargetField,
			Type:        string(r.RelationshipType),
			OnDelete:    string(r.Cascade.OnDelete),
			OnUpdate:    string(r.Cascade.OnUpdate),
		})
	}

	doc.Components.Schemas[api.Types.Entity.Name] = entity
	doc.Components.Schemas[api.Types.Create.Name] = objectSchema(api.Types.Create, t, validator.OpCreate)
	doc.Components.Schemas[api.Types.Update.Name] = objectSchema(api.Types.Update, t, validator.OpUpdate)

	list := api.Validation[validator.OpList]
	query := &Schema{Type: "object", Properties: map[string]*Schema{}}
	for _, name := range list.Fields {
		query.Properties[name] = ruleSchema(list.Rules[name])
	}
	doc.Components.Schemas[api.Types.QueryParams.Name] = query

	doc.Components.Schemas[api.Types.ListResponse.Name] = &Schema{
		Type:     "object",
		Required: []string{"data", "total", "page", "limit", "total_pages"},
		Properties: map[string]*Schema{
			"data":        {Type: "array", Items: ref(api.Types.Entity.Name)},
			"total":       {Type: "integer"},
			"page":        {Type: "integer"},
			"limit":       {Type: "integer"},
			"total_pages": {Type: "integer"},
		},
	}
}

func objectSchema(td TypeDescriptor, t *schema.TableSchema, op validator.Operation) *Schema {
	s := &Schema{Type: "object", Properties: map[string]*Schema{}}
	for _, tf := range td.Fields {
		f, _ := t.Field(tf.Name)
		rule, _ := validator.RuleFor(f)
		prop := ruleSchema(rule)
		prop.Example = tf.Example
		if op == validator.OpGet {
			prop.ReadOnly = f.IsPrimaryKey
		}
		s.Properties[tf.Name] = prop
		if tf.Required {
			s.Required = append(s.Required, tf.Name)
		}
	}
	return s
}

func ruleSchema(r validator.FieldRule) *Schema {
	return &Schema{
		Type:      r.Type,
		Format:    r.Format,
		Nullable:  r.Nullable,
		MinLength: r.MinLength,
		MaxLength: r.MaxLength,
		Pattern:   r.Pattern,
		Minimum:   r.Minimum,
		Maximum:   r.Maximum,
		Enum:      r.Enum,
		Default:   r.Default,
	}
}

func operationObject(api *TableAPI, ep Endpoint) *OperationObject {
	op := &OperationObject{
		OperationID: ep.Name,
		Summary:     ep.Summary,
		Tags:        []string{api.Table.TableName},
		Responses:   map[string]Response{},
	}

	for _, p := range ep.Parameters {
		op.Parameters = append(op.Parameters, ParameterObject{
			Name:        p.Name,
			In:          p.In,
			Required:    p.Required,
			Description: p.Description,
			Schema:      ruleSchema(p.Rule),
			Example:     p.Example,
		})
	}

	if ep.RequestType != "" {
		op.RequestBody = &RequestBody{
			Required: true,
			Content:  map[string]MediaType{jsonMedia: {Schema: ref(ep.RequestType), Example: ep.RequestExample}},
		}
		op.Responses["422"] = Response{
			Description: "Validation failed",
			Content:     map[string]MediaType{jsonMedia: {Schema: ref("ValidationError")}},
		}
	}

	success := Response{Description: http.StatusText(ep.SuccessStatus)}
	if ep.ResponseType != "" {
		success.Content = map[string]MediaType{jsonMedia: {Schema: ref(ep.ResponseType), Example: ep.ResponseExample}}
	}
	op.Responses[strconv.Itoa(ep.SuccessStatus)] = success

	if strings.Contains(ep.Path, "{id}") {
		op.Responses["404"] = errorResponse("Record not found")
	}
	if ep.Operation == validator.OpList || len(ep.Parameters) > 0 {
		op.Responses["400"] = Response{
			Description: "Invalid parameters",
			Content:     map[string]MediaType{jsonMedia: {Schema: ref("ValidationError")}},
		}
	}
	op.Responses["500"] = errorResponse("Internal error")
	return op
}

func errorResponse(desc string) Response {
	return Response{Description: desc, Content: map[string]MediaType{jsonMedia: {Schema: ref("Error")}}}
}

func ref(name string) *Schema {
	return &Schema{Ref: "#/components/schemas/" + name}
}

func errorSchema() *Schema {
	return &Schema{
		Type:     "object",
		Required: []string{"error"},
		Properties: map[string]*Schema{
			"error":   {Type: "string"},
			"message": {Type: "string"},
		},
	}
}

func validationErrorSchema() *Schema {
	return &Schema{
		Type:     "object",
		Required: []string{"error", "errors"},
		Properties: map[string]*Schema{
			"error": {Type: "string"},
			"errors": {
				Type: "array",
				Items: &Schema{
					Type:     "object",
					Required: []string{"field", "code", "message"},
					Properties: map[string]*Schema{
						"field":   {Type: "string"},
						"code":    {Type: "string"},
						"message": {Type: "string"},
						"value":   {},
					},
				},
			},
			"warnings": {
				Type: "array",
				Items: &Schema{
					Type: "object",
					Properties: map[string]*Schema{
						"field":   {Type: "string"},
						"code":    {Type: "string"},
						"message": {Type: "string"},
					},
				},
			},
		},
	}
}
