package apigen

import (
	"encoding/json"
	"errors"
	"go/parser"
	"go/token"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/alc6/tabledesigner/errdefs"
	"github.com/alc6/tabledesigner/schema"
	"github.com/alc6/tabledesigner/validator"
)

func usersTable() schema.TableSchema {
	return schema.TableSchema{
		TableName:   "users",
		DisplayName: "Users",
		Fields: []schema.FieldSchema{
			{FieldName: "id", DataType: schema.TypeText, IsRequired: true, IsPrimaryKey: true},
			{FieldName: "email", DataType: schema.TypeText, IsRequired: true, Config: schema.FieldConfig{MaxLength: schema.Int(120)}},
			{FieldName: "full_name", DataType: schema.TypeText},
			{FieldName: "is_admin", DataType: schema.TypeBoolean, DefaultValue: false},
			{FieldName: "created_at", DataType: schema.TypeDate, IsRequired: true, DefaultValue: "NOW()"},
		},
	}
}

func orderItemsTable() schema.TableSchema {
	return schema.TableSchema{
		TableName: "order_items",
		Fields: []schema.FieldSchema{
			{FieldName: "id", DataType: schema.TypeText, IsPrimaryKey: true, IsRequired: true},
			{FieldName: "user_id", DataType: schema.TypeText, IsRequired: true},
			{FieldName: "unit_price", DataType: schema.TypeNumber, Config: schema.FieldConfig{MinValue: schema.Float(0)}},
			{FieldName: "website_url", DataType: schema.TypeText},
		},
		Relationships: []schema.RelationshipSchema{
			{SourceTable: "order_items", SourceField: "user_id", TargetTable: "users", TargetField: "id", RelationshipType: schema.OneToMany, Cascade: schema.CascadeConfig{OnDelete: schema.CascadeCascade}},
		},
	}
}

func generate(t *testing.T, table schema.TableSchema) *TableAPI {
	t.Helper()
	api, err := NewGenerator("").Generate(table, nil)
	require.NoError(t, err)
	return api
}

func TestNaming(t *testing.T) {
	assert.Equal(t, "OrderItems", TypeName("order_items"))
	assert.Equal(t, "Users", TypeName("users"))
	assert.Equal(t, "UserID", GoFieldName("user_id"))
	assert.Equal(t, "WebsiteURL", GoFieldName("website_url"))
	assert.Equal(t, "F2fa", GoFieldName("2fa"))
}

func TestGenerateTypes(t *testing.T) {
	api := generate(t, usersTable())

	assert.Equal(t, "Users", api.TypeName)
	assert.Equal(t, "Users", api.Types.Entity.Name)
	assert.Equal(t, "CreateUsersRequest", api.Types.Create.Name)
	assert.Equal(t, "UpdateUsersRequest", api.Types.Update.Name)
	assert.Equal(t, "UsersQueryParams", api.Types.QueryParams.Name)
	assert.Equal(t, "UsersListResponse", api.Types.ListResponse.Name)

	assert.Len(t, api.Types.Entity.Fields, 5)

	var createNames []string
	for _, f := range api.Types.Create.Fields {
		createNames = append(createNames, f.Name)
	}
	assert.Equal(t, []string{"email", "full_name", "is_admin", "created_at"}, createNames, "primary key is not writable on create")

	var updateNames []string
	for _, f := range api.Types.Update.Fields {
		updateNames = append(updateNames, f.Name)
		assert.False(t, f.Required)
	}
	assert.Equal(t, []string{"email", "full_name", "is_admin"}, updateNames, "immutable fields are not updatable")
}

func TestGenerateEndpoints(t *testing.T) {
	api := generate(t, usersTable())
	require.Len(t, api.Endpoints, 5)

	want := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"listUsers", http.MethodGet, "/api/designer/tables/users", http.StatusOK},
		{"getUsersById", http.MethodGet, "/api/designer/tables/users/{id}", http.StatusOK},
		{"createUsers", http.MethodPost, "/api/designer/tables/users", http.StatusCreated},
		{"updateUsers", http.MethodPut, "/api/designer/tables/users/{id}", http.StatusOK},
		{"deleteUsers", http.MethodDelete, "/api/designer/tables/users/{id}", http.StatusNoContent},
	}
	for i, w := range want {
		ep := api.Endpoints[i]
		assert.Equal(t, w.name, ep.Name)
		assert.Equal(t, w.method, ep.Method)
		assert.Equal(t, w.path, ep.Path)
		assert.Equal(t, w.status, ep.SuccessStatus)
	}

	create, ok := api.Endpoint(validator.OpCreate)
	require.True(t, ok)
	assert.Equal(t, "user@example.com", create.RequestExample["email"])
	assert.Equal(t, "Example Name", create.RequestExample["full_name"])
	assert.Equal(t, true, create.RequestExample["is_admin"])
	assert.Equal(t, "2024-01-15T10:30:00Z", create.RequestExample["created_at"])

	get, _ := api.Endpoint(validator.OpGet)
	_, err := uuid.Parse(get.Parameters[0].Example.(string))
	assert.NoError(t, err, "example ids are uuids")
	assert.Equal(t, get.Parameters[0].Example, generate(t, usersTable()).Endpoints[1].Parameters[0].Example, "examples are deterministic")

	assert.Contains(t, api.Validation, validator.OpCreate)
	assert.Contains(t, api.Validation, validator.OpUpdate)
	assert.Equal(t, []string{"page", "limit", "sort", "order", "search"}, api.Validation[validator.OpList].Fields)
}

func TestGenerateRelationshipFilters(t *testing.T) {
	api := generate(t, orderItemsTable())
	assert.Equal(t, "OrderItems", api.TypeName)
	require.Len(t, api.Relationships, 1)

	list, _ := api.Endpoint(validator.OpList)
	var names []string
	for _, p := range list.Parameters {
		names = append(names, p.Name)
	}
	assert.Contains(t, names, "user_id__eq")

	create, _ := api.Endpoint(validator.OpCreate)
	assert.Equal(t, 19.99, create.RequestExample["unit_price"])
	assert.Equal(t, "https://example.com", create.RequestExample["website_url"])
}

func TestGenerateRejectsInactiveAndInvalid(t *testing.T) {
	gen := NewGenerator("/v1/")
	assert.Equal(t, "/v1", gen.BasePath())

	archived := usersTable()
	archived.Status = schema.StatusArchived
	_, err := gen.Generate(archived, nil)
	var notFound *errdefs.SchemaNotFoundError
	assert.True(t, errors.As(err, &notFound))

	bad := usersTable()
	bad.Fields[1].DataType = "json"
	_, err = gen.Generate(bad, nil)
	var unsupported *errdefs.UnsupportedTypeError
	assert.True(t, errors.As(err, &unsupported))
}

func TestOpenAPIDocument(t *testing.T) {
	users := generate(t, usersTable())
	items := generate(t, orderItemsTable())

	doc := OpenAPI([]*TableAPI{items, users}, Options{
		Title: "Shop",
		Policy: func(api *TableAPI, ep Endpoint) (Policy, bool) {
			if ep.Operation == validator.OpDelete && api.Table.TableName == "order_items" {
				return Policy{}, false
			}
			p := Policy{RateLimit: &RateLimitExtension{Requests: 100, Window: "1m0s"}}
			if ep.Method == http.MethodGet {
				p.Cache = &CacheExtension{TTL: 300}
			}
			if ep.Method != http.MethodGet {
				p.RequireAuth = true
			}
			return p, true
		},
	})

	assert.Equal(t, "3.0.3", doc.OpenAPI)
	assert.Contains(t, doc.Components.Schemas, "Error")
	assert.Contains(t, doc.Components.Schemas, "ValidationError")
	assert.Contains(t, doc.Components.Schemas, "CreateUsersRequest")
	assert.Contains(t, doc.Components.SecuritySchemes, "bearerAuth")

	list := doc.Paths["/api/designer/tables/users"].Get
	require.NotNil(t, list)
	assert.Equal(t, "listUsers", list.OperationID)
	assert.Equal(t, 300, list.Cache.TTL)
	assert.Empty(t, list.Security)

	create := doc.Paths["/api/designer/tables/users"].Post
	require.NotNil(t, create)
	assert.Equal(t, 100, create.RateLimit.Requests)
	assert.Nil(t, create.Cache)
	assert.Contains(t, create.Responses, "422")
	assert.Contains(t, create.Responses, "401")

	assert.Nil(t, doc.Paths["/api/designer/tables/order_items/{id}"].Delete, "excluded endpoints are left out")
	require.Len(t, doc.Components.Schemas["OrderItems"].Relationships, 1)
	assert.Equal(t, "users", doc.Components.Schemas["OrderItems"].Relationships[0].TargetTable)

	data, err := doc.JSON()
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, string(data), `"x-rateLimit"`)
	assert.Contains(t, string(data), `"x-cache"`)
	assert.Contains(t, string(data), `"$ref": "#/components/schemas/Users"`)

	out, err := doc.YAML()
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, "3.0.3", back["openapi"])
	assert.Contains(t, string(out), "x-relationships:")
}

func TestOpenAPIWithoutAuth(t *testing.T) {
	doc := OpenAPI([]*TableAPI{generate(t, usersTable())}, Options{})
	assert.Empty(t, doc.Components.SecuritySchemes)
	assert.Equal(t, "Table Designer API", doc.Info.Title)
	assert.Len(t, doc.Paths, 2)
}

func TestBundle(t *testing.T) {
	src, err := Bundle("shopapi", []*TableAPI{generate(t, usersTable()), generate(t, orderItemsTable())})
	require.NoError(t, err)

	code := string(src)
	assert.True(t, strings.HasPrefix(code, "// Code generated by tabledesigner. DO NOT EDIT."))
	assert.Contains(t, code, "package shopapi")
	assert.Contains(t, code, "type CreateUsersRequest struct")
	assert.Contains(t, code, "type UsersHandler interface")
	assert.Contains(t, code, "GetUsersByID(ctx context.Context, id string) (*Users, error)")
	assert.Regexp(t, `FullName\s+\*string`, code)
	assert.Contains(t, code, `"time"`)

	_, err = parser.ParseFile(token.NewFileSet(), "bundle.go", src, parser.AllErrors)
	assert.NoError(t, err)
}
