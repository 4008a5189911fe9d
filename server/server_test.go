package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alc6/tabledesigner/apigen"
	"github.com/alc6/tabledesigner/endpoints"
	"github.com/alc6/tabledesigner/errdefs"
	"github.com/alc6/tabledesigner/providers"
	"github.com/alc6/tabledesigner/registry"
	"github.com/alc6/tabledesigner/schema"
	"github.com/alc6/tabledesigner/validator"
)

const userID = "0b6f5e3c-8a51-4d6b-9d1e-2f0c6a7b8c9d"

func testSnapshot() schema.Snapshot {
	return schema.Snapshot{
		ProjectID: "shop",
		Tables: []schema.TableSchema{{
			TableName: "users",
			ProjectID: "shop",
			Fields: []schema.FieldSchema{
				{FieldName: "id", DataType: schema.TypeText, IsRequired: true, IsPrimaryKey: true},
				{FieldName: "email", DataType: schema.TypeText, IsRequired: true, Config: schema.FieldConfig{MaxLength: schema.Int(255)}},
				{FieldName: "age", DataType: schema.TypeNumber},
				{FieldName: "active", DataType: schema.TypeBoolean},
				{FieldName: "created_at", DataType: schema.TypeDate, IsRequired: true, Immutable: true, DefaultValue: "NOW()"},
			},
		}},
	}
}

type recordingBackend struct {
	calls []Call
	err   error
}

func (b *recordingBackend) Execute(_ context.Context, call Call) (any, error) {
	b.calls = append(b.calls, call)
	if b.err != nil {
		return nil, b.err
	}
	return map[string]any{"ok": true}, nil
}

type fixture struct {
	handler   http.Handler
	endpoints *endpoints.Registry
	backend   *recordingBackend
}

func newFixture(t *testing.T, policy endpoints.Policy) *fixture {
	t.Helper()
	schemas := registry.New(providers.NewSnapshotSource(testSnapshot()), registry.Options{})
	eps := endpoints.New(apigen.NewGenerator(""), schemas, policy, nil)
	_, err := eps.SyncWithDatabase(context.Background(), "shop")
	require.NoError(t, err)

	backend := &recordingBackend{}
	srv := New(eps, validator.New(schemas, nil), backend, Options{})
	return &fixture{handler: srv.Handler(), endpoints: eps, backend: backend}
}

func (f *fixture) do(method, target, body string, header ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestGatewayCreate(t *testing.T) {
	f := newFixture(t, endpoints.Policy{})

	rec := f.do(http.MethodPost, "/api/designer/tables/users", `{"email":"a@example.com","age":42}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, f.backend.calls, 1)

	call := f.backend.calls[0]
	assert.Equal(t, "users", call.Request.Table)
	assert.Equal(t, validator.OpCreate, call.Request.Operation)
	assert.Equal(t, "a@example.com", call.Data["email"])
	assert.Contains(t, call.Data, "age")
}

func TestGatewayValidationFailure(t *testing.T) {
	f := newFixture(t, endpoints.Policy{})

	rec := f.do(http.MethodPost, "/api/designer/tables/users", `{"age":"old"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, f.backend.calls)

	body := decode(t, rec)
	assert.Equal(t, "request validation failed", body["error"])
	assert.NotContains(t, body, "valid")
	errs, ok := body["errors"].([]any)
	require.True(t, ok)
	fields := map[string]bool{}
	for _, e := range errs {
		fields[e.(map[string]any)["field"].(string)] = true
	}
	assert.True(t, fields["email"])
	assert.True(t, fields["age"])
}

func TestGatewayNumericBoolean(t *testing.T) {
	f := newFixture(t, endpoints.Policy{})

	t.Run("one_and_zero_accepted", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/designer/tables/users", `{"email":"a@example.com","active":1}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.Len(t, f.backend.calls, 1)
		assert.Equal(t, true, f.backend.calls[0].Data["active"])

		rec = f.do(http.MethodPost, "/api/designer/tables/users", `{"email":"b@example.com","active":0}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, false, f.backend.calls[1].Data["active"])
	})

	t.Run("other_numbers_rejected", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/designer/tables/users", `{"email":"c@example.com","active":2}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		errs, ok := decode(t, rec)["errors"].([]any)
		require.True(t, ok)
		require.Len(t, errs, 1)
		assert.Equal(t, "active", errs[0].(map[string]any)["field"])
	})
}

func TestGatewayParamsAndQuery(t *testing.T) {
	f := newFixture(t, endpoints.Policy{})

	rec := f.do(http.MethodGet, "/api/designer/tables/users/not-a-uuid", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(http.MethodGet, "/api/designer/tables/users/"+userID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, userID, f.backend.calls[0].Request.Params["id"])

	rec = f.do(http.MethodGet, "/api/designer/tables/users?page=0", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(http.MethodGet, "/api/designer/tables/users?page=2&limit=10&email__ilike=a%25", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	q := f.backend.calls[1].Request.Query
	assert.Equal(t, "2", q["page"])
	assert.Equal(t, "a%", q["email__ilike"])
}

func TestGatewayDeleteNoContent(t *testing.T) {
	f := newFixture(t, endpoints.Policy{})

	rec := f.do(http.MethodDelete, "/api/designer/tables/users/"+userID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestGatewayUnknownEndpoint(t *testing.T) {
	f := newFixture(t, endpoints.Policy{})

	rec := f.do(http.MethodGet, "/api/designer/tables/orders", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	id := endpoints.EndpointID("users", http.MethodGet, "/api/designer/tables/users")
	_, err := f.endpoints.UpdateEndpointRegistration(id, endpoints.Update{Active: new(bool)})
	require.NoError(t, err)
	rec = f.do(http.MethodGet, "/api/designer/tables/users", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "inactive endpoints are not served")
}

func TestGatewayBadJSON(t *testing.T) {
	f := newFixture(t, endpoints.Policy{})

	rec := f.do(http.MethodPost, "/api/designer/tables/users", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/designer/tables/users", `null`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGatewayPolicyHeaders(t *testing.T) {
	f := newFixture(t, endpoints.Policy{
		RateLimit:   &endpoints.RateLimit{Requests: 100, Window: time.Minute},
		CacheTTL:    5 * time.Minute,
		RequireAuth: true,
	})

	rec := f.do(http.MethodGet, "/api/designer/tables/users", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))

	rec = f.do(http.MethodGet, "/api/designer/tables/users", "", "Authorization", "Bearer token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("X-RateLimit-Window"))
	assert.Equal(t, "public, max-age=300", rec.Header().Get("Cache-Control"))

	rec = f.do(http.MethodPost, "/api/designer/tables/users", `{"email":"a@example.com"}`, "Authorization", "Bearer token")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestGatewayBackendError(t *testing.T) {
	f := newFixture(t, endpoints.Policy{})
	f.backend.err = &errdefs.SourceUnavailableError{Op: "insert", Err: errors.New("connection refused")}

	rec := f.do(http.MethodPost, "/api/designer/tables/users", `{"email":"a@example.com"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "connection refused")
}

func TestOpenAPIRoute(t *testing.T) {
	f := newFixture(t, endpoints.Policy{})

	rec := f.do(http.MethodGet, "/api/designer/openapi.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode(t, rec)
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/api/designer/tables/users")
	assert.Contains(t, paths, "/api/designer/tables/users/{id}")
}

func TestSyncRoute(t *testing.T) {
	f := newFixture(t, endpoints.Policy{})

	rec := f.do(http.MethodPost, "/api/designer/projects/shop/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"added": float64(0), "updated": float64(0), "removed": float64(0)}, decode(t, rec))

	rec = f.do(http.MethodGet, "/api/designer/projects/shop/sync", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, endpoints.Policy{})

	rec := f.do(http.MethodOptions, "/api/designer/tables/users", "",
		"Origin", "http://localhost:3000",
		"Access-Control-Request-Method", http.MethodPost)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestDryRunBackend(t *testing.T) {
	out, err := DryRunBackend{}.Execute(context.Background(), Call{
		Endpoint: endpoints.RegisteredEndpoint{ID: "users_post_api_designer_tables_users"},
		Request:  validator.Request{Table: "users", Operation: validator.OpCreate},
		Data:     map[string]any{"email": "a@example.com"},
	})
	require.NoError(t, err)
	resp := out.(map[string]any)
	assert.Equal(t, true, resp["dry_run"])
	assert.Equal(t, "create", resp["operation"])
	assert.Contains(t, resp, "data")
}
