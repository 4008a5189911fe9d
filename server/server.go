// Package server exposes the generated CRUD surface over HTTP. Requests are
// resolved against the endpoint registry, validated, and handed to a Backend.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"

	"github.com/alc6/tabledesigner/apigen"
	"github.com/alc6/tabledesigner/endpoints"
	"github.com/alc6/tabledesigner/errdefs"
	"github.com/alc6/tabledesigner/validator"
)

const maxBodyBytes = 1 << 20

// Endpoints is the subset of the endpoint registry the gateway needs
type Endpoints interface {
	FindEndpoint(path, method string) (endpoints.RegisteredEndpoint, map[string]string, bool)
	SyncWithDatabase(ctx context.Context, projectID string) (endpoints.SyncResult, error)
	ExportToOpenAPI(opts apigen.Options) *apigen.Document
}

// Validator checks a request against the current table schema
type Validator interface {
	Validate(ctx context.Context, req validator.Request) (*validator.Result, error)
}

// Call is a validated request ready for execution
type Call struct {
	Endpoint endpoints.RegisteredEndpoint
	Request  validator.Request
	// Data holds the coerced body values
	Data map[string]any
}

// Backend executes validated calls
type Backend interface {
	Execute(ctx context.Context, call Call) (any, error)
}

// DryRunBackend acknowledges every call without touching storage
type DryRunBackend struct{}

func (DryRunBackend) Execute(_ context.Context, call Call) (any, error) {
	resp := map[string]any{
		"dry_run":   true,
		"endpoint":  call.Endpoint.ID,
		"table":     call.Request.Table,
		"operation": string(call.Request.Operation),
	}
	if len(call.Request.Params) > 0 {
		resp["params"] = call.Request.Params
	}
	if len(call.Data) > 0 {
		resp["data"] = call.Data
	}
	return resp, nil
}

// Options configures the HTTP surface
type Options struct {
	BasePath    string
	CORSOrigins []string
	OpenAPI     apigen.Options
	Logger      *slog.Logger
}

// Server routes designer API requests
type Server struct {
	endpoints Endpoints
	validator Validator
	backend   Backend
	opts      Options
	log       *slog.Logger
}

// New creates a server. A nil backend selects DryRunBackend.
func New(eps Endpoints, v Validator, backend Backend, opts Options) *Server {
	if backend == nil {
		backend = DryRunBackend{}
	}
	if opts.BasePath == "" {
		opts.BasePath = apigen.DefaultBasePath
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		endpoints: eps,
		validator: v,
		backend:   backend,
		opts:      opts,
		log:       opts.Logger.With("component", "server"),
	}
}

// Handler returns the routed handler wrapped in CORS
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/designer/openapi.json", s.handleOpenAPI)
	mux.HandleFunc("POST /api/designer/projects/{project}/sync", s.handleSync)
	base := strings.TrimSuffix(s.opts.BasePath, "/")
	mux.HandleFunc(base+"/", s.handleGateway)

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length", "Authorization"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Window"},
	})
	return c.Handler(mux)
}

// ListenAndServe runs the server until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	doc := s.endpoints.ExportToOpenAPI(s.opts.OpenAPI)
	data, err := doc.JSON()
	if err != nil {
		s.writeError(w, r, fmt.Errorf("failed to encode openapi document: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	res, err := s.endpoints.SyncWithDatabase(r.Context(), project)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGateway(w http.ResponseWriter, r *http.Request) {
	ep, params, ok := s.endpoints.FindEndpoint(r.URL.Path, r.Method)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no endpoint registered for " + r.Method + " " + r.URL.Path})
		return
	}

	setPolicyHeaders(w, ep)
	if ep.Registration.RequireAuth && !hasBearer(r) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authorization required"})
		return
	}

	req := validator.Request{
		Table:     ep.Table,
		Operation: ep.Endpoint.Operation,
		Params:    params,
		Query:     queryValues(r),
	}
	if req.Operation == validator.OpCreate || req.Operation == validator.OpUpdate {
		body, err := decodeBody(w, r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		req.Body = body
	}

	res, err := s.validator.Validate(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !res.Valid {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:    "request validation failed",
			Errors:   res.Errors,
			Warnings: res.Warnings,
		})
		return
	}

	out, err := s.backend.Execute(r.Context(), Call{Endpoint: ep, Request: req, Data: res.Data})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := ep.Endpoint.SuccessStatus
	if status == 0 {
		status = http.StatusOK
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, out)
}

func setPolicyHeaders(w http.ResponseWriter, ep endpoints.RegisteredEndpoint) {
	reg := ep.Registration
	if reg.RateLimit != nil {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(reg.RateLimit.Requests))
		w.Header().Set("X-RateLimit-Window", strconv.Itoa(int(reg.RateLimit.Window.Seconds())))
	}
	if ep.Method == http.MethodGet && reg.CacheTTL > 0 {
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(reg.CacheTTL.Seconds())))
	} else {
		w.Header().Set("Cache-Control", "no-store")
	}
}

func hasBearer(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	return ok && strings.TrimSpace(token) != ""
}

// queryValues flattens single values to strings and keeps repeated keys as lists
func queryValues(r *http.Request) map[string]any {
	q := r.URL.Query()
	if len(q) == 0 {
		return nil
	}
	out := make(map[string]any, len(q))
	for k, vals := range q {
		if len(vals) == 1 {
			out[k] = vals[0]
			continue
		}
		list := make([]any, len(vals))
		for i, v := range vals {
			list[i] = v
		}
		out[k] = list
	}
	return out
}

func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if body == nil {
		return nil, errors.New("request body must be a JSON object")
	}
	return body, nil
}

// errorBody matches the ValidationError schema of the generated document
type errorBody struct {
	Error    string                   `json:"error"`
	Errors   errdefs.ValidationErrors `json:"errors,omitempty"`
	Warnings []validator.Warning      `json:"warnings,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errdefs.HTTPStatus(err)
	body := errorBody{Error: err.Error()}
	var verrs errdefs.ValidationErrors
	if errors.As(err, &verrs) {
		body.Errors = verrs
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		s.log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
