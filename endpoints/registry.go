// Package endpoints keeps the runtime registry of generated CRUD endpoints
// and their exposure policy.
package endpoints

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alc6/tabledesigner/apigen"
	"github.com/alc6/tabledesigner/registry"
	"github.com/alc6/tabledesigner/schema"
)

// ErrEndpointNotFound is returned for an unknown endpoint id
var ErrEndpointNotFound = errors.New("endpoint not found")

// RateLimit allows Requests per Window
type RateLimit struct {
	Requests int           `json:"requests"`
	Window   time.Duration `json:"window"`
}

// Policy is the default exposure applied to newly registered endpoints
type Policy struct {
	RateLimit   *RateLimit
	CacheTTL    time.Duration
	RequireAuth bool
}

// Registration governs whether and how an endpoint is exposed
type Registration struct {
	Active      bool          `json:"active"`
	RateLimit   *RateLimit    `json:"rate_limit,omitempty"`
	CacheTTL    time.Duration `json:"cache_ttl,omitempty"`
	RequireAuth bool          `json:"require_auth"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Update is a partial change to a Registration. Nil fields are left alone.
type Update struct {
	Active      *bool
	RateLimit   *RateLimit
	CacheTTL    *time.Duration
	RequireAuth *bool
}

// RegisteredEndpoint is a generated endpoint together with its registration
type RegisteredEndpoint struct {
	ID           string          `json:"id"`
	Table        string          `json:"table"`
	Endpoint     apigen.Endpoint `json:"-"`
	Method       string          `json:"method"`
	Path         string          `json:"path"`
	Registration Registration    `json:"registration"`
}

// TableSource lists the tables of a project. *registry.Registry satisfies it.
type TableSource interface {
	ProjectTables(ctx context.Context, projectID string) ([]schema.TableSchema, error)
}

// SyncResult counts the tables touched by a sync
type SyncResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}

type tableState struct {
	api     *apigen.TableAPI
	hash    string
	project string
	ids     []string
}

// Registry maps endpoint ids to registered endpoints
type Registry struct {
	gen    *apigen.Generator
	tables TableSource
	policy Policy
	log    *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	endpoints map[string]*RegisteredEndpoint
	byTable   map[string]*tableState

	lockMu       sync.Mutex
	projectLocks map[string]*sync.Mutex
}

// New creates an endpoint registry
func New(gen *apigen.Generator, tables TableSource, policy Policy, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		gen:          gen,
		tables:       tables,
		policy:       policy,
		log:          logger.With("component", "endpoint_registry"),
		now:          time.Now,
		endpoints:    make(map[string]*RegisteredEndpoint),
		byTable:      make(map[string]*tableState),
		projectLocks: make(map[string]*sync.Mutex),
	}
}

// EndpointID is the deterministic id <table>_<method>_<normalizedPath>
func EndpointID(table, method, path string) string {
	return table + "_" + strings.ToLower(method) + "_" + NormalizePath(path)
}

// NormalizePath turns a route template into an identifier fragment
func NormalizePath(path string) string {
	r := strings.NewReplacer("{", "", "}", "", "-", "_")
	parts := strings.FieldsFunc(r.Replace(path), func(c rune) bool { return c == '/' })
	return strings.Join(parts, "_")
}

// RegisterTableEndpoints generates and registers the endpoints of a table.
// Registering a table again replaces its endpoints but keeps the
// registration of every endpoint whose id is unchanged.
func (r *Registry) RegisterTableEndpoints(table schema.TableSchema, rels []schema.RelationshipSchema) ([]RegisteredEndpoint, error) {
	if rels != nil {
		table.Relationships = rels
	}
	api, err := r.gen.Generate(table, table.Relationships)
	if err != nil {
		return nil, err
	}

	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := map[string]Registration{}
	if st, ok := r.byTable[table.TableName]; ok {
		for _, id := range st.ids {
			previous[id] = r.endpoints[id].Registration
			delete(r.endpoints, id)
		}
	}

	st := &tableState{api: api, hash: api.Table.Hash(), project: table.ProjectID}
	out := make([]RegisteredEndpoint, 0, len(api.Endpoints))
	for _, ep := range api.Endpoints {
		id := EndpointID(table.TableName, ep.Method, ep.Path)
		reg, kept := previous[id]
		if !kept {
			reg = r.defaultRegistration(ep, now)
		}
		re := &RegisteredEndpoint{ID: id, Table: table.TableName, Endpoint: ep, Method: ep.Method, Path: ep.Path, Registration: reg}
		r.endpoints[id] = re
		st.ids = append(st.ids, id)
		out = append(out, *re)
	}
	r.byTable[table.TableName] = st

	r.log.Info("registered table endpoints", "table", table.TableName, "count", len(out))
	return out, nil
}

func (r *Registry) defaultRegistration(ep apigen.Endpoint, now time.Time) Registration {
	reg := Registration{Active: true, RequireAuth: r.policy.RequireAuth, UpdatedAt: now}
	if r.policy.RateLimit != nil {
		rl := *r.policy.RateLimit
		reg.RateLimit = &rl
	}
	if ep.Method == http.MethodGet {
		reg.CacheTTL = r.policy.CacheTTL
	}
	return reg
}

// UnregisterTableEndpoints removes every endpoint of a table and returns
// how many were removed
func (r *Registry) UnregisterTableEndpoints(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unregisterLocked(name)
}

func (r *Registry) unregisterLocked(name string) int {
	st, ok := r.byTable[name]
	if !ok {
		return 0
	}
	for _, id := range st.ids {
		delete(r.endpoints, id)
	}
	delete(r.byTable, name)
	r.log.Info("unregistered table endpoints", "table", name, "count", len(st.ids))
	return len(st.ids)
}

// UpdateEndpointRegistration merges u into the registration of an endpoint
func (r *Registry) UpdateEndpointRegistration(id string, u Update) (RegisteredEndpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	re, ok := r.endpoints[id]
	if !ok {
		return RegisteredEndpoint{}, fmt.Errorf("%w: %s", ErrEndpointNotFound, id)
	}
	reg := &re.Registration
	if u.Active != nil {
		reg.Active = *u.Active
	}
	if u.RateLimit != nil {
		rl := *u.RateLimit
		reg.RateLimit = &rl
	}
	if u.CacheTTL != nil {
		reg.CacheTTL = *u.CacheTTL
	}
	if u.RequireAuth != nil {
		reg.RequireAuth = *u.RequireAuth
	}
	reg.UpdatedAt = r.now()

	r.log.Debug("endpoint registration updated", "id", id, "active", reg.Active)
	return *re, nil
}

// FindEndpoint matches a concrete request path against the registered
// route templates. Inactive endpoints never match. The returned map holds
// the values of the template parameters.
func (r *Registry) FindEndpoint(path, method string) (RegisteredEndpoint, map[string]string, bool) {
	segments := splitPath(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.endpoints))
	for id := range r.endpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		re := r.endpoints[id]
		if !re.Registration.Active || !strings.EqualFold(re.Method, method) {
			continue
		}
		if params, ok := matchTemplate(splitPath(re.Path), segments); ok {
			return *re, params, true
		}
	}
	return RegisteredEndpoint{}, nil, false
}

func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(c rune) bool { return c == '/' })
}

func matchTemplate(template, segments []string) (map[string]string, bool) {
	if len(template) != len(segments) {
		return nil, false
	}
	params := map[string]string{}
	for i, t := range template {
		if strings.HasPrefix(t, "{") && strings.HasSuffix(t, "}") {
			params[t[1:len(t)-1]] = segments[i]
			continue
		}
		if t != segments[i] {
			return nil, false
		}
	}
	return params, true
}

// Endpoint returns a registered endpoint by id
func (r *Registry) Endpoint(id string) (RegisteredEndpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	re, ok := r.endpoints[id]
	if !ok {
		return RegisteredEndpoint{}, false
	}
	return *re, true
}

// Endpoints returns every registered endpoint ordered by id
func (r *Registry) Endpoints() []RegisteredEndpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RegisteredEndpoint, 0, len(r.endpoints))
	for _, re := range r.endpoints {
		out = append(out, *re)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// API returns the generated API of a registered table
func (r *Registry) API(table string) (*apigen.TableAPI, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.byTable[table]
	if !ok {
		return nil, false
	}
	return st.api, true
}

func (r *Registry) projectLock(projectID string) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	l, ok := r.projectLocks[projectID]
	if !ok {
		l = &sync.Mutex{}
		r.projectLocks[projectID] = l
	}
	return l
}

// SyncWithDatabase reconciles the registry with the active tables of a
// project. A table is re-registered only when its schema hash changed.
// Syncs of the same project never overlap.
func (r *Registry) SyncWithDatabase(ctx context.Context, projectID string) (SyncResult, error) {
	lock := r.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	tables, err := r.tables.ProjectTables(ctx, projectID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("failed to load project tables: %w", err)
	}

	var res SyncResult
	active := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		if !t.IsActive() {
			continue
		}
		active[t.TableName] = struct{}{}
		if t.ProjectID == "" {
			t.ProjectID = projectID
		}

		r.mu.RLock()
		st, exists := r.byTable[t.TableName]
		unchanged := exists && st.hash == schemaHash(t)
		r.mu.RUnlock()
		if unchanged {
			continue
		}

		if _, err := r.RegisterTableEndpoints(t, t.Relationships); err != nil {
			return res, fmt.Errorf("failed to register endpoints for %s: %w", t.TableName, err)
		}
		if exists {
			res.Updated++
		} else {
			res.Added++
		}
	}

	r.mu.Lock()
	for name, st := range r.byTable {
		if st.project != projectID {
			continue
		}
		if _, ok := active[name]; !ok {
			r.unregisterLocked(name)
			res.Removed++
		}
	}
	r.mu.Unlock()

	r.log.Info("endpoint sync completed", "project", projectID, "added", res.Added, "updated", res.Updated, "removed", res.Removed)
	return res, nil
}

func schemaHash(t schema.TableSchema) string {
	n := t.Clone()
	n.Normalize()
	return n.Hash()
}

// HandleSchemaChange keeps endpoints in step with the schema registry.
// Pass it to registry.Subscribe.
func (r *Registry) HandleSchemaChange(c registry.Change) {
	switch c.Kind {
	case registry.ChangeAdded, registry.ChangeUpdated:
		if !c.Table.IsActive() {
			r.UnregisterTableEndpoints(c.Table.TableName)
			return
		}
		if _, err := r.RegisterTableEndpoints(c.Table, c.Table.Relationships); err != nil {
			r.log.Error("failed to register endpoints after schema change", "table", c.Table.TableName, "error", err)
		}
	case registry.ChangeRemoved:
		r.UnregisterTableEndpoints(c.Table.TableName)
	}
}

// ExportToOpenAPI builds an OpenAPI document from the active registrations
func (r *Registry) ExportToOpenAPI(opts apigen.Options) *apigen.Document {
	r.mu.RLock()
	apis := make([]*apigen.TableAPI, 0, len(r.byTable))
	regs := make(map[string]Registration, len(r.endpoints))
	for _, st := range r.byTable {
		apis = append(apis, st.api)
	}
	for id, re := range r.endpoints {
		regs[id] = re.Registration
	}
	r.mu.RUnlock()

	opts.Policy = func(api *apigen.TableAPI, ep apigen.Endpoint) (apigen.Policy, bool) {
		reg, ok := regs[EndpointID(api.Table.TableName, ep.Method, ep.Path)]
		if !ok || !reg.Active {
			return apigen.Policy{}, false
		}
		p := apigen.Policy{RequireAuth: reg.RequireAuth}
		if reg.RateLimit != nil {
			p.RateLimit = &apigen.RateLimitExtension{Requests: reg.RateLimit.Requests, Window: reg.RateLimit.Window.String()}
		}
		if reg.CacheTTL > 0 {
			p.Cache = &apigen.CacheExtension{TTL: int(reg.CacheTTL.Seconds())}
		}
		return p, true
	}
	return apigen.OpenAPI(apis, opts)
}
