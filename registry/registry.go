// Package registry caches designer table schemas fetched from a schema
// source and notifies subscribers when the cached set changes.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alc6/tabledesigner/errdefs"
	"github.com/alc6/tabledesigner/providers"
	"github.com/alc6/tabledesigner/schema"
)

const (
	DefaultTTL          = 5 * time.Minute
	DefaultFetchTimeout = 10 * time.Second
)

// ChangeKind describes a cache mutation
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeUpdated ChangeKind = "updated"
	ChangeRemoved ChangeKind = "removed"
)

// Change is published to subscribers after every mutation
type Change struct {
	Kind  ChangeKind
	Table schema.TableSchema
}

// Options tunes the registry. Zero values select the defaults.
type Options struct {
	TTL          time.Duration
	FetchTimeout time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// TableCheck is the result of ValidateTableExists
type TableCheck struct {
	Valid bool
	Table *schema.TableSchema
}

type tableEntry struct {
	table     *schema.TableSchema
	fetchedAt time.Time
}

type projectEntry struct {
	tables    []schema.TableSchema
	fetchedAt time.Time
}

// Registry is the process-wide schema cache. Create one with New and pass
// it to every consumer.
type Registry struct {
	source providers.SchemaSource
	opts   Options
	log    *slog.Logger

	mu       sync.RWMutex
	tables   map[string]tableEntry
	projects map[string]projectEntry

	subMu       sync.RWMutex
	subscribers []func(Change)

	group singleflight.Group
}

// New creates a registry backed by source
func New(source providers.SchemaSource, opts Options) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		source:   source,
		opts:     opts,
		log:      logger.With("component", "schema_registry", "source", source.Name()),
		tables:   make(map[string]tableEntry),
		projects: make(map[string]projectEntry),
	}
}

func (r *Registry) fresh(at time.Time) bool {
	return r.opts.Now().Sub(at) < r.opts.TTL
}

// TableSchema returns the cached table when it is younger than the TTL and
// re-fetches it from the source otherwise
func (r *Registry) TableSchema(ctx context.Context, name string) (*schema.TableSchema, error) {
	r.mu.RLock()
	entry, ok := r.tables[name]
	r.mu.RUnlock()
	if ok && r.fresh(entry.fetchedAt) {
		return entry.table.Clone(), nil
	}

	v, err, shared := r.group.Do("table:"+name, func() (any, error) {
		return r.refreshTable(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.log.Debug("coalesced table refresh", "table", name)
	}
	return v.(*schema.TableSchema).Clone(), nil
}

func (r *Registry) refreshTable(ctx context.Context, name string) (*schema.TableSchema, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.FetchTimeout)
	defer cancel()

	table, err := r.source.FetchTable(ctx, name)
	if err != nil {
		var notFound *errdefs.SchemaNotFoundError
		if errors.As(err, &notFound) {
			r.evict(name)
			return nil, err
		}
		return nil, r.unavailable("fetch table "+name, err)
	}
	if table == nil {
		r.evict(name)
		return nil, &errdefs.SchemaNotFoundError{Table: name}
	}

	key := table.ID
	if key == "" {
		key = table.TableName
	}
	rels, err := r.source.FetchRelationships(ctx, key)
	if err != nil {
		return nil, r.unavailable("fetch relationships of "+name, err)
	}
	if len(rels) > 0 {
		table.Relationships = rels
	}
	table.Normalize()

	r.mu.Lock()
	r.tables[name] = tableEntry{table: table, fetchedAt: r.opts.Now()}
	r.mu.Unlock()

	r.log.Debug("table schema refreshed", "table", name, "fields", len(table.Fields), "relationships", len(table.Relationships))
	return table, nil
}

// ProjectTables returns every table of a project, cached with the same TTL
func (r *Registry) ProjectTables(ctx context.Context, projectID string) ([]schema.TableSchema, error) {
	r.mu.RLock()
	entry, ok := r.projects[projectID]
	r.mu.RUnlock()
	if ok && r.fresh(entry.fetchedAt) {
		return cloneTables(entry.tables), nil
	}

	v, err, _ := r.group.Do("project:"+projectID, func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, r.opts.FetchTimeout)
		defer cancel()

		tables, err := r.source.FetchProjectTables(ctx, projectID)
		if err != nil {
			return nil, r.unavailable("fetch project "+projectID, err)
		}

		now := r.opts.Now()
		r.mu.Lock()
		for i := range tables {
			tables[i].Normalize()
			r.tables[tables[i].TableName] = tableEntry{table: tables[i].Clone(), fetchedAt: now}
		}
		r.projects[projectID] = projectEntry{tables: cloneTables(tables), fetchedAt: now}
		r.mu.Unlock()

		r.log.Debug("project tables refreshed", "project", projectID, "count", len(tables))
		return tables, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneTables(v.([]schema.TableSchema)), nil
}

// RegisterTable validates and caches a table, then publishes ChangeAdded
func (r *Registry) RegisterTable(table schema.TableSchema) error {
	t := table.Clone()
	t.Normalize()
	if err := t.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	r.tables[t.TableName] = tableEntry{table: t, fetchedAt: r.opts.Now()}
	delete(r.projects, t.ProjectID)
	r.mu.Unlock()

	r.log.Info("table registered", "table", t.TableName)
	r.publish(Change{Kind: ChangeAdded, Table: *t.Clone()})
	return nil
}

// UpdateTable replaces a cached table. The table must already be cached.
func (r *Registry) UpdateTable(table schema.TableSchema) error {
	t := table.Clone()
	t.Normalize()
	if err := t.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	old, ok := r.tables[t.TableName]
	if !ok {
		r.mu.Unlock()
		return &errdefs.SchemaNotFoundError{Table: t.TableName, Reason: "not registered"}
	}
	r.tables[t.TableName] = tableEntry{table: t, fetchedAt: r.opts.Now()}
	delete(r.projects, t.ProjectID)
	delete(r.projects, old.table.ProjectID)
	r.mu.Unlock()

	r.log.Info("table updated", "table", t.TableName)
	r.publish(Change{Kind: ChangeUpdated, Table: *t.Clone()})
	return nil
}

// UnregisterTable drops a table from the cache and publishes ChangeRemoved
func (r *Registry) UnregisterTable(name string) error {
	r.mu.Lock()
	old, ok := r.tables[name]
	if !ok {
		r.mu.Unlock()
		return &errdefs.SchemaNotFoundError{Table: name, Reason: "not registered"}
	}
	delete(r.tables, name)
	delete(r.projects, old.table.ProjectID)
	r.mu.Unlock()

	r.log.Info("table unregistered", "table", name)
	r.publish(Change{Kind: ChangeRemoved, Table: *old.table.Clone()})
	return nil
}

// ValidateTableExists reports whether a table exists and is active. Source
// failures are returned as errors.
func (r *Registry) ValidateTableExists(ctx context.Context, name string) (TableCheck, error) {
	table, err := r.TableSchema(ctx, name)
	if err != nil {
		var notFound *errdefs.SchemaNotFoundError
		if errors.As(err, &notFound) {
			return TableCheck{}, nil
		}
		return TableCheck{}, err
	}
	if !table.IsActive() {
		return TableCheck{Table: table}, nil
	}
	return TableCheck{Valid: true, Table: table}, nil
}

// Invalidate forgets a cached table so the next read re-fetches it
func (r *Registry) Invalidate(name string) {
	r.evict(name)
}

// InvalidateAll clears both caches
func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	r.tables = make(map[string]tableEntry)
	r.projects = make(map[string]projectEntry)
	r.mu.Unlock()
}

// Subscribe registers fn to receive every change. fn runs synchronously
// after the cache lock has been released.
func (r *Registry) Subscribe(fn func(Change)) {
	r.subMu.Lock()
	r.subscribers = append(r.subscribers, fn)
	r.subMu.Unlock()
}

func (r *Registry) publish(c Change) {
	r.subMu.RLock()
	subs := slices.Clone(r.subscribers)
	r.subMu.RUnlock()
	for _, fn := range subs {
		fn(c)
	}
}

func (r *Registry) evict(name string) {
	r.mu.Lock()
	if e, ok := r.tables[name]; ok {
		delete(r.projects, e.table.ProjectID)
	}
	delete(r.tables, name)
	r.mu.Unlock()
}

func (r *Registry) unavailable(op string, err error) error {
	var unavailable *errdefs.SourceUnavailableError
	if errors.As(err, &unavailable) {
		return err
	}
	r.log.Warn("schema source unavailable", "op", op, "error", err)
	return &errdefs.SourceUnavailableError{Op: op, Err: fmt.Errorf("%s: %w", r.source.Name(), err)}
}

func cloneTables(tables []schema.TableSchema) []schema.TableSchema {
	out := make([]schema.TableSchema, len(tables))
	for i := range tables {
		out[i] = *tables[i].Clone()
	}
	return out
}
