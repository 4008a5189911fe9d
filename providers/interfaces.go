package providers

import (
	"context"
	"fmt"
	"sort"

	"github.com/alc6/tabledesigner/schema"
)

//go:generate mockgen -source=interfaces.go -destination=../mocks/mock_providers.go -package=mocks

// SchemaSource is the collaborator that owns the persisted designer schema
type SchemaSource interface {
	// Name returns the source name for identification
	Name() string

	// FetchTable loads one table. It returns *errdefs.SchemaNotFoundError
	// when the table does not exist.
	FetchTable(ctx context.Context, name string) (*schema.TableSchema, error)

	// FetchProjectTables loads every table of a project
	FetchProjectTables(ctx context.Context, projectID string) ([]schema.TableSchema, error)

	// FetchRelationships loads the relationships whose source is the given table id
	FetchRelationships(ctx context.Context, tableID string) ([]schema.RelationshipSchema, error)
}

// DDLExecutor applies generated statements to the target database
type DDLExecutor interface {
	// ExecStatements runs the statements in order inside one transaction
	ExecStatements(ctx context.Context, stmts []string) error
}

// SourceRegistry manages the available schema sources
type SourceRegistry struct {
	sources map[string]SchemaSource
}

// NewSourceRegistry creates a new source registry
func NewSourceRegistry() *SourceRegistry {
	return &SourceRegistry{
		sources: make(map[string]SchemaSource),
	}
}

// Register adds a source to the registry
func (r *SourceRegistry) Register(source SchemaSource) {
	r.sources[source.Name()] = source
}

// Get retrieves a source by name
func (r *SourceRegistry) Get(name string) (SchemaSource, error) {
	source, exists := r.sources[name]
	if !exists {
		return nil, fmt.Errorf("unknown schema source: %s", name)
	}
	return source, nil
}

// Names returns the registered source names in sorted order
func (r *SourceRegistry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
