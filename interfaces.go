package main

import (
	"context"
	"database/sql"

	"github.com/alc6/tabledesigner/providers"
	"github.com/alc6/tabledesigner/schema"
)

// DatabaseManager handles the lifecycle of a scratch database that plans
// are applied to
type DatabaseManager interface {
	// Setup creates and initializes the database connection
	Setup(ctx context.Context) error
	// Close cleans up database resources
	Close(ctx context.Context) error
	// ExecStatements runs DDL in one transaction
	providers.DDLExecutor
	// GetDB returns the underlying database connection
	GetDB() *sql.DB
	// GetConnectionString returns the DSN of the running database
	GetConnectionString() string
}

// SnapshotReader handles reading schema snapshot files
type SnapshotReader interface {
	// DiscoverSnapshots finds all snapshot files in the given directory
	DiscoverSnapshots(dir string) ([]SnapshotFile, error)
	// ReadSnapshot decodes one snapshot file
	ReadSnapshot(path string) (*schema.Snapshot, error)
}

// SchemaInspector renders the schema materialized in a database
type SchemaInspector interface {
	// InspectSchema describes the tables of the database behind db
	InspectSchema(ctx context.Context, db *sql.DB, connStr string) (string, error)
}
