package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alc6/tabledesigner/errdefs"
	"github.com/alc6/tabledesigner/providers"
	"github.com/alc6/tabledesigner/schema"
)

const defaultPostgresImage = "postgres:16-alpine"

type PostgreSQLManager struct {
	image     string
	container testcontainers.Container
	db        *sql.DB
	connStr   string
}

func NewPostgreSQLManager(image string) DatabaseManager {
	if image == "" {
		image = defaultPostgresImage
	}
	return &PostgreSQLManager{image: image}
}

func (p *PostgreSQLManager) Setup(ctx context.Context) error {
	slog.Debug("starting postgresql container", "image", p.image)
	container, err := postgres.Run(ctx,
		p.image,
		postgres.WithDatabase("designer"),
		postgres.WithUsername("designer"),
		postgres.WithPassword("designer"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute)),
	)
	if err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	p.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fmt.Errorf("failed to get connection string: %w", err)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	p.db = db
	p.connStr = connStr

	slog.Info("postgresql container ready")
	return nil
}

func (p *PostgreSQLManager) Close(ctx context.Context) error {
	if p.db != nil {
		p.db.Close()
	}
	if p.container != nil {
		return p.container.Terminate(ctx)
	}
	return nil
}

// ExecStatements runs stmts in order inside one transaction
func (p *PostgreSQLManager) ExecStatements(ctx context.Context, stmts []string) error {
	if p.db == nil {
		return fmt.Errorf("database is not set up")
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range stmts {
		slog.Debug("executing statement", "index", i+1, "sql", stmt)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, errdefs.FromDatabase(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	slog.Info("statements applied", "count", len(stmts))
	return nil
}

func (p *PostgreSQLManager) GetDB() *sql.DB {
	return p.db
}

func (p *PostgreSQLManager) GetConnectionString() string {
	return p.connStr
}

type FileSnapshotReader struct{}

func NewFileSnapshotReader() SnapshotReader {
	return &FileSnapshotReader{}
}

func (r *FileSnapshotReader) DiscoverSnapshots(dir string) ([]SnapshotFile, error) {
	return DiscoverSnapshots(dir)
}

func (r *FileSnapshotReader) ReadSnapshot(path string) (*schema.Snapshot, error) {
	return providers.ReadSnapshot(path)
}

// PgDumpInspector prefers pg_dump and falls back to information_schema
type PgDumpInspector struct {
	dump *providers.PgDumpProvider
}

func NewPgDumpInspector() SchemaInspector {
	return &PgDumpInspector{dump: providers.NewPgDumpProvider()}
}

func (i *PgDumpInspector) InspectSchema(ctx context.Context, db *sql.DB, connStr string) (string, error) {
	if i.dump.IsAvailable() {
		return i.dump.DumpSchema(ctx, connStr)
	}
	slog.Debug("pg_dump not available, reading information_schema")
	return describeColumns(ctx, db)
}

const columnsQuery = `
SELECT table_name, column_name, data_type, is_nullable, COALESCE(column_default, '')
FROM information_schema.columns
WHERE table_schema = 'public'
ORDER BY table_name, ordinal_position`

func describeColumns(ctx context.Context, db *sql.DB) (string, error) {
	rows, err := db.QueryContext(ctx, columnsQuery)
	if err != nil {
		return "", fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var sb strings.Builder
	current := ""
	for rows.Next() {
		var table, column, dataType, nullable, def string
		if err := rows.Scan(&table, &column, &dataType, &nullable, &def); err != nil {
			return "", fmt.Errorf("failed to scan column: %w", err)
		}
		if table != current {
			if current != "" {
				sb.WriteString("\n")
			}
			sb.WriteString(fmt.Sprintf("Table: %s\n", table))
			current = table
		}
		sb.WriteString(fmt.Sprintf("  - %s %s", column, dataType))
		if nullable == "NO" {
			sb.WriteString(" NOT NULL")
		}
		if def != "" {
			sb.WriteString(" DEFAULT " + def)
		}
		sb.WriteString("\n")
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("failed to read columns: %w", err)
	}
	return sb.String(), nil
}
