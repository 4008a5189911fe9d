package providers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/alc6/tabledesigner/errdefs"
	"github.com/alc6/tabledesigner/schema"
)

// MetadataDDL creates the tables in which the designer persists schemas
const MetadataDDL = `
create table if not exists designer_tables (
    id text primary key,
    project_id text not null,
    table_name text not null unique,
    display_name text not null default '',
    status text not null default 'active',
    searchable_fields text[] not null default '{}',
    default_sort text not null default '',
    default_order text not null default '',
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);

create table if not exists designer_fields (
    id text primary key,
    table_id text not null references designer_tables (id) on delete cascade,
    name text not null,
    field_name text not null,
    data_type text not null,
    is_required boolean not null default false,
    is_primary_key boolean not null default false,
    immutable boolean not null default false,
    default_value jsonb,
    field_config jsonb not null default '{}',
    field_order integer not null default 0,
    unique (table_id, field_name)
);

create table if not exists designer_relationships (
    id text primary key,
    source_table_id text not null references designer_tables (id) on delete cascade,
    source_field text not null,
    target_table_id text not null references designer_tables (id) on delete cascade,
    target_field text not null,
    relationship_type text not null default 'one_to_many',
    on_delete text not null default '',
    on_update text not null default ''
);
`

// PostgresSource reads designer metadata through database/sql and lib/pq
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource creates a source over an open connection
func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// OpenPostgresSource opens a lib/pq connection and verifies it
func OpenPostgresSource(ctx context.Context, dsn string) (*PostgresSource, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresSource{db: db}, nil
}

// EnsureMetadataTables creates the metadata tables when missing
func EnsureMetadataTables(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, MetadataDDL); err != nil {
		return fmt.Errorf("failed to create metadata tables: %w", err)
	}
	return nil
}

// Name returns the source name
func (p *PostgresSource) Name() string {
	return "postgres"
}

// DB exposes the underlying connection
func (p *PostgresSource) DB() *sql.DB {
	return p.db
}

// Close releases the connection
func (p *PostgresSource) Close() error {
	return p.db.Close()
}

const tableColumns = `id, project_id, table_name, display_name, status, searchable_fields,
	default_sort, default_order, created_at, updated_at`

// FetchTable loads one table with its fields
func (p *PostgresSource) FetchTable(ctx context.Context, name string) (*schema.TableSchema, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+tableColumns+` FROM designer_tables WHERE table_name = $1`, name)

	table, err := scanTable(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &errdefs.SchemaNotFoundError{Table: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load table %s: %w", name, err)
	}

	fields, err := p.fetchFields(ctx, table.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load fields for table %s: %w", name, err)
	}
	table.Fields = fields
	table.Normalize()

	slog.Debug("fetched table schema", "table", name, "fields", len(fields))
	return table, nil
}

// FetchProjectTables loads every table of a project ordered by name
func (p *PostgresSource) FetchProjectTables(ctx context.Context, projectID string) ([]schema.TableSchema, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+tableColumns+` FROM designer_tables WHERE project_id = $1 ORDER BY table_name`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query project tables: %w", err)
	}
	defer rows.Close()

	var tables []schema.TableSchema
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tables {
		fields, err := p.fetchFields(ctx, tables[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load fields for table %s: %w", tables[i].TableName, err)
		}
		tables[i].Fields = fields

		rels, err := p.FetchRelationships(ctx, tables[i].ID)
		if err != nil {
			return nil, err
		}
		tables[i].Relationships = rels
		tables[i].Normalize()
	}

	slog.Debug("fetched project tables", "project", projectID, "count", len(tables))
	return tables, nil
}

// FetchRelationships loads relationships whose source is the table
func (p *PostgresSource) FetchRelationships(ctx context.Context, tableID string) ([]schema.RelationshipSchema, error) {
	query := `
		SELECT r.id, s.table_name, r.source_field, t.table_name, r.target_field,
			r.relationship_type, r.on_delete, r.on_update
		FROM designer_relationships r
		JOIN designer_tables s ON s.id = r.source_table_id
		JOIN designer_tables t ON t.id = r.target_table_id
		WHERE r.source_table_id = $1
		ORDER BY r.id
	`

	rows, err := p.db.QueryContext(ctx, query, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	var rels []schema.RelationshipSchema
	for rows.Next() {
		var r schema.RelationshipSchema
		var relType, onDelete, onUpdate string
		if err := rows.Scan(&r.ID, &r.SourceTable, &r.SourceField, &r.TargetTable, &r.TargetField, &relType, &onDelete, &onUpdate); err != nil {
			return nil, err
		}
		r.RelationshipType = schema.RelationshipType(relType)
		r.Cascade = schema.CascadeConfig{OnDelete: schema.CascadePolicy(onDelete), OnUpdate: schema.CascadePolicy(onUpdate)}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

func (p *PostgresSource) fetchFields(ctx context.Context, tableID string) ([]schema.FieldSchema, error) {
	query := `
		SELECT id, name, field_name, data_type, is_required, is_primary_key, immutable,
			default_value, field_config, field_order
		FROM designer_fields
		WHERE table_id = $1
		ORDER BY field_order, field_name
	`

	rows, err := p.db.QueryContext(ctx, query, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []schema.FieldSchema
	for rows.Next() {
		var f schema.FieldSchema
		var dataType string
		var defaultValue, config []byte

		if err := rows.Scan(&f.ID, &f.Name, &f.FieldName, &dataType, &f.IsRequired, &f.IsPrimaryKey, &f.Immutable, &defaultValue, &config, &f.Order); err != nil {
			return nil, err
		}
		f.DataType = schema.DataType(dataType)

		if len(defaultValue) > 0 {
			if err := json.Unmarshal(defaultValue, &f.DefaultValue); err != nil {
				return nil, fmt.Errorf("failed to decode default of %s: %w", f.FieldName, err)
			}
		}
		if len(config) > 0 {
			if err := json.Unmarshal(config, &f.Config); err != nil {
				return nil, fmt.Errorf("failed to decode config of %s: %w", f.FieldName, err)
			}
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTable(row rowScanner) (*schema.TableSchema, error) {
	var t schema.TableSchema
	var status string
	var searchable []string
	if err := row.Scan(&t.ID, &t.ProjectID, &t.TableName, &t.DisplayName, &status, pq.Array(&searchable),
		&t.DefaultSort, &t.DefaultOrder, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = schema.TableStatus(status)
	t.SearchableFields = searchable
	return &t, nil
}

// SaveTable upserts a table and its fields and relationships in one transaction
func (p *PostgresSource) SaveTable(ctx context.Context, t schema.TableSchema) (err error) {
	if t.ID == "" {
		t.ID = t.TableName
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	searchable := t.SearchableFields
	if searchable == nil {
		searchable = []string{}
	}
	status := t.Status
	if status == "" {
		status = schema.StatusActive
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO designer_tables (id, project_id, table_name, display_name, status, searchable_fields, default_sort, default_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			project_id = EXCLUDED.project_id, table_name = EXCLUDED.table_name,
			display_name = EXCLUDED.display_name, status = EXCLUDED.status,
			searchable_fields = EXCLUDED.searchable_fields, default_sort = EXCLUDED.default_sort,
			default_order = EXCLUDED.default_order, updated_at = now()`,
		t.ID, t.ProjectID, t.TableName, t.DisplayName, string(status), pq.Array(searchable), t.DefaultSort, t.DefaultOrder)
	if err != nil {
		return errdefs.FromDatabase(err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM designer_fields WHERE table_id = $1`, t.ID); err != nil {
		return errdefs.FromDatabase(err)
	}
	for _, f := range t.Fields {
		id := f.ID
		if id == "" {
			id = t.ID + "." + f.FieldName
		}
		var def []byte
		if f.DefaultValue != nil {
			if def, err = json.Marshal(f.DefaultValue); err != nil {
				return err
			}
		}
		cfg, err := json.Marshal(f.Config)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO designer_fields (id, table_id, name, field_name, data_type, is_required, is_primary_key, immutable, default_value, field_config, field_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			id, t.ID, f.Name, f.FieldName, string(f.DataType), f.IsRequired, f.IsPrimaryKey, f.Immutable, nullJSON(def), cfg, f.Order)
		if err != nil {
			return errdefs.FromDatabase(err)
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM designer_relationships WHERE source_table_id = $1`, t.ID); err != nil {
		return errdefs.FromDatabase(err)
	}
	for _, r := range t.Relationships {
		id := r.ID
		if id == "" {
			id = r.Key()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO designer_relationships (id, source_table_id, source_field, target_table_id, target_field, relationship_type, on_delete, on_update)
			SELECT $1, $2, $3, t.id, $5, $6, $7, $8 FROM designer_tables t WHERE t.table_name = $4`,
			id, t.ID, r.SourceField, r.TargetTable, r.TargetField, string(r.RelationshipType), string(r.Cascade.OnDelete), string(r.Cascade.OnUpdate))
		if err != nil {
			return errdefs.FromDatabase(err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit table %s: %w", t.TableName, err)
	}
	slog.Info("saved table schema", "table", t.TableName, "fields", len(t.Fields), "relationships", len(t.Relationships))
	return nil
}

func nullJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}
