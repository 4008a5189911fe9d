package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/alc6/tabledesigner/errdefs"
	"github.com/alc6/tabledesigner/schema"
)

// FileSource serves a project snapshot read from a JSON file
type FileSource struct {
	path string

	mu       sync.RWMutex
	snapshot *schema.Snapshot
}

// NewFileSource creates a source backed by the snapshot file at path.
// The file is read lazily and re-read by Reload.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// NewSnapshotSource creates a source over an in-memory snapshot
func NewSnapshotSource(snapshot schema.Snapshot) *FileSource {
	s := snapshot
	for i := range s.Tables {
		if s.Tables[i].ProjectID == "" {
			s.Tables[i].ProjectID = s.ProjectID
		}
		s.Tables[i].Normalize()
	}
	return &FileSource{snapshot: &s}
}

// ReadSnapshot decodes a snapshot file and normalizes its tables
func ReadSnapshot(path string) (*schema.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}

	var snap schema.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	for i := range snap.Tables {
		if snap.Tables[i].ProjectID == "" {
			snap.Tables[i].ProjectID = snap.ProjectID
		}
		snap.Tables[i].Normalize()
	}
	slog.Debug("read schema snapshot", "path", path, "tables", len(snap.Tables))
	return &snap, nil
}

// Name returns the source name
func (s *FileSource) Name() string {
	return "file"
}

// Reload re-reads the snapshot file
func (s *FileSource) Reload() error {
	if s.path == "" {
		return nil
	}
	snap, err := ReadSnapshot(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
	return nil
}

func (s *FileSource) load() (*schema.Snapshot, error) {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}
	if err := s.Reload(); err != nil {
		return nil, &errdefs.SourceUnavailableError{Op: "read snapshot", Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, nil
}

// FetchTable returns one table of the snapshot
func (s *FileSource) FetchTable(ctx context.Context, name string) (*schema.TableSchema, error) {
	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range snap.Tables {
		if snap.Tables[i].TableName == name {
			return snap.Tables[i].Clone(), nil
		}
	}
	return nil, &errdefs.SchemaNotFoundError{Table: name}
}

// FetchProjectTables returns the snapshot tables of a project
func (s *FileSource) FetchProjectTables(ctx context.Context, projectID string) ([]schema.TableSchema, error) {
	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	var tables []schema.TableSchema
	for i := range snap.Tables {
		if snap.Tables[i].ProjectID == projectID {
			tables = append(tables, *snap.Tables[i].Clone())
		}
	}
	return tables, nil
}

// FetchRelationships returns the relationships declared on a table. The
// table is matched by id, then by name for snapshots without ids.
func (s *FileSource) FetchRelationships(ctx context.Context, tableID string) ([]schema.RelationshipSchema, error) {
	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, t := range snap.Tables {
		if t.ID == tableID || (t.ID == "" && t.TableName == tableID) {
			return append([]schema.RelationshipSchema(nil), t.Relationships...), nil
		}
	}
	return nil, nil
}
