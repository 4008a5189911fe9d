package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alc6/tabledesigner/schema"
)

// MockDatabaseManager is a mock implementation of DatabaseManager for testing
type MockDatabaseManager struct {
	SetupFunc          func(ctx context.Context) error
	CloseFunc          func(ctx context.Context) error
	ExecStatementsFunc func(ctx context.Context, stmts []string) error
	GetDBFunc          func() *sql.DB

	// Track calls for verification
	SetupCalled bool
	CloseCalled bool
	Executed    [][]string
}

func (m *MockDatabaseManager) Setup(ctx context.Context) error {
	m.SetupCalled = true
	if m.SetupFunc != nil {
		return m.SetupFunc(ctx)
	}
	return nil
}

func (m *MockDatabaseManager) Close(ctx context.Context) error {
	m.CloseCalled = true
	if m.CloseFunc != nil {
		return m.CloseFunc(ctx)
	}
	return nil
}

func (m *MockDatabaseManager) ExecStatements(ctx context.Context, stmts []string) error {
	m.Executed = append(m.Executed, stmts)
	if m.ExecStatementsFunc != nil {
		return m.ExecStatementsFunc(ctx, stmts)
	}
	return nil
}

func (m *MockDatabaseManager) GetDB() *sql.DB {
	if m.GetDBFunc != nil {
		return m.GetDBFunc()
	}
	return nil
}

func (m *MockDatabaseManager) GetConnectionString() string {
	return "test://connection"
}

// MockSnapshotReader serves snapshots from memory keyed by path
type MockSnapshotReader struct {
	Snapshots map[string]*schema.Snapshot
	Files     []SnapshotFile
}

func (m *MockSnapshotReader) DiscoverSnapshots(dir string) ([]SnapshotFile, error) {
	return m.Files, nil
}

func (m *MockSnapshotReader) ReadSnapshot(path string) (*schema.Snapshot, error) {
	snap, ok := m.Snapshots[path]
	if !ok {
		return nil, fmt.Errorf("failed to read snapshot %s: file does not exist", path)
	}
	clone := *snap
	clone.Tables = make([]schema.TableSchema, len(snap.Tables))
	for i := range snap.Tables {
		clone.Tables[i] = *snap.Tables[i].Clone()
	}
	return &clone, nil
}

// MockSchemaInspector returns a fixed description
type MockSchemaInspector struct {
	Output string
	Err    error
}

func (m *MockSchemaInspector) InspectSchema(ctx context.Context, db *sql.DB, connStr string) (string, error) {
	return m.Output, m.Err
}

// SimulateError simulates database errors for testing
func SimulateError(errType string) error {
	switch errType {
	case "connection":
		return fmt.Errorf("connection refused")
	case "syntax":
		return fmt.Errorf("syntax error at or near 'INVALID'")
	case "permission":
		return fmt.Errorf("permission denied")
	default:
		return fmt.Errorf("simulated error: %s", errType)
	}
}
