package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverSnapshots(t *testing.T) {
	t.Run("sorted_json_only", func(t *testing.T) {
		dir := t.TempDir()
		writeSnapshot(t, dir, "002_posts.json", snapshotV2())
		writeSnapshot(t, dir, "001_users.json", snapshotV1())
		require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("notes"), 0o644))
		require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
		writeSnapshot(t, filepath.Join(dir, "nested"), "000_ignored.json", snapshotV1())

		snapshots, err := DiscoverSnapshots(dir)
		require.NoError(t, err)
		require.Len(t, snapshots, 2)
		assert.Equal(t, "001_users", snapshots[0].Name)
		assert.Equal(t, "002_posts", snapshots[1].Name)
	})

	t.Run("nonexistent_directory", func(t *testing.T) {
		_, err := DiscoverSnapshots("/nonexistent/directory")
		assert.Error(t, err)
	})
}

func TestWriteMigrationHistory(t *testing.T) {
	reader := mockReader()
	reader.Snapshots["v3.json"] = snapshotV2()
	reader.Snapshots["v4.json"] = snapshotV1()
	files := []SnapshotFile{
		{Name: "users", Path: "v1.json"},
		{Name: "posts", Path: "v2.json"},
		{Name: "noop", Path: "v3.json"},
		{Name: "drop_posts", Path: "v4.json"},
	}

	out := filepath.Join(t.TempDir(), "migrations")
	written, err := WriteMigrationHistory(reader, files, out)
	require.NoError(t, err)
	require.Len(t, written, 3, "unchanged snapshots are skipped")

	assert.Equal(t, "001_users", written[0].Name)
	assert.Equal(t, "002_posts", written[1].Name)
	assert.Equal(t, "003_drop_posts", written[2].Name)

	up, err := os.ReadFile(filepath.Join(out, "001_users.up.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(up), "CREATE TABLE users")

	down, err := os.ReadFile(filepath.Join(out, "002_posts.down.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(down), "DROP TABLE posts")

	down, err = os.ReadFile(filepath.Join(out, "003_drop_posts.down.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(down), "-- irreversible migration")
}

func TestTrimSequence(t *testing.T) {
	assert.Equal(t, "users", trimSequence("001_users"))
	assert.Equal(t, "users", trimSequence("users"))
	assert.Equal(t, "2024", trimSequence("2024"))
	assert.Equal(t, "001_", trimSequence("001_"))
}

func TestWriteMigrationHistoryReadError(t *testing.T) {
	_, err := WriteMigrationHistory(mockReader(), []SnapshotFile{{Name: "missing", Path: "missing.json"}}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.json")
}
