package main

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alc6/tabledesigner/migration"
	"github.com/alc6/tabledesigner/providers"
	"github.com/alc6/tabledesigner/schema"
)

// SnapshotFile is one schema snapshot on disk
type SnapshotFile struct {
	Name string
	Path string
}

// MigrationFile is a pair of generated migration files
type MigrationFile struct {
	Name     string
	UpFile   string
	DownFile string
	Impact   migration.Impact
}

// DiscoverSnapshots lists the *.json files of dir ordered by name
func DiscoverSnapshots(snapshotDir string) ([]SnapshotFile, error) {
	slog.Debug("scanning snapshot directory", "directory", snapshotDir)

	var snapshots []SnapshotFile
	err := filepath.WalkDir(snapshotDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != snapshotDir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".json") {
			snapshots = append(snapshots, SnapshotFile{
				Name: strings.TrimSuffix(d.Name(), ".json"),
				Path: path,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk snapshot directory: %w", err)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Name < snapshots[j].Name
	})

	slog.Info("discovered snapshots", "count", len(snapshots))
	return snapshots, nil
}

// trimSequence drops a leading "NNN_" so history files are not numbered twice
func trimSequence(name string) string {
	i := 0
	for i < len(name) && name[i] >= '0' && name[i] <= '9' {
		i++
	}
	if i > 0 && i < len(name)-1 && name[i] == '_' {
		return name[i+1:]
	}
	return name
}

// WriteMigrationHistory diffs consecutive snapshots and writes one
// NNN_<name>.up.sql / .down.sql pair per step. The first snapshot is diffed
// against an empty schema. Steps without changes are skipped.
func WriteMigrationHistory(reader SnapshotReader, snapshots []SnapshotFile, outDir string) ([]MigrationFile, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var (
		previous []schema.TableSchema
		written  []MigrationFile
	)
	for _, snap := range snapshots {
		current, err := reader.ReadSnapshot(snap.Path)
		if err != nil {
			return nil, err
		}

		plan, err := migration.Diff(previous, current.Tables)
		if err != nil {
			return nil, fmt.Errorf("failed to plan %s: %w", snap.Name, err)
		}
		previous = current.Tables
		if plan.Empty() {
			slog.Info("no changes in snapshot", "name", snap.Name)
			continue
		}

		name := fmt.Sprintf("%03d_%s", len(written)+1, trimSequence(snap.Name))
		mf, err := writeMigrationPair(outDir, name, plan)
		if err != nil {
			return nil, err
		}
		written = append(written, mf)
	}
	return written, nil
}

func writeMigrationPair(outDir, name string, plan *migration.Plan) (MigrationFile, error) {
	up, err := providers.FormatPlan(plan)
	if err != nil {
		return MigrationFile{}, fmt.Errorf("failed to render %s: %w", name, err)
	}

	var down string
	if rollback, err := plan.RollbackSQL(); err != nil {
		down = "-- irreversible migration, no rollback generated\n"
		for _, line := range strings.Split(err.Error(), "\n") {
			down += "-- " + line + "\n"
		}
	} else {
		down = strings.Join(rollback, "\n") + "\n"
	}

	mf := MigrationFile{
		Name:     name,
		UpFile:   filepath.Join(outDir, name+".up.sql"),
		DownFile: filepath.Join(outDir, name+".down.sql"),
		Impact:   plan.Impact,
	}
	if err := os.WriteFile(mf.UpFile, []byte(up), 0o644); err != nil {
		return MigrationFile{}, fmt.Errorf("failed to write %s: %w", mf.UpFile, err)
	}
	if err := os.WriteFile(mf.DownFile, []byte(down), 0o644); err != nil {
		return MigrationFile{}, fmt.Errorf("failed to write %s: %w", mf.DownFile, err)
	}

	slog.Debug("wrote migration", "name", name, "up", mf.UpFile, "down", mf.DownFile)
	return mf, nil
}
