package providers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"strings"
)

// PgDumpProvider dumps the materialized schema with the pg_dump binary
type PgDumpProvider struct {
	binary string
}

// NewPgDumpProvider creates a new pg_dump provider
func NewPgDumpProvider() *PgDumpProvider {
	return &PgDumpProvider{binary: "pg_dump"}
}

// Name returns the provider name
func (p *PgDumpProvider) Name() string {
	return "pg_dump"
}

// IsAvailable checks if pg_dump is available in PATH
func (p *PgDumpProvider) IsAvailable() bool {
	_, err := exec.LookPath(p.binary)
	return err == nil
}

// DumpSchema returns the schema-only dump of the database without the
// designer metadata tables
func (p *PgDumpProvider) DumpSchema(ctx context.Context, connStr string) (string, error) {
	if connStr == "" {
		return "", fmt.Errorf("pg_dump provider requires connection string")
	}
	if _, err := url.Parse(connStr); err != nil {
		return "", fmt.Errorf("failed to parse connection string: %w", err)
	}

	args := []string{
		"--schema-only",
		"--no-owner",
		"--no-privileges",
		"--no-tablespaces",
		"--no-comments",
		"--exclude-table=designer_*",
		connStr,
	}

	cmd := exec.CommandContext(ctx, p.binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("executing pg_dump")

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pg_dump failed: %w\nstderr: %s", err, stderr.String())
	}

	return cleanupDump(stdout.String()), nil
}

// cleanupDump strips the session preamble and schema qualification that
// pg_dump adds so dumps compare cleanly with generated DDL
func cleanupDump(sql string) string {
	var cleaned []string
	inSequence := false

	for _, line := range strings.Split(sql, "\n") {
		trimmed := strings.TrimSpace(line)

		if inSequence {
			if strings.HasSuffix(trimmed, ";") {
				inSequence = false
			}
			continue
		}

		switch {
		case trimmed == "", strings.HasPrefix(trimmed, "--"):
			continue
		case strings.HasPrefix(trimmed, "SET "), strings.HasPrefix(trimmed, "SELECT "):
			continue
		case strings.Contains(trimmed, "EXTENSION"):
			continue
		case strings.HasPrefix(trimmed, "CREATE SEQUENCE"), strings.HasPrefix(trimmed, "ALTER SEQUENCE"):
			inSequence = !strings.HasSuffix(trimmed, ";")
			continue
		}

		cleaned = append(cleaned, line)
	}

	result := strings.Join(cleaned, "\n")
	result = strings.ReplaceAll(result, "public.", "")
	result = strings.ReplaceAll(result, "ALTER TABLE ONLY ", "ALTER TABLE ")

	return strings.TrimSpace(result) + "\n"
}
