package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/alc6/tabledesigner/apigen"
	"github.com/alc6/tabledesigner/config"
	"github.com/alc6/tabledesigner/endpoints"
	"github.com/alc6/tabledesigner/migration"
	"github.com/alc6/tabledesigner/providers"
	"github.com/alc6/tabledesigner/registry"
	"github.com/alc6/tabledesigner/schema"
	"github.com/alc6/tabledesigner/validator"
)

// planTarget reads both snapshots and diffs them. An empty currentPath
// plans against an empty schema.
func planTarget(reader SnapshotReader, currentPath, targetPath string) (*migration.Plan, error) {
	var current []schema.TableSchema
	if currentPath != "" {
		snap, err := reader.ReadSnapshot(currentPath)
		if err != nil {
			return nil, err
		}
		current = snap.Tables
	}
	target, err := reader.ReadSnapshot(targetPath)
	if err != nil {
		return nil, err
	}
	plan, err := migration.Diff(current, target.Tables)
	if err != nil {
		return nil, fmt.Errorf("failed to plan migration: %w", err)
	}
	return plan, nil
}

// planCore renders the plan between two snapshots as SQL or JSON
func planCore(reader SnapshotReader, currentPath, targetPath string, rollback bool, format string) (string, error) {
	plan, err := planTarget(reader, currentPath, targetPath)
	if err != nil {
		return "", err
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode plan: %w", err)
		}
		return string(data), nil
	case "sql", "":
	default:
		return "", fmt.Errorf("unknown format %q: must be sql or json", format)
	}

	if rollback {
		stmts, err := plan.RollbackSQL()
		if err != nil {
			return "", fmt.Errorf("failed to build rollback: %w", err)
		}
		return strings.Join(stmts, "\n") + "\n", nil
	}
	return providers.FormatPlan(plan)
}

func endpointPolicy(cfg *config.Config) endpoints.Policy {
	p := endpoints.Policy{
		CacheTTL:    cfg.Endpoints.CacheTTL.Duration,
		RequireAuth: cfg.Endpoints.RequireAuth,
	}
	if cfg.Endpoints.RateLimitRequests > 0 {
		p.RateLimit = &endpoints.RateLimit{
			Requests: cfg.Endpoints.RateLimitRequests,
			Window:   cfg.Endpoints.RateLimitWindow.Duration,
		}
	}
	return p
}

func registryOptions(cfg *config.Config) registry.Options {
	return registry.Options{
		TTL:          cfg.Registry.TTL.Duration,
		FetchTimeout: cfg.Registry.FetchTimeout.Duration,
		Logger:       slog.Default(),
	}
}

// snapshotEndpoints registers the endpoints of every active table of a snapshot
func snapshotEndpoints(ctx context.Context, cfg *config.Config, snap *schema.Snapshot) (*registry.Registry, *endpoints.Registry, error) {
	schemas := registry.New(providers.NewSnapshotSource(*snap), registryOptions(cfg))
	eps := endpoints.New(apigen.NewGenerator(cfg.Endpoints.BasePath), schemas, endpointPolicy(cfg), slog.Default())
	if _, err := eps.SyncWithDatabase(ctx, snap.ProjectID); err != nil {
		return nil, nil, err
	}
	return schemas, eps, nil
}

// openapiCore exports the OpenAPI document of a snapshot
func openapiCore(ctx context.Context, cfg *config.Config, reader SnapshotReader, path string, asYAML bool) (string, error) {
	snap, err := reader.ReadSnapshot(path)
	if err != nil {
		return "", err
	}
	_, eps, err := snapshotEndpoints(ctx, cfg, snap)
	if err != nil {
		return "", err
	}

	doc := eps.ExportToOpenAPI(apigen.Options{Description: "Generated from project " + snap.ProjectID})
	var data []byte
	if asYAML {
		data, err = doc.YAML()
	} else {
		data, err = doc.JSON()
	}
	if err != nil {
		return "", fmt.Errorf("failed to encode openapi document: %w", err)
	}
	return string(data), nil
}

// bundleCore renders the Go type and handler bundle of a snapshot
func bundleCore(cfg *config.Config, reader SnapshotReader, path, pkg string) (string, error) {
	snap, err := reader.ReadSnapshot(path)
	if err != nil {
		return "", err
	}

	gen := apigen.NewGenerator(cfg.Endpoints.BasePath)
	var apis []*apigen.TableAPI
	for _, t := range snap.Tables {
		if !t.IsActive() {
			continue
		}
		api, err := gen.Generate(t, t.Relationships)
		if err != nil {
			return "", fmt.Errorf("failed to generate api for %s: %w", t.TableName, err)
		}
		apis = append(apis, api)
	}

	src, err := apigen.Bundle(pkg, apis)
	if err != nil {
		return "", fmt.Errorf("failed to render bundle: %w", err)
	}
	return string(src), nil
}

// validateParams describes one request to validate offline
type validateParams struct {
	Table     string
	Operation string
	ID        string
	Body      string
	Query     string
}

// validateCore validates a request against a snapshot and returns the
// result as JSON. Missing tables are returned as errors.
func validateCore(ctx context.Context, cfg *config.Config, reader SnapshotReader, path string, p validateParams) (string, error) {
	snap, err := reader.ReadSnapshot(path)
	if err != nil {
		return "", err
	}

	req, err := buildRequest(p)
	if err != nil {
		return "", err
	}

	schemas := registry.New(providers.NewSnapshotSource(*snap), registryOptions(cfg))
	res, err := validator.New(schemas, slog.Default()).Validate(ctx, req)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(data), nil
}

func buildRequest(p validateParams) (validator.Request, error) {
	op := validator.Operation(strings.ToLower(p.Operation))
	switch op {
	case validator.OpList, validator.OpGet, validator.OpCreate, validator.OpUpdate, validator.OpDelete:
	default:
		return validator.Request{}, fmt.Errorf("operation must be one of: list, get, create, update, delete")
	}

	req := validator.Request{Table: p.Table, Operation: op}
	if p.ID != "" {
		req.Params = map[string]string{"id": p.ID}
	}

	if p.Body != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(p.Body)))
		dec.UseNumber()
		if err := dec.Decode(&req.Body); err != nil {
			return validator.Request{}, fmt.Errorf("failed to parse body: %w", err)
		}
	}

	if p.Query != "" {
		values, err := url.ParseQuery(p.Query)
		if err != nil {
			return validator.Request{}, fmt.Errorf("failed to parse query: %w", err)
		}
		req.Query = make(map[string]any, len(values))
		for k, vals := range values {
			if len(vals) == 1 {
				req.Query[k] = vals[0]
				continue
			}
			list := make([]any, len(vals))
			for i, v := range vals {
				list[i] = v
			}
			req.Query[k] = list
		}
	}
	return req, nil
}

// verifyCore applies a snapshot to a scratch database and describes the result
func verifyCore(ctx context.Context, reader SnapshotReader, path string, dbManager DatabaseManager, inspector SchemaInspector) (string, error) {
	plan, err := planTarget(reader, "", path)
	if err != nil {
		return "", err
	}
	if plan.Empty() {
		return "", fmt.Errorf("snapshot %s has no tables to create", path)
	}

	slog.Info("setting up database")
	if err := dbManager.Setup(ctx); err != nil {
		return "", fmt.Errorf("failed to setup database: %w", err)
	}
	defer func() {
		if err := dbManager.Close(ctx); err != nil {
			slog.Error("failed to cleanup", "error", err)
		}
	}()

	if err := providers.ApplyPlan(ctx, dbManager, plan); err != nil {
		return "", err
	}

	out, err := inspector.InspectSchema(ctx, dbManager.GetDB(), dbManager.GetConnectionString())
	if err != nil {
		return "", fmt.Errorf("failed to inspect schema: %w", err)
	}
	return out, nil
}
