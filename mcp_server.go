package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/alc6/tabledesigner/config"
)

// StartMCPServer starts the MCP server over stdio
func StartMCPServer() error {
	s := newMCPServer()
	slog.Info("starting tabledesigner mcp server")
	return server.ServeStdio(s)
}

func newMCPServer() *server.MCPServer {
	s := server.NewMCPServer(
		"tabledesigner",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	planTool := mcp.NewTool("plan_migration",
		mcp.WithDescription("Plan the PostgreSQL migration between two table designer snapshots"),
		mcp.WithString("target_snapshot",
			mcp.Required(),
			mcp.Description("Path to the target snapshot JSON file"),
		),
		mcp.WithString("current_snapshot",
			mcp.Description("Path to the current snapshot JSON file (default: empty database)"),
		),
		mcp.WithBoolean("rollback",
			mcp.Description("Return the rollback statements instead of the forward plan"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'sql' (default) or 'json'"),
			mcp.Enum("sql", "json"),
		),
	)
	s.AddTool(planTool, handlePlanMigration)

	validateTool := mcp.NewTool("validate_request",
		mcp.WithDescription("Validate a CRUD request against a table of a snapshot"),
		mcp.WithString("snapshot",
			mcp.Required(),
			mcp.Description("Path to the snapshot JSON file"),
		),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("Table name"),
		),
		mcp.WithString("operation",
			mcp.Required(),
			mcp.Description("CRUD operation"),
			mcp.Enum("list", "get", "create", "update", "delete"),
		),
		mcp.WithString("id",
			mcp.Description("Record id for get, update and delete"),
		),
		mcp.WithString("body",
			mcp.Description("JSON request body for create and update"),
		),
		mcp.WithString("query",
			mcp.Description("URL-encoded query string for list, e.g. page=1&email__ilike=a%25"),
		),
	)
	s.AddTool(validateTool, handleValidateRequest)

	openapiTool := mcp.NewTool("export_openapi",
		mcp.WithDescription("Export the OpenAPI document generated for a snapshot"),
		mcp.WithString("snapshot",
			mcp.Required(),
			mcp.Description("Path to the snapshot JSON file"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'yaml'"),
			mcp.Enum("json", "yaml"),
		),
	)
	s.AddTool(openapiTool, handleExportOpenAPI)

	return s
}

// mcpConfig returns the loaded config, or defaults when the server runs
// outside the cobra command tree
func mcpConfig() *config.Config {
	if cfg != nil {
		return cfg
	}
	def := config.Default()
	return &def
}

func handlePlanMigration(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := request.RequireString("target_snapshot")
	if err != nil {
		return mcp.NewToolResultError("target_snapshot parameter is required"), nil
	}

	output, err := planMigrationCore(
		request.GetString("current_snapshot", ""),
		target,
		request.GetBool("rollback", false),
		request.GetString("format", "sql"),
	)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(output), nil
}

// planMigrationCore contains the core logic of plan_migration, separated for testing
func planMigrationCore(currentPath, targetPath string, rollback bool, format string) (string, error) {
	return planCore(NewFileSnapshotReader(), currentPath, targetPath, rollback, format)
}

func handleValidateRequest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snapshot, err := request.RequireString("snapshot")
	if err != nil {
		return mcp.NewToolResultError("snapshot parameter is required"), nil
	}
	table, err := request.RequireString("table")
	if err != nil {
		return mcp.NewToolResultError("table parameter is required"), nil
	}
	op, err := request.RequireString("operation")
	if err != nil {
		return mcp.NewToolResultError("operation parameter is required"), nil
	}

	output, err := validateRequestCore(ctx, snapshot, validateParams{
		Table:     table,
		Operation: op,
		ID:        request.GetString("id", ""),
		Body:      request.GetString("body", ""),
		Query:     request.GetString("query", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(output), nil
}

// validateRequestCore contains the core logic of validate_request, separated for testing
func validateRequestCore(ctx context.Context, snapshot string, p validateParams) (string, error) {
	return validateCore(ctx, mcpConfig(), NewFileSnapshotReader(), snapshot, p)
}

func handleExportOpenAPI(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snapshot, err := request.RequireString("snapshot")
	if err != nil {
		return mcp.NewToolResultError("snapshot parameter is required"), nil
	}

	output, err := exportOpenAPICore(ctx, snapshot, request.GetString("format", "json"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(output), nil
}

// exportOpenAPICore contains the core logic of export_openapi, separated for testing
func exportOpenAPICore(ctx context.Context, snapshot, format string) (string, error) {
	switch format {
	case "json", "":
		return openapiCore(ctx, mcpConfig(), NewFileSnapshotReader(), snapshot, false)
	case "yaml":
		return openapiCore(ctx, mcpConfig(), NewFileSnapshotReader(), snapshot, true)
	default:
		return "", fmt.Errorf("unknown format %q: must be json or yaml", format)
	}
}
