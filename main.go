package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alc6/tabledesigner/apigen"
	"github.com/alc6/tabledesigner/config"
	"github.com/alc6/tabledesigner/endpoints"
	"github.com/alc6/tabledesigner/providers"
	"github.com/alc6/tabledesigner/registry"
	"github.com/alc6/tabledesigner/server"
	"github.com/alc6/tabledesigner/validator"
)

var (
	configPath string
	cfg        *config.Config

	planRollback bool
	planFormat   string
	planApply    bool

	openapiYAML   bool
	bundlePackage string
	verifyImage   string

	validateFlags validateParams

	serveSnapshot string
	serveSource   string
)

var rootCmd = &cobra.Command{
	Use:   "tabledesigner",
	Short: "Plan migrations and generate APIs from table designer schemas",
	Long: `tabledesigner works on table designer schema snapshots (JSON files holding
a project's tables, fields and relationships).

It plans PostgreSQL migrations between snapshots, validates CRUD requests
against a schema, generates OpenAPI documents and Go bindings, and serves
the generated CRUD surface over HTTP or MCP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		setupLogging(cfg.SlogLevel())
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan <current.json> <target.json>",
	Short: "Plan the migration between two snapshots",
	Long: `Plan the migration that turns the current snapshot into the target one.
Pass "-" as current to plan against an empty database.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		current := args[0]
		if current == "-" {
			current = ""
		}
		reader := NewFileSnapshotReader()

		if planApply {
			return applyPlan(cmd.Context(), reader, current, args[1])
		}

		out, err := planCore(reader, current, args[1], planRollback, planFormat)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <snapshot-dir> <out-dir>",
	Short: "Write up/down migration files from consecutive snapshots",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := NewFileSnapshotReader()
		snapshots, err := reader.DiscoverSnapshots(args[0])
		if err != nil {
			return err
		}
		if len(snapshots) == 0 {
			return fmt.Errorf("no snapshot files found in directory: %s", args[0])
		}

		files, err := WriteMigrationHistory(reader, snapshots, args[1])
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (impact: %s)\n", f.Name, f.Impact)
		}
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <snapshot.json>",
	Short: "Apply a snapshot to an ephemeral PostgreSQL and print the resulting schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := verifyCore(cmd.Context(), NewFileSnapshotReader(), args[0],
			NewPostgreSQLManager(verifyImage), NewPgDumpInspector())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "\n=== DATABASE SCHEMA ===")
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

var openapiCmd = &cobra.Command{
	Use:   "openapi <snapshot.json>",
	Short: "Export the OpenAPI document of a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := openapiCore(cmd.Context(), cfg, NewFileSnapshotReader(), args[0], openapiYAML)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

var bundleCmd = &cobra.Command{
	Use:   "bundle <snapshot.json>",
	Short: "Render Go request/response types and handler interfaces",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := bundleCore(cfg, NewFileSnapshotReader(), args[0], bundlePackage)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <snapshot.json>",
	Short: "Validate a CRUD request against a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := validateCore(cmd.Context(), cfg, NewFileSnapshotReader(), args[0], validateFlags)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the generated CRUD API over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run as Model Context Protocol server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		slog.Info("starting mcp server")
		return StartMCPServer()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to TOML config file")

	planCmd.Flags().BoolVar(&planRollback, "rollback", false, "Print the rollback statements instead")
	planCmd.Flags().StringVar(&planFormat, "format", "sql", "Output format: sql or json")
	planCmd.Flags().BoolVar(&planApply, "apply", false, "Apply the plan to database.dsn")

	openapiCmd.Flags().BoolVar(&openapiYAML, "yaml", false, "Output YAML instead of JSON")
	bundleCmd.Flags().StringVar(&bundlePackage, "package", "api", "Package name of the generated file")
	verifyCmd.Flags().StringVar(&verifyImage, "image", defaultPostgresImage, "PostgreSQL Docker image")

	validateCmd.Flags().StringVar(&validateFlags.Table, "table", "", "Table name")
	validateCmd.Flags().StringVar(&validateFlags.Operation, "op", "list", "Operation: list, get, create, update or delete")
	validateCmd.Flags().StringVar(&validateFlags.ID, "id", "", "Record id")
	validateCmd.Flags().StringVar(&validateFlags.Body, "body", "", "JSON request body")
	validateCmd.Flags().StringVar(&validateFlags.Query, "query", "", "URL-encoded query string")
	_ = validateCmd.MarkFlagRequired("table")

	serveCmd.Flags().StringVar(&serveSnapshot, "snapshot", "", "Serve a snapshot file instead of database.dsn")
	serveCmd.Flags().StringVar(&serveSource, "source", "", "Schema source to serve: file or postgres (default file when --snapshot is set)")

	rootCmd.AddCommand(planCmd, historyCmd, verifyCmd, openapiCmd, bundleCmd, validateCmd, serveCmd, mcpCmd)
}

func main() {
	if err := run(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	setupLogging(slog.LevelInfo)
	return rootCmd.ExecuteContext(context.Background())
}

func setupLogging(level slog.Level) {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func applyPlan(ctx context.Context, reader SnapshotReader, currentPath, targetPath string) error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required to apply a plan")
	}
	plan, err := planTarget(reader, currentPath, targetPath)
	if err != nil {
		return err
	}
	if plan.Empty() {
		slog.Info("nothing to apply")
		return nil
	}

	exec, err := providers.ConnectExecutor(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer exec.Close()

	if planRollback {
		return providers.RevertPlan(ctx, exec, plan)
	}
	return providers.ApplyPlan(ctx, exec, plan)
}

func serve(ctx context.Context) error {
	sources, snapshotProject, closeSources, err := openSources(ctx, serveSnapshot, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer closeSources()

	source, err := selectSource(sources, serveSource)
	if err != nil {
		return err
	}
	projectID := cfg.Server.ProjectID
	if source.Name() == "file" && snapshotProject != "" {
		projectID = snapshotProject
	}
	slog.Info("serving schemas", "source", source.Name(), "project", projectID)

	schemas := registry.New(source, registryOptions(cfg))
	eps := endpoints.New(apigen.NewGenerator(cfg.Endpoints.BasePath), schemas, endpointPolicy(cfg), slog.Default())
	schemas.Subscribe(eps.HandleSchemaChange)

	if _, err := eps.SyncWithDatabase(ctx, projectID); err != nil {
		return fmt.Errorf("failed to sync endpoints: %w", err)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				res, err := reloadSchemas(ctx, source, schemas, eps, projectID)
				if err != nil {
					slog.Error("schema reload failed", "source", source.Name(), "error", err)
					continue
				}
				slog.Info("schemas reloaded", "source", source.Name(),
					"added", res.Added, "updated", res.Updated, "removed", res.Removed)
			}
		}
	}()

	srv := server.New(eps, validator.New(schemas, slog.Default()), nil, server.Options{
		BasePath:    cfg.Endpoints.BasePath,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      slog.Default(),
	})
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}

// openSources registers every schema source the flags and config provide.
// It returns the project id of the snapshot when one is given.
func openSources(ctx context.Context, snapshotPath, dsn string) (*providers.SourceRegistry, string, func(), error) {
	sources := providers.NewSourceRegistry()
	var projectID string
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if snapshotPath != "" {
		snap, err := providers.ReadSnapshot(snapshotPath)
		if err != nil {
			return nil, "", closeAll, err
		}
		projectID = snap.ProjectID
		sources.Register(providers.NewFileSource(snapshotPath))
	}

	if dsn != "" {
		pg, err := providers.OpenPostgresSource(ctx, dsn)
		if err != nil {
			return nil, "", closeAll, err
		}
		closers = append(closers, func() { _ = pg.Close() })
		if err := providers.EnsureMetadataTables(ctx, pg.DB()); err != nil {
			closeAll()
			return nil, "", func() {}, err
		}
		sources.Register(pg)
	}

	return sources, projectID, closeAll, nil
}

// selectSource returns the named source. Without a name it prefers the
// snapshot file over the database.
func selectSource(sources *providers.SourceRegistry, name string) (providers.SchemaSource, error) {
	names := sources.Names()
	if len(names) == 0 {
		return nil, fmt.Errorf("either --snapshot or database.dsn is required")
	}
	if name == "" {
		name = names[0]
	}
	source, err := sources.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w (available: %s)", err, strings.Join(names, ", "))
	}
	return source, nil
}

// reloader is implemented by sources that can re-read their backing data
type reloader interface {
	Reload() error
}

// reloadSchemas re-reads the source, empties the schema cache and resyncs
// the project's endpoints
func reloadSchemas(ctx context.Context, source providers.SchemaSource, schemas *registry.Registry, eps *endpoints.Registry, projectID string) (endpoints.SyncResult, error) {
	if r, ok := source.(reloader); ok {
		if err := r.Reload(); err != nil {
			return endpoints.SyncResult{}, fmt.Errorf("failed to reload %s source: %w", source.Name(), err)
		}
	}
	schemas.InvalidateAll()
	return eps.SyncWithDatabase(ctx, projectID)
}
