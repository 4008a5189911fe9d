package providers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alc6/tabledesigner/errdefs"
	"github.com/alc6/tabledesigner/migration"
)

// Executor applies DDL through a pgx connection pool
type Executor struct {
	pool *pgxpool.Pool
}

// NewExecutor wraps an existing pool
func NewExecutor(pool *pgxpool.Pool) *Executor {
	return &Executor{pool: pool}
}

// ConnectExecutor opens a pool for the DSN and verifies it
func ConnectExecutor(ctx context.Context, dsn string) (*Executor, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Executor{pool: pool}, nil
}

// Close releases the pool
func (e *Executor) Close() {
	e.pool.Close()
}

// ExecStatements runs stmts in order in a single transaction. Nothing is
// committed if any statement fails.
func (e *Executor) ExecStatements(ctx context.Context, stmts []string) error {
	if len(stmts) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, e.pool, func(tx pgx.Tx) error {
		for i, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				slog.Error("ddl statement failed", "index", i+1, "statement", stmt, "error", err)
				return fmt.Errorf("statement %d: %w", i+1, errdefs.FromDatabase(err))
			}
		}
		slog.Debug("ddl statements applied", "count", len(stmts))
		return nil
	})
}

// ApplyPlan renders and applies the forward statements of a plan
func ApplyPlan(ctx context.Context, exec DDLExecutor, plan *migration.Plan) error {
	stmts, err := plan.SQL()
	if err != nil {
		return err
	}
	if err := exec.ExecStatements(ctx, stmts); err != nil {
		return fmt.Errorf("failed to apply migration plan: %w", err)
	}
	slog.Info("migration plan applied", "operations", len(plan.Operations), "impact", plan.Impact)
	return nil
}

// RevertPlan applies the rollback statements of a plan. It fails before
// touching the database when the plan is not reversible.
func RevertPlan(ctx context.Context, exec DDLExecutor, plan *migration.Plan) error {
	stmts, err := plan.RollbackSQL()
	if err != nil {
		return fmt.Errorf("failed to build rollback: %w", err)
	}
	if err := exec.ExecStatements(ctx, stmts); err != nil {
		return fmt.Errorf("failed to revert migration plan: %w", err)
	}
	return nil
}
