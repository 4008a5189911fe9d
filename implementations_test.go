package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alc6/tabledesigner/errdefs"
)

func TestPostgreSQLManagerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgresql manager test in short mode")
	}
	if !isDockerAvailable() {
		t.Skip("docker not available, skipping postgresql manager test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	manager := NewPostgreSQLManager("")
	require.NoError(t, manager.Setup(ctx))
	defer func() {
		if err := manager.Close(ctx); err != nil {
			t.Logf("failed to cleanup database: %v", err)
		}
	}()
	assert.NotEmpty(t, manager.GetConnectionString())

	plan, err := planTarget(mockReader(), "", "v2.json")
	require.NoError(t, err)
	stmts, err := plan.SQL()
	require.NoError(t, err)
	require.NoError(t, manager.ExecStatements(ctx, stmts))

	t.Run("describe_columns", func(t *testing.T) {
		out, err := describeColumns(ctx, manager.GetDB())
		require.NoError(t, err)
		assert.Contains(t, out, "Table: posts")
		assert.Contains(t, out, "Table: users")
		assert.Contains(t, out, "email character varying NOT NULL")
	})

	t.Run("failed_batch_is_rolled_back", func(t *testing.T) {
		err := manager.ExecStatements(ctx, []string{
			"CREATE TABLE scratch (id integer);",
			"CREATE TABLE users (id integer);",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "statement 2")

		var exists bool
		require.NoError(t, manager.GetDB().QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'scratch')").Scan(&exists))
		assert.False(t, exists)
	})

	t.Run("constraint_violation_is_classified", func(t *testing.T) {
		require.NoError(t, manager.ExecStatements(ctx, []string{
			"INSERT INTO users (id, email, created_at) VALUES (1, 'a@example.com', NOW());",
		}))
		err := manager.ExecStatements(ctx, []string{
			"INSERT INTO posts (id, title, user_id) VALUES (1, 'hello', 99);",
		})
		var violation *errdefs.ConstraintViolationError
		require.True(t, errors.As(err, &violation), "got %v", err)
	})
}

func TestExecStatementsWithoutSetup(t *testing.T) {
	manager := NewPostgreSQLManager("")
	err := manager.ExecStatements(context.Background(), []string{"SELECT 1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not set up")
}
