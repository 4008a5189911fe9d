package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/alc6/tabledesigner/errdefs"
	"github.com/alc6/tabledesigner/migration"
	"github.com/alc6/tabledesigner/mocks"
)

func TestApplyPlan(t *testing.T) {
	ctrl := gomock.NewController(t)
	exec := mocks.NewMockDDLExecutor(ctrl)
	ctx := context.Background()

	snap := sampleSnapshot()
	plan, err := migration.Diff(nil, snap.Tables)
	require.NoError(t, err)
	want, err := plan.SQL()
	require.NoError(t, err)

	exec.EXPECT().ExecStatements(ctx, want).Return(nil)
	assert.NoError(t, ApplyPlan(ctx, exec, plan))
}

func TestApplyPlanPropagatesFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	exec := mocks.NewMockDDLExecutor(ctrl)

	plan, err := migration.Diff(nil, sampleSnapshot().Tables)
	require.NoError(t, err)

	boom := errors.New("connection reset")
	exec.EXPECT().ExecStatements(gomock.Any(), gomock.Any()).Return(boom)

	err = ApplyPlan(context.Background(), exec, plan)
	assert.ErrorIs(t, err, boom)
}

func TestRevertPlanRefusesIrreversible(t *testing.T) {
	ctrl := gomock.NewController(t)
	exec := mocks.NewMockDDLExecutor(ctrl)

	snap := sampleSnapshot()
	plan, err := migration.Diff(snap.Tables[:1], nil)
	require.NoError(t, err)

	err = RevertPlan(context.Background(), exec, plan)
	var unsupported *errdefs.UnsupportedOperationError
	assert.True(t, errors.As(err, &unsupported))
}
