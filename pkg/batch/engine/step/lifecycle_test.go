package step_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/engine/step"
	"github.com/tigerroll/surfin-engine/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/surfin-engine/pkg/batch/listener"
)

type stepListener struct {
	beforeErr error
	afterErr  error
	exit      *model.ExitStatus
	calls     []string
}

func (l *stepListener) BeforeStep(ctx context.Context, se *model.StepExecution) error {
	l.calls = append(l.calls, "before")
	return l.beforeErr
}

func (l *stepListener) AfterStep(ctx context.Context, se *model.StepExecution) (*model.ExitStatus, error) {
	l.calls = append(l.calls, "after:"+string(se.Status))
	return l.exit, l.afterErr
}

func newLifecycle(t *testing.T, listeners ...port.StepListener) (*step.Lifecycle, *model.StepExecution) {
	t.Helper()
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()
	je, err := repo.CreateJobExecution(ctx, "job", model.NewJobParametersBuilder().ToJobParameters(), true)
	require.NoError(t, err)
	je.MarkAsStarted()
	require.NoError(t, repo.UpdateJobExecution(ctx, je))
	se := model.NewStepExecution(je, "step1")
	require.NoError(t, repo.AddStepExecution(ctx, se))
	return &step.Lifecycle{Name: "step1", Repository: repo, Listeners: listener.NewRegistry(listeners...)}, se
}

func TestLifecycleOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		body     step.Body
		status   model.BatchStatus
		exitCode string
	}{
		{"completed", func(ctx context.Context, se *model.StepExecution) error { return nil }, model.BatchStatusCompleted, model.ExitCodeCompleted},
		{"failed", func(ctx context.Context, se *model.StepExecution) error { return errors.New("boom") }, model.BatchStatusFailed, model.ExitCodeFailed},
		{"stopped", func(ctx context.Context, se *model.StepExecution) error { return step.ErrStopped }, model.BatchStatusStopped, model.ExitCodeStopped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &stepListener{}
			lc, se := newLifecycle(t, l)
			require.NoError(t, lc.Run(context.Background(), se, tt.body))
			assert.Equal(t, tt.status, se.Status)
			assert.Equal(t, tt.exitCode, se.ExitStatus.ExitCode)
			assert.NotNil(t, se.EndTime)
			assert.Equal(t, []string{"before", "after:" + string(tt.status)}, l.calls)

			stored, err := lc.Repository.GetStepExecution(context.Background(), se.JobExecutionID, se.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, stored.Status)
		})
	}
}

func TestLifecycleBeforeStepErrorSkipsBody(t *testing.T) {
	lc, se := newLifecycle(t, &stepListener{beforeErr: errors.New("not ready")})
	ran := false
	require.NoError(t, lc.Run(context.Background(), se, func(ctx context.Context, se *model.StepExecution) error {
		ran = true
		return nil
	}))
	assert.False(t, ran)
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	assert.Contains(t, se.ExitStatus.ExitDescription, "not ready")
}

func TestLifecycleMergesListenerExitStatus(t *testing.T) {
	lc, se := newLifecycle(t, &stepListener{exit: &model.ExitStatusNoop})
	require.NoError(t, lc.Run(context.Background(), se, func(ctx context.Context, se *model.StepExecution) error { return nil }))
	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, model.ExitCodeNoop, se.ExitStatus.ExitCode, "NOOP outranks COMPLETED")
}

func TestLifecycleIgnoresAfterStepError(t *testing.T) {
	l := &stepListener{afterErr: errors.New("audit table unavailable"), exit: &model.ExitStatusFailed}
	lc, se := newLifecycle(t, l)
	require.NoError(t, lc.Run(context.Background(), se, func(ctx context.Context, se *model.StepExecution) error { return nil }))
	assert.Equal(t, []string{"before", "after:COMPLETED"}, l.calls)
	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, model.ExitCodeCompleted, se.ExitStatus.ExitCode, "exit status of a failing listener is discarded")

	stored, err := lc.Repository.GetStepExecution(context.Background(), se.JobExecutionID, se.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, stored.Status)
	assert.Equal(t, model.ExitCodeCompleted, stored.ExitStatus.ExitCode)
}

func TestLifecyclePutsStepExecutionInContext(t *testing.T) {
	lc, se := newLifecycle(t)
	var seen *model.StepExecution
	require.NoError(t, lc.Run(context.Background(), se, func(ctx context.Context, _ *model.StepExecution) error {
		seen = port.GetStepExecutionFromContext(ctx)
		return nil
	}))
	assert.Same(t, se, seen)
}

func TestStopRequested(t *testing.T) {
	lc, se := newLifecycle(t)
	ctx := context.Background()
	assert.False(t, lc.StopRequested(ctx, se))

	stored, err := lc.Repository.GetJobExecution(ctx, se.JobExecutionID)
	require.NoError(t, err)
	stored.MarkAsStopping()
	require.NoError(t, lc.Repository.UpdateJobExecution(ctx, stored))
	assert.True(t, lc.StopRequested(ctx, se), "a STOPPING status stored by another process is observed")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	lc2, se2 := newLifecycle(t)
	assert.True(t, lc2.StopRequested(cancelled, se2))
}

func TestOptionsTxOptions(t *testing.T) {
	assert.Nil(t, step.Options{}.TxOptions())
	assert.Nil(t, step.Options{IsolationLevel: "bogus"}.TxOptions())
	opts := step.Options{IsolationLevel: "serializable"}.TxOptions()
	require.Len(t, opts, 1)
	assert.Equal(t, sql.LevelSerializable, opts[0].Isolation)
}
