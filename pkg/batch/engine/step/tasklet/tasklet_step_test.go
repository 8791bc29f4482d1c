package tasklet_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-engine/pkg/batch/engine/step"
	"github.com/tigerroll/surfin-engine/pkg/batch/engine/step/tasklet"
	"github.com/tigerroll/surfin-engine/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/surfin-engine/pkg/batch/listener"
)

// countingTasklet continues until it has run limit times. It keeps its count in the
// step context when used as a stream.
type countingTasklet struct {
	runs   int
	limit  int
	failAt int
	onRun  func(se *model.StepExecution)
}

func (c *countingTasklet) Execute(ctx context.Context, contribution *model.StepContribution, se *model.StepExecution) (model.RepeatStatus, error) {
	if _, ok := tx.FromContext(ctx); !ok {
		return model.RepeatStatusFinished, errors.New("no transaction")
	}
	c.runs++
	if c.runs == c.failAt {
		return model.RepeatStatusFinished, errors.New("tasklet broke")
	}
	contribution.WriteCount++
	if c.onRun != nil {
		c.onRun(se)
	}
	return model.ContinueIf(c.runs < c.limit), nil
}

type streamTasklet struct {
	countingTasklet
	opened, closed bool
}

func (s *streamTasklet) Open(ctx context.Context, ec model.ExecutionContext) error {
	s.opened = true
	if v, ok := ec.GetInt64("tasklet.runs"); ok {
		s.runs = int(v)
	}
	return nil
}

func (s *streamTasklet) Update(ctx context.Context, ec model.ExecutionContext) error {
	ec.Put("tasklet.runs", int64(s.runs))
	return nil
}

func (s *streamTasklet) Close(ctx context.Context) error {
	s.closed = true
	return nil
}

func newStepExecution(t *testing.T, repo repository.JobRepository) *model.StepExecution {
	t.Helper()
	ctx := context.Background()
	je, err := repo.CreateJobExecution(ctx, "cleanup", model.NewJobParametersBuilder().ToJobParameters(), true)
	require.NoError(t, err)
	je.MarkAsStarted()
	require.NoError(t, repo.UpdateJobExecution(ctx, je))
	se := model.NewStepExecution(je, "cleanupStep")
	require.NoError(t, repo.AddStepExecution(ctx, se))
	return se
}

func TestTaskletStepRepeatsUntilFinished(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	tm := tx.NewResourcelessTransactionManager()
	work := &streamTasklet{countingTasklet: countingTasklet{limit: 3}}
	s := tasklet.NewTaskletStep("cleanupStep", work, repo, tm, nil, step.Options{StartLimit: 2})
	se := newStepExecution(t, repo)

	require.NoError(t, s.Execute(context.Background(), se))

	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, model.ExitCodeCompleted, se.ExitStatus.ExitCode)
	assert.Equal(t, 3, se.CommitCount)
	assert.Equal(t, 3, se.WriteCount)
	assert.Equal(t, int64(3), tm.Commits())
	assert.True(t, work.opened)
	assert.True(t, work.closed)
	assert.Equal(t, int64(3), se.ExecutionContext["tasklet.runs"])
	assert.Equal(t, 2, s.StartLimit())
	assert.False(t, s.AllowStartIfComplete())
}

func TestTaskletStepFailsOnError(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	tm := tx.NewResourcelessTransactionManager()
	s := tasklet.NewTaskletStep("cleanupStep", &countingTasklet{limit: 5, failAt: 2}, repo, tm, nil, step.Options{})
	se := newStepExecution(t, repo)

	require.NoError(t, s.Execute(context.Background(), se))

	assert.Equal(t, model.BatchStatusFailed, se.Status)
	assert.Equal(t, model.ExitCodeFailed, se.ExitStatus.ExitCode)
	assert.Contains(t, se.ExitStatus.ExitDescription, "tasklet broke")
	assert.Equal(t, 1, se.CommitCount)
	assert.Equal(t, 1, se.RollbackCount)
	assert.Equal(t, 1, se.WriteCount)
	assert.Equal(t, int64(1), tm.Rollbacks())

	stored, err := repo.GetStepExecution(context.Background(), se.JobExecutionID, se.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, stored.Status)
}

func TestTaskletStepHonoursStopBetweenIterations(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	work := &countingTasklet{limit: 10, onRun: func(se *model.StepExecution) { se.JobExecution.RequestStop() }}
	s := tasklet.NewTaskletStep("cleanupStep", work, repo, tx.NewResourcelessTransactionManager(), nil, step.Options{})
	se := newStepExecution(t, repo)

	require.NoError(t, s.Execute(context.Background(), se))

	assert.Equal(t, model.BatchStatusStopped, se.Status)
	assert.Equal(t, 1, work.runs)
}

type exitOverride struct{}

func (exitOverride) BeforeStep(ctx context.Context, se *model.StepExecution) error { return nil }

func (exitOverride) AfterStep(ctx context.Context, se *model.StepExecution) (*model.ExitStatus, error) {
	es := model.ExitStatus{ExitCode: "COMPLETED_WITH_WARNINGS"}
	return &es, nil
}

func TestTaskletStepMergesAfterStepExitStatus(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	s := tasklet.NewTaskletStep("cleanupStep", &countingTasklet{limit: 1}, repo, tx.NewResourcelessTransactionManager(),
		listener.NewRegistry(exitOverride{}), step.Options{})
	se := newStepExecution(t, repo)

	require.NoError(t, s.Execute(context.Background(), se))

	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, "COMPLETED_WITH_WARNINGS", se.ExitStatus.ExitCode)
}
