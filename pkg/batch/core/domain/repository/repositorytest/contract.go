// Package repositorytest holds the behaviour every repository.JobRepository implementation must share.
package repositorytest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
)

// Factory returns an empty repository for one test.
type Factory func(t *testing.T) repository.JobRepository

// Params returns parameters with an identifying run_date and a non-identifying attempt number.
func Params(runDate string, attempt int64) model.JobParameters {
	return model.NewJobParametersBuilder().
		AddString("run_date", runDate).
		AddLong("attempt", attempt, false).
		ToJobParameters()
}

// Run executes the contract against repositories produced by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Run("CreatesInstanceAndExecution", func(t *testing.T) { testCreatesInstanceAndExecution(t, newRepo(t)) })
	t.Run("IdentifyingParameters", func(t *testing.T) { testIdentifyingParameters(t, newRepo(t)) })
	t.Run("RestartRules", func(t *testing.T) { testRestartRules(t, newRepo) })
	t.Run("RestartCarriesContext", func(t *testing.T) { testRestartCarriesContext(t, newRepo(t)) })
	t.Run("ConcurrentLaunchHasOneWinner", func(t *testing.T) { testConcurrentLaunch(t, newRepo(t)) })
	t.Run("UpdateRequiresID", func(t *testing.T) { testUpdateRequiresID(t, newRepo(t)) })
	t.Run("OptimisticLocking", func(t *testing.T) { testOptimisticLocking(t, newRepo(t)) })
	t.Run("ContextUpdatesAreIdempotent", func(t *testing.T) { testContextUpdates(t, newRepo(t)) })
	t.Run("StepExecutions", func(t *testing.T) { testStepExecutions(t, newRepo(t)) })
	t.Run("SynchronizeStatus", func(t *testing.T) { testSynchronizeStatus(t, newRepo(t)) })
	t.Run("ExplorerQueries", func(t *testing.T) { testExplorerQueries(t, newRepo(t)) })
	t.Run("DuplicateInstance", func(t *testing.T) { testDuplicateInstance(t, newRepo(t)) })
}

// finish moves je to a final status and persists it.
func finish(t *testing.T, repo repository.JobRepository, je *model.JobExecution, status model.BatchStatus) {
	t.Helper()
	ctx := context.Background()
	if status != model.BatchStatusStarting {
		je.MarkAsStarted()
		require.NoError(t, repo.UpdateJobExecution(ctx, je))
	}
	switch status {
	case model.BatchStatusStarting, model.BatchStatusStarted:
		return
	case model.BatchStatusStopping:
		je.MarkAsStopping()
	default:
		je.Finish(status, status.ToExitStatus())
	}
	require.NoError(t, repo.UpdateJobExecution(ctx, je))
}

func testCreatesInstanceAndExecution(t *testing.T, repo repository.JobRepository) {
	ctx := context.Background()
	params := Params("2024-01-01", 1)

	exists, err := repo.JobInstanceExists(ctx, "load", params)
	require.NoError(t, err)
	assert.False(t, exists)

	je, err := repo.CreateJobExecution(ctx, "load", params, true)
	require.NoError(t, err)
	assert.NotEmpty(t, je.ID)
	assert.NotEmpty(t, je.JobInstanceID)
	assert.Equal(t, model.BatchStatusStarting, je.Status)
	assert.Empty(t, je.ExecutionContext)
	assert.True(t, je.Parameters.Equal(params), "the execution keeps the non-identifying parameters too")

	exists, err = repo.JobInstanceExists(ctx, "load", params)
	require.NoError(t, err)
	assert.True(t, exists)

	instance, err := repo.GetJobInstance(ctx, je.JobInstanceID)
	require.NoError(t, err)
	assert.Equal(t, "load", instance.JobName)
	assert.Equal(t, params.InstanceKey(), instance.JobKey)
}

func testIdentifyingParameters(t *testing.T, repo repository.JobRepository) {
	ctx := context.Background()

	first, err := repo.CreateJobExecution(ctx, "load", Params("2024-01-01", 1), true)
	require.NoError(t, err)
	finish(t, repo, first, model.BatchStatusFailed)

	second, err := repo.CreateJobExecution(ctx, "load", Params("2024-01-01", 2), true)
	require.NoError(t, err)
	assert.Equal(t, first.JobInstanceID, second.JobInstanceID, "non-identifying parameters do not create an instance")
	assert.NotEqual(t, first.ID, second.ID)

	other, err := repo.CreateJobExecution(ctx, "load", Params("2024-01-02", 1), true)
	require.NoError(t, err)
	assert.NotEqual(t, first.JobInstanceID, other.JobInstanceID, "identifying parameters create a new instance")

	count, err := repo.GetJobInstanceCount(ctx, "load")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func testRestartRules(t *testing.T, newRepo Factory) {
	tests := []struct {
		status      model.BatchStatus
		restartable bool
		want        error
	}{
		{model.BatchStatusStarting, true, repository.ErrJobExecutionAlreadyRunning},
		{model.BatchStatusStarted, true, repository.ErrJobExecutionAlreadyRunning},
		{model.BatchStatusStopping, true, repository.ErrJobExecutionAlreadyRunning},
		{model.BatchStatusCompleted, true, repository.ErrJobInstanceAlreadyComplete},
		{model.BatchStatusAbandoned, true, repository.ErrJobInstanceAlreadyComplete},
		{model.BatchStatusUnknown, true, repository.ErrJobRestart},
		{model.BatchStatusFailed, false, repository.ErrJobRestart},
		{model.BatchStatusFailed, true, nil},
		{model.BatchStatusStopped, true, nil},
		{model.BatchStatusStopped, false, repository.ErrJobRestart},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()
			params := Params("2024-01-01", 1)

			je, err := repo.CreateJobExecution(ctx, "load", params, tt.restartable)
			require.NoError(t, err)
			finish(t, repo, je, tt.status)

			next, err := repo.CreateJobExecution(ctx, "load", params, tt.restartable)
			if tt.want == nil {
				require.NoError(t, err)
				assert.Equal(t, je.JobInstanceID, next.JobInstanceID)
				return
			}
			assert.Nil(t, next)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func testRestartCarriesContext(t *testing.T, repo repository.JobRepository) {
	ctx := context.Background()
	params := Params("2024-01-01", 1)

	je, err := repo.CreateJobExecution(ctx, "load", params, true)
	require.NoError(t, err)
	je.ExecutionContext.Put("cursor", "page-3")
	require.NoError(t, repo.UpdateJobExecutionContext(ctx, je))
	finish(t, repo, je, model.BatchStatusFailed)

	restarted, err := repo.CreateJobExecution(ctx, "load", params, true)
	require.NoError(t, err)
	cursor, ok := restarted.ExecutionContext.GetString("cursor")
	assert.True(t, ok)
	assert.Equal(t, "page-3", cursor)
	assert.Equal(t, model.BatchStatusStarting, restarted.Status)
}

func testConcurrentLaunch(t *testing.T, repo repository.JobRepository) {
	ctx := context.Background()
	params := Params("2024-01-01", 1)

	const launches = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []*model.JobExecution
		losers    []error
		startLine = make(chan struct{})
	)
	for i := 0; i < launches; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-startLine
			je, err := repo.CreateJobExecution(ctx, "load", params, true)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				losers = append(losers, err)
				return
			}
			winners = append(winners, je)
		}()
	}
	close(startLine)
	wg.Wait()

	require.Len(t, winners, 1)
	require.Len(t, losers, launches-1)
	for _, err := range losers {
		assert.True(t, errors.Is(err, repository.ErrJobExecutionAlreadyRunning), "unexpected error: %v", err)
	}

	instance, err := repo.GetJobInstance(ctx, winners[0].JobInstanceID)
	require.NoError(t, err)
	executions, err := repo.FindJobExecutions(ctx, instance)
	require.NoError(t, err)
	assert.Len(t, executions, 1)
}

func testUpdateRequiresID(t *testing.T, repo repository.JobRepository) {
	ctx := context.Background()
	je := model.NewJobExecution("", "load", Params("2024-01-01", 1))
	assert.ErrorIs(t, repo.UpdateJobExecution(ctx, je), repository.ErrUnassignedID)
	assert.ErrorIs(t, repo.UpdateJobExecutionContext(ctx, je), repository.ErrUnassignedID)

	se := model.NewStepExecution(je, "importStep")
	assert.ErrorIs(t, repo.UpdateStepExecution(ctx, se), repository.ErrUnassignedID)
	assert.ErrorIs(t, repo.UpdateStepExecutionContext(ctx, se), repository.ErrUnassignedID)
}

func testOptimisticLocking(t *testing.T, repo repository.JobRepository) {
	ctx := context.Background()
	je, err := repo.CreateJobExecution(ctx, "load", Params("2024-01-01", 1), true)
	require.NoError(t, err)

	stale, err := repo.GetJobExecution(ctx, je.ID)
	require.NoError(t, err)

	je.MarkAsStarted()
	require.NoError(t, repo.UpdateJobExecution(ctx, je))
	assert.Equal(t, 1, je.Version)

	stale.MarkAsStopping()
	err = repo.UpdateJobExecution(ctx, stale)
	require.Error(t, err)
	assert.True(t, exception.IsOptimisticLockingFailure(err))
}

func testContextUpdates(t *testing.T, repo repository.JobRepository) {
	ctx := context.Background()
	je, err := repo.CreateJobExecution(ctx, "load", Params("2024-01-01", 1), true)
	require.NoError(t, err)

	je.ExecutionContext.Put("offset", 10)
	require.NoError(t, repo.UpdateJobExecutionContext(ctx, je))
	require.NoError(t, repo.UpdateJobExecutionContext(ctx, je))
	je.ExecutionContext.Put("offset", 20)
	require.NoError(t, repo.UpdateJobExecutionContext(ctx, je))

	// A status update does not carry the context.
	je.ExecutionContext.Put("offset", 99)
	je.MarkAsStarted()
	require.NoError(t, repo.UpdateJobExecution(ctx, je))

	stored, err := repo.GetJobExecution(ctx, je.ID)
	require.NoError(t, err)
	offset, ok := stored.ExecutionContext.GetInt("offset")
	assert.True(t, ok)
	assert.Equal(t, 20, offset)
	assert.Equal(t, model.BatchStatusStarted, stored.Status)
}

func testStepExecutions(t *testing.T, repo repository.JobRepository) {
	ctx := context.Background()
	params := Params("2024-01-01", 1)
	je, err := repo.CreateJobExecution(ctx, "load", params, true)
	require.NoError(t, err)

	orphan := model.NewStepExecution(nil, "importStep")
	assert.ErrorIs(t, repo.AddStepExecution(ctx, orphan), repository.ErrUnassignedID)

	se := model.NewStepExecution(je, "importStep")
	require.NoError(t, repo.AddStepExecution(ctx, se))
	assert.NotEmpty(t, se.ID)
	assert.ErrorIs(t, repo.AddStepExecution(ctx, se), repository.ErrIDAlreadyAssigned)

	se.MarkAsStarted()
	se.ApplyContribution(model.StepContribution{ReadCount: 3, WriteCount: 2, ProcessSkipCount: 1})
	se.CommitCount = 1
	se.ExecutionContext.Put("read.count", 3)
	require.NoError(t, repo.UpdateStepExecution(ctx, se))
	require.NoError(t, repo.UpdateStepExecutionContext(ctx, se))
	se.MarkAsFailed(errors.New("disk full"))
	require.NoError(t, repo.UpdateStepExecution(ctx, se))

	stored, err := repo.GetStepExecution(ctx, je.ID, se.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, stored.Status)
	assert.Equal(t, 3, stored.ReadCount)
	assert.Equal(t, 2, stored.WriteCount)
	assert.Equal(t, 1, stored.ProcessSkipCount)
	assert.Equal(t, 1, stored.CommitCount)
	assert.Equal(t, model.FailureList{"disk full"}, stored.Failures)
	readCount, _ := stored.ExecutionContext.GetInt("read.count")
	assert.Equal(t, 3, readCount)
	require.NotNil(t, stored.JobExecution)
	assert.Equal(t, je.ID, stored.JobExecution.ID)

	finish(t, repo, je, model.BatchStatusFailed)
	restarted, err := repo.CreateJobExecution(ctx, "load", params, true)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	retry := model.NewStepExecution(restarted, "importStep")
	other := model.NewStepExecution(restarted, "exportStep")
	require.NoError(t, repo.AddStepExecutions(ctx, []*model.StepExecution{retry, other}))

	instance, err := repo.GetJobInstance(ctx, je.JobInstanceID)
	require.NoError(t, err)
	last, err := repo.GetLastStepExecution(ctx, instance, "importStep")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, retry.ID, last.ID)

	count, err := repo.GetStepExecutionCount(ctx, instance, "importStep")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	none, err := repo.GetLastStepExecution(ctx, instance, "missingStep")
	require.NoError(t, err)
	assert.Nil(t, none)

	loaded, err := repo.GetJobExecution(ctx, restarted.ID)
	require.NoError(t, err)
	require.Len(t, loaded.StepExecutions, 2)
	assert.ElementsMatch(t, []string{"importStep", "exportStep"}, []string{loaded.StepExecutions[0].StepName, loaded.StepExecutions[1].StepName})

	_, err = repo.GetStepExecution(ctx, je.ID, "missing")
	assert.ErrorIs(t, err, repository.ErrStepExecutionNotFound)
}

func testSynchronizeStatus(t *testing.T, repo repository.JobRepository) {
	ctx := context.Background()
	live, err := repo.CreateJobExecution(ctx, "load", Params("2024-01-01", 1), true)
	require.NoError(t, err)
	live.MarkAsStarted()
	require.NoError(t, repo.UpdateJobExecution(ctx, live))

	require.NoError(t, repo.SynchronizeStatus(ctx, live))
	assert.Equal(t, model.BatchStatusStarted, live.Status, "nothing newer is stored")

	operatorCopy, err := repo.GetJobExecution(ctx, live.ID)
	require.NoError(t, err)
	operatorCopy.MarkAsStopping()
	require.NoError(t, repo.UpdateJobExecution(ctx, operatorCopy))

	require.NoError(t, repo.SynchronizeStatus(ctx, live))
	assert.Equal(t, model.BatchStatusStopping, live.Status)
	assert.True(t, live.IsStopRequested())

	live.Finish(model.BatchStatusStopped, model.ExitStatusStopped)
	require.NoError(t, repo.UpdateJobExecution(ctx, live), "a synchronized execution can be updated again")
}

func testExplorerQueries(t *testing.T, repo repository.JobRepository) {
	ctx := context.Background()
	var ids []string
	for _, day := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		je, err := repo.CreateJobExecution(ctx, "load", Params(day, 1), true)
		require.NoError(t, err)
		ids = append(ids, je.ID)
	}
	done, err := repo.CreateJobExecution(ctx, "export", Params("2024-01-01", 1), true)
	require.NoError(t, err)
	finish(t, repo, done, model.BatchStatusCompleted)

	names, err := repo.GetJobNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"export", "load"}, names)

	page, err := repo.FindJobInstancesByName(ctx, "load", 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	day, _ := page[0].Parameters.GetString("run_date")
	assert.Equal(t, "2024-01-03", day, "newest instance first")

	page, err = repo.FindJobInstancesByName(ctx, "load", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)

	page, err = repo.FindJobInstancesByName(ctx, "load", 5, 2)
	require.NoError(t, err)
	assert.Empty(t, page)

	running, err := repo.FindRunningJobExecutions(ctx, "load")
	require.NoError(t, err)
	assert.Len(t, running, 3)
	running, err = repo.FindRunningJobExecutions(ctx, "export")
	require.NoError(t, err)
	assert.Empty(t, running)

	last, err := repo.GetLastJobExecution(ctx, "export", Params("2024-01-01", 7))
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, model.BatchStatusCompleted, last.Status)

	missing, err := repo.GetLastJobExecution(ctx, "export", Params("1999-01-01", 1))
	require.NoError(t, err)
	assert.Nil(t, missing)

	instance, err := repo.FindJobInstance(ctx, "load", Params("2024-01-02", 3))
	require.NoError(t, err)
	require.NotNil(t, instance)
	noInstance, err := repo.FindJobInstance(ctx, "load", Params("1999-01-01", 1))
	require.NoError(t, err)
	assert.Nil(t, noInstance)

	_, err = repo.GetJobExecution(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)
	_, err = repo.GetJobInstance(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)
}

func testDuplicateInstance(t *testing.T, repo repository.JobRepository) {
	ctx := context.Background()
	instance, err := repo.CreateJobInstance(ctx, "load", Params("2024-01-01", 1))
	require.NoError(t, err)
	assert.NotEmpty(t, instance.ID)

	_, err = repo.CreateJobInstance(ctx, "load", Params("2024-01-01", 2))
	assert.ErrorIs(t, err, repository.ErrJobInstanceAlreadyExists)

	// An instance without executions is treated as new by CreateJobExecution.
	je, err := repo.CreateJobExecution(ctx, "load", Params("2024-01-01", 3), false)
	require.NoError(t, err)
	assert.Equal(t, instance.ID, je.JobInstanceID)
}
