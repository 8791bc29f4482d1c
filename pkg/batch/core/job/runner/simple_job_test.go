package runner_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/job/runner"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-engine/pkg/batch/engine/step"
	"github.com/tigerroll/surfin-engine/pkg/batch/engine/step/tasklet"
	"github.com/tigerroll/surfin-engine/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/surfin-engine/pkg/batch/listener"
)

// progressTasklet runs one iteration per call and fails while fail is set. It saves the
// number of successful runs in the step context.
type progressTasklet struct {
	runs       int
	fail       bool
	openedWith int64
}

func (p *progressTasklet) Execute(ctx context.Context, c *model.StepContribution, se *model.StepExecution) (model.RepeatStatus, error) {
	if p.fail {
		return model.RepeatStatusFinished, errors.New("step broke")
	}
	p.runs++
	return model.RepeatStatusFinished, nil
}

func (p *progressTasklet) Open(ctx context.Context, ec model.ExecutionContext) error {
	p.openedWith, _ = ec.GetInt64("progress")
	return nil
}

func (p *progressTasklet) Update(ctx context.Context, ec model.ExecutionContext) error {
	ec.Put("progress", int64(p.runs))
	return nil
}

func (p *progressTasklet) Close(ctx context.Context) error { return nil }

type fixture struct {
	repo repository.JobRepository
	tm   tx.TransactionManager
}

func newFixture() *fixture {
	return &fixture{repo: inmemory.NewInMemoryJobRepository(), tm: tx.NewResourcelessTransactionManager()}
}

func (f *fixture) step(name string, work *progressTasklet, opts step.Options, listeners ...port.StepListener) port.Step {
	return tasklet.NewTaskletStep(name, work, f.repo, f.tm, listener.NewRegistry(listeners...), opts)
}

func (f *fixture) launch(t *testing.T, job port.Job) *model.JobExecution {
	t.Helper()
	params := model.NewJobParametersBuilder().AddString("run_date", "2024-01-01").ToJobParameters()
	je, err := f.repo.CreateJobExecution(context.Background(), job.JobName(), params, job.IsRestartable())
	require.NoError(t, err)
	job.Execute(context.Background(), je)
	return je
}

type jobListener struct {
	beforeErr error
	afterErr  error
	after     []model.BatchStatus
}

func (l *jobListener) BeforeJob(ctx context.Context, je *model.JobExecution) error {
	return l.beforeErr
}

func (l *jobListener) AfterJob(ctx context.Context, je *model.JobExecution) error {
	l.after = append(l.after, je.Status)
	return l.afterErr
}

func TestSimpleJobRunsStepsInOrder(t *testing.T) {
	f := newFixture()
	first, second := &progressTasklet{}, &progressTasklet{}
	events := &jobListener{}
	job := runner.NewSimpleJob("load", f.repo, []port.Step{
		f.step("extract", first, step.Options{}),
		f.step("import", second, step.Options{}),
	}, runner.WithJobListeners(events))

	je := f.launch(t, job)

	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Equal(t, model.ExitCodeCompleted, je.ExitStatus.ExitCode)
	assert.NotNil(t, je.EndTime)
	require.Len(t, je.StepExecutions, 2)
	assert.Equal(t, "extract", je.StepExecutions[0].StepName)
	assert.Equal(t, "import", je.StepExecutions[1].StepName)
	assert.Equal(t, []model.BatchStatus{model.BatchStatusCompleted}, events.after)

	stored, err := f.repo.GetJobExecution(context.Background(), je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, stored.Status)
	assert.Len(t, stored.StepExecutions, 2)
}

func TestSimpleJobStopsAfterFailedStep(t *testing.T) {
	f := newFixture()
	second := &progressTasklet{}
	job := runner.NewSimpleJob("load", f.repo, []port.Step{
		f.step("extract", &progressTasklet{fail: true}, step.Options{}),
		f.step("import", second, step.Options{}),
	})

	je := f.launch(t, job)

	assert.Equal(t, model.BatchStatusFailed, je.Status)
	assert.Equal(t, model.ExitCodeFailed, je.ExitStatus.ExitCode)
	assert.Len(t, je.StepExecutions, 1)
	assert.Zero(t, second.runs)
}

func TestSimpleJobRestartSkipsCompletedSteps(t *testing.T) {
	f := newFixture()
	first := &progressTasklet{}
	second := &progressTasklet{fail: true}
	job := runner.NewSimpleJob("load", f.repo, []port.Step{
		f.step("extract", first, step.Options{}),
		f.step("import", second, step.Options{}),
	})

	failed := f.launch(t, job)
	require.Equal(t, model.BatchStatusFailed, failed.Status)

	second.fail = false
	restarted := f.launch(t, job)

	assert.NotEqual(t, failed.ID, restarted.ID)
	assert.Equal(t, failed.JobInstanceID, restarted.JobInstanceID)
	assert.Equal(t, model.BatchStatusCompleted, restarted.Status)
	assert.Equal(t, 1, first.runs, "a completed step is not run again")
	assert.Equal(t, 1, second.runs)
	require.Len(t, restarted.StepExecutions, 1)
	assert.Equal(t, "import", restarted.StepExecutions[0].StepName)

	_, err := f.repo.CreateJobExecution(context.Background(), "load",
		model.NewJobParametersBuilder().AddString("run_date", "2024-01-01").ToJobParameters(), true)
	assert.ErrorIs(t, err, repository.ErrJobInstanceAlreadyComplete)
}

// resumableTasklet counts to three, one iteration per transaction, failing on iteration failAt.
type resumableTasklet struct {
	count      int
	failAt     int
	openedWith int64
}

func (r *resumableTasklet) Execute(ctx context.Context, c *model.StepContribution, se *model.StepExecution) (model.RepeatStatus, error) {
	r.count++
	if r.count == r.failAt {
		return model.RepeatStatusFinished, errors.New("interrupted")
	}
	return model.ContinueIf(r.count < 3), nil
}

func (r *resumableTasklet) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.openedWith, _ = ec.GetInt64("count")
	r.count = int(r.openedWith)
	return nil
}

func (r *resumableTasklet) Update(ctx context.Context, ec model.ExecutionContext) error {
	ec.Put("count", int64(r.count))
	return nil
}

func (r *resumableTasklet) Close(ctx context.Context) error { return nil }

func TestSimpleJobRestoresContextOfFailedStep(t *testing.T) {
	f := newFixture()
	work := &resumableTasklet{failAt: 2}
	job := runner.NewSimpleJob("load", f.repo, []port.Step{
		tasklet.NewTaskletStep("import", work, f.repo, f.tm, nil, step.Options{}),
	})

	failed := f.launch(t, job)
	require.Equal(t, model.BatchStatusFailed, failed.Status)
	assert.Equal(t, int64(1), failed.StepExecutions[0].ExecutionContext["count"])

	work.failAt = 0
	restarted := f.launch(t, job)
	assert.Equal(t, model.BatchStatusCompleted, restarted.Status)
	assert.Equal(t, int64(1), work.openedWith, "the restarted step opens with the context saved by the failed one")
	assert.Equal(t, 2, restarted.StepExecutions[0].CommitCount)
}

func TestSimpleJobBeforeJobErrorFailsWithoutSteps(t *testing.T) {
	f := newFixture()
	work := &progressTasklet{}
	events := &jobListener{beforeErr: errors.New("not today")}
	job := runner.NewSimpleJob("load", f.repo, []port.Step{f.step("import", work, step.Options{})},
		runner.WithJobListeners(events))

	je := f.launch(t, job)

	assert.Equal(t, model.BatchStatusFailed, je.Status)
	assert.Contains(t, je.ExitStatus.ExitDescription, "not today")
	assert.Empty(t, je.StepExecutions)
	assert.Zero(t, work.runs)
	assert.Equal(t, []model.BatchStatus{model.BatchStatusFailed}, events.after)
}

func TestSimpleJobIgnoresAfterJobError(t *testing.T) {
	f := newFixture()
	work := &progressTasklet{}
	events := &jobListener{afterErr: errors.New("notification failed")}
	job := runner.NewSimpleJob("load", f.repo, []port.Step{f.step("import", work, step.Options{})},
		runner.WithJobListeners(events))

	je := f.launch(t, job)

	assert.Equal(t, []model.BatchStatus{model.BatchStatusCompleted}, events.after)
	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Equal(t, model.ExitCodeCompleted, je.ExitStatus.ExitCode)
	assert.Equal(t, 1, work.runs)

	stored, err := f.repo.GetJobExecution(context.Background(), je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, stored.Status)
	assert.Equal(t, model.ExitCodeCompleted, stored.ExitStatus.ExitCode)
}

func TestSimpleJobEnforcesStartLimit(t *testing.T) {
	f := newFixture()
	work := &progressTasklet{fail: true}
	job := runner.NewSimpleJob("load", f.repo, []port.Step{f.step("import", work, step.Options{StartLimit: 1})})

	require.Equal(t, model.BatchStatusFailed, f.launch(t, job).Status)

	work.fail = false
	restarted := f.launch(t, job)
	assert.Equal(t, model.BatchStatusFailed, restarted.Status)
	assert.Empty(t, restarted.StepExecutions)
	assert.Zero(t, work.runs)
	require.NotEmpty(t, restarted.Failures)
	assert.Contains(t, restarted.Failures[0], "start limit")
}

func TestSimpleJobRerunsStepAllowedToStartIfComplete(t *testing.T) {
	f := newFixture()
	always := &progressTasklet{}
	flaky := &progressTasklet{fail: true}
	job := runner.NewSimpleJob("load", f.repo, []port.Step{
		f.step("prepare", always, step.Options{AllowStartIfComplete: true}),
		f.step("import", flaky, step.Options{}),
	})

	require.Equal(t, model.BatchStatusFailed, f.launch(t, job).Status)
	flaky.fail = false
	assert.Equal(t, model.BatchStatusCompleted, f.launch(t, job).Status)
	assert.Equal(t, 2, always.runs)
}

func TestSimpleJobHonoursStopBeforeStep(t *testing.T) {
	f := newFixture()
	second := &progressTasklet{}
	stopper := &stopAfterStep{}
	job := runner.NewSimpleJob("load", f.repo, []port.Step{
		f.step("extract", &progressTasklet{}, step.Options{}, stopper),
		f.step("import", second, step.Options{}),
	})

	je := f.launch(t, job)

	assert.Equal(t, model.BatchStatusStopped, je.Status)
	assert.Equal(t, model.ExitCodeStopped, je.ExitStatus.ExitCode)
	assert.Zero(t, second.runs)
}

type stopAfterStep struct{}

func (stopAfterStep) BeforeStep(ctx context.Context, se *model.StepExecution) error { return nil }

func (stopAfterStep) AfterStep(ctx context.Context, se *model.StepExecution) (*model.ExitStatus, error) {
	se.JobExecution.RequestStop()
	return nil, nil
}

func TestSimpleJobCarriesCustomExitCode(t *testing.T) {
	f := newFixture()
	job := runner.NewSimpleJob("load", f.repo, []port.Step{
		f.step("extract", &progressTasklet{}, step.Options{}, exitCode("COMPLETED_WITH_SKIPS")),
		f.step("import", &progressTasklet{}, step.Options{}),
	})

	je := f.launch(t, job)

	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Equal(t, "COMPLETED_WITH_SKIPS", je.ExitStatus.ExitCode)
}

type exitCode string

func (exitCode) BeforeStep(ctx context.Context, se *model.StepExecution) error { return nil }

func (c exitCode) AfterStep(ctx context.Context, se *model.StepExecution) (*model.ExitStatus, error) {
	return &model.ExitStatus{ExitCode: string(c)}, nil
}

func TestSimpleJobWithoutSteps(t *testing.T) {
	f := newFixture()
	je := f.launch(t, runner.NewSimpleJob("empty", f.repo, nil))
	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Equal(t, model.ExitCodeNoop, je.ExitStatus.ExitCode)
}

func TestJobBuilderSharesListeners(t *testing.T) {
	f := newFixture()
	events := &jobListener{}
	b := runner.NewJobBuilder(runner.JobBuilderParams{JobRepository: f.repo, Listeners: listener.NewRegistry(events)})
	job := b.Build("load", []port.Step{f.step("import", &progressTasklet{}, step.Options{})}, runner.WithRestartable(false))

	assert.False(t, job.IsRestartable())
	assert.Len(t, job.Steps(), 1)
	f.launch(t, job)
	assert.Equal(t, []model.BatchStatus{model.BatchStatusCompleted}, events.after)
}
