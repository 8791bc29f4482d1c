package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// runningExecution is an execution being run by this launcher.
type runningExecution struct {
	execution *model.JobExecution
	cancel    context.CancelFunc
	done      chan struct{}
}

// SimpleJobLauncher implements JobLauncher for local execution.
// It tracks the executions it is running so that an operator can reach them.
type SimpleJobLauncher struct {
	jobRepository repository.JobRepository

	mu      sync.Mutex
	running map[string]*runningExecution
	wg      sync.WaitGroup
}

// Verify that SimpleJobLauncher implements the JobLauncher interface.
var _ JobLauncher = (*SimpleJobLauncher)(nil)

// NewSimpleJobLauncher creates a new SimpleJobLauncher.
func NewSimpleJobLauncher(repo repository.JobRepository) *SimpleJobLauncher {
	return &SimpleJobLauncher{
		jobRepository: repo,
		running:       make(map[string]*runningExecution),
	}
}

// Run launches a job execution and waits for it to end.
func (l *SimpleJobLauncher) Run(ctx context.Context, job port.Job, params model.JobParameters) (*model.JobExecution, error) {
	jobExecution, err := l.prepare(ctx, job, params)
	if err != nil {
		return nil, err
	}
	jobCtx, run := l.track(ctx, jobExecution)
	defer l.untrack(jobExecution.ID, run)

	job.Execute(jobCtx, jobExecution)
	return jobExecution, nil
}

// Launch launches a job execution on a new goroutine.
func (l *SimpleJobLauncher) Launch(ctx context.Context, job port.Job, params model.JobParameters) (*model.JobExecution, error) {
	jobExecution, err := l.prepare(ctx, job, params)
	if err != nil {
		return nil, err
	}
	jobCtx, run := l.track(ctx, jobExecution)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.untrack(jobExecution.ID, run)
		job.Execute(jobCtx, jobExecution)
	}()
	return jobExecution, nil
}

// prepare validates params and creates the STARTING execution. No execution record is
// created when validation fails.
func (l *SimpleJobLauncher) prepare(ctx context.Context, job port.Job, params model.JobParameters) (*model.JobExecution, error) {
	if job == nil {
		return nil, exception.NewBatchErrorf("job_launcher", "no job given to launch")
	}
	jobName := job.JobName()
	logger.Infof("Launching Job '%s' using JobLauncher. Parameters: %s", jobName, params.String())

	if validator := job.JobParametersValidator(); validator != nil {
		if err := validator.Validate(params); err != nil {
			if !errors.Is(err, port.ErrJobParametersInvalid) {
				err = fmt.Errorf("%w: %v", port.ErrJobParametersInvalid, err)
			}
			logger.Errorf("Job '%s': JobParameters validation failed: %v", jobName, err)
			return nil, exception.NewBatchErrorf("job_launcher", "JobParameters %s rejected for job '%s'", params.String(), jobName, err)
		}
	}

	jobExecution, err := l.jobRepository.CreateJobExecution(ctx, jobName, params, job.IsRestartable())
	if err != nil {
		logger.Errorf("Job '%s': could not create a job execution: %v", jobName, err)
		return nil, exception.NewBatchErrorf("job_launcher", "failed to create an execution of job '%s'", jobName, err)
	}
	logger.Debugf("Created JobExecution (ID: %s, Job Instance ID: %s) for Job '%s'.", jobExecution.ID, jobExecution.JobInstanceID, jobName)
	return jobExecution, nil
}

func (l *SimpleJobLauncher) track(ctx context.Context, jobExecution *model.JobExecution) (context.Context, *runningExecution) {
	jobCtx, cancel := context.WithCancel(ctx)
	run := &runningExecution{execution: jobExecution, cancel: cancel, done: make(chan struct{})}
	l.mu.Lock()
	l.running[jobExecution.ID] = run
	l.mu.Unlock()
	logger.Debugf("Tracking JobExecution (ID: %s).", jobExecution.ID)
	return jobCtx, run
}

func (l *SimpleJobLauncher) untrack(executionID string, run *runningExecution) {
	l.mu.Lock()
	delete(l.running, executionID)
	l.mu.Unlock()
	run.cancel()
	close(run.done)
	logger.Debugf("JobExecution (ID: %s) is no longer tracked.", executionID)
}

// Running returns the in-process execution with the given ID while it is being run.
func (l *SimpleJobLauncher) Running(executionID string) (*model.JobExecution, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	run, ok := l.running[executionID]
	if !ok {
		return nil, false
	}
	return run.execution, true
}

// RunningCount returns how many executions this launcher is running.
func (l *SimpleJobLauncher) RunningCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.running)
}

// Await blocks until the execution launched by this launcher ends and returns it.
// Executions that are not running here are loaded from the repository.
func (l *SimpleJobLauncher) Await(ctx context.Context, executionID string) (*model.JobExecution, error) {
	l.mu.Lock()
	run, ok := l.running[executionID]
	l.mu.Unlock()
	if !ok {
		return l.jobRepository.GetJobExecution(ctx, executionID)
	}
	select {
	case <-run.done:
		return run.execution, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown cancels the context of every running execution and waits for the launched
// goroutines to return, or for ctx to end.
func (l *SimpleJobLauncher) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	for id, run := range l.running {
		logger.Infof("JobLauncher: cancelling JobExecution (ID: %s) on shutdown.", id)
		run.cancel()
	}
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return exception.NewBatchErrorf("job_launcher", "%d job execution(s) still running at shutdown", l.RunningCount(), ctx.Err())
	}
}
