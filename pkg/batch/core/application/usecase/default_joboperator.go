package usecase

import (
	"context"
	"errors"
	"fmt"

	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/job/registry"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/support/parameters"
	exception "github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

var (
	// ErrJobExecutionNotRunning is returned when stopping an execution that has already ended.
	ErrJobExecutionNotRunning = errors.New("job execution is not running")
	// ErrNoIncrementer is returned by StartNextInstance for a job without a JobParametersIncrementer.
	ErrNoIncrementer = errors.New("job has no parameters incrementer")
)

func init() {
	exception.RegisterErrorType("JobExecutionNotRunningException", ErrJobExecutionNotRunning)
	exception.RegisterErrorType("JobParametersIncrementerNotFoundException", ErrNoIncrementer)
}

// DefaultJobOperator is the default implementation of the JobOperator interface.
// Jobs are looked up by name in a JobLocator and launched asynchronously.
type DefaultJobOperator struct {
	jobRepository repository.JobRepository
	jobLocator    registry.JobLocator
	jobLauncher   *SimpleJobLauncher
	converter     *parameters.DefaultJobParametersConverter
}

// Verify that DefaultJobOperator implements the JobOperator interface.
var _ JobOperator = (*DefaultJobOperator)(nil)

// NewDefaultJobOperator creates a new instance of DefaultJobOperator.
func NewDefaultJobOperator(jobRepository repository.JobRepository, jobLocator registry.JobLocator, jobLauncher *SimpleJobLauncher) *DefaultJobOperator {
	return &DefaultJobOperator{
		jobRepository: jobRepository,
		jobLocator:    jobLocator,
		jobLauncher:   jobLauncher,
		converter:     parameters.NewDefaultJobParametersConverter(),
	}
}

// Start launches a new instance of the named job.
func (o *DefaultJobOperator) Start(ctx context.Context, jobName string, properties []string) (*model.JobExecution, error) {
	logger.Infof("JobOperator: Start method called. Job: %s, Parameters: %v", jobName, properties)

	job, err := o.jobLocator.GetJob(jobName)
	if err != nil {
		return nil, err
	}
	params, err := o.converter.GetJobParameters(properties)
	if err != nil {
		return nil, exception.NewBatchErrorf("job_operator", "Start processing error: invalid parameters for job '%s'", jobName, err)
	}

	exists, err := o.jobRepository.JobInstanceExists(ctx, jobName, params)
	if err != nil {
		return nil, exception.NewBatchErrorf("job_operator", "Start processing error: failed to look up the instance of job '%s'", jobName, err)
	}
	if exists {
		return nil, repository.NewError(repository.ErrJobInstanceAlreadyExists,
			"job '%s' already has an instance for parameters %s; use Restart or StartNextInstance", jobName, params.String())
	}
	return o.jobLauncher.Launch(ctx, job, params)
}

// StartNextInstance launches the named job with the parameters following those of its last instance.
func (o *DefaultJobOperator) StartNextInstance(ctx context.Context, jobName string) (*model.JobExecution, error) {
	logger.Infof("JobOperator: StartNextInstance method called. Job: %s", jobName)

	job, err := o.jobLocator.GetJob(jobName)
	if err != nil {
		return nil, err
	}
	incrementer := job.JobParametersIncrementer()
	if incrementer == nil {
		return nil, exception.NewBatchErrorf("job_operator", "job '%s' cannot start a next instance", jobName, ErrNoIncrementer)
	}

	previous, err := o.lastParameters(ctx, jobName)
	if err != nil {
		return nil, err
	}
	next := incrementer.GetNext(previous)
	logger.Infof("JobOperator: next parameters of job '%s': %s", jobName, next.String())
	return o.jobLauncher.Launch(ctx, job, next)
}

// lastParameters returns the parameters of the newest execution of the newest instance,
// or empty parameters for a job that never ran.
func (o *DefaultJobOperator) lastParameters(ctx context.Context, jobName string) (model.JobParameters, error) {
	instances, err := o.jobRepository.FindJobInstancesByName(ctx, jobName, 0, 1)
	if err != nil {
		return model.JobParameters{}, exception.NewBatchErrorf("job_operator", "failed to find the last instance of job '%s'", jobName, err)
	}
	if len(instances) == 0 {
		return model.NewJobParametersBuilder().ToJobParameters(), nil
	}
	executions, err := o.jobRepository.FindJobExecutions(ctx, instances[0])
	if err != nil {
		return model.JobParameters{}, exception.NewBatchErrorf("job_operator", "failed to find the executions of job instance %s", instances[0].ID, err)
	}
	if len(executions) == 0 {
		return instances[0].Parameters, nil
	}
	return executions[0].Parameters, nil
}

// Restart launches a new execution of the instance of executionID.
func (o *DefaultJobOperator) Restart(ctx context.Context, executionID string) (*model.JobExecution, error) {
	logger.Infof("JobOperator: Restart method called. Execution ID: %s", executionID)

	previous, err := o.jobRepository.GetJobExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if previous.Status != model.BatchStatusFailed && previous.Status != model.BatchStatusStopped {
		return nil, repository.NewError(repository.ErrJobRestart,
			"JobExecution (ID: %s) is not in a restartable state (current status: %s)", executionID, previous.Status)
	}
	job, err := o.jobLocator.GetJob(previous.JobName)
	if err != nil {
		return nil, err
	}

	last, err := o.jobRepository.GetLastJobExecution(ctx, previous.JobName, previous.Parameters)
	if err != nil {
		return nil, exception.NewBatchErrorf("job_operator", "Restart processing error: failed to load the last execution of job '%s'", previous.JobName, err)
	}
	if last != nil && last.ID != previous.ID {
		return nil, repository.NewError(repository.ErrJobRestart,
			"JobExecution (ID: %s) is not the last execution of its instance; the last one is %s (%s)", executionID, last.ID, last.Status)
	}

	execution, err := o.jobLauncher.Launch(ctx, job, previous.Parameters)
	if err != nil {
		return nil, err
	}
	logger.Infof("Restart of Job '%s' (Execution ID: %s) started. New execution ID: %s", previous.JobName, executionID, execution.ID)
	return execution, nil
}

// Stop records STOPPING for a running execution and raises the stop flag of the execution
// when it runs in this process.
func (o *DefaultJobOperator) Stop(ctx context.Context, executionID string) error {
	logger.Infof("JobOperator: Stop method called. Execution ID: %s", executionID)

	// A runner may persist the execution between the read and the write, so a
	// conflicting update is retried once against the fresh state.
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var je *model.JobExecution
		je, err = o.jobRepository.GetJobExecution(ctx, executionID)
		if err != nil {
			return err
		}
		if je.Status == model.BatchStatusStopping {
			o.requestStop(executionID)
			return nil
		}
		if !je.Status.IsRunning() {
			return exception.NewBatchErrorf("job_operator", "JobExecution (ID: %s) cannot be stopped (current status: %s)", executionID, je.Status, ErrJobExecutionNotRunning)
		}
		je.MarkAsStopping()
		if err = o.jobRepository.UpdateJobExecution(ctx, je); err == nil {
			o.requestStop(executionID)
			logger.Infof("JobExecution (ID: %s) is STOPPING.", executionID)
			return nil
		}
		if !exception.IsOptimisticLockingFailure(err) {
			break
		}
		logger.Debugf("JobExecution (ID: %s) changed while stopping, retrying.", executionID)
	}
	return exception.NewBatchErrorf("job_operator", "failed to stop JobExecution (ID: %s)", executionID, err)
}

func (o *DefaultJobOperator) requestStop(executionID string) {
	if live, ok := o.jobLauncher.Running(executionID); ok {
		live.RequestStop()
		logger.Debugf("Raised the stop flag of in-process JobExecution (ID: %s).", executionID)
	}
}

// Abandon marks a STOPPED, FAILED or STOPPING execution ABANDONED.
func (o *DefaultJobOperator) Abandon(ctx context.Context, executionID string) (*model.JobExecution, error) {
	logger.Infof("JobOperator: Abandon method called. Execution ID: %s", executionID)

	je, err := o.jobRepository.GetJobExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	switch je.Status {
	case model.BatchStatusStopped, model.BatchStatusFailed, model.BatchStatusStopping:
	case model.BatchStatusStarting, model.BatchStatusStarted:
		return nil, repository.NewError(repository.ErrJobExecutionAlreadyRunning,
			"JobExecution (ID: %s) is running and cannot be abandoned; stop it first", executionID)
	default:
		return nil, exception.NewBatchErrorf("job_operator", "JobExecution (ID: %s) cannot be abandoned (current status: %s)", executionID, je.Status)
	}

	je.MarkAsAbandoned()
	if err := o.jobRepository.UpdateJobExecution(ctx, je); err != nil {
		return nil, exception.NewBatchError("job_operator", fmt.Sprintf("failed to abandon JobExecution (ID: %s)", executionID), err, false, false)
	}
	o.requestStop(executionID)
	logger.Infof("JobExecution (ID: %s) is ABANDONED.", executionID)
	return je, nil
}

// GetRunningExecutions returns the executions of the job that have not finished.
func (o *DefaultJobOperator) GetRunningExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	return o.jobRepository.FindRunningJobExecutions(ctx, jobName)
}

// GetJobNames returns the names of the registered jobs.
func (o *DefaultJobOperator) GetJobNames() []string {
	return o.jobLocator.GetJobNames()
}
