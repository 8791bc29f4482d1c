// Package runner executes jobs made of an ordered list of steps.
package runner

import (
	"context"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-engine/pkg/batch/listener"
	exception "github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// SimpleJob runs its steps one after another. It stops at the first step that ends
// FAILED or STOPPED.
type SimpleJob struct {
	name          string
	steps         []port.Step
	jobRepository repository.JobRepository
	listeners     *listener.Registry
	restartable   bool
	validator     port.JobParametersValidator
	incrementer   port.JobParametersIncrementer
}

// Verify that SimpleJob implements the port.Job interface.
var _ port.Job = (*SimpleJob)(nil)

// JobOption configures a SimpleJob.
type JobOption func(*SimpleJob)

// WithRestartable sets whether a failed or stopped execution may be restarted. Jobs are restartable by default.
func WithRestartable(restartable bool) JobOption {
	return func(j *SimpleJob) { j.restartable = restartable }
}

// WithValidator sets the validator applied before launch.
func WithValidator(v port.JobParametersValidator) JobOption {
	return func(j *SimpleJob) { j.validator = v }
}

// WithIncrementer sets the incrementer used to start the next instance.
func WithIncrementer(i port.JobParametersIncrementer) JobOption {
	return func(j *SimpleJob) { j.incrementer = i }
}

// WithJobListeners adds listeners notified around the job.
func WithJobListeners(listeners ...port.StepListener) JobOption {
	return func(j *SimpleJob) { j.listeners = j.listeners.With(listener.NewRegistry(listeners...)) }
}

// WithRegistry adds the listeners of r.
func WithRegistry(r *listener.Registry) JobOption {
	return func(j *SimpleJob) { j.listeners = j.listeners.With(r) }
}

// NewSimpleJob creates a new instance of SimpleJob.
func NewSimpleJob(name string, jobRepository repository.JobRepository, steps []port.Step, opts ...JobOption) *SimpleJob {
	j := &SimpleJob{
		name:          name,
		steps:         steps,
		jobRepository: jobRepository,
		restartable:   true,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// JobName returns the job name.
func (j *SimpleJob) JobName() string {
	return j.name
}

// Steps returns the steps in execution order.
func (j *SimpleJob) Steps() []port.Step {
	return append([]port.Step(nil), j.steps...)
}

func (j *SimpleJob) IsRestartable() bool { return j.restartable }

func (j *SimpleJob) JobParametersValidator() port.JobParametersValidator { return j.validator }

func (j *SimpleJob) JobParametersIncrementer() port.JobParametersIncrementer { return j.incrementer }

// Execute runs the steps and records the outcome in jobExecution.
//
// The job status is the UpgradeTo-fold of the step statuses and the exit status their
// And-fold. Steps completed by an earlier execution of the instance are not run again,
// but their outcome takes part in the fold.
func (j *SimpleJob) Execute(ctx context.Context, jobExecution *model.JobExecution) {
	logger.Infof("Starting Job '%s' (Execution ID: %s, Parameters: %s).", j.name, jobExecution.ID, jobExecution.Parameters.String())
	persistCtx := context.WithoutCancel(ctx)

	if err := j.start(ctx, jobExecution); err != nil {
		logger.Errorf("Job '%s': failed to mark execution %s STARTED: %v", j.name, jobExecution.ID, err)
		jobExecution.AddFailureException(err)
		j.finish(persistCtx, jobExecution, model.BatchStatusFailed, model.ExitStatusFailed.AddExitDescriptionFromError(err))
		return
	}

	if err := j.listeners.BeforeJob(ctx, jobExecution); err != nil {
		logger.Errorf("Job '%s': before-job listener failed, no step is run: %v", j.name, err)
		jobExecution.AddFailureException(err)
		j.complete(ctx, persistCtx, jobExecution, model.BatchStatusFailed, model.ExitStatusFailed.AddExitDescriptionFromError(err))
		return
	}

	status, exitStatus := j.runSteps(ctx, jobExecution)
	j.complete(ctx, persistCtx, jobExecution, status, exitStatus)
}

// start marks the execution STARTED and persists it. A STOPPING status written by an
// operator before the first update is kept.
func (j *SimpleJob) start(ctx context.Context, jobExecution *model.JobExecution) error {
	jobExecution.MarkAsStarted()
	err := j.jobRepository.UpdateJobExecution(ctx, jobExecution)
	if !exception.IsOptimisticLockingFailure(err) {
		return err
	}
	if syncErr := j.jobRepository.SynchronizeStatus(ctx, jobExecution); syncErr != nil {
		return err
	}
	logger.Debugf("Job '%s': execution %s was updated before it started, status is now %s.", j.name, jobExecution.ID, jobExecution.Status)
	return j.jobRepository.UpdateJobExecution(ctx, jobExecution)
}

// runSteps runs the steps in order and folds their outcome.
func (j *SimpleJob) runSteps(ctx context.Context, jobExecution *model.JobExecution) (model.BatchStatus, model.ExitStatus) {
	status := model.BatchStatusCompleted
	exitStatus := model.ExitStatusCompleted
	if len(j.steps) == 0 {
		return status, model.ExitStatusNoop.AddExitDescription("job has no steps")
	}

	instance, err := j.jobRepository.GetJobInstance(ctx, jobExecution.JobInstanceID)
	if err != nil {
		jobExecution.AddFailureException(err)
		return model.BatchStatusFailed, model.ExitStatusFailed.AddExitDescriptionFromError(err)
	}
	handler := &stepHandler{repository: j.jobRepository, instance: instance}

	for i, step := range j.steps {
		if j.stopRequested(ctx, jobExecution) {
			logger.Infof("Job '%s': stop requested, %d step(s) not run.", j.name, len(j.steps)-i)
			return status.UpgradeTo(model.BatchStatusStopped), exitStatus.And(model.ExitStatusStopped)
		}

		se, reused, err := handler.handle(ctx, step, jobExecution)
		if se == nil {
			logger.Errorf("Job '%s': step '%s' could not be started: %v", j.name, step.StepName(), err)
			jobExecution.AddFailureException(err)
			return model.BatchStatusFailed, exitStatus.And(model.ExitStatusFailed.AddExitDescriptionFromError(err))
		}
		if err != nil {
			logger.Errorf("Job '%s': step '%s' did not record its outcome: %v", j.name, step.StepName(), err)
			jobExecution.AddFailureException(err)
		}
		if !reused {
			if err := j.jobRepository.UpdateJobExecutionContext(ctx, jobExecution); err != nil {
				logger.Warnf("Job '%s': failed to persist job execution context after step '%s': %v", j.name, se.StepName, err)
			}
		}

		status = status.UpgradeTo(se.Status)
		exitStatus = exitStatus.And(se.ExitStatus)
		if se.Status == model.BatchStatusFailed || se.Status == model.BatchStatusStopped || se.Status == model.BatchStatusUnknown {
			logger.Infof("Job '%s': step '%s' ended %s, no further step is run.", j.name, se.StepName, se.Status)
			break
		}
	}
	return status, exitStatus
}

func (j *SimpleJob) stopRequested(ctx context.Context, jobExecution *model.JobExecution) bool {
	if ctx.Err() != nil || jobExecution.IsStopRequested() {
		return true
	}
	if err := j.jobRepository.SynchronizeStatus(ctx, jobExecution); err != nil {
		logger.Warnf("Job '%s': failed to synchronize status of execution %s: %v", j.name, jobExecution.ID, err)
		return false
	}
	return jobExecution.Status == model.BatchStatusStopping
}

// complete records the final status, notifies the after-job listeners and persists the execution.
func (j *SimpleJob) complete(ctx, persistCtx context.Context, jobExecution *model.JobExecution, status model.BatchStatus, exitStatus model.ExitStatus) {
	// Picks up the version of a STOPPING status stored by an operator while the last step ran.
	if err := j.jobRepository.SynchronizeStatus(persistCtx, jobExecution); err != nil {
		logger.Warnf("Job '%s': failed to synchronize status of execution %s: %v", j.name, jobExecution.ID, err)
	}
	// An execution abandoned while it was stopping stays abandoned.
	if jobExecution.Status == model.BatchStatusAbandoned {
		status = model.BatchStatusAbandoned
	}
	jobExecution.Finish(status, exitStatus)
	j.listeners.AfterJob(ctx, jobExecution)
	j.persist(persistCtx, jobExecution)
}

func (j *SimpleJob) finish(ctx context.Context, jobExecution *model.JobExecution, status model.BatchStatus, exitStatus model.ExitStatus) {
	jobExecution.Finish(status, exitStatus)
	j.persist(ctx, jobExecution)
}

func (j *SimpleJob) persist(ctx context.Context, jobExecution *model.JobExecution) {
	if err := j.jobRepository.UpdateJobExecutionContext(ctx, jobExecution); err != nil {
		logger.Errorf("Job '%s': failed to persist execution context of %s: %v", j.name, jobExecution.ID, err)
	}
	if err := j.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		logger.Errorf("Job '%s': failed to update final state of execution %s: %v", j.name, jobExecution.ID, err)
		jobExecution.Status = model.BatchStatusUnknown
		jobExecution.ExitStatus = model.ExitStatusUnknown.AddExitDescriptionFromError(err)
		return
	}
	logger.Infof("Job '%s' (Execution ID: %s) finished. Status: %s, ExitStatus: %s",
		j.name, jobExecution.ID, jobExecution.Status, jobExecution.ExitStatus)
	for _, se := range jobExecution.StepExecutions {
		logger.Debugf("  Step '%s' (ID: %s): %s read=%d write=%d skip=%d", se.StepName, se.ID, se.Status,
			se.ReadCount, se.WriteCount, se.SkipCount())
	}
}
