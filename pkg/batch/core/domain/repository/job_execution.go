package repository

import (
	"context"

	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
)

// JobExecution defines operations on job executions.
type JobExecution interface {
	// CreateJobExecution creates the next execution for the job identity, creating the
	// instance first when needed. See CheckRestartable for the rules applied to an
	// existing instance. The returned execution is STARTING and carries the job-level
	// context of the previous execution, if any.
	CreateJobExecution(ctx context.Context, jobName string, params model.JobParameters, restartable bool) (*model.JobExecution, error)

	// UpdateJobExecution persists status, exit status, timestamps and failures. The
	// execution context is not written. Version is checked and incremented.
	UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error

	// UpdateJobExecutionContext persists only the job-level execution context.
	UpdateJobExecutionContext(ctx context.Context, jobExecution *model.JobExecution) error

	// SynchronizeStatus copies a stored status that is newer than the in-memory one,
	// such as a STOPPING written by an operator from another process.
	SynchronizeStatus(ctx context.Context, jobExecution *model.JobExecution) error

	// GetJobExecution returns the execution with its step executions, or ErrJobExecutionNotFound.
	GetJobExecution(ctx context.Context, id string) (*model.JobExecution, error)

	// GetLastJobExecution returns the most recent execution of the job identity, or nil.
	GetLastJobExecution(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)

	// FindJobExecutions returns all executions of an instance, newest first.
	FindJobExecutions(ctx context.Context, instance *model.JobInstance) ([]*model.JobExecution, error)

	// FindRunningJobExecutions returns the executions of a job that have not finished.
	FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error)
}
