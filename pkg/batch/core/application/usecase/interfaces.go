// Package usecase launches, operates and inspects job executions.
package usecase

import (
	"context"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
)

// JobLauncher starts a Job with JobParameters.
// It is equivalent to Spring Batch's JobLauncher.
type JobLauncher interface {
	// Run validates params, creates the execution and runs the job on the calling goroutine.
	// The error reports a failure of the launch itself. Once an execution exists it is
	// returned and its status tells how the job ended.
	Run(ctx context.Context, job port.Job, params model.JobParameters) (*model.JobExecution, error)

	// Launch is like Run but runs the job on its own goroutine and returns the STARTING
	// execution immediately.
	Launch(ctx context.Context, job port.Job, params model.JobParameters) (*model.JobExecution, error)
}

// JobOperator is an interface for performing operations on jobs by name and on executions by ID.
// It is equivalent to Spring Batch's JobOperator.
type JobOperator interface {
	// Start launches a new instance of the named job. parameters use the key(type)=value
	// form of DefaultJobParametersConverter. It fails when the instance already exists.
	Start(ctx context.Context, jobName string, parameters []string) (*model.JobExecution, error)

	// StartNextInstance launches the job with the parameters its incrementer derives
	// from the last instance.
	StartNextInstance(ctx context.Context, jobName string) (*model.JobExecution, error)

	// Restart launches a new execution of the instance of a FAILED or STOPPED execution.
	Restart(ctx context.Context, executionID string) (*model.JobExecution, error)

	// Stop asks a running execution to stop. The job stops at the next chunk boundary.
	Stop(ctx context.Context, executionID string) error

	// Abandon marks a STOPPED, FAILED or STOPPING execution ABANDONED so that its
	// instance cannot be restarted.
	Abandon(ctx context.Context, executionID string) (*model.JobExecution, error)

	// GetRunningExecutions returns the executions of the job that have not finished.
	GetRunningExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error)

	// GetJobNames returns the names of the jobs that can be started.
	GetJobNames() []string
}

// JobExplorer is a read-only view of batch metadata (JobInstance, JobExecution, StepExecution).
// It is equivalent to Spring Batch's JobExplorer.
type JobExplorer interface {
	// GetJobExecution retrieves a JobExecution with its step executions.
	GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error)

	// GetJobExecutions retrieves all JobExecutions of a JobInstance, newest first.
	GetJobExecutions(ctx context.Context, instanceID string) ([]*model.JobExecution, error)

	// GetLastJobExecution retrieves the latest JobExecution of a JobInstance, or nil.
	GetLastJobExecution(ctx context.Context, instanceID string) (*model.JobExecution, error)

	// GetJobInstance retrieves a JobInstance by its ID.
	GetJobInstance(ctx context.Context, instanceID string) (*model.JobInstance, error)

	// GetJobInstances pages through the instances of a job, newest first.
	GetJobInstances(ctx context.Context, jobName string, start, count int) ([]*model.JobInstance, error)

	// GetJobInstanceCount returns how many instances a job has.
	GetJobInstanceCount(ctx context.Context, jobName string) (int, error)

	// GetJobNames retrieves the names of all jobs with recorded instances.
	GetJobNames(ctx context.Context) ([]string, error)

	// GetStepExecution retrieves one step execution of a JobExecution.
	GetStepExecution(ctx context.Context, executionID, stepExecutionID string) (*model.StepExecution, error)

	// FindRunningJobExecutions returns the executions of a job that have not finished.
	FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error)
}
