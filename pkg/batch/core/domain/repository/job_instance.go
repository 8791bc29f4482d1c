package repository

import (
	"context"

	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
)

// JobInstance defines operations on job instances.
type JobInstance interface {
	// JobInstanceExists reports whether an instance exists for the job name and the identifying subset of params.
	JobInstanceExists(ctx context.Context, jobName string, params model.JobParameters) (bool, error)

	// CreateJobInstance persists a new instance. It fails with ErrJobInstanceAlreadyExists for a known identity.
	CreateJobInstance(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error)

	// GetJobInstance returns the instance with the given ID or ErrJobInstanceNotFound.
	GetJobInstance(ctx context.Context, id string) (*model.JobInstance, error)

	// FindJobInstance returns the instance for the job name and params, or nil when there is none.
	FindJobInstance(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error)

	// FindJobInstancesByName pages through the instances of a job, newest first.
	FindJobInstancesByName(ctx context.Context, jobName string, start, count int) ([]*model.JobInstance, error)

	// GetJobInstanceCount returns how many instances a job has.
	GetJobInstanceCount(ctx context.Context, jobName string) (int, error)

	// GetJobNames returns the distinct names of all jobs with at least one instance, sorted.
	GetJobNames(ctx context.Context) ([]string, error)
}
