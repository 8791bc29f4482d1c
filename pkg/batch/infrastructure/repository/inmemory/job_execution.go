package inmemory

import (
	"context"
	"sort"
	"time"

	"github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

const module = "inmemory_repository"

// CreateJobExecution creates the next execution for the job identity while holding the write lock,
// which makes the check-and-create atomic for every caller of this repository.
func (r *InMemoryJobRepository) CreateJobExecution(ctx context.Context, jobName string, params model.JobParameters, restartable bool) (*model.JobExecution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var instance *model.JobInstance
	executionContext := model.NewExecutionContext()

	if id, ok := r.instanceByKey[identityKey(jobName, params.InstanceKey())]; ok {
		instance = r.jobInstances[id]
		if lastID, ok := r.lastExecutionID(instance.ID); ok {
			last := r.jobExecutions[lastID]
			if err := repository.CheckRestartable(jobName, last, restartable); err != nil {
				return nil, err
			}
			executionContext = last.ExecutionContext.Copy()
		}
	} else {
		created, err := r.createJobInstanceLocked(jobName, params)
		if err != nil {
			return nil, err
		}
		instance = r.jobInstances[created.ID]
	}

	je := model.NewJobExecution(instance.ID, jobName, params)
	je.ID = model.NewID()
	je.ExecutionContext = executionContext
	r.jobExecutions[je.ID] = je
	r.executionsByInstance[instance.ID] = append(r.executionsByInstance[instance.ID], je.ID)
	r.register(je.ID)

	logger.Debugf("Created JobExecution (ID: %s) for JobInstance (ID: %s, job: %s).", je.ID, instance.ID, jobName)
	return je.Clone(), nil
}

// UpdateJobExecution stores everything but the execution context, checking Version.
func (r *InMemoryJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	if jobExecution.ID == "" {
		return repository.NewError(repository.ErrUnassignedID, "job execution of '%s' must be created before it is updated", jobExecution.JobName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.jobExecutions[jobExecution.ID]
	if !ok {
		return repository.NewError(repository.ErrJobExecutionNotFound, "job execution %s not found for update", jobExecution.ID)
	}
	if stored.Version != jobExecution.Version {
		return exception.NewOptimisticLockingFailureException(module, "job execution "+jobExecution.ID+" was updated by another writer", nil)
	}

	jobExecution.Version++
	jobExecution.LastUpdated = time.Now()

	updated := jobExecution.Clone()
	updated.StepExecutions = nil
	updated.ExecutionContext = stored.ExecutionContext
	r.jobExecutions[jobExecution.ID] = updated
	return nil
}

// UpdateJobExecutionContext stores only the execution context. The last write wins.
func (r *InMemoryJobRepository) UpdateJobExecutionContext(ctx context.Context, jobExecution *model.JobExecution) error {
	if jobExecution.ID == "" {
		return repository.NewError(repository.ErrUnassignedID, "job execution of '%s' must be created before its context is saved", jobExecution.JobName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.jobExecutions[jobExecution.ID]
	if !ok {
		return repository.NewError(repository.ErrJobExecutionNotFound, "job execution %s not found", jobExecution.ID)
	}
	stored.ExecutionContext = jobExecution.ExecutionContext.Copy()
	return nil
}

// SynchronizeStatus upgrades jobExecution with a newer stored status.
func (r *InMemoryJobRepository) SynchronizeStatus(ctx context.Context, jobExecution *model.JobExecution) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.jobExecutions[jobExecution.ID]
	if !ok {
		return repository.NewError(repository.ErrJobExecutionNotFound, "job execution %s not found", jobExecution.ID)
	}
	if stored.Version > jobExecution.Version {
		jobExecution.Status = jobExecution.Status.UpgradeTo(stored.Status)
		jobExecution.Version = stored.Version
	}
	return nil
}

// GetJobExecution returns the execution with its step executions.
func (r *InMemoryJobRepository) GetJobExecution(ctx context.Context, id string) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	je := r.assemble(id)
	if je == nil {
		return nil, repository.NewError(repository.ErrJobExecutionNotFound, "job execution %s not found", id)
	}
	return je, nil
}

// GetLastJobExecution returns the newest execution of the job identity, or nil.
func (r *InMemoryJobRepository) GetLastJobExecution(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	instanceID, ok := r.instanceByKey[identityKey(jobName, params.InstanceKey())]
	if !ok {
		return nil, nil
	}
	lastID, ok := r.lastExecutionID(instanceID)
	if !ok {
		return nil, nil
	}
	return r.assemble(lastID), nil
}

// FindJobExecutions returns the executions of an instance, newest first.
func (r *InMemoryJobRepository) FindJobExecutions(ctx context.Context, instance *model.JobInstance) ([]*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.executionsByInstance[instance.ID]
	out := make([]*model.JobExecution, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, r.assemble(ids[i]))
	}
	return out, nil
}

// FindRunningJobExecutions returns the STARTING, STARTED and STOPPING executions of a job, oldest first.
func (r *InMemoryJobRepository) FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.JobExecution, 0)
	for id, je := range r.jobExecutions {
		if je.JobName == jobName && (je.Status.IsRunning() || je.Status == model.BatchStatusStopping) {
			out = append(out, r.assemble(id))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return r.creationSequence[out[i].ID] < r.creationSequence[out[j].ID]
	})
	return out, nil
}
