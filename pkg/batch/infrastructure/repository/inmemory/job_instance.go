package inmemory

import (
	"context"
	"sort"

	"github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
)

// JobInstanceExists reports whether the job identity has an instance.
func (r *InMemoryJobRepository) JobInstanceExists(ctx context.Context, jobName string, params model.JobParameters) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.instanceByKey[identityKey(jobName, params.InstanceKey())]
	return ok, nil
}

// CreateJobInstance stores a new instance for the job identity.
func (r *InMemoryJobRepository) CreateJobInstance(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createJobInstanceLocked(jobName, params)
}

func (r *InMemoryJobRepository) createJobInstanceLocked(jobName string, params model.JobParameters) (*model.JobInstance, error) {
	instance := model.NewJobInstance(jobName, params)
	key := identityKey(jobName, instance.JobKey)
	if _, exists := r.instanceByKey[key]; exists {
		return nil, repository.NewError(repository.ErrJobInstanceAlreadyExists, "a job instance already exists for job '%s' and parameters %s", jobName, params.Identifying())
	}
	instance.ID = model.NewID()
	r.jobInstances[instance.ID] = instance
	r.instanceByKey[key] = instance.ID
	r.register(instance.ID)
	return instance.Clone(), nil
}

// GetJobInstance returns the instance with the given ID.
func (r *InMemoryJobRepository) GetJobInstance(ctx context.Context, id string) (*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	instance, ok := r.jobInstances[id]
	if !ok {
		return nil, repository.NewError(repository.ErrJobInstanceNotFound, "job instance %s not found", id)
	}
	return instance.Clone(), nil
}

// FindJobInstance returns the instance for the job identity, or nil.
func (r *InMemoryJobRepository) FindJobInstance(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.instanceByKey[identityKey(jobName, params.InstanceKey())]
	if !ok {
		return nil, nil
	}
	return r.jobInstances[id].Clone(), nil
}

// FindJobInstancesByName pages through the instances of a job, newest first.
func (r *InMemoryJobRepository) FindJobInstancesByName(ctx context.Context, jobName string, start, count int) ([]*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]*model.JobInstance, 0)
	for _, instance := range r.jobInstances {
		if instance.JobName == jobName {
			matches = append(matches, instance)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return r.creationSequence[matches[i].ID] > r.creationSequence[matches[j].ID]
	})

	if start < 0 {
		start = 0
	}
	if start >= len(matches) {
		return []*model.JobInstance{}, nil
	}
	end := len(matches)
	if count > 0 && start+count < end {
		end = start + count
	}
	out := make([]*model.JobInstance, 0, end-start)
	for _, instance := range matches[start:end] {
		out = append(out, instance.Clone())
	}
	return out, nil
}

// GetJobInstanceCount returns how many instances the job has.
func (r *InMemoryJobRepository) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, instance := range r.jobInstances {
		if instance.JobName == jobName {
			n++
		}
	}
	return n, nil
}

// GetJobNames returns the sorted distinct job names.
func (r *InMemoryJobRepository) GetJobNames(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, instance := range r.jobInstances {
		if _, ok := seen[instance.JobName]; !ok {
			seen[instance.JobName] = struct{}{}
			names = append(names, instance.JobName)
		}
	}
	sort.Strings(names)
	return names, nil
}
