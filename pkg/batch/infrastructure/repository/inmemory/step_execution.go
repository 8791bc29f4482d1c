package inmemory

import (
	"context"
	"time"

	"github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
)

// AddStepExecution assigns an ID and stores a copy of stepExecution.
func (r *InMemoryJobRepository) AddStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addStepExecutionLocked(stepExecution)
}

// AddStepExecutions stores several step executions. Validation happens before anything is stored.
func (r *InMemoryJobRepository) AddStepExecutions(ctx context.Context, stepExecutions []*model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, se := range stepExecutions {
		if err := repository.ValidateNewStepExecution(se); err != nil {
			return err
		}
	}
	for _, se := range stepExecutions {
		if err := r.addStepExecutionLocked(se); err != nil {
			return err
		}
	}
	return nil
}

func (r *InMemoryJobRepository) addStepExecutionLocked(se *model.StepExecution) error {
	if err := repository.ValidateNewStepExecution(se); err != nil {
		return err
	}
	if _, ok := r.jobExecutions[se.JobExecutionID]; !ok {
		return repository.NewError(repository.ErrJobExecutionNotFound, "parent job execution %s of step '%s' is not persisted", se.JobExecutionID, se.StepName)
	}

	se.ID = model.NewID()
	se.Version = 0
	se.LastUpdated = time.Now()

	stored := se.Clone()
	stored.JobExecution = nil
	r.stepExecutions[se.ID] = stored
	r.stepsByExecution[se.JobExecutionID] = append(r.stepsByExecution[se.JobExecutionID], se.ID)
	r.register(se.ID)
	return nil
}

// UpdateStepExecution stores everything but the execution context, checking Version.
func (r *InMemoryJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	if stepExecution.ID == "" {
		return repository.NewError(repository.ErrUnassignedID, "step execution '%s' must be added before it is updated", stepExecution.StepName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.stepExecutions[stepExecution.ID]
	if !ok {
		return repository.NewError(repository.ErrStepExecutionNotFound, "step execution %s not found for update", stepExecution.ID)
	}
	if stored.Version != stepExecution.Version {
		return exception.NewOptimisticLockingFailureException(module, "step execution "+stepExecution.ID+" was updated by another writer", nil)
	}

	stepExecution.Version++
	stepExecution.LastUpdated = time.Now()

	updated := stepExecution.Clone()
	updated.JobExecution = nil
	updated.ExecutionContext = stored.ExecutionContext
	r.stepExecutions[stepExecution.ID] = updated
	return nil
}

// UpdateStepExecutionContext stores only the step execution context. The last write wins.
func (r *InMemoryJobRepository) UpdateStepExecutionContext(ctx context.Context, stepExecution *model.StepExecution) error {
	if stepExecution.ID == "" {
		return repository.NewError(repository.ErrUnassignedID, "step execution '%s' must be added before its context is saved", stepExecution.StepName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.stepExecutions[stepExecution.ID]
	if !ok {
		return repository.NewError(repository.ErrStepExecutionNotFound, "step execution %s not found", stepExecution.ID)
	}
	stored.ExecutionContext = stepExecution.ExecutionContext.Copy()
	return nil
}

// GetStepExecution returns a step execution linked to a copy of its job execution.
func (r *InMemoryJobRepository) GetStepExecution(ctx context.Context, jobExecutionID, stepExecutionID string) (*model.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if je := r.assemble(jobExecutionID); je != nil {
		for _, se := range je.StepExecutions {
			if se.ID == stepExecutionID {
				return se, nil
			}
		}
	}
	return nil, repository.NewError(repository.ErrStepExecutionNotFound, "step execution %s not found in job execution %s", stepExecutionID, jobExecutionID)
}

// GetLastStepExecution returns the most recently created execution of stepName for the instance, or nil.
func (r *InMemoryJobRepository) GetLastStepExecution(ctx context.Context, instance *model.JobInstance, stepName string) (*model.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var lastID, lastExecutionID string
	var lastSeq int64
	for _, jeID := range r.executionsByInstance[instance.ID] {
		for _, stepID := range r.stepsByExecution[jeID] {
			if r.stepExecutions[stepID].StepName != stepName {
				continue
			}
			if seq := r.creationSequence[stepID]; seq > lastSeq {
				lastSeq, lastID, lastExecutionID = seq, stepID, jeID
			}
		}
	}
	if lastID == "" {
		return nil, nil
	}
	for _, se := range r.assemble(lastExecutionID).StepExecutions {
		if se.ID == lastID {
			return se, nil
		}
	}
	return nil, nil
}

// GetStepExecutionCount returns how many times stepName ran for the instance.
func (r *InMemoryJobRepository) GetStepExecutionCount(ctx context.Context, instance *model.JobInstance, stepName string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, jeID := range r.executionsByInstance[instance.ID] {
		for _, stepID := range r.stepsByExecution[jeID] {
			if r.stepExecutions[stepID].StepName == stepName {
				n++
			}
		}
	}
	return n, nil
}
