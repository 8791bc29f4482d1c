// Package inmemory provides a JobRepository that keeps all metadata in process memory.
// Every value handed in or out is copied, so callers never share state with the store.
package inmemory

import (
	"sync"

	"github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
)

// InMemoryJobRepository implements repository.JobRepository with maps guarded by one mutex.
type InMemoryJobRepository struct {
	mu sync.RWMutex

	jobInstances  map[string]*model.JobInstance
	instanceByKey map[string]string

	jobExecutions        map[string]*model.JobExecution
	executionsByInstance map[string][]string

	stepExecutions    map[string]*model.StepExecution
	stepsByExecution  map[string][]string
	creationSequence  map[string]int64
	nextSequenceValue int64
}

var _ repository.JobRepository = (*InMemoryJobRepository)(nil)

// NewInMemoryJobRepository creates an empty repository.
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobInstances:         make(map[string]*model.JobInstance),
		instanceByKey:        make(map[string]string),
		jobExecutions:        make(map[string]*model.JobExecution),
		executionsByInstance: make(map[string][]string),
		stepExecutions:       make(map[string]*model.StepExecution),
		stepsByExecution:     make(map[string][]string),
		creationSequence:     make(map[string]int64),
	}
}

// Close is a no-op.
func (r *InMemoryJobRepository) Close() error {
	return nil
}

func identityKey(jobName, jobKey string) string {
	return jobName + "\x00" + jobKey
}

// register records the creation order of id. Callers hold the write lock.
func (r *InMemoryJobRepository) register(id string) {
	r.nextSequenceValue++
	r.creationSequence[id] = r.nextSequenceValue
}

// assemble returns a copy of the stored job execution with copies of its step executions attached.
// Callers hold at least the read lock.
func (r *InMemoryJobRepository) assemble(id string) *model.JobExecution {
	stored, ok := r.jobExecutions[id]
	if !ok {
		return nil
	}
	je := stored.Clone()
	for _, stepID := range r.stepsByExecution[id] {
		je.AddStepExecution(r.stepExecutions[stepID].Clone())
	}
	return je
}

// lastExecutionID returns the ID of the newest execution of an instance. Callers hold at least the read lock.
func (r *InMemoryJobRepository) lastExecutionID(instanceID string) (string, bool) {
	ids := r.executionsByInstance[instanceID]
	if len(ids) == 0 {
		return "", false
	}
	return ids[len(ids)-1], true
}
