// Package registry keeps the jobs an application can launch by name.
package registry

import (
	"errors"
	"sort"
	"sync"

	"go.uber.org/fx"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

const module = "job_registry"

var (
	// ErrNoSuchJob is returned when no job is registered under a name.
	ErrNoSuchJob = errors.New("no such job")
	// ErrDuplicateJob is returned when a name is registered twice.
	ErrDuplicateJob = errors.New("job is already registered")
)

func init() {
	exception.RegisterErrorType("NoSuchJobException", ErrNoSuchJob)
	exception.RegisterErrorType("DuplicateJobException", ErrDuplicateJob)
}

// JobLocator looks up jobs by name.
type JobLocator interface {
	GetJob(name string) (port.Job, error)
	GetJobNames() []string
}

// MapJobRegistry is a JobLocator backed by a map. It is safe for concurrent use.
type MapJobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]port.Job
}

var _ JobLocator = (*MapJobRegistry)(nil)

// NewMapJobRegistry creates an empty registry.
func NewMapJobRegistry() *MapJobRegistry {
	return &MapJobRegistry{jobs: make(map[string]port.Job)}
}

// Register adds job under its name.
func (r *MapJobRegistry) Register(job port.Job) error {
	if job == nil || job.JobName() == "" {
		return exception.NewBatchError(module, "a job must have a name to be registered", nil, false, false)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.JobName()]; ok {
		return exception.NewBatchErrorf(module, "job '%s' is registered twice", job.JobName(), ErrDuplicateJob)
	}
	r.jobs[job.JobName()] = job
	logger.Debugf("Registered job '%s'.", job.JobName())
	return nil
}

// Unregister removes the job registered under name, if any.
func (r *MapJobRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, name)
}

// GetJob returns the job registered under name, or an error wrapping ErrNoSuchJob.
func (r *MapJobRegistry) GetJob(name string) (port.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[name]
	if !ok {
		return nil, exception.NewBatchErrorf(module, "no job is registered under the name '%s'", name, ErrNoSuchJob)
	}
	return job, nil
}

// GetJobNames returns the registered names, sorted.
func (r *MapJobRegistry) GetJobNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterJobsParams collects the jobs contributed to the "jobs" group.
type RegisterJobsParams struct {
	fx.In
	Registry *MapJobRegistry
	Jobs     []port.Job `group:"jobs"`
}

// RegisterJobs registers every job of the "jobs" group.
func RegisterJobs(p RegisterJobsParams) error {
	for _, job := range p.Jobs {
		if err := p.Registry.Register(job); err != nil {
			return err
		}
	}
	logger.Infof("JobRegistry: %d job(s) registered: %v", len(p.Jobs), p.Registry.GetJobNames())
	return nil
}

// Module provides the MapJobRegistry, exposes it as a JobLocator and registers the "jobs" group.
var Module = fx.Options(
	fx.Provide(
		NewMapJobRegistry,
		func(r *MapJobRegistry) JobLocator { return r },
	),
	fx.Invoke(RegisterJobs),
)
