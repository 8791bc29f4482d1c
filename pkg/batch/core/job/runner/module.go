package runner

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	repository "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-engine/pkg/batch/listener"
)

// JobBuilder creates SimpleJobs that share the application repository and listeners.
type JobBuilder struct {
	jobRepository repository.JobRepository
	listeners     *listener.Registry
}

// JobBuilderParams defines dependencies for JobBuilder.
type JobBuilderParams struct {
	fx.In
	JobRepository repository.JobRepository
	Listeners     *listener.Registry `optional:"true"`
}

// NewJobBuilder creates a JobBuilder.
func NewJobBuilder(p JobBuilderParams) *JobBuilder {
	return &JobBuilder{jobRepository: p.JobRepository, listeners: p.Listeners}
}

// Build returns a job running steps in order with the shared listeners registered first.
func (b *JobBuilder) Build(name string, steps []port.Step, opts ...JobOption) *SimpleJob {
	return NewSimpleJob(name, b.jobRepository, steps, append([]JobOption{WithRegistry(b.listeners)}, opts...)...)
}

// Module provides the JobBuilder.
var Module = fx.Provide(NewJobBuilder)
