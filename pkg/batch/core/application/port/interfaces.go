// Package port defines the core interfaces (ports) for the batch application.
// Jobs, steps, item handlers and tasklets are written against these interfaces so that
// the engine can run them without knowing their implementation.
package port

import (
	"context"
	"errors"

	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
)

// ErrNoMoreItems is returned by an ItemReader at the end of its input.
var ErrNoMoreItems = errors.New("no more items to read")

// ErrJobParametersInvalid is returned when a JobParametersValidator rejects the parameters of a launch.
var ErrJobParametersInvalid = errors.New("job parameters are invalid")

func init() {
	exception.RegisterErrorType("JobParametersInvalidException", ErrJobParametersInvalid)
}

// Job is an executable batch job made of steps.
type Job interface {
	// JobName returns the logical name of the job. It is part of the job instance identity.
	JobName() string
	// Execute runs the job and records the outcome in jobExecution.
	// It does not return step failures; callers inspect the execution status.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   jobExecution: The STARTING execution created by the repository.
	Execute(ctx context.Context, jobExecution *model.JobExecution)
	// IsRestartable reports whether a failed or stopped execution may be followed by a new one.
	IsRestartable() bool
	// JobParametersValidator returns the validator applied before launch, or nil.
	JobParametersValidator() JobParametersValidator
	// JobParametersIncrementer returns the incrementer used by StartNextInstance, or nil.
	JobParametersIncrementer() JobParametersIncrementer
}

// Step is a single phase of a job.
type Step interface {
	// StepName returns the logical name of the step, unique within its job.
	StepName() string
	// Execute runs the step and records the outcome in stepExecution.
	// An error is returned only when the outcome could not be recorded.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   stepExecution: The execution added to the repository for this attempt.
	//
	// Returns:
	//   error: A repository or lifecycle error. Step failures are reported through the status.
	Execute(ctx context.Context, stepExecution *model.StepExecution) error
	// StartLimit returns how many times the step may run for one job instance. Zero means no limit.
	StartLimit() int
	// AllowStartIfComplete reports whether a COMPLETED step runs again when its job is restarted.
	AllowStartIfComplete() bool
}

// ItemReader reads items one at a time. O is the type of item read.
type ItemReader[O any] interface {
	// Read returns the next item or ErrNoMoreItems at the end of the input.
	// Failures should wrap one of the exception category sentinels so that skip and
	// retry policies can classify them.
	Read(ctx context.Context) (O, error)
}

// ItemProcessor transforms items. I is the type of input item, O is the type of output item.
type ItemProcessor[I, O any] interface {
	// Process returns the transformed item. A nil result (for pointer, interface, map or
	// slice outputs) filters the item: it is counted but not written.
	Process(ctx context.Context, item I) (O, error)
}

// ItemWriter writes the items of one chunk. I is the type of item written.
type ItemWriter[I any] interface {
	// Write persists items. It is called once per chunk inside the chunk transaction,
	// which is available through tx.FromContext.
	Write(ctx context.Context, items []I) error
}

// ItemStream is implemented by readers and writers that keep restart state.
type ItemStream interface {
	// Open restores the state saved in ec by a previous execution.
	Open(ctx context.Context, ec model.ExecutionContext) error
	// Update saves the current state to ec. It is called before every chunk commit.
	Update(ctx context.Context, ec model.ExecutionContext) error
	// Close releases resources.
	Close(ctx context.Context) error
}

// Tasklet is the unit of work of a tasklet step.
type Tasklet interface {
	// Execute performs one iteration. Returning RepeatStatusContinuable asks for another
	// iteration in a new transaction; RepeatStatusFinished ends the step.
	//
	// Parameters:
	//   ctx: The context for the operation. The iteration transaction is available through tx.FromContext.
	//   contribution: Counters that are applied to stepExecution when the iteration commits.
	//   stepExecution: The current StepExecution.
	Execute(ctx context.Context, contribution *model.StepContribution, stepExecution *model.StepExecution) (model.RepeatStatus, error)
}

// JobParametersValidator checks parameters before a launch.
type JobParametersValidator interface {
	// Validate returns an error wrapping ErrJobParametersInvalid when params are not acceptable.
	Validate(params model.JobParameters) error
}

// JobParametersIncrementer derives the parameters of the next job instance.
type JobParametersIncrementer interface {
	// GetNext returns the parameters following params. params is empty for the first instance.
	GetNext(params model.JobParameters) model.JobParameters
}

// Define context key for StepExecution propagation during chunk processing.
type contextKey string

const stepExecutionKey contextKey = "stepExecution"

// GetContextWithStepExecution stores a StepExecution in the Context.
func GetContextWithStepExecution(ctx context.Context, se *model.StepExecution) context.Context {
	return context.WithValue(ctx, stepExecutionKey, se)
}

// GetStepExecutionFromContext retrieves a StepExecution from the Context. Returns nil if not found.
func GetStepExecutionFromContext(ctx context.Context) *model.StepExecution {
	if se, ok := ctx.Value(stepExecutionKey).(*model.StepExecution); ok {
		return se
	}
	return nil
}
