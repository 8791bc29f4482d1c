package port

import (
	"context"

	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
)

// StepListener marks a listener that can be registered on a step. It carries no methods;
// the listener registry inspects each registered value for the interfaces below.
type StepListener interface{}

// JobExecutionListener is notified around a job execution.
type JobExecutionListener interface {
	// BeforeJob is called after the execution is marked STARTED and before the first step.
	// An error fails the job without running any step.
	BeforeJob(ctx context.Context, jobExecution *model.JobExecution) error
	// AfterJob is called once the final status is known, regardless of the outcome.
	// Errors are logged.
	AfterJob(ctx context.Context, jobExecution *model.JobExecution) error
}

// StepExecutionListener is notified around a step execution.
type StepExecutionListener interface {
	// BeforeStep is called after the step is marked STARTED. An error fails the step.
	BeforeStep(ctx context.Context, stepExecution *model.StepExecution) error
	// AfterStep is called when the work of the step has ended. A non-nil ExitStatus is
	// merged into the exit status of the step. Errors are logged.
	AfterStep(ctx context.Context, stepExecution *model.StepExecution) (*model.ExitStatus, error)
}

// ChunkListener is notified around each chunk transaction.
type ChunkListener interface {
	// BeforeChunk is called after the chunk transaction begins.
	BeforeChunk(ctx context.Context, stepExecution *model.StepExecution) error
	// AfterChunk is called after the chunk transaction commits.
	AfterChunk(ctx context.Context, stepExecution *model.StepExecution) error
	// AfterChunkError is called after the chunk transaction rolls back.
	AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, err error) error
}

// ItemReadListener is notified around each read.
type ItemReadListener interface {
	BeforeRead(ctx context.Context)
	AfterRead(ctx context.Context, item interface{})
	OnReadError(ctx context.Context, err error)
}

// ItemProcessListener is notified around each process call. result is nil for a filtered item.
type ItemProcessListener interface {
	BeforeProcess(ctx context.Context, item interface{})
	AfterProcess(ctx context.Context, item interface{}, result interface{})
	OnProcessError(ctx context.Context, item interface{}, err error)
}

// ItemWriteListener is notified around each write call.
type ItemWriteListener interface {
	BeforeWrite(ctx context.Context, items []interface{})
	AfterWrite(ctx context.Context, items []interface{})
	OnWriteError(ctx context.Context, items []interface{}, err error)
}

// SkipListener is notified of skipped items. Notifications for a chunk are delivered just
// before the chunk commits, and are dropped when the chunk rolls back.
type SkipListener interface {
	// OnSkipInRead is called for a read failure that was skipped.
	OnSkipInRead(ctx context.Context, err error)
	// OnSkipInProcess is called for an item that was skipped during processing.
	OnSkipInProcess(ctx context.Context, item interface{}, err error)
	// OnSkipInWrite is called for an item that was skipped during writing.
	OnSkipInWrite(ctx context.Context, item interface{}, err error)
}

// RetryListener is notified before an item operation is retried.
type RetryListener interface {
	// OnRetry is called before attempt (starting at 2) of the operation on item.
	OnRetry(ctx context.Context, attempt int, item interface{}, err error)
}
