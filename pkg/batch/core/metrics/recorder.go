package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
)

// Item phases used as the phase argument of RecordItemSkip and RecordItemRetry.
const (
	PhaseRead    = "read"
	PhaseProcess = "process"
	PhaseWrite   = "write"
)

// MetricRecorder is an abstract interface for recording metrics related to batch execution.
//
// This interface provides a standardized way to record metrics for job, step, item-level events,
// and chunk processing, so that different backends (Prometheus, OpenTelemetry metrics) can be plugged in.
type MetricRecorder interface {
	// RecordJobStart records the start of a JobExecution.
	RecordJobStart(ctx context.Context, execution *model.JobExecution)

	// RecordJobEnd records the end of a JobExecution, including its duration and final status.
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)

	// RecordStepStart records the start of a StepExecution.
	RecordStepStart(ctx context.Context, execution *model.StepExecution)

	// RecordStepEnd records the end of a StepExecution.
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)

	// RecordItemRead records one item read by the step.
	RecordItemRead(ctx context.Context, execution *model.StepExecution)

	// RecordItemWrite records count items written by the step.
	RecordItemWrite(ctx context.Context, execution *model.StepExecution, count int)

	// RecordItemSkip records a skipped item.
	//
	// phase: PhaseRead, PhaseProcess or PhaseWrite.
	// reason: The registered name of the fault category (e.g., "ParseError").
	RecordItemSkip(ctx context.Context, execution *model.StepExecution, phase, reason string)

	// RecordItemRetry records a retried item operation. phase and reason are as for RecordItemSkip.
	RecordItemRetry(ctx context.Context, execution *model.StepExecution, phase, reason string)

	// RecordChunkCommit records a committed chunk.
	RecordChunkCommit(ctx context.Context, execution *model.StepExecution)

	// RecordChunkRollback records a rolled back chunk.
	RecordChunkRollback(ctx context.Context, execution *model.StepExecution)

	// RecordDuration records the execution time of a specific operation.
	//
	// name: The name of the duration to record (e.g., "db_query_time").
	// tags: Additional attributes, e.g. `{"table": "orders"}`.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}

// JobName returns the name of the job a step execution belongs to, or "" when it is detached.
func JobName(execution *model.StepExecution) string {
	if execution == nil || execution.JobExecution == nil {
		return ""
	}
	return execution.JobExecution.JobName
}

// Elapsed returns the time between start and end, or zero when end is not set.
func Elapsed(start time.Time, end *time.Time) time.Duration {
	if end == nil || start.IsZero() {
		return 0
	}
	return end.Sub(start)
}

type phaseKey struct{}

// WithPhase returns a context that carries the item phase being executed.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, phaseKey{}, phase)
}

// PhaseFromContext returns the phase set by WithPhase, or "" when none was set.
func PhaseFromContext(ctx context.Context) string {
	phase, _ := ctx.Value(phaseKey{}).(string)
	return phase
}
