package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/surfin-engine/pkg/batch/core/metrics"
	logger "github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// instrumentationName identifies the spans and instruments created by this package.
const instrumentationName = "github.com/tigerroll/surfin-engine/pkg/batch"

// OpenTelemetryTracer is an implementation of metrics.Tracer using OpenTelemetry.
type OpenTelemetryTracer struct {
	tracer trace.Tracer
}

// NewOpenTelemetryTracer creates a tracer that starts spans on provider.
func NewOpenTelemetryTracer(provider trace.TracerProvider) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{tracer: provider.Tracer(instrumentationName)}
}

// StartJobSpan starts a new span for a JobExecution. The returned function ends it with
// the status the execution holds at that time.
func (t *OpenTelemetryTracer) StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "job "+execution.JobName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("batch.job.name", execution.JobName),
			attribute.String("batch.job.instance_id", execution.JobInstanceID),
			attribute.String("batch.job.execution_id", execution.ID),
		),
	)
	return ctx, func() {
		endSpan(span, execution.Status, execution.ExitStatus)
		logger.Debugf("Tracer: span ended for Job '%s' (status: %s)", execution.JobName, execution.Status)
	}
}

// StartStepSpan starts a new span for a StepExecution.
func (t *OpenTelemetryTracer) StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "step "+execution.StepName,
		trace.WithAttributes(
			attribute.String("batch.job.name", metrics.JobName(execution)),
			attribute.String("batch.step.name", execution.StepName),
			attribute.String("batch.step.execution_id", execution.ID),
		),
	)
	return ctx, func() {
		span.SetAttributes(
			attribute.Int("batch.step.read_count", execution.ReadCount),
			attribute.Int("batch.step.write_count", execution.WriteCount),
			attribute.Int("batch.step.filter_count", execution.FilterCount),
			attribute.Int("batch.step.skip_count", execution.SkipCount()),
			attribute.Int("batch.step.commit_count", execution.CommitCount),
			attribute.Int("batch.step.rollback_count", execution.RollbackCount),
		)
		endSpan(span, execution.Status, execution.ExitStatus)
	}
}

func endSpan(span trace.Span, status model.BatchStatus, exitStatus model.ExitStatus) {
	span.SetAttributes(
		attribute.String("batch.status", status.String()),
		attribute.String("batch.exit_code", exitStatus.ExitCode),
	)
	if status.IsUnsuccessful() {
		span.SetStatus(codes.Error, exitStatus.ExitDescription)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// RecordError records an error in the current span.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("batch.module", module)))
}

// RecordEvent records an event in the current span.
func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(toAttributes(attributes)...))
}

func toAttributes(values map[string]interface{}) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(values))
	for k, v := range values {
		switch tv := v.(type) {
		case string:
			kvs = append(kvs, attribute.String(k, tv))
		case int:
			kvs = append(kvs, attribute.Int(k, tv))
		case int64:
			kvs = append(kvs, attribute.Int64(k, tv))
		case float64:
			kvs = append(kvs, attribute.Float64(k, tv))
		case bool:
			kvs = append(kvs, attribute.Bool(k, tv))
		default:
			kvs = append(kvs, attribute.String(k, fmt.Sprint(tv)))
		}
	}
	return kvs
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)
