package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/surfin-engine/pkg/batch/core/metrics"
)

// OpenTelemetryRecorder records batch metrics as OpenTelemetry instruments. It is used
// with the otlp exporter.
type OpenTelemetryRecorder struct {
	jobDuration       metric.Float64Histogram
	jobStatus         metric.Int64Counter
	stepDuration      metric.Float64Histogram
	stepStatus        metric.Int64Counter
	itemRead          metric.Int64Counter
	itemWrite         metric.Int64Counter
	itemSkip          metric.Int64Counter
	itemRetry         metric.Int64Counter
	chunkCommit       metric.Int64Counter
	chunkRollback     metric.Int64Counter
	operationDuration metric.Float64Histogram
}

// NewOpenTelemetryRecorder creates the instruments on a meter of provider. Instrument
// names are prefixed with namespace.
func NewOpenTelemetryRecorder(provider metric.MeterProvider, namespace string) (*OpenTelemetryRecorder, error) {
	meter := provider.Meter(instrumentationName)
	name := func(n string) string {
		if namespace == "" {
			return n
		}
		return namespace + "." + n
	}

	r := &OpenTelemetryRecorder{}
	var err error
	if r.jobDuration, err = meter.Float64Histogram(name("job.duration"), metric.WithUnit("s"), metric.WithDescription("Duration of batch job executions.")); err != nil {
		return nil, err
	}
	if r.jobStatus, err = meter.Int64Counter(name("job.status"), metric.WithDescription("Batch job executions by status.")); err != nil {
		return nil, err
	}
	if r.stepDuration, err = meter.Float64Histogram(name("step.duration"), metric.WithUnit("s"), metric.WithDescription("Duration of batch step executions.")); err != nil {
		return nil, err
	}
	if r.stepStatus, err = meter.Int64Counter(name("step.status"), metric.WithDescription("Batch step executions by status.")); err != nil {
		return nil, err
	}
	if r.itemRead, err = meter.Int64Counter(name("item.read"), metric.WithDescription("Items read.")); err != nil {
		return nil, err
	}
	if r.itemWrite, err = meter.Int64Counter(name("item.write"), metric.WithDescription("Items written.")); err != nil {
		return nil, err
	}
	if r.itemSkip, err = meter.Int64Counter(name("item.skip"), metric.WithDescription("Items skipped.")); err != nil {
		return nil, err
	}
	if r.itemRetry, err = meter.Int64Counter(name("item.retry"), metric.WithDescription("Item operations retried.")); err != nil {
		return nil, err
	}
	if r.chunkCommit, err = meter.Int64Counter(name("chunk.commit"), metric.WithDescription("Committed chunks.")); err != nil {
		return nil, err
	}
	if r.chunkRollback, err = meter.Int64Counter(name("chunk.rollback"), metric.WithDescription("Rolled back chunks.")); err != nil {
		return nil, err
	}
	if r.operationDuration, err = meter.Float64Histogram(name("operation.duration"), metric.WithUnit("s"), metric.WithDescription("Duration of named operations.")); err != nil {
		return nil, err
	}
	return r, nil
}

func stepAttributes(execution *model.StepExecution, extra ...attribute.KeyValue) metric.MeasurementOption {
	attrs := append([]attribute.KeyValue{
		attribute.String("job_name", metrics.JobName(execution)),
		attribute.String("step_name", execution.StepName),
	}, extra...)
	return metric.WithAttributes(attrs...)
}

func (r *OpenTelemetryRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.jobStatus.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_name", execution.JobName),
		attribute.String("status", model.BatchStatusStarted.String()),
	))
}

func (r *OpenTelemetryRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	attrs := metric.WithAttributes(
		attribute.String("job_name", execution.JobName),
		attribute.String("status", execution.Status.String()),
	)
	r.jobStatus.Add(ctx, 1, attrs)
	if execution.EndTime != nil {
		r.jobDuration.Record(ctx, metrics.Elapsed(execution.StartTime, execution.EndTime).Seconds(), attrs)
	}
}

func (r *OpenTelemetryRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	r.stepStatus.Add(ctx, 1, stepAttributes(execution, attribute.String("status", model.BatchStatusStarted.String())))
}

func (r *OpenTelemetryRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	attrs := stepAttributes(execution, attribute.String("status", execution.Status.String()))
	r.stepStatus.Add(ctx, 1, attrs)
	if execution.EndTime != nil {
		r.stepDuration.Record(ctx, metrics.Elapsed(execution.StartTime, execution.EndTime).Seconds(), attrs)
	}
}

func (r *OpenTelemetryRecorder) RecordItemRead(ctx context.Context, execution *model.StepExecution) {
	r.itemRead.Add(ctx, 1, stepAttributes(execution))
}

func (r *OpenTelemetryRecorder) RecordItemWrite(ctx context.Context, execution *model.StepExecution, count int) {
	r.itemWrite.Add(ctx, int64(count), stepAttributes(execution))
}

func (r *OpenTelemetryRecorder) RecordItemSkip(ctx context.Context, execution *model.StepExecution, phase, reason string) {
	r.itemSkip.Add(ctx, 1, stepAttributes(execution, attribute.String("phase", phase), attribute.String("reason", reason)))
}

func (r *OpenTelemetryRecorder) RecordItemRetry(ctx context.Context, execution *model.StepExecution, phase, reason string) {
	r.itemRetry.Add(ctx, 1, stepAttributes(execution, attribute.String("phase", phase), attribute.String("reason", reason)))
}

func (r *OpenTelemetryRecorder) RecordChunkCommit(ctx context.Context, execution *model.StepExecution) {
	r.chunkCommit.Add(ctx, 1, stepAttributes(execution))
}

func (r *OpenTelemetryRecorder) RecordChunkRollback(ctx context.Context, execution *model.StepExecution) {
	r.chunkRollback.Add(ctx, 1, stepAttributes(execution))
}

func (r *OpenTelemetryRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := []attribute.KeyValue{attribute.String("name", name)}
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

var _ metrics.MetricRecorder = (*OpenTelemetryRecorder)(nil)
