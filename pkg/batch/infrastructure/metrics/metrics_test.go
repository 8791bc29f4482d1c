package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	config "github.com/tigerroll/surfin-engine/pkg/batch/core/config"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/surfin-engine/pkg/batch/core/metrics"
)

func finishedStep(status model.BatchStatus) *model.StepExecution {
	je := model.NewJobExecution("instance-1", "importJob", model.NewJobParameters())
	je.ID = "exec-1"
	se := model.NewStepExecution(je, "load")
	se.ID = "step-1"
	se.MarkAsStarted()
	se.ReadCount = 7
	se.WriteCount = 6
	se.ProcessSkipCount = 1
	if status == model.BatchStatusFailed {
		se.MarkAsFailed(errors.New("boom"))
	} else {
		se.MarkAsCompleted()
	}
	return se
}

func TestPrometheusRecorderCounts(t *testing.T) {
	r := NewPrometheusRecorder("test")
	ctx := context.Background()
	se := finishedStep(model.BatchStatusCompleted)

	r.RecordItemRead(ctx, se)
	r.RecordItemRead(ctx, se)
	r.RecordItemWrite(ctx, se, 5)
	r.RecordItemSkip(ctx, se, metrics.PhaseProcess, "ParseError")
	r.RecordChunkCommit(ctx, se)
	r.RecordChunkRollback(ctx, se)
	r.RecordStepEnd(ctx, se)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.stepReadCount.WithLabelValues("importJob", "load")))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.stepWriteCount.WithLabelValues("importJob", "load")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.itemSkipCounter.WithLabelValues("importJob", "load", "process", "ParseError")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepCommitCount.WithLabelValues("importJob", "load")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepRollbackCount.WithLabelValues("importJob", "load")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepStatusCounter.WithLabelValues("importJob", "load", "COMPLETED")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.stepDurationSeconds))
}

func TestPrometheusRecorderJobWithoutEndTime(t *testing.T) {
	r := NewPrometheusRecorder("test")
	je := model.NewJobExecution("instance-1", "importJob", model.NewJobParameters())
	je.MarkAsStarted()

	r.RecordJobStart(context.Background(), je)
	r.RecordJobEnd(context.Background(), je)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.jobStatusCounter.WithLabelValues("importJob", "STARTED")))
	assert.Equal(t, 0, testutil.CollectAndCount(r.jobDurationSeconds))
}

func TestOpenTelemetryTracerSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := NewOpenTelemetryTracer(tp)

	je := model.NewJobExecution("instance-1", "importJob", model.NewJobParameters())
	je.ID = "exec-1"
	se := finishedStep(model.BatchStatusFailed)

	ctx, endJob := tracer.StartJobSpan(context.Background(), je)
	stepCtx, endStep := tracer.StartStepSpan(ctx, se)
	tracer.RecordEvent(stepCtx, "chunk.committed", map[string]interface{}{"items": 3})
	tracer.RecordError(stepCtx, "writer", errors.New("disk full"))
	endStep()
	je.Finish(model.BatchStatusCompleted, model.ExitStatusCompleted)
	endJob()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	step, job := spans[0], spans[1]

	assert.Equal(t, "step load", step.Name())
	assert.Equal(t, codes.Error, step.Status().Code)
	assert.Equal(t, job.SpanContext().SpanID(), step.Parent().SpanID())
	require.Len(t, step.Events(), 2)
	assert.Equal(t, "chunk.committed", step.Events()[0].Name)
	assert.Equal(t, "exception", step.Events()[1].Name)

	assert.Equal(t, "job importJob", job.Name())
	assert.Equal(t, codes.Ok, job.Status().Code)
}

func TestOpenTelemetryRecorder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	r, err := NewOpenTelemetryRecorder(mp, "surfin")
	require.NoError(t, err)

	ctx := context.Background()
	se := finishedStep(model.BatchStatusCompleted)
	r.RecordItemWrite(ctx, se, 4)
	r.RecordItemWrite(ctx, se, 2)
	r.RecordDuration(ctx, "flush", 20*time.Millisecond, map[string]string{"table": "orders"})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	found := map[string]metricdata.Aggregation{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		found[m.Name] = m.Data
	}
	require.Contains(t, found, "surfin.item.write")
	require.Contains(t, found, "surfin.operation.duration")
	sum, ok := found["surfin.item.write"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(6), sum.DataPoints[0].Value)
}

func TestTelemetryDisabledUsesNoop(t *testing.T) {
	cfg := config.NewConfig().Surfin.Observability
	tel, err := NewTelemetry(context.Background(), &cfg)
	require.NoError(t, err)
	assert.NoError(t, tel.Shutdown(context.Background()))

	_, isNoop := NewTracerProvider(&cfg, tel).(*metrics.NoOpTracer)
	assert.True(t, isNoop)
}

func TestTelemetryRejectsUnknownProtocol(t *testing.T) {
	cfg := config.NewConfig().Surfin.Observability
	cfg.Tracing.Enabled = true
	cfg.OTLP.Protocol = "carrier-pigeon"
	_, err := NewTelemetry(context.Background(), &cfg)
	assert.Error(t, err)
}
