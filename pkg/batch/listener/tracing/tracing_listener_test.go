package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	infra "github.com/tigerroll/surfin-engine/pkg/batch/infrastructure/metrics"
)

func TestTracingListenerNestsStepSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	l := NewTracingListener(infra.NewOpenTelemetryTracer(tp))
	ctx := context.Background()

	je := model.NewJobExecution("instance-1", "load", model.NewJobParameters())
	je.ID = "exec-1"
	se := model.NewStepExecution(je, "importStep")
	se.ID = "step-1"

	require.NoError(t, l.BeforeJob(ctx, je))
	require.NoError(t, l.BeforeStep(ctx, se))
	stepCtx := port.GetContextWithStepExecution(ctx, se)
	l.OnSkipInProcess(stepCtx, 5, errors.New("bad item"))
	se.MarkAsCompleted()
	_, err := l.AfterStep(ctx, se)
	require.NoError(t, err)
	je.Finish(model.BatchStatusCompleted, model.ExitStatusCompleted)
	require.NoError(t, l.AfterJob(ctx, je))

	spans := sr.Ended()
	require.Len(t, spans, 2)
	step, job := spans[0], spans[1]
	assert.Equal(t, "step importStep", step.Name())
	assert.Equal(t, job.SpanContext().SpanID(), step.Parent().SpanID())
	require.Len(t, step.Events(), 1)
	assert.Equal(t, "item.skip.process", step.Events()[0].Name)
}

func TestTracingListenerAfterWithoutBefore(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	l := NewTracingListener(infra.NewOpenTelemetryTracer(tp))

	assert.NoError(t, l.AfterJob(context.Background(), &model.JobExecution{ID: "missing"}))
	assert.Empty(t, sr.Ended())
}
