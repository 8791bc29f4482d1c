// Package tracing opens a span per job and step execution through metrics.Tracer.
package tracing

import (
	"context"
	"sync"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/metrics"
)

// span is an open span: the context carrying it and the function that ends it.
type span struct {
	ctx context.Context
	end func()
}

// TracingListener starts a span in BeforeJob and BeforeStep and ends it in the matching
// after callback. Step spans are children of the span of their job execution, and item
// faults are recorded on the span of the step found in the context.
type TracingListener struct {
	tracer metrics.Tracer
	jobs   sync.Map // JobExecution ID -> span
	steps  sync.Map // StepExecution ID -> span
}

// NewTracingListener creates a listener that opens spans with tracer.
func NewTracingListener(tracer metrics.Tracer) *TracingListener {
	return &TracingListener{tracer: tracer}
}

func (l *TracingListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) error {
	spanCtx, end := l.tracer.StartJobSpan(ctx, jobExecution)
	l.jobs.Store(jobExecution.ID, span{ctx: spanCtx, end: end})
	return nil
}

func (l *TracingListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) error {
	if v, ok := l.jobs.LoadAndDelete(jobExecution.ID); ok {
		v.(span).end()
	}
	return nil
}

func (l *TracingListener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) error {
	parent := ctx
	if v, ok := l.jobs.Load(stepExecution.JobExecutionID); ok {
		parent = v.(span).ctx
	}
	spanCtx, end := l.tracer.StartStepSpan(parent, stepExecution)
	l.steps.Store(stepExecution.ID, span{ctx: spanCtx, end: end})
	return nil
}

func (l *TracingListener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) (*model.ExitStatus, error) {
	if v, ok := l.steps.LoadAndDelete(stepExecution.ID); ok {
		v.(span).end()
	}
	return nil, nil
}

// stepContext returns the span context of the step running in ctx.
func (l *TracingListener) stepContext(ctx context.Context) (context.Context, bool) {
	se := port.GetStepExecutionFromContext(ctx)
	if se == nil {
		return nil, false
	}
	v, ok := l.steps.Load(se.ID)
	if !ok {
		return nil, false
	}
	return v.(span).ctx, true
}

func (l *TracingListener) recordEvent(ctx context.Context, name string, err error) {
	if spanCtx, ok := l.stepContext(ctx); ok {
		l.tracer.RecordEvent(spanCtx, name, map[string]interface{}{"error": err.Error()})
	}
}

func (l *TracingListener) OnSkipInRead(ctx context.Context, err error) {
	l.recordEvent(ctx, "item.skip.read", err)
}

func (l *TracingListener) OnSkipInProcess(ctx context.Context, item interface{}, err error) {
	l.recordEvent(ctx, "item.skip.process", err)
}

func (l *TracingListener) OnSkipInWrite(ctx context.Context, item interface{}, err error) {
	l.recordEvent(ctx, "item.skip.write", err)
}

func (l *TracingListener) BeforeChunk(ctx context.Context, stepExecution *model.StepExecution) error {
	return nil
}

func (l *TracingListener) AfterChunk(ctx context.Context, stepExecution *model.StepExecution) error {
	return nil
}

func (l *TracingListener) AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, err error) error {
	if v, ok := l.steps.Load(stepExecution.ID); ok {
		l.tracer.RecordError(v.(span).ctx, "chunk", err)
	}
	return nil
}

func (l *TracingListener) OnRetry(ctx context.Context, attempt int, item interface{}, err error) {
	if spanCtx, ok := l.stepContext(ctx); ok {
		l.tracer.RecordEvent(spanCtx, "item.retry", map[string]interface{}{
			"attempt": attempt,
			"phase":   metrics.PhaseFromContext(ctx),
			"error":   err.Error(),
		})
	}
}

var (
	_ port.JobExecutionListener  = (*TracingListener)(nil)
	_ port.StepExecutionListener = (*TracingListener)(nil)
	_ port.ChunkListener         = (*TracingListener)(nil)
	_ port.SkipListener          = (*TracingListener)(nil)
	_ port.RetryListener         = (*TracingListener)(nil)
)
