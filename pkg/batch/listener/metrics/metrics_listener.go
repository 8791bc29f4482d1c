// Package metrics forwards listener events to the configured metrics.MetricRecorder.
package metrics

import (
	"context"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/metrics"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
)

// MetricsListener records job, step, chunk and item events. Item events need the
// StepExecution stored in the context by the chunk step and are dropped without it.
type MetricsListener struct {
	recorder metrics.MetricRecorder
}

// NewMetricsListener creates a listener that records to recorder.
func NewMetricsListener(recorder metrics.MetricRecorder) *MetricsListener {
	return &MetricsListener{recorder: recorder}
}

func (l *MetricsListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) error {
	l.recorder.RecordJobStart(ctx, jobExecution)
	return nil
}

func (l *MetricsListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) error {
	l.recorder.RecordJobEnd(ctx, jobExecution)
	return nil
}

func (l *MetricsListener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) error {
	l.recorder.RecordStepStart(ctx, stepExecution)
	return nil
}

// AfterStep records the end of the step. Exit statuses returned by other listeners are not
// yet merged at this point.
func (l *MetricsListener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) (*model.ExitStatus, error) {
	l.recorder.RecordStepEnd(ctx, stepExecution)
	return nil, nil
}

func (l *MetricsListener) BeforeChunk(ctx context.Context, stepExecution *model.StepExecution) error {
	return nil
}

func (l *MetricsListener) AfterChunk(ctx context.Context, stepExecution *model.StepExecution) error {
	l.recorder.RecordChunkCommit(ctx, stepExecution)
	return nil
}

func (l *MetricsListener) AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, err error) error {
	l.recorder.RecordChunkRollback(ctx, stepExecution)
	return nil
}

func (l *MetricsListener) BeforeRead(ctx context.Context) {}

func (l *MetricsListener) AfterRead(ctx context.Context, item interface{}) {
	if se := port.GetStepExecutionFromContext(ctx); se != nil {
		l.recorder.RecordItemRead(ctx, se)
	}
}

func (l *MetricsListener) OnReadError(ctx context.Context, err error) {}

func (l *MetricsListener) BeforeWrite(ctx context.Context, items []interface{}) {}

func (l *MetricsListener) AfterWrite(ctx context.Context, items []interface{}) {
	if se := port.GetStepExecutionFromContext(ctx); se != nil {
		l.recorder.RecordItemWrite(ctx, se, len(items))
	}
}

func (l *MetricsListener) OnWriteError(ctx context.Context, items []interface{}, err error) {}

func (l *MetricsListener) OnSkipInRead(ctx context.Context, err error) {
	l.skip(ctx, metrics.PhaseRead, err)
}

func (l *MetricsListener) OnSkipInProcess(ctx context.Context, item interface{}, err error) {
	l.skip(ctx, metrics.PhaseProcess, err)
}

func (l *MetricsListener) OnSkipInWrite(ctx context.Context, item interface{}, err error) {
	l.skip(ctx, metrics.PhaseWrite, err)
}

func (l *MetricsListener) skip(ctx context.Context, phase string, err error) {
	if se := port.GetStepExecutionFromContext(ctx); se != nil {
		l.recorder.RecordItemSkip(ctx, se, phase, exception.CategoryName(err))
	}
}

func (l *MetricsListener) OnRetry(ctx context.Context, attempt int, item interface{}, err error) {
	if se := port.GetStepExecutionFromContext(ctx); se != nil {
		l.recorder.RecordItemRetry(ctx, se, metrics.PhaseFromContext(ctx), exception.CategoryName(err))
	}
}

var (
	_ port.JobExecutionListener  = (*MetricsListener)(nil)
	_ port.StepExecutionListener = (*MetricsListener)(nil)
	_ port.ChunkListener         = (*MetricsListener)(nil)
	_ port.ItemReadListener      = (*MetricsListener)(nil)
	_ port.ItemWriteListener     = (*MetricsListener)(nil)
	_ port.SkipListener          = (*MetricsListener)(nil)
	_ port.RetryListener         = (*MetricsListener)(nil)
)
