package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/metrics"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
)

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordJobStart(ctx context.Context, e *model.JobExecution) {
	m.Called(e.JobName)
}
func (m *mockRecorder) RecordJobEnd(ctx context.Context, e *model.JobExecution) { m.Called(e.JobName) }
func (m *mockRecorder) RecordStepStart(ctx context.Context, e *model.StepExecution) {
	m.Called(e.StepName)
}
func (m *mockRecorder) RecordStepEnd(ctx context.Context, e *model.StepExecution) {
	m.Called(e.StepName)
}
func (m *mockRecorder) RecordItemRead(ctx context.Context, e *model.StepExecution) {
	m.Called(e.StepName)
}
func (m *mockRecorder) RecordItemWrite(ctx context.Context, e *model.StepExecution, count int) {
	m.Called(e.StepName, count)
}
func (m *mockRecorder) RecordItemSkip(ctx context.Context, e *model.StepExecution, phase, reason string) {
	m.Called(e.StepName, phase, reason)
}
func (m *mockRecorder) RecordItemRetry(ctx context.Context, e *model.StepExecution, phase, reason string) {
	m.Called(e.StepName, phase, reason)
}
func (m *mockRecorder) RecordChunkCommit(ctx context.Context, e *model.StepExecution) {
	m.Called(e.StepName)
}
func (m *mockRecorder) RecordChunkRollback(ctx context.Context, e *model.StepExecution) {
	m.Called(e.StepName)
}
func (m *mockRecorder) RecordDuration(ctx context.Context, name string, d time.Duration, tags map[string]string) {
	m.Called(name)
}

func TestMetricsListenerForwardsItemEvents(t *testing.T) {
	rec := &mockRecorder{}
	l := NewMetricsListener(rec)
	se := model.NewStepExecution(model.NewJobExecution("i", "job", model.NewJobParameters()), "load")
	ctx := port.GetContextWithStepExecution(context.Background(), se)
	parseErr := exception.NewParseError("reader", "bad line", errors.New("eof"))

	rec.On("RecordItemRead", "load").Twice()
	rec.On("RecordItemWrite", "load", 3).Once()
	rec.On("RecordItemSkip", "load", metrics.PhaseProcess, "ParseError").Once()
	rec.On("RecordItemRetry", "load", metrics.PhaseWrite, "ParseError").Once()
	rec.On("RecordChunkCommit", "load").Once()

	l.AfterRead(ctx, 1)
	l.AfterRead(ctx, 2)
	l.AfterWrite(ctx, []interface{}{1, 2, 3})
	l.OnSkipInProcess(ctx, 4, parseErr)
	l.OnRetry(metrics.WithPhase(ctx, metrics.PhaseWrite), 2, 5, parseErr)
	assert.NoError(t, l.AfterChunk(ctx, se))

	rec.AssertExpectations(t)
}

func TestMetricsListenerIgnoresItemEventsWithoutStep(t *testing.T) {
	rec := &mockRecorder{}
	l := NewMetricsListener(rec)

	l.AfterRead(context.Background(), 1)
	l.OnSkipInRead(context.Background(), errors.New("x"))

	rec.AssertNotCalled(t, "RecordItemRead", mock.Anything)
	rec.AssertNotCalled(t, "RecordItemSkip", mock.Anything, mock.Anything, mock.Anything)
}

func TestAsyncMetricRecorderDrainsOnClose(t *testing.T) {
	rec := &mockRecorder{}
	async := NewAsyncMetricRecorder(10, rec)
	se := model.NewStepExecution(model.NewJobExecution("i", "job", model.NewJobParameters()), "load")

	rec.On("RecordItemWrite", "load", 2).Times(3)
	rec.On("RecordStepEnd", "load").Once()
	for i := 0; i < 3; i++ {
		async.RecordItemWrite(context.Background(), se, 2)
	}
	async.RecordStepEnd(context.Background(), se)
	async.Close()
	async.Close()

	rec.AssertExpectations(t)
}
