package metrics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"

	config "github.com/tigerroll/surfin-engine/pkg/batch/core/config"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/metrics"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

type eventType int

const (
	eventJobStart eventType = iota
	eventJobEnd
	eventStepStart
	eventStepEnd
	eventItemRead
	eventItemWrite
	eventItemSkip
	eventItemRetry
	eventChunkCommit
	eventChunkRollback
	eventDuration
)

// metricEvent is one recorder call waiting in the queue. Executions are snapshots so the
// worker never reads state the engine is still changing.
type metricEvent struct {
	kind          eventType
	jobExecution  *model.JobExecution
	stepExecution *model.StepExecution
	count         int
	phase         string
	reason        string
	name          string
	duration      time.Duration
	tags          map[string]string
}

// AsyncMetricRecorder queues recorder calls and replays them on a background goroutine
// against the wrapped recorder. Events are dropped with a warning when the queue is full.
type AsyncMetricRecorder struct {
	eventQueue   chan metricEvent
	stopCh       chan struct{}
	closeOnce    sync.Once
	wg           sync.WaitGroup
	syncRecorder metrics.MetricRecorder
}

// NewAsyncMetricRecorder starts the worker goroutine. A bufferSize of 0 or less uses 100.
func NewAsyncMetricRecorder(bufferSize int, syncRecorder metrics.MetricRecorder) *AsyncMetricRecorder {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	r := &AsyncMetricRecorder{
		eventQueue:   make(chan metricEvent, bufferSize),
		stopCh:       make(chan struct{}),
		syncRecorder: syncRecorder,
	}
	r.wg.Add(1)
	go r.run()
	logger.Debugf("AsyncMetricRecorder: worker started (buffer size: %d).", bufferSize)
	return r
}

func (r *AsyncMetricRecorder) run() {
	defer r.wg.Done()
	for {
		select {
		case event := <-r.eventQueue:
			r.process(event)
		case <-r.stopCh:
			remaining := len(r.eventQueue)
			for i := 0; i < remaining; i++ {
				r.process(<-r.eventQueue)
			}
			logger.Debugf("AsyncMetricRecorder: worker stopped after draining %d events.", remaining)
			return
		}
	}
}

func (r *AsyncMetricRecorder) process(event metricEvent) {
	ctx := context.Background()
	switch event.kind {
	case eventJobStart:
		r.syncRecorder.RecordJobStart(ctx, event.jobExecution)
	case eventJobEnd:
		r.syncRecorder.RecordJobEnd(ctx, event.jobExecution)
	case eventStepStart:
		r.syncRecorder.RecordStepStart(ctx, event.stepExecution)
	case eventStepEnd:
		r.syncRecorder.RecordStepEnd(ctx, event.stepExecution)
	case eventItemRead:
		r.syncRecorder.RecordItemRead(ctx, event.stepExecution)
	case eventItemWrite:
		r.syncRecorder.RecordItemWrite(ctx, event.stepExecution, event.count)
	case eventItemSkip:
		r.syncRecorder.RecordItemSkip(ctx, event.stepExecution, event.phase, event.reason)
	case eventItemRetry:
		r.syncRecorder.RecordItemRetry(ctx, event.stepExecution, event.phase, event.reason)
	case eventChunkCommit:
		r.syncRecorder.RecordChunkCommit(ctx, event.stepExecution)
	case eventChunkRollback:
		r.syncRecorder.RecordChunkRollback(ctx, event.stepExecution)
	case eventDuration:
		r.syncRecorder.RecordDuration(ctx, event.name, event.duration, event.tags)
	}
}

// Close stops the worker after the queued events are recorded. It is safe to call twice.
func (r *AsyncMetricRecorder) Close() {
	r.closeOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()
	})
}

func (r *AsyncMetricRecorder) send(event metricEvent) {
	select {
	case r.eventQueue <- event:
	default:
		logger.Warnf("AsyncMetricRecorder: event queue is full, metric event %d discarded.", event.kind)
	}
}

// stepRef copies the identity of a step execution, which is all item events need.
func stepRef(se *model.StepExecution) *model.StepExecution {
	ref := &model.StepExecution{ID: se.ID, StepName: se.StepName, JobExecutionID: se.JobExecutionID}
	if se.JobExecution != nil {
		ref.JobExecution = &model.JobExecution{ID: se.JobExecution.ID, JobName: se.JobExecution.JobName}
	}
	return ref
}

func (r *AsyncMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.send(metricEvent{kind: eventJobStart, jobExecution: execution.Clone()})
}

func (r *AsyncMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	r.send(metricEvent{kind: eventJobEnd, jobExecution: execution.Clone()})
}

func (r *AsyncMetricRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	r.send(metricEvent{kind: eventStepStart, stepExecution: stepRef(execution)})
}

func (r *AsyncMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	snapshot := execution.Clone()
	snapshot.JobExecution = stepRef(execution).JobExecution
	r.send(metricEvent{kind: eventStepEnd, stepExecution: snapshot})
}

func (r *AsyncMetricRecorder) RecordItemRead(ctx context.Context, execution *model.StepExecution) {
	r.send(metricEvent{kind: eventItemRead, stepExecution: stepRef(execution)})
}

func (r *AsyncMetricRecorder) RecordItemWrite(ctx context.Context, execution *model.StepExecution, count int) {
	r.send(metricEvent{kind: eventItemWrite, stepExecution: stepRef(execution), count: count})
}

func (r *AsyncMetricRecorder) RecordItemSkip(ctx context.Context, execution *model.StepExecution, phase, reason string) {
	r.send(metricEvent{kind: eventItemSkip, stepExecution: stepRef(execution), phase: phase, reason: reason})
}

func (r *AsyncMetricRecorder) RecordItemRetry(ctx context.Context, execution *model.StepExecution, phase, reason string) {
	r.send(metricEvent{kind: eventItemRetry, stepExecution: stepRef(execution), phase: phase, reason: reason})
}

func (r *AsyncMetricRecorder) RecordChunkCommit(ctx context.Context, execution *model.StepExecution) {
	r.send(metricEvent{kind: eventChunkCommit, stepExecution: stepRef(execution)})
}

func (r *AsyncMetricRecorder) RecordChunkRollback(ctx context.Context, execution *model.StepExecution) {
	r.send(metricEvent{kind: eventChunkRollback, stepExecution: stepRef(execution)})
}

func (r *AsyncMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.send(metricEvent{kind: eventDuration, name: name, duration: duration, tags: tags})
}

var _ metrics.MetricRecorder = (*AsyncMetricRecorder)(nil)

// DecorateAsync wraps the recorder in an AsyncMetricRecorder when
// observability.metrics.async_buffer_size is positive, and closes it on shutdown.
func DecorateAsync(lc fx.Lifecycle, cfg *config.ObservabilityConfig, recorder metrics.MetricRecorder) metrics.MetricRecorder {
	if cfg.Metrics.AsyncBufferSize <= 0 {
		return recorder
	}
	async := NewAsyncMetricRecorder(cfg.Metrics.AsyncBufferSize, recorder)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			async.Close()
			return nil
		},
	})
	logger.Debugf("MetricRecorder decorated with asynchronous wrapper.")
	return async
}
