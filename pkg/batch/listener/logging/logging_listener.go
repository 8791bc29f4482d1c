// Package logging provides a listener that writes job, step and item events to the batch logger.
package logging

import (
	"context"
	"time"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// LoggingListener logs lifecycle events at INFO, chunk events at DEBUG, and item faults and
// skips at WARN or ERROR. Parameter values are masked by JobParameters.String.
type LoggingListener struct{}

// NewLoggingListener creates a new LoggingListener.
func NewLoggingListener() *LoggingListener {
	return &LoggingListener{}
}

func (l *LoggingListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) error {
	logger.Infof("Job '%s' starting (execution: %s, params: %s).", jobExecution.JobName, jobExecution.ID, jobExecution.Parameters)
	return nil
}

func (l *LoggingListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) error {
	var duration time.Duration
	if jobExecution.EndTime != nil {
		duration = jobExecution.EndTime.Sub(jobExecution.StartTime)
	}
	if jobExecution.Status.IsUnsuccessful() {
		logger.Warnf("Job '%s' finished with status %s (exit: %s, duration: %s, failures: %d).",
			jobExecution.JobName, jobExecution.Status, jobExecution.ExitStatus, duration, len(jobExecution.Failures))
		return nil
	}
	logger.Infof("Job '%s' finished with status %s (exit: %s, duration: %s).",
		jobExecution.JobName, jobExecution.Status, jobExecution.ExitStatus, duration)
	return nil
}

func (l *LoggingListener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) error {
	logger.Infof("Step '%s' starting (execution: %s).", stepExecution.StepName, stepExecution.ID)
	return nil
}

func (l *LoggingListener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) (*model.ExitStatus, error) {
	logger.Infof("Step '%s' ended with status %s: read=%d write=%d filter=%d skip=%d commit=%d rollback=%d.",
		stepExecution.StepName, stepExecution.Status,
		stepExecution.ReadCount, stepExecution.WriteCount, stepExecution.FilterCount,
		stepExecution.SkipCount(), stepExecution.CommitCount, stepExecution.RollbackCount)
	return nil, nil
}

func (l *LoggingListener) BeforeChunk(ctx context.Context, stepExecution *model.StepExecution) error {
	logger.Debugf("Step '%s': chunk %d starting.", stepExecution.StepName, stepExecution.CommitCount+stepExecution.RollbackCount+1)
	return nil
}

func (l *LoggingListener) AfterChunk(ctx context.Context, stepExecution *model.StepExecution) error {
	logger.Debugf("Step '%s': chunk committed (read: %d, write: %d).", stepExecution.StepName, stepExecution.ReadCount, stepExecution.WriteCount)
	return nil
}

func (l *LoggingListener) AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, err error) error {
	logger.Warnf("Step '%s': chunk rolled back: %v", stepExecution.StepName, err)
	return nil
}

func (l *LoggingListener) BeforeRead(ctx context.Context) {}

func (l *LoggingListener) AfterRead(ctx context.Context, item interface{}) {
	logger.Debugf("Read item: %+v", item)
}

func (l *LoggingListener) OnReadError(ctx context.Context, err error) {
	logger.Errorf("Read failed: %v", err)
}

func (l *LoggingListener) BeforeProcess(ctx context.Context, item interface{}) {}

func (l *LoggingListener) AfterProcess(ctx context.Context, item interface{}, result interface{}) {
	if result == nil {
		logger.Debugf("Filtered item: %+v", item)
	}
}

func (l *LoggingListener) OnProcessError(ctx context.Context, item interface{}, err error) {
	logger.Errorf("Process failed for item %+v: %v", item, err)
}

func (l *LoggingListener) BeforeWrite(ctx context.Context, items []interface{}) {}

func (l *LoggingListener) AfterWrite(ctx context.Context, items []interface{}) {
	logger.Debugf("Wrote %d items.", len(items))
}

func (l *LoggingListener) OnWriteError(ctx context.Context, items []interface{}, err error) {
	logger.Errorf("Write of %d items failed: %v", len(items), err)
}

func (l *LoggingListener) OnSkipInRead(ctx context.Context, err error) {
	logger.Warnf("Skipped read (%s): %v", exception.CategoryName(err), err)
}

func (l *LoggingListener) OnSkipInProcess(ctx context.Context, item interface{}, err error) {
	logger.Warnf("Skipped item %+v in process (%s): %v", item, exception.CategoryName(err), err)
}

func (l *LoggingListener) OnSkipInWrite(ctx context.Context, item interface{}, err error) {
	logger.Warnf("Skipped item %+v in write (%s): %v", item, exception.CategoryName(err), err)
}

func (l *LoggingListener) OnRetry(ctx context.Context, attempt int, item interface{}, err error) {
	logger.Infof("Retrying item %+v (attempt %d): %v", item, attempt, err)
}

var (
	_ port.JobExecutionListener  = (*LoggingListener)(nil)
	_ port.StepExecutionListener = (*LoggingListener)(nil)
	_ port.ChunkListener         = (*LoggingListener)(nil)
	_ port.ItemReadListener      = (*LoggingListener)(nil)
	_ port.ItemProcessListener   = (*LoggingListener)(nil)
	_ port.ItemWriteListener     = (*LoggingListener)(nil)
	_ port.SkipListener          = (*LoggingListener)(nil)
	_ port.RetryListener         = (*LoggingListener)(nil)
)
