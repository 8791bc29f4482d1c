// Package tasklet implements the step that repeats a single port.Tasklet.
package tasklet

import (
	"context"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-engine/pkg/batch/engine/step"
	"github.com/tigerroll/surfin-engine/pkg/batch/listener"
	exception "github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// TaskletStep is a port.Step that runs a Tasklet until it reports FINISHED.
// Every iteration runs in its own transaction.
type TaskletStep struct {
	name          string
	tasklet       port.Tasklet
	jobRepository repository.JobRepository
	txManager     tx.TransactionManager
	listeners     *listener.Registry
	options       step.Options
}

// NewTaskletStep creates a new TaskletStep instance. A tasklet that also implements
// port.ItemStream is opened with the step execution context and updated before every commit.
func NewTaskletStep(
	name string,
	tasklet port.Tasklet,
	jobRepository repository.JobRepository,
	txManager tx.TransactionManager,
	listeners *listener.Registry,
	options step.Options,
) *TaskletStep {
	return &TaskletStep{
		name:          name,
		tasklet:       tasklet,
		jobRepository: jobRepository,
		txManager:     txManager,
		listeners:     listeners,
		options:       options,
	}
}

// StepName returns the step name.
func (s *TaskletStep) StepName() string {
	return s.name
}

func (s *TaskletStep) StartLimit() int { return s.options.StartLimit }

func (s *TaskletStep) AllowStartIfComplete() bool { return s.options.AllowStartIfComplete }

// Execute runs the tasklet iterations inside the step lifecycle.
func (s *TaskletStep) Execute(ctx context.Context, stepExecution *model.StepExecution) error {
	lc := &step.Lifecycle{Name: s.name, Repository: s.jobRepository, Listeners: s.listeners, Options: s.options}
	return lc.Run(ctx, stepExecution, func(ctx context.Context, se *model.StepExecution) (err error) {
		stream, isStream := s.tasklet.(port.ItemStream)
		if isStream {
			if err := stream.Open(ctx, se.ExecutionContext); err != nil {
				return exception.NewBatchError(s.name, "failed to open tasklet", err, false, false)
			}
			defer func() {
				if closeErr := stream.Close(context.WithoutCancel(ctx)); closeErr != nil {
					logger.Errorf("TaskletStep '%s': Failed to close tasklet: %v", s.name, closeErr)
					if err == nil {
						err = exception.NewBatchError(s.name, "failed to close tasklet", closeErr, false, false)
					}
				}
			}()
		}

		for iteration := 1; ; iteration++ {
			if lc.StopRequested(ctx, se) {
				return step.ErrStopped
			}
			status, err := s.iterate(ctx, lc, se, stream)
			if err != nil {
				return err
			}
			logger.Debugf("TaskletStep '%s': iteration %d returned %s.", s.name, iteration, status)
			if !status.IsContinuable() {
				return nil
			}
		}
	})
}

// iterate runs one tasklet call in a transaction and applies its contribution on commit.
func (s *TaskletStep) iterate(ctx context.Context, lc *step.Lifecycle, se *model.StepExecution, stream port.ItemStream) (model.RepeatStatus, error) {
	var (
		status       model.RepeatStatus
		contribution model.StepContribution
	)
	ec := se.ExecutionContext.Copy()

	err := tx.Execute(ctx, s.txManager, func(txCtx context.Context) error {
		s.listeners.BeforeChunk(txCtx, se)
		var err error
		status, err = s.tasklet.Execute(txCtx, &contribution, se)
		if err != nil {
			return err
		}
		if stream != nil {
			if err := stream.Update(txCtx, ec); err != nil {
				return exception.NewBatchError(s.name, "failed to save tasklet state", err, false, false)
			}
		}
		return nil
	}, s.options.TxOptions()...)
	if err != nil {
		se.RollbackCount++
		s.listeners.AfterChunkError(ctx, se, err)
		return model.RepeatStatusFinished, err
	}

	if stream != nil {
		se.ExecutionContext = ec
	}
	se.ApplyContribution(contribution)
	se.CommitCount++
	if err := lc.Persist(ctx, se); err != nil {
		return model.RepeatStatusFinished, exception.NewBatchError(s.name, "failed to persist step execution after commit", err, false, false)
	}
	s.listeners.AfterChunk(ctx, se)
	return status, nil
}

// Verify that TaskletStep implements the port.Step interface.
var _ port.Step = (*TaskletStep)(nil)
