package runner

import (
	"context"
	"errors"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// ErrStartLimitExceeded is returned when a step already ran StartLimit times for its job instance.
var ErrStartLimitExceeded = errors.New("step start limit exceeded")

func init() {
	exception.RegisterErrorType("StartLimitExceededException", ErrStartLimitExceeded)
}

// stepHandler decides whether a step runs in the current job execution and runs it.
type stepHandler struct {
	repository repository.JobRepository
	instance   *model.JobInstance
}

// handle returns the execution that represents step in je. reused is true when the last
// execution of a previous attempt is returned instead of running the step.
func (h *stepHandler) handle(ctx context.Context, step port.Step, je *model.JobExecution) (se *model.StepExecution, reused bool, err error) {
	name := step.StepName()
	last, err := h.repository.GetLastStepExecution(ctx, h.instance, name)
	if err != nil {
		return nil, false, exception.NewBatchError(je.JobName, "failed to look up the last execution of step '"+name+"'", err, false, false)
	}

	if last != nil {
		switch {
		case last.Status == model.BatchStatusUnknown:
			return nil, false, repository.NewError(repository.ErrJobRestart,
				"cannot restart step '%s': last execution %s is in UNKNOWN state", name, last.ID)
		case last.Status == model.BatchStatusCompleted && !step.AllowStartIfComplete():
			logger.Infof("Step '%s' already completed for this job instance (StepExecution ID: %s), not running it again.", name, last.ID)
			return last, true, nil
		case last.Status == model.BatchStatusAbandoned:
			logger.Infof("Step '%s' was abandoned (StepExecution ID: %s), not running it again.", name, last.ID)
			return last, true, nil
		}
	}

	if limit := step.StartLimit(); limit > 0 {
		count, err := h.repository.GetStepExecutionCount(ctx, h.instance, name)
		if err != nil {
			return nil, false, exception.NewBatchError(je.JobName, "failed to count executions of step '"+name+"'", err, false, false)
		}
		if count >= limit {
			return nil, false, exception.NewBatchErrorf(je.JobName, "step '%s' has already run %d times (start limit %d)", name, count, limit, ErrStartLimitExceeded)
		}
	}

	se = model.NewStepExecution(je, name)
	if last != nil && last.JobExecutionID != je.ID && last.Status != model.BatchStatusCompleted {
		logger.Infof("Step '%s': restoring execution context of StepExecution %s (%s).", name, last.ID, last.Status)
		se.ExecutionContext = last.ExecutionContext.Copy()
	}
	if err := h.repository.AddStepExecution(ctx, se); err != nil {
		return nil, false, exception.NewBatchError(je.JobName, "failed to add execution of step '"+name+"'", err, false, false)
	}
	je.AddStepExecution(se)

	if err := step.Execute(ctx, se); err != nil {
		return se, false, err
	}
	return se, false, nil
}
