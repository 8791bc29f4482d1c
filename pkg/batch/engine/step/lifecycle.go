// Package step holds the lifecycle shared by chunk and tasklet steps: marking the
// execution started, calling step listeners, deciding the final status and persisting it.
package step

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-engine/pkg/batch/listener"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// ErrStopped is returned by a step body that honoured a stop request. The step ends STOPPED.
var ErrStopped = errors.New("step stopped")

// Body is the work of a step, run between the before-step and after-step listeners.
// It returns nil when the work is complete.
type Body func(ctx context.Context, stepExecution *model.StepExecution) error

// Options are the settings every step kind shares.
type Options struct {
	// StartLimit is how many times the step may run for one job instance. 0 means no limit.
	StartLimit int
	// AllowStartIfComplete reruns a COMPLETED step when its job is restarted.
	AllowStartIfComplete bool
	// IsolationLevel is the isolation of chunk and iteration transactions
	// (READ_UNCOMMITTED, READ_COMMITTED, REPEATABLE_READ or SERIALIZABLE). Empty uses the database default.
	IsolationLevel string
}

// Lifecycle runs a Body as a step execution.
type Lifecycle struct {
	Name       string
	Repository repository.JobRepository
	Listeners  *listener.Registry
	Options    Options
}

// Run executes body for stepExecution:
//  1. mark STARTED and persist;
//  2. call the before-step listeners; an error fails the step without running body;
//  3. run body;
//  4. set the final status: STOPPED on ErrStopped, FAILED on any other error, COMPLETED otherwise;
//  5. merge the exit statuses returned by the after-step listeners;
//  6. persist the execution context and then the execution.
//
// The returned error reports a repository failure only. Failures of the step are
// recorded in stepExecution.
func (l *Lifecycle) Run(ctx context.Context, stepExecution *model.StepExecution, body Body) error {
	logger.Infof("Step '%s' executing (StepExecution ID: %s).", l.Name, stepExecution.ID)

	stepExecution.MarkAsStarted()
	if err := l.Repository.UpdateStepExecution(ctx, stepExecution); err != nil {
		return exception.NewBatchError(l.Name, "failed to mark step execution STARTED", err, false, false)
	}
	ctx = port.GetContextWithStepExecution(ctx, stepExecution)

	var bodyErr error
	if err := l.Listeners.BeforeStep(ctx, stepExecution); err != nil {
		bodyErr = exception.NewBatchError(l.Name, "before-step listener failed", err, false, false)
	} else {
		bodyErr = body(ctx, stepExecution)
	}

	switch {
	case errors.Is(bodyErr, ErrStopped):
		logger.Infof("Step '%s' stopped.", l.Name)
		stepExecution.MarkAsStopped()
	case bodyErr != nil:
		logger.Errorf("Step '%s' failed: %v", l.Name, bodyErr)
		stepExecution.MarkAsFailed(bodyErr)
	default:
		stepExecution.MarkAsCompleted()
	}

	if exitStatus := l.Listeners.AfterStep(ctx, stepExecution); exitStatus != nil {
		stepExecution.ExitStatus = stepExecution.ExitStatus.And(*exitStatus)
	}

	// A cancelled context must not prevent the final status from being recorded.
	persistCtx := context.WithoutCancel(ctx)
	if err := l.Repository.UpdateStepExecutionContext(persistCtx, stepExecution); err != nil {
		logger.Errorf("Step '%s': failed to persist execution context: %v", l.Name, err)
		stepExecution.Status = model.BatchStatusUnknown
		stepExecution.ExitStatus = model.ExitStatusUnknown.AddExitDescriptionFromError(err)
	}
	if err := l.Repository.UpdateStepExecution(persistCtx, stepExecution); err != nil {
		stepExecution.Status = model.BatchStatusUnknown
		stepExecution.ExitStatus = model.ExitStatusUnknown.AddExitDescriptionFromError(err)
		return exception.NewBatchError(l.Name, "failed to persist final step execution", err, false, false)
	}

	logger.Infof("Step '%s' finished. Status: %s, ExitStatus: %s, read=%d write=%d filter=%d skip=%d commit=%d rollback=%d",
		l.Name, stepExecution.Status, stepExecution.ExitStatus, stepExecution.ReadCount, stepExecution.WriteCount,
		stepExecution.FilterCount, stepExecution.SkipCount(), stepExecution.CommitCount, stepExecution.RollbackCount)
	return nil
}

// Persist stores the counters and the execution context after a commit.
func (l *Lifecycle) Persist(ctx context.Context, stepExecution *model.StepExecution) error {
	if err := l.Repository.UpdateStepExecutionContext(ctx, stepExecution); err != nil {
		return err
	}
	return l.Repository.UpdateStepExecution(ctx, stepExecution)
}

// StopRequested reports whether the step should stop at the current boundary: the
// context ended, the job execution was asked to stop in this process, or another
// process stored STOPPING for it.
func (l *Lifecycle) StopRequested(ctx context.Context, stepExecution *model.StepExecution) bool {
	if ctx.Err() != nil || stepExecution.TerminateOnly {
		return true
	}
	je := stepExecution.JobExecution
	if je == nil {
		return false
	}
	if je.IsStopRequested() {
		return true
	}
	if err := l.Repository.SynchronizeStatus(ctx, je); err != nil {
		logger.Warnf("Step '%s': failed to synchronize job execution status: %v", l.Name, err)
		return false
	}
	return je.Status == model.BatchStatusStopping
}

// TxOptions returns the transaction options for the configured isolation level, or nil.
func (o Options) TxOptions() []*sql.TxOptions {
	level, ok := isolationLevels[strings.ToUpper(o.IsolationLevel)]
	if !ok || level == sql.LevelDefault {
		return nil
	}
	return []*sql.TxOptions{{Isolation: level}}
}

var isolationLevels = map[string]sql.IsolationLevel{
	"":                 sql.LevelDefault,
	"DEFAULT":          sql.LevelDefault,
	"READ_UNCOMMITTED": sql.LevelReadUncommitted,
	"READ_COMMITTED":   sql.LevelReadCommitted,
	"REPEATABLE_READ":  sql.LevelRepeatableRead,
	"SERIALIZABLE":     sql.LevelSerializable,
}
