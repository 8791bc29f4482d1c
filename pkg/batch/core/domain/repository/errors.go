package repository

import (
	"errors"
	"fmt"

	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
)

const module = "repository"

var (
	// ErrUnassignedID is returned when an entity is updated before it was created.
	ErrUnassignedID = errors.New("entity has no assigned ID")
	// ErrIDAlreadyAssigned is returned when an entity that already has an ID is added again.
	ErrIDAlreadyAssigned = errors.New("entity ID is already assigned")
	// ErrJobInstanceAlreadyExists is returned when an instance with the same identity exists.
	ErrJobInstanceAlreadyExists = errors.New("job instance already exists")
	// ErrJobExecutionAlreadyRunning is returned when the latest execution of an instance has not finished.
	ErrJobExecutionAlreadyRunning = errors.New("job execution already running")
	// ErrJobInstanceAlreadyComplete is returned when an instance completed or was abandoned.
	ErrJobInstanceAlreadyComplete = errors.New("job instance already complete")
	// ErrJobRestart is returned when an instance cannot be restarted.
	ErrJobRestart = errors.New("job restart not allowed")

	ErrJobInstanceNotFound   = errors.New("job instance not found")
	ErrJobExecutionNotFound  = errors.New("job execution not found")
	ErrStepExecutionNotFound = errors.New("step execution not found")
)

func init() {
	exception.RegisterErrorType("ErrUnassignedID", ErrUnassignedID)
	exception.RegisterErrorType("ErrIDAlreadyAssigned", ErrIDAlreadyAssigned)
	exception.RegisterErrorType("JobInstanceAlreadyExistsException", ErrJobInstanceAlreadyExists)
	exception.RegisterErrorType("JobExecutionAlreadyRunningException", ErrJobExecutionAlreadyRunning)
	exception.RegisterErrorType("JobInstanceAlreadyCompleteException", ErrJobInstanceAlreadyComplete)
	exception.RegisterErrorType("JobRestartException", ErrJobRestart)
	exception.RegisterErrorType("ErrJobInstanceNotFound", ErrJobInstanceNotFound)
	exception.RegisterErrorType("ErrJobExecutionNotFound", ErrJobExecutionNotFound)
	exception.RegisterErrorType("ErrStepExecutionNotFound", ErrStepExecutionNotFound)
}

// NewError wraps sentinel in a BatchError with a contextual message.
func NewError(sentinel error, format string, a ...interface{}) error {
	return exception.NewBatchError(module, fmt.Sprintf(format, a...), sentinel, false, false)
}

// CheckRestartable decides whether a new execution may follow last, the latest execution
// of an instance. last may be nil. The rules are:
//   - STARTING, STARTED or STOPPING: ErrJobExecutionAlreadyRunning
//   - COMPLETED or ABANDONED: ErrJobInstanceAlreadyComplete
//   - UNKNOWN: ErrJobRestart
//   - FAILED or STOPPED on a job that is not restartable: ErrJobRestart
func CheckRestartable(jobName string, last *model.JobExecution, restartable bool) error {
	if last == nil {
		return nil
	}
	switch last.Status {
	case model.BatchStatusStarting, model.BatchStatusStarted, model.BatchStatusStopping:
		return NewError(ErrJobExecutionAlreadyRunning, "a job execution for job '%s' is already running (execution %s, status %s)", jobName, last.ID, last.Status)
	case model.BatchStatusCompleted, model.BatchStatusAbandoned:
		return NewError(ErrJobInstanceAlreadyComplete, "job instance of '%s' is already complete (execution %s, status %s); change the identifying parameters to run again", jobName, last.ID, last.Status)
	case model.BatchStatusUnknown:
		return NewError(ErrJobRestart, "cannot restart job '%s': last execution %s is in UNKNOWN state and needs manual intervention", jobName, last.ID)
	}
	if !restartable {
		return NewError(ErrJobRestart, "job '%s' is not restartable (last execution %s ended %s)", jobName, last.ID, last.Status)
	}
	return nil
}

// ValidateNewStepExecution checks the preconditions of AddStepExecution.
func ValidateNewStepExecution(se *model.StepExecution) error {
	if se == nil {
		return NewError(ErrUnassignedID, "step execution is nil")
	}
	if se.ID != "" {
		return NewError(ErrIDAlreadyAssigned, "step execution '%s' already has ID %s", se.StepName, se.ID)
	}
	if se.StepName == "" {
		return exception.NewBatchError(module, "step execution has no step name", nil, false, false)
	}
	if se.JobExecutionID == "" && se.JobExecution != nil {
		se.JobExecutionID = se.JobExecution.ID
	}
	if se.JobExecutionID == "" {
		return NewError(ErrUnassignedID, "step execution '%s' has no persisted parent job execution", se.StepName)
	}
	return nil
}
