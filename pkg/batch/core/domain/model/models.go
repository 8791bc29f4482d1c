package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// FailureList holds a list of error messages.
type FailureList []string

// Value implements the `driver.Valuer` interface, converting FailureList to a JSON string.
func (fl FailureList) Value() (driver.Value, error) {
	if fl == nil {
		return "[]", nil
	}
	data, err := json.Marshal(fl)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the `sql.Scanner` interface, converting a JSON string to FailureList.
func (fl *FailureList) Scan(value interface{}) error {
	if value == nil {
		*fl = make(FailureList, 0)
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for FailureList: %T", value)
	}
	if len(b) == 0 {
		*fl = make(FailureList, 0)
		return nil
	}
	if err := json.Unmarshal(b, fl); err != nil {
		return fmt.Errorf("failed to unmarshal FailureList JSON: %w", err)
	}
	return nil
}

// add appends msg unless it is already present.
func (fl FailureList) add(msg string) (FailureList, bool) {
	for _, existing := range fl {
		if existing == msg {
			return fl, false
		}
	}
	return append(fl, msg), true
}

// NewID generates a new UUID string.
func NewID() string {
	return uuid.New().String()
}

// JobInstance is the logical run of a job: a job name plus the identifying subset of its parameters.
type JobInstance struct {
	ID         string
	JobName    string
	JobKey     string
	Parameters JobParameters
	CreateTime time.Time
	Version    int
}

// NewJobInstance creates a JobInstance that has not been persisted yet.
func NewJobInstance(jobName string, params JobParameters) *JobInstance {
	return &JobInstance{
		JobName:    jobName,
		JobKey:     params.InstanceKey(),
		Parameters: params.Identifying(),
		CreateTime: time.Now(),
	}
}

// Clone returns a copy of the instance.
func (ji *JobInstance) Clone() *JobInstance {
	if ji == nil {
		return nil
	}
	c := *ji
	return &c
}

// JobExecution is one attempt to run a JobInstance.
type JobExecution struct {
	ID               string
	JobInstanceID    string
	JobName          string
	Parameters       JobParameters
	Status           BatchStatus
	ExitStatus       ExitStatus
	CreateTime       time.Time
	StartTime        time.Time
	EndTime          *time.Time
	LastUpdated      time.Time
	ExecutionContext ExecutionContext
	StepExecutions   []*StepExecution
	Failures         FailureList
	Version          int

	stopRequested atomic.Bool
}

// NewJobExecution creates a JobExecution in STARTING state for the given instance.
func NewJobExecution(jobInstanceID string, jobName string, params JobParameters) *JobExecution {
	now := time.Now()
	return &JobExecution{
		JobInstanceID:    jobInstanceID,
		JobName:          jobName,
		Parameters:       params,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		CreateTime:       now,
		LastUpdated:      now,
		ExecutionContext: NewExecutionContext(),
		StepExecutions:   make([]*StepExecution, 0),
		Failures:         make(FailureList, 0),
	}
}

// Clone returns a deep copy of the execution and its step executions. The stop flag is not copied.
func (je *JobExecution) Clone() *JobExecution {
	if je == nil {
		return nil
	}
	c := &JobExecution{
		ID:               je.ID,
		JobInstanceID:    je.JobInstanceID,
		JobName:          je.JobName,
		Parameters:       je.Parameters,
		Status:           je.Status,
		ExitStatus:       je.ExitStatus,
		CreateTime:       je.CreateTime,
		StartTime:        je.StartTime,
		LastUpdated:      je.LastUpdated,
		ExecutionContext: je.ExecutionContext.Copy(),
		Failures:         append(FailureList{}, je.Failures...),
		Version:          je.Version,
	}
	if je.EndTime != nil {
		end := *je.EndTime
		c.EndTime = &end
	}
	c.StepExecutions = make([]*StepExecution, 0, len(je.StepExecutions))
	for _, se := range je.StepExecutions {
		sc := se.Clone()
		sc.JobExecution = c
		c.StepExecutions = append(c.StepExecutions, sc)
	}
	return c
}

// RequestStop flags the execution for a cooperative stop. It is safe to call from any goroutine.
func (je *JobExecution) RequestStop() {
	je.stopRequested.Store(true)
}

// IsStopRequested reports whether RequestStop was called or the status is STOPPING.
func (je *JobExecution) IsStopRequested() bool {
	return je.stopRequested.Load() || je.Status == BatchStatusStopping
}

// IsRunning reports whether the execution has not reached a finished state and has not been asked to stop.
func (je *JobExecution) IsRunning() bool {
	return je.Status.IsRunning()
}

// isValidJobTransition checks if the state transition for JobExecution is valid.
func isValidJobTransition(current, next BatchStatus) bool {
	switch current {
	case BatchStatusStarting:
		return next == BatchStatusStarted || next == BatchStatusFailed || next == BatchStatusStopped || next == BatchStatusStopping || next == BatchStatusAbandoned
	case BatchStatusStarted:
		return next == BatchStatusStopping || next == BatchStatusCompleted || next == BatchStatusFailed || next == BatchStatusStopped || next == BatchStatusAbandoned
	case BatchStatusStopping:
		return next == BatchStatusStopped || next == BatchStatusFailed || next == BatchStatusCompleted || next == BatchStatusAbandoned
	case BatchStatusStopped, BatchStatusFailed:
		return next == BatchStatusAbandoned
	default:
		return false
	}
}

// TransitionTo changes the status if the transition is allowed.
func (je *JobExecution) TransitionTo(newStatus BatchStatus) error {
	if !isValidJobTransition(je.Status, newStatus) {
		return fmt.Errorf("JobExecution (ID: %s): invalid state transition: %s -> %s", je.ID, je.Status, newStatus)
	}
	je.Status = newStatus
	return nil
}

func (je *JobExecution) forceStatus(status BatchStatus) {
	if err := je.TransitionTo(status); err != nil {
		logger.Warnf("Could not update JobExecution (ID: %s) status to %s: %v", je.ID, status, err)
		je.Status = status
	}
}

// MarkAsStarted updates the JobExecution status to STARTED and records the start time.
func (je *JobExecution) MarkAsStarted() {
	je.forceStatus(BatchStatusStarted)
	now := time.Now()
	je.StartTime = now
	je.LastUpdated = now
}

// MarkAsStopping records a stop request in the status.
func (je *JobExecution) MarkAsStopping() {
	je.forceStatus(BatchStatusStopping)
	je.LastUpdated = time.Now()
}

// MarkAsAbandoned updates the JobExecution status to ABANDONED.
func (je *JobExecution) MarkAsAbandoned() {
	je.forceStatus(BatchStatusAbandoned)
	je.finish()
}

// Finish sets the final status and exit status and stamps the end time.
func (je *JobExecution) Finish(status BatchStatus, exitStatus ExitStatus) {
	je.forceStatus(status)
	je.ExitStatus = exitStatus
	je.finish()
}

func (je *JobExecution) finish() {
	now := time.Now()
	je.EndTime = &now
	je.LastUpdated = now
}

// AddFailureException records err once.
func (je *JobExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	var added bool
	je.Failures, added = je.Failures.add(exception.ExtractErrorMessage(err))
	if added {
		je.LastUpdated = time.Now()
	}
}

// AddStepExecution attaches se to this execution.
func (je *JobExecution) AddStepExecution(se *StepExecution) {
	se.JobExecution = je
	se.JobExecutionID = je.ID
	je.StepExecutions = append(je.StepExecutions, se)
}

// StepExecution is one attempt to run one step within a JobExecution.
type StepExecution struct {
	ID               string
	StepName         string
	JobExecutionID   string
	JobExecution     *JobExecution
	Status           BatchStatus
	ExitStatus       ExitStatus
	CreateTime       time.Time
	StartTime        time.Time
	EndTime          *time.Time
	LastUpdated      time.Time
	ReadCount        int
	WriteCount       int
	CommitCount      int
	RollbackCount    int
	FilterCount      int
	ReadSkipCount    int
	ProcessSkipCount int
	WriteSkipCount   int
	ExecutionContext ExecutionContext
	Failures         FailureList
	TerminateOnly    bool
	Version          int
}

// NewStepExecution creates a StepExecution in STARTING state. The repository assigns its ID.
func NewStepExecution(jobExecution *JobExecution, stepName string) *StepExecution {
	now := time.Now()
	se := &StepExecution{
		StepName:         stepName,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusExecuting,
		CreateTime:       now,
		LastUpdated:      now,
		Failures:         make(FailureList, 0),
		ExecutionContext: NewExecutionContext(),
	}
	if jobExecution != nil {
		se.JobExecution = jobExecution
		se.JobExecutionID = jobExecution.ID
	}
	return se
}

// Clone returns a copy of the step execution. The JobExecution back reference is shared.
func (se *StepExecution) Clone() *StepExecution {
	if se == nil {
		return nil
	}
	c := *se
	c.ExecutionContext = se.ExecutionContext.Copy()
	c.Failures = append(FailureList{}, se.Failures...)
	if se.EndTime != nil {
		end := *se.EndTime
		c.EndTime = &end
	}
	return &c
}

// SkipCount returns the total of read, process and write skips.
func (se *StepExecution) SkipCount() int {
	return se.ReadSkipCount + se.ProcessSkipCount + se.WriteSkipCount
}

// isValidStepTransition checks if the state transition for StepExecution is valid.
func isValidStepTransition(current, next BatchStatus) bool {
	switch current {
	case BatchStatusStarting:
		return next == BatchStatusStarted || next == BatchStatusFailed || next == BatchStatusStopped || next == BatchStatusAbandoned
	case BatchStatusStarted:
		return next == BatchStatusStopping || next == BatchStatusCompleted || next == BatchStatusFailed || next == BatchStatusStopped || next == BatchStatusAbandoned
	case BatchStatusStopping:
		return next == BatchStatusStopped || next == BatchStatusFailed || next == BatchStatusCompleted
	case BatchStatusStopped, BatchStatusFailed:
		return next == BatchStatusAbandoned
	default:
		return false
	}
}

// TransitionTo changes the status if the transition is allowed.
func (se *StepExecution) TransitionTo(newStatus BatchStatus) error {
	if !isValidStepTransition(se.Status, newStatus) {
		return fmt.Errorf("StepExecution (ID: %s): invalid state transition: %s -> %s", se.ID, se.Status, newStatus)
	}
	se.Status = newStatus
	return nil
}

func (se *StepExecution) forceStatus(status BatchStatus) {
	if err := se.TransitionTo(status); err != nil {
		logger.Warnf("Could not update StepExecution (ID: %s) status to %s: %v", se.ID, status, err)
		se.Status = status
	}
}

// MarkAsStarted updates the StepExecution status to STARTED.
func (se *StepExecution) MarkAsStarted() {
	se.forceStatus(BatchStatusStarted)
	now := time.Now()
	se.StartTime = now
	se.LastUpdated = now
}

// MarkAsCompleted updates the StepExecution status to COMPLETED.
func (se *StepExecution) MarkAsCompleted() {
	se.forceStatus(BatchStatusCompleted)
	se.ExitStatus = se.ExitStatus.And(ExitStatusCompleted)
	se.finish()
}

// MarkAsFailed updates the StepExecution status to FAILED and records err.
func (se *StepExecution) MarkAsFailed(err error) {
	se.forceStatus(BatchStatusFailed)
	se.ExitStatus = se.ExitStatus.And(ExitStatusFailed.AddExitDescriptionFromError(err))
	se.AddFailureException(err)
	se.finish()
}

// MarkAsStopped updates the StepExecution status to STOPPED.
func (se *StepExecution) MarkAsStopped() {
	se.forceStatus(BatchStatusStopped)
	se.ExitStatus = se.ExitStatus.And(ExitStatusStopped)
	se.finish()
}

// MarkAsAbandoned updates the StepExecution status to ABANDONED.
func (se *StepExecution) MarkAsAbandoned() {
	se.forceStatus(BatchStatusAbandoned)
	se.finish()
}

func (se *StepExecution) finish() {
	now := time.Now()
	se.EndTime = &now
	se.LastUpdated = now
}

// AddFailureException records err once.
func (se *StepExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	var added bool
	se.Failures, added = se.Failures.add(exception.ExtractErrorMessage(err))
	if added {
		se.LastUpdated = time.Now()
	} else {
		logger.Debugf("Skipped adding duplicate error to StepExecution (ID: %s).", se.ID)
	}
}

// ApplyContribution adds the counters collected during one chunk.
func (se *StepExecution) ApplyContribution(c StepContribution) {
	se.ReadCount += c.ReadCount
	se.WriteCount += c.WriteCount
	se.FilterCount += c.FilterCount
	se.ReadSkipCount += c.ReadSkipCount
	se.ProcessSkipCount += c.ProcessSkipCount
	se.WriteSkipCount += c.WriteSkipCount
	if c.ExitStatus != nil {
		se.ExitStatus = se.ExitStatus.And(*c.ExitStatus)
	}
	se.LastUpdated = time.Now()
}

// StepContribution collects the counter changes of one chunk or tasklet iteration.
// It is applied to the StepExecution only when the surrounding transaction commits.
type StepContribution struct {
	ReadCount        int
	WriteCount       int
	FilterCount      int
	ReadSkipCount    int
	ProcessSkipCount int
	WriteSkipCount   int
	ExitStatus       *ExitStatus
}

// SkipCount returns the total skips recorded in the contribution.
func (c *StepContribution) SkipCount() int {
	return c.ReadSkipCount + c.ProcessSkipCount + c.WriteSkipCount
}
