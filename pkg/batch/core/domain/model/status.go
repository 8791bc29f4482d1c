package model

import "strings"

// BatchStatus represents the state of a job or step execution.
type BatchStatus string

const (
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusStarting  BatchStatus = "STARTING"
	BatchStatusStarted   BatchStatus = "STARTED"
	BatchStatusStopping  BatchStatus = "STOPPING"
	BatchStatusStopped   BatchStatus = "STOPPED"
	BatchStatusFailed    BatchStatus = "FAILED"
	BatchStatusAbandoned BatchStatus = "ABANDONED"
	BatchStatusUnknown   BatchStatus = "UNKNOWN"
)

// batchStatusSeverity orders statuses from least to most severe.
// Unlisted values are treated as UNKNOWN.
var batchStatusSeverity = map[BatchStatus]int{
	BatchStatusCompleted: 0,
	BatchStatusStarting:  1,
	BatchStatusStarted:   2,
	BatchStatusStopping:  3,
	BatchStatusStopped:   4,
	BatchStatusFailed:    5,
	BatchStatusAbandoned: 6,
	BatchStatusUnknown:   7,
}

// matchOrder is the order used by MatchBatchStatus.
var matchOrder = []BatchStatus{
	BatchStatusCompleted,
	BatchStatusStarting,
	BatchStatusStarted,
	BatchStatusStopping,
	BatchStatusStopped,
	BatchStatusFailed,
	BatchStatusAbandoned,
	BatchStatusUnknown,
}

// String returns the string representation of the BatchStatus.
func (s BatchStatus) String() string {
	return string(s)
}

// Severity returns the position of the status in the severity table.
func (s BatchStatus) Severity() int {
	if sev, ok := batchStatusSeverity[s]; ok {
		return sev
	}
	return batchStatusSeverity[BatchStatusUnknown]
}

// IsGreaterThan reports whether s is strictly more severe than other.
func (s BatchStatus) IsGreaterThan(other BatchStatus) bool {
	return s.Severity() > other.Severity()
}

// IsLessThan reports whether s is strictly less severe than other.
func (s BatchStatus) IsLessThan(other BatchStatus) bool {
	return s.Severity() < other.Severity()
}

// IsLessThanOrEqualTo reports whether s is at most as severe as other.
func (s BatchStatus) IsLessThanOrEqualTo(other BatchStatus) bool {
	return s.Severity() <= other.Severity()
}

// IsRunning reports whether the status is STARTING or STARTED.
func (s BatchStatus) IsRunning() bool {
	return s == BatchStatusStarting || s == BatchStatusStarted
}

// IsUnsuccessful reports whether the status is FAILED or more severe.
func (s BatchStatus) IsUnsuccessful() bool {
	return s == BatchStatusFailed || s.IsGreaterThan(BatchStatusFailed)
}

// IsFinished reports whether an execution in this status will not make further progress.
func (s BatchStatus) IsFinished() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned:
		return true
	default:
		return false
	}
}

// UpgradeTo combines two statuses. When either side is more severe than STARTED
// the more severe one wins. Otherwise COMPLETED wins over STARTING and STARTED,
// so a finished sibling is not dragged back into a running state.
func (s BatchStatus) UpgradeTo(other BatchStatus) BatchStatus {
	if s.IsGreaterThan(BatchStatusStarted) || other.IsGreaterThan(BatchStatusStarted) {
		return MaxStatus(s, other)
	}
	if s == BatchStatusCompleted || other == BatchStatusCompleted {
		return BatchStatusCompleted
	}
	return MaxStatus(s, other)
}

// MaxStatus returns the more severe of two statuses. On equal severity the first is returned.
func MaxStatus(a, b BatchStatus) BatchStatus {
	if b.IsGreaterThan(a) {
		return b
	}
	return a
}

// MatchBatchStatus finds the status whose name prefixes value. It returns
// COMPLETED, the lowest severity, when nothing matches.
func MatchBatchStatus(value string) BatchStatus {
	upper := strings.ToUpper(value)
	for _, status := range matchOrder {
		if strings.HasPrefix(upper, string(status)) {
			return status
		}
	}
	return BatchStatusCompleted
}

// ToExitStatus converts a BatchStatus to the ExitStatus an execution in that state reports by default.
func (s BatchStatus) ToExitStatus() ExitStatus {
	switch s {
	case BatchStatusCompleted:
		return ExitStatusCompleted
	case BatchStatusFailed:
		return ExitStatusFailed
	case BatchStatusStopped, BatchStatusStopping:
		return ExitStatusStopped
	case BatchStatusStarting, BatchStatusStarted:
		return ExitStatusExecuting
	default:
		return ExitStatusUnknown
	}
}
