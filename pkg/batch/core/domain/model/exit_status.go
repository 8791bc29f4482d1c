package model

import (
	"fmt"
	"strings"
	"sync"
)

// Well-known exit codes.
const (
	ExitCodeUnknown   = "UNKNOWN"
	ExitCodeExecuting = "EXECUTING"
	ExitCodeCompleted = "COMPLETED"
	ExitCodeNoop      = "NOOP"
	ExitCodeStopped   = "STOPPED"
	ExitCodeFailed    = "FAILED"
)

// ExitStatus is the outcome reported by a job or step. It is independent of BatchStatus
// and can carry user defined codes.
type ExitStatus struct {
	ExitCode        string `json:"exitCode"`
	ExitDescription string `json:"exitDescription,omitempty"`
}

var (
	ExitStatusUnknown   = ExitStatus{ExitCode: ExitCodeUnknown}
	ExitStatusExecuting = ExitStatus{ExitCode: ExitCodeExecuting}
	ExitStatusCompleted = ExitStatus{ExitCode: ExitCodeCompleted}
	ExitStatusNoop      = ExitStatus{ExitCode: ExitCodeNoop}
	ExitStatusStopped   = ExitStatus{ExitCode: ExitCodeStopped}
	ExitStatusFailed    = ExitStatus{ExitCode: ExitCodeFailed}
)

// exitCodePrecedence holds the rank of every known exit code. Well-known codes are
// seeded at init; custom codes are appended in the order they are first registered.
var exitCodePrecedence = struct {
	sync.RWMutex
	rank map[string]int
	next int
}{rank: make(map[string]int)}

func init() {
	for _, code := range []string{ExitCodeUnknown, ExitCodeExecuting, ExitCodeCompleted, ExitCodeNoop, ExitCodeStopped, ExitCodeFailed} {
		RegisterExitCode(code)
	}
}

// RegisterExitCode adds a custom exit code to the precedence table. Codes registered
// later outrank codes registered earlier. Registering a known code is a no-op.
func RegisterExitCode(code string) int {
	exitCodePrecedence.Lock()
	defer exitCodePrecedence.Unlock()
	if rank, ok := exitCodePrecedence.rank[code]; ok {
		return rank
	}
	rank := exitCodePrecedence.next
	exitCodePrecedence.rank[code] = rank
	exitCodePrecedence.next++
	return rank
}

// ExitCodePrecedence returns the rank of code, registering it if it has not been seen before.
func ExitCodePrecedence(code string) int {
	exitCodePrecedence.RLock()
	rank, ok := exitCodePrecedence.rank[code]
	exitCodePrecedence.RUnlock()
	if ok {
		return rank
	}
	return RegisterExitCode(code)
}

// NewExitStatus creates an ExitStatus with the given code and description.
func NewExitStatus(code, description string) ExitStatus {
	return ExitStatus{ExitCode: code, ExitDescription: description}
}

// String returns the ExitStatus as "CODE" or "CODE;description".
func (e ExitStatus) String() string {
	if e.ExitDescription == "" {
		return e.ExitCode
	}
	return fmt.Sprintf("%s;%s", e.ExitCode, e.ExitDescription)
}

// CompareTo orders two exit statuses by code precedence. It returns a negative
// number, zero or a positive number as e is less severe, equal or more severe.
func (e ExitStatus) CompareTo(other ExitStatus) int {
	return ExitCodePrecedence(e.ExitCode) - ExitCodePrecedence(other.ExitCode)
}

// And merges two exit statuses. The operand with the strictly more severe code wins.
// When the codes rank equally, the left description is kept unless the right one is set.
// A zero status carries no code and leaves the other operand unchanged.
func (e ExitStatus) And(other ExitStatus) ExitStatus {
	if other.IsZero() {
		return e
	}
	if e.IsZero() {
		return other
	}
	cmp := e.CompareTo(other)
	switch {
	case cmp < 0:
		return other
	case cmp > 0:
		return e
	default:
		if other.ExitDescription != "" {
			return ExitStatus{ExitCode: e.ExitCode, ExitDescription: other.ExitDescription}
		}
		return e
	}
}

// ReplaceExitCode returns a copy with a new code and the same description.
func (e ExitStatus) ReplaceExitCode(code string) ExitStatus {
	return ExitStatus{ExitCode: code, ExitDescription: e.ExitDescription}
}

// AddExitDescription returns a copy whose description has description appended.
func (e ExitStatus) AddExitDescription(description string) ExitStatus {
	description = strings.TrimSpace(description)
	if description == "" {
		return e
	}
	for _, existing := range strings.Split(e.ExitDescription, "; ") {
		if existing == description {
			return e
		}
	}
	if e.ExitDescription == "" {
		return ExitStatus{ExitCode: e.ExitCode, ExitDescription: description}
	}
	return ExitStatus{ExitCode: e.ExitCode, ExitDescription: e.ExitDescription + "; " + description}
}

// AddExitDescriptionFromError appends the message of err to the description.
func (e ExitStatus) AddExitDescriptionFromError(err error) ExitStatus {
	if err == nil {
		return e
	}
	return e.AddExitDescription(err.Error())
}

// IsRunning reports whether the code is EXECUTING or UNKNOWN.
func (e ExitStatus) IsRunning() bool {
	return e.ExitCode == ExitCodeExecuting || e.ExitCode == ExitCodeUnknown
}

// IsZero reports whether no code has been set.
func (e ExitStatus) IsZero() bool {
	return e.ExitCode == ""
}
