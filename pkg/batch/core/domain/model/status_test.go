package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
)

var allStatuses = []model.BatchStatus{
	model.BatchStatusCompleted,
	model.BatchStatusStarting,
	model.BatchStatusStarted,
	model.BatchStatusStopping,
	model.BatchStatusStopped,
	model.BatchStatusFailed,
	model.BatchStatusAbandoned,
	model.BatchStatusUnknown,
}

func TestBatchStatusOrdering(t *testing.T) {
	for i := 1; i < len(allStatuses); i++ {
		assert.True(t, allStatuses[i].IsGreaterThan(allStatuses[i-1]), "%s > %s", allStatuses[i], allStatuses[i-1])
		assert.True(t, allStatuses[i-1].IsLessThan(allStatuses[i]))
		assert.True(t, allStatuses[i-1].IsLessThanOrEqualTo(allStatuses[i-1]))
	}
}

func TestUpgradeToIsCommutative(t *testing.T) {
	for _, a := range allStatuses {
		for _, b := range allStatuses {
			assert.Equal(t, a.UpgradeTo(b), b.UpgradeTo(a), "%s/%s", a, b)
		}
	}
}

func TestUpgradeTo(t *testing.T) {
	cases := []struct {
		a, b, expected model.BatchStatus
	}{
		{model.BatchStatusCompleted, model.BatchStatusStarted, model.BatchStatusCompleted},
		{model.BatchStatusCompleted, model.BatchStatusStarting, model.BatchStatusCompleted},
		{model.BatchStatusFailed, model.BatchStatusStarted, model.BatchStatusFailed},
		{model.BatchStatusStarting, model.BatchStatusStarted, model.BatchStatusStarted},
		{model.BatchStatusCompleted, model.BatchStatusStopped, model.BatchStatusStopped},
		{model.BatchStatusAbandoned, model.BatchStatusFailed, model.BatchStatusAbandoned},
		{model.BatchStatusCompleted, model.BatchStatusCompleted, model.BatchStatusCompleted},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, tc.a.UpgradeTo(tc.b), "%s.UpgradeTo(%s)", tc.a, tc.b)
	}
}

func TestMaxStatusPoisonsAggregate(t *testing.T) {
	agg := model.BatchStatusCompleted
	for _, s := range []model.BatchStatus{model.BatchStatusCompleted, model.BatchStatusStopped, model.BatchStatusCompleted} {
		agg = model.MaxStatus(agg, s)
	}
	assert.Equal(t, model.BatchStatusStopped, agg)
}

func TestIsUnsuccessful(t *testing.T) {
	unsuccessful := map[model.BatchStatus]bool{
		model.BatchStatusFailed:    true,
		model.BatchStatusAbandoned: true,
		model.BatchStatusUnknown:   true,
	}
	for _, s := range allStatuses {
		assert.Equal(t, unsuccessful[s], s.IsUnsuccessful(), string(s))
	}
}

func TestBatchStatusPredicates(t *testing.T) {
	assert.True(t, model.BatchStatusStarting.IsRunning())
	assert.True(t, model.BatchStatusStarted.IsRunning())
	assert.False(t, model.BatchStatusStopping.IsRunning())
	assert.True(t, model.BatchStatusStopped.IsFinished())
	assert.False(t, model.BatchStatusUnknown.IsFinished())
}

func TestMatchBatchStatus(t *testing.T) {
	assert.Equal(t, model.BatchStatusFailed, model.MatchBatchStatus("FAILED"))
	assert.Equal(t, model.BatchStatusStopped, model.MatchBatchStatus("stopped_by_operator"))
	assert.Equal(t, model.BatchStatusCompleted, model.MatchBatchStatus("whatever"))
}

func TestToExitStatus(t *testing.T) {
	assert.Equal(t, model.ExitStatusCompleted, model.BatchStatusCompleted.ToExitStatus())
	assert.Equal(t, model.ExitStatusFailed, model.BatchStatusFailed.ToExitStatus())
	assert.Equal(t, model.ExitStatusExecuting, model.BatchStatusStarted.ToExitStatus())
	assert.Equal(t, model.ExitStatusUnknown, model.BatchStatusUnknown.ToExitStatus())
}
