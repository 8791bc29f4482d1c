package listener

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
)

type recordingListener struct {
	name      string
	calls     *[]string
	beforeErr error
	exit      *model.ExitStatus
}

func (l *recordingListener) BeforeStep(ctx context.Context, se *model.StepExecution) error {
	*l.calls = append(*l.calls, l.name+".before")
	return l.beforeErr
}

func (l *recordingListener) AfterStep(ctx context.Context, se *model.StepExecution) (*model.ExitStatus, error) {
	*l.calls = append(*l.calls, l.name+".after")
	return l.exit, nil
}

type skipCounter struct{ skips int }

func (s *skipCounter) OnSkipInRead(ctx context.Context, err error)                      { s.skips++ }
func (s *skipCounter) OnSkipInProcess(ctx context.Context, item interface{}, err error) { s.skips++ }
func (s *skipCounter) OnSkipInWrite(ctx context.Context, item interface{}, err error)   { s.skips++ }

func TestRegistryInvokesInRegistrationOrder(t *testing.T) {
	var calls []string
	r := NewRegistry(
		&recordingListener{name: "a", calls: &calls},
		&recordingListener{name: "b", calls: &calls},
	)
	se := model.NewStepExecution(nil, "step")

	require.NoError(t, r.BeforeStep(context.Background(), se))
	r.AfterStep(context.Background(), se)

	assert.Equal(t, []string{"a.before", "b.before", "a.after", "b.after"}, calls)
}

func TestRegistryCombinesBeforeStepErrors(t *testing.T) {
	var calls []string
	r := NewRegistry(
		&recordingListener{name: "a", calls: &calls, beforeErr: errors.New("first")},
		&recordingListener{name: "b", calls: &calls, beforeErr: errors.New("second")},
	)

	err := r.BeforeStep(context.Background(), model.NewStepExecution(nil, "step"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "second")
	assert.Len(t, calls, 2, "every listener runs even after a failure")
}

func TestRegistryMergesAfterStepExitStatus(t *testing.T) {
	var calls []string
	noop := model.ExitStatusNoop
	failed := model.ExitStatusFailed
	r := NewRegistry(
		&recordingListener{name: "a", calls: &calls, exit: &noop},
		&recordingListener{name: "b", calls: &calls},
		&recordingListener{name: "c", calls: &calls, exit: &failed},
	)

	merged := r.AfterStep(context.Background(), model.NewStepExecution(nil, "step"))
	require.NotNil(t, merged)
	assert.Equal(t, model.ExitStatusFailed.ExitCode, merged.ExitCode)

	none := NewRegistry(&recordingListener{name: "x", calls: &calls})
	assert.Nil(t, none.AfterStep(context.Background(), model.NewStepExecution(nil, "step")))
}

func TestRegistrySortsByCapability(t *testing.T) {
	skips := &skipCounter{}
	r := NewRegistry(skips)
	assert.False(t, r.Register(struct{}{}))
	assert.False(t, r.HasItemListeners())

	r.OnSkipInRead(context.Background(), errors.New("bad"))
	r.OnSkipInWrite(context.Background(), 1, errors.New("bad"))
	assert.Equal(t, 2, skips.skips)

	combined := r.With(NewRegistry(&skipCounter{}))
	assert.Len(t, combined.skip, 2)
	assert.Len(t, r.skip, 1)
}

func TestNilRegistryIsEmpty(t *testing.T) {
	var r *Registry
	assert.NoError(t, r.BeforeJob(context.Background(), &model.JobExecution{}))
	assert.Nil(t, r.AfterStep(context.Background(), &model.StepExecution{}))
	assert.False(t, r.HasItemListeners())
	r.OnRetry(context.Background(), 2, nil, errors.New("x"))
	assert.NotNil(t, r.With(nil))
}
