package tx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteCommitsOnSuccess(t *testing.T) {
	tm := NewResourcelessTransactionManager()
	var seen Tx
	err := Execute(context.Background(), tm, func(ctx context.Context) error {
		var ok bool
		seen, ok = FromContext(ctx)
		require.True(t, ok)
		return nil
	})
	require.NoError(t, err)
	assert.NotNil(t, seen)
	assert.Equal(t, int64(1), tm.Commits())
	assert.Equal(t, int64(0), tm.Rollbacks())
	assert.Error(t, tm.Commit(seen), "a finished transaction cannot be committed twice")
}

func TestExecuteRollsBackOnError(t *testing.T) {
	tm := NewResourcelessTransactionManager()
	boom := errors.New("boom")
	err := Execute(context.Background(), tm, func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), tm.Rollbacks())
}

func TestExecuteRollsBackOnPanic(t *testing.T) {
	tm := NewResourcelessTransactionManager()
	assert.Panics(t, func() {
		_ = Execute(context.Background(), tm, func(ctx context.Context) error { panic("bad") })
	})
	assert.Equal(t, int64(1), tm.Rollbacks())
}

func TestFromContextWithoutTx(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	rt, _ := NewResourcelessTransactionManager().Begin(context.Background())
	_, err := rt.ExecuteUpdate(context.Background(), struct{}{}, OperationCreate, "t", nil)
	assert.ErrorIs(t, err, ErrNoResource)
}
