package tx

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
)

// ErrNoResource is returned by a resourceless transaction for any data operation.
var ErrNoResource = errors.New("resourceless transaction has no backing store")

// ResourcelessTransactionManager demarcates chunk boundaries without a database.
// It is used with the in-memory repository and with writers that manage their own resources.
type ResourcelessTransactionManager struct {
	commits   atomic.Int64
	rollbacks atomic.Int64
}

// NewResourcelessTransactionManager creates a ResourcelessTransactionManager.
func NewResourcelessTransactionManager() *ResourcelessTransactionManager {
	return &ResourcelessTransactionManager{}
}

// Begin starts a no-op transaction.
func (m *ResourcelessTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error) {
	return &resourcelessTx{}, nil
}

// Commit marks the transaction committed.
func (m *ResourcelessTransactionManager) Commit(t Tx) error {
	rt, ok := t.(*resourcelessTx)
	if !ok {
		return errors.New("invalid transaction type: expected resourceless transaction")
	}
	if !rt.done.CompareAndSwap(false, true) {
		return errors.New("transaction already completed")
	}
	m.commits.Add(1)
	return nil
}

// Rollback marks the transaction rolled back.
func (m *ResourcelessTransactionManager) Rollback(t Tx) error {
	rt, ok := t.(*resourcelessTx)
	if !ok {
		return errors.New("invalid transaction type: expected resourceless transaction")
	}
	if !rt.done.CompareAndSwap(false, true) {
		return errors.New("transaction already completed")
	}
	m.rollbacks.Add(1)
	return nil
}

// Commits returns how many transactions were committed.
func (m *ResourcelessTransactionManager) Commits() int64 { return m.commits.Load() }

// Rollbacks returns how many transactions were rolled back.
func (m *ResourcelessTransactionManager) Rollbacks() int64 { return m.rollbacks.Load() }

type resourcelessTx struct {
	done atomic.Bool
}

func (t *resourcelessTx) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	return 0, ErrNoResource
}

func (t *resourcelessTx) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	return 0, ErrNoResource
}

func (t *resourcelessTx) Savepoint(name string) error           { return nil }
func (t *resourcelessTx) RollbackToSavepoint(name string) error { return nil }
