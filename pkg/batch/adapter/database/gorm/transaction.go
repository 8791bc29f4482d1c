package gorm

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/tx"
)

// GormTxAdapter implements tx.Tx over a gorm transaction.
type GormTxAdapter struct {
	executor
}

// Savepoint implements tx.Tx.
func (t *GormTxAdapter) Savepoint(name string) error {
	return t.db.SavePoint(name).Error
}

// RollbackToSavepoint implements tx.Tx.
func (t *GormTxAdapter) RollbackToSavepoint(name string) error {
	return t.db.RollbackTo(name).Error
}

// GormDB returns the transaction handle so that repositories and writers can issue
// statements that the generic executor does not cover.
func (t *GormTxAdapter) GormDB() *gorm.DB {
	return t.db
}

// GormTransactionManager implements tx.TransactionManager. The connection is resolved
// on every Begin so that a reconnect performed by the resolver is picked up.
type GormTransactionManager struct {
	dbResolver database.DBConnectionResolver
	dbName     string
}

var _ tx.TransactionManager = (*GormTransactionManager)(nil)

// NewGormTransactionManager creates a transaction manager for the connection called dbName.
func NewGormTransactionManager(dbResolver database.DBConnectionResolver, dbName string) *GormTransactionManager {
	return &GormTransactionManager{dbResolver: dbResolver, dbName: dbName}
}

func (m *GormTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	conn, err := m.dbResolver.ResolveDBConnection(ctx, m.dbName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve DB connection '%s' for transaction: %w", m.dbName, err)
	}
	gormDB, err := GormDBFrom(conn)
	if err != nil {
		return nil, err
	}

	var txOpts *sql.TxOptions
	if len(opts) > 0 {
		txOpts = opts[0]
	}
	gormTx := gormDB.WithContext(ctx).Begin(txOpts)
	if gormTx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", gormTx.Error)
	}
	return &GormTxAdapter{executor: executor{db: gormTx}}, nil
}

func (m *GormTransactionManager) Commit(t tx.Tx) error {
	gt, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTxAdapter, got %T", t)
	}
	return gt.db.Commit().Error
}

func (m *GormTransactionManager) Rollback(t tx.Tx) error {
	gt, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTxAdapter, got %T", t)
	}
	return gt.db.Rollback().Error
}

// TransactionManagerFactory creates transaction managers bound to a named connection.
type TransactionManagerFactory struct {
	dbResolver database.DBConnectionResolver
}

// NewTransactionManagerFactory creates a TransactionManagerFactory.
func NewTransactionManagerFactory(dbResolver database.DBConnectionResolver) *TransactionManagerFactory {
	return &TransactionManagerFactory{dbResolver: dbResolver}
}

// NewTransactionManager returns a transaction manager for the connection called dbName.
func (f *TransactionManagerFactory) NewTransactionManager(dbName string) tx.TransactionManager {
	return NewGormTransactionManager(f.dbResolver, dbName)
}
