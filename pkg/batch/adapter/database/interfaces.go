// Package database defines the database connection contracts implemented by the gorm adapter.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/config"
	coreAdapter "github.com/tigerroll/surfin-engine/pkg/batch/core/adapter"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/tx"
)

// DBExecutor groups the read and write operations available on a connection.
type DBExecutor interface {
	tx.TxExecutor

	// ExecuteQuery runs a SELECT with query as AND-combined column conditions.
	ExecuteQuery(ctx context.Context, target interface{}, query map[string]interface{}) error

	// ExecuteQueryAdvanced is ExecuteQuery with ordering and a row limit.
	ExecuteQueryAdvanced(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string, limit int) error

	// Count counts the rows matching query.
	Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error)

	// Pluck reads the distinct values of column into target.
	Pluck(ctx context.Context, model interface{}, column string, target interface{}, query map[string]interface{}) error
}

// DBConnection is a named, pooled database connection.
type DBConnection interface {
	coreAdapter.ResourceConnection
	DBExecutor

	// IsTableNotExistError reports whether err was caused by a missing table.
	IsTableNotExistError(err error) bool
	// IsDuplicateKeyError reports whether err was caused by a unique constraint violation.
	IsDuplicateKeyError(err error) bool
	// RefreshConnection pings the pool.
	RefreshConnection(ctx context.Context) error
	// Config returns the configuration the connection was opened with.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB.
	GetSQLDB() (*sql.DB, error)
}

// DBConnectionResolver resolves database connections by name.
type DBConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver

	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProvider opens database connections of one dialect.
type DBProvider interface {
	coreAdapter.ResourceProvider

	// GetConnection returns the cached connection for name, opening it on first use.
	GetConnection(name string) (DBConnection, error)
	// ForceReconnect closes and reopens the connection for name.
	ForceReconnect(name string) (DBConnection, error)
}

// DBProviderGroup is the fx value group collecting every DBProvider.
const DBProviderGroup = "db_providers"
