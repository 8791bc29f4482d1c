// Package sql provides a JobRepository backed by a relational database through gorm.
// The schema is created by the migrations sub-package.
package sql

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/gorm"
	repository "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
)

const module = "sql_repository"

// SQLJobRepository implements repository.JobRepository.
//
// It never joins a chunk transaction found in the context: metadata is written on its own
// connection so that a rolled back chunk cannot roll back the bookkeeping of the step.
type SQLJobRepository struct {
	dbResolver database.DBConnectionResolver
	// dbName is the datasource holding the batch tables (e.g. "metadata").
	dbName string
}

var _ repository.JobRepository = (*SQLJobRepository)(nil)

// NewSQLJobRepository creates a repository on the datasource called dbName.
func NewSQLJobRepository(dbResolver database.DBConnectionResolver, dbName string) *SQLJobRepository {
	return &SQLJobRepository{dbResolver: dbResolver, dbName: dbName}
}

// Close is a no-op; connections belong to their provider.
func (r *SQLJobRepository) Close() error {
	return nil
}

// getDBConnection resolves the metadata connection.
func (r *SQLJobRepository) getDBConnection(ctx context.Context) (database.DBConnection, error) {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("failed to resolve DB connection '%s'", r.dbName), err, false, false)
	}
	return conn, nil
}

// gormDB resolves the metadata connection as a *gorm.DB bound to ctx.
func (r *SQLJobRepository) gormDB(ctx context.Context) (*gorm.DB, database.DBConnection, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, nil, err
	}
	db, err := gormadapter.GormDBFrom(conn)
	if err != nil {
		return nil, nil, exception.NewBatchError(module, "metadata connection is not usable", err, false, false)
	}
	return db.WithContext(ctx), conn, nil
}

// dbError wraps a database failure, pointing at the migrations when a table is missing.
func dbError(conn database.DBConnection, op string, err error) error {
	if conn != nil && conn.IsTableNotExistError(err) {
		return exception.NewBatchError(module, op+": batch tables are missing, run the schema migrations first", err, false, false)
	}
	return exception.NewBatchError(module, op, err, false, true)
}
