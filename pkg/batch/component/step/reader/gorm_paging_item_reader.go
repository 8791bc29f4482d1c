// Package reader provides restartable item readers over external sources.
package reader

import (
	"context"
	"fmt"

	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/gorm"
	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// GormPagingItemReader reads rows of T page by page with OFFSET/LIMIT. The number of
// items handed out is saved in the step context, so a restart resumes after the last
// committed chunk. OrderBy must give a stable order for restarts to be exact.
type GormPagingItemReader[T any] struct {
	name     string
	dbName   string
	resolver database.DBConnectionResolver
	query    map[string]interface{}
	orderBy  string
	pageSize int

	conn     database.DBConnection
	page     []T
	pos      int
	offset   int64
	read     int64
	finished bool
}

var (
	_ port.ItemReader[any] = (*GormPagingItemReader[any])(nil)
	_ port.ItemStream      = (*GormPagingItemReader[any])(nil)
)

// NewGormPagingItemReader creates a reader over the datasource dbName. query holds
// AND-combined column conditions and may be nil.
func NewGormPagingItemReader[T any](name string, resolver database.DBConnectionResolver, dbName string, query map[string]interface{}, orderBy string, pageSize int) *GormPagingItemReader[T] {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &GormPagingItemReader[T]{
		name:     name,
		dbName:   dbName,
		resolver: resolver,
		query:    query,
		orderBy:  orderBy,
		pageSize: pageSize,
	}
}

func (r *GormPagingItemReader[T]) readCountKey() string {
	return r.name + ".read.count"
}

// Open resolves the connection and restores the read position.
func (r *GormPagingItemReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	conn, err := r.resolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("GormPagingItemReader '%s' failed to resolve datasource '%s'", r.name, r.dbName), err, false, false)
	}
	r.conn = conn
	r.page, r.pos, r.finished = nil, 0, false
	r.read = 0
	if n, ok := ec.GetInt64(r.readCountKey()); ok {
		r.read = n
		logger.Infof("GormPagingItemReader '%s': restarting after %d item(s).", r.name, n)
	}
	r.offset = r.read
	return nil
}

// Read returns the next row, fetching a new page when the current one is used up.
func (r *GormPagingItemReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if r.conn == nil {
		return zero, exception.NewFatalError("reader", fmt.Sprintf("GormPagingItemReader '%s' is not open", r.name), nil)
	}
	if r.pos >= len(r.page) {
		if r.finished {
			return zero, port.ErrNoMoreItems
		}
		if err := r.fetch(ctx); err != nil {
			return zero, err
		}
		if len(r.page) == 0 {
			return zero, port.ErrNoMoreItems
		}
	}
	item := r.page[r.pos]
	r.pos++
	r.read++
	return item, nil
}

func (r *GormPagingItemReader[T]) fetch(ctx context.Context) error {
	db, err := gormadapter.GormDBFrom(r.conn)
	if err != nil {
		return exception.NewFatalError("reader", fmt.Sprintf("GormPagingItemReader '%s'", r.name), err)
	}
	q := db.WithContext(ctx).Model(new(T))
	if r.query != nil {
		q = q.Where(r.query)
	}
	if r.orderBy != "" {
		q = q.Order(r.orderBy)
	}
	var page []T
	if err := q.Offset(int(r.offset)).Limit(r.pageSize).Find(&page).Error; err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("GormPagingItemReader '%s' failed to read page at offset %d", r.name, r.offset), err, false, true)
	}
	r.page, r.pos = page, 0
	r.offset += int64(len(page))
	r.finished = len(page) < r.pageSize
	logger.Debugf("GormPagingItemReader '%s': fetched %d row(s).", r.name, len(page))
	return nil
}

// Update saves the number of items handed out so far.
func (r *GormPagingItemReader[T]) Update(ctx context.Context, ec model.ExecutionContext) error {
	ec.Put(r.readCountKey(), r.read)
	return nil
}

// Close drops the buffered page. The connection belongs to its provider.
func (r *GormPagingItemReader[T]) Close(ctx context.Context) error {
	r.page, r.conn = nil, nil
	return nil
}
