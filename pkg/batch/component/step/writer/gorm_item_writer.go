package writer

import (
	"context"
	"fmt"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// GormItemWriter inserts or upserts chunks through the chunk transaction. The step must
// run with a database transaction manager; the table comes from T unless TableName is set.
type GormItemWriter[T any] struct {
	name            string
	tableName       string
	bulkSize        int
	conflictColumns []string
	updateColumns   []string
}

var _ port.ItemWriter[any] = (*GormItemWriter[any])(nil)

// GormItemWriterOption configures a GormItemWriter.
type GormItemWriterOption func(*gormItemWriterOptions)

type gormItemWriterOptions struct {
	tableName       string
	bulkSize        int
	conflictColumns []string
	updateColumns   []string
}

// WithTableName overrides the table derived from the item type.
func WithTableName(name string) GormItemWriterOption {
	return func(o *gormItemWriterOptions) { o.tableName = name }
}

// WithBulkSize limits the rows per statement. The default is 1000.
func WithBulkSize(n int) GormItemWriterOption {
	return func(o *gormItemWriterOptions) { o.bulkSize = n }
}

// WithUpsert turns inserts into upserts on conflictColumns. Conflicting rows get
// updateColumns from the item, or are left as they are when updateColumns is empty.
func WithUpsert(conflictColumns []string, updateColumns ...string) GormItemWriterOption {
	return func(o *gormItemWriterOptions) {
		o.conflictColumns = conflictColumns
		o.updateColumns = updateColumns
	}
}

// NewGormItemWriter creates a GormItemWriter.
func NewGormItemWriter[T any](name string, opts ...GormItemWriterOption) *GormItemWriter[T] {
	o := gormItemWriterOptions{bulkSize: 1000}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bulkSize <= 0 {
		o.bulkSize = 1000
	}
	return &GormItemWriter[T]{
		name:            name,
		tableName:       o.tableName,
		bulkSize:        o.bulkSize,
		conflictColumns: o.conflictColumns,
		updateColumns:   o.updateColumns,
	}
}

// Write persists items in slices of the bulk size.
func (w *GormItemWriter[T]) Write(ctx context.Context, items []T) error {
	if len(items) == 0 {
		return nil
	}
	t, ok := tx.FromContext(ctx)
	if !ok {
		return exception.NewFatalError("writer", fmt.Sprintf("GormItemWriter '%s' requires a chunk transaction", w.name), nil)
	}

	var written int64
	for start := 0; start < len(items); start += w.bulkSize {
		end := start + w.bulkSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		var n int64
		var err error
		if len(w.conflictColumns) > 0 {
			n, err = t.ExecuteUpsert(ctx, &batch, w.tableName, w.conflictColumns, w.updateColumns)
		} else {
			n, err = t.ExecuteUpdate(ctx, &batch, tx.OperationCreate, w.tableName, nil)
		}
		if err != nil {
			return exception.NewBatchError("writer", fmt.Sprintf("GormItemWriter '%s' failed to write items %d-%d", w.name, start, end-1), err, false, true)
		}
		written += n
	}
	logger.Debugf("GormItemWriter '%s': wrote %d item(s), %d row(s) affected.", w.name, len(items), written)
	return nil
}
