// Package item provides in-memory item readers, processors and writers.
package item

import (
	"context"
	"sync"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// DefaultReadCountKey is the step context key holding the number of items already read.
const DefaultReadCountKey = "read.count"

// ListItemReader reads the items of a slice in order. It is restartable: the position is
// saved in the step context under its key and restored by Open.
type ListItemReader[T any] struct {
	mu    sync.Mutex
	items []T
	pos   int
	key   string
}

var (
	_ port.ItemReader[any] = (*ListItemReader[any])(nil)
	_ port.ItemStream      = (*ListItemReader[any])(nil)
)

// NewListItemReader creates a reader over a copy of items.
func NewListItemReader[T any](items []T) *ListItemReader[T] {
	return &ListItemReader[T]{items: append([]T(nil), items...), key: DefaultReadCountKey}
}

// WithKey changes the step context key, for steps with more than one list reader.
func (r *ListItemReader[T]) WithKey(key string) *ListItemReader[T] {
	r.key = key
	return r
}

// Read returns the next item or port.ErrNoMoreItems.
func (r *ListItemReader[T]) Read(ctx context.Context) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	if r.pos >= len(r.items) {
		return zero, port.ErrNoMoreItems
	}
	item := r.items[r.pos]
	r.pos++
	return item, nil
}

func (r *ListItemReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pos = 0
	if n, ok := ec.GetInt64(r.key); ok && n > 0 {
		r.pos = int(n)
		logger.Debugf("ListItemReader: resuming after %d item(s).", n)
	}
	return nil
}

func (r *ListItemReader[T]) Update(ctx context.Context, ec model.ExecutionContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ec.Put(r.key, int64(r.pos))
	return nil
}

func (r *ListItemReader[T]) Close(ctx context.Context) error { return nil }
