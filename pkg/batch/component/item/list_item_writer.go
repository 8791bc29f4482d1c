package item

import (
	"context"
	"sync"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
)

// ListItemWriter collects written chunks in memory. Chunks written during a
// transaction that later rolled back are collected too.
type ListItemWriter[T any] struct {
	mu     sync.Mutex
	chunks [][]T
}

var _ port.ItemWriter[any] = (*ListItemWriter[any])(nil)

func NewListItemWriter[T any]() *ListItemWriter[T] {
	return &ListItemWriter[T]{}
}

func (w *ListItemWriter[T]) Write(ctx context.Context, items []T) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chunks = append(w.chunks, append([]T(nil), items...))
	return nil
}

// Chunks returns the written chunks in order.
func (w *ListItemWriter[T]) Chunks() [][]T {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([][]T, len(w.chunks))
	copy(out, w.chunks)
	return out
}

// Items returns every written item in order.
func (w *ListItemWriter[T]) Items() []T {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []T
	for _, c := range w.chunks {
		out = append(out, c...)
	}
	return out
}
