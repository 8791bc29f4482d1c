package item

import (
	"context"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
)

// PassThroughItemProcessor returns every item unchanged.
type PassThroughItemProcessor[T any] struct{}

var _ port.ItemProcessor[any, any] = PassThroughItemProcessor[any]{}

// NewPassThroughItemProcessor creates a new instance of [PassThroughItemProcessor].
func NewPassThroughItemProcessor[T any]() PassThroughItemProcessor[T] {
	return PassThroughItemProcessor[T]{}
}

func (PassThroughItemProcessor[T]) Process(ctx context.Context, item T) (T, error) {
	return item, nil
}
