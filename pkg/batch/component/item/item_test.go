package item_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/surfin-engine/pkg/batch/component/item"
	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
)

func TestListItemReaderResumesFromContext(t *testing.T) {
	ctx := context.Background()
	r := item.NewListItemReader([]string{"a", "b", "c"})
	ec := model.NewExecutionContext()
	require.NoError(t, r.Open(ctx, ec))

	v, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", v)
	require.NoError(t, r.Update(ctx, ec))
	n, ok := ec.GetInt64(item.DefaultReadCountKey)
	require.True(t, ok)
	assert.Equal(t, int64(1), n)

	resumed := item.NewListItemReader([]string{"a", "b", "c"})
	require.NoError(t, resumed.Open(ctx, ec))
	var rest []string
	for {
		v, err := resumed.Read(ctx)
		if err == port.ErrNoMoreItems {
			break
		}
		require.NoError(t, err)
		rest = append(rest, v)
	}
	assert.Equal(t, []string{"b", "c"}, rest)
	assert.NoError(t, resumed.Close(ctx))
}

func TestListItemReaderCustomKey(t *testing.T) {
	ctx := context.Background()
	r := item.NewListItemReader([]int{1, 2}).WithKey("ids.read")
	ec := model.NewExecutionContext()
	require.NoError(t, r.Open(ctx, ec))
	_, _ = r.Read(ctx)
	require.NoError(t, r.Update(ctx, ec))
	assert.True(t, ec.ContainsKey("ids.read"))
	assert.False(t, ec.ContainsKey(item.DefaultReadCountKey))
}

func TestPassThroughAndListWriter(t *testing.T) {
	ctx := context.Background()
	p := item.NewPassThroughItemProcessor[int]()
	v, err := p.Process(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	w := item.NewListItemWriter[int]()
	require.NoError(t, w.Write(ctx, []int{1, 2}))
	require.NoError(t, w.Write(ctx, []int{3}))
	assert.Equal(t, [][]int{{1, 2}, {3}}, w.Chunks())
	assert.Equal(t, []int{1, 2, 3}, w.Items())
}
