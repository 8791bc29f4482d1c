package reader_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/surfin-engine/pkg/batch/component/step/reader"
	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	config "github.com/tigerroll/surfin-engine/pkg/batch/core/config"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/tx"
)

type order struct {
	ID     int64 `gorm:"primaryKey"`
	Region string
}

func (order) TableName() string { return "orders" }

func newResolver(t *testing.T) database.DBConnectionResolver {
	cfg := config.NewConfig()
	cfg.Surfin.Datasources = map[string]interface{}{
		"source": map[string]interface{}{
			"type":     "sqlite",
			"database": fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
			"pool":     map[string]interface{}{"max_open_conns": 1},
		},
	}
	provider := sqlite.NewProvider(cfg)
	t.Cleanup(func() { _ = provider.CloseAll() })
	resolver := gormadapter.NewGormDBConnectionResolver(gormadapter.ResolverParams{
		DBProviders: []database.DBProvider{provider},
		Cfg:         cfg,
	})

	conn, err := resolver.ResolveDBConnection(context.Background(), "source")
	require.NoError(t, err)
	db, err := gormadapter.GormDBFrom(conn)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&order{}))
	rows := make([]order, 0, 7)
	for i := int64(1); i <= 7; i++ {
		region := "east"
		if i%2 == 0 {
			region = "west"
		}
		rows = append(rows, order{ID: i, Region: region})
	}
	_, err = conn.ExecuteUpdate(context.Background(), &rows, tx.OperationCreate, "", nil)
	require.NoError(t, err)
	return resolver
}

func readIDs(t *testing.T, r port.ItemReader[order], n int) []int64 {
	var ids []int64
	for i := 0; i < n; i++ {
		item, err := r.Read(context.Background())
		if err == port.ErrNoMoreItems {
			break
		}
		require.NoError(t, err)
		ids = append(ids, item.ID)
	}
	return ids
}

func TestGormPagingItemReaderReadsAllPages(t *testing.T) {
	ctx := context.Background()
	resolver := newResolver(t)
	r := reader.NewGormPagingItemReader[order]("orders", resolver, "source", nil, "id", 3)
	require.NoError(t, r.Open(ctx, model.NewExecutionContext()))
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7}, readIDs(t, r, 10))
	_, err := r.Read(ctx)
	assert.ErrorIs(t, err, port.ErrNoMoreItems)
	require.NoError(t, r.Close(ctx))
}

func TestGormPagingItemReaderFiltersAndRestarts(t *testing.T) {
	ctx := context.Background()
	resolver := newResolver(t)
	ec := model.NewExecutionContext()

	first := reader.NewGormPagingItemReader[order]("east", resolver, "source", map[string]interface{}{"region": "east"}, "id", 2)
	require.NoError(t, first.Open(ctx, ec))
	assert.Equal(t, []int64{1, 3}, readIDs(t, first, 2))
	require.NoError(t, first.Update(ctx, ec))
	require.NoError(t, first.Close(ctx))

	count, ok := ec.GetInt64("east.read.count")
	require.True(t, ok)
	assert.Equal(t, int64(2), count)

	second := reader.NewGormPagingItemReader[order]("east", resolver, "source", map[string]interface{}{"region": "east"}, "id", 2)
	require.NoError(t, second.Open(ctx, ec))
	assert.Equal(t, []int64{5, 7}, readIDs(t, second, 10))
}

func TestGormPagingItemReaderErrors(t *testing.T) {
	ctx := context.Background()
	resolver := newResolver(t)
	r := reader.NewGormPagingItemReader[order]("orders", resolver, "source", nil, "id", 0)
	_, err := r.Read(ctx)
	assert.Error(t, err, "read before open")

	missing := reader.NewGormPagingItemReader[order]("orders", resolver, "nowhere", nil, "id", 10)
	assert.Error(t, missing.Open(ctx, model.NewExecutionContext()))
}
