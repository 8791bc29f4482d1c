package writer_test

import (
	"context"
	"fmt"
	"io"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/buffer"
	pqreader "github.com/xitongsys/parquet-go/reader"

	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/gorm/sqlite"
	storage "github.com/tigerroll/surfin-engine/pkg/batch/adapter/storage"
	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/surfin-engine/pkg/batch/component/step/writer"
	config "github.com/tigerroll/surfin-engine/pkg/batch/core/config"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/tx"
)

type reading struct {
	Station string  `parquet:"name=station, type=BYTE_ARRAY, convertedtype=UTF8" gorm:"primaryKey"`
	Day     string  `parquet:"name=day, type=BYTE_ARRAY, convertedtype=UTF8" gorm:"primaryKey"`
	Value   float64 `parquet:"name=value, type=DOUBLE"`
}

func (reading) TableName() string { return "readings" }

func newStorage(t *testing.T) (*config.Config, storage.StorageConnectionResolver) {
	cfg := config.NewConfig()
	cfg.Surfin.Storage = map[string]interface{}{
		"exports": map[string]interface{}{"type": "local", "base_dir": t.TempDir()},
	}
	resolver := storage.NewResolver(storage.ResolverParams{Providers: []storage.StorageProvider{local.NewProvider(cfg)}, Cfg: cfg})
	return cfg, resolver
}

func listObjects(t *testing.T, conn storage.StorageConnection, prefix string) []string {
	var names []string
	require.NoError(t, conn.ListObjects(context.Background(), "", prefix, func(name string) error {
		names = append(names, name)
		return nil
	}))
	sort.Strings(names)
	return names
}

func readParquet(t *testing.T, conn storage.StorageConnection, name string) []reading {
	r, err := conn.Download(context.Background(), "", name)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "PAR1", string(data[:4]))

	pf, err := buffer.NewBufferFile(data)
	require.NoError(t, err)
	pr, err := pqreader.NewParquetReader(pf, new(reading), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	rows := make([]reading, pr.GetNumRows())
	require.NoError(t, pr.Read(&rows))
	return rows
}

func TestParquetItemWriterWritesPartitionedParts(t *testing.T) {
	ctx := context.Background()
	_, resolver := newStorage(t)
	w, err := writer.NewParquetItemWriter[reading]("hourly", map[string]interface{}{
		"storage_ref":      "exports",
		"output_base_dir":  "weather",
		"compression_type": "gzip",
	}, resolver, func(r reading) (string, error) { return "dt=" + r.Day, nil })
	require.NoError(t, err)

	ec := model.NewExecutionContext()
	require.NoError(t, w.Open(ctx, ec))
	require.NoError(t, w.Write(ctx, []reading{
		{Station: "a", Day: "2024-01-01", Value: 1.5},
		{Station: "b", Day: "2024-01-02", Value: 2.5},
		{Station: "c", Day: "2024-01-01", Value: 3.5},
	}))
	require.NoError(t, w.Write(ctx, nil))
	require.NoError(t, w.Update(ctx, ec))
	require.NoError(t, w.Close(ctx))

	part, ok := ec.GetInt64("hourly.part.count")
	require.True(t, ok)
	assert.Equal(t, int64(1), part)

	conn, err := resolver.ResolveStorageConnection(ctx, "exports")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"weather/dt=2024-01-01/hourly-part-00000.parquet",
		"weather/dt=2024-01-02/hourly-part-00000.parquet",
	}, listObjects(t, conn, "weather/"))

	rows := readParquet(t, conn, "weather/dt=2024-01-01/hourly-part-00000.parquet")
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].Station)
	assert.Equal(t, 3.5, rows[1].Value)

	// A restarted step continues the part numbering.
	again, err := writer.NewParquetItemWriter[reading]("hourly", map[string]interface{}{
		"storage_ref":     "exports",
		"output_base_dir": "weather",
	}, resolver, nil)
	require.NoError(t, err)
	require.NoError(t, again.Open(ctx, ec))
	require.NoError(t, again.Write(ctx, []reading{{Station: "d", Day: "2024-01-03", Value: 4}}))
	assert.Contains(t, listObjects(t, conn, "weather/"), "weather/hourly-part-00001.parquet")
}

func TestParquetItemWriterConfiguration(t *testing.T) {
	_, resolver := newStorage(t)
	_, err := writer.NewParquetItemWriter[reading]("w", map[string]interface{}{"output_base_dir": "x"}, resolver, nil)
	assert.ErrorContains(t, err, "storage_ref")
	_, err = writer.NewParquetItemWriter[reading]("w", map[string]interface{}{"storage_ref": "exports"}, resolver, nil)
	assert.ErrorContains(t, err, "output_base_dir")
	_, err = writer.NewParquetItemWriter[reading]("w", map[string]interface{}{"storage_ref": "exports", "output_base_dir": "x", "compression_type": "LZ4"}, resolver, nil)
	assert.Error(t, err)

	w, err := writer.NewParquetItemWriter[reading]("w", map[string]interface{}{"storage_ref": "exports", "output_base_dir": "x"}, resolver, nil)
	require.NoError(t, err)
	assert.Error(t, w.Write(context.Background(), []reading{{Station: "a"}}), "write before open")

	missing, err := writer.NewParquetItemWriter[reading]("w", map[string]interface{}{"storage_ref": "nowhere", "output_base_dir": "x"}, resolver, nil)
	require.NoError(t, err)
	assert.Error(t, missing.Open(context.Background(), model.NewExecutionContext()))
}

func newWarehouse(t *testing.T) (database.DBConnection, tx.TransactionManager) {
	cfg := config.NewConfig()
	cfg.Surfin.Datasources = map[string]interface{}{
		"warehouse": map[string]interface{}{
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
	conn, err := resolver.ResolveDBConnection(context.Background(), "warehouse")
	require.NoError(t, err)
	db, err := gormadapter.GormDBFrom(conn)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&reading{}))
	return conn, gormadapter.NewTransactionManagerFactory(resolver).NewTransactionManager("warehouse")
}

func TestGormItemWriterUpsertsInBulk(t *testing.T) {
	ctx := context.Background()
	conn, tm := newWarehouse(t)
	w := writer.NewGormItemWriter[reading]("load", writer.WithBulkSize(2), writer.WithUpsert([]string{"station", "day"}, "value"))

	require.NoError(t, tx.Execute(ctx, tm, func(ctx context.Context) error {
		return w.Write(ctx, []reading{
			{Station: "a", Day: "d1", Value: 1},
			{Station: "b", Day: "d1", Value: 2},
			{Station: "c", Day: "d1", Value: 3},
		})
	}))
	require.NoError(t, tx.Execute(ctx, tm, func(ctx context.Context) error {
		return w.Write(ctx, []reading{{Station: "a", Day: "d1", Value: 10}})
	}))

	var rows []reading
	require.NoError(t, conn.ExecuteQueryAdvanced(ctx, &rows, nil, "station", 0))
	require.Len(t, rows, 3)
	assert.Equal(t, 10.0, rows[0].Value)
	assert.Equal(t, 3.0, rows[2].Value)
}

func TestGormItemWriterRequiresTransaction(t *testing.T) {
	ctx := context.Background()
	w := writer.NewGormItemWriter[reading]("load")
	assert.Error(t, w.Write(ctx, []reading{{Station: "a"}}))
	assert.NoError(t, w.Write(ctx, nil))

	err := tx.Execute(ctx, tx.NewResourcelessTransactionManager(), func(ctx context.Context) error {
		return w.Write(ctx, []reading{{Station: "a"}})
	})
	assert.ErrorIs(t, err, tx.ErrNoResource)
}
