package gorm_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/gorm/sqlite"
	config "github.com/tigerroll/surfin-engine/pkg/batch/core/config"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/tx"
)

type widget struct {
	ID    int64  `gorm:"primaryKey"`
	Code  string `gorm:"uniqueIndex"`
	Count int
}

func (widget) TableName() string { return "widgets" }

func newTestConfig(t *testing.T) *config.Config {
	cfg := config.NewConfig()
	cfg.Surfin.Datasources = map[string]interface{}{
		"metadata": map[string]interface{}{
			"type":     "sqlite",
			"database": fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
			"pool":     map[string]interface{}{"max_open_conns": 1},
		},
		"warehouse": map[string]interface{}{"type": "postgres", "host": "localhost", "port": 5432},
	}
	return cfg
}

func openMetadata(t *testing.T) (database.DBProvider, database.DBConnection) {
	t.Helper()
	provider := sqlite.NewProvider(newTestConfig(t))
	conn, err := provider.GetConnection("metadata")
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.CloseAll() })

	db, err := gormadapter.GormDBFrom(conn)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&widget{}))
	return provider, conn
}

func TestProviderCachesConnections(t *testing.T) {
	provider, conn := openMetadata(t)
	again, err := provider.GetConnection("metadata")
	require.NoError(t, err)
	assert.Same(t, conn, again)
	assert.Equal(t, "sqlite", conn.Type())
	assert.Equal(t, "metadata", conn.Name())

	_, err = provider.GetConnection("warehouse")
	assert.ErrorContains(t, err, "provider type mismatch")
	_, err = provider.GetConnection("missing")
	assert.ErrorContains(t, err, "not found")
}

func TestExecutorOperations(t *testing.T) {
	_, conn := openMetadata(t)
	ctx := context.Background()

	n, err := conn.ExecuteUpdate(ctx, &[]widget{{Code: "a", Count: 1}, {Code: "b", Count: 2}}, tx.OperationCreate, "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = conn.ExecuteUpdate(ctx, &widget{Code: "a"}, tx.OperationCreate, "", nil)
	require.Error(t, err)
	assert.True(t, conn.IsDuplicateKeyError(err))

	n, err = conn.ExecuteUpsert(ctx, &widget{Code: "a", Count: 10}, "", []string{"code"}, []string{"count"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var found []widget
	require.NoError(t, conn.ExecuteQueryAdvanced(ctx, &found, nil, "code desc", 1))
	require.Len(t, found, 1)
	assert.Equal(t, "b", found[0].Code)

	found = nil
	require.NoError(t, conn.ExecuteQuery(ctx, &found, map[string]interface{}{"code": "a"}))
	require.Len(t, found, 1)
	assert.Equal(t, 10, found[0].Count)

	count, err := conn.Count(ctx, &widget{}, map[string]interface{}{"code": "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var codes []string
	require.NoError(t, conn.Pluck(ctx, &widget{}, "code", &codes, nil))
	assert.ElementsMatch(t, []string{"a", "b"}, codes)

	_, err = conn.ExecuteUpdate(ctx, &widget{}, "MERGE", "", nil)
	assert.Error(t, err)
}

func TestTransactionManagerCommitAndRollback(t *testing.T) {
	cfg := newTestConfig(t)
	provider := sqlite.NewProvider(cfg)
	t.Cleanup(func() { _ = provider.CloseAll() })
	resolver := gormadapter.NewGormDBConnectionResolver(gormadapter.ResolverParams{
		DBProviders: []database.DBProvider{provider},
		Cfg:         cfg,
	})
	conn, err := resolver.ResolveDBConnection(context.Background(), "metadata")
	require.NoError(t, err)
	db, err := gormadapter.GormDBFrom(conn)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&widget{}))

	tm := gormadapter.NewTransactionManagerFactory(resolver).NewTransactionManager("metadata")
	ctx := context.Background()

	err = tx.Execute(ctx, tm, func(ctx context.Context) error {
		t2, ok := tx.FromContext(ctx)
		require.True(t, ok)
		_, err := t2.ExecuteUpdate(ctx, &widget{Code: "kept"}, tx.OperationCreate, "", nil)
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = tx.Execute(ctx, tm, func(ctx context.Context) error {
		t2, _ := tx.FromContext(ctx)
		if _, err := t2.ExecuteUpdate(ctx, &widget{Code: "discarded"}, tx.OperationCreate, "", nil); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var codes []string
	require.NoError(t, conn.Pluck(ctx, &widget{}, "code", &codes, nil))
	assert.Equal(t, []string{"kept"}, codes)

	foreign, err := tx.NewResourcelessTransactionManager().Begin(ctx)
	require.NoError(t, err)
	assert.Error(t, tm.Commit(foreign), "foreign transaction types are rejected")
}

func TestIsDuplicateKeyError(t *testing.T) {
	assert.False(t, gormadapter.IsDuplicateKeyError(nil))
	assert.True(t, gormadapter.IsDuplicateKeyError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.False(t, gormadapter.IsDuplicateKeyError(&mysqldriver.MySQLError{Number: 1146}))
	assert.True(t, gormadapter.IsDuplicateKeyError(errors.New(`ERROR: duplicate key value violates unique constraint "x"`)))
	assert.False(t, gormadapter.IsDuplicateKeyError(errors.New("connection refused")))

	assert.True(t, gormadapter.IsTableNotExistError(errors.New("no such table: widgets")))
	assert.True(t, gormadapter.IsTableNotExistError(&mysqldriver.MySQLError{Number: 1146}))
}

func TestConnectionStrings(t *testing.T) {
	cfg := dbconfig.DatabaseConfig{Host: "db", Port: 3306, User: "u", Password: "p", Database: "batch"}
	assert.Contains(t, mysql.ConnectionString(cfg), "parseTime=true")
	assert.Contains(t, mysql.ConnectionString(cfg), "tcp(db:3306)/batch")
	assert.Contains(t, mysql.ConnectionString(cfg), "multiStatements=true")

	cfg.Port = 5432
	cfg.Schema = "meta"
	dsn := postgres.ConnectionString(cfg)
	assert.Contains(t, dsn, "sslmode=disable")
	assert.Contains(t, dsn, "search_path=meta")

	assert.Equal(t, "/tmp/x.db?_busy_timeout=5000&_txlock=immediate", sqlite.ConnectionString(dbconfig.DatabaseConfig{Database: "/tmp/x.db"}))
	assert.Equal(t, "file:x?mode=memory", sqlite.ConnectionString(dbconfig.DatabaseConfig{Database: "file:x?mode=memory"}))
}
