package migration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/gorm/sqlite"
	config "github.com/tigerroll/surfin-engine/pkg/batch/core/config"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/infrastructure/repository/sql/migrations"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Surfin.Datasources = map[string]interface{}{
		"metadata": map[string]interface{}{
			"type":     "sqlite",
			"database": filepath.Join(t.TempDir(), "batch.db"),
			"pool":     map[string]interface{}{"max_open_conns": 1},
		},
	}
	cfg.Surfin.Infrastructure.JobRepository = config.JobRepositoryConfig{
		Type:        config.RepositoryTypeSQL,
		DBRef:       "metadata",
		AutoMigrate: true,
	}
	return cfg
}

func hasTable(t *testing.T, provider database.DBProvider, table string) bool {
	t.Helper()
	conn, err := provider.GetConnection("metadata")
	require.NoError(t, err)
	db, err := gormadapter.GormDBFrom(conn)
	require.NoError(t, err)
	return db.Migrator().HasTable(table)
}

func TestMigrateFrameworkCreatesTables(t *testing.T) {
	cfg := sqliteConfig(t)
	provider := sqlite.NewProvider(cfg)
	t.Cleanup(func() { _ = provider.CloseAll() })

	require.NoError(t, MigrateFramework(context.Background(), cfg, []database.DBProvider{provider}))
	assert.True(t, hasTable(t, provider, "batch_job_instance"))
	assert.True(t, hasTable(t, provider, "batch_step_execution"))

	// A second run finds nothing to apply.
	require.NoError(t, MigrateFramework(context.Background(), cfg, []database.DBProvider{provider}))

	conn, err := provider.GetConnection("metadata")
	require.NoError(t, err)
	version, dirty, err := NewMigrator(conn).Version(context.Background(), Source{FS: migrations.FS, Table: migrations.Table, Path: "sqlite"})
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestMigrateFrameworkWithoutProvider(t *testing.T) {
	cfg := sqliteConfig(t)
	assert.Error(t, MigrateFramework(context.Background(), cfg, nil))
}

func TestMigrationTaskletUpAndDown(t *testing.T) {
	cfg := sqliteConfig(t)
	provider := sqlite.NewProvider(cfg)
	t.Cleanup(func() { _ = provider.CloseAll() })
	providers := []database.DBProvider{provider}

	up, err := NewMigrationTasklet(cfg, providers, migrations.FS, map[string]interface{}{
		"db_ref": "metadata",
		"table":  migrations.Table,
	})
	require.NoError(t, err)
	se := model.NewStepExecution(nil, "migrate")
	status, err := up.Execute(context.Background(), &model.StepContribution{}, se)
	require.NoError(t, err)
	assert.False(t, status.IsContinuable())
	version, ok := se.ExecutionContext.GetInt64(VersionKey)
	require.True(t, ok)
	assert.Equal(t, int64(1), version)
	assert.True(t, hasTable(t, provider, "batch_job_execution"))

	down, err := NewMigrationTasklet(cfg, providers, migrations.FS, map[string]interface{}{
		"db_ref":  "metadata",
		"command": "DOWN",
		"table":   migrations.Table,
	})
	require.NoError(t, err)
	_, err = down.Execute(context.Background(), &model.StepContribution{}, model.NewStepExecution(nil, "migrate"))
	require.NoError(t, err)
	assert.False(t, hasTable(t, provider, "batch_job_execution"))
}

func TestNewMigrationTaskletValidatesProperties(t *testing.T) {
	cfg := sqliteConfig(t)
	_, err := NewMigrationTasklet(cfg, nil, migrations.FS, map[string]interface{}{})
	assert.Error(t, err)

	_, err = NewMigrationTasklet(cfg, nil, migrations.FS, map[string]interface{}{"db_ref": "metadata", "command": "sideways"})
	assert.Error(t, err)
}
