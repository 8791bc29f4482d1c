package migration

import (
	"context"
	"io/fs"
	"strings"

	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/config"
	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	config "github.com/tigerroll/surfin-engine/pkg/batch/core/config"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

const taskletName = "migration_tasklet"

// VersionKey is the step execution context key holding the schema version after an "up".
const VersionKey = "migration.version"

// TaskletProperties configures a MigrationTasklet.
type TaskletProperties struct {
	// DBRef is the datasource to migrate.
	DBRef string `yaml:"db_ref"`
	// Dir is the directory inside the migration FS. Empty means the database type.
	Dir string `yaml:"dir"`
	// Command is "up" (default) or "down".
	Command string `yaml:"command"`
	// Table is the golang-migrate history table.
	Table string `yaml:"table"`
}

// MigrationTasklet migrates a datasource in a single iteration and then reopens the
// connection, because golang-migrate closes the database it ran on.
type MigrationTasklet struct {
	cfg        *config.Config
	providers  map[string]database.DBProvider
	fsys       fs.FS
	props      TaskletProperties
	newMigrate func(database.DBConnection) Migrator
}

// NewMigrationTasklet creates a tasklet from raw properties (db_ref, dir, command, table).
func NewMigrationTasklet(cfg *config.Config, providers []database.DBProvider, fsys fs.FS, properties map[string]interface{}) (*MigrationTasklet, error) {
	var props TaskletProperties
	if err := configbinder.Bind(properties, &props); err != nil {
		return nil, exception.NewBatchError(taskletName, "invalid properties", err, false, false)
	}
	if props.DBRef == "" {
		return nil, exception.NewBatchErrorf(taskletName, "property 'db_ref' is required")
	}
	props.Command = strings.ToLower(strings.TrimSpace(props.Command))
	if props.Command == "" {
		props.Command = CommandUp
	}
	if props.Command != CommandUp && props.Command != CommandDown {
		return nil, exception.NewBatchErrorf(taskletName, "unsupported migration command '%s'", props.Command)
	}
	if props.Table == "" {
		props.Table = "batch_app_migrations"
	}

	byType := make(map[string]database.DBProvider, len(providers))
	for _, p := range providers {
		byType[p.Type()] = p
	}
	return &MigrationTasklet{
		cfg:        cfg,
		providers:  byType,
		fsys:       fsys,
		props:      props,
		newMigrate: NewMigrator,
	}, nil
}

// Execute runs the configured command and finishes.
func (t *MigrationTasklet) Execute(ctx context.Context, contribution *model.StepContribution, stepExecution *model.StepExecution) (model.RepeatStatus, error) {
	dbCfg, err := dbconfig.Lookup(t.cfg.Surfin.Datasources, t.props.DBRef)
	if err != nil {
		return model.RepeatStatusFinished, exception.NewFatalError(taskletName, "datasource lookup failed", err)
	}
	provider, ok := t.providers[dbCfg.Type]
	if !ok && dbCfg.Type == "redshift" {
		provider, ok = t.providers["postgres"]
	}
	if !ok {
		return model.RepeatStatusFinished, exception.NewBatchErrorf(taskletName, "DBProvider for type '%s' not found", dbCfg.Type)
	}

	version, err := Migrate(ctx, provider, t.props.DBRef, t.props.Command, Source{FS: t.fsys, Path: t.props.Dir, Table: t.props.Table}, t.newMigrate)
	if err != nil {
		return model.RepeatStatusFinished, exception.NewBatchError(taskletName, "migration '"+t.props.Command+"' failed", err, false, false)
	}
	if t.props.Command == CommandUp {
		stepExecution.ExecutionContext.Put(VersionKey, int64(version))
	}
	return model.RepeatStatusFinished, nil
}

// Migrate runs command on the datasource name of provider and reopens the connection
// afterwards, whatever the outcome. newMigrator may be nil to use NewMigrator.
func Migrate(ctx context.Context, provider database.DBProvider, name, command string, src Source, newMigrator func(database.DBConnection) Migrator) (uint, error) {
	if newMigrator == nil {
		newMigrator = NewMigrator
	}
	conn, err := provider.GetConnection(name)
	if err != nil {
		return 0, err
	}
	if src.Path == "" {
		src.Path = conn.Type()
	}

	var version uint
	migrator := newMigrator(conn)
	switch command {
	case CommandUp:
		version, err = migrator.Up(ctx, src)
	case CommandDown:
		err = migrator.Down(ctx, src)
	default:
		err = exception.NewBatchErrorf(taskletName, "unsupported migration command '%s'", command)
	}

	if _, reconnectErr := provider.ForceReconnect(name); reconnectErr != nil {
		logger.Errorf("Failed to reopen connection '%s' after migration: %v", name, reconnectErr)
		if err == nil {
			err = reconnectErr
		}
	}
	return version, err
}

var _ port.Tasklet = (*MigrationTasklet)(nil)
