// Package migration applies golang-migrate schema migrations to a datasource, either
// directly through a Migrator or as a step through the MigrationTasklet.
package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// Migration commands.
const (
	CommandUp   = "up"
	CommandDown = "down"
)

// Source locates a set of migration scripts and the table recording which were applied.
type Source struct {
	FS fs.FS
	// Path is the directory inside FS. Empty means the database type.
	Path string
	// Table is the golang-migrate history table.
	Table string
}

// Migrator runs migrations against one connection. Every call closes the underlying
// *sql.DB when it returns, so the connection must be reopened through its provider
// (DBProvider.ForceReconnect) before it is used again.
type Migrator interface {
	// Up applies all pending migrations. It returns the resulting version.
	Up(ctx context.Context, src Source) (uint, error)
	// Down rolls back all applied migrations.
	Down(ctx context.Context, src Source) error
	// Version returns the current version and whether the last migration left it dirty.
	// ErrNilVersion is returned when no migration was applied.
	Version(ctx context.Context, src Source) (uint, bool, error)
}

// ErrNilVersion is returned by Version when the history table is empty.
var ErrNilVersion = migrate.ErrNilVersion

type migrator struct {
	conn database.DBConnection
}

// NewMigrator creates a Migrator for conn. Supported types are sqlite, postgres and mysql.
func NewMigrator(conn database.DBConnection) Migrator {
	return &migrator{conn: conn}
}

func (m *migrator) databaseDriver(table string) (migratedb.Driver, error) {
	sqlDB, err := m.conn.GetSQLDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	switch m.conn.Type() {
	case "postgres", "redshift":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: table})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: table})
	case "sqlite":
		return sqlite3.WithInstance(sqlDB, &sqlite3.Config{MigrationsTable: table})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.conn.Type())
	}
}

func (m *migrator) open(src Source) (*migrate.Migrate, error) {
	path := src.Path
	if path == "" {
		path = m.conn.Type()
	}
	sourceDriver, err := iofs.New(src.FS, path)
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}
	dbDriver, err := m.databaseDriver(src.Table)
	if err != nil {
		_ = sourceDriver.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}
	mInstance, err := migrate.NewWithInstance("iofs", sourceDriver, m.conn.Type(), dbDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	mInstance.Log = migrateLogger{}
	return mInstance, nil
}

// run executes fn and asks golang-migrate to stop after the current script when ctx ends.
func (m *migrator) run(ctx context.Context, src Source, command string, fn func(*migrate.Migrate) error) error {
	logger.Infof("Executing migration '%s' on '%s' (path: %s, table: %s).", command, m.conn.Name(), src.Path, src.Table)
	mInstance, err := m.open(src)
	if err != nil {
		return err
	}
	defer func() {
		if srcErr, dbErr := mInstance.Close(); srcErr != nil || dbErr != nil {
			logger.Debugf("Closing migrate instance: source=%v database=%v", srcErr, dbErr)
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			mInstance.GracefulStop <- true
		case <-done:
		}
	}()

	if err := fn(mInstance); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration '%s' failed on '%s': %w", command, m.conn.Name(), err)
	}
	return ctx.Err()
}

func (m *migrator) Up(ctx context.Context, src Source) (uint, error) {
	var version uint
	err := m.run(ctx, src, CommandUp, func(mi *migrate.Migrate) error {
		if err := mi.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		v, _, err := mi.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return err
		}
		version = v
		return nil
	})
	if err == nil {
		logger.Infof("Migration 'up' completed on '%s' (version %d).", m.conn.Name(), version)
	}
	return version, err
}

func (m *migrator) Down(ctx context.Context, src Source) error {
	return m.run(ctx, src, CommandDown, func(mi *migrate.Migrate) error {
		return mi.Down()
	})
}

func (m *migrator) Version(ctx context.Context, src Source) (uint, bool, error) {
	var version uint
	var dirty bool
	err := m.run(ctx, src, "version", func(mi *migrate.Migrate) error {
		var err error
		version, dirty, err = mi.Version()
		return err
	})
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, ErrNilVersion
	}
	return version, dirty, err
}

// migrateLogger routes golang-migrate output to the batch logger.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	logger.Debugf("migrate: "+format, v...)
}

func (migrateLogger) Verbose() bool {
	return false
}
