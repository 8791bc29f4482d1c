package migration

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/config"
	config "github.com/tigerroll/surfin-engine/pkg/batch/core/config"
	"github.com/tigerroll/surfin-engine/pkg/batch/infrastructure/repository/sql/migrations"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// AutoMigrateParams are the fx inputs of RegisterAutoMigration.
type AutoMigrateParams struct {
	fx.In
	Lifecycle   fx.Lifecycle
	Config      *config.Config
	DBProviders []database.DBProvider `group:"db_providers"`
}

// RegisterAutoMigration applies the job repository schema on start when the SQL
// repository is configured with auto_migrate.
func RegisterAutoMigration(p AutoMigrateParams) {
	repoCfg := p.Config.Surfin.Infrastructure.JobRepository
	if repoCfg.Type != config.RepositoryTypeSQL || !repoCfg.AutoMigrate {
		return
	}
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return MigrateFramework(ctx, p.Config, p.DBProviders)
		},
	})
}

// MigrateFramework applies the job repository schema to the configured metadata datasource.
func MigrateFramework(ctx context.Context, cfg *config.Config, providers []database.DBProvider) error {
	version, err := RunFramework(ctx, cfg, providers, CommandUp)
	if err != nil {
		return err
	}
	logger.Infof("Job repository schema on '%s' is at version %d.", cfg.Surfin.Infrastructure.JobRepository.DBRef, version)
	return nil
}

// RunFramework runs command ("up" or "down") with the job repository migrations on the
// metadata datasource and returns the resulting version.
func RunFramework(ctx context.Context, cfg *config.Config, providers []database.DBProvider, command string) (uint, error) {
	name := cfg.Surfin.Infrastructure.JobRepository.DBRef
	dbCfg, err := dbconfig.Lookup(cfg.Surfin.Datasources, name)
	if err != nil {
		return 0, err
	}
	for _, provider := range providers {
		if provider.Type() == dbCfg.Type {
			return Migrate(ctx, provider, name, command, Source{FS: migrations.FS, Table: migrations.Table}, nil)
		}
	}
	return 0, fmt.Errorf("no DBProvider registered for database type '%s'", dbCfg.Type)
}

// Module applies the framework schema on start when auto_migrate is enabled.
var Module = fx.Invoke(RegisterAutoMigration)
