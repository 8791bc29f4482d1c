package main

import (
	"context"
	"os"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-engine/internal/demo"
	gormadapter "github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/gorm/sqlite"
	storage "github.com/tigerroll/surfin-engine/pkg/batch/adapter/storage"
	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/surfin-engine/pkg/batch/component/tasklet/migration"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/surfin-engine/pkg/batch/core/config"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/job/registry"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/job/runner"
	inframetrics "github.com/tigerroll/surfin-engine/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/surfin-engine/pkg/batch/infrastructure/repository/inmemory"
	reposql "github.com/tigerroll/surfin-engine/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/surfin-engine/pkg/batch/listener"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

const lifecycleTimeout = 30 * time.Second

// appOptions are the global flags.
type appOptions struct {
	configFile string
	envFile    string
}

// loadConfig reads the YAML file (if any) and the environment. The result only picks
// the modules; the fx graph loads its own copy through config.Module.
func (o appOptions) loadConfig() (config.EmbeddedConfig, *config.Config, error) {
	var raw []byte
	if o.configFile != "" {
		b, err := os.ReadFile(o.configFile)
		if err != nil {
			return nil, nil, exception.NewBatchError("cli", "failed to read config file "+o.configFile, err, false, false)
		}
		raw = b
	}
	cfg, err := config.LoadConfig(o.envFile, raw)
	if err != nil {
		return nil, nil, err
	}
	return raw, cfg, nil
}

// applicationOptions assembles the engine modules for cfg.
func applicationOptions(raw config.EmbeddedConfig, envFile string, cfg *config.Config) []fx.Option {
	options := []fx.Option{
		fx.Supply(raw, fx.Annotated{Name: "envFilePath", Target: envFile}),
		logger.Module,
		config.Module,
		gormadapter.Module,
		sqlite.Module,
		postgres.Module,
		mysql.Module,
		storage.Module,
		local.Module,
		gcs.Module,
		inframetrics.Module,
		listener.Module,
		runner.Module,
		registry.Module,
		usecase.Module,
		demo.Module,
	}
	if cfg.Surfin.Infrastructure.JobRepository.Type == config.RepositoryTypeSQL {
		options = append(options, reposql.Module, migration.Module)
	} else {
		options = append(options, inmemory.Module)
	}
	return options
}

// withApp starts the application with extra options, typically an fx.Populate of the
// values fn uses, and runs fn before stopping it.
func withApp(ctx context.Context, opts appOptions, fn func(ctx context.Context) error, extra ...fx.Option) error {
	raw, cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	app := fx.New(append(applicationOptions(raw, opts.envFile, cfg), extra...)...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, lifecycleTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	runErr := fn(ctx)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), lifecycleTimeout)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		logger.Warnf("Application did not stop cleanly: %v", err)
	}
	return runErr
}
