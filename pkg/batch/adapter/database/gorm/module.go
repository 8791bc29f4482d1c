package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database"
	coreAdapter "github.com/tigerroll/surfin-engine/pkg/batch/core/adapter"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// Module provides the connection resolver and transaction manager factory.
// Dialect providers come from the sqlite, postgres and mysql sub-packages.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewGormDBConnectionResolver,
			fx.As(new(database.DBConnectionResolver)),
			fx.As(new(coreAdapter.ResourceConnectionResolver)),
		),
		NewTransactionManagerFactory,
	),
	fx.Invoke(registerProviderShutdown),
)

type shutdownParams struct {
	fx.In
	Lifecycle   fx.Lifecycle
	DBProviders []database.DBProvider `group:"db_providers"`
}

func registerProviderShutdown(p shutdownParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			for _, provider := range p.DBProviders {
				if err := provider.CloseAll(); err != nil {
					logger.Warnf("Failed to close %s connections: %v", provider.Type(), err)
				}
			}
			return nil
		},
	})
}
