package storage

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	storageconfig "github.com/tigerroll/surfin-engine/pkg/batch/adapter/storage/config"
	coreAdapter "github.com/tigerroll/surfin-engine/pkg/batch/core/adapter"
	config "github.com/tigerroll/surfin-engine/pkg/batch/core/config"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// Resolver picks the provider of a storage connection by its configured type.
type Resolver struct {
	providers map[string]StorageProvider
	cfg       *config.Config
}

var _ StorageConnectionResolver = (*Resolver)(nil)

// ResolverParams are the fx inputs of NewResolver.
type ResolverParams struct {
	fx.In
	Providers []StorageProvider `group:"storage_providers"`
	Cfg       *config.Config
}

// NewResolver creates a resolver over the registered providers.
func NewResolver(p ResolverParams) *Resolver {
	providers := make(map[string]StorageProvider, len(p.Providers))
	for _, provider := range p.Providers {
		providers[provider.Type()] = provider
	}
	return &Resolver{providers: providers, cfg: p.Cfg}
}

// ResolveStorageConnection returns the connection called name.
func (r *Resolver) ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error) {
	storageCfg, err := storageconfig.Lookup(r.cfg.Surfin.Storage, name)
	if err != nil {
		return nil, fmt.Errorf("StorageConnectionResolver: %w", err)
	}
	provider, ok := r.providers[storageCfg.Type]
	if !ok {
		return nil, fmt.Errorf("StorageConnectionResolver: StorageProvider for type '%s' not found for connection '%s'", storageCfg.Type, name)
	}
	return provider.GetConnection(ctx, name)
}

// ResolveConnection implements coreAdapter.ResourceConnectionResolver.
func (r *Resolver) ResolveConnection(ctx context.Context, name string) (coreAdapter.ResourceConnection, error) {
	return r.ResolveStorageConnection(ctx, name)
}

// Module provides the storage resolver and closes every provider when the application stops.
// Backends come from the local and gcs sub-packages.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewResolver,
			fx.As(new(StorageConnectionResolver)),
		),
	),
	fx.Invoke(registerProviderShutdown),
)

type shutdownParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Providers []StorageProvider `group:"storage_providers"`
}

func registerProviderShutdown(p shutdownParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			for _, provider := range p.Providers {
				if err := provider.CloseAll(); err != nil {
					logger.Warnf("Failed to close %s storage connections: %v", provider.Type(), err)
				}
			}
			return nil
		},
	})
}
