package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	storageconfig "github.com/tigerroll/surfin-engine/pkg/batch/adapter/storage/config"
	config "github.com/tigerroll/surfin-engine/pkg/batch/core/config"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// BaseProvider implements StorageProvider for one backend. Connections are opened
// lazily from surfin.storage and cached by name.
type BaseProvider struct {
	cfg         *config.Config
	storageType string
	factory     ConnectionFactory

	mu          sync.Mutex
	connections map[string]StorageConnection
}

var _ StorageProvider = (*BaseProvider)(nil)

// NewBaseProvider creates a provider for storageType that opens connections with factory.
func NewBaseProvider(cfg *config.Config, storageType string, factory ConnectionFactory) *BaseProvider {
	return &BaseProvider{
		cfg:         cfg,
		storageType: storageType,
		factory:     factory,
		connections: make(map[string]StorageConnection),
	}
}

func (p *BaseProvider) Type() string {
	return p.storageType
}

// GetConnection returns the cached connection for name or opens it.
func (p *BaseProvider) GetConnection(ctx context.Context, name string) (StorageConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}

	storageCfg, err := storageconfig.Lookup(p.cfg.Surfin.Storage, name)
	if err != nil {
		return nil, err
	}
	if storageCfg.Type != p.storageType {
		return nil, fmt.Errorf("storage config type mismatch for '%s': expected '%s', got '%s'", name, p.storageType, storageCfg.Type)
	}
	conn, err := p.factory(ctx, storageCfg, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage connection '%s': %w", p.storageType, name, err)
	}
	p.connections[name] = conn
	logger.Infof("Established new storage connection: %s (%s)", name, p.storageType)
	return conn, nil
}

// CloseAll closes and forgets every cached connection.
func (p *BaseProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result *multierror.Error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close %s storage connection '%s': %w", p.storageType, name, err))
		}
		delete(p.connections, name)
	}
	return result.ErrorOrNil()
}
