// Package config holds the datasource settings decoded from surfin.datasources.<name>.
package config

import (
	"fmt"

	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/configbinder"
)

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string     `yaml:"type"`             // "sqlite", "postgres" or "mysql".
	Host     string     `yaml:"host"`             // Server host.
	Port     int        `yaml:"port"`             // Server port.
	Database string     `yaml:"database"`         // Database name, or the file path for sqlite.
	User     string     `yaml:"user"`             // Login user.
	Password string     `yaml:"password"`         // Login password.
	Schema   string     `yaml:"schema,omitempty"` // Search path for postgres.
	Sslmode  string     `yaml:"sslmode"`          // SSL mode for postgres.
	LogLevel string     `yaml:"log_level"`        // gorm log level: silent, error, warn or info.
	Pool     PoolConfig `yaml:"pool"`
}

// Lookup decodes the datasource called name from the raw datasources map.
func Lookup(datasources map[string]interface{}, name string) (DatabaseConfig, error) {
	var cfg DatabaseConfig
	raw, ok := configbinder.Section(datasources, name)
	if !ok {
		return cfg, fmt.Errorf("datasource '%s' not found in configuration", name)
	}
	if err := configbinder.Bind(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode datasource '%s': %w", name, err)
	}
	if cfg.Type == "" {
		return cfg, fmt.Errorf("datasource '%s' has no type", name)
	}
	return cfg, nil
}
