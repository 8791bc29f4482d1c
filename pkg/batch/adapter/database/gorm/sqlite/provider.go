// Package sqlite registers the SQLite dialect with the gorm adapter.
package sqlite

import (
	"errors"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/config"
)

// DBType is the datasource type handled by this package.
const DBType = "sqlite"

func init() {
	gormadapter.RegisterDialector(DBType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString returns the DSN for cfg. Transactions take the write lock up front
// so that concurrent creators of the same job execution serialize instead of deadlocking.
func ConnectionString(cfg dbconfig.DatabaseConfig) string {
	if strings.Contains(cfg.Database, "?") {
		return cfg.Database
	}
	return cfg.Database + "?_busy_timeout=5000&_txlock=immediate"
}

// NewProvider creates the SQLite DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, DBType)
}
