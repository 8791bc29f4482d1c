// Package mysql registers the MySQL dialect with the gorm adapter.
package mysql

import (
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/config"
)

// DBType is the datasource type handled by this package.
const DBType = "mysql"

func init() {
	gormadapter.RegisterDialector(DBType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString builds the DSN with the driver's own formatter. Times are parsed into time.Time
// and multi-statement scripts are allowed so that schema migrations can run.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	dc := mysqldriver.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	dc.DBName = c.Database
	dc.ParseTime = true
	dc.MultiStatements = true
	dc.Params = map[string]string{"charset": "utf8mb4"}
	return dc.FormatDSN()
}

// NewProvider creates the MySQL DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, DBType)
}
