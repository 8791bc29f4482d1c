package demo

import (
	"embed"
	"io/fs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql migrations/mysql/*.sql
var migrationFiles embed.FS

// MigrationTable records the warehouse migrations, apart from the job repository schema.
const MigrationTable = "demo_migrations"

// Migrations returns the warehouse schema scripts, one directory per database type.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}
