// Package migrations embeds the job repository schema, one directory per database type.
package migrations

import "embed"

// FS holds the schema scripts. Use the database type ("sqlite", "mysql", "postgres") as the directory.
//
//go:embed sqlite/*.sql mysql/*.sql postgres/*.sql
var FS embed.FS

// Table is the golang-migrate history table for the job repository schema.
const Table = "batch_framework_migrations"
