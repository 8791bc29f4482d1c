// Package adapter holds the resource contracts shared by the database and storage adapters.
package adapter

import (
	"context"
)

// ResourceConnection represents a named connection to an external resource such as a database or a bucket.
type ResourceConnection interface {
	// Close releases the connection.
	Close() error
	// Type returns the backend type (e.g., "sqlite", "gcs").
	Type() string
	// Name returns the configured connection name (e.g., "metadata", "workload").
	Name() string
}

// ResourceProvider creates and caches connections of one backend type.
type ResourceProvider interface {
	// CloseAll closes every connection opened by this provider.
	CloseAll() error
	// Type returns the backend type handled by this provider.
	Type() string
}

// ResourceConnectionResolver resolves a named connection, re-establishing it when it is no longer usable.
type ResourceConnectionResolver interface {
	ResolveConnection(ctx context.Context, name string) (ResourceConnection, error)
}
