// Package storage defines the object storage contracts used by file-producing writers,
// plus the provider cache and resolver shared by the local and GCS backends.
package storage

import (
	"context"
	"errors"
	"io"

	storageconfig "github.com/tigerroll/surfin-engine/pkg/batch/adapter/storage/config"
	coreAdapter "github.com/tigerroll/surfin-engine/pkg/batch/core/adapter"
)

// ErrObjectNotFound is returned by Download for a missing object.
var ErrObjectNotFound = errors.New("storage object not found")

// StorageExecutor defines object operations. An empty bucket means the default bucket
// of the connection.
type StorageExecutor interface {
	// Upload writes data to bucket/objectName, replacing an existing object.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens bucket/objectName. The caller closes the reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for each object whose name starts with prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes an object. A missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is a named connection to an object store.
type StorageConnection interface {
	coreAdapter.ResourceConnection
	StorageExecutor
}

// StorageProvider opens and caches the connections of one backend type.
type StorageProvider interface {
	coreAdapter.ResourceProvider
	// GetConnection returns the connection called name, opening it on first use.
	GetConnection(ctx context.Context, name string) (StorageConnection, error)
}

// StorageConnectionResolver resolves named storage connections.
type StorageConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver
	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}

// ConnectionFactory opens a connection of one backend type.
type ConnectionFactory func(ctx context.Context, cfg storageconfig.StorageConfig, name string) (StorageConnection, error)

// StorageProviderGroup is the fx value group collecting every StorageProvider.
const StorageProviderGroup = "storage_providers"
