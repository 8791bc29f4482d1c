package gcs_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageconfig "github.com/tigerroll/surfin-engine/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/storage/gcs"
)

func TestClientOptions(t *testing.T) {
	assert.Empty(t, gcs.ClientOptions(storageconfig.StorageConfig{}))
	assert.Len(t, gcs.ClientOptions(storageconfig.StorageConfig{CredentialsFile: "key.json"}), 1)
	assert.Len(t, gcs.ClientOptions(storageconfig.StorageConfig{Endpoint: "http://localhost:4443/storage/v1/", CredentialsFile: "key.json"}), 2)
}

func TestAdapterWithEmulatorEndpoint(t *testing.T) {
	ctx := context.Background()
	conn, err := gcs.NewGCSAdapter(ctx, storageconfig.StorageConfig{Type: "gcs", Endpoint: "http://localhost:4443/storage/v1/"}, "lake")
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "gcs", conn.Type())
	assert.Equal(t, "lake", conn.Name())

	err = conn.DeleteObject(ctx, "", "a.parquet")
	assert.ErrorContains(t, err, "no bucket given")
}
