// Package config holds the storage connection settings decoded from surfin.storage.<name>.
package config

import (
	"fmt"

	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/configbinder"
)

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // "local" or "gcs".
	BucketName      string `yaml:"bucket_name"`      // Default bucket used when a call passes no bucket.
	CredentialsFile string `yaml:"credentials_file"` // Service account key for GCS. Empty uses application default credentials.
	Endpoint        string `yaml:"endpoint"`         // Alternative GCS endpoint, such as an emulator. Disables authentication.
	BaseDir         string `yaml:"base_dir"`         // Root directory of a local connection.
}

// Lookup decodes the storage connection called name from the raw storage map.
func Lookup(storage map[string]interface{}, name string) (StorageConfig, error) {
	var cfg StorageConfig
	raw, ok := configbinder.Section(storage, name)
	if !ok {
		return cfg, fmt.Errorf("storage connection '%s' not found in configuration", name)
	}
	if err := configbinder.Bind(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode storage connection '%s': %w", name, err)
	}
	if cfg.Type == "" {
		return cfg, fmt.Errorf("storage connection '%s' has no type", name)
	}
	return cfg, nil
}
