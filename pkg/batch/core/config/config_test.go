package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewConfig_Defaults verifies the defaults applied before any document is read.
func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "UTC", cfg.Surfin.System.Timezone)
	assert.Equal(t, "INFO", cfg.Surfin.System.Logging.Level)
	assert.Equal(t, 10, cfg.Surfin.Batch.ChunkSize)
	assert.Equal(t, 1, cfg.Surfin.Batch.ItemRetry.MaxAttempts)
	assert.Equal(t, 0, cfg.Surfin.Batch.ItemSkip.SkipLimit)
	assert.Equal(t, RepositoryTypeInMemory, cfg.Surfin.Infrastructure.JobRepository.Type)
	assert.NotEmpty(t, cfg.Surfin.Security.MaskedParameterKeys)
}

func TestLoadConfig_YAMLOverDefaults(t *testing.T) {
	t.Setenv("TEST_SURFIN_DB_HOST", "db.internal")
	doc := []byte(`
surfin:
  batch:
    chunk_size: 3
    item_skip:
      skip_limit: 2
      skippable_exceptions: [ParseError]
  infrastructure:
    job_repository:
      type: sql
      db_ref: metadata
  datasources:
    metadata:
      type: sqlite
      host: ${TEST_SURFIN_DB_HOST}
      database: ${TEST_SURFIN_DB_NAME:-batch.db}
`)
	cfg, err := LoadConfig("", doc)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Surfin.Batch.ChunkSize)
	assert.Equal(t, 2, cfg.Surfin.Batch.ItemSkip.SkipLimit)
	assert.Equal(t, []string{"ParseError"}, cfg.Surfin.Batch.ItemSkip.SkippableExceptions)
	assert.Equal(t, "INFO", cfg.Surfin.System.Logging.Level, "keys missing from the document keep their default")
	assert.Equal(t, RepositoryTypeSQL, cfg.Surfin.Infrastructure.JobRepository.Type)

	ds, ok := cfg.Surfin.Datasources["metadata"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "db.internal", ds["host"])
	assert.Equal(t, "batch.db", ds["database"])
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SURFIN_BATCH_CHUNK_SIZE", "25")
	t.Setenv("SURFIN_SYSTEM_LOGGING_LEVEL", "DEBUG")
	t.Setenv("SURFIN_BATCH_ITEM_RETRY_RETRYABLE_EXCEPTIONS", "context.DeadlineExceeded, UnexpectedInputError")
	t.Setenv("SURFIN_DATASOURCES_REPORTING_HOST", "reporting-db")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Surfin.Batch.ChunkSize)
	assert.Equal(t, "DEBUG", cfg.Surfin.System.Logging.Level)
	assert.Equal(t, []string{"context.DeadlineExceeded", "UnexpectedInputError"}, cfg.Surfin.Batch.ItemRetry.RetryableExceptions)
	ds, ok := cfg.Surfin.Datasources["reporting"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "reporting-db", ds["host"])
}

func TestLoadConfig_Validation(t *testing.T) {
	cases := map[string]string{
		"unknown exception": "surfin:\n  batch:\n    item_skip:\n      skippable_exceptions: [NoSuchError]\n",
		"negative chunk":    "surfin:\n  batch:\n    chunk_size: -1\n",
		"bad repository":    "surfin:\n  infrastructure:\n    job_repository:\n      type: mongo\n",
		"zero attempts":     "surfin:\n  batch:\n    item_retry:\n      max_attempts: -2\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig("", []byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestNewConfigProvider_SetsGlobalConfig(t *testing.T) {
	defer func() { GlobalConfig = nil }()

	cfg, err := NewConfigProvider(ConfigParams{EmbeddedConfig: []byte("surfin:\n  security:\n    masked_parameter_keys: [token]\n")})
	require.NoError(t, err)
	assert.Same(t, cfg, GlobalConfig)
	assert.Equal(t, []string{"token"}, GetMaskedParameterKeys())

	GlobalConfig = nil
	assert.Contains(t, GetMaskedParameterKeys(), "password")
}

func TestOsEnvironmentExpander(t *testing.T) {
	e := &OsEnvironmentExpander{lookup: func(k string) (string, bool) {
		if k == "SET" {
			return "value", true
		}
		return "", false
	}}
	out, err := e.Expand([]byte("a=${SET} b=${UNSET} c=${UNSET:-fallback} d=$SET"))
	require.NoError(t, err)
	assert.Equal(t, "a=value b= c=fallback d=value", string(out))
}
