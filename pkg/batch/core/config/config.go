// Package config provides the configuration structures of the batch engine and their defaults.
package config

// EmbeddedConfig holds the raw YAML configuration, typically embedded in the binary by main.
type EmbeddedConfig []byte

// Repository types accepted by InfrastructureConfig.JobRepository.Type.
const (
	RepositoryTypeInMemory = "inmemory"
	RepositoryTypeSQL      = "sql"
)

// Metric exporters accepted by MetricsConfig.Exporter.
const (
	MetricsExporterPrometheus = "prometheus"
	MetricsExporterOTLP       = "otlp"
)

// ItemRetryConfig holds item-level retry configuration.
type ItemRetryConfig struct {
	MaxAttempts         int      `yaml:"max_attempts"`         // Total attempts per item, including the first one.
	InitialInterval     int      `yaml:"initial_interval"`     // Backoff before the first retry, in milliseconds.
	MaxInterval         int      `yaml:"max_interval"`         // Upper bound of the backoff, in milliseconds.
	Multiplier          float64  `yaml:"multiplier"`           // 1 or less means fixed backoff.
	RetryableExceptions []string `yaml:"retryable_exceptions"` // Registered exception names.
}

// ItemSkipConfig holds item-level skip configuration.
type ItemSkipConfig struct {
	SkipLimit           int      `yaml:"skip_limit"`
	SkippableExceptions []string `yaml:"skippable_exceptions"`
	// CategoryLimits overrides SkipLimit per fault category (e.g. "ParseError": 5).
	CategoryLimits map[string]int `yaml:"category_limits"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// MaskedParameterKeys lists JobParameters keys whose values are masked in logs.
	MaskedParameterKeys []string `yaml:"masked_parameter_keys"`
}

// BatchConfig holds the defaults applied to steps built without explicit settings.
type BatchConfig struct {
	ChunkSize  int             `yaml:"chunk_size"`
	StartLimit int             `yaml:"start_limit"` // 0 means unlimited.
	ItemRetry  ItemRetryConfig `yaml:"item_retry"`
	ItemSkip   ItemSkipConfig  `yaml:"item_skip"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // DEBUG, INFO, WARN, ERROR or FATAL.
	Format string `yaml:"format"` // console or json.
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// JobRepositoryConfig selects the execution repository implementation.
type JobRepositoryConfig struct {
	Type        string `yaml:"type"`         // inmemory or sql.
	DBRef       string `yaml:"db_ref"`       // Name of the datasource used when Type is sql.
	AutoMigrate bool   `yaml:"auto_migrate"` // Apply schema migrations on start.
}

// InfrastructureConfig holds logical dependency settings for infrastructure components.
type InfrastructureConfig struct {
	JobRepository JobRepositoryConfig `yaml:"job_repository"`
}

// MetricsConfig configures metric recording.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Exporter  string `yaml:"exporter"` // prometheus or otlp.
	Namespace string `yaml:"namespace"`
	// PushGatewayURL, when set with the prometheus exporter, receives the collected
	// metrics once the application stops.
	PushGatewayURL string `yaml:"push_gateway_url"`
	// AsyncBufferSize, when positive, makes item events go through a buffered queue
	// drained by a background goroutine.
	AsyncBufferSize int `yaml:"async_buffer_size"`
}

// TracingConfig configures span recording.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// OTLPConfig configures the OTLP exporters.
type OTLPConfig struct {
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc or http.
	Insecure bool   `yaml:"insecure"`
}

// ObservabilityConfig groups metrics, tracing and export settings.
type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name"`
	Metrics     MetricsConfig `yaml:"metrics"`
	Tracing     TracingConfig `yaml:"tracing"`
	OTLP        OTLPConfig    `yaml:"otlp"`
}

// SurfinConfig holds all configuration under the "surfin" top-level key.
type SurfinConfig struct {
	Batch          BatchConfig          `yaml:"batch"`
	System         SystemConfig         `yaml:"system"`
	Infrastructure InfrastructureConfig `yaml:"infrastructure"`
	Security       SecurityConfig       `yaml:"security"`
	Observability  ObservabilityConfig  `yaml:"observability"`
	// Datasources holds raw database connection settings keyed by connection name.
	// They are decoded by the database adapter with configbinder.
	Datasources map[string]interface{} `yaml:"datasources"`
	// Storage holds raw storage connection settings keyed by connection name.
	Storage map[string]interface{} `yaml:"storage"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Surfin         SurfinConfig   `yaml:"surfin"`
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// GlobalConfig is the configuration shared with packages that cannot take it as a dependency.
// NewConfigProvider sets it.
var GlobalConfig *Config

// GetMaskedParameterKeys returns the keys to mask, or the defaults when no configuration is loaded.
func GetMaskedParameterKeys() []string {
	if GlobalConfig == nil {
		return defaultMaskedKeys()
	}
	return GlobalConfig.Surfin.Security.MaskedParameterKeys
}

func defaultMaskedKeys() []string {
	return []string{"password", "api_key", "secret"}
}

// NewConfig returns a new instance of Config with default values.
func NewConfig() *Config {
	return &Config{
		Surfin: SurfinConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO", Format: "console"},
			},
			Batch: BatchConfig{
				ChunkSize: 10,
				ItemRetry: ItemRetryConfig{
					MaxAttempts:     1,
					InitialInterval: 100,
					MaxInterval:     10000,
					Multiplier:      1,
				},
				ItemSkip: ItemSkipConfig{
					SkipLimit: 0,
				},
			},
			Infrastructure: InfrastructureConfig{
				JobRepository: JobRepositoryConfig{
					Type:  RepositoryTypeInMemory,
					DBRef: "metadata",
				},
			},
			Security: SecurityConfig{
				MaskedParameterKeys: defaultMaskedKeys(),
			},
			Observability: ObservabilityConfig{
				ServiceName: "surfin",
				Metrics:     MetricsConfig{Exporter: "prometheus", Namespace: "surfin"},
				Tracing:     TracingConfig{SampleRatio: 1},
				OTLP:        OTLPConfig{Endpoint: "localhost:4317", Protocol: "grpc", Insecure: true},
			},
			Datasources: map[string]interface{}{},
			Storage:     map[string]interface{}{},
		},
	}
}
