package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

const moduleName = "config"

// envPrefix is prepended by the "surfin" yaml key itself, so overrides look like SURFIN_BATCH_CHUNK_SIZE.
const envPrefix = ""

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig      `optional:"true"`
	EnvFilePath    string              `name:"envFilePath" optional:"true"`
	Expander       EnvironmentExpander `optional:"true"`
}

// LoadConfig builds a Config from defaults, the YAML document and the environment, in that order.
// A missing .env file is not an error.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embeddedConfig, NewOsEnvironmentExpander())
}

func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}

	cfg := NewConfig()
	cfg.EmbeddedConfig = embeddedConfig

	if len(embeddedConfig) > 0 {
		expanded, err := expander.Expand(embeddedConfig)
		if err != nil {
			return nil, exception.NewBatchError(moduleName, "failed to expand environment variables in config", err, false, false)
		}
		// Unmarshalling over the defaults keeps every key the document leaves out.
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err, false, false)
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), envPrefix); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err, false, false)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewConfigProvider is an Fx provider that loads *Config, publishes it as GlobalConfig
// and applies the logging settings.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	expander := params.Expander
	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig, expander)
	if err != nil {
		return nil, err
	}

	GlobalConfig = cfg

	logger.SetLogLevel(cfg.Surfin.System.Logging.Level)
	logger.SetFormat(cfg.Surfin.System.Logging.Format)
	logger.Debugf("Log level set to: %s", cfg.Surfin.System.Logging.Level)
	return cfg, nil
}

func validate(cfg *Config) error {
	b := cfg.Surfin.Batch
	if b.ChunkSize <= 0 {
		return exception.NewBatchErrorf(moduleName, "batch.chunk_size must be positive, got %d", b.ChunkSize)
	}
	if b.ItemRetry.MaxAttempts < 1 {
		return exception.NewBatchErrorf(moduleName, "batch.item_retry.max_attempts must be at least 1, got %d", b.ItemRetry.MaxAttempts)
	}
	if b.ItemSkip.SkipLimit < 0 {
		return exception.NewBatchErrorf(moduleName, "batch.item_skip.skip_limit must not be negative, got %d", b.ItemSkip.SkipLimit)
	}
	switch cfg.Surfin.Infrastructure.JobRepository.Type {
	case RepositoryTypeInMemory, RepositoryTypeSQL:
	default:
		return exception.NewBatchErrorf(moduleName, "unknown job repository type '%s'", cfg.Surfin.Infrastructure.JobRepository.Type)
	}
	if err := checkExceptionClasses(b.ItemRetry.RetryableExceptions, "ItemRetry"); err != nil {
		return exception.NewBatchError(moduleName, "failed to validate configured exception classes", err, false, false)
	}
	if err := checkExceptionClasses(b.ItemSkip.SkippableExceptions, "ItemSkip"); err != nil {
		return exception.NewBatchError(moduleName, "failed to validate configured exception classes", err, false, false)
	}
	for category, limit := range b.ItemSkip.CategoryLimits {
		if limit < 0 {
			return exception.NewBatchErrorf(moduleName, "batch.item_skip.category_limits.%s must not be negative, got %d", category, limit)
		}
		if err := checkExceptionClasses([]string{category}, "ItemSkip"); err != nil {
			return exception.NewBatchError(moduleName, "failed to validate configured exception classes", err, false, false)
		}
	}
	return nil
}

// checkExceptionClasses validates that every name is registered in the exception registry.
func checkExceptionClasses(classNames []string, configType string) error {
	for _, name := range classNames {
		if !exception.IsErrorTypeRegistered(name) {
			return fmt.Errorf("%s configuration references unknown exception class: '%s'", configType, name)
		}
	}
	return nil
}

// loadStructFromEnv recursively overrides struct fields from environment variables.
// The variable name is the upper-cased chain of yaml tags joined by underscores.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		switch {
		case field.Kind() == reflect.Struct:
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		case field.Kind() == reflect.Map && field.Type().Key().Kind() == reflect.String && field.Type().Elem().Kind() == reflect.Interface:
			loadNestedMapFromEnv(field, envVarName+"_")
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// loadNestedMapFromEnv applies variables such as SURFIN_DATASOURCES_METADATA_HOST=db
// to map["metadata"]["host"]. Values stay strings; configbinder converts them later.
func loadNestedMapFromEnv(mapField reflect.Value, prefix string) {
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(env, prefix), "=", 2)
		if len(parts) != 2 {
			continue
		}
		keyAndField := strings.SplitN(parts[0], "_", 2)
		if len(keyAndField) != 2 || keyAndField[0] == "" || keyAndField[1] == "" {
			continue
		}
		if mapField.IsNil() {
			mapField.Set(reflect.MakeMap(mapField.Type()))
		}
		mapKey := strings.ToLower(keyAndField[0])
		fieldName := strings.ToLower(keyAndField[1])

		entry := map[string]interface{}{}
		if existing := mapField.MapIndex(reflect.ValueOf(mapKey)); existing.IsValid() {
			if m, ok := existing.Interface().(map[string]interface{}); ok {
				entry = m
			}
		}
		entry[fieldName] = parts[1]
		mapField.SetMapIndex(reflect.ValueOf(mapKey), reflect.ValueOf(entry))
	}
}

// setField sets the value of a field from its string form.
// It handles string, int, float, bool and comma separated string slices.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		items := []string{}
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		field.Set(reflect.ValueOf(items))
	}
	return nil
}
