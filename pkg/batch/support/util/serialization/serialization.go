// Package serialization converts execution contexts, job parameters and failure lists to and from
// their persisted JSON form and masks sensitive parameters for logging.
package serialization

import (
	"bytes"
	"encoding/json"

	config "github.com/tigerroll/surfin-engine/pkg/batch/core/config"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

const module = "serialization"

// MaskedValue replaces the value of a sensitive parameter.
const MaskedValue = "********"

// GetMaskedJobParametersMap returns a copy of params with the configured sensitive keys masked.
func GetMaskedJobParametersMap(params map[string]interface{}) map[string]interface{} {
	if len(params) == 0 {
		return map[string]interface{}{}
	}

	maskedParams := make(map[string]interface{}, len(params))
	for k, v := range params {
		maskedParams[k] = v
	}
	for _, key := range config.GetMaskedParameterKeys() {
		if _, ok := maskedParams[key]; ok {
			maskedParams[key] = MaskedValue
		}
	}
	return maskedParams
}

// MarshalExecutionContext serializes an execution context map into JSON. A nil map becomes "{}".
func MarshalExecutionContext(ctx map[string]interface{}) ([]byte, error) {
	if ctx == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		logger.Errorf("Failed to serialize ExecutionContext: %v", err)
		return nil, exception.NewBatchError(module, "Failed to serialize ExecutionContext", err, false, false)
	}
	return data, nil
}

// UnmarshalExecutionContext replaces the contents of *ctx with the decoded JSON object.
// Numbers are decoded as json.Number so that int64 counters survive the round trip.
func UnmarshalExecutionContext(data []byte, ctx *map[string]interface{}) error {
	if *ctx == nil {
		*ctx = make(map[string]interface{})
	} else {
		for k := range *ctx {
			delete(*ctx, k)
		}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" || string(trimmed) == "{}" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(ctx); err != nil {
		logger.Errorf("Failed to deserialize ExecutionContext: %v", err)
		return exception.NewBatchError(module, "Failed to deserialize ExecutionContext", err, false, false)
	}
	return nil
}

// MarshalMaskedJobParameters serializes a parameter map for display, masking sensitive keys.
// It is not suitable for persistence because masked values cannot be restored.
func MarshalMaskedJobParameters(params map[string]interface{}) ([]byte, error) {
	maskedParams := GetMaskedJobParametersMap(params)
	if len(maskedParams) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(maskedParams)
	if err != nil {
		logger.Errorf("Failed to serialize JobParameters: %v", err)
		return nil, exception.NewBatchError(module, "Failed to serialize JobParameters", err, false, false)
	}
	return data, nil
}

// MarshalFailures serializes failure messages into a JSON array. A nil slice becomes "[]".
func MarshalFailures(failures []string) ([]byte, error) {
	if failures == nil {
		return []byte("[]"), nil
	}
	data, err := json.Marshal(failures)
	if err != nil {
		return nil, exception.NewBatchError(module, "Failed to serialize Failures", err, false, false)
	}
	return data, nil
}

// UnmarshalFailures decodes a JSON array of failure messages.
func UnmarshalFailures(data []byte, msgs *[]string) error {
	if len(data) == 0 || string(data) == "null" {
		*msgs = []string{}
		return nil
	}
	if err := json.Unmarshal(data, msgs); err != nil {
		logger.Errorf("Failed to deserialize Failures: %v", err)
		return exception.NewBatchError(module, "Failed to deserialize Failures", err, false, false)
	}
	return nil
}
