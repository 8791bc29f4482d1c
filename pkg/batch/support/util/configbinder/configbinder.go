// Package configbinder decodes free-form property maps into typed configuration structs.
package configbinder

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Bind decodes properties into target, which must be a pointer to a struct.
// Fields are matched by their yaml tag. Strings are converted to numbers, bools and
// durations where the field type requires it.
func Bind(properties map[string]interface{}, target interface{}) error {
	if len(properties) == 0 {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(properties); err != nil {
		targetType := reflect.TypeOf(target)
		if targetType.Kind() == reflect.Ptr {
			targetType = targetType.Elem()
		}
		return fmt.Errorf("failed to bind properties to struct %s: %w", targetType.Name(), err)
	}
	return nil
}

// BindStrings is Bind for string-valued properties such as command line or environment input.
func BindStrings(properties map[string]string, target interface{}) error {
	intermediate := make(map[string]interface{}, len(properties))
	for k, v := range properties {
		intermediate[k] = v
	}
	return Bind(intermediate, target)
}

// Section returns the map stored under key in raw, for nested configuration blocks
// such as datasources.<name>. ok is false when the key is absent or not a map.
func Section(raw map[string]interface{}, key string) (map[string]interface{}, bool) {
	v, ok := raw[key]
	if !ok {
		return nil, false
	}
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, inner := range m {
			out[fmt.Sprint(k)] = inner
		}
		return out, true
	default:
		return nil, false
	}
}
