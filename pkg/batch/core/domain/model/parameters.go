package model

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/serialization"
)

// ParameterType is the declared type of a JobParameter value.
type ParameterType string

const (
	ParameterTypeString ParameterType = "STRING"
	ParameterTypeLong   ParameterType = "LONG"
	ParameterTypeDouble ParameterType = "DOUBLE"
	ParameterTypeDate   ParameterType = "DATE"
)

// JobParameter is a single typed, immutable job parameter value.
// Value holds a string, int64, float64 or time.Time according to Type.
type JobParameter struct {
	Value       interface{}
	Type        ParameterType
	Identifying bool
}

// NewStringParameter creates a STRING parameter.
func NewStringParameter(value string, identifying bool) JobParameter {
	return JobParameter{Value: value, Type: ParameterTypeString, Identifying: identifying}
}

// NewLongParameter creates a LONG parameter.
func NewLongParameter(value int64, identifying bool) JobParameter {
	return JobParameter{Value: value, Type: ParameterTypeLong, Identifying: identifying}
}

// NewDoubleParameter creates a DOUBLE parameter.
func NewDoubleParameter(value float64, identifying bool) JobParameter {
	return JobParameter{Value: value, Type: ParameterTypeDouble, Identifying: identifying}
}

// NewDateParameter creates a DATE parameter. The time is normalized to UTC.
func NewDateParameter(value time.Time, identifying bool) JobParameter {
	return JobParameter{Value: value.UTC(), Type: ParameterTypeDate, Identifying: identifying}
}

// String renders the value in its canonical textual form.
func (p JobParameter) String() string {
	switch v := p.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Equal reports whether two parameters have the same type, value and identifying flag.
func (p JobParameter) Equal(other JobParameter) bool {
	return p.Type == other.Type && p.Identifying == other.Identifying && p.String() == other.String()
}

type jobParameterJSON struct {
	Key         string        `json:"key"`
	Type        ParameterType `json:"type"`
	Value       interface{}   `json:"value"`
	Identifying bool          `json:"identifying"`
}

// decodeParameterValue restores the Go type of a value decoded from JSON.
func decodeParameterValue(t ParameterType, raw interface{}) (interface{}, error) {
	switch t {
	case ParameterTypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("STRING parameter holds %T", raw)
		}
		return s, nil
	case ParameterTypeLong:
		switch v := raw.(type) {
		case json.Number:
			return v.Int64()
		case float64:
			return int64(v), nil
		case string:
			return strconv.ParseInt(v, 10, 64)
		}
		return nil, fmt.Errorf("LONG parameter holds %T", raw)
	case ParameterTypeDouble:
		switch v := raw.(type) {
		case json.Number:
			return v.Float64()
		case float64:
			return v, nil
		case string:
			return strconv.ParseFloat(v, 64)
		}
		return nil, fmt.Errorf("DOUBLE parameter holds %T", raw)
	case ParameterTypeDate:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("DATE parameter holds %T", raw)
		}
		return time.Parse(time.RFC3339Nano, s)
	default:
		return nil, fmt.Errorf("unknown parameter type %q", t)
	}
}

// JobParameters is an ordered, immutable set of job parameters.
// Use JobParametersBuilder to create one.
type JobParameters struct {
	keys   []string
	values map[string]JobParameter
}

// NewJobParameters returns an empty JobParameters.
func NewJobParameters() JobParameters {
	return JobParameters{values: map[string]JobParameter{}}
}

// Len returns the number of parameters.
func (jp JobParameters) Len() int {
	return len(jp.keys)
}

// IsEmpty reports whether there are no parameters.
func (jp JobParameters) IsEmpty() bool {
	return len(jp.keys) == 0
}

// Keys returns the parameter keys in insertion order.
func (jp JobParameters) Keys() []string {
	out := make([]string, len(jp.keys))
	copy(out, jp.keys)
	return out
}

// Get returns the parameter stored under key.
func (jp JobParameters) Get(key string) (JobParameter, bool) {
	p, ok := jp.values[key]
	return p, ok
}

// GetString returns a STRING parameter value.
func (jp JobParameters) GetString(key string) (string, bool) {
	p, ok := jp.values[key]
	if !ok {
		return "", false
	}
	s, ok := p.Value.(string)
	return s, ok
}

// GetLong returns a LONG parameter value.
func (jp JobParameters) GetLong(key string) (int64, bool) {
	p, ok := jp.values[key]
	if !ok {
		return 0, false
	}
	v, ok := p.Value.(int64)
	return v, ok
}

// GetDouble returns a DOUBLE parameter value.
func (jp JobParameters) GetDouble(key string) (float64, bool) {
	p, ok := jp.values[key]
	if !ok {
		return 0, false
	}
	v, ok := p.Value.(float64)
	return v, ok
}

// GetDate returns a DATE parameter value.
func (jp JobParameters) GetDate(key string) (time.Time, bool) {
	p, ok := jp.values[key]
	if !ok {
		return time.Time{}, false
	}
	v, ok := p.Value.(time.Time)
	return v, ok
}

// Identifying returns the subset of parameters that contribute to instance identity.
func (jp JobParameters) Identifying() JobParameters {
	out := NewJobParameters()
	for _, k := range jp.keys {
		if p := jp.values[k]; p.Identifying {
			out.keys = append(out.keys, k)
			out.values[k] = p
		}
	}
	return out
}

// Equal reports whether both sets hold the same keys with equal parameters, ignoring order.
func (jp JobParameters) Equal(other JobParameters) bool {
	if len(jp.keys) != len(other.keys) {
		return false
	}
	for k, p := range jp.values {
		o, ok := other.values[k]
		if !ok || !p.Equal(o) {
			return false
		}
	}
	return true
}

// InstanceEquivalent reports whether two parameter sets identify the same job instance.
func (jp JobParameters) InstanceEquivalent(other JobParameters) bool {
	return jp.Identifying().Equal(other.Identifying())
}

// InstanceKey computes the identity hash of the identifying subset. Keys are
// sorted first so that insertion order does not matter. Every field is length
// prefixed, so separators inside names or values cannot make two sets collide.
func (jp JobParameters) InstanceKey() string {
	ident := jp.Identifying()
	keys := ident.Keys()
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		p := ident.values[k]
		for _, field := range []string{k, string(p.Type), p.String()} {
			fmt.Fprintf(h, "%d:%s", len(field), field)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ToMap returns the raw values keyed by parameter name.
func (jp JobParameters) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, len(jp.keys))
	for _, k := range jp.keys {
		out[k] = jp.values[k].Value
	}
	return out
}

// String returns a printable form with sensitive keys masked.
func (jp JobParameters) String() string {
	masked := serialization.GetMaskedJobParametersMap(jp.ToMap())
	parts := make([]string, 0, len(jp.keys))
	for _, k := range jp.keys {
		p := jp.values[k]
		v := p.String()
		if mv, ok := masked[k].(string); ok && mv == serialization.MaskedValue {
			v = mv
		}
		prefix := ""
		if !p.Identifying {
			prefix = "-"
		}
		parts = append(parts, fmt.Sprintf("%s%s(%s)=%s", prefix, k, strings.ToLower(string(p.Type)), v))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// MarshalJSON encodes the parameters as an ordered list of typed entries.
func (jp JobParameters) MarshalJSON() ([]byte, error) {
	entries := make([]jobParameterJSON, 0, len(jp.keys))
	for _, k := range jp.keys {
		p := jp.values[k]
		var v interface{} = p.Value
		if t, ok := p.Value.(time.Time); ok {
			v = t.UTC().Format(time.RFC3339Nano)
		}
		entries = append(entries, jobParameterJSON{Key: k, Type: p.Type, Value: v, Identifying: p.Identifying})
	}
	return json.Marshal(entries)
}

// UnmarshalJSON decodes the list produced by MarshalJSON.
func (jp *JobParameters) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var entries []jobParameterJSON
	if err := dec.Decode(&entries); err != nil {
		return exception.NewBatchError("job_parameters", "failed to decode job parameters", err, false, false)
	}
	out := NewJobParameters()
	for _, e := range entries {
		v, err := decodeParameterValue(e.Type, e.Value)
		if err != nil {
			return exception.NewBatchError("job_parameters", fmt.Sprintf("invalid value for parameter '%s'", e.Key), err, false, false)
		}
		if _, dup := out.values[e.Key]; !dup {
			out.keys = append(out.keys, e.Key)
		}
		out.values[e.Key] = JobParameter{Value: v, Type: e.Type, Identifying: e.Identifying}
	}
	*jp = out
	return nil
}

// Value implements driver.Valuer.
func (jp JobParameters) Value() (driver.Value, error) {
	data, err := jp.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (jp *JobParameters) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*jp = NewJobParameters()
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for JobParameters: %T", value)
	}
	if len(b) == 0 {
		*jp = NewJobParameters()
		return nil
	}
	return jp.UnmarshalJSON(b)
}

// JobParametersBuilder assembles JobParameters. Adding an existing key replaces its
// value and keeps its original position.
type JobParametersBuilder struct {
	params JobParameters
}

// NewJobParametersBuilder creates an empty builder.
func NewJobParametersBuilder() *JobParametersBuilder {
	return &JobParametersBuilder{params: NewJobParameters()}
}

// NewJobParametersBuilderFrom creates a builder seeded with existing parameters.
func NewJobParametersBuilderFrom(params JobParameters) *JobParametersBuilder {
	return NewJobParametersBuilder().AddJobParameters(params)
}

func identifyingFlag(flags []bool) bool {
	if len(flags) == 0 {
		return true
	}
	return flags[0]
}

// AddParameter stores a parameter under key.
func (b *JobParametersBuilder) AddParameter(key string, p JobParameter) *JobParametersBuilder {
	if _, exists := b.params.values[key]; !exists {
		b.params.keys = append(b.params.keys, key)
	}
	b.params.values[key] = p
	return b
}

// AddString adds a STRING parameter. Parameters are identifying unless false is passed.
func (b *JobParametersBuilder) AddString(key, value string, identifying ...bool) *JobParametersBuilder {
	return b.AddParameter(key, NewStringParameter(value, identifyingFlag(identifying)))
}

// AddLong adds a LONG parameter.
func (b *JobParametersBuilder) AddLong(key string, value int64, identifying ...bool) *JobParametersBuilder {
	return b.AddParameter(key, NewLongParameter(value, identifyingFlag(identifying)))
}

// AddDouble adds a DOUBLE parameter.
func (b *JobParametersBuilder) AddDouble(key string, value float64, identifying ...bool) *JobParametersBuilder {
	return b.AddParameter(key, NewDoubleParameter(value, identifyingFlag(identifying)))
}

// AddDate adds a DATE parameter.
func (b *JobParametersBuilder) AddDate(key string, value time.Time, identifying ...bool) *JobParametersBuilder {
	return b.AddParameter(key, NewDateParameter(value, identifyingFlag(identifying)))
}

// AddJobParameters copies every parameter of params into the builder.
func (b *JobParametersBuilder) AddJobParameters(params JobParameters) *JobParametersBuilder {
	for _, k := range params.keys {
		b.AddParameter(k, params.values[k])
	}
	return b
}

// Remove deletes key from the builder.
func (b *JobParametersBuilder) Remove(key string) *JobParametersBuilder {
	if _, ok := b.params.values[key]; !ok {
		return b
	}
	delete(b.params.values, key)
	for i, k := range b.params.keys {
		if k == key {
			b.params.keys = append(b.params.keys[:i], b.params.keys[i+1:]...)
			break
		}
	}
	return b
}

// ToJobParameters returns an independent copy of the accumulated parameters.
func (b *JobParametersBuilder) ToJobParameters() JobParameters {
	out := NewJobParameters()
	out.keys = append(out.keys, b.params.keys...)
	for k, v := range b.params.values {
		out.values[k] = v
	}
	return out
}
