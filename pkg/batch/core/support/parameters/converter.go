// Package parameters converts job parameters to and from their command-line form and
// validates them before launch.
package parameters

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
)

const module = "JobParametersConverter"

// DateLayout is the short date form accepted for DATE parameters besides RFC 3339.
const DateLayout = "2006-01-02"

// DefaultJobParametersConverter converts between JobParameters and strings of the form
// key(type)=value. The type is one of string, long, double and date and defaults to
// string when omitted. A leading '-' marks the parameter non-identifying.
type DefaultJobParametersConverter struct{}

// NewDefaultJobParametersConverter creates a new DefaultJobParametersConverter.
func NewDefaultJobParametersConverter() *DefaultJobParametersConverter {
	return &DefaultJobParametersConverter{}
}

// GetJobParameters parses properties in order. A later key replaces an earlier one.
func (c *DefaultJobParametersConverter) GetJobParameters(properties []string) (model.JobParameters, error) {
	b := model.NewJobParametersBuilder()
	for _, property := range properties {
		key, p, err := c.parse(property)
		if err != nil {
			return model.JobParameters{}, err
		}
		b.AddParameter(key, p)
	}
	return b.ToJobParameters(), nil
}

func (c *DefaultJobParametersConverter) parse(property string) (string, model.JobParameter, error) {
	name, value, found := strings.Cut(property, "=")
	if !found {
		return "", model.JobParameter{}, exception.NewBatchErrorf(module, "parameter %q is not of the form key(type)=value", property)
	}
	identifying := true
	if strings.HasPrefix(name, "-") {
		identifying = false
		name = name[1:]
	}

	typeName := "string"
	if open := strings.Index(name, "("); open >= 0 {
		if !strings.HasSuffix(name, ")") {
			return "", model.JobParameter{}, exception.NewBatchErrorf(module, "parameter %q has an unterminated type", property)
		}
		typeName = strings.ToLower(name[open+1 : len(name)-1])
		name = name[:open]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", model.JobParameter{}, exception.NewBatchErrorf(module, "parameter %q has no key", property)
	}

	switch typeName {
	case "string":
		return name, model.NewStringParameter(value, identifying), nil
	case "long":
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return "", model.JobParameter{}, exception.NewBatchErrorf(module, "parameter %q: invalid long", property, err)
		}
		return name, model.NewLongParameter(v, identifying), nil
	case "double":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return "", model.JobParameter{}, exception.NewBatchErrorf(module, "parameter %q: invalid double", property, err)
		}
		return name, model.NewDoubleParameter(v, identifying), nil
	case "date":
		v, err := ParseDate(value)
		if err != nil {
			return "", model.JobParameter{}, exception.NewBatchErrorf(module, "parameter %q: invalid date", property, err)
		}
		return name, model.NewDateParameter(v, identifying), nil
	default:
		return "", model.JobParameter{}, exception.NewBatchErrorf(module, "parameter %q has unknown type %q", property, typeName)
	}
}

// GetProperties renders params in insertion order, the inverse of GetJobParameters.
func (c *DefaultJobParametersConverter) GetProperties(params model.JobParameters) []string {
	out := make([]string, 0, params.Len())
	for _, key := range params.Keys() {
		p, _ := params.Get(key)
		prefix := ""
		if !p.Identifying {
			prefix = "-"
		}
		out = append(out, fmt.Sprintf("%s%s(%s)=%s", prefix, key, strings.ToLower(string(p.Type)), p.String()))
	}
	return out
}

// ParseDate accepts RFC 3339 timestamps and YYYY-MM-DD dates, the latter as midnight UTC.
func ParseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse(DateLayout, value)
}
