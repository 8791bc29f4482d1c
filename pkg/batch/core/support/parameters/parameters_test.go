package parameters

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
)

func TestGetJobParameters(t *testing.T) {
	c := NewDefaultJobParametersConverter()
	params, err := c.GetJobParameters([]string{
		"run_date(date)=2024-01-01",
		"-attempt(long)=3",
		"ratio(DOUBLE)=0.5",
		"source=s3://bucket/input",
		"at(date)=2024-01-01T10:00:00+09:00",
	})
	require.NoError(t, err)

	runDate, ok := params.GetDate("run_date")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), runDate)

	attempt, _ := params.Get("attempt")
	assert.Equal(t, int64(3), attempt.Value)
	assert.False(t, attempt.Identifying)

	ratio, _ := params.GetDouble("ratio")
	assert.Equal(t, 0.5, ratio)

	source, _ := params.GetString("source")
	assert.Equal(t, "s3://bucket/input", source, "only the first '=' separates key and value")

	at, _ := params.GetDate("at")
	assert.Equal(t, time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), at)

	assert.Equal(t, []string{"run_date", "ratio", "source", "at"}, params.Identifying().Keys())
}

func TestGetJobParametersRejectsMalformedInput(t *testing.T) {
	c := NewDefaultJobParametersConverter()
	for _, property := range []string{
		"novalue",
		"count(long)=ten",
		"ratio(double)=half",
		"day(date)=01/02/2024",
		"x(blob)=1",
		"(long)=1",
		"x(long=1",
	} {
		_, err := c.GetJobParameters([]string{property})
		assert.Error(t, err, property)
	}
}

func TestGetPropertiesRoundTrip(t *testing.T) {
	c := NewDefaultJobParametersConverter()
	in := []string{"run_date(date)=2024-01-01T00:00:00Z", "-attempt(long)=3", "name(string)=load"}
	params, err := c.GetJobParameters(in)
	require.NoError(t, err)
	assert.Equal(t, in, c.GetProperties(params))
}

func TestDefaultJobParametersValidator(t *testing.T) {
	params := model.NewJobParametersBuilder().
		AddString("run_date", "2024-01-01").
		AddLong("attempt", 1, false).
		ToJobParameters()

	assert.NoError(t, NewDefaultJobParametersValidator([]string{"run_date"}, nil).Validate(params))
	assert.NoError(t, NewDefaultJobParametersValidator([]string{"run_date"}, []string{"attempt"}).Validate(params))

	err := NewDefaultJobParametersValidator([]string{"run_date", "region"}, nil).Validate(params)
	assert.ErrorIs(t, err, port.ErrJobParametersInvalid)
	assert.Contains(t, err.Error(), "missing required keys [region]")

	err = NewDefaultJobParametersValidator(nil, []string{"run_date"}).Validate(params)
	assert.ErrorIs(t, err, port.ErrJobParametersInvalid)
	assert.Contains(t, err.Error(), "unexpected keys [attempt]")
}

type validatorFunc func(model.JobParameters) error

func (f validatorFunc) Validate(p model.JobParameters) error { return f(p) }

func TestCompositeJobParametersValidator(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	composite := NewCompositeJobParametersValidator(
		validatorFunc(func(model.JobParameters) error { calls++; return nil }),
		nil,
		validatorFunc(func(model.JobParameters) error { calls++; return boom }),
		validatorFunc(func(model.JobParameters) error { calls++; return nil }),
	)
	assert.ErrorIs(t, composite.Validate(model.NewJobParameters()), boom)
	assert.Equal(t, 2, calls)
	assert.NoError(t, NewCompositeJobParametersValidator().Validate(model.NewJobParameters()))
}
