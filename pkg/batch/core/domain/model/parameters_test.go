package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
)

func TestInstanceKeyIgnoresOrderAndNonIdentifying(t *testing.T) {
	runDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := model.NewJobParametersBuilder().
		AddDate("run_date", runDate).
		AddString("region", "eu").
		AddLong("attempt", 1, false).
		ToJobParameters()
	b := model.NewJobParametersBuilder().
		AddString("region", "eu").
		AddLong("attempt", 7, false).
		AddDate("run_date", runDate).
		ToJobParameters()

	assert.Equal(t, a.InstanceKey(), b.InstanceKey())
	assert.True(t, a.InstanceEquivalent(b))
	assert.False(t, a.Equal(b))

	c := model.NewJobParametersBuilderFrom(a).AddString("region", "us").ToJobParameters()
	assert.NotEqual(t, a.InstanceKey(), c.InstanceKey())
	assert.False(t, a.InstanceEquivalent(c))
}

func TestInstanceKeyDistinguishesTypes(t *testing.T) {
	asString := model.NewJobParametersBuilder().AddString("n", "1").ToJobParameters()
	asLong := model.NewJobParametersBuilder().AddLong("n", 1).ToJobParameters()
	assert.NotEqual(t, asString.InstanceKey(), asLong.InstanceKey())
	assert.Equal(t, model.NewJobParameters().InstanceKey(), model.NewJobParametersBuilder().AddString("x", "y", false).ToJobParameters().InstanceKey())
}

func TestInstanceKeyIsNotFooledBySeparatorsInValues(t *testing.T) {
	packed := model.NewJobParametersBuilder().AddString("a", "1;b=STRING:2").ToJobParameters()
	split := model.NewJobParametersBuilder().AddString("a", "1").AddString("b", "2").ToJobParameters()
	assert.NotEqual(t, packed.InstanceKey(), split.InstanceKey())

	renamed := model.NewJobParametersBuilder().AddString("a=STRING:1;b", "2").ToJobParameters()
	assert.NotEqual(t, renamed.InstanceKey(), split.InstanceKey())
	assert.NotEqual(t, renamed.InstanceKey(), packed.InstanceKey())
}

func TestJobParametersBuilder(t *testing.T) {
	b := model.NewJobParametersBuilder().
		AddString("a", "1").
		AddDouble("b", 2.5).
		AddString("a", "replaced")
	params := b.ToJobParameters()

	assert.Equal(t, []string{"a", "b"}, params.Keys())
	v, ok := params.GetString("a")
	assert.True(t, ok)
	assert.Equal(t, "replaced", v)
	d, ok := params.GetDouble("b")
	assert.True(t, ok)
	assert.Equal(t, 2.5, d)

	b.Remove("a")
	assert.Equal(t, 2, params.Len(), "built parameters are independent of the builder")
	assert.Equal(t, []string{"b"}, b.ToJobParameters().Keys())

	_, ok = params.GetLong("b")
	assert.False(t, ok, "typed getters do not convert")
	assert.True(t, model.NewJobParameters().IsEmpty())
}

func TestJobParametersJSONKeepsOrderAndTypes(t *testing.T) {
	runDate := time.Date(2024, 1, 1, 12, 30, 0, 0, time.FixedZone("JST", 9*3600))
	params := model.NewJobParametersBuilder().
		AddString("name", "load").
		AddLong("big", 9007199254740993).
		AddDouble("ratio", 0.25, false).
		AddDate("run_date", runDate).
		ToJobParameters()

	data, err := json.Marshal(params)
	require.NoError(t, err)

	var decoded model.JobParameters
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, params.Equal(decoded))
	assert.Equal(t, params.Keys(), decoded.Keys())

	big, ok := decoded.GetLong("big")
	require.True(t, ok)
	assert.Equal(t, int64(9007199254740993), big)
	date, ok := decoded.GetDate("run_date")
	require.True(t, ok)
	assert.True(t, runDate.Equal(date))
	p, _ := decoded.Get("ratio")
	assert.False(t, p.Identifying)
}

func TestJobParametersScan(t *testing.T) {
	params := model.NewJobParametersBuilder().AddString("k", "v").ToJobParameters()
	value, err := params.Value()
	require.NoError(t, err)

	var scanned model.JobParameters
	require.NoError(t, scanned.Scan(value))
	assert.True(t, params.Equal(scanned))

	require.NoError(t, scanned.Scan(nil))
	assert.True(t, scanned.IsEmpty())
	assert.Error(t, scanned.Scan(42))
	assert.Error(t, scanned.Scan(`[{"key":"x","type":"LONG","value":"abc","identifying":true}]`))
}

func TestJobParametersStringMasksSecrets(t *testing.T) {
	params := model.NewJobParametersBuilder().
		AddString("user", "alice").
		AddString("password", "hunter2", false).
		ToJobParameters()

	s := params.String()
	assert.Contains(t, s, "user(string)=alice")
	assert.Contains(t, s, "-password(string)=********")
	assert.NotContains(t, s, "hunter2")
}
