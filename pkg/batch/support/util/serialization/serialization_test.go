package serialization_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/surfin-engine/pkg/batch/core/config"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/serialization"
)

func TestGetMaskedJobParametersMap(t *testing.T) {
	config.GlobalConfig = config.NewConfig()
	config.GlobalConfig.Surfin.Security.MaskedParameterKeys = []string{"password"}
	defer func() { config.GlobalConfig = nil }()

	params := map[string]interface{}{"user": "alice", "password": "hunter2"}
	masked := serialization.GetMaskedJobParametersMap(params)

	assert.Equal(t, "alice", masked["user"])
	assert.Equal(t, serialization.MaskedValue, masked["password"])
	assert.Equal(t, "hunter2", params["password"], "the input map is not modified")
	assert.Empty(t, serialization.GetMaskedJobParametersMap(nil))

	data, err := serialization.MarshalMaskedJobParameters(params)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
}

func TestExecutionContextNumbersSurvive(t *testing.T) {
	data, err := serialization.MarshalExecutionContext(map[string]interface{}{"read.count": int64(9007199254740993)})
	require.NoError(t, err)

	out := map[string]interface{}{"stale": true}
	require.NoError(t, serialization.UnmarshalExecutionContext(data, &out))
	assert.NotContains(t, out, "stale")
	n, ok := out["read.count"].(json.Number)
	require.True(t, ok)
	assert.Equal(t, "9007199254740993", n.String())

	var empty map[string]interface{}
	require.NoError(t, serialization.UnmarshalExecutionContext([]byte("null"), &empty))
	assert.NotNil(t, empty)

	nilData, err := serialization.MarshalExecutionContext(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(nilData))
}

func TestUnmarshalExecutionContextRejectsGarbage(t *testing.T) {
	var out map[string]interface{}
	err := serialization.UnmarshalExecutionContext([]byte("{not json"), &out)
	require.Error(t, err)
	assert.True(t, exception.IsBatchError(err))
}

func TestFailures(t *testing.T) {
	data, err := serialization.MarshalFailures(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	var msgs []string
	require.NoError(t, serialization.UnmarshalFailures([]byte(`["a","b"]`), &msgs))
	assert.Equal(t, []string{"a", "b"}, msgs)
	require.NoError(t, serialization.UnmarshalFailures(nil, &msgs))
	assert.Empty(t, msgs)
}
