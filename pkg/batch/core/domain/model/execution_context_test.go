package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
)

func TestExecutionContextTypedGettersAfterRoundTrip(t *testing.T) {
	ec := model.NewExecutionContext()
	ec.Put("read.count", 42)
	ec.Put("ratio", 0.5)
	ec.Put("name", "importStep")
	ec.Put("done", true)

	value, err := ec.Value()
	require.NoError(t, err)

	var restored model.ExecutionContext
	require.NoError(t, restored.Scan(value))

	n, ok := restored.GetInt("read.count")
	assert.True(t, ok)
	assert.Equal(t, 42, n)
	f, ok := restored.GetFloat64("ratio")
	assert.True(t, ok)
	assert.Equal(t, 0.5, f)
	s, ok := restored.GetString("name")
	assert.True(t, ok)
	assert.Equal(t, "importStep", s)
	b, ok := restored.GetBool("done")
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = restored.GetInt("missing")
	assert.False(t, ok)
	_, ok = restored.GetString("read.count")
	assert.False(t, ok)
}

func TestExecutionContextCopyIsDeep(t *testing.T) {
	ec := model.NewExecutionContext()
	ec.Put("nested", map[string]interface{}{"offset": 1})
	ec.Put("list", []interface{}{"a"})

	cp := ec.Copy()
	cp["nested"].(map[string]interface{})["offset"] = 2
	cp["list"].([]interface{})[0] = "b"
	cp.Remove("list")

	assert.Equal(t, 1, ec["nested"].(map[string]interface{})["offset"])
	assert.Equal(t, "a", ec["list"].([]interface{})[0])
	assert.False(t, cp.ContainsKey("list"))
}

func TestExecutionContextMergeOverwrites(t *testing.T) {
	ec := model.ExecutionContext{"a": 1, "b": 2}
	ec.Merge(model.ExecutionContext{"b": 3, "c": 4})
	assert.Equal(t, model.ExecutionContext{"a": 1, "b": 3, "c": 4}, ec)
}

func TestExecutionContextScanEdgeCases(t *testing.T) {
	var ec model.ExecutionContext
	require.NoError(t, ec.Scan(nil))
	assert.NotNil(t, ec)
	require.NoError(t, ec.Scan([]byte("")))
	assert.Empty(t, ec)
	assert.Error(t, ec.Scan(3.14))
	assert.Error(t, ec.Scan("{broken"))
}

func TestRepeatStatus(t *testing.T) {
	assert.Equal(t, model.RepeatStatusContinuable, model.ContinueIf(true))
	assert.Equal(t, model.RepeatStatusFinished, model.ContinueIf(false))
	assert.Equal(t, model.RepeatStatusFinished, model.RepeatStatusContinuable.And(false))
	assert.Equal(t, model.RepeatStatusFinished, model.RepeatStatusFinished.And(true))
	assert.True(t, model.RepeatStatusContinuable.And(true).IsContinuable())
	assert.Equal(t, "CONTINUABLE", model.RepeatStatusContinuable.String())
}
