package configbinder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type poolProps struct {
	MaxOpenConns int           `yaml:"max_open_conns"`
	Lifetime     time.Duration `yaml:"lifetime"`
}

type props struct {
	Type    string    `yaml:"type"`
	Port    int       `yaml:"port"`
	Enabled bool      `yaml:"enabled"`
	Tags    []string  `yaml:"tags"`
	Pool    poolProps `yaml:"pool"`
}

func TestBindConvertsWeakTypes(t *testing.T) {
	var p props
	err := Bind(map[string]interface{}{
		"type":    "sqlite",
		"port":    "5432",
		"enabled": "true",
		"tags":    "a,b",
		"pool":    map[string]interface{}{"max_open_conns": 4, "lifetime": "5m"},
	}, &p)
	require.NoError(t, err)
	assert.Equal(t, props{
		Type:    "sqlite",
		Port:    5432,
		Enabled: true,
		Tags:    []string{"a", "b"},
		Pool:    poolProps{MaxOpenConns: 4, Lifetime: 5 * time.Minute},
	}, p)
}

func TestBindReportsTargetName(t *testing.T) {
	var p props
	err := Bind(map[string]interface{}{"port": "not-a-number"}, &p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "props")
}

func TestBindStringsAndEmptyInput(t *testing.T) {
	var p props
	require.NoError(t, Bind(nil, &p))
	assert.Equal(t, props{}, p)

	require.NoError(t, BindStrings(map[string]string{"port": "3306"}, &p))
	assert.Equal(t, 3306, p.Port)
}

func TestSection(t *testing.T) {
	raw := map[string]interface{}{
		"metadata": map[string]interface{}{"type": "sqlite"},
		"legacy":   map[interface{}]interface{}{"type": "mysql"},
		"scalar":   "x",
	}
	m, ok := Section(raw, "metadata")
	require.True(t, ok)
	assert.Equal(t, "sqlite", m["type"])

	m, ok = Section(raw, "legacy")
	require.True(t, ok)
	assert.Equal(t, "mysql", m["type"])

	_, ok = Section(raw, "scalar")
	assert.False(t, ok)
	_, ok = Section(raw, "missing")
	assert.False(t, ok)
}
