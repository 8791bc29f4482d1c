package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"Warn":    LevelWarn,
		"warning": LevelWarn,
		"ERROR":   LevelError,
		"fatal":   LevelFatal,
	}
	for in, expected := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, expected, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestSetLogLevelFiltersMessages(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := Replace(zap.New(observedAtLevel{Core: core}))
	defer restore()
	defer SetLogLevel("INFO")

	SetLogLevel("WARN")
	assert.Equal(t, LevelWarn, GetLogLevel())
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)
	Errorf("shown %d", 3)

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "shown 2", logs.All()[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[1].Level)

	SetLogLevel("DEBUG")
	Debugf("now visible")
	assert.Equal(t, 3, logs.Len())
}

func TestFxLoggerAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	adapter := &FxLoggerAdapter{log: func() *zap.Logger { return zap.New(core) }}

	adapter.LogEvent(&fxevent.OnStartExecuting{FunctionName: "main.run.func1", CallerName: "main"})
	adapter.LogEvent(&fxevent.Invoked{FunctionName: "main.run", Err: errors.New("boom")})
	adapter.LogEvent(&fxevent.Provided{ConstructorName: "pkg.NewThing", OutputTypeNames: []string{"*pkg.Thing"}})

	require.Equal(t, 3, logs.Len())
	entries := logs.All()
	assert.Equal(t, "main.run", entries[0].ContextMap()["callee"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "provided", entries[2].Message)
}

// observedAtLevel forwards to the observer but honours the package level.
type observedAtLevel struct {
	zapcore.Core
}

func (o observedAtLevel) Enabled(l zapcore.Level) bool {
	return level.Enabled(l)
}

func (o observedAtLevel) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if o.Enabled(ent.Level) {
		return ce.AddCore(ent, o)
	}
	return ce
}

func (o observedAtLevel) With(fields []zapcore.Field) zapcore.Core {
	return observedAtLevel{Core: o.Core.With(fields)}
}
