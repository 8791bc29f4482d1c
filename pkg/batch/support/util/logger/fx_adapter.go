package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// FxLoggerAdapter reports Fx container events as structured log entries.
// Routine wiring events are logged at DEBUG so that a normal start stays quiet.
type FxLoggerAdapter struct {
	log func() *zap.Logger
}

// NewFxLoggerAdapter creates an fxevent.Logger backed by the package logger.
func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{log: func() *zap.Logger { return L().Named("fx") }}
}

// LogEvent logs events from Fx.
func (a *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	l := a.log()
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		l.Debug("OnStart hook executing", zap.String("callee", shortFuncName(e.FunctionName)), zap.String("caller", e.CallerName))
	case *fxevent.OnStartExecuted:
		if e.Err != nil {
			l.Error("OnStart hook failed", zap.String("callee", shortFuncName(e.FunctionName)), zap.Error(e.Err))
			return
		}
		l.Debug("OnStart hook executed", zap.String("callee", shortFuncName(e.FunctionName)), zap.Duration("runtime", e.Runtime))
	case *fxevent.OnStopExecuting:
		l.Debug("OnStop hook executing", zap.String("callee", shortFuncName(e.FunctionName)))
	case *fxevent.OnStopExecuted:
		if e.Err != nil {
			l.Error("OnStop hook failed", zap.String("callee", shortFuncName(e.FunctionName)), zap.Error(e.Err))
			return
		}
		l.Debug("OnStop hook executed", zap.String("callee", shortFuncName(e.FunctionName)), zap.Duration("runtime", e.Runtime))
	case *fxevent.Supplied:
		if e.Err != nil {
			l.Error("supply failed", zap.String("type", e.TypeName), zap.Error(e.Err))
			return
		}
		l.Debug("supplied", zap.String("type", e.TypeName))
	case *fxevent.Provided:
		if e.Err != nil {
			l.Error("provide failed", zap.String("constructor", e.ConstructorName), zap.Error(e.Err))
			return
		}
		l.Debug("provided", zap.String("constructor", shortFuncName(e.ConstructorName)), zap.Strings("types", e.OutputTypeNames))
	case *fxevent.Decorated:
		if e.Err != nil {
			l.Error("decorate failed", zap.String("decorator", e.DecoratorName), zap.Error(e.Err))
		}
	case *fxevent.Invoking:
		l.Debug("invoking", zap.String("function", shortFuncName(e.FunctionName)))
	case *fxevent.Invoked:
		if e.Err != nil {
			l.Error("invoke failed", zap.String("function", e.FunctionName), zap.Error(e.Err), zap.String("stack", e.Trace))
		}
	case *fxevent.Stopping:
		l.Debug("received signal", zap.String("signal", strings.ToUpper(e.Signal.String())))
	case *fxevent.Stopped:
		if e.Err != nil {
			l.Error("stop failed", zap.Error(e.Err))
		}
	case *fxevent.RollingBack:
		l.Error("start failed, rolling back", zap.Error(e.StartErr))
	case *fxevent.RolledBack:
		if e.Err != nil {
			l.Error("rollback failed", zap.Error(e.Err))
		}
	case *fxevent.Started:
		if e.Err != nil {
			l.Error("start failed", zap.Error(e.Err))
			return
		}
		l.Debug("started")
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			l.Error("custom logger initialization failed", zap.Error(e.Err))
			return
		}
		l.Debug("initialized custom fxevent.Logger", zap.String("function", e.ConstructorName))
	}
}

// shortFuncName strips the anonymous function suffix (".func1") Fx reports for closures.
func shortFuncName(name string) string {
	if idx := strings.LastIndex(name, ".func"); idx != -1 {
		return name[:idx]
	}
	return name
}
