package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"sync/atomic"

	"github.com/edgeandnode/candidate-selection/internal/observability"
)

// Logger is the printf-style contract every selection component logs through.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when usable, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

var defaultLogger atomic.Pointer[observability.Logger]

func init() {
	defaultLogger.Store(observability.NewLogger(observability.LogConfig{
		Level:  "warn",
		Format: "text",
		Output: os.Stderr,
	}))
}

// SetDefault replaces the process-wide structured logger used by component
// loggers created afterwards. Nil is ignored.
func SetDefault(logger *observability.Logger) {
	if logger != nil {
		defaultLogger.Store(logger)
	}
}

// Default returns the process-wide structured logger.
func Default() *observability.Logger {
	return defaultLogger.Load()
}

// NewComponentLogger returns the default logger scoped to component.
func NewComponentLogger(component string) Logger {
	return FromObservability(Default(), component)
}

// FromObservability adapts a structured logger to the printf contract.
// Messages are only formatted when their level is enabled.
func FromObservability(logger *observability.Logger, component string) Logger {
	if logger == nil {
		return Nop()
	}
	return &structuredLogger{logger: logger.WithComponent(component)}
}

type structuredLogger struct {
	logger *observability.Logger
}

func (l *structuredLogger) logf(level slog.Level, format string, args []any) {
	if !l.logger.Enabled(level) {
		return
	}
	l.logger.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

func (l *structuredLogger) with(args ...any) *structuredLogger {
	return &structuredLogger{logger: l.logger.With(args...)}
}

func (l *structuredLogger) Debug(format string, args ...any) { l.logf(slog.LevelDebug, format, args) }
func (l *structuredLogger) Info(format string, args ...any)  { l.logf(slog.LevelInfo, format, args) }
func (l *structuredLogger) Warn(format string, args ...any)  { l.logf(slog.LevelWarn, format, args) }
func (l *structuredLogger) Error(format string, args ...any) { l.logf(slog.LevelError, format, args) }
