package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Log attribute keys shared by selection components.
const (
	LogKeyComponent   = "component"
	LogKeyCandidate   = "candidate"
	LogKeySelectionID = "selection_id"
	LogKeyTraceID     = "trace_id"
	LogKeySpanID      = "span_id"
)

// Logger is a structured slog logger that knows how to pull selection and
// span identifiers out of a context.
type Logger struct {
	logger *slog.Logger
	level  slog.Level
}

// LogConfig configures the logger. Output defaults to stderr so that command
// output on stdout stays machine readable.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	Output io.Writer
}

// NewLogger creates a structured logger.
func NewLogger(config LogConfig) *Logger {
	level := ParseLevel(config.Level)
	output := config.Output
	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(config.Format), "json") {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	return &Logger{logger: slog.New(handler), level: level}
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Enabled reports whether records at level would be written.
func (l *Logger) Enabled(level slog.Level) bool {
	return level >= l.level
}

// With returns a logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With(args...), level: l.level}
}

// WithComponent scopes the logger to a named component.
func (l *Logger) WithComponent(component string) *Logger {
	if component == "" {
		return l
	}
	return l.With(LogKeyComponent, component)
}

// WithContext adds the selection id and the active span's trace and span ids
// found in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	var args []any
	if id := SelectionIDFromContext(ctx); id != "" {
		args = append(args, LogKeySelectionID, id)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		args = append(args, LogKeyTraceID, sc.TraceID().String(), LogKeySpanID, sc.SpanID().String())
	}
	return l.With(args...)
}

// Slog exposes the underlying slog logger.
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// Log writes msg at level.
func (l *Logger) Log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	l.WithContext(ctx).logger.Log(ctx, level, msg, args...)
}

func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

type contextKey struct{}

var selectionIDKey contextKey

// ContextWithSelectionID tags ctx with the id of the selection round it
// belongs to.
func ContextWithSelectionID(ctx context.Context, selectionID string) context.Context {
	if selectionID == "" {
		return ctx
	}
	return context.WithValue(ctx, selectionIDKey, selectionID)
}

// SelectionIDFromContext returns the selection round id carried by ctx.
func SelectionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(selectionIDKey).(string)
	return id
}
