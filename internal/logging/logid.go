package logging

import (
	"context"

	"github.com/edgeandnode/candidate-selection/internal/observability"
)

// WithSelectionID tags log lines with a selection round id. Structured
// loggers get a selection_id attribute; other loggers get a message prefix.
func WithSelectionID(logger Logger, selectionID string) Logger {
	if IsNil(logger) {
		return Nop()
	}
	if selectionID == "" {
		return logger
	}
	if sl, ok := logger.(*structuredLogger); ok {
		return sl.with(observability.LogKeySelectionID, selectionID)
	}
	return &prefixLogger{logger: logger, prefix: "selection=" + selectionID + " "}
}

// FromContext tags logger with the selection id carried by ctx, if any.
func FromContext(ctx context.Context, logger Logger) Logger {
	return WithSelectionID(logger, observability.SelectionIDFromContext(ctx))
}

type prefixLogger struct {
	logger Logger
	prefix string
}

func (l *prefixLogger) Debug(format string, args ...any) { l.logger.Debug(l.prefix+format, args...) }
func (l *prefixLogger) Info(format string, args ...any)  { l.logger.Info(l.prefix+format, args...) }
func (l *prefixLogger) Warn(format string, args ...any)  { l.logger.Warn(l.prefix+format, args...) }
func (l *prefixLogger) Error(format string, args ...any) { l.logger.Error(l.prefix+format, args...) }
