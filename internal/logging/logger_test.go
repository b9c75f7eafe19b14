package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgeandnode/candidate-selection/internal/observability"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Debug(format string, args ...any) { r.lines = append(r.lines, format) }
func (r *recordingLogger) Info(format string, args ...any)  { r.lines = append(r.lines, format) }
func (r *recordingLogger) Warn(format string, args ...any)  { r.lines = append(r.lines, format) }
func (r *recordingLogger) Error(format string, args ...any) { r.lines = append(r.lines, format) }

func TestOrNopHandlesTypedNilPointers(t *testing.T) {
	var rec *recordingLogger
	var logger Logger = rec
	assert.True(t, IsNil(logger))

	safe := OrNop(logger)
	assert.False(t, IsNil(safe))
	safe.Info("hello %s", "world")
}

func TestFromObservabilityFormatsMessages(t *testing.T) {
	buf := &bytes.Buffer{}
	base := observability.NewLogger(observability.LogConfig{Level: "info", Format: "text", Output: buf})

	logger := FromObservability(base, "engine")
	logger.Info("hello %s", "world")
	logger.Debug("suppressed %s", "debug")

	assert.Contains(t, buf.String(), "hello world")
	assert.Contains(t, buf.String(), "component=engine")
	assert.NotContains(t, buf.String(), "suppressed")
	assert.Equal(t, Nop(), FromObservability(nil, "engine"))
}

func TestFromContextPrefixesPlainLoggers(t *testing.T) {
	rec := &recordingLogger{}
	ctx := observability.ContextWithSelectionID(context.Background(), "sel-1")

	FromContext(ctx, rec).Info("picked %s", "a")
	FromContext(context.Background(), rec).Info("plain")

	assert.Equal(t, []string{"selection=sel-1 picked %s", "plain"}, rec.lines)
	assert.Equal(t, Nop(), WithSelectionID(nil, "sel-1"))
}

func TestFromContextTagsStructuredLoggers(t *testing.T) {
	buf := &bytes.Buffer{}
	base := observability.NewLogger(observability.LogConfig{Level: "debug", Format: "json", Output: buf})
	ctx := observability.ContextWithSelectionID(context.Background(), "sel-2")

	FromContext(ctx, FromObservability(base, "engine")).Warn("skipped %d", 2)

	assert.Contains(t, buf.String(), `"selection_id":"sel-2"`)
	assert.Contains(t, buf.String(), `"msg":"skipped 2"`)
	assert.NotContains(t, buf.String(), "selection=sel-2")
}

func TestSetDefaultRoutesComponentLoggers(t *testing.T) {
	previous := Default()
	t.Cleanup(func() { SetDefault(previous) })

	buf := &bytes.Buffer{}
	SetDefault(observability.NewLogger(observability.LogConfig{Level: "debug", Format: "json", Output: buf}))
	SetDefault(nil)

	NewComponentLogger("stats").Debug("observed %d", 3)
	assert.Contains(t, buf.String(), `"msg":"observed 3"`)
	assert.Contains(t, buf.String(), `"component":"stats"`)
}
