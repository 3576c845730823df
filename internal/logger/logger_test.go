package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/workflowrt/internal/config"
)

// bufferLogger builds a Logger writing JSON into buf, at the given level.
func bufferLogger(buf *bytes.Buffer, level slog.Level) *Logger {
	handler := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level})
	return &Logger{logger: slog.New(handler)}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
	}{
		{"json info", "info", "json"},
		{"text debug", "debug", "text"},
		{"json error", "error", "json"},
		{"unknown level falls back", "verbose", "json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(config.LoggingConfig{Level: tt.level, Format: tt.format})
			require.NotNil(t, l)
			require.NotNil(t, l.logger)
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("anything-else"))
}

func TestStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf, slog.LevelInfo)

	l.Info("run started", "runId", "run-42", "workflowId", "wf-7")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "run started", entry["msg"])
	assert.Equal(t, "run-42", entry["runId"])
	assert.Equal(t, "wf-7", entry["workflowId"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf, slog.LevelWarn)

	l.Debug("node skipped")
	l.Info("node completed")
	assert.Zero(t, buf.Len(), "below-level messages must be dropped")

	l.Warn("node retrying")
	assert.NotZero(t, buf.Len())
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf, slog.LevelInfo)

	runLogger := l.With("runId", "run-9")
	runLogger.Info("node dispatched", "nodeId", "mapper")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "run-9", entry["runId"])
	assert.Equal(t, "mapper", entry["nodeId"])
}

func TestContextVariants(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf, slog.LevelDebug)
	ctx := context.Background()

	l.DebugContext(ctx, "a")
	l.InfoContext(ctx, "b")
	l.WarnContext(ctx, "c")
	l.ErrorContext(ctx, "d")

	assert.Equal(t, 4, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestWithContextReturnsLogger(t *testing.T) {
	l := New(config.LoggingConfig{Level: "info", Format: "json"})
	assert.Same(t, l, l.WithContext(context.Background()))
}

func TestDefaultLogger(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	require.NotNil(t, Default(), "package must always carry a usable default")

	replacement := New(config.LoggingConfig{Level: "debug", Format: "text"})
	SetDefault(replacement)
	assert.Same(t, replacement, Default())

	// Package-level convenience functions route through the default.
	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")
}
