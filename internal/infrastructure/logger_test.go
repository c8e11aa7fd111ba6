package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"ncbproc/internal/config"
)

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "line %q", line)
		entries = append(entries, entry)
	}
	return entries
}

func TestInitializeLogger(t *testing.T) {
	ResetLoggerForTesting()
	previous := slog.Default()
	t.Cleanup(func() {
		ResetLoggerForTesting()
		slog.SetDefault(previous)
	})

	logFile := filepath.Join(t.TempDir(), "logs", "test.log")
	var console bytes.Buffer
	consoleOutput = &console
	t.Cleanup(func() { consoleOutput = os.Stderr })

	logger, err := InitializeLogger(config.LoggingConfig{
		Level:    "info",
		Format:   "json",
		Output:   "both",
		FilePath: logFile,
	})
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Same(t, logger, GetLogger())

	logger.Info("test message", "key", "value")
	logger.Debug("hidden")
	require.NoError(t, CloseLogFile())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	entries := decodeLines(t, content)
	require.Len(t, entries, 1)
	assert.Equal(t, "test message", entries[0]["msg"])
	assert.Equal(t, "value", entries[0]["key"])
	assert.Equal(t, "INFO", entries[0]["level"])

	assert.Equal(t, content, console.Bytes(), "both writes the same lines to console and file")

	second, err := InitializeLogger(config.LoggingConfig{Level: "debug", Output: "console"})
	require.NoError(t, err)
	assert.Same(t, logger, second, "only the first call configures the logger")
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		cfg    config.LoggingConfig
		check  func(t *testing.T, out string)
		logErr string
	}{
		{
			name: "json console",
			cfg:  config.LoggingConfig{Level: "info", Format: "json", Output: "console"},
			check: func(t *testing.T, out string) {
				entries := decodeLines(t, []byte(out))
				require.Len(t, entries, 1)
				assert.Equal(t, "hello", entries[0]["msg"])
			},
		},
		{
			name: "text format",
			cfg:  config.LoggingConfig{Level: "info", Format: "text", Output: "console"},
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "msg=hello")
				assert.Contains(t, out, "level=INFO")
			},
		},
		{
			name: "warn level filters info",
			cfg:  config.LoggingConfig{Level: "warn", Format: "json", Output: "console"},
			check: func(t *testing.T, out string) {
				assert.Empty(t, out)
			},
		},
		{
			name:   "file output without path",
			cfg:    config.LoggingConfig{Level: "info", Format: "json", Output: "file"},
			logErr: "log file path is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, file, err := NewLogger(tt.cfg, &buf)
			if tt.logErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.logErr)
				return
			}
			require.NoError(t, err)
			assert.Nil(t, file)

			logger.Info("hello")
			tt.check(t, buf.String())
		})
	}
}

func TestTraceHandlerInjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := NewLogger(config.LoggingConfig{Level: "debug", Format: "json", Output: "console"}, &buf)
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithRunID(ctx, "run-1")
	logger.With("component", "test").InfoContext(ctx, "with ids")
	logger.Info("without ids")

	entries := decodeLines(t, buf.Bytes())
	require.Len(t, entries, 2)

	assert.Equal(t, "req-1", entries[0]["request_id"])
	assert.Equal(t, "run-1", entries[0]["run_id"])
	assert.Equal(t, span.SpanContext().TraceID().String(), entries[0]["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entries[0]["span_id"])
	assert.Equal(t, "test", entries[0]["component"])

	assert.NotContains(t, entries[1], "request_id")
	assert.NotContains(t, entries[1], "trace_id")
}

func TestParseLevel(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "warn", "warning", "error"} {
		_, err := ParseLevel(level)
		assert.NoError(t, err, level)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
	assert.Equal(t, parseLogLevel("warning"), parseLogLevel("warn"))
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetRunID(ctx))

	ctx = EnsureRequestID(ctx)
	id := GetRequestID(ctx)
	assert.Len(t, id, 36)
	assert.Equal(t, id, GetRequestID(EnsureRequestID(ctx)), "existing ID is kept")

	ctx, runID := EnsureRunID(ctx)
	assert.Equal(t, runID, GetRunID(ctx))
	_, again := EnsureRunID(ctx)
	assert.Equal(t, runID, again)
	assert.NotEqual(t, id, runID)
}

func TestLoggerHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := NewLogger(config.LoggingConfig{Level: "info", Format: "json", Output: "console"}, &buf)
	require.NoError(t, err)

	WithError(WithComponent(logger, "exporter"), os.ErrNotExist).Info("failed")
	assert.Same(t, logger, WithError(logger, nil))

	entries := decodeLines(t, buf.Bytes())
	require.Len(t, entries, 1)
	assert.Equal(t, "exporter", entries[0]["component"])
	assert.Equal(t, os.ErrNotExist.Error(), entries[0]["error"])
}
