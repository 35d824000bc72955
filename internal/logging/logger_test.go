package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewLogger_JSONWithQueryID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "debug", Format: "json", Output: &buf})

	logger.WithQueryID("q-1").Debug("plan built", slog.Int("steps", 2))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "plan built", record["msg"])
	assert.Equal(t, "q-1", record["query_id"])
	assert.Equal(t, float64(2), record["steps"])
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "warn", Output: &buf})
	logger.Info("hidden")
	assert.Empty(t, buf.String())
	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewLogger_WithLoggerProvider(t *testing.T) {
	var buf bytes.Buffer
	provider := sdklog.NewLoggerProvider()
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	logger := NewLogger(Config{Level: "info", Output: &buf, LoggerProvider: provider})
	_, ok := logger.Handler().(*multiHandler)
	require.True(t, ok)

	logger.WithFields("edge", "Record.employee").WithGroup("batch").Info("step fetched")
	assert.Contains(t, buf.String(), "step fetched")
	assert.Contains(t, buf.String(), "edge=Record.employee")
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.NotNil(t, FromContext(ctx))
	assert.Empty(t, GetQueryID(ctx))

	logger := NewLogger(Config{Output: &bytes.Buffer{}})
	ctx = WithLogger(ctx, logger)
	ctx = WithQueryIDContext(ctx, "q-2")
	assert.Same(t, logger, FromContext(ctx))
	assert.Equal(t, "q-2", GetQueryID(ctx))
}
