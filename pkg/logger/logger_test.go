package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitText(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { Reset(); slog.SetDefault(prev) })

	buf := &bytes.Buffer{}
	Init(Config{Level: "info", Format: "text", Output: buf})

	Default().Info("test message", "key", "value")
	Default().Debug("hidden")
	assert.Contains(t, buf.String(), "test message")
	assert.Contains(t, buf.String(), "key=value")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestInitJSONWithContext(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { Reset(); slog.SetDefault(prev) })

	buf := &bytes.Buffer{}
	Init(Config{Level: "debug", Format: "json", Output: buf})

	ctx := SetRunID(SetRequestID(context.Background(), "req-1"), "run-9")
	WithContext(ctx).Debug("step")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "step", line["msg"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "run-9", line["run_id"])
}

func TestDefaultBeforeInit(t *testing.T) {
	Reset()
	assert.NotNil(t, Default())
	assert.Equal(t, "", GetRequestID(context.Background()))
	assert.Equal(t, "", GetRunID(context.Background()))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"loud":    slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
}
