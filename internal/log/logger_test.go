package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetForTest() {
	logger = nil
	once = *new(sync.Once)
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestSetupWriterLevel(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	var buf bytes.Buffer
	SetupWriter(&buf, "WARN")

	Get().Info("dropped")
	assert.Zero(t, buf.Len(), "info must be filtered at WARN")

	Get().Warn("kept", "k", 1)
	out := decodeLine(t, &buf)
	assert.Equal(t, "kept", out["msg"])
	assert.Equal(t, "WARN", out["level"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestSetupWriterFirstCallWins(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	var first, second bytes.Buffer
	SetupWriter(&first, "INFO")
	SetupWriter(&second, "DEBUG")

	Get().Debug("dropped")
	Get().Info("kept")
	assert.Zero(t, second.Len())
	assert.Equal(t, "kept", decodeLine(t, &first)["msg"])
}

func TestWithComponent(t *testing.T) {
	t.Cleanup(resetForTest)

	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))

	WithComponent("generate").Info("hello", KeyRunID, "run-123")
	out := decodeLine(t, &buf)
	assert.Equal(t, "generate", out[KeyComponent])
	assert.Equal(t, "run-123", out[KeyRunID])
	assert.Equal(t, "hello", out["msg"])
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}
