package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestSetup(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := Setup("warn", "json", &buf)
		logger.Info("dropped")
		slog.Warn("kept", "song_id", "abc")

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 1)
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
		assert.Equal(t, "kept", entry["msg"])
		assert.Equal(t, "abc", entry["song_id"])
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		Setup("debug", "text", &buf).Debug("hello", "k", "v")
		assert.Contains(t, buf.String(), "msg=hello")
		assert.Contains(t, buf.String(), "k=v")
	})
}
