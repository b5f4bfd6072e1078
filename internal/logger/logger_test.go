package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestConfigureJSON(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf, "info", "json")

	Debug("hidden")
	Error("fetch failed", errors.New("boom"), "url", "https://a.example")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "fetch failed", entry["msg"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "https://a.example", entry["url"])
}

func TestConfigureText(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf, "debug", "text")

	Debug("scoring", "articles", 3)
	assert.Contains(t, buf.String(), "msg=scoring")
	assert.Contains(t, buf.String(), "articles=3")
}
