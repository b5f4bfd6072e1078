package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GEMINI_API_KEY", "GOOGLE_GEMINI_API_KEY", "GOOGLE_AI_API_KEY", "CURATOR_DATA_DIR", "PORT", "DEBUG", "CURATOR_DEBUG"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	Reset()
	defer Reset()
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.Pipeline.OutputLimit)
	assert.Equal(t, 0.5, cfg.Pipeline.Jitter)
	assert.True(t, cfg.Pipeline.AdaptiveCrawl)
	assert.Equal(t, 10, cfg.Feeds.MaxItemsPerFeed)
	assert.Equal(t, "5s", cfg.Feeds.FeedTimeout)
	assert.Equal(t, "3s", cfg.Feeds.PageTimeout)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Empty(t, cfg.AI.Gemini.APIKey, "missing key is not an error")
	assert.False(t, HasGemini())
}

func TestLoadFromFileAndEnv(t *testing.T) {
	Reset()
	defer Reset()
	clearEnv(t)
	t.Setenv("GOOGLE_AI_API_KEY", "secret")
	t.Setenv("PORT", "9090")

	path := filepath.Join(t.TempDir(), "curator.yaml")
	yaml := `
pipeline:
  output_limit: 50
  jitter: 0
feeds:
  max_items_per_feed: 25
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Pipeline.OutputLimit)
	assert.Equal(t, 0.0, cfg.Pipeline.Jitter)
	assert.Equal(t, 25, cfg.Feeds.MaxItemsPerFeed)
	assert.Equal(t, "secret", cfg.AI.Gemini.APIKey)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.True(t, HasGemini())
}

func TestLoadInvalidDuration(t *testing.T) {
	Reset()
	defer Reset()
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("feeds:\n  feed_timeout: soon\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feeds.feed_timeout")
}

func TestLoadRejectsNegativeJitter(t *testing.T) {
	Reset()
	defer Reset()
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "jitter.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  jitter: -1\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.jitter")
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, Duration("5s", time.Second))
	assert.Equal(t, time.Second, Duration("", time.Second))
	assert.Equal(t, time.Second, Duration("nope", time.Second))
}

func TestIsValidAPIKey(t *testing.T) {
	assert.False(t, isValidAPIKey(""))
	assert.False(t, isValidAPIKey("YOUR_API_KEY"))
	assert.True(t, isValidAPIKey("AIza-real"))
}
