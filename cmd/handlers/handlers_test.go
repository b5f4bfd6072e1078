package handlers

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator/internal/config"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("CURATOR_DATA_DIR", filepath.Join(dir, "data"))
	for _, key := range []string{"GEMINI_API_KEY", "GOOGLE_GEMINI_API_KEY", "GOOGLE_AI_API_KEY", "AI_GEMINI_API_KEY"} {
		t.Setenv(key, "")
	}
	config.Reset()
	t.Cleanup(config.Reset)
	return dir
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	config.Reset()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSiteCommands(t *testing.T) {
	dir := setupEnv(t)

	list := filepath.Join(dir, "sites.txt")
	require.NoError(t, os.WriteFile(list, []byte(
		"# my sources\nhttps://a.example/feed.xml|Tech\nhttps://b.example/rss|Science\n"), 0o644))

	out, err := runCmd(t, "site", "import", list)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 sources")

	out, err = runCmd(t, "site", "add", "c.example/blog", "--category", "News")
	require.NoError(t, err)
	assert.Contains(t, out, "Added https://c.example/blog (News)")

	out, err = runCmd(t, "site", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "https://a.example/feed.xml")
	assert.Contains(t, out, "Science")
	assert.Contains(t, out, "Total: 3 sources")

	_, err = runCmd(t, "action", "block-site", `{"siteUrl":"https://b.example/rss"}`)
	require.NoError(t, err)

	out, err = runCmd(t, "site", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "blocked")
}

func TestSiteAdd_InvalidURL(t *testing.T) {
	setupEnv(t)
	_, err := runCmd(t, "site", "add", "ftp://files.example/x")
	assert.Error(t, err)
}

func TestActionCommand(t *testing.T) {
	setupEnv(t)

	out, err := runCmd(t, "action", "demote-topic", `{"topic":"Gossip"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "Applied demote-topic")

	_, err = runCmd(t, "action", "subscribe")
	assert.Error(t, err)

	_, err = runCmd(t, "action", "click", `{"siteUrl":""}`)
	assert.Error(t, err)

	_, err = runCmd(t, "action", "click", `{not json`)
	assert.Error(t, err)
}

func TestQuestionsCommand_Empty(t *testing.T) {
	setupEnv(t)
	out, err := runCmd(t, "questions")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending questions.")
}

func TestAnswerCommand_UnknownQuestion(t *testing.T) {
	setupEnv(t)
	_, err := runCmd(t, "answer", "missing", "Yes")
	assert.Error(t, err)
}

func TestFeedCommand_DryRunNoSources(t *testing.T) {
	setupEnv(t)
	out, err := runCmd(t, "feed", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "No articles.")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("  short ", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
