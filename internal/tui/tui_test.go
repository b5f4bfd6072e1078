package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator/internal/core"
	"curator/internal/services"
	"curator/internal/store"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func testArticles() []core.Article {
	return []core.Article{
		{ID: "a1", Title: "First story", URL: "https://a.example/1", SourceID: "https://a.example/feed", SourceName: "A", Topic: "Tech", Score: 90},
		{ID: "b1", Title: "Second story", URL: "https://b.example/1", SourceID: "https://b.example/feed", SourceName: "B", Topic: "Gossip", Score: 40,
			Explanation: &core.Explanation{Why: []string{"matches stable interests"}}},
	}
}

func press(t *testing.T, m Model, k string) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(key(k))
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestNavigation(t *testing.T) {
	m := NewModel(testArticles(), nil)

	m, _ = press(t, m, "k")
	a, _ := m.Selected()
	assert.Equal(t, "a1", a.ID)

	m, _ = press(t, m, "j")
	m, _ = press(t, m, "j")
	a, _ = m.Selected()
	assert.Equal(t, "b1", a.ID)

	view := m.View()
	assert.Contains(t, view, "Second story")
	assert.Contains(t, view, "matches stable interests")
}

func TestQuit(t *testing.T) {
	m := NewModel(testArticles(), nil)
	m, cmd := press(t, m, "q")
	require.NotNil(t, cmd)
	assert.Equal(t, "Quitting...\n", m.View())
}

func TestActionsDispatch(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	m := NewModel(testArticles(), services.NewDispatcher(st, nil))

	m, cmd := press(t, m, "enter")
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	m = next.(Model)
	assert.Contains(t, m.View(), "Marked as read")

	m, _ = press(t, m, "j")
	_, cmd = press(t, m, "t")
	require.NotNil(t, cmd)
	cmd()

	_, cmd = press(t, m, "b")
	require.NotNil(t, cmd)
	next, _ = m.Update(cmd())
	assert.Contains(t, next.(Model).View(), "Source blocked")

	prefs, err := st.GetPreferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, prefs.SiteScores["https://a.example/feed"])
	assert.Equal(t, []string{"a1"}, prefs.ClickHistory)
	assert.Equal(t, []string{"Gossip"}, prefs.DemotedTopics)
	assert.True(t, prefs.IsBlocked("https://b.example/feed"))
}

func TestReadOnlyWithoutDispatcher(t *testing.T) {
	m := NewModel(testArticles(), nil)
	_, cmd := press(t, m, "enter")
	assert.Nil(t, cmd)
}

func TestEmptyFeed(t *testing.T) {
	m := NewModel(nil, nil)
	assert.Contains(t, m.View(), "No articles loaded.")
	_, ok := m.Selected()
	assert.False(t, ok)
}
