package relevance

import (
	"curator/internal/core"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newScorer(jitter float64) *HeuristicScorer {
	return NewHeuristicScorer(Options{
		Jitter: jitter,
		Rand:   rand.New(rand.NewSource(1)),
		Now:    func() time.Time { return now },
	})
}

func TestFreshness(t *testing.T) {
	assert.Equal(t, 100.0, Freshness(now, now))
	assert.Equal(t, 90.0, Freshness(now.Add(-10*time.Hour), now))
	assert.Equal(t, 0.0, Freshness(now.Add(-200*time.Hour), now))
	assert.Equal(t, 100.0, Freshness(now.Add(5*time.Hour), now), "future dates count as now")
}

func TestScore_Preferences(t *testing.T) {
	s := newScorer(0)
	src := core.Source{URL: "https://a.example/feed", Category: "Tech"}
	prefs := core.DefaultPreferences()
	prefs.SiteScores[src.URL] = 2
	prefs.TopicScores["Tech"] = 0.5

	a := core.Article{PublishedAt: now.Add(-20 * time.Hour)}
	assert.InDelta(t, 80+20+5, s.Score(a, src, prefs), 1e-9)
}

func TestScore_PreferenceBonusClamped(t *testing.T) {
	s := newScorer(0)
	src := core.Source{URL: "https://a.example/feed", Category: "Tech"}
	prefs := core.DefaultPreferences()
	prefs.SiteScores[src.URL] = 500
	prefs.TopicScores["Tech"] = -500

	b := s.Breakdown(core.Article{PublishedAt: now}, src, prefs)
	assert.Equal(t, MaxPreferenceBonus, b.Site)
	assert.Equal(t, -MaxPreferenceBonus, b.Topic)
}

func TestScore_FreshnessMonotonic(t *testing.T) {
	s := newScorer(0)
	src := core.Source{URL: "https://a.example/feed", Category: "Tech"}
	prefs := core.DefaultPreferences()

	prev := s.Score(core.Article{PublishedAt: now}, src, prefs)
	for h := 1; h <= 120; h++ {
		cur := s.Score(core.Article{PublishedAt: now.Add(-time.Duration(h) * time.Hour)}, src, prefs)
		assert.LessOrEqual(t, cur, prev, "hour %d", h)
		prev = cur
	}
}

func TestScore_DemotionDominates(t *testing.T) {
	s := newScorer(DefaultJitter)
	demoted := core.Source{URL: "https://b.example/feed", Category: "Sports"}
	normal := core.Source{URL: "https://a.example/feed", Category: "Tech"}

	prefs := core.DefaultPreferences()
	prefs.DemotedSites = append(prefs.DemotedSites, demoted.URL)
	prefs.SiteScores[demoted.URL] = 1000
	prefs.TopicScores["Sports"] = 1000
	prefs.SiteScores[normal.URL] = -1000
	prefs.TopicScores["Tech"] = -1000

	best := s.Score(core.Article{PublishedAt: now}, demoted, prefs)
	worst := s.Score(core.Article{PublishedAt: now.Add(-1000 * time.Hour)}, normal, prefs)
	assert.Less(t, best, worst)
}

func TestScore_DemotedTopic(t *testing.T) {
	s := newScorer(0)
	src := core.Source{URL: "https://a.example/feed", Category: "Sports"}
	prefs := core.DefaultPreferences()
	prefs.DemotedTopics = []string{"Sports"}

	b := s.Breakdown(core.Article{PublishedAt: now}, src, prefs)
	assert.Equal(t, DemotionPenalty, b.Demotion)
	assert.Equal(t, 100-DemotionPenalty, b.Total())
}

func TestScore_JitterBounded(t *testing.T) {
	s := newScorer(DefaultJitter)
	src := core.Source{URL: "https://a.example/feed"}
	for i := 0; i < 200; i++ {
		b := s.Breakdown(core.Article{PublishedAt: now}, src, nil)
		assert.GreaterOrEqual(t, b.Jitter, 0.0)
		assert.Less(t, b.Jitter, DefaultJitter)
	}
}

func TestScoreAll(t *testing.T) {
	s := newScorer(0)
	articles := []core.Article{{PublishedAt: now}, {PublishedAt: now.Add(-50 * time.Hour)}}
	s.ScoreAll(articles, core.Source{URL: "x"}, core.DefaultPreferences())
	assert.Equal(t, 100.0, articles[0].Score)
	assert.Equal(t, 50.0, articles[1].Score)
}
