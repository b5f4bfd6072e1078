// Package relevance computes the heuristic priority of an article from its
// freshness and the user's site and topic preferences.
package relevance

import (
	"curator/internal/core"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Scoring constants.
const (
	// MaxFreshness is the score of an article published now; it decays one point per hour.
	MaxFreshness = 100.0
	// SiteWeight and TopicWeight multiply the stored preference scores.
	SiteWeight  = 10.0
	TopicWeight = 10.0
	// MaxPreferenceBonus bounds the absolute contribution of each preference.
	MaxPreferenceBonus = 100.0
	// DemotionPenalty exceeds every positive contribution combined, so a demoted
	// article always ranks below any article that is not demoted.
	DemotionPenalty = 1000.0
	// DefaultJitter is the upper bound of the random tie-breaker.
	DefaultJitter = 0.5
)

// Breakdown is the per-factor composition of a heuristic score.
type Breakdown struct {
	Freshness float64 `json:"freshness"`
	Site      float64 `json:"site"`
	Topic     float64 `json:"topic"`
	Demotion  float64 `json:"demotion"`
	Jitter    float64 `json:"jitter"`
}

// Total sums the factors.
func (b Breakdown) Total() float64 {
	return b.Freshness + b.Site + b.Topic - b.Demotion + b.Jitter
}

// Options configures a HeuristicScorer.
type Options struct {
	// Jitter is the exclusive upper bound of the random term; 0 disables it.
	Jitter float64
	Rand   *rand.Rand
	Now    func() time.Time
}

// HeuristicScorer is the fast, deterministic-up-to-jitter scorer applied to every
// article before any model stage.
type HeuristicScorer struct {
	jitter float64
	now    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewHeuristicScorer creates a scorer.
func NewHeuristicScorer(opts Options) *HeuristicScorer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Jitter < 0 {
		opts.Jitter = 0
	}
	return &HeuristicScorer{jitter: opts.Jitter, now: opts.Now, rng: opts.Rand}
}

// Score returns the heuristic score of an article from src.
func (s *HeuristicScorer) Score(a core.Article, src core.Source, prefs *core.Preferences) float64 {
	return s.Breakdown(a, src, prefs).Total()
}

// Breakdown returns the individual factors of the score.
func (s *HeuristicScorer) Breakdown(a core.Article, src core.Source, prefs *core.Preferences) Breakdown {
	var b Breakdown
	b.Freshness = Freshness(a.PublishedAt, s.now())

	if prefs != nil {
		b.Site = clampBonus(prefs.SiteScores[src.URL] * SiteWeight)
		b.Topic = clampBonus(prefs.TopicScores[src.Category] * TopicWeight)
		if prefs.IsDemoted(src.URL, src.Category) {
			b.Demotion = DemotionPenalty
		}
	}

	if s.jitter > 0 {
		s.mu.Lock()
		b.Jitter = s.rng.Float64() * s.jitter
		s.mu.Unlock()
	}
	return b
}

// ScoreAll sets Score on every article in place.
func (s *HeuristicScorer) ScoreAll(articles []core.Article, src core.Source, prefs *core.Preferences) {
	for i := range articles {
		articles[i].Score = s.Score(articles[i], src, prefs)
	}
}

// Freshness is max(0, 100 - hours since publication). Future dates count as now.
func Freshness(published, now time.Time) float64 {
	hours := now.Sub(published).Hours()
	if hours < 0 {
		hours = 0
	}
	return math.Max(0, MaxFreshness-hours)
}

func clampBonus(v float64) float64 {
	return math.Max(-MaxPreferenceBonus, math.Min(MaxPreferenceBonus, v))
}
