// Package pipeline aggregates every configured source into one ranked article list.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"curator/internal/core"
	"curator/internal/curation"
	"curator/internal/logger"
	"curator/internal/normalize"
	"curator/internal/store"
)

// OutputLimit is the default number of articles returned by FetchAllArticles.
const OutputLimit = 200

// Config holds pipeline configuration
type Config struct {
	OutputLimit    int  // Maximum articles returned
	AdaptiveCrawl  bool // Run the crawl pass and a second personalization pass
	MaxConcurrency int  // Sources resolved at once, 0 for unlimited
	Rand           *rand.Rand
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		OutputLimit:    OutputLimit,
		AdaptiveCrawl:  true,
		MaxConcurrency: 16,
	}
}

// Aggregator orchestrates resolve, normalize, score, personalize and rank.
type Aggregator struct {
	store        store.PreferenceStore
	resolver     SourceResolver
	normalizer   ArticleNormalizer
	scorer       ArticleScorer
	personalizer Personalizer // Optional
	expander     LinkExpander // Optional

	config *Config
	log    *slog.Logger
	runMu  sync.Mutex // One run at a time
}

// NewAggregator creates an Aggregator. personalizer and expander may be nil.
func NewAggregator(
	st store.PreferenceStore,
	resolver SourceResolver,
	normalizer ArticleNormalizer,
	scorer ArticleScorer,
	personalizer Personalizer,
	expander LinkExpander,
	config *Config,
) *Aggregator {
	if config == nil {
		config = DefaultConfig()
	}
	if config.OutputLimit <= 0 {
		config.OutputLimit = OutputLimit
	}
	if config.Rand == nil {
		config.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Aggregator{
		store:        st,
		resolver:     resolver,
		normalizer:   normalizer,
		scorer:       scorer,
		personalizer: personalizer,
		expander:     expander,
		config:       config,
		log:          logger.Get(),
	}
}

// FetchAllArticles runs the whole pipeline. It fails only when the site list or
// the preferences cannot be read; every other failure degrades the result.
func (a *Aggregator) FetchAllArticles(ctx context.Context) ([]core.Article, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	startTime := time.Now()

	sites, err := a.store.GetSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read sites: %w", err)
	}
	prefs, err := a.store.GetPreferences(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}

	pool := a.collect(ctx, sites, prefs)
	pool = normalize.Dedupe(pool)
	normalize.Shuffle(pool, a.config.Rand)
	a.log.Info("Aggregated articles", "sources", len(sites), "articles", len(pool))

	articles := pool
	if a.personalizer != nil {
		res := a.personalizer.Run(ctx, pool)
		articles = res.Articles

		if a.config.AdaptiveCrawl && a.expander != nil && res.Rubric != nil {
			articles = a.secondPass(ctx, pool, res)
		}
	}

	articles = Rank(articles, a.config.OutputLimit)
	a.log.Info("Pipeline complete", "articles", len(articles), "duration", time.Since(startTime))
	return articles, nil
}

// collect resolves, normalizes and scores every unblocked source concurrently.
// Per-source failures are absorbed by the resolver, so the group never cancels.
func (a *Aggregator) collect(ctx context.Context, sites []core.Source, prefs *core.Preferences) []core.Article {
	perSource := make([][]core.Article, len(sites))

	var g errgroup.Group
	if a.config.MaxConcurrency > 0 {
		g.SetLimit(a.config.MaxConcurrency)
	}
	for i, site := range sites {
		if site.Blocked || prefs.IsBlocked(site.URL) {
			a.log.Debug("Skipping blocked source", "source", site.URL)
			continue
		}
		g.Go(func() error {
			res := a.resolver.Resolve(ctx, site)
			if res.Empty() {
				return nil
			}
			articles := a.normalizer.Normalize(ctx, site, res)
			a.scorer.ScoreAll(articles, site, prefs)
			perSource[i] = articles
			a.log.Debug("Source resolved", "source", site.URL, "stage", res.Strategy, "count", len(articles))
			return nil
		})
	}
	_ = g.Wait()

	var all []core.Article
	for _, articles := range perSource {
		all = append(all, articles...)
	}
	return all
}

// secondPass crawls one hop from the best articles and personalizes again when
// the crawl found new text or new pages.
func (a *Aggregator) secondPass(ctx context.Context, pool []core.Article, first *curation.Result) []core.Article {
	crawl := a.expander.Expand(ctx, pool, first.Articles, first.Rubric)
	if !crawl.Changed() {
		return first.Articles
	}

	merged := make([]core.Article, 0, len(crawl.Articles)+len(crawl.Discovered))
	merged = append(merged, crawl.Articles...)
	merged = append(merged, crawl.Discovered...)
	merged = normalize.Dedupe(merged)

	a.log.Info("Re-running personalization after crawl",
		"discovered", len(crawl.Discovered), "full_text", crawl.FetchedText)
	return a.personalizer.Run(ctx, merged).Articles
}

// Rank sorts by descending score, keeping the input order for ties, and keeps at
// most limit articles.
func Rank(articles []core.Article, limit int) []core.Article {
	ranked := make([]core.Article, len(articles))
	copy(ranked, articles)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
