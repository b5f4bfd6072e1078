package pipeline

import (
	"context"

	"curator/internal/core"
	"curator/internal/curation"
	"curator/internal/sources"
)

// SourceResolver turns a configured source into feed items or scraped stubs
type SourceResolver interface {
	// Resolve never fails; an empty result means the source produced nothing
	Resolve(ctx context.Context, src core.Source) sources.Result
}

// ArticleNormalizer converts a resolver result into articles
type ArticleNormalizer interface {
	Normalize(ctx context.Context, src core.Source, res sources.Result) []core.Article
}

// ArticleScorer assigns the heuristic score
type ArticleScorer interface {
	ScoreAll(articles []core.Article, src core.Source, prefs *core.Preferences)
}

// Personalizer runs the AI stages over the aggregated articles
type Personalizer interface {
	Run(ctx context.Context, articles []core.Article) *curation.Result
}

// LinkExpander performs the adaptive crawl between two personalization passes
type LinkExpander interface {
	Expand(ctx context.Context, pool, curated []core.Article, rubric *core.Rubric) curation.CrawlResult
}
