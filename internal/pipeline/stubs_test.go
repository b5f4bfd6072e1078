package pipeline

import (
	"context"

	"curator/internal/core"
	"curator/internal/sources"
)

type staticResolver struct{}

func (staticResolver) Resolve(ctx context.Context, src core.Source) sources.Result {
	return sources.Result{Stubs: []sources.Stub{{Title: "placeholder", Link: src.URL}}, Strategy: "static"}
}

type staticNormalizer struct {
	articles []core.Article
}

func (n staticNormalizer) Normalize(ctx context.Context, src core.Source, res sources.Result) []core.Article {
	out := make([]core.Article, len(n.articles))
	copy(out, n.articles)
	return out
}

type noopScorer struct{}

func (noopScorer) ScoreAll(articles []core.Article, src core.Source, prefs *core.Preferences) {}
