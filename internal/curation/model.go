// Package curation implements the AI personalization stages that run after the
// heuristic scorer: rubric resolution, triage, candidate selection, content cards,
// detailed scoring, reputation feedback, semantic deduplication, question
// generation and the adaptive crawl.
package curation

import (
	"context"
	"errors"

	"curator/internal/core"
	"curator/internal/fetch"
)

// ErrNoModel is returned by operations that cannot degrade without a model.
var ErrNoModel = errors.New("no language model configured")

// TriageResult is the verdict for one article of a triage batch. Index refers to
// the position of the article in the batch.
type TriageResult struct {
	Index  int               `json:"idx"`
	Status core.TriageStatus `json:"status"`
	Flags  []string          `json:"flags"`
}

// ScoreResult is the detailed score for one article of a scoring batch.
type ScoreResult struct {
	Index       int              `json:"idx"`
	Explanation core.Explanation `json:"explanation"`
}

// Cluster groups batch indices that tell the same story.
type Cluster struct {
	Canonical int   `json:"canonical_idx"`
	Members   []int `json:"member_indices"`
}

// Model is the language model used by the pipeline. Every method may fail; the
// callers degrade to pass-through behavior.
type Model interface {
	GenerateRubric(ctx context.Context, interest core.InterestModel, categories []string) (*core.Rubric, error)
	Triage(ctx context.Context, batch []core.Article, rubric *core.Rubric) ([]TriageResult, error)
	ExtractContentCard(ctx context.Context, text string) (*core.ContentCard, error)
	ScoreBatch(ctx context.Context, batch []core.Article, rubric *core.Rubric) ([]ScoreResult, error)
	DetectSemanticDuplicates(ctx context.Context, titles []string) ([]Cluster, error)
	PlanNextLinks(ctx context.Context, links []fetch.Link, rubric *core.Rubric) ([]string, error)
	GenerateMicroQuestions(ctx context.Context, articles []core.Article, interest core.InterestModel) ([]core.MicroQuestion, error)
	RefineInterestModel(ctx context.Context, interest core.InterestModel, question core.MicroQuestion, answer string) (*core.InterestModel, error)
}
