package curation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"curator/internal/core"
	"curator/internal/logger"
	"curator/internal/store"
)

// Stage sizes.
const (
	TriageBatchSize     = 50
	ScoreBatchSize      = 10
	MaxCandidates       = 100
	PerSourceCandidates = 2
	// QuestionThreshold is the number of unique stories above which questions are generated.
	QuestionThreshold = 20
	QuestionSample    = 10
	MaxNewQuestions   = 3

	cardConcurrency  = 8
	batchConcurrency = 8
)

// Options configures a Curator.
type Options struct {
	Now func() time.Time
}

// Stats counts what happened during a run.
type Stats struct {
	Input      int `json:"input"`
	Rejected   int `json:"rejected"`
	Candidates int `json:"candidates"`
	Passive    int `json:"passive"`
	Cards      int `json:"cards"`
	Scored     int `json:"scored"`
	Clusters   int `json:"clusters"`
	Questions  int `json:"questions"`
}

// Result is the output of Curator.Run.
type Result struct {
	Articles   []core.Article
	Rubric     *core.Rubric
	Candidates int
	Stats      Stats
}

// Curator runs the AI personalization stages.
type Curator struct {
	model    Model
	store    store.PreferenceStore
	validate *validator.Validate
	now      func() time.Time
	log      *slog.Logger
}

// NewCurator creates a Curator. A nil model disables every stage.
func NewCurator(model Model, st store.PreferenceStore, opts Options) *Curator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Curator{
		model:    model,
		store:    st,
		validate: validator.New(),
		now:      opts.Now,
		log:      logger.Get(),
	}
}

// Enabled reports whether a model is configured.
func (c *Curator) Enabled() bool {
	return c.model != nil
}

// Run personalizes articles. Any stage that fails degrades to pass-through; when
// the rubric cannot be resolved the input is returned unchanged.
func (c *Curator) Run(ctx context.Context, articles []core.Article) *Result {
	res := &Result{Articles: articles, Stats: Stats{Input: len(articles)}}
	if c.model == nil || len(articles) == 0 {
		return res
	}

	prefs, err := c.store.GetPreferences(ctx)
	if err != nil {
		c.log.Warn("Skipping AI scoring, preferences unavailable", "error", err)
		return res
	}

	rubric, err := c.ResolveRubric(ctx, prefs)
	if err != nil {
		c.log.Warn("Skipping AI scoring, no rubric", "error", err)
		return res
	}
	res.Rubric = rubric

	triaged := make([]core.Article, len(articles))
	copy(triaged, articles)
	c.triage(ctx, triaged, rubric)

	pool := make([]core.Article, 0, len(triaged))
	for _, a := range triaged {
		if a.TriageStatus != core.TriageReject {
			pool = append(pool, a)
		}
	}
	res.Stats.Rejected = len(triaged) - len(pool)
	c.log.Info("Triage complete", "pool", len(pool), "rejected", res.Stats.Rejected)

	if len(pool) == 0 {
		c.log.Warn("Triage rejected every article, returning the original list")
		return res
	}

	candidates, passive := SelectCandidates(pool, PerSourceCandidates, MaxCandidates)
	res.Candidates = len(candidates)
	res.Stats.Candidates = len(candidates)
	res.Stats.Passive = len(passive)

	res.Stats.Cards = c.extractCards(ctx, candidates)
	res.Stats.Scored = c.score(ctx, candidates, rubric)

	scored := make([]core.Article, 0, len(candidates)+len(passive))
	scored = append(scored, candidates...)
	scored = append(scored, passive...)
	c.applyReputation(ctx, scored, prefs.SourceReputation)

	unique, clusters := c.dedupe(ctx, scored)
	res.Stats.Clusters = clusters
	res.Articles = unique

	if len(unique) > QuestionThreshold {
		res.Stats.Questions = c.askQuestions(ctx, unique, prefs.InterestModel)
	}

	return res
}

// ResolveRubric returns the cached rubric while it is fresh and generates, validates
// and stores a new one otherwise.
func (c *Curator) ResolveRubric(ctx context.Context, prefs *core.Preferences) (*core.Rubric, error) {
	if c.model == nil {
		return nil, ErrNoModel
	}
	now := c.now()
	if prefs.CurrentRubric.Fresh(now) {
		return prefs.CurrentRubric, nil
	}

	categories, err := c.store.GetCategories(ctx)
	if err != nil {
		c.log.Warn("Generating rubric without categories", "error", err)
	}

	rubric, err := c.model.GenerateRubric(ctx, prefs.InterestModel, categories)
	if err != nil {
		return nil, err
	}
	if rubric == nil {
		return nil, fmt.Errorf("model returned no rubric")
	}
	rubric.GeneratedAt = now
	if rubric.TopicWeights == nil {
		rubric.TopicWeights = map[string]float64{}
	}
	if err := c.validate.Struct(rubric); err != nil {
		return nil, fmt.Errorf("invalid rubric: %w", err)
	}

	if err := c.store.SetRubric(ctx, rubric); err != nil {
		c.log.Warn("Failed to store rubric", "error", err)
	}
	c.log.Info("Generated rubric", "version", rubric.Version, "topics", len(rubric.TopicWeights))
	return rubric, nil
}

// triage sets TriageStatus and SEOFlags on every article. Missing verdicts and
// failed batches become maybe.
func (c *Curator) triage(ctx context.Context, articles []core.Article, rubric *core.Rubric) {
	var g errgroup.Group
	g.SetLimit(batchConcurrency)

	for start := 0; start < len(articles); start += TriageBatchSize {
		batch := articles[start:min(start+TriageBatchSize, len(articles))]
		g.Go(func() error {
			for i := range batch {
				batch[i].TriageStatus = core.TriageMaybe
				batch[i].SEOFlags = []string{}
			}
			results, err := c.model.Triage(ctx, batch, rubric)
			if err != nil {
				c.log.Warn("Triage failed for batch", "size", len(batch), "error", err)
				return nil
			}
			for _, r := range results {
				if r.Index < 0 || r.Index >= len(batch) {
					continue
				}
				batch[r.Index].TriageStatus = r.Status
				if r.Flags != nil {
					batch[r.Index].SEOFlags = r.Flags
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

// SelectCandidates picks up to perSource top-scored articles from every source, in
// first-seen source order, then fills up to limit with the highest remaining
// scores. The rest of the pool is returned as the passive feed in pool order.
func SelectCandidates(pool []core.Article, perSource, limit int) (candidates, passive []core.Article) {
	var order []string
	groups := make(map[string][]int)
	for i, a := range pool {
		if _, ok := groups[a.SourceID]; !ok {
			order = append(order, a.SourceID)
		}
		groups[a.SourceID] = append(groups[a.SourceID], i)
	}

	chosen := make(map[int]bool)
	var picked []int
	for _, src := range order {
		idx := groups[src]
		sort.SliceStable(idx, func(i, j int) bool { return pool[idx[i]].Score > pool[idx[j]].Score })
		for _, i := range idx[:min(perSource, len(idx))] {
			chosen[i] = true
			picked = append(picked, i)
		}
	}

	var remaining []int
	for i := range pool {
		if !chosen[i] {
			remaining = append(remaining, i)
		}
	}
	sort.SliceStable(remaining, func(i, j int) bool { return pool[remaining[i]].Score > pool[remaining[j]].Score })
	for _, i := range remaining {
		if len(picked) >= limit {
			break
		}
		chosen[i] = true
		picked = append(picked, i)
	}

	candidates = make([]core.Article, 0, len(picked))
	for _, i := range picked {
		candidates = append(candidates, pool[i])
	}
	passive = make([]core.Article, 0, len(pool)-len(picked))
	for i, a := range pool {
		if !chosen[i] {
			passive = append(passive, a)
		}
	}
	return candidates, passive
}

// extractCards fills ContentCard for candidates that have full text and no card.
func (c *Curator) extractCards(ctx context.Context, candidates []core.Article) int {
	var g errgroup.Group
	g.SetLimit(cardConcurrency)

	cards := make([]*core.ContentCard, len(candidates))
	for i, a := range candidates {
		if a.FullText == "" || a.ContentCard != nil {
			continue
		}
		g.Go(func() error {
			card, err := c.model.ExtractContentCard(ctx, a.FullText)
			if err != nil {
				c.log.Debug("Content card extraction failed", "url", a.URL, "error", err)
				return nil
			}
			cards[i] = card
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for i, card := range cards {
		if card != nil {
			candidates[i].ContentCard = card
			n++
		}
	}
	return n
}

// score replaces the heuristic score of candidates with the model's overall score.
// A failed batch keeps its heuristic scores.
func (c *Curator) score(ctx context.Context, candidates []core.Article, rubric *core.Rubric) int {
	var g errgroup.Group
	g.SetLimit(batchConcurrency)

	scored := make([]bool, len(candidates))
	for start := 0; start < len(candidates); start += ScoreBatchSize {
		batch := candidates[start:min(start+ScoreBatchSize, len(candidates))]
		g.Go(func() error {
			results, err := c.model.ScoreBatch(ctx, batch, rubric)
			if err != nil {
				c.log.Warn("Detailed scoring failed for batch", "size", len(batch), "error", err)
				return nil
			}
			for _, r := range results {
				if r.Index < 0 || r.Index >= len(batch) {
					continue
				}
				explanation := r.Explanation
				batch[r.Index].Score = explanation.Overall * 100
				batch[r.Index].Explanation = &explanation
				scored[start+r.Index] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, ok := range scored {
		if ok {
			n++
		}
	}
	return n
}

// applyReputation adjusts scores from the reputation snapshot taken at the start of
// the run, penalizes the fourth and later article of a source, and feeds every
// article back into its source's reputation.
func (c *Curator) applyReputation(ctx context.Context, articles []core.Article, reputation map[string]core.SourceReputation) {
	seen := make(map[string]int)
	for i := range articles {
		a := &articles[i]
		if rep, ok := reputation[a.SourceID]; ok && rep.TotalTriaged > 0 {
			if rep.PassRate > 0.8 {
				a.Score *= 1.1
			}
			if rep.PassRate < 0.3 {
				a.Score *= 0.7
			}
			a.Score = a.Score*0.9 + rep.AvgScore*0.1
		}

		if seen[a.SourceID] > 2 {
			a.Score *= 0.8
		}
		seen[a.SourceID]++

		update := core.ReputationUpdate{Passed: a.TriageStatus != core.TriageReject, Score: a.Score}
		if err := c.store.UpdateSourceReputation(ctx, a.SourceID, update); err != nil {
			c.log.Warn("Failed to update source reputation", "source", a.SourceID, "error", err)
		}
	}
}

// dedupe collapses semantically identical stories. The output keeps the input
// order; a canonical article stays in its own slot and carries its cluster
// members. It returns the number of clusters applied.
func (c *Curator) dedupe(ctx context.Context, articles []core.Article) ([]core.Article, int) {
	if len(articles) < 2 {
		return articles, 0
	}

	titles := make([]string, len(articles))
	for i, a := range articles {
		titles[i] = a.Title
	}
	clusters, err := c.model.DetectSemanticDuplicates(ctx, titles)
	if err != nil {
		c.log.Warn("Duplicate detection failed", "error", err)
		return articles, 0
	}
	if len(clusters) == 0 {
		return articles, 0
	}

	unique, applied := ApplyClusters(articles, clusters)
	c.log.Info("Clustered stories", "articles", len(articles), "clusters", applied, "unique", len(unique))
	return unique, applied
}

// ApplyClusters folds cluster members into their canonical article. Clusters are
// applied in order: invalid indices are ignored, an article joins at most one
// cluster, and an absorbed article cannot become a canonical.
func ApplyClusters(articles []core.Article, clusters []Cluster) ([]core.Article, int) {
	n := len(articles)
	valid := func(i int) bool { return i >= 0 && i < n }

	absorbed := make(map[int]bool)
	members := make(map[int][]int)
	for _, cl := range clusters {
		if !valid(cl.Canonical) || absorbed[cl.Canonical] {
			continue
		}
		for _, m := range cl.Members {
			if !valid(m) || m == cl.Canonical || absorbed[m] || len(members[m]) > 0 {
				continue
			}
			absorbed[m] = true
			members[cl.Canonical] = append(members[cl.Canonical], m)
		}
	}

	out := make([]core.Article, 0, n-len(absorbed))
	for i, a := range articles {
		if absorbed[i] {
			continue
		}
		if ms := members[i]; len(ms) > 0 {
			similar := make([]core.Article, 0, len(ms))
			for _, m := range ms {
				member := articles[m]
				member.CanonicalID = a.ID
				similar = append(similar, member)
			}
			a.SimilarArticles = similar
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return articles, 0
	}
	return out, len(members)
}

// askQuestions generates questions from the top-scored stories and queues them.
func (c *Curator) askQuestions(ctx context.Context, unique []core.Article, interest core.InterestModel) int {
	top := make([]core.Article, len(unique))
	copy(top, unique)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Score > top[j].Score })
	top = top[:min(QuestionSample, len(top))]

	generated, err := c.model.GenerateMicroQuestions(ctx, top, interest)
	if err != nil {
		c.log.Warn("Failed to generate micro-questions", "error", err)
		return 0
	}

	questions := make([]core.MicroQuestion, 0, MaxNewQuestions)
	for _, q := range generated {
		if len(questions) == MaxNewQuestions {
			break
		}
		if strings.TrimSpace(q.Question) == "" || len(q.Options) == 0 {
			continue
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return 0
	}

	if err := c.store.AppendQuestions(ctx, questions, core.MaxPendingQuestions); err != nil {
		c.log.Warn("Failed to queue micro-questions", "error", err)
		return 0
	}
	return len(questions)
}

// AnswerQuestion refines the interest model with the answer to a pending question.
// It reports false when the question or the option is unknown, or the model could
// not refine the interest model.
func (c *Curator) AnswerQuestion(ctx context.Context, questionID, answer string) (bool, error) {
	prefs, err := c.store.GetPreferences(ctx)
	if err != nil {
		return false, err
	}

	var question *core.MicroQuestion
	for i := range prefs.PendingQuestions {
		if prefs.PendingQuestions[i].ID == questionID {
			question = &prefs.PendingQuestions[i]
			break
		}
	}
	if question == nil || !question.HasOption(answer) {
		return false, nil
	}
	if c.model == nil {
		return false, ErrNoModel
	}

	refined, err := c.model.RefineInterestModel(ctx, prefs.InterestModel, *question, answer)
	if err != nil || refined == nil {
		c.log.Warn("Failed to refine interest model", "question", questionID, "error", err)
		return false, nil
	}

	if err := c.store.SetInterestModel(ctx, *refined); err != nil {
		return false, err
	}
	if err := c.store.RemoveQuestion(ctx, questionID); err != nil {
		return false, err
	}
	c.log.Info("Interest model refined", "question", questionID)
	return true, nil
}
