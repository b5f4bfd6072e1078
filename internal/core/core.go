package core

import (
	"slices"
	"time"
)

// Default values shared by the pipeline and the preference store.
const (
	DefaultCategory = "Uncategorized" // Category assigned to sites added without one
	DiscoveryTopic  = "Discovery"     // Topic of stubs produced by the adaptive crawl
	UntitledTitle   = "Untitled"      // Title used when a source provides none

	// RubricTTL is how long a generated rubric stays valid.
	RubricTTL = 24 * time.Hour

	// ReputationAlpha is the weight of a new observation in the reputation averages.
	ReputationAlpha = 0.1

	// MaxPendingQuestions bounds the micro-question queue.
	MaxPendingQuestions = 5
)

// TriageStatus is the coarse verdict assigned to an article by triage.
type TriageStatus string

const (
	TriageReject TriageStatus = "reject"
	TriageMaybe  TriageStatus = "maybe"
	TriageGood   TriageStatus = "good"
)

// ParseTriageStatus maps a model verdict to a TriageStatus, defaulting to maybe.
func ParseTriageStatus(s string) TriageStatus {
	switch TriageStatus(s) {
	case TriageReject, TriageGood:
		return TriageStatus(s)
	default:
		return TriageMaybe
	}
}

// Source is a configured site the pipeline pulls content from.
type Source struct {
	URL      string `json:"url"`      // Configured URL (feed or page), also the source ID
	Category string `json:"category"` // User-assigned topic for everything from this source
	Blocked  bool   `json:"blocked"`  // Blocked sources are skipped entirely
}

// Article is the normalized representation of one piece of content.
type Article struct {
	ID              string       `json:"id"`                        // Link, guid, or random fallback
	Title           string       `json:"title"`                     // Cleaned title, "Untitled" if missing
	URL             string       `json:"url"`                       // Canonical link to the content
	SourceID        string       `json:"sourceId"`                  // Source URL the article came from
	SourceName      string       `json:"sourceName"`                // Feed title or source URL
	Topic           string       `json:"topic"`                     // Source category
	ImageURL        string       `json:"imageUrl,omitempty"`        // Thumbnail, if one was found
	Summary         string       `json:"summary,omitempty"`         // Cleaned summary, at most 300 chars + ellipsis
	FullText        string       `json:"fullText,omitempty"`        // Readable body text, fetched on demand
	PublishedAt     time.Time    `json:"publishedAt"`               // Publication time, fetch time when unknown
	Score           float64      `json:"score"`                     // Priority, re-derived at each stage
	TriageStatus    TriageStatus `json:"triageStatus,omitempty"`    // Set by the triage stage
	SEOFlags        []string     `json:"seoFlags"`                  // Flags raised during triage
	ContentCard     *ContentCard `json:"contentCard,omitempty"`     // Structured extraction from FullText
	CanonicalID     string       `json:"canonicalId,omitempty"`     // Canonical article of this story's cluster
	SimilarArticles []Article    `json:"similarArticles,omitempty"` // Cluster members, held by the canonical only
	Explanation     *Explanation `json:"explanation,omitempty"`     // Per-dimension breakdown from detailed scoring
	Discovered      bool         `json:"discovered,omitempty"`      // Produced by the adaptive crawl
}

// ContentCard is a structured extraction of an article's full text.
type ContentCard struct {
	Summary  []string        `json:"summary"`
	Claims   []string        `json:"claims"`
	Entities ContentEntities `json:"entities"`
	Metadata ContentMetadata `json:"metadata"`
}

// ContentEntities groups the named entities found in an article.
type ContentEntities struct {
	People       []string `json:"people"`
	Companies    []string `json:"companies"`
	Technologies []string `json:"technologies"`
}

// ContentMetadata describes the depth and kind of an article.
type ContentMetadata struct {
	Depth       string  `json:"depth"` // "shallow" or "deep"
	Originality float64 `json:"originality"`
	IsNews      bool    `json:"is_news"`
	IsTutorial  bool    `json:"is_tutorial"`
	IsAnalysis  bool    `json:"is_analysis"`
}

// Explanation is the per-dimension breakdown returned by detailed scoring.
type Explanation struct {
	Overall          float64  `json:"overall"`
	TopicMatch       float64  `json:"topic_match"`
	Novelty          float64  `json:"novelty"`
	Depth            float64  `json:"depth"`
	Credibility      float64  `json:"credibility"`
	JunkRisk         float64  `json:"junk_risk"`
	Why              []string `json:"why"`
	FiltersTriggered []string `json:"filters_triggered"`
}

// InterestModel is the free-text description of what the user wants to read.
type InterestModel struct {
	StablePreferences string `json:"stablePreferences"` // Long-term interests
	SessionIntent     string `json:"sessionIntent"`     // Short-term focus
}

// Rubric is the scoring configuration generated from an InterestModel.
type Rubric struct {
	Version                  int                `json:"version"`
	GeneratedAt              time.Time          `json:"generatedAt"`
	TopicWeights             map[string]float64 `json:"topicWeights" validate:"dive,gte=0,lte=1"`
	NoveltyPreference        float64            `json:"noveltyPreference" validate:"gte=0,lte=1"`
	TechnicalDepthPreference float64            `json:"technicalDepthPreference" validate:"gte=0,lte=1"`
	InstantJunkRules         []string           `json:"instantJunkRules"`
}

// Fresh reports whether the rubric is still usable at now.
func (r *Rubric) Fresh(now time.Time) bool {
	if r == nil || r.GeneratedAt.IsZero() {
		return false
	}
	return now.Sub(r.GeneratedAt) < RubricTTL
}

// SourceReputation is the running quality signal kept per source.
type SourceReputation struct {
	PassRate       float64 `json:"passRate"`       // Share of articles surviving triage, 0..1
	AvgScore       float64 `json:"avgScore"`       // Running average final score, 0..100
	UserEngagement int     `json:"userEngagement"` // Clicks on articles from this source
	TotalTriaged   int     `json:"totalTriaged"`   // Observations folded into the averages
}

// ReputationUpdate is one observation fed back into a SourceReputation.
type ReputationUpdate struct {
	Passed bool    `json:"passed"`
	Score  float64 `json:"score"`
}

// Apply folds an observation into the reputation using an exponential average.
// The first observation seeds the averages directly.
func (r SourceReputation) Apply(u ReputationUpdate) SourceReputation {
	passed := 0.0
	if u.Passed {
		passed = 1.0
	}
	if r.TotalTriaged == 0 {
		r.PassRate = passed
		r.AvgScore = u.Score
	} else {
		r.PassRate += ReputationAlpha * (passed - r.PassRate)
		r.AvgScore += ReputationAlpha * (u.Score - r.AvgScore)
	}
	r.TotalTriaged++
	return r
}

// MicroQuestion is a pending clarification surfaced to the user.
type MicroQuestion struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Context  string   `json:"context"`
	Topic    string   `json:"topic,omitempty"`
}

// HasOption reports whether answer is one of the question's options.
func (q MicroQuestion) HasOption(answer string) bool {
	return slices.Contains(q.Options, answer)
}

// Preferences is the persisted preference document.
type Preferences struct {
	BlockedSites     []string                    `json:"blockedSites"`
	DemotedSites     []string                    `json:"demotedSites"`
	DemotedTopics    []string                    `json:"demotedTopics"`
	SiteScores       map[string]float64          `json:"siteScores"`
	TopicScores      map[string]float64          `json:"topicScores"`
	ClickHistory     []string                    `json:"clickHistory"`
	InterestModel    InterestModel               `json:"interestModel"`
	CurrentRubric    *Rubric                     `json:"currentRubric,omitempty"`
	SourceReputation map[string]SourceReputation `json:"sourceReputation"`
	PendingQuestions []MicroQuestion             `json:"pendingQuestions"`
}

// DefaultPreferences returns an empty preference document with every collection allocated.
func DefaultPreferences() *Preferences {
	p := &Preferences{}
	p.Normalize()
	return p
}

// Normalize allocates any nil collection so callers can write without nil checks.
func (p *Preferences) Normalize() {
	if p.BlockedSites == nil {
		p.BlockedSites = []string{}
	}
	if p.DemotedSites == nil {
		p.DemotedSites = []string{}
	}
	if p.DemotedTopics == nil {
		p.DemotedTopics = []string{}
	}
	if p.SiteScores == nil {
		p.SiteScores = map[string]float64{}
	}
	if p.TopicScores == nil {
		p.TopicScores = map[string]float64{}
	}
	if p.ClickHistory == nil {
		p.ClickHistory = []string{}
	}
	if p.SourceReputation == nil {
		p.SourceReputation = map[string]SourceReputation{}
	}
	if p.PendingQuestions == nil {
		p.PendingQuestions = []MicroQuestion{}
	}
}

// IsBlocked reports whether the site is on the blocked list.
func (p *Preferences) IsBlocked(siteURL string) bool {
	return slices.Contains(p.BlockedSites, siteURL)
}

// IsDemoted reports whether the site or the topic is demoted.
func (p *Preferences) IsDemoted(siteURL, topic string) bool {
	return slices.Contains(p.DemotedSites, siteURL) || slices.Contains(p.DemotedTopics, topic)
}

// Clone returns a deep copy of the preferences.
func (p *Preferences) Clone() *Preferences {
	c := &Preferences{
		BlockedSites:     slices.Clone(p.BlockedSites),
		DemotedSites:     slices.Clone(p.DemotedSites),
		DemotedTopics:    slices.Clone(p.DemotedTopics),
		SiteScores:       make(map[string]float64, len(p.SiteScores)),
		TopicScores:      make(map[string]float64, len(p.TopicScores)),
		ClickHistory:     slices.Clone(p.ClickHistory),
		InterestModel:    p.InterestModel,
		SourceReputation: make(map[string]SourceReputation, len(p.SourceReputation)),
		PendingQuestions: make([]MicroQuestion, 0, len(p.PendingQuestions)),
	}
	for k, v := range p.SiteScores {
		c.SiteScores[k] = v
	}
	for k, v := range p.TopicScores {
		c.TopicScores[k] = v
	}
	for k, v := range p.SourceReputation {
		c.SourceReputation[k] = v
	}
	for _, q := range p.PendingQuestions {
		q.Options = slices.Clone(q.Options)
		c.PendingQuestions = append(c.PendingQuestions, q)
	}
	if p.CurrentRubric != nil {
		r := *p.CurrentRubric
		r.TopicWeights = make(map[string]float64, len(p.CurrentRubric.TopicWeights))
		for k, v := range p.CurrentRubric.TopicWeights {
			r.TopicWeights[k] = v
		}
		r.InstantJunkRules = slices.Clone(p.CurrentRubric.InstantJunkRules)
		c.CurrentRubric = &r
	}
	c.Normalize()
	return c
}
