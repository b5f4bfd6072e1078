package pipeline

import (
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"curator/internal/curation"
	"curator/internal/fetch"
	"curator/internal/normalize"
	"curator/internal/relevance"
	"curator/internal/sources"
	"curator/internal/store"
)

// Builder helps construct a fully configured Aggregator
type Builder struct {
	store      store.PreferenceStore
	model      curation.Model
	httpClient *http.Client
	userAgent  string
	config     *Config

	feedTimeout time.Duration
	pageTimeout time.Duration
	maxItems    int
	jitter      float64
	rng         *rand.Rand
	now         func() time.Time

	curator *curation.Curator
}

// NewBuilder creates a new pipeline builder with default settings
func NewBuilder() *Builder {
	opts := sources.DefaultOptions()
	return &Builder{
		config:      DefaultConfig(),
		feedTimeout: opts.FeedTimeout,
		pageTimeout: opts.PageTimeout,
		maxItems:    normalize.DefaultMaxItems,
		jitter:      relevance.DefaultJitter,
		now:         time.Now,
	}
}

// WithStore sets the preference store (required)
func (b *Builder) WithStore(st store.PreferenceStore) *Builder {
	b.store = st
	return b
}

// WithModel sets the language model. Without one the AI stages are skipped.
func (b *Builder) WithModel(model curation.Model) *Builder {
	b.model = model
	return b
}

// WithHTTPClient sets the HTTP client used for every fetch
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithUserAgent sets the User-Agent sent to sources
func (b *Builder) WithUserAgent(userAgent string) *Builder {
	b.userAgent = userAgent
	return b
}

// WithTimeouts sets the feed and page fetch timeouts
func (b *Builder) WithTimeouts(feed, page time.Duration) *Builder {
	if feed > 0 {
		b.feedTimeout = feed
	}
	if page > 0 {
		b.pageTimeout = page
	}
	return b
}

// WithMaxItems caps the items taken from each source
func (b *Builder) WithMaxItems(n int) *Builder {
	if n > 0 {
		b.maxItems = n
	}
	return b
}

// WithJitter sets the heuristic score jitter; 0 disables it
func (b *Builder) WithJitter(jitter float64) *Builder {
	b.jitter = jitter
	return b
}

// WithRand sets the random source used for jitter and shuffling
func (b *Builder) WithRand(rng *rand.Rand) *Builder {
	b.rng = rng
	return b
}

// WithClock sets the clock used for freshness and rubric expiry
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithConfig sets the pipeline configuration
func (b *Builder) WithConfig(config *Config) *Builder {
	b.config = config
	return b
}

// Curator returns the personalization stage shared by the aggregator and the
// answer flow.
func (b *Builder) Curator() *curation.Curator {
	if b.curator == nil {
		b.curator = curation.NewCurator(b.model, b.store, curation.Options{Now: b.now})
	}
	return b.curator
}

// Build constructs a fully configured Aggregator
func (b *Builder) Build() (*Aggregator, error) {
	if b.store == nil {
		return nil, fmt.Errorf("preference store is required")
	}

	config := DefaultConfig()
	if b.config != nil {
		c := *b.config
		config = &c
	}
	if config.Rand == nil {
		config.Rand = b.rng
	}

	client := fetch.NewClient(b.userAgent, b.httpClient)
	resolver := sources.NewResolver(client, sources.Options{
		FeedTimeout: b.feedTimeout,
		PageTimeout: b.pageTimeout,
	})
	normalizer := normalize.NewNormalizer(client, normalize.Options{
		MaxItems:    b.maxItems,
		PageTimeout: b.pageTimeout,
		Now:         b.now,
	})
	scorer := relevance.NewHeuristicScorer(relevance.Options{
		Jitter: b.jitter,
		Rand:   b.rng,
		Now:    b.now,
	})

	var personalizer Personalizer
	var expander LinkExpander
	if b.model != nil {
		personalizer = b.Curator()
		expander = curation.NewCrawler(client, b.model, b.pageTimeout)
	}

	return NewAggregator(b.store, resolver, normalizer, scorer, personalizer, expander, config), nil
}
