// Package normalize converts feed items and scraped stubs into core.Article values.
package normalize

import (
	"context"
	"curator/internal/core"
	"curator/internal/feeds"
	"curator/internal/fetch"
	"curator/internal/logger"
	"curator/internal/parser"
	"curator/internal/sources"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Normalizer limits.
const (
	// DeepFetchLimit is how many leading items of a feed may have their page
	// fetched for an og:image.
	DeepFetchLimit = 10
	// DefaultMaxItems caps the items taken from one source.
	DefaultMaxItems = 10

	deepFetchConcurrency = 5
)

// ImageFetcher looks up a page's declared image.
type ImageFetcher interface {
	PageImage(ctx context.Context, pageURL string, timeout time.Duration) (string, error)
}

// Options configures a Normalizer.
type Options struct {
	MaxItems    int
	PageTimeout time.Duration
	Extractors  []ImageExtractor
	Now         func() time.Time
}

// Normalizer builds articles from resolved sources.
type Normalizer struct {
	images ImageFetcher
	opts   Options
	log    *slog.Logger
}

// NewNormalizer creates a Normalizer. A nil ImageFetcher disables the og:image lookup.
func NewNormalizer(images ImageFetcher, opts Options) *Normalizer {
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 3 * time.Second
	}
	if opts.Extractors == nil {
		opts.Extractors = DefaultExtractors
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Normalizer{images: images, opts: opts, log: logger.Get()}
}

// Normalize converts a resolver result into articles for src.
func (n *Normalizer) Normalize(ctx context.Context, src core.Source, res sources.Result) []core.Article {
	switch {
	case res.Feed != nil:
		return n.FromFeed(ctx, src, res.Feed)
	case len(res.Stubs) > 0:
		return n.FromStubs(src, res.Stubs)
	default:
		return nil
	}
}

// FromFeed converts up to MaxItems feed items that have a URL. Items without an
// image among the first DeepFetchLimit get their page's og:image looked up
// concurrently.
func (n *Normalizer) FromFeed(ctx context.Context, src core.Source, feed *feeds.Feed) []core.Article {
	items := make([]feeds.Item, 0, min(len(feed.Items), n.opts.MaxItems))
	for _, item := range feed.Items {
		if len(items) == n.opts.MaxItems {
			break
		}
		if itemURL(item) == "" {
			n.log.Debug("Skipping item without a link", "source", src.URL, "guid", item.GUID)
			continue
		}
		items = append(items, item)
	}

	sourceName := feed.Title
	if sourceName == "" {
		sourceName = src.URL
	}
	now := n.opts.Now().UTC()

	articles := make([]core.Article, len(items))
	for i, item := range items {
		articles[i] = n.fromItem(src, sourceName, item, now)
	}

	if n.images == nil {
		return articles
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deepFetchConcurrency)
	for i := range articles {
		if i >= DeepFetchLimit {
			break
		}
		if articles[i].ImageURL != "" {
			continue
		}
		g.Go(func() error {
			img, err := n.images.PageImage(gctx, articles[i].URL, n.opts.PageTimeout)
			if err != nil {
				n.log.Debug("Image lookup failed", "url", articles[i].URL, "error", err)
				return nil
			}
			articles[i].ImageURL = acceptImage(articles[i].URL, img)
			return nil
		})
	}
	_ = g.Wait()

	return articles
}

func (n *Normalizer) fromItem(src core.Source, sourceName string, item feeds.Item, now time.Time) core.Article {
	id := item.Link
	if id == "" {
		id = item.GUID
	}

	published := item.Published
	if published.IsZero() {
		published = now
	}

	return core.Article{
		ID:          id,
		Title:       CleanTitle(item.Title, core.UntitledTitle),
		URL:         itemURL(item),
		SourceID:    src.URL,
		SourceName:  sourceName,
		Topic:       src.Category,
		ImageURL:    ExtractImage(item, n.opts.Extractors),
		Summary:     Truncate(BestSummary(item), MaxSummaryLength),
		PublishedAt: published,
		SEOFlags:    []string{},
	}
}

// itemURL is the item's link, or its GUID when that is an absolute http(s) URL.
func itemURL(item feeds.Item) string {
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}
	u, err := url.Parse(strings.TrimSpace(item.GUID))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.String()
}

// BestSummary returns the first candidate that survives CleanSummary, in the order
// content snippet, description, content, encoded content.
func BestSummary(item feeds.Item) string {
	for _, candidate := range []string{item.ContentSnippet, item.Description, item.Content, item.Encoded} {
		if s := CleanSummary(candidate); s != "" {
			return s
		}
	}
	return ""
}

// FromStubs converts scraped stubs. Stubs carry their own thumbnail, so no page
// lookup is made.
func (n *Normalizer) FromStubs(src core.Source, stubs []sources.Stub) []core.Article {
	if len(stubs) > n.opts.MaxItems {
		stubs = stubs[:n.opts.MaxItems]
	}
	now := n.opts.Now().UTC()

	articles := make([]core.Article, 0, len(stubs))
	for _, s := range stubs {
		articles = append(articles, core.Article{
			ID:          s.Link,
			Title:       CleanTitle(s.Title, core.UntitledTitle),
			URL:         s.Link,
			SourceID:    src.URL,
			SourceName:  src.URL,
			Topic:       src.Category,
			ImageURL:    acceptImage(s.Link, s.ImageURL),
			Summary:     Truncate(CleanSummary(s.Summary), MaxSummaryLength),
			PublishedAt: now,
			SEOFlags:    []string{},
		})
	}
	return articles
}

// Dedupe keeps the first article for each normalized URL. Articles without a URL
// are keyed by ID.
func Dedupe(articles []core.Article) []core.Article {
	p := parser.NewParser()
	seen := make(map[string]bool, len(articles))
	out := make([]core.Article, 0, len(articles))

	for _, a := range articles {
		key := "id:" + a.ID
		if a.URL != "" {
			key = p.NormalizeURL(a.URL)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

// Shuffle randomizes the order of articles in place.
func Shuffle(articles []core.Article, rng *rand.Rand) {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	rng.Shuffle(len(articles), func(i, j int) {
		articles[i], articles[j] = articles[j], articles[i]
	})
}

var _ ImageFetcher = (*fetch.Client)(nil)
