// Package sources resolves a configured site into feed items or scraped stubs by
// trying an ordered chain of strategies.
package sources

import (
	"context"
	"curator/internal/core"
	"curator/internal/feeds"
	"curator/internal/fetch"
	"curator/internal/logger"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Resolver limits.
const (
	MaxScrapedStubs    = 10
	MinStubTitleLength = 10
	StubSummaryLength  = 200
)

// Stage names, in chain order.
const (
	StageDirectFeed   = "direct-feed"
	StageDiscoverFeed = "discover-feed"
	StageScrapeHTML   = "scrape-html"
)

var (
	// ErrHTMLBody means the configured URL served an HTML page instead of a feed.
	ErrHTMLBody = errors.New("response is an HTML document")
	// ErrNoFeedLink means the site root advertises no RSS/Atom alternate link.
	ErrNoFeedLink = errors.New("no feed link advertised")
	// ErrNoStubs means scraping found no container passing the quality bar.
	ErrNoStubs = errors.New("no article stubs found")
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// scrapeSelectors are the containers scanned for article stubs.
const scrapeSelectors = "article, .post, .entry, .card, .item, main > div"

// Stub is a minimal article scraped from an HTML page.
type Stub struct {
	Title    string
	Link     string
	ImageURL string
	Summary  string
}

// Attempt records the outcome of one stage.
type Attempt struct {
	Stage string
	Err   error
}

// Result is what a source resolved to. Exactly one of Feed and Stubs is set on
// success; both are empty when every stage failed.
type Result struct {
	Feed     *feeds.Feed
	Stubs    []Stub
	Strategy string
	Attempts []Attempt
}

// Empty reports whether the source produced no items.
func (r Result) Empty() bool {
	return (r.Feed == nil || len(r.Feed.Items) == 0) && len(r.Stubs) == 0
}

// Stage is one named strategy. A stage returns an error to pass control to the next.
type Stage struct {
	Name string
	Run  func(ctx context.Context, rs *resolveState) (Result, error)
}

// Options configures a Resolver.
type Options struct {
	FeedTimeout time.Duration
	PageTimeout time.Duration
}

// DefaultOptions returns the standard per-call timeouts.
func DefaultOptions() Options {
	return Options{
		FeedTimeout: 5 * time.Second,
		PageTimeout: 3 * time.Second,
	}
}

// Resolver turns a Source into feed items or stubs.
type Resolver struct {
	client *fetch.Client
	opts   Options
	stages []Stage
	log    *slog.Logger
}

// NewResolver creates a Resolver with the default stage chain:
// direct-feed, discover-feed, scrape-html.
func NewResolver(client *fetch.Client, opts Options) *Resolver {
	if opts.FeedTimeout <= 0 {
		opts.FeedTimeout = DefaultOptions().FeedTimeout
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = DefaultOptions().PageTimeout
	}
	r := &Resolver{
		client: client,
		opts:   opts,
		log:    logger.Get(),
	}
	r.stages = []Stage{
		{Name: StageDirectFeed, Run: r.directFeed},
		{Name: StageDiscoverFeed, Run: r.discoverFeed},
		{Name: StageScrapeHTML, Run: r.scrapeHTML},
	}
	return r
}

// Stages returns the chain in the order it is tried.
func (r *Resolver) Stages() []Stage {
	return r.stages
}

// resolveState carries per-resolve data shared between stages.
type resolveState struct {
	source  core.Source
	root    string
	rootDoc *goquery.Document
	rootErr error
	fetched bool
}

// rootDocument fetches the site root at most once per resolve.
func (r *Resolver) rootDocument(ctx context.Context, rs *resolveState) (*goquery.Document, error) {
	if !rs.fetched {
		rs.fetched = true
		rs.rootDoc, rs.rootErr = r.client.GetDocument(ctx, rs.root, r.opts.PageTimeout)
	}
	return rs.rootDoc, rs.rootErr
}

// Resolve tries each stage in order and returns the first success. It never
// fails: stage errors are logged and recorded in Attempts.
func (r *Resolver) Resolve(ctx context.Context, src core.Source) Result {
	rs := &resolveState{source: src}
	if root, err := siteRoot(src.URL); err == nil {
		rs.root = root
	}

	var attempts []Attempt
	for _, stage := range r.stages {
		if ctx.Err() != nil {
			attempts = append(attempts, Attempt{Stage: stage.Name, Err: ctx.Err()})
			break
		}
		if rs.root == "" && stage.Name != StageDirectFeed {
			attempts = append(attempts, Attempt{Stage: stage.Name, Err: fmt.Errorf("no site root for %s", src.URL)})
			continue
		}

		res, err := stage.Run(ctx, rs)
		if err == nil && res.Empty() {
			err = errors.New("stage produced no items")
		}
		attempts = append(attempts, Attempt{Stage: stage.Name, Err: err})
		if err != nil {
			r.log.Debug("Resolver stage failed", "source", src.URL, "stage", stage.Name, "error", err)
			continue
		}

		res.Strategy = stage.Name
		res.Attempts = attempts
		r.log.Debug("Resolved source", "source", src.URL, "stage", stage.Name)
		return res
	}

	r.log.Warn("Source yielded no items", "source", src.URL, "attempts", len(attempts))
	return Result{Attempts: attempts}
}

func (r *Resolver) directFeed(ctx context.Context, rs *resolveState) (Result, error) {
	feed, err := r.fetchFeed(ctx, rs.source.URL)
	if err != nil {
		return Result{}, err
	}
	return Result{Feed: feed}, nil
}

func (r *Resolver) discoverFeed(ctx context.Context, rs *resolveState) (Result, error) {
	doc, err := r.rootDocument(ctx, rs)
	if err != nil {
		return Result{}, err
	}

	href := ""
	doc.Find(`link[rel="alternate"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		typ := strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))
		if typ != "application/rss+xml" && typ != "application/atom+xml" {
			return true
		}
		if h := strings.TrimSpace(s.AttrOr("href", "")); h != "" {
			href = h
			return false
		}
		return true
	})
	if href == "" {
		return Result{}, ErrNoFeedLink
	}

	feedURL := fetch.ResolveURL(rs.root, href)
	feed, err := r.fetchFeed(ctx, feedURL)
	if err != nil {
		return Result{}, fmt.Errorf("discovered feed %s: %w", feedURL, err)
	}
	return Result{Feed: feed}, nil
}

func (r *Resolver) scrapeHTML(ctx context.Context, rs *resolveState) (Result, error) {
	doc, err := r.rootDocument(ctx, rs)
	if err != nil {
		return Result{}, err
	}

	stubs := ScrapeStubs(doc, rs.root)
	if len(stubs) == 0 {
		return Result{}, ErrNoStubs
	}
	return Result{Stubs: stubs}, nil
}

func (r *Resolver) fetchFeed(ctx context.Context, feedURL string) (*feeds.Feed, error) {
	body, err := r.client.Get(ctx, feedURL, fetch.AcceptFeed, r.opts.FeedTimeout)
	if err != nil {
		return nil, err
	}
	if fetch.IsHTML(body) {
		return nil, ErrHTMLBody
	}
	return feeds.Parse(body)
}

// ScrapeStubs extracts article stubs from a listing page. Stubs with short titles
// or no link are dropped, duplicate links are skipped and at most MaxScrapedStubs
// are returned.
func ScrapeStubs(doc *goquery.Document, base string) []Stub {
	var stubs []Stub
	seen := make(map[string]bool)

	doc.Find(scrapeSelectors).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		anchor := s.Find("a[href]").First()
		if anchor.Length() == 0 {
			return true
		}
		title := collapse(anchor.Text())
		link := fetch.ResolveURL(base, anchor.AttrOr("href", ""))
		if len([]rune(title)) < MinStubTitleLength || link == "" || seen[link] {
			return true
		}
		if u, err := url.Parse(link); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return true
		}
		seen[link] = true

		stub := Stub{
			Title: title,
			Link:  link,
		}
		if src := strings.TrimSpace(s.Find("img[src]").First().AttrOr("src", "")); src != "" {
			stub.ImageURL = fetch.ResolveURL(base, src)
		}
		text := strings.TrimSpace(strings.TrimPrefix(collapse(s.Text()), title))
		stub.Summary = truncateRunes(text, StubSummaryLength)

		stubs = append(stubs, stub)
		return len(stubs) < MaxScrapedStubs
	})
	return stubs
}

// siteRoot returns scheme://host/ of rawURL.
func siteRoot(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("not an absolute URL: %s", rawURL)
	}
	return u.Scheme + "://" + u.Host + "/", nil
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
