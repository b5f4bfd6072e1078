package curation

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"curator/internal/core"
	"curator/internal/fetch"
	"curator/internal/logger"
	"curator/internal/parser"
)

// Adaptive crawl bounds.
const (
	MaxCrawlSeeds     = 10
	MaxFollowLinks    = 5
	MaxDiscoveryHops  = 1
	DiscoveryBaseline = 50

	maxLinkCandidates = 100
	crawlConcurrency  = 5
)

// PageReader fetches the readable form of a page.
type PageReader interface {
	Readable(ctx context.Context, pageURL string, timeout time.Duration) (*fetch.Page, error)
}

var _ PageReader = (*fetch.Client)(nil)

// CrawlResult is the outcome of one adaptive crawl pass.
type CrawlResult struct {
	// Articles is the input with FullText filled in for the fetched seeds.
	Articles []core.Article
	// Discovered holds one stub per followed link.
	Discovered []core.Article
	// FetchedText counts seeds whose full text was newly fetched.
	FetchedText int
	// Planned counts links the model chose to follow.
	Planned int
}

// Changed reports whether a re-run of the pipeline could produce a different result.
func (r CrawlResult) Changed() bool {
	return len(r.Discovered) > 0 || r.FetchedText > 0
}

// Crawler follows outbound links of the best articles one hop deep.
type Crawler struct {
	reader  PageReader
	model   Model
	timeout time.Duration
	now     func() time.Time
	log     *slog.Logger
}

// NewCrawler creates a Crawler. timeout bounds each page fetch.
func NewCrawler(reader PageReader, model Model, timeout time.Duration) *Crawler {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Crawler{
		reader:  reader,
		model:   model,
		timeout: timeout,
		now:     time.Now,
		log:     logger.Get(),
	}
}

// Seeds returns up to MaxCrawlSeeds triage-good articles with a URL, best first.
func Seeds(articles []core.Article) []int {
	var seeds []int
	for i, a := range articles {
		if a.TriageStatus == core.TriageGood && a.URL != "" {
			seeds = append(seeds, i)
		}
	}
	sort.SliceStable(seeds, func(i, j int) bool { return articles[seeds[i]].Score > articles[seeds[j]].Score })
	return seeds[:min(MaxCrawlSeeds, len(seeds))]
}

// Expand fetches full text for the seeds of curated, asks the model which outbound
// links to follow, and turns each followed page into a discovery stub. Full text is
// attached to the articles of pool that share a seed's ID.
func (c *Crawler) Expand(ctx context.Context, pool, curated []core.Article, rubric *core.Rubric) CrawlResult {
	res := CrawlResult{Articles: pool}
	if c.model == nil {
		return res
	}

	seeds := Seeds(curated)
	if len(seeds) == 0 {
		return res
	}

	pages := make([]*fetch.Page, len(seeds))
	var g errgroup.Group
	g.SetLimit(crawlConcurrency)
	for i, idx := range seeds {
		seed := curated[idx]
		g.Go(func() error {
			page, err := c.reader.Readable(ctx, seed.URL, c.timeout)
			if err != nil {
				c.log.Debug("Crawl seed fetch failed", "url", seed.URL, "error", err)
				return nil
			}
			pages[i] = page
			return nil
		})
	}
	_ = g.Wait()

	p := parser.NewParser()
	known := make(map[string]bool, len(pool))
	for _, a := range pool {
		if a.URL != "" {
			known[p.NormalizeURL(a.URL)] = true
		}
	}

	texts := make(map[string]string)
	var links []fetch.Link
	for i, page := range pages {
		if page == nil {
			continue
		}
		seed := curated[seeds[i]]
		if page.Text != "" && seed.FullText == "" {
			texts[seed.ID] = page.Text
		}
		for _, l := range page.Links {
			key := p.NormalizeURL(l.URL)
			if known[key] || len(links) >= maxLinkCandidates {
				continue
			}
			known[key] = true
			links = append(links, l)
		}
	}

	if len(texts) > 0 {
		enriched := make([]core.Article, len(pool))
		copy(enriched, pool)
		for i := range enriched {
			if text, ok := texts[enriched[i].ID]; ok && enriched[i].FullText == "" {
				enriched[i].FullText = text
				res.FetchedText++
			}
		}
		res.Articles = enriched
	}

	if len(links) == 0 {
		return res
	}

	planned, err := c.model.PlanNextLinks(ctx, links, rubric)
	if err != nil {
		c.log.Warn("Link planning failed", "error", err)
		return res
	}
	planned = filterPlanned(planned, links)
	res.Planned = len(planned)
	if len(planned) == 0 {
		return res
	}

	res.Discovered = c.follow(ctx, planned)
	c.log.Info("Adaptive crawl complete",
		"seeds", len(seeds), "links", len(links), "planned", len(planned),
		"discovered", len(res.Discovered), "full_text", res.FetchedText)
	return res
}

// filterPlanned keeps planned URLs that were offered as candidates, once each, up
// to MaxFollowLinks.
func filterPlanned(planned []string, links []fetch.Link) []string {
	offered := make(map[string]bool, len(links))
	for _, l := range links {
		offered[l.URL] = true
	}
	out := make([]string, 0, MaxFollowLinks)
	for _, u := range planned {
		if len(out) == MaxFollowLinks {
			break
		}
		if offered[u] {
			out = append(out, u)
			delete(offered, u)
		}
	}
	return out
}

// follow fetches each planned URL and keeps its title as a discovery stub. Links
// found on these pages are not followed.
func (c *Crawler) follow(ctx context.Context, urls []string) []core.Article {
	stubs := make([]*core.Article, len(urls))

	var g errgroup.Group
	g.SetLimit(crawlConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			page, err := c.reader.Readable(ctx, u, c.timeout)
			if err != nil {
				c.log.Debug("Discovery fetch failed", "url", u, "error", err)
				return nil
			}
			stub := DiscoveryStub(u, page.Title, c.now())
			stubs[i] = &stub
			return nil
		})
	}
	_ = g.Wait()

	out := make([]core.Article, 0, len(stubs))
	for _, s := range stubs {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// DiscoveryStub builds the article for a followed link. The source is the link's host.
func DiscoveryStub(pageURL, title string, now time.Time) core.Article {
	host := pageURL
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		host = u.Host
	}
	if title == "" {
		title = core.UntitledTitle
	}
	return core.Article{
		ID:          pageURL,
		Title:       title,
		URL:         pageURL,
		SourceID:    host,
		SourceName:  host,
		Topic:       core.DiscoveryTopic,
		PublishedAt: now.UTC(),
		Score:       DiscoveryBaseline,
		SEOFlags:    []string{},
		Discovered:  true,
	}
}
