package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator/internal/core"
	"curator/internal/curation"
	"curator/internal/store"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func rssFeed(title string, items ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0"?><rss version="2.0"><channel><title>%s</title>`, title)
	for _, item := range items {
		b.WriteString(item)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func rssItem(title, link string, published time.Time) string {
	return fmt.Sprintf(`<item><title>%s</title><link>%s</link><pubDate>%s</pubDate>
<description>A summary long enough to survive cleaning for %s.</description>
<enclosure url="https://img.example/%s.jpg" type="image/jpeg"/></item>`,
		title, link, published.Format(time.RFC1123Z), title, title)
}

func newFeedServer(t *testing.T, feeds map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := feeds[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestBuilder(st store.PreferenceStore) *Builder {
	return NewBuilder().
		WithStore(st).
		WithJitter(0).
		WithRand(rand.New(rand.NewSource(1))).
		WithClock(func() time.Time { return testNow })
}

func TestBuild_RequiresStore(t *testing.T) {
	_, err := NewBuilder().Build()
	assert.Error(t, err)
}

func TestFetchAllArticles_HeuristicOnly(t *testing.T) {
	server := newFeedServer(t, map[string]string{
		"/a.xml": rssFeed("Feed A",
			rssItem("Fresh", "https://a.example/fresh?utm_source=x", testNow.Add(-1*time.Hour)),
			rssItem("Old", "https://a.example/old", testNow.Add(-50*time.Hour)),
		),
		"/b.xml": rssFeed("Feed B",
			rssItem("Dup", "https://a.example/fresh", testNow.Add(-2*time.Hour)),
			rssItem("Mid", "https://b.example/mid", testNow.Add(-10*time.Hour)),
		),
	})
	st := store.NewMemoryStore(
		core.Source{URL: server.URL + "/a.xml", Category: "Tech"},
		core.Source{URL: server.URL + "/b.xml", Category: "News"},
	)

	agg, err := newTestBuilder(st).Build()
	require.NoError(t, err)

	articles, err := agg.FetchAllArticles(context.Background())
	require.NoError(t, err)
	require.Len(t, articles, 3, "the normalized duplicate is dropped")

	for i := 1; i < len(articles); i++ {
		assert.GreaterOrEqual(t, articles[i-1].Score, articles[i].Score)
	}
	for _, a := range articles {
		assert.NotEmpty(t, a.ID)
		assert.NotEmpty(t, a.URL)
		assert.NotEmpty(t, a.ImageURL)
	}
	assert.Equal(t, "Old", articles[2].Title)
	assert.InDelta(t, 50.0, articles[2].Score, 1e-6)
}

func TestFetchAllArticles_DemotedSource(t *testing.T) {
	server := newFeedServer(t, map[string]string{
		"/demoted.xml": rssFeed("Demoted", rssItem("Brand new", "https://d.example/new", testNow)),
		"/normal.xml":  rssFeed("Normal", rssItem("Ancient", "https://n.example/old", testNow.Add(-500*time.Hour))),
	})
	ctx := context.Background()
	st := store.NewMemoryStore(
		core.Source{URL: server.URL + "/demoted.xml", Category: "Tech"},
		core.Source{URL: server.URL + "/normal.xml", Category: "Tech"},
	)
	added, err := st.AddDemotedSite(ctx, server.URL+"/demoted.xml")
	require.NoError(t, err)
	require.True(t, added)
	require.NoError(t, st.UpdateSiteScore(ctx, server.URL+"/demoted.xml", -5))

	agg, err := newTestBuilder(st).Build()
	require.NoError(t, err)

	articles, err := agg.FetchAllArticles(ctx)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, "Ancient", articles[0].Title)
	assert.Equal(t, "Brand new", articles[1].Title)
	assert.Less(t, articles[1].Score, 0.0)
}

func TestFetchAllArticles_SkipsBlocked(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(rssFeed("F", rssItem("X", "https://x.example/1", testNow))))
	}))
	defer server.Close()

	ctx := context.Background()
	st := store.NewMemoryStore(core.Source{URL: server.URL + "/feed", Category: "Tech"})
	_, err := st.ToggleBlockedSite(ctx, server.URL+"/feed")
	require.NoError(t, err)

	agg, err := newTestBuilder(st).Build()
	require.NoError(t, err)

	articles, err := agg.FetchAllArticles(ctx)
	require.NoError(t, err)
	assert.Empty(t, articles)
	assert.Zero(t, hits)
}

func TestFetchAllArticles_UnreachableSource(t *testing.T) {
	server := newFeedServer(t, map[string]string{
		"/ok.xml": rssFeed("OK", rssItem("Works", "https://ok.example/1", testNow)),
	})
	st := store.NewMemoryStore(
		core.Source{URL: server.URL + "/ok.xml", Category: "Tech"},
		core.Source{URL: "http://127.0.0.1:1/feed", Category: "Tech"},
	)

	agg, err := newTestBuilder(st).Build()
	require.NoError(t, err)

	articles, err := agg.FetchAllArticles(context.Background())
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "Works", articles[0].Title)
}

type stubPersonalizer struct {
	runs   [][]core.Article
	rubric *core.Rubric
	adjust func(articles []core.Article) []core.Article
}

func (p *stubPersonalizer) Run(ctx context.Context, articles []core.Article) *curation.Result {
	p.runs = append(p.runs, articles)
	out := articles
	if p.adjust != nil {
		out = p.adjust(articles)
	}
	return &curation.Result{Articles: out, Rubric: p.rubric}
}

type stubExpander struct {
	result curation.CrawlResult
	calls  int
}

func (e *stubExpander) Expand(ctx context.Context, pool, curated []core.Article, rubric *core.Rubric) curation.CrawlResult {
	e.calls++
	res := e.result
	if res.Articles == nil {
		res.Articles = pool
	}
	return res
}

func staticResolverAggregator(t *testing.T, articles []core.Article, p Personalizer, e LinkExpander, cfg *Config) *Aggregator {
	t.Helper()
	st := store.NewMemoryStore(core.Source{URL: "https://src.example/feed", Category: "Tech"})
	return NewAggregator(st, staticResolver{}, staticNormalizer{articles: articles}, noopScorer{}, p, e, cfg)
}

func TestFetchAllArticles_SecondPass(t *testing.T) {
	pool := []core.Article{
		{ID: "a", URL: "https://src.example/a", Score: 10},
		{ID: "b", URL: "https://src.example/b", Score: 20},
	}
	p := &stubPersonalizer{rubric: &core.Rubric{Version: 4}}
	e := &stubExpander{result: curation.CrawlResult{
		Discovered: []core.Article{
			curation.DiscoveryStub("https://found.example/x", "Found", testNow),
			curation.DiscoveryStub("https://src.example/a", "Dup", testNow),
		},
	}}

	agg := staticResolverAggregator(t, pool, p, e, &Config{AdaptiveCrawl: true, Rand: rand.New(rand.NewSource(1))})
	articles, err := agg.FetchAllArticles(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, e.calls)
	require.Len(t, p.runs, 2)
	assert.Len(t, p.runs[1], 3, "discovered stubs are merged and deduplicated")
	require.Len(t, articles, 3)
	assert.Equal(t, "https://found.example/x", articles[0].ID)
}

func TestFetchAllArticles_NoSecondPassWithoutChanges(t *testing.T) {
	pool := []core.Article{{ID: "a", URL: "https://src.example/a", Score: 10}}
	p := &stubPersonalizer{rubric: &core.Rubric{Version: 4}}
	e := &stubExpander{}

	agg := staticResolverAggregator(t, pool, p, e, &Config{AdaptiveCrawl: true})
	_, err := agg.FetchAllArticles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, e.calls)
	assert.Len(t, p.runs, 1)
}

func TestFetchAllArticles_CrawlDisabled(t *testing.T) {
	pool := []core.Article{{ID: "a", URL: "https://src.example/a", Score: 10}}
	p := &stubPersonalizer{rubric: &core.Rubric{Version: 4}}
	e := &stubExpander{}

	agg := staticResolverAggregator(t, pool, p, e, &Config{AdaptiveCrawl: false})
	_, err := agg.FetchAllArticles(context.Background())
	require.NoError(t, err)
	assert.Zero(t, e.calls)
}

func TestFetchAllArticles_OutputLimit(t *testing.T) {
	var pool []core.Article
	for i := 0; i < 250; i++ {
		pool = append(pool, core.Article{ID: fmt.Sprint(i), URL: fmt.Sprintf("https://src.example/%d", i), Score: float64(i)})
	}

	agg := staticResolverAggregator(t, pool, nil, nil, nil)
	articles, err := agg.FetchAllArticles(context.Background())
	require.NoError(t, err)
	require.Len(t, articles, OutputLimit)
	assert.Equal(t, 249.0, articles[0].Score)
	assert.Equal(t, 50.0, articles[OutputLimit-1].Score)
}

func TestRank_StableForTies(t *testing.T) {
	in := []core.Article{{ID: "a", Score: 1}, {ID: "b", Score: 2}, {ID: "c", Score: 1}}
	out := Rank(in, 0)
	assert.Equal(t, []string{"b", "a", "c"}, []string{out[0].ID, out[1].ID, out[2].ID})
	assert.Equal(t, "a", in[0].ID, "input is not reordered")

	assert.Len(t, Rank(in, 2), 2)
}
