package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"curator/internal/core"
	"curator/internal/parser"
)

// NewFeedCmd creates the command that builds and prints the ranked feed
func NewFeedCmd() *cobra.Command {
	var (
		sitesFile string
		asJSON    bool
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Build the ranked feed from every configured source",
		Long: `Resolve every configured source, score the articles and print the
ranked feed.

With a Gemini API key the articles are also triaged, scored against your
interest rubric, deduplicated by story, and enriched by a one-hop crawl.

Examples:
  # Print the feed as a table
  curator feed

  # Try a site list without touching the database
  curator feed --dry-run --sites sites.txt --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeed(cmd.Context(), cmd.OutOrStdout(), sitesFile, asJSON, limit)
		},
	}

	cmd.Flags().StringVar(&sitesFile, "sites", "", "import a site list (url|category lines or YAML) before running")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print articles as JSON")
	cmd.Flags().IntVar(&limit, "limit", 0, "print at most this many articles")

	return cmd
}

func runFeed(ctx context.Context, out io.Writer, sitesFile string, asJSON bool, limit int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if sitesFile != "" {
		if _, err := importSites(ctx, a, sitesFile); err != nil {
			return err
		}
	}

	articles, err := a.aggregator.FetchAllArticles(ctx)
	if err != nil {
		return fmt.Errorf("failed to build feed: %w", err)
	}
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(articles)
	}
	printArticles(out, articles)
	return nil
}

func printArticles(out io.Writer, articles []core.Article) {
	if len(articles) == 0 {
		fmt.Fprintln(out, "No articles. Add sources with 'curator site add'.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tTOPIC\tSOURCE\tTITLE")
	fmt.Fprintln(w, "-----\t-----\t------\t-----")
	for _, a := range articles {
		title := a.Title
		if len(a.SimilarArticles) > 0 {
			title = fmt.Sprintf("%s (+%d similar)", title, len(a.SimilarArticles))
		}
		fmt.Fprintf(w, "%.1f\t%s\t%s\t%s\n", a.Score, a.Topic, truncate(a.SourceName, 30), truncate(title, 80))
	}
	w.Flush()
	fmt.Fprintf(out, "\nTotal: %d articles\n", len(articles))
}

// importSites adds every site from a list file and reports how many were added.
func importSites(ctx context.Context, a *app, path string) (int, error) {
	sites, err := parser.NewParser().ParseSiteFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read site list: %w", err)
	}
	for _, site := range sites {
		if err := a.store.AddSite(ctx, site); err != nil {
			return 0, fmt.Errorf("failed to add %s: %w", site.URL, err)
		}
	}
	return len(sites), nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
