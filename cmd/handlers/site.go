package handlers

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"curator/internal/core"
	"curator/internal/parser"
)

// NewSiteCmd creates the source management command
func NewSiteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "site",
		Short: "Manage sources",
		Long: `Manage the sources aggregated into the feed.

A source is any URL: an RSS/Atom/RDF feed, or a site whose feed is
discovered from its home page, or a page scraped for article links.

Subcommands:
  add       Add a source
  list      List sources
  import    Import a site list file`,
	}

	cmd.AddCommand(newSiteAddCmd())
	cmd.AddCommand(newSiteListCmd())
	cmd.AddCommand(newSiteImportCmd())

	return cmd
}

func newSiteAddCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Add a source",
		Long: `Add a source with an optional category.

Examples:
  curator site add https://hnrss.org/newest --category Tech
  curator site add example.com/blog`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSiteAdd(cmd.Context(), cmd.OutOrStdout(), args[0], category)
		},
	}

	cmd.Flags().StringVar(&category, "category", core.DefaultCategory, "category assigned to every article from this source")
	return cmd
}

func newSiteListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSiteList(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func newSiteImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a site list",
		Long: `Import sources from a file. Two formats are accepted:

  Text, one source per line:
    https://example.com/feed.xml|Tech

  YAML (.yaml or .yml):
    sites:
      - url: https://example.com/feed.xml
        category: Tech`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSiteImport(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

func runSiteAdd(ctx context.Context, out io.Writer, rawURL, category string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	p := parser.NewParser()
	if err := p.ValidateURL(p.NormalizeURL(rawURL)); err != nil {
		return fmt.Errorf("invalid source URL: %w", err)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	site := core.Source{URL: p.NormalizeURL(rawURL), Category: category}
	if err := a.store.AddSite(ctx, site); err != nil {
		return fmt.Errorf("failed to add source: %w", err)
	}
	fmt.Fprintf(out, "Added %s (%s)\n", site.URL, site.Category)
	return nil
}

func runSiteList(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sites, err := a.store.GetSites(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}
	if len(sites) == 0 {
		fmt.Fprintln(out, "No sources configured.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "URL\tCATEGORY\tSTATUS")
	fmt.Fprintln(w, "---\t--------\t------")
	for _, site := range sites {
		status := "active"
		if site.Blocked {
			status = "blocked"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", site.URL, site.Category, status)
	}
	w.Flush()
	fmt.Fprintf(out, "\nTotal: %d sources\n", len(sites))
	return nil
}

func runSiteImport(ctx context.Context, out io.Writer, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := importSites(ctx, a, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Imported %d sources\n", n)
	return nil
}
