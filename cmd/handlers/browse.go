package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"curator/internal/tui"
)

// NewBrowseCmd creates the interactive feed browser command
func NewBrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse the ranked feed in the terminal",
		Long: `Build the feed and open it in an interactive terminal browser.

Reading, blocking and demoting from the browser updates your preferences
exactly like the HTTP API does.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrowse(cmd.Context())
		},
	}
}

func runBrowse(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	articles, err := a.aggregator.FetchAllArticles(ctx)
	if err != nil {
		return fmt.Errorf("failed to build feed: %w", err)
	}
	return tui.Run(articles, a.dispatcher)
}
