/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"curator/internal/config"
	"curator/internal/logger"
)

var (
	cfgFile string
	dryRun  bool
)

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "curator",
		Short: "Curator aggregates your sources into one personalized, ranked feed.",
		Long: `Curator pulls articles from every configured source (RSS, Atom, RDF,
discovered feeds or scraped pages), scores them by freshness and your
preferences, and, when a Gemini API key is configured, triages, scores,
deduplicates and expands them with a language model.

Preferences learn from your actions: clicks, blocks, demotions and answers
to short calibration questions.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.curator.yaml)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "use an in-memory store; nothing is persisted")

	rootCmd.AddCommand(NewFeedCmd())
	rootCmd.AddCommand(NewBrowseCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewSiteCmd())
	rootCmd.AddCommand(NewActionCmd())
	rootCmd.AddCommand(NewQuestionsCmd())
	rootCmd.AddCommand(NewAnswerCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig loads configuration and applies the logging section.
func initConfig() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	logger.Configure(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	return nil
}
