package handlers

import (
	"context"
	"fmt"

	"curator/internal/config"
	"curator/internal/curation"
	"curator/internal/llm"
	"curator/internal/logger"
	"curator/internal/pipeline"
	"curator/internal/services"
	"curator/internal/store"
)

// app is the wired object graph shared by every command.
type app struct {
	store      *store.Store
	aggregator *pipeline.Aggregator
	curator    *curation.Curator
	dispatcher *services.Dispatcher
}

// newApp opens the store and wires the pipeline from the loaded configuration.
// The language model is attached only when a Gemini key is configured.
func newApp(ctx context.Context) (*app, error) {
	cfg := config.Get()
	log := logger.Get()

	var st *store.Store
	if dryRun {
		st = store.NewMemoryStore()
	} else {
		var err error
		st, err = store.NewSQLiteStore(cfg.App.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
	}

	builder := pipeline.NewBuilder().
		WithStore(st).
		WithUserAgent(cfg.Feeds.UserAgent).
		WithTimeouts(config.Duration(cfg.Feeds.FeedTimeout, 0), config.Duration(cfg.Feeds.PageTimeout, 0)).
		WithMaxItems(cfg.Feeds.MaxItemsPerFeed).
		WithJitter(cfg.Pipeline.Jitter).
		WithConfig(&pipeline.Config{
			OutputLimit:    cfg.Pipeline.OutputLimit,
			AdaptiveCrawl:  cfg.Pipeline.AdaptiveCrawl,
			MaxConcurrency: pipeline.DefaultConfig().MaxConcurrency,
		})

	if config.HasGemini() {
		client, err := llm.NewClient(ctx, llm.Config{
			APIKey:      cfg.AI.Gemini.APIKey,
			Model:       cfg.AI.Gemini.Model,
			Timeout:     config.Duration(cfg.AI.Gemini.Timeout, llm.DefaultTimeout),
			Temperature: cfg.AI.Gemini.Temperature,
		})
		if err != nil {
			log.Warn("Gemini client unavailable, AI stages disabled", "error", err)
		} else {
			builder.WithModel(curation.NewLLMModel(client))
		}
	} else {
		log.Info("No Gemini API key configured, AI stages disabled")
	}

	aggregator, err := builder.Build()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &app{
		store:      st,
		aggregator: aggregator,
		curator:    builder.Curator(),
		dispatcher: services.NewDispatcher(st, builder.Curator()),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
