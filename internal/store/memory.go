package store

import (
	"context"
	"slices"
	"time"

	"curator/internal/core"
)

// memoryBackend keeps everything in process memory. Used by tests and dry runs.
type memoryBackend struct {
	sites []core.Source
	prefs *core.Preferences
}

// NewMemoryStore returns a store seeded with sites and an empty preference document.
func NewMemoryStore(sites ...core.Source) *Store {
	b := &memoryBackend{prefs: core.DefaultPreferences()}
	for _, site := range sites {
		_ = b.insertSite(context.Background(), site, time.Time{})
	}
	return newStore(b)
}

func (b *memoryBackend) close() error { return nil }

func (b *memoryBackend) loadPreferences(context.Context) (*core.Preferences, error) {
	return b.prefs.Clone(), nil
}

func (b *memoryBackend) savePreferences(_ context.Context, prefs *core.Preferences) error {
	b.prefs = prefs.Clone()
	return nil
}

func (b *memoryBackend) listSites(context.Context) ([]core.Source, error) {
	return slices.Clone(b.sites), nil
}

func (b *memoryBackend) insertSite(_ context.Context, site core.Source, _ time.Time) error {
	if site.Category == "" {
		site.Category = core.DefaultCategory
	}
	site.Blocked = false
	for i := range b.sites {
		if b.sites[i].URL == site.URL {
			b.sites[i].Category = site.Category
			return nil
		}
	}
	b.sites = append(b.sites, site)
	return nil
}
