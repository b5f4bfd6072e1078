// Package store persists the site list and the preference document. Every
// mutation is a read-modify-write performed under the store's mutex.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"curator/internal/core"
)

// ErrNotFound is returned when a mutation targets a record that does not exist.
var ErrNotFound = errors.New("not found")

// PreferenceStore is the handle every pipeline stage and action uses to read and
// mutate persisted state.
type PreferenceStore interface {
	GetSites(ctx context.Context) ([]core.Source, error)
	AddSite(ctx context.Context, site core.Source) error
	GetPreferences(ctx context.Context) (*core.Preferences, error)
	SavePreferences(ctx context.Context, prefs *core.Preferences) error
	UpdateSiteScore(ctx context.Context, siteURL string, delta float64) error
	UpdateTopicScore(ctx context.Context, topic string, delta float64) error
	ToggleBlockedSite(ctx context.Context, siteURL string) (bool, error)
	AddDemotedSite(ctx context.Context, siteURL string) (bool, error)
	AddDemotedTopic(ctx context.Context, topic string) (bool, error)
	RecordClick(ctx context.Context, sourceID, articleID string) error
	UpdateSourceReputation(ctx context.Context, sourceID string, update core.ReputationUpdate) error
	GetCategories(ctx context.Context) ([]string, error)
	SetRubric(ctx context.Context, rubric *core.Rubric) error
	SetInterestModel(ctx context.Context, model core.InterestModel) error
	AppendQuestions(ctx context.Context, questions []core.MicroQuestion, limit int) error
	RemoveQuestion(ctx context.Context, id string) error
}

// backend is the raw persistence used by Store.
type backend interface {
	loadPreferences(ctx context.Context) (*core.Preferences, error)
	savePreferences(ctx context.Context, prefs *core.Preferences) error
	listSites(ctx context.Context) ([]core.Source, error)
	insertSite(ctx context.Context, site core.Source, addedAt time.Time) error
	close() error
}

// Store implements PreferenceStore on top of a backend.
type Store struct {
	mu      sync.Mutex
	backend backend
	now     func() time.Time
}

var _ PreferenceStore = (*Store)(nil)

func newStore(b backend) *Store {
	return &Store{backend: b, now: time.Now}
}

// Close releases the underlying backend.
func (s *Store) Close() error {
	return s.backend.close()
}

// GetSites returns the configured sites in insertion order. Blocked reflects the
// current preference document.
func (s *Store) GetSites(ctx context.Context) ([]core.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sites, err := s.backend.listSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	prefs, err := s.backend.loadPreferences(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	for i := range sites {
		sites[i].Blocked = prefs.IsBlocked(sites[i].URL)
	}
	return sites, nil
}

// AddSite adds a site; re-adding an existing URL updates its category.
func (s *Store) AddSite(ctx context.Context, site core.Source) error {
	if site.URL == "" {
		return errors.New("site URL is required")
	}
	if site.Category == "" {
		site.Category = core.DefaultCategory
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.insertSite(ctx, site, s.now()); err != nil {
		return fmt.Errorf("failed to add site %s: %w", site.URL, err)
	}
	return nil
}

// GetPreferences returns a copy of the preference document.
func (s *Store) GetPreferences(ctx context.Context) (*core.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.backend.loadPreferences(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	return prefs, nil
}

// SavePreferences replaces the preference document. A changed interest model
// drops the cached rubric, as SetInterestModel does.
func (s *Store) SavePreferences(ctx context.Context, prefs *core.Preferences) error {
	if prefs == nil {
		return errors.New("preferences are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.backend.loadPreferences(ctx)
	if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}

	c := prefs.Clone()
	if c.InterestModel != current.InterestModel {
		c.CurrentRubric = nil
	}
	if err := s.backend.savePreferences(ctx, c); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

// update runs fn against the current document and persists the result unless fn
// returns an error.
func (s *Store) update(ctx context.Context, fn func(*core.Preferences) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.backend.loadPreferences(ctx)
	if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}
	if err := fn(prefs); err != nil {
		return err
	}
	if err := s.backend.savePreferences(ctx, prefs); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

// UpdateSiteScore adds delta to the site's preference score.
func (s *Store) UpdateSiteScore(ctx context.Context, siteURL string, delta float64) error {
	return s.update(ctx, func(p *core.Preferences) error {
		p.SiteScores[siteURL] += delta
		return nil
	})
}

// UpdateTopicScore adds delta to the topic's preference score.
func (s *Store) UpdateTopicScore(ctx context.Context, topic string, delta float64) error {
	return s.update(ctx, func(p *core.Preferences) error {
		p.TopicScores[topic] += delta
		return nil
	})
}

// ToggleBlockedSite blocks an unblocked site and unblocks a blocked one. It
// reports whether the site is blocked afterwards.
func (s *Store) ToggleBlockedSite(ctx context.Context, siteURL string) (bool, error) {
	var blocked bool
	err := s.update(ctx, func(p *core.Preferences) error {
		if i := slices.Index(p.BlockedSites, siteURL); i >= 0 {
			p.BlockedSites = slices.Delete(p.BlockedSites, i, i+1)
			blocked = false
			return nil
		}
		p.BlockedSites = append(p.BlockedSites, siteURL)
		blocked = true
		return nil
	})
	return blocked, err
}

// AddDemotedSite demotes a site. It reports false when the site was already demoted.
func (s *Store) AddDemotedSite(ctx context.Context, siteURL string) (bool, error) {
	var added bool
	err := s.update(ctx, func(p *core.Preferences) error {
		if slices.Contains(p.DemotedSites, siteURL) {
			return nil
		}
		p.DemotedSites = append(p.DemotedSites, siteURL)
		added = true
		return nil
	})
	return added, err
}

// AddDemotedTopic demotes a topic. It reports false when the topic was already demoted.
func (s *Store) AddDemotedTopic(ctx context.Context, topic string) (bool, error) {
	var added bool
	err := s.update(ctx, func(p *core.Preferences) error {
		if slices.Contains(p.DemotedTopics, topic) {
			return nil
		}
		p.DemotedTopics = append(p.DemotedTopics, topic)
		added = true
		return nil
	})
	return added, err
}

// RecordClick appends the article to the click history and counts the click
// towards the source's engagement.
func (s *Store) RecordClick(ctx context.Context, sourceID, articleID string) error {
	return s.update(ctx, func(p *core.Preferences) error {
		if articleID != "" {
			p.ClickHistory = append(p.ClickHistory, articleID)
		}
		if sourceID != "" {
			rep := p.SourceReputation[sourceID]
			rep.UserEngagement++
			p.SourceReputation[sourceID] = rep
		}
		return nil
	})
}

// UpdateSourceReputation folds one triage observation into the source's reputation.
func (s *Store) UpdateSourceReputation(ctx context.Context, sourceID string, update core.ReputationUpdate) error {
	return s.update(ctx, func(p *core.Preferences) error {
		p.SourceReputation[sourceID] = p.SourceReputation[sourceID].Apply(update)
		return nil
	})
}

// GetCategories returns the distinct categories of the configured sites, sorted.
func (s *Store) GetCategories(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sites, err := s.backend.listSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	seen := make(map[string]bool)
	categories := make([]string, 0)
	for _, site := range sites {
		if seen[site.Category] {
			continue
		}
		seen[site.Category] = true
		categories = append(categories, site.Category)
	}
	sort.Strings(categories)
	return categories, nil
}

// SetRubric stores the current rubric.
func (s *Store) SetRubric(ctx context.Context, rubric *core.Rubric) error {
	return s.update(ctx, func(p *core.Preferences) error {
		if rubric == nil {
			p.CurrentRubric = nil
			return nil
		}
		r := *rubric
		p.CurrentRubric = &r
		return nil
	})
}

// SetInterestModel replaces the interest model and invalidates the cached rubric.
func (s *Store) SetInterestModel(ctx context.Context, model core.InterestModel) error {
	return s.update(ctx, func(p *core.Preferences) error {
		p.InterestModel = model
		p.CurrentRubric = nil
		return nil
	})
}

// AppendQuestions queues questions, keeping only the limit most recent.
func (s *Store) AppendQuestions(ctx context.Context, questions []core.MicroQuestion, limit int) error {
	if len(questions) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = core.MaxPendingQuestions
	}
	return s.update(ctx, func(p *core.Preferences) error {
		p.PendingQuestions = append(p.PendingQuestions, questions...)
		if n := len(p.PendingQuestions); n > limit {
			p.PendingQuestions = slices.Clone(p.PendingQuestions[n-limit:])
		}
		return nil
	})
}

// RemoveQuestion drops a pending question. It returns ErrNotFound for unknown IDs.
func (s *Store) RemoveQuestion(ctx context.Context, id string) error {
	return s.update(ctx, func(p *core.Preferences) error {
		i := slices.IndexFunc(p.PendingQuestions, func(q core.MicroQuestion) bool { return q.ID == id })
		if i < 0 {
			return fmt.Errorf("question %s: %w", id, ErrNotFound)
		}
		p.PendingQuestions = slices.Delete(p.PendingQuestions, i, i+1)
		return nil
	})
}
