package store

import (
	"context"
	"sync"

	"github.com/visitorlabs/profiler/internal/profile"
)

// Memory is an in-process profile.ProfileStore for tests and local runs.
// A single mutex stands in for the document-level compare-and-swap the
// Postgres store performs.
type Memory struct {
	mu       sync.RWMutex
	visitors map[string]profile.VisitorProfile
}

// NewMemory builds an empty Memory store.
func NewMemory() *Memory {
	return &Memory{visitors: make(map[string]profile.VisitorProfile)}
}

// Get returns a copy of the visitor document, or profile.ErrNotFound.
func (s *Memory) Get(_ context.Context, visitorID string) (profile.VisitorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.visitors[visitorID]
	if !ok {
		return profile.VisitorProfile{}, profile.ErrNotFound
	}
	return cloneProfile(doc), nil
}

// GetSite returns one site entry from the visitor document.
func (s *Memory) GetSite(ctx context.Context, visitorID string, key profile.SiteKey) (profile.SiteEntry, error) {
	doc, err := s.Get(ctx, visitorID)
	if err != nil {
		return profile.SiteEntry{}, err
	}
	entry, ok := doc.Site(key)
	if !ok {
		return profile.SiteEntry{}, profile.ErrNotFound
	}
	return entry, nil
}

// UpsertSite merges entry into the visitor document, creating the document
// on first visit.
func (s *Memory) UpsertSite(_ context.Context, visitorID string, entry profile.SiteEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.visitors[visitorID]
	if !ok {
		doc = profile.VisitorProfile{VisitorID: visitorID}
	}
	doc.UpsertSite(cloneEntry(entry))
	s.visitors[visitorID] = doc
	return nil
}

// UpsertCategories updates only the categories of an existing site entry.
func (s *Memory) UpsertCategories(
	_ context.Context,
	visitorID string,
	key profile.SiteKey,
	categories []profile.Category,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.visitors[visitorID]
	if !ok {
		return profile.ErrSiteNotFound
	}
	if !doc.SetCategories(key, cloneCategories(categories)) {
		return profile.ErrSiteNotFound
	}
	s.visitors[visitorID] = doc
	return nil
}

// cloneProfile deep-copies a visitor document so callers can mutate the
// result without writing through to the stored one.
func cloneProfile(doc profile.VisitorProfile) profile.VisitorProfile {
	out := profile.VisitorProfile{VisitorID: doc.VisitorID}
	out.Sites = make([]profile.SiteEntry, len(doc.Sites))
	for i, site := range doc.Sites {
		out.Sites[i] = cloneEntry(site)
	}
	return out
}

func cloneEntry(entry profile.SiteEntry) profile.SiteEntry {
	out := entry
	if entry.Questions != nil {
		out.Questions = make(profile.QuestionSet, len(entry.Questions))
		for i, q := range entry.Questions {
			out.Questions[i] = profile.Question{
				Question: q.Question,
				Options:  append([]string(nil), q.Options...),
			}
		}
	}
	if entry.Categories != nil {
		out.Categories = cloneCategories(entry.Categories)
	}
	return out
}

func cloneCategories(categories []profile.Category) []profile.Category {
	out := make([]profile.Category, len(categories))
	for i, c := range categories {
		out[i] = profile.Category{
			Category: c.Category,
			Labels:   append([]string(nil), c.Labels...),
		}
	}
	return out
}
