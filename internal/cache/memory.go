package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/visitorlabs/profiler/internal/profile"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process profile.ArtifactCache for tests and local runs.
// Expired entries are dropped lazily on read.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	clock   profile.Clock
}

// NewMemory builds an empty Memory cache. A nil clock falls back to
// time.Now.
func NewMemory(clock profile.Clock) *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		clock:   clock,
	}
}

func (c *Memory) now() time.Time {
	if c.clock != nil {
		return c.clock.Now()
	}
	return time.Now()
}

// GetTaxonomy returns the cached taxonomy or profile.ErrCacheMiss.
func (c *Memory) GetTaxonomy(_ context.Context, key profile.SiteKey) (profile.Taxonomy, error) {
	var taxonomy profile.Taxonomy
	if err := c.get(taxonomyPrefix+string(key), &taxonomy); err != nil {
		return nil, err
	}
	return taxonomy, nil
}

// GetQuestions returns the cached question set or profile.ErrCacheMiss.
func (c *Memory) GetQuestions(_ context.Context, key profile.SiteKey) (profile.QuestionSet, error) {
	var questions profile.QuestionSet
	if err := c.get(questionsPrefix+string(key), &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// GetSummary returns the cached summary or profile.ErrCacheMiss.
func (c *Memory) GetSummary(_ context.Context, key profile.SiteKey) (string, error) {
	var summary string
	if err := c.get(summaryPrefix+string(key), &summary); err != nil {
		return "", err
	}
	return summary, nil
}

// PutArtifacts stores all three artifacts under one expiration.
func (c *Memory) PutArtifacts(
	_ context.Context,
	key profile.SiteKey,
	summary string,
	taxonomy profile.Taxonomy,
	questions profile.QuestionSet,
	ttl time.Duration,
) error {
	expiresAt := c.now().Add(ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	for prefix, v := range map[string]any{
		taxonomyPrefix:  taxonomy,
		questionsPrefix: questions,
		summaryPrefix:   summary,
	} {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal artifact: %w", err)
		}
		c.entries[prefix+string(key)] = memoryEntry{value: data, expiresAt: expiresAt}
	}
	return nil
}

// Drop removes all artifacts for key, used by tests to simulate expiry.
func (c *Memory) Drop(key profile.SiteKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, taxonomyPrefix+string(key))
	delete(c.entries, questionsPrefix+string(key))
	delete(c.entries, summaryPrefix+string(key))
}

// DropTaxonomy removes only the taxonomy entry, used by tests to provoke
// the integrity guard.
func (c *Memory) DropTaxonomy(key profile.SiteKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, taxonomyPrefix+string(key))
}

// DropSummary removes only the summary entry.
func (c *Memory) DropSummary(key profile.SiteKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, summaryPrefix+string(key))
}

func (c *Memory) get(key string, out any) error {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return profile.ErrCacheMiss
	}
	if err := json.Unmarshal(entry.value, out); err != nil {
		return fmt.Errorf("decode artifact %s: %w", key, err)
	}
	return nil
}
