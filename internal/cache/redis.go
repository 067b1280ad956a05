// Package cache stores per-site derived artifacts with a TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/visitorlabs/profiler/internal/profile"
)

// Artifact key prefixes. All three entries for one site are written by one
// derivation pass and share a TTL.
const (
	taxonomyPrefix  = "taxonomy:"
	questionsPrefix = "questions:"
	summaryPrefix   = "summary:"
)

// Redis implements profile.ArtifactCache on a Redis key-value store.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing Redis client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Ping verifies connectivity; used by readiness probes.
func (c *Redis) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// GetTaxonomy returns the cached taxonomy or profile.ErrCacheMiss.
func (c *Redis) GetTaxonomy(ctx context.Context, key profile.SiteKey) (profile.Taxonomy, error) {
	var taxonomy profile.Taxonomy
	if err := c.get(ctx, taxonomyPrefix+string(key), &taxonomy); err != nil {
		return nil, err
	}
	return taxonomy, nil
}

// GetQuestions returns the cached question set or profile.ErrCacheMiss.
func (c *Redis) GetQuestions(ctx context.Context, key profile.SiteKey) (profile.QuestionSet, error) {
	var questions profile.QuestionSet
	if err := c.get(ctx, questionsPrefix+string(key), &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// GetSummary returns the cached summary or profile.ErrCacheMiss.
func (c *Redis) GetSummary(ctx context.Context, key profile.SiteKey) (string, error) {
	var summary string
	if err := c.get(ctx, summaryPrefix+string(key), &summary); err != nil {
		return "", err
	}
	return summary, nil
}

// PutArtifacts writes all three artifacts for key under one TTL. The writes
// go out in a single transactional pipeline so their expirations line up.
func (c *Redis) PutArtifacts(
	ctx context.Context,
	key profile.SiteKey,
	summary string,
	taxonomy profile.Taxonomy,
	questions profile.QuestionSet,
	ttl time.Duration,
) error {
	taxonomyJSON, err := json.Marshal(taxonomy)
	if err != nil {
		return fmt.Errorf("marshal taxonomy: %w", err)
	}
	questionsJSON, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, taxonomyPrefix+string(key), taxonomyJSON, ttl)
	pipe.Set(ctx, questionsPrefix+string(key), questionsJSON, ttl)
	pipe.Set(ctx, summaryPrefix+string(key), summaryJSON, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write artifacts for %s: %w", key, err)
	}
	return nil
}

func (c *Redis) get(ctx context.Context, key string, out any) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return profile.ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode cached %s: %w", key, err)
	}
	return nil
}
