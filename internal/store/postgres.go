// Package store persists per-visitor profile documents.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/visitorlabs/profiler/internal/metrics"
	"github.com/visitorlabs/profiler/internal/profile"
)

// casRetries bounds the compare-and-swap loop on contended visitor rows.
const casRetries = 3

// Querier is the subset of pgxpool.Pool the store needs; pgxmock satisfies
// it in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresConfig controls the visitor document connection pool.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Postgres implements profile.ProfileStore with one JSONB document per
// visitor and a version column for whole-document compare-and-swap.
//
// Expected schema:
//
//	CREATE TABLE visitors (
//	    visitor_id TEXT PRIMARY KEY,
//	    doc        JSONB NOT NULL,
//	    version    BIGINT NOT NULL DEFAULT 1,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type Postgres struct {
	pool Querier
}

// NewPostgres connects a pool from config.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgresWithPool constructs a store from an existing pool (primarily
// for testing).
func NewPostgresWithPool(pool Querier) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Postgres) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Get loads the visitor document, or profile.ErrNotFound.
func (s *Postgres) Get(ctx context.Context, visitorID string) (profile.VisitorProfile, error) {
	doc, _, err := s.load(ctx, visitorID)
	return doc, err
}

// GetSite loads one site entry from the visitor document.
func (s *Postgres) GetSite(ctx context.Context, visitorID string, key profile.SiteKey) (profile.SiteEntry, error) {
	doc, _, err := s.load(ctx, visitorID)
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
// on first visit. The merge preserves sibling entries and previously
// recorded categories; see profile.VisitorProfile.UpsertSite.
func (s *Postgres) UpsertSite(ctx context.Context, visitorID string, entry profile.SiteEntry) error {
	return s.mutate(ctx, visitorID, true, func(doc *profile.VisitorProfile) error {
		doc.UpsertSite(entry)
		return nil
	})
}

// UpsertCategories updates only the categories of an existing site entry.
// Submitting answers for a site never fetched is a client error, so a
// missing entry fails with profile.ErrSiteNotFound instead of creating one.
func (s *Postgres) UpsertCategories(
	ctx context.Context,
	visitorID string,
	key profile.SiteKey,
	categories []profile.Category,
) error {
	err := s.mutate(ctx, visitorID, false, func(doc *profile.VisitorProfile) error {
		if !doc.SetCategories(key, categories) {
			return profile.ErrSiteNotFound
		}
		return nil
	})
	if errors.Is(err, profile.ErrNotFound) {
		return profile.ErrSiteNotFound
	}
	return err
}

// mutate runs a read-modify-write cycle on the visitor document with
// optimistic concurrency. createMissing controls whether a missing document
// is created instead of surfacing profile.ErrNotFound.
func (s *Postgres) mutate(
	ctx context.Context,
	visitorID string,
	createMissing bool,
	apply func(*profile.VisitorProfile) error,
) error {
	for attempt := 0; attempt < casRetries; attempt++ {
		doc, version, err := s.load(ctx, visitorID)
		switch {
		case errors.Is(err, profile.ErrNotFound):
			if !createMissing {
				return err
			}
			doc = profile.VisitorProfile{VisitorID: visitorID}
			if err := apply(&doc); err != nil {
				return err
			}
			inserted, err := s.insert(ctx, visitorID, doc)
			if err != nil {
				return err
			}
			if inserted {
				return nil
			}
			// Row appeared between load and insert; retry as an update.
			continue
		case err != nil:
			return err
		}

		if err := apply(&doc); err != nil {
			return err
		}
		swapped, err := s.swap(ctx, visitorID, doc, version)
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
	}
	metrics.ObserveProfileWriteConflict()
	return fmt.Errorf("upsert visitor %s: %w", visitorID, profile.ErrWriteConflict)
}

func (s *Postgres) load(ctx context.Context, visitorID string) (profile.VisitorProfile, int64, error) {
	query := `SELECT doc, version FROM visitors WHERE visitor_id = $1;`
	var (
		raw     []byte
		version int64
	)
	err := s.pool.QueryRow(ctx, query, visitorID).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return profile.VisitorProfile{}, 0, profile.ErrNotFound
	}
	if err != nil {
		return profile.VisitorProfile{}, 0, fmt.Errorf("load visitor %s: %w", visitorID, err)
	}
	var doc profile.VisitorProfile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return profile.VisitorProfile{}, 0, fmt.Errorf("decode visitor %s: %w", visitorID, err)
	}
	doc.VisitorID = visitorID
	return doc, version, nil
}

func (s *Postgres) insert(ctx context.Context, visitorID string, doc profile.VisitorProfile) (bool, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("encode visitor %s: %w", visitorID, err)
	}
	query := `
		INSERT INTO visitors (visitor_id, doc, version, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (visitor_id) DO NOTHING;
	`
	tag, err := s.pool.Exec(ctx, query, visitorID, raw)
	if err != nil {
		return false, fmt.Errorf("insert visitor %s: %w", visitorID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) swap(
	ctx context.Context,
	visitorID string,
	doc profile.VisitorProfile,
	version int64,
) (bool, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("encode visitor %s: %w", visitorID, err)
	}
	query := `
		UPDATE visitors
		SET doc = $2, version = version + 1, updated_at = NOW()
		WHERE visitor_id = $1 AND version = $3;
	`
	tag, err := s.pool.Exec(ctx, query, visitorID, raw, version)
	if err != nil {
		return false, fmt.Errorf("update visitor %s: %w", visitorID, err)
	}
	return tag.RowsAffected() == 1, nil
}
