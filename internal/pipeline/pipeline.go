// Package pipeline implements the derivation and classification flows that
// turn page content into cached interest artifacts and visitor profile updates.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/visitorlabs/profiler/internal/metrics"
	"github.com/visitorlabs/profiler/internal/profile"
	"github.com/visitorlabs/profiler/internal/siteid"
	"github.com/visitorlabs/profiler/internal/textutil"
)

// Config controls Pipeline behavior.
type Config struct {
	// ArtifactTTL bounds how long derived artifacts live in the cache.
	ArtifactTTL time.Duration
	// FetchTimeout bounds a single page fetch.
	FetchTimeout time.Duration
	// ClassifyTimeout bounds a single classifier call.
	ClassifyTimeout time.Duration
	// MaxDeriveChars caps how much page text is handed to the taxonomy and
	// question stages. Summaries still see the full text.
	MaxDeriveChars int
	// Topic names the event topic for profile updates. Empty disables publishing.
	Topic string
}

// Pipeline coordinates fetching, classification, caching and profile writes.
type Pipeline struct {
	cache      profile.ArtifactCache
	store      profile.ProfileStore
	fetcher    profile.ContentFetcher
	classifier profile.Classifier
	publisher  profile.Publisher
	clock      profile.Clock
	cfg        Config
	logger     *zap.Logger
	derive     singleflight.Group
}

// New constructs a Pipeline.
func New(
	cache profile.ArtifactCache,
	store profile.ProfileStore,
	fetcher profile.ContentFetcher,
	classifier profile.Classifier,
	publisher profile.Publisher,
	clock profile.Clock,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ArtifactTTL <= 0 {
		cfg.ArtifactTTL = 24 * time.Hour
	}
	if cfg.MaxDeriveChars <= 0 {
		cfg.MaxDeriveChars = 1500
	}
	return &Pipeline{
		cache:      cache,
		store:      store,
		fetcher:    fetcher,
		classifier: classifier,
		publisher:  publisher,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// derived bundles the artifacts produced for one site.
type derived struct {
	taxonomy  profile.Taxonomy
	questions profile.QuestionSet
	summary   string
}

// GetOrDeriveSite returns the question set and summary for a site, deriving
// and caching them on a miss, and records the site on the visitor's profile.
func (p *Pipeline) GetOrDeriveSite(ctx context.Context, visitorID, rawURL string) (profile.QuestionSet, string, error) {
	key, err := siteid.Normalize(rawURL)
	if err != nil {
		return nil, "", err
	}

	questions, err := p.cache.GetQuestions(ctx, key)
	switch {
	case err == nil:
		summary, serr := p.cache.GetSummary(ctx, key)
		if serr != nil {
			if !errors.Is(serr, profile.ErrCacheMiss) {
				return nil, "", fmt.Errorf("load summary for %s: %w", key, serr)
			}
			p.logger.Warn("summary missing for cached questions", zap.String("site", string(key)))
			summary = ""
		}
		metrics.ObserveCacheRequest("questions", "hit")
		if err := p.recordVisit(ctx, visitorID, key, questions, summary); err != nil {
			return nil, "", err
		}
		return questions, summary, nil
	case errors.Is(err, profile.ErrCacheMiss):
		metrics.ObserveCacheRequest("questions", "miss")
	default:
		return nil, "", fmt.Errorf("load questions for %s: %w", key, err)
	}

	d, err := p.deriveSite(ctx, key, rawURL)
	if err != nil {
		metrics.ObserveDerivation("error")
		return nil, "", err
	}
	metrics.ObserveDerivation("ok")

	if err := p.recordVisit(ctx, visitorID, key, d.questions, d.summary); err != nil {
		return nil, "", err
	}
	return d.questions, d.summary, nil
}

// deriveSite runs the fetch and classification stages for a site and caches
// the result. Concurrent derivations of the same site collapse into one.
func (p *Pipeline) deriveSite(ctx context.Context, key profile.SiteKey, rawURL string) (derived, error) {
	v, err, _ := p.derive.Do(string(key), func() (any, error) {
		// A racing derivation may have populated the cache already.
		if questions, err := p.cache.GetQuestions(ctx, key); err == nil {
			summary, serr := p.cache.GetSummary(ctx, key)
			if serr != nil {
				summary = ""
			}
			taxonomy, terr := p.cache.GetTaxonomy(ctx, key)
			if terr != nil {
				taxonomy = nil
			}
			return derived{taxonomy: taxonomy, questions: questions, summary: summary}, nil
		}

		result, err := p.fetch(ctx, rawURL)
		if err != nil {
			return derived{}, err
		}

		summary, err := p.classifySummary(ctx, result.Text)
		if err != nil {
			return derived{}, err
		}

		excerpt := textutil.Truncate(result.Text, p.cfg.MaxDeriveChars)
		taxonomy, err := p.classifyTaxonomy(ctx, excerpt)
		if err != nil {
			return derived{}, err
		}
		questions, err := p.classifyQuestions(ctx, taxonomy, excerpt)
		if err != nil {
			return derived{}, err
		}

		if err := p.cache.PutArtifacts(ctx, key, summary, taxonomy, questions, p.cfg.ArtifactTTL); err != nil {
			return derived{}, fmt.Errorf("cache artifacts for %s: %w", key, err)
		}
		p.logger.Info("derived site artifacts",
			zap.String("site", string(key)),
			zap.Int("categories", len(taxonomy)),
			zap.Int("questions", len(questions)),
			zap.Duration("fetch", result.Duration))
		return derived{taxonomy: taxonomy, questions: questions, summary: summary}, nil
	})
	if err != nil {
		return derived{}, err
	}
	return v.(derived), nil
}

// SubmitAnswers classifies a visitor's answers for an already-derived site
// and records the resulting categories on the visitor's profile.
func (p *Pipeline) SubmitAnswers(ctx context.Context, visitorID, rawURL string, answers []profile.Answer) ([]profile.Category, error) {
	key, err := siteid.Normalize(rawURL)
	if err != nil {
		return nil, err
	}

	questions, err := p.cache.GetQuestions(ctx, key)
	if err != nil {
		if errors.Is(err, profile.ErrCacheMiss) {
			return nil, fmt.Errorf("site %s: %w", key, profile.ErrNoTaxonomy)
		}
		return nil, fmt.Errorf("load questions for %s: %w", key, err)
	}
	taxonomy, err := p.cache.GetTaxonomy(ctx, key)
	if err != nil {
		if errors.Is(err, profile.ErrCacheMiss) {
			// Questions without a taxonomy means the cache lost one of a
			// pair that is only ever written together.
			return nil, fmt.Errorf("site %s: %w", key, profile.ErrCacheIntegrity)
		}
		return nil, fmt.Errorf("load taxonomy for %s: %w", key, err)
	}

	if len(answers) != len(questions) {
		return nil, &profile.AnswerCountMismatchError{Got: len(answers), Want: len(questions)}
	}
	answered := make([]profile.AnsweredQuestion, len(questions))
	for i, q := range questions {
		answered[i] = profile.AnsweredQuestion{Question: q, Answer: answers[i]}
	}

	categories, err := p.classifyAnswers(ctx, taxonomy, answered)
	if err != nil {
		return nil, err
	}
	p.warnUnknownLabels(key, taxonomy, categories)

	if err := p.store.UpsertCategories(ctx, visitorID, key, categories); err != nil {
		return nil, fmt.Errorf("store categories for %s: %w", key, err)
	}
	p.publishUpdate(ctx, visitorID, key, categories)
	return categories, nil
}

// GetVisitor returns the stored profile for a visitor. Unknown visitors get
// an empty profile rather than an error.
func (p *Pipeline) GetVisitor(ctx context.Context, visitorID string) (profile.VisitorProfile, error) {
	doc, err := p.store.Get(ctx, visitorID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return profile.VisitorProfile{VisitorID: visitorID}, nil
		}
		return profile.VisitorProfile{}, fmt.Errorf("load visitor %s: %w", visitorID, err)
	}
	return doc, nil
}

// GetSiteForVisitor returns one site entry from a visitor's profile.
func (p *Pipeline) GetSiteForVisitor(ctx context.Context, visitorID, rawURL string) (profile.SiteEntry, error) {
	key, err := siteid.Normalize(rawURL)
	if err != nil {
		return profile.SiteEntry{}, err
	}
	entry, err := p.store.GetSite(ctx, visitorID, key)
	if err != nil {
		return profile.SiteEntry{}, err
	}
	return entry, nil
}

// recordVisit writes the site entry onto the visitor's profile. Artifacts are
// cached before this point so a failed profile write never strands a visitor
// with questions the cache does not know about.
func (p *Pipeline) recordVisit(ctx context.Context, visitorID string, key profile.SiteKey, questions profile.QuestionSet, summary string) error {
	entry := profile.SiteEntry{
		Address:   key,
		Questions: questions,
		Summary:   summary,
	}
	if err := p.store.UpsertSite(ctx, visitorID, entry); err != nil {
		return fmt.Errorf("record visit to %s: %w", key, err)
	}
	return nil
}

func (p *Pipeline) fetch(ctx context.Context, rawURL string) (profile.FetchResult, error) {
	if p.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.FetchTimeout)
		defer cancel()
	}
	return p.fetcher.Fetch(ctx, rawURL)
}

// stageContext applies the classifier timeout to one stage.
func (p *Pipeline) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.ClassifyTimeout > 0 {
		return context.WithTimeout(ctx, p.cfg.ClassifyTimeout)
	}
	return ctx, func() {}
}

func (p *Pipeline) classifySummary(ctx context.Context, text string) (string, error) {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()
	start := time.Now()
	summary, err := p.classifier.Summarize(ctx, text)
	metrics.ObserveClassifierStage("summarize", time.Since(start))
	return summary, err
}

func (p *Pipeline) classifyTaxonomy(ctx context.Context, text string) (profile.Taxonomy, error) {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()
	start := time.Now()
	taxonomy, err := p.classifier.DeriveTaxonomy(ctx, text)
	metrics.ObserveClassifierStage("taxonomy", time.Since(start))
	return taxonomy, err
}

func (p *Pipeline) classifyQuestions(ctx context.Context, taxonomy profile.Taxonomy, text string) (profile.QuestionSet, error) {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()
	start := time.Now()
	questions, err := p.classifier.DeriveQuestions(ctx, taxonomy, text)
	metrics.ObserveClassifierStage("questions", time.Since(start))
	return questions, err
}

func (p *Pipeline) classifyAnswers(ctx context.Context, taxonomy profile.Taxonomy, answered []profile.AnsweredQuestion) ([]profile.Category, error) {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()
	start := time.Now()
	categories, err := p.classifier.ClassifyAnswers(ctx, taxonomy, answered)
	metrics.ObserveClassifierStage("classify", time.Since(start))
	return categories, err
}

// warnUnknownLabels logs categories the classifier assigned that were not in
// the site's taxonomy. The assignment is still stored.
func (p *Pipeline) warnUnknownLabels(key profile.SiteKey, taxonomy profile.Taxonomy, categories []profile.Category) {
	known := make(map[string]map[string]bool, len(taxonomy))
	for _, c := range taxonomy {
		labels := make(map[string]bool, len(c.Labels))
		for _, l := range c.Labels {
			labels[l] = true
		}
		known[c.Category] = labels
	}
	for _, c := range categories {
		labels, ok := known[c.Category]
		if !ok {
			p.logger.Warn("classifier assigned category outside taxonomy",
				zap.String("site", string(key)),
				zap.String("category", c.Category))
			continue
		}
		for _, l := range c.Labels {
			if !labels[l] {
				p.logger.Warn("classifier assigned label outside taxonomy",
					zap.String("site", string(key)),
					zap.String("category", c.Category),
					zap.String("label", l))
			}
		}
	}
}

// profileUpdateEvent is the payload published after categories are stored.
type profileUpdateEvent struct {
	VisitorID  string             `json:"visitorId"`
	Site       profile.SiteKey    `json:"site"`
	Categories []profile.Category `json:"categories"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

func (p *Pipeline) publishUpdate(ctx context.Context, visitorID string, key profile.SiteKey, categories []profile.Category) {
	if p.publisher == nil || p.cfg.Topic == "" {
		return
	}
	event := profileUpdateEvent{
		VisitorID:  visitorID,
		Site:       key,
		Categories: categories,
		UpdatedAt:  p.now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal profile update event", zap.Error(err))
		return
	}
	id, err := p.publisher.Publish(ctx, p.cfg.Topic, payload)
	if err != nil {
		// Publishing is best effort. The profile write already succeeded.
		p.logger.Warn("publish profile update failed",
			zap.String("visitor_id", visitorID),
			zap.String("site", string(key)),
			zap.Error(err))
		return
	}
	p.logger.Debug("published profile update",
		zap.String("message_id", id),
		zap.String("site", string(key)))
}

func (p *Pipeline) now() time.Time {
	if p.clock != nil {
		return p.clock.Now()
	}
	return time.Now().UTC()
}
