package profile

import (
	"context"
	"time"
)

// FetchResult is the extracted plain-text content of a rendered page.
type FetchResult struct {
	URL      string
	FinalURL string
	Text     string
	Duration time.Duration
}

// ContentFetcher retrieves a page and returns its extracted text. Any
// resource held during the fetch (a browser tab, an HTTP connection) is
// scoped to the call and released before it returns.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// Classifier is the opaque text-classification capability. Implementations
// own prompt construction and raw-output parsing; callers only ever see
// typed values. Parse failures surface as *ClassifierOutputError, transport
// failures as *ClassifierCallError.
type Classifier interface {
	Summarize(ctx context.Context, text string) (string, error)
	DeriveTaxonomy(ctx context.Context, text string) (Taxonomy, error)
	DeriveQuestions(ctx context.Context, taxonomy Taxonomy, text string) (QuestionSet, error)
	ClassifyAnswers(ctx context.Context, taxonomy Taxonomy, answers []AnsweredQuestion) ([]Category, error)
}

// ArtifactCache is the TTL-bounded store of per-site derived artifacts.
// Lookups return ErrCacheMiss when no live entry exists. All three
// artifacts for one key are written by a single PutArtifacts call and share
// one TTL.
type ArtifactCache interface {
	GetTaxonomy(ctx context.Context, key SiteKey) (Taxonomy, error)
	GetQuestions(ctx context.Context, key SiteKey) (QuestionSet, error)
	GetSummary(ctx context.Context, key SiteKey) (string, error)
	PutArtifacts(ctx context.Context, key SiteKey, summary string, taxonomy Taxonomy, questions QuestionSet, ttl time.Duration) error
}

// ProfileStore is the durable per-visitor document store. Upserts are
// whole-document read-modify-write operations with compare-and-swap
// semantics: two concurrent upserts to the same visitor may retry, but
// neither is silently dropped.
type ProfileStore interface {
	Get(ctx context.Context, visitorID string) (VisitorProfile, error)
	GetSite(ctx context.Context, visitorID string, key SiteKey) (SiteEntry, error)
	UpsertSite(ctx context.Context, visitorID string, entry SiteEntry) error
	UpsertCategories(ctx context.Context, visitorID string, key SiteKey, categories []Category) error
}

// Publisher emits profile-update events to a topic. A nil or unconfigured
// publisher is a no-op at the pipeline level.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) (string, error)
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}
