package profile

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the cache, store and pipeline layers.
var (
	// ErrInvalidURL is returned when no hostname can be parsed from a URL.
	ErrInvalidURL = errors.New("invalid url: no hostname")

	// ErrCacheMiss is returned by artifact cache lookups with no live entry.
	ErrCacheMiss = errors.New("artifact cache miss")

	// ErrCacheIntegrity signals a questions entry present without its
	// taxonomy, which a single derivation pass should make impossible.
	ErrCacheIntegrity = errors.New("artifact cache integrity: questions present without taxonomy")

	// ErrNotFound is returned when a visitor or site entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoTaxonomy is returned when answers are submitted for a site that
	// was never derived (or whose artifacts expired).
	ErrNoTaxonomy = errors.New("no taxonomy cached for site")

	// ErrSiteNotFound is returned by category upserts targeting a site the
	// visitor never fetched.
	ErrSiteNotFound = errors.New("site entry not found for visitor")

	// ErrWriteConflict is returned when concurrent profile updates exhaust
	// the compare-and-swap retry budget.
	ErrWriteConflict = errors.New("profile write conflict")
)

// FetchError wraps a content fetch failure.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ClassifierCallError wraps a classifier transport failure (unreachable,
// rate limited, timed out) at a named stage.
type ClassifierCallError struct {
	Stage string
	Err   error
}

func (e *ClassifierCallError) Error() string {
	return fmt.Sprintf("classifier call failed at stage %q: %v", e.Stage, e.Err)
}

func (e *ClassifierCallError) Unwrap() error { return e.Err }

// ClassifierOutputError wraps a structured-output parse failure. Raw carries
// the unparsed classifier output for server-side diagnostics only.
type ClassifierOutputError struct {
	Stage string
	Raw   string
	Err   error
}

func (e *ClassifierOutputError) Error() string {
	return fmt.Sprintf("classifier output unparsable at stage %q: %v", e.Stage, e.Err)
}

func (e *ClassifierOutputError) Unwrap() error { return e.Err }

// AnswerCountMismatchError reports an answer list whose length differs from
// the cached question set.
type AnswerCountMismatchError struct {
	Got  int
	Want int
}

func (e *AnswerCountMismatchError) Error() string {
	return fmt.Sprintf("answer count mismatch: got %d answers for %d questions", e.Got, e.Want)
}
