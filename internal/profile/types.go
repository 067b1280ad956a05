// Package profile defines the core domain types and collaborator
// interfaces for the visitor interest profiler.
package profile

import (
	"encoding/json"
	"fmt"
)

// SiteKey is the canonical identity of a site: lower-cased hostname with a
// leading "www." stripped, no scheme, port, path or query. It is used both
// as the artifact cache namespace and as the site entry identifier inside
// visitor documents.
type SiteKey string

// Category pairs a category name with its labels. It is used both for the
// taxonomy derived for a site and for the label assignment produced when a
// visitor's answers are classified.
type Category struct {
	Category string   `json:"category"`
	Labels   []string `json:"labels"`
}

// Taxonomy is the ordered set of categories derived once per site. It is
// immutable for the lifetime of its cache entry; regeneration after expiry
// may produce a different taxonomy for the same site.
type Taxonomy []Category

// Question is one multiple-choice questionnaire entry.
type Question struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// QuestionSet is the questionnaire generated against a specific taxonomy
// snapshot. Answers must only ever be classified against the taxonomy the
// set was derived with.
type QuestionSet []Question

// Answer holds a visitor's response to one question: one or more selected
// options, or free text. The wire format accepts either a bare string or an
// array of strings.
type Answer []string

// UnmarshalJSON accepts both `"Action"` and `["Action","Drama"]`.
func (a *Answer) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = Answer{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("answer must be a string or an array of strings: %w", err)
	}
	*a = Answer(many)
	return nil
}

// AnsweredQuestion pairs a question with the visitor's answer, positionally
// matched against the cached question set.
type AnsweredQuestion struct {
	Question Question `json:"question"`
	Answer   Answer   `json:"answer"`
}

// SiteEntry is one per-site record inside a visitor document. Categories is
// empty until the visitor submits answers for the site.
type SiteEntry struct {
	Address    SiteKey     `json:"address"`
	Questions  QuestionSet `json:"questions"`
	Summary    string      `json:"summary"`
	Categories []Category  `json:"categories,omitempty"`
}

// VisitorProfile is the durable per-visitor record. Sites is ordered and
// unique by Address.
type VisitorProfile struct {
	VisitorID string      `json:"visitorId"`
	Sites     []SiteEntry `json:"sites"`
}

// UpsertSite replaces the entry matching entry.Address in place, or appends
// a new one. A replacement keeps the matched entry's position and preserves
// its recorded categories when the incoming entry carries none, so a plain
// re-derivation never erases an earlier classification.
func (p *VisitorProfile) UpsertSite(entry SiteEntry) {
	for i := range p.Sites {
		if p.Sites[i].Address != entry.Address {
			continue
		}
		if len(entry.Categories) == 0 {
			entry.Categories = p.Sites[i].Categories
		}
		p.Sites[i] = entry
		return
	}
	p.Sites = append(p.Sites, entry)
}

// SetCategories updates only the categories of the entry matching key.
// It reports whether a matching entry was found.
func (p *VisitorProfile) SetCategories(key SiteKey, categories []Category) bool {
	for i := range p.Sites {
		if p.Sites[i].Address == key {
			p.Sites[i].Categories = categories
			return true
		}
	}
	return false
}

// Site returns the entry matching key, if present.
func (p *VisitorProfile) Site(key SiteKey) (SiteEntry, bool) {
	for i := range p.Sites {
		if p.Sites[i].Address == key {
			return p.Sites[i], true
		}
	}
	return SiteEntry{}, false
}
