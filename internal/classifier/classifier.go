// Package classifier adapts an external text-generation service into the
// typed classification operations the pipeline depends on. All prompt
// construction and raw-output parsing lives here; callers never see raw
// model text.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/visitorlabs/profiler/internal/profile"
)

// Stage names carried by classifier errors for diagnostics.
const (
	StageSummarize = "summarize"
	StageTaxonomy  = "taxonomy"
	StageQuestions = "questions"
	StageClassify  = "classify"
)

// Config selects and configures the completion backend.
type Config struct {
	// Provider is "openai" (or any OpenAI-compatible endpoint) or "gemini".
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
}

// completer is the raw text-in/text-out capability behind the typed API.
type completer interface {
	complete(ctx context.Context, req completionRequest) (string, error)
}

// completionRequest is one system+user prompt pair.
type completionRequest struct {
	System    string
	User      string
	MaxTokens int
}

// Client implements profile.Classifier on a completion backend.
type Client struct {
	cfg     Config
	backend completer
}

// New selects a backend from cfg.Provider. The context is only used for
// backend construction (the Gemini SDK dials during client creation).
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("classifier.model is required")
	}
	var (
		backend completer
		err     error
	)
	switch cfg.Provider {
	case "", "openai":
		backend, err = newOpenAI(cfg)
	case "gemini":
		backend, err = newGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, backend: backend}, nil
}

// Summarize produces a short plain-text summary of the page content.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	raw, err := c.backend.complete(ctx, completionRequest{
		System:    summarizeSystemPrompt,
		User:      text,
		MaxTokens: 300,
	})
	if err != nil {
		return "", &profile.ClassifierCallError{Stage: StageSummarize, Err: err}
	}
	return stripFences(raw), nil
}

// DeriveTaxonomy asks the backend for site-specific classification
// categories and labels.
func (c *Client) DeriveTaxonomy(ctx context.Context, text string) (profile.Taxonomy, error) {
	raw, err := c.backend.complete(ctx, completionRequest{
		System:    taxonomySystemPrompt,
		User:      text,
		MaxTokens: 300,
	})
	if err != nil {
		return nil, &profile.ClassifierCallError{Stage: StageTaxonomy, Err: err}
	}
	taxonomy, perr := parseTaxonomy(raw)
	if perr != nil {
		return nil, &profile.ClassifierOutputError{Stage: StageTaxonomy, Raw: raw, Err: perr}
	}
	return taxonomy, nil
}

// DeriveQuestions generates the questionnaire for a taxonomy snapshot.
func (c *Client) DeriveQuestions(
	ctx context.Context,
	taxonomy profile.Taxonomy,
	text string,
) (profile.QuestionSet, error) {
	taxonomyJSON, err := json.Marshal(taxonomy)
	if err != nil {
		return nil, fmt.Errorf("marshal taxonomy for prompt: %w", err)
	}
	raw, err := c.backend.complete(ctx, completionRequest{
		System:    fmt.Sprintf(questionsSystemPrompt, taxonomyJSON),
		User:      text,
		MaxTokens: 700,
	})
	if err != nil {
		return nil, &profile.ClassifierCallError{Stage: StageQuestions, Err: err}
	}
	questions, perr := parseQuestions(raw)
	if perr != nil {
		return nil, &profile.ClassifierOutputError{Stage: StageQuestions, Raw: raw, Err: perr}
	}
	return questions, nil
}

// ClassifyAnswers assigns taxonomy labels to a visitor given their
// questionnaire answers.
func (c *Client) ClassifyAnswers(
	ctx context.Context,
	taxonomy profile.Taxonomy,
	answers []profile.AnsweredQuestion,
) ([]profile.Category, error) {
	taxonomyJSON, err := json.Marshal(taxonomy)
	if err != nil {
		return nil, fmt.Errorf("marshal taxonomy for prompt: %w", err)
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("marshal answers for prompt: %w", err)
	}
	raw, err := c.backend.complete(ctx, completionRequest{
		System:    fmt.Sprintf(classifySystemPrompt, taxonomyJSON),
		User:      fmt.Sprintf(classifyUserPrompt, answersJSON),
		MaxTokens: 300,
	})
	if err != nil {
		return nil, &profile.ClassifierCallError{Stage: StageClassify, Err: err}
	}
	categories, perr := parseCategories(raw)
	if perr != nil {
		return nil, &profile.ClassifierOutputError{Stage: StageClassify, Raw: raw, Err: perr}
	}
	return categories, nil
}
