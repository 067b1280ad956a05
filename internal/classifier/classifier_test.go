package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/visitorlabs/profiler/internal/profile"
)

// scriptedCompleter returns canned responses keyed by a substring of the
// system prompt.
type scriptedCompleter struct {
	responses map[string]string
	err       error
	requests  []completionRequest
}

func (s *scriptedCompleter) complete(_ context.Context, req completionRequest) (string, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return "", s.err
	}
	for marker, resp := range s.responses {
		if strings.Contains(req.System, marker) {
			return resp, nil
		}
	}
	return "", fmt.Errorf("no scripted response for prompt")
}

func newTestClient(backend completer) *Client {
	return &Client{cfg: Config{Model: "test-model"}, backend: backend}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Provider: "oracle", Model: "m"})
	require.Error(t, err)

	_, err = New(context.Background(), Config{Provider: "openai"})
	require.Error(t, err, "missing model must fail")
}

func TestSummarizeStripsFences(t *testing.T) {
	t.Parallel()

	backend := &scriptedCompleter{responses: map[string]string{
		"summar": "```\nA movie blog.\n```",
	}}
	client := newTestClient(backend)

	summary, err := client.Summarize(context.Background(), "page text")
	require.NoError(t, err)
	require.Equal(t, "A movie blog.", summary)
	require.Len(t, backend.requests, 1)
	require.Equal(t, "page text", backend.requests[0].User)
}

func TestDeriveTaxonomyWrapsTransportError(t *testing.T) {
	t.Parallel()

	backend := &scriptedCompleter{err: errors.New("connection refused")}
	client := newTestClient(backend)

	_, err := client.DeriveTaxonomy(context.Background(), "text")
	var callErr *profile.ClassifierCallError
	require.ErrorAs(t, err, &callErr)
	require.Equal(t, StageTaxonomy, callErr.Stage)
}

func TestDeriveTaxonomyWrapsBadOutput(t *testing.T) {
	t.Parallel()

	backend := &scriptedCompleter{responses: map[string]string{
		"categories": "I could not produce JSON, sorry.",
	}}
	client := newTestClient(backend)

	_, err := client.DeriveTaxonomy(context.Background(), "text")
	var outErr *profile.ClassifierOutputError
	require.ErrorAs(t, err, &outErr)
	require.Equal(t, StageTaxonomy, outErr.Stage)
	require.Contains(t, outErr.Raw, "could not produce")
}

func TestDeriveQuestionsEmbedsTaxonomyInPrompt(t *testing.T) {
	t.Parallel()

	backend := &scriptedCompleter{responses: map[string]string{
		"questions": `{"questions":[{"question":"Favorite genre?","options":["Action"]}]}`,
	}}
	client := newTestClient(backend)

	taxonomy := profile.Taxonomy{{Category: "Genres", Labels: []string{"Action"}}}
	questions, err := client.DeriveQuestions(context.Background(), taxonomy, "excerpt")
	require.NoError(t, err)
	require.Len(t, questions, 1)

	require.Len(t, backend.requests, 1)
	require.Contains(t, backend.requests[0].System, `"Genres"`)
	require.Equal(t, "excerpt", backend.requests[0].User)
}

func TestClassifyAnswersEmbedsAnswersInPrompt(t *testing.T) {
	t.Parallel()

	backend := &scriptedCompleter{responses: map[string]string{
		"classif": `{"categories":[{"category":"Genres","labels":["Action"]}]}`,
	}}
	client := newTestClient(backend)

	taxonomy := profile.Taxonomy{{Category: "Genres", Labels: []string{"Action", "Drama"}}}
	answered := []profile.AnsweredQuestion{{
		Question: profile.Question{Question: "Favorite genre?", Options: []string{"Action", "Drama"}},
		Answer:   profile.Answer{"Action"},
	}}
	categories, err := client.ClassifyAnswers(context.Background(), taxonomy, answered)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	require.Equal(t, []string{"Action"}, categories[0].Labels)

	require.Len(t, backend.requests, 1)
	require.Contains(t, backend.requests[0].User, "Favorite genre?")
}
