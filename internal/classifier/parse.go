package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/visitorlabs/profiler/internal/profile"
)

// stripFences removes markdown code-fence markers the model may wrap its
// structured output in, e.g. ```json ... ```.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

type categoriesEnvelope struct {
	Categories []profile.Category `json:"categories"`
}

type questionsEnvelope struct {
	Questions []profile.Question `json:"questions"`
}

// parseTaxonomy parses {"categories": [...]} into a Taxonomy.
func parseTaxonomy(raw string) (profile.Taxonomy, error) {
	var envelope categoriesEnvelope
	if err := json.Unmarshal([]byte(stripFences(raw)), &envelope); err != nil {
		return nil, fmt.Errorf("decode categories payload: %w", err)
	}
	if len(envelope.Categories) == 0 {
		return nil, fmt.Errorf("categories payload is empty")
	}
	for i, cat := range envelope.Categories {
		if cat.Category == "" {
			return nil, fmt.Errorf("category %d has no name", i)
		}
	}
	return profile.Taxonomy(envelope.Categories), nil
}

// parseQuestions parses {"questions": [...]} into a QuestionSet.
func parseQuestions(raw string) (profile.QuestionSet, error) {
	var envelope questionsEnvelope
	if err := json.Unmarshal([]byte(stripFences(raw)), &envelope); err != nil {
		return nil, fmt.Errorf("decode questions payload: %w", err)
	}
	if len(envelope.Questions) == 0 {
		return nil, fmt.Errorf("questions payload is empty")
	}
	for i, q := range envelope.Questions {
		if q.Question == "" {
			return nil, fmt.Errorf("question %d has no text", i)
		}
	}
	return profile.QuestionSet(envelope.Questions), nil
}

// parseCategories parses {"categories": [...]} into a label assignment.
// Unlike parseTaxonomy an empty assignment is allowed: the model may
// legitimately find no label fits the answers.
func parseCategories(raw string) ([]profile.Category, error) {
	var envelope categoriesEnvelope
	if err := json.Unmarshal([]byte(stripFences(raw)), &envelope); err != nil {
		return nil, fmt.Errorf("decode categories payload: %w", err)
	}
	if envelope.Categories == nil {
		return nil, fmt.Errorf("categories field is missing")
	}
	return envelope.Categories, nil
}
