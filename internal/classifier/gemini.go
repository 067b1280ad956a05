package classifier

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// geminiClient backs the classifier with Google's Gemini models.
type geminiClient struct {
	cfg    Config
	client *genai.Client
}

func newGemini(ctx context.Context, cfg Config) (*geminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("classifier.api_key is required for the gemini provider")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &geminiClient{cfg: cfg, client: client}, nil
}

func (c *geminiClient) complete(ctx context.Context, req completionRequest) (string, error) {
	// Gemini has no separate system role in this call shape, so fold the
	// system instruction into the user turn.
	prompt := req.System + "\n\n" + req.User
	content := genai.NewContentFromText(prompt, genai.RoleUser)

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, []*genai.Content{content}, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini response has no candidates")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			out.WriteString(part.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("gemini response has no text parts")
	}
	return out.String(), nil
}
