package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"gradreach/config"
)

// TextGenerator produces a text completion for a prompt. *GeminiClient is
// the production implementation; tests swap in a fake.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// GeminiClient wraps the Google GenAI client for prompt-based generation
type GeminiClient struct {
	client    *genai.Client
	modelName string
}

// NewGeminiClient creates a client for the Gemini API backend using the
// loaded application config.
func NewGeminiClient(ctx context.Context) (*GeminiClient, error) {
	apiKey := strings.TrimSpace(config.AppConfig.Gemini.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := strings.TrimSpace(config.AppConfig.Gemini.Model)
	if model == "" {
		model = "gemini-2.5-pro"
	}

	return &GeminiClient{client: client, modelName: model}, nil
}

// GenerateText sends the prompt to Gemini and returns the concatenated
// textual candidates.
func (g *GeminiClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.client == nil {
		return "", errors.New("gemini client is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, config.AppConfig.Gemini.Timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	return output, nil
}

func (g *GeminiClient) Model() string {
	if g == nil {
		return ""
	}
	return g.modelName
}
