package ai

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

type GeminiConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

type GeminiBackend struct {
	client *genai.Client
	cfg    GeminiConfig
}

func NewGeminiBackend(ctx context.Context, cfg GeminiConfig) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client failed: %w", err)
	}
	return &GeminiBackend{client: client, cfg: cfg}, nil
}

func (b *GeminiBackend) Name() string  { return BackendGemini }
func (b *GeminiBackend) Label() string { return "Gemini" }

func (b *GeminiBackend) Generate(ctx context.Context, prompt string) (string, error) {
	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	var genCfg *genai.GenerateContentConfig
	if b.cfg.MaxTokens > 0 {
		genCfg = &genai.GenerateContentConfig{MaxOutputTokens: int32(b.cfg.MaxTokens)}
	}
	result, err := b.client.Models.GenerateContent(ctx, b.cfg.Model, genai.Text(prompt), genCfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	return result.Text(), nil
}
