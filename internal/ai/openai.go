package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sony/gobreaker"
)

type OpenAIConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// OpenAIBackend calls the hosted chat completions API behind a circuit
// breaker, so a failing upstream is not hammered by every question.
type OpenAIBackend struct {
	client  openai.Client
	cfg     OpenAIConfig
	breaker *gobreaker.CircuitBreaker
}

func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	return &OpenAIBackend{
		client:  openai.NewClient(clientOptions(cfg.BaseURL, cfg.APIKey)...),
		cfg:     cfg,
		breaker: newBreaker("openai"),
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

func clientOptions(baseURL, apiKey string) []option.RequestOption {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return opts
}

func (b *OpenAIBackend) Name() string  { return BackendOpenAI }
func (b *OpenAIBackend) Label() string { return "OpenAI" }

func (b *OpenAIBackend) Generate(ctx context.Context, prompt string) (string, error) {
	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	out, err := b.breaker.Execute(func() (interface{}, error) {
		params := openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(b.cfg.Model),
			Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		}
		if b.cfg.MaxTokens > 0 {
			params.MaxTokens = openai.Int(int64(b.cfg.MaxTokens))
		}
		resp, err := b.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("openai completion failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("empty openai choices")
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// OpenAIEmbedder embeds through the hosted embeddings endpoint.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
}

func NewOpenAIEmbedder(cfg EmbeddingConfig) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client: openai.NewClient(clientOptions(cfg.BaseURL, cfg.APIKey)...),
		model:  cfg.Model,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embedding returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	result := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, fmt.Errorf("openai embedding index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		result[d.Index] = vec
	}
	return result, nil
}
