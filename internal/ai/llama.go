package ai

import (
	"context"
	"fmt"
	"time"
)

// LlamaBackend calls a locally hosted model. The model process serves one
// generation at a time, so calls are serialized through a single slot that
// waiters can abandon when their context ends.
type LlamaBackend struct {
	client  *OpenAICompatibleClient
	cfg     ChatConfig
	timeout time.Duration
	slot    chan struct{}
}

func NewLlamaBackend(client *OpenAICompatibleClient, cfg ChatConfig, timeout time.Duration) *LlamaBackend {
	return &LlamaBackend{
		client:  client,
		cfg:     cfg,
		timeout: timeout,
		slot:    make(chan struct{}, 1),
	}
}

func (b *LlamaBackend) Name() string  { return BackendLlama }
func (b *LlamaBackend) Label() string { return "LLaMA" }

func (b *LlamaBackend) Generate(ctx context.Context, prompt string) (string, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	select {
	case b.slot <- struct{}{}:
	case <-ctx.Done():
		return "", fmt.Errorf("wait for local model failed: %w", ctx.Err())
	}
	defer func() { <-b.slot }()

	answer, err := b.client.Complete(ctx, b.cfg, []ChatMessage{{Role: "user", Content: prompt}})
	if err != nil {
		return "", err
	}
	return answer, nil
}
