package ai

import (
	"context"
	"errors"
	"sort"
	"strings"
)

const (
	BackendOpenAI = "openai"
	BackendLlama  = "llama"
	BackendGemini = "gemini"
)

// ErrUnknownBackend is returned by Registry.Get for names that were never
// registered.
var ErrUnknownBackend = errors.New("unknown backend")

// Backend produces an answer for a fully assembled prompt.
type Backend interface {
	// Name is the routing key clients send as "model".
	Name() string
	// Label is the human-facing name used in degraded answers.
	Label() string
	Generate(ctx context.Context, prompt string) (string, error)
}

type Registry struct {
	backends map[string]Backend
}

func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[string]Backend, len(backends))}
	for _, b := range backends {
		if b != nil {
			r.backends[strings.ToLower(b.Name())] = b
		}
	}
	return r
}

func (r *Registry) Get(name string) (Backend, error) {
	b, ok := r.backends[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, ErrUnknownBackend
	}
	return b, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
