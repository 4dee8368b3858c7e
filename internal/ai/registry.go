package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type ProviderFactory func(ctx context.Context, model string) (Provider, error)

// Registry maps provider names to factories and owns the fallback provider
// used when a turn does not pin one.
type Registry struct {
	mu        sync.RWMutex
	fallback  string
	factories map[string]ProviderFactory
}

// NewRegistry builds an empty registry. fallback names the provider Resolve
// uses when asked for ""; an empty fallback means echo.
func NewRegistry(fallback string) *Registry {
	fallback = normalizeName(fallback)
	if fallback == "" {
		fallback = "echo"
	}
	return &Registry{fallback: fallback, factories: make(map[string]ProviderFactory)}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *Registry) Register(name string, f ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[normalizeName(name)] = f
}

// RegisterBuiltins wires the providers every deployment carries: the echo
// stub and the ollama HTTP client.
func (r *Registry) RegisterBuiltins(ollamaBaseURL, ollamaModel string) {
	r.Register("echo", func(ctx context.Context, model string) (Provider, error) {
		return NewEchoProvider(), nil
	})
	r.Register("ollama", func(ctx context.Context, model string) (Provider, error) {
		if model == "" {
			model = ollamaModel
		}
		return NewOllamaProvider(ollamaBaseURL, model), nil
	})
}

// Resolve builds the named provider, or the fallback when name is empty.
func (r *Registry) Resolve(ctx context.Context, name, model string) (Provider, error) {
	name = normalizeName(name)
	if name == "" {
		name = r.fallback
	}
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return f(ctx, model)
}
