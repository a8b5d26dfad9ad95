package toolgen

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"contentforge/engine/internal/anthropic"
	"contentforge/engine/internal/gemini"
	"contentforge/engine/internal/mistral"
	"contentforge/engine/internal/openai"
	"contentforge/engine/internal/settings"
)

// Registry resolves providers by id.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: map[string]Provider{}}
}

// DefaultRegistry registers the built-in HTTP providers.
func DefaultRegistry(logger *slog.Logger) *Registry {
	registry := NewRegistry()
	registry.Register(NewProvider(settings.ProviderOpenAI, openai.NewClient(), logger))
	registry.Register(NewProvider(settings.ProviderAnthropic, anthropic.NewClient(), logger))
	registry.Register(NewProvider(settings.ProviderGoogle, gemini.NewClient(), logger))
	registry.Register(NewProvider(settings.ProviderMistral, mistral.NewClient(), logger))
	return registry
}

// Register adds or replaces the provider under its id.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("unsupported provider %q", id)
	}
	return provider, nil
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
