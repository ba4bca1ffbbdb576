package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"voice2action/internal/domain"
	"voice2action/internal/infra/config"
)

// bedrockFactory is set by the bedrock build.
var bedrockFactory func(ctx context.Context, cfg config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error)

// Registry holds named LLM providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.LLMProvider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]domain.LLMProvider),
	}
}

// NewRegistryFromConfig builds every configured provider, wrapping each in a
// circuit breaker when cfg.CircuitBreaker.Enabled is set.
func NewRegistryFromConfig(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Registry, error) {
	r := NewRegistry()
	for _, pc := range cfg.Providers {
		p, err := NewProvider(ctx, pc, logger)
		if err != nil {
			return nil, err
		}
		if cfg.CircuitBreaker.Enabled {
			p = NewCircuitBreakerProvider(p, cfg.CircuitBreaker, logger)
		}
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewProvider constructs a single provider by type. An empty type means
// "openai".
func NewProvider(ctx context.Context, pc config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	switch pc.Type {
	case "", "openai":
		return NewOpenAIProvider(pc, logger), nil
	case "anthropic":
		return NewAnthropicProvider(pc, logger), nil
	case "bedrock":
		if bedrockFactory == nil {
			return nil, domain.NewDomainError("llm.NewProvider", domain.ErrDisabled,
				fmt.Sprintf("provider %q: binary built without the bedrock tag", pc.Name))
		}
		return bedrockFactory(ctx, pc, logger)
	default:
		return nil, domain.NewDomainError("llm.NewProvider", domain.ErrInvalidInput,
			fmt.Sprintf("provider %q has unknown type %q", pc.Name, pc.Type))
	}
}

// Register adds a provider. Returns error if name already registered.
func (r *Registry) Register(provider domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.providers[name]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, name)
	}
	r.providers[name] = provider
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// Resolve returns the named provider, falling back to defaultName when name
// is empty. With failover enabled the result tries the listed fallbacks
// after it.
func (r *Registry) Resolve(name, defaultName string, failover config.FailoverConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	if name == "" {
		name = defaultName
	}
	primary, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if !failover.Enabled {
		return primary, nil
	}

	var fallbacks []domain.LLMProvider
	for _, fbName := range failover.Fallbacks {
		if fbName == name {
			continue
		}
		fb, err := r.Get(fbName)
		if err != nil {
			return nil, err
		}
		fallbacks = append(fallbacks, fb)
	}
	if len(fallbacks) == 0 {
		return primary, nil
	}
	return NewFailoverProvider(primary, fallbacks, logger), nil
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
