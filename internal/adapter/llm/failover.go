package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"voice2action/internal/domain"
)

var _ domain.LLMProvider = (*FailoverProvider)(nil)

// FailoverProvider wraps a primary LLM provider with fallback providers.
// If the primary fails, it tries each fallback in order.
type FailoverProvider struct {
	primary   domain.LLMProvider
	fallbacks []domain.LLMProvider
	logger    *slog.Logger
}

// NewFailoverProvider creates a failover-capable provider.
func NewFailoverProvider(primary domain.LLMProvider, fallbacks []domain.LLMProvider, logger *slog.Logger) *FailoverProvider {
	return &FailoverProvider{
		primary:   primary,
		fallbacks: fallbacks,
		logger:    logger,
	}
}

// Chat tries the primary provider first, then each fallback on failure.
// A cancelled context stops the chain. The returned error wraps every
// provider failure, so errors.Is sees their sentinels.
func (f *FailoverProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := f.primary.Chat(ctx, req)
	if err == nil {
		return resp, nil
	}
	errs := []error{fmt.Errorf("%s: %w", f.primary.Name(), err)}
	if ctx.Err() != nil {
		return nil, errors.Join(errs...)
	}
	f.logger.Warn("primary LLM failed, trying fallbacks",
		"primary", f.primary.Name(), "error", err)

	for _, fb := range f.fallbacks {
		resp, err = fb.Chat(ctx, req)
		if err == nil {
			f.logger.Info("failover succeeded", "provider", fb.Name())
			return resp, nil
		}
		f.logger.Warn("fallback LLM failed", "provider", fb.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", fb.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

// Name returns a composite name.
func (f *FailoverProvider) Name() string {
	return f.primary.Name() + "+failover"
}
