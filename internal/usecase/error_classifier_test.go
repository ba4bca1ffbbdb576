package usecase

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"voice2action/internal/domain"
)

func TestErrorClassifier_Classify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category ErrorCategory
		sentinel error
		status   int
	}{
		{"nil", nil, ErrorCategoryUnknown, nil, 0},
		{"429", errors.New("openai: API error 429: rate limit exceeded"), ErrorCategoryRetryable, domain.ErrRateLimit, 429},
		{"401", errors.New("API error 401: unauthorized"), ErrorCategoryPermanent, domain.ErrAuthInvalid, 401},
		{"403", errors.New("API error 403: forbidden"), ErrorCategoryPermanent, domain.ErrAuthInvalid, 403},
		{"408", errors.New("API error 408: request timeout"), ErrorCategoryRetryable, domain.ErrTimeout, 408},
		{"400 overflow", errors.New("API error 400: exceeds the context length"), ErrorCategoryPermanent, domain.ErrContextOverflow, 400},
		{"400 plain", errors.New("API error 400: invalid json in request body"), ErrorCategoryPermanent, nil, 400},
		{"500", errors.New("API error 500: internal server error"), ErrorCategoryRetryable, nil, 500},
		{"503", errors.New("API error 503: service unavailable"), ErrorCategoryRetryable, nil, 503},
		{"wrapped sentinel", fmt.Errorf("chat: %w", domain.ErrRateLimit), ErrorCategoryRetryable, domain.ErrRateLimit, 0},
		{"wrapped auth", fmt.Errorf("chat: %w", domain.ErrAuthInvalid), ErrorCategoryPermanent, domain.ErrAuthInvalid, 0},
		{"connection refused", errors.New("dial tcp 127.0.0.1:8080: connection refused"), ErrorCategoryRetryable, nil, 0},
		{"deadline", errors.New("http request: context deadline exceeded"), ErrorCategoryRetryable, nil, 0},
		{"too many requests", errors.New("too many requests, please slow down"), ErrorCategoryRetryable, domain.ErrRateLimit, 0},
		{"token limit", errors.New("prompt is over the token limit"), ErrorCategoryPermanent, domain.ErrContextOverflow, 0},
		{"unknown", errors.New("something unexpected"), ErrorCategoryUnknown, nil, 0},
	}

	c := NewErrorClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.err)
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, tt.status, got.StatusCode)
			if tt.sentinel == nil {
				assert.Nil(t, got.Sentinel)
			} else {
				assert.ErrorIs(t, got.Sentinel, tt.sentinel)
			}
		})
	}
}
