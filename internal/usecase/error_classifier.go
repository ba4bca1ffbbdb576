package usecase

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"voice2action/internal/domain"
)

// ErrorCategory indicates whether an error is worth retrying.
type ErrorCategory int

const (
	ErrorCategoryUnknown   ErrorCategory = iota
	ErrorCategoryRetryable               // 429, 5xx, network errors, timeouts
	ErrorCategoryPermanent               // 401, 403, other 4xx
)

// ClassifiedError holds the result of error classification.
type ClassifiedError struct {
	Original   error
	Category   ErrorCategory
	Sentinel   error // mapped domain sentinel, or nil
	StatusCode int   // extracted HTTP status, or 0
}

// ErrorClassifier sorts LLM and transcription provider errors into retryable
// and permanent failures.
type ErrorClassifier struct{}

func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// apiErrorPattern matches the "API error <status>:" prefix every HTTP adapter
// produces.
var apiErrorPattern = regexp.MustCompile(`API error (\d+):`)

var contextOverflowKeywords = []string{"context", "token", "length", "too long", "maximum"}

type stringRule struct {
	patterns []string
	sentinel error
}

// stringRules classify errors that carry no status code.
var stringRules = []stringRule{
	{[]string{"rate limit", "too many requests"}, domain.ErrRateLimit},
	{[]string{"context length", "token limit", "maximum context"}, domain.ErrContextOverflow},
	{[]string{"connection refused", "no such host", "timeout", "deadline exceeded", "connection reset", "eof"}, nil},
}

// Classify inspects err and returns its category and mapped sentinel.
func (c *ErrorClassifier) Classify(err error) ClassifiedError {
	if err == nil {
		return ClassifiedError{}
	}

	switch {
	case errors.Is(err, domain.ErrRateLimit):
		return ClassifiedError{Original: err, Category: ErrorCategoryRetryable, Sentinel: domain.ErrRateLimit}
	case errors.Is(err, domain.ErrContextOverflow):
		// Requests are rebuilt identically on retry, so an overflow never heals.
		return ClassifiedError{Original: err, Category: ErrorCategoryPermanent, Sentinel: domain.ErrContextOverflow}
	case errors.Is(err, domain.ErrAuthInvalid):
		return ClassifiedError{Original: err, Category: ErrorCategoryPermanent, Sentinel: domain.ErrAuthInvalid}
	case errors.Is(err, domain.ErrTimeout):
		return ClassifiedError{Original: err, Category: ErrorCategoryRetryable, Sentinel: domain.ErrTimeout}
	}

	msg := err.Error()
	if m := apiErrorPattern.FindStringSubmatch(msg); len(m) == 2 {
		code, _ := strconv.Atoi(m[1])
		return classifyStatus(err, code, msg)
	}

	lower := strings.ToLower(msg)
	for _, rule := range stringRules {
		for _, p := range rule.patterns {
			if strings.Contains(lower, p) {
				cat := ErrorCategoryRetryable
				if errors.Is(rule.sentinel, domain.ErrContextOverflow) {
					cat = ErrorCategoryPermanent
				}
				return ClassifiedError{Original: err, Category: cat, Sentinel: rule.sentinel}
			}
		}
	}
	return ClassifiedError{Original: err, Category: ErrorCategoryUnknown}
}

func classifyStatus(err error, code int, body string) ClassifiedError {
	ce := ClassifiedError{Original: err, Category: ErrorCategoryPermanent, StatusCode: code}
	switch {
	case code == 429:
		ce.Category, ce.Sentinel = ErrorCategoryRetryable, domain.ErrRateLimit
	case code == 401 || code == 403:
		ce.Sentinel = domain.ErrAuthInvalid
	case code == 408:
		ce.Category, ce.Sentinel = ErrorCategoryRetryable, domain.ErrTimeout
	case code == 413:
		ce.Sentinel = domain.ErrContextOverflow
	case code == 400:
		lower := strings.ToLower(body)
		for _, kw := range contextOverflowKeywords {
			if strings.Contains(lower, kw) {
				ce.Sentinel = domain.ErrContextOverflow
				break
			}
		}
	case code >= 500 && code < 600:
		ce.Category = ErrorCategoryRetryable
	}
	return ce
}
