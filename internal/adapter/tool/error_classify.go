package tool

import (
	"errors"
	"strings"

	"voice2action/internal/domain"
)

// retryableSentinels lists domain errors that indicate transient failures
// worth retrying.
var retryableSentinels = []error{
	domain.ErrTimeout,
	domain.ErrProviderError,
	domain.ErrRateLimit,
	domain.ErrReminderStore,
}

// retryablePatterns are substrings in error messages that indicate transient
// failures. Checked case-insensitively.
var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"timeout",
	"deadline exceeded",
	"temporarily unavailable",
	"service unavailable",
	"try again",
	"database is locked",
}

// classifyToolError reports whether err is transient and the tool call may
// succeed on retry.
func classifyToolError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrLimitReached) {
		return false
	}
	for _, sentinel := range retryableSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}

	lower := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
