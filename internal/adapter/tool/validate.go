package tool

import (
	"fmt"
	"strings"
	"time"
)

// RequireField returns an error if the string value is blank.
func RequireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("'%s' is required", name)
	}
	return nil
}

// ValidateMaxLength checks that value does not exceed max bytes.
// An empty value always passes.
func ValidateMaxLength(name, value string, max int) error {
	if len(value) > max {
		return fmt.Errorf("%s exceeds maximum length of %d", name, max)
	}
	return nil
}

// ValidateAll returns the first non-nil error from the given list.
func ValidateAll(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// dateLayouts are the accepted forms for date parameters, tried in order.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDate parses an ISO-8601 style date. Values without an offset are
// interpreted in loc.
func ParseDate(name, value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("'%s' is required", name)
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid %s %q (want ISO-8601, e.g. 2026-03-14T09:00:00Z)", name, value)
}
