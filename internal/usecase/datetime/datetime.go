// Package datetime reports the current time to agents.
package datetime

import (
	"time"

	"voice2action/internal/domain"
)

const (
	localLayout = "2006-01-02T15:04:05Z07:00"
	utcLayout   = "2006-01-02T15:04:05Z"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Service formats the current time in the configured zone and in UTC.
type Service struct {
	clock domain.Clock
	loc   *time.Location
}

// NewService creates a Service. A nil clock uses the system clock and a nil
// loc uses time.Local.
func NewService(clock domain.Clock, loc *time.Location) *Service {
	if clock == nil {
		clock = systemClock{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{clock: clock, loc: loc}
}

// Now returns "LOCAL=<rfc3339 with offset>;UTC=<rfc3339 Z>".
func (s *Service) Now() string {
	t := s.clock.Now()
	return "LOCAL=" + t.In(s.loc).Format(localLayout) + ";UTC=" + t.UTC().Format(utcLayout)
}

// Time returns the current instant.
func (s *Service) Time() time.Time { return s.clock.Now() }
