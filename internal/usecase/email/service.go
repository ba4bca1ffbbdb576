// Package email sends outbound email through a pluggable sender with a
// per-hour send budget.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"voice2action/internal/domain"
	"voice2action/internal/usecase/eventbus"
)

// Config configures a Service.
type Config struct {
	From string
	To   string

	// MaxSendsPerHour caps outbound email. Zero means unlimited.
	MaxSendsPerHour int
}

// Service implements domain.EmailService.
type Service struct {
	sender  domain.EmailSender
	cfg     Config
	limiter *rate.Limiter
	clock   domain.Clock
	bus     domain.EventBus
	logger  *slog.Logger
}

var _ domain.EmailService = (*Service)(nil)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// NewService creates an email service. bus and clock may be nil.
func NewService(sender domain.EmailSender, cfg Config, clock domain.Clock, bus domain.EventBus, logger *slog.Logger) *Service {
	if clock == nil {
		clock = systemClock{}
	}
	s := &Service{sender: sender, cfg: cfg, clock: clock, bus: bus, logger: logger}
	if cfg.MaxSendsPerHour > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Hour/time.Duration(cfg.MaxSendsPerHour)), cfg.MaxSendsPerHour)
	}
	return s
}

// SendEmail delivers one message. A blank subject and body together are
// rejected; either alone is allowed.
func (s *Service) SendEmail(ctx context.Context, subject, body string) (*domain.EmailMessage, error) {
	const op = "EmailService.SendEmail"

	if strings.TrimSpace(subject) == "" && strings.TrimSpace(body) == "" {
		return nil, domain.NewSubSystemError("email", op, domain.ErrInvalidInput, "subject and body are both empty")
	}
	if s.limiter != nil && !s.limiter.AllowN(s.clock.Now(), 1) {
		return nil, domain.NewSubSystemError("email", op, domain.ErrLimitReached,
			fmt.Sprintf("more than %d emails per hour", s.cfg.MaxSendsPerHour))
	}

	msg := domain.EmailMessage{
		ID:      ulid.Make().String(),
		From:    s.cfg.From,
		To:      s.cfg.To,
		Subject: subject,
		Body:    body,
		SentAt:  s.clock.Now(),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return nil, &domain.DomainError{
			Op:        op,
			Err:       fmt.Errorf("%w: %w", domain.ErrEmailSend, err),
			Detail:    msg.ID,
			SubSystem: "email",
		}
	}

	s.logger.Info("email sent", "id", msg.ID, "subject", subject, "to", msg.To)
	eventbus.Emit(ctx, s.bus, domain.EventEmailSent, "", msg)
	return &msg, nil
}

// Describe renders the confirmation a worker relays to the coordinator.
func Describe(msg *domain.EmailMessage) string {
	return fmt.Sprintf("Email sent with subject '%s' and body '%s'", msg.Subject, msg.Body)
}
