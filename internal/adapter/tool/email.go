package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"voice2action/internal/domain"
	"voice2action/internal/infra/tracer"
	"voice2action/internal/usecase/email"
	"voice2action/internal/usecase/eventbus"
)

const (
	maxSubjectLength = 500
	maxBodyLength    = 50_000

	// FallbackSubject is the subject of fallback notifications.
	FallbackSubject = "Voice2Action notification"
)

// EmailData is the envelope data of SendEmail and SendFallbackNotification.
type EmailData struct {
	ID      string    `json:"id"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sentAt"`
	Message string    `json:"message"`
}

func emailData(msg *domain.EmailMessage) EmailData {
	return EmailData{
		ID:      msg.ID,
		Subject: msg.Subject,
		Body:    msg.Body,
		SentAt:  msg.SentAt,
		Message: email.Describe(msg),
	}
}

// EmailTool sends an email to the user.
type EmailTool struct {
	svc    domain.EmailService
	logger *slog.Logger
}

func NewEmailTool(svc domain.EmailService, logger *slog.Logger) *EmailTool {
	return &EmailTool{svc: svc, logger: logger}
}

func (t *EmailTool) Name() string        { return "SendEmail" }
func (t *EmailTool) Description() string { return "Send an email with the given subject and body to the user." }

func (t *EmailTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"subject": {"type": "string", "description": "Email subject."},
				"body": {"type": "string", "description": "Email body."}
			},
			"required": ["subject", "body"]
		}`),
	}
}

type emailParams struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (t *EmailTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.email", TypeEmail, t.logger, params,
		func(ctx context.Context, span trace.Span, p emailParams) (any, error) {
			if err := ValidateAll(
				ValidateMaxLength("subject", p.Subject, maxSubjectLength),
				ValidateMaxLength("body", p.Body, maxBodyLength),
			); err != nil {
				return nil, invalid("SendEmail", err)
			}
			msg, err := t.svc.SendEmail(ctx, p.Subject, p.Body)
			if err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.StringAttr("email.id", msg.ID))
			return emailData(msg), nil
		})
}

// FallbackTool notifies the user when a request could not be mapped to any
// other action.
type FallbackTool struct {
	svc    domain.EmailService
	bus    domain.EventBus
	logger *slog.Logger
}

func NewFallbackTool(svc domain.EmailService, bus domain.EventBus, logger *slog.Logger) *FallbackTool {
	return &FallbackTool{svc: svc, bus: bus, logger: logger}
}

func (t *FallbackTool) Name() string { return "SendFallbackNotification" }
func (t *FallbackTool) Description() string {
	return "Notify the user with a short message when the request cannot be handled by any other tool."
}

func (t *FallbackTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"message": {"type": "string", "description": "Notification text."}
			},
			"required": ["message"]
		}`),
	}
}

type fallbackParams struct {
	Message string `json:"message"`
}

func (t *FallbackTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.fallback", TypeFallbackNotification, t.logger, params,
		func(ctx context.Context, _ trace.Span, p fallbackParams) (any, error) {
			if err := ValidateAll(
				RequireField("message", p.Message),
				ValidateMaxLength("message", p.Message, maxBodyLength),
			); err != nil {
				return nil, invalid("SendFallbackNotification", err)
			}
			msg, err := t.svc.SendEmail(ctx, FallbackSubject, p.Message)
			if err != nil {
				return nil, err
			}
			eventbus.Emit(ctx, t.bus, domain.EventEmailFallback, "", map[string]string{"id": msg.ID})
			return emailData(msg), nil
		})
}
