// Package emailflow screens incoming messages for spam and answers the rest.
package emailflow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"voice2action/internal/domain"
	"voice2action/internal/infra/tracer"
	"voice2action/internal/usecase/eventbus"
)

// DefaultReplySubject is used for drafted replies when none is configured.
const DefaultReplySubject = "Re: your message"

// Outcome reports what happened to one incoming message.
type Outcome struct {
	Spam   bool                 `json:"spam"`
	Reason string               `json:"reason,omitempty"`
	Reply  string               `json:"reply,omitempty"`
	Email  *domain.EmailMessage `json:"email,omitempty"`
}

// ProcessIncomingEmail classifies a message, hands spam to the disposition
// and sends a drafted reply for everything else.
type ProcessIncomingEmail struct {
	Detector     domain.SpamDetector
	Drafter      domain.EmailDrafter
	Email        domain.EmailService
	Disposition  domain.SpamDisposition
	ReplySubject string
	Bus          domain.EventBus
	Logger       *slog.Logger
}

func (p *ProcessIncomingEmail) Handle(ctx context.Context, raw string) (*Outcome, error) {
	const op = "ProcessIncomingEmail.Handle"
	ctx, span := tracer.StartSpan(ctx, "emailflow.email")
	defer span.End()

	if strings.TrimSpace(raw) == "" {
		return nil, domain.NewDomainError(op, domain.ErrInvalidInput, "email content is empty")
	}

	verdict, err := p.Detector.Detect(ctx, raw)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp(op, err)
	}
	span.SetAttributes(tracer.BoolAttr("email.spam", verdict.IsSpam))

	if verdict.IsSpam {
		p.Logger.Info("message classified as spam", "reason", verdict.Reason)
		if err := p.Disposition.Handle(ctx, raw, verdict); err != nil {
			tracer.RecordError(span, err)
			return nil, domain.WrapOp(op, err)
		}
		eventbus.Emit(ctx, p.Bus, domain.EventEmailSpam, "", verdict)
		tracer.SetOK(span)
		return &Outcome{Spam: true, Reason: verdict.Reason}, nil
	}

	draft, err := p.Drafter.Draft(ctx, raw)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp(op, err)
	}
	subject := p.ReplySubject
	if subject == "" {
		subject = DefaultReplySubject
	}
	msg, err := p.Email.SendEmail(ctx, subject, draft.Response)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp(op, err)
	}
	tracer.SetOK(span)
	return &Outcome{Reason: verdict.Reason, Reply: draft.Response, Email: msg}, nil
}

// ProcessIncomingAudio transcribes a recorded message and runs it through
// ProcessIncomingEmail.
type ProcessIncomingAudio struct {
	Transcriber domain.Transcriber
	Email       *ProcessIncomingEmail
}

func (p *ProcessIncomingAudio) Handle(ctx context.Context, audioPath string) (*Outcome, error) {
	const op = "ProcessIncomingAudio.Handle"

	if strings.TrimSpace(audioPath) == "" {
		return nil, domain.NewDomainError(op, domain.ErrInvalidInput, "audio path is empty")
	}
	if _, err := os.Stat(audioPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.NewDomainError(op, domain.ErrAudioNotFound, audioPath)
		}
		return nil, domain.WrapOp(op, err)
	}

	text, err := p.Transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, domain.WrapOp(op, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.NewDomainError(op, domain.ErrTranscriptionEmpty, audioPath)
	}
	return p.Email.Handle(ctx, text)
}
