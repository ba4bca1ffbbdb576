package domain

import (
	"context"
	"time"
)

// Reminder is a persisted reminder created by a worker.
type Reminder struct {
	ID        string     `json:"id"`
	Task      string     `json:"task"`
	DueDate   time.Time  `json:"dueDate"`
	RemindAt  *time.Time `json:"reminderDate,omitempty"`
	Fired     bool       `json:"fired"`
	CreatedAt time.Time  `json:"createdAt"`
}

// TriggerTime returns the moment the reminder should fire.
func (r *Reminder) TriggerTime() time.Time {
	if r.RemindAt != nil {
		return *r.RemindAt
	}
	return r.DueDate
}

// ReminderStore persists reminders.
type ReminderStore interface {
	Save(ctx context.Context, r *Reminder) error
	Get(ctx context.Context, id string) (*Reminder, error)
	ListPending(ctx context.Context) ([]*Reminder, error)
	MarkFired(ctx context.Context, id string) error
}

// ReminderService creates reminders and arranges for them to fire.
type ReminderService interface {
	SetReminder(ctx context.Context, task string, due time.Time, remindAt *time.Time) (*Reminder, error)
}

// EmailMessage is an outbound email.
type EmailMessage struct {
	ID      string    `json:"id"`
	From    string    `json:"from,omitempty"`
	To      string    `json:"to,omitempty"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sentAt"`
}

// EmailSender is the transport used to deliver email.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailService sends emails on behalf of a worker.
type EmailService interface {
	SendEmail(ctx context.Context, subject, body string) (*EmailMessage, error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// DetectionResult is the spam detector's verdict for one message.
type DetectionResult struct {
	IsSpam bool   `json:"is_spam"`
	Reason string `json:"reason"`
}

// EmailResponse is a drafted reply.
type EmailResponse struct {
	Response string `json:"response"`
}

// SpamDetector classifies incoming text.
type SpamDetector interface {
	Detect(ctx context.Context, text string) (*DetectionResult, error)
}

// EmailDrafter writes a reply to incoming text.
type EmailDrafter interface {
	Draft(ctx context.Context, text string) (*EmailResponse, error)
}

// SpamDisposition handles a message classified as spam.
type SpamDisposition interface {
	Handle(ctx context.Context, text string, verdict *DetectionResult) error
}
