package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"voice2action/internal/domain"
)

// ReminderNotifier delivers due reminders by email. Without an email service
// it only logs.
type ReminderNotifier struct {
	email  domain.EmailService
	logger *slog.Logger
}

// NewReminderNotifier creates a notifier. email may be nil.
func NewReminderNotifier(email domain.EmailService, logger *slog.Logger) *ReminderNotifier {
	return &ReminderNotifier{email: email, logger: logger}
}

// Notify implements reminder.Notifier.
func (n *ReminderNotifier) Notify(ctx context.Context, r *domain.Reminder) error {
	n.logger.Info("reminder due",
		"id", r.ID,
		"task", r.Task,
		"due", r.DueDate.Format(time.RFC3339),
	)
	if n.email == nil {
		return nil
	}
	subject := "Reminder: " + r.Task
	body := fmt.Sprintf("Task '%s' is due at %s.", r.Task, r.DueDate.Format(time.RFC3339))
	if _, err := n.email.SendEmail(ctx, subject, body); err != nil {
		return domain.WrapOp("ReminderNotifier.Notify", err)
	}
	return nil
}

// QuarantineRecord is one message set aside as spam.
type QuarantineRecord struct {
	Text     string    `json:"text"`
	Reason   string    `json:"reason"`
	Received time.Time `json:"received"`
}

// Quarantine implements domain.SpamDisposition by appending spam to a JSONL
// file. With an empty path it only logs.
type Quarantine struct {
	mu     sync.Mutex
	path   string
	now    func() time.Time
	logger *slog.Logger
}

var _ domain.SpamDisposition = (*Quarantine)(nil)

// NewQuarantine creates a quarantine writing to path.
func NewQuarantine(path string, logger *slog.Logger) *Quarantine {
	return &Quarantine{path: path, now: time.Now, logger: logger}
}

// Handle records text with the detector's reason.
func (q *Quarantine) Handle(ctx context.Context, text string, verdict *domain.DetectionResult) error {
	reason := ""
	if verdict != nil {
		reason = verdict.Reason
	}
	q.logger.Warn("message quarantined as spam", "reason", reason, "chars", len(text))
	if q.path == "" {
		return ctx.Err()
	}

	data, err := json.Marshal(QuarantineRecord{Text: text, Reason: reason, Received: q.now().UTC()})
	if err != nil {
		return fmt.Errorf("quarantine: marshal: %w", err)
	}
	data = append(data, '\n')

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(q.path), 0o700); err != nil {
		return fmt.Errorf("quarantine: create dir: %w", err)
	}
	f, err := os.OpenFile(q.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("quarantine: open file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("quarantine: write: %w", err)
	}
	return nil
}

// Records returns the quarantined messages, oldest first.
func (q *Quarantine) Records() ([]QuarantineRecord, error) {
	if q.path == "" {
		return nil, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return readJSONL[QuarantineRecord](q.path)
}
