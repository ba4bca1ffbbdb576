package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"voice2action/internal/domain"
	"voice2action/internal/infra/tracer"
	"voice2action/internal/usecase/reminder"
)

const maxTaskLength = 1000

// ReminderTool creates reminders through the reminder service.
type ReminderTool struct {
	svc    domain.ReminderService
	loc    *time.Location
	logger *slog.Logger
}

// NewReminderTool creates a ReminderTool. Dates without an offset are read in
// loc; nil means time.Local.
func NewReminderTool(svc domain.ReminderService, loc *time.Location, logger *slog.Logger) *ReminderTool {
	if loc == nil {
		loc = time.Local
	}
	return &ReminderTool{svc: svc, loc: loc, logger: logger}
}

func (t *ReminderTool) Name() string { return "SetReminder" }
func (t *ReminderTool) Description() string {
	return "Set a reminder for the given task at the specified date and optional earlier reminder time."
}

func (t *ReminderTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"task": {"type": "string", "description": "Task to be reminded of."},
				"dueDate": {"type": "string", "description": "Due date for the task (ISO-8601)."},
				"reminderDate": {"type": "string", "description": "Optional reminder date/time before the due date (ISO-8601)."}
			},
			"required": ["task", "dueDate"]
		}`),
	}
}

type reminderParams struct {
	Task         string `json:"task"`
	DueDate      string `json:"dueDate"`
	ReminderDate string `json:"reminderDate,omitempty"`
}

// ReminderData is the envelope data of SetReminder.
type ReminderData struct {
	ID           string     `json:"id"`
	Task         string     `json:"task"`
	DueDate      time.Time  `json:"dueDate"`
	ReminderDate *time.Time `json:"reminderDate,omitempty"`
	Message      string     `json:"message"`
}

func (t *ReminderTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.reminder", TypeReminder, t.logger, params,
		func(ctx context.Context, span trace.Span, p reminderParams) (any, error) {
			const op = "SetReminder"
			if err := ValidateAll(
				RequireField("task", p.Task),
				ValidateMaxLength("task", p.Task, maxTaskLength),
			); err != nil {
				return nil, invalid(op, err)
			}
			due, err := ParseDate("dueDate", p.DueDate, t.loc)
			if err != nil {
				return nil, invalid(op, err)
			}
			var remindAt *time.Time
			if p.ReminderDate != "" {
				at, err := ParseDate("reminderDate", p.ReminderDate, t.loc)
				if err != nil {
					return nil, invalid(op, err)
				}
				remindAt = &at
			}

			r, err := t.svc.SetReminder(ctx, p.Task, due, remindAt)
			if err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.StringAttr("reminder.id", r.ID))
			return ReminderData{
				ID:           r.ID,
				Task:         r.Task,
				DueDate:      r.DueDate,
				ReminderDate: r.RemindAt,
				Message:      reminder.Describe(r),
			}, nil
		})
}
