// Package reminder creates reminders, persists them, and fires them on time.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"voice2action/internal/domain"
	"voice2action/internal/usecase/eventbus"
	"voice2action/internal/usecase/scheduling"
)

// Notifier delivers a due reminder to the user.
type Notifier interface {
	Notify(ctx context.Context, r *domain.Reminder) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Deps holds the Service dependencies. Scheduler and Bus are optional:
// without a scheduler reminders are stored but only fired by Sweep.
type Deps struct {
	Store     domain.ReminderStore
	Scheduler *scheduling.Scheduler
	Notifier  Notifier
	Clock     domain.Clock
	Bus       domain.EventBus
	Logger    *slog.Logger
}

// Service implements domain.ReminderService.
type Service struct {
	deps Deps

	// firing serializes fire so a scheduled entry and a sweep cannot
	// notify the same reminder twice.
	firing sync.Mutex
}

var _ domain.ReminderService = (*Service)(nil)

func NewService(deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// SetReminder stores a reminder for task and schedules it. remindAt, when
// set, must not be after due.
func (s *Service) SetReminder(ctx context.Context, task string, due time.Time, remindAt *time.Time) (*domain.Reminder, error) {
	const op = "ReminderService.SetReminder"

	task = strings.TrimSpace(task)
	if task == "" {
		return nil, domain.NewSubSystemError("reminder", op, domain.ErrInvalidInput, "task is empty")
	}
	if due.IsZero() {
		return nil, domain.NewSubSystemError("reminder", op, domain.ErrInvalidInput, "due date is missing")
	}
	if remindAt != nil && remindAt.After(due) {
		return nil, domain.NewSubSystemError("reminder", op, domain.ErrInvalidInput,
			fmt.Sprintf("reminder date %s is after due date %s", remindAt.Format(time.RFC3339), due.Format(time.RFC3339)))
	}

	r := &domain.Reminder{
		ID:        ulid.Make().String(),
		Task:      task,
		DueDate:   due,
		RemindAt:  remindAt,
		CreatedAt: s.deps.Clock.Now(),
	}
	if err := s.deps.Store.Save(ctx, r); err != nil {
		return nil, domain.WrapOp(op, err)
	}
	if err := s.schedule(r); err != nil {
		s.deps.Logger.Warn("reminder stored but not scheduled; sweep will pick it up", "id", r.ID, "error", err)
	}

	s.deps.Logger.Info("reminder created", "id", r.ID, "due", due, "trigger", r.TriggerTime())
	eventbus.Emit(ctx, s.deps.Bus, domain.EventReminderCreated, "", r)
	return r, nil
}

// LoadAndSchedule schedules every pending reminder. Call once at startup,
// before or after the scheduler starts.
func (s *Service) LoadAndSchedule(ctx context.Context) error {
	pending, err := s.deps.Store.ListPending(ctx)
	if err != nil {
		return domain.WrapOp("ReminderService.LoadAndSchedule", err)
	}
	scheduled := 0
	for _, r := range pending {
		if err := s.schedule(r); err != nil {
			s.deps.Logger.Warn("failed to schedule persisted reminder", "id", r.ID, "error", err)
			continue
		}
		scheduled++
	}
	s.deps.Logger.Info("reminders loaded", "pending", len(pending), "scheduled", scheduled)
	return nil
}

// Sweep fires every pending reminder whose trigger time has passed and that
// has no scheduled entry of its own.
func (s *Service) Sweep(ctx context.Context) error {
	pending, err := s.deps.Store.ListPending(ctx)
	if err != nil {
		return domain.WrapOp("ReminderService.Sweep", err)
	}
	now := s.deps.Clock.Now()
	var firstErr error
	for _, r := range pending {
		if r.TriggerTime().After(now) {
			continue
		}
		if s.deps.Scheduler != nil && s.deps.Scheduler.HasDynamicTask(taskID(r.ID)) {
			continue
		}
		if err := s.fire(ctx, r.ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Service) schedule(r *domain.Reminder) error {
	if s.deps.Scheduler == nil {
		return nil
	}
	id := r.ID
	return s.deps.Scheduler.AddDynamicTask(taskID(id), scheduling.OnceAt(r.TriggerTime()), func(ctx context.Context) error {
		return s.fire(ctx, id)
	}, true)
}

func (s *Service) fire(ctx context.Context, id string) error {
	s.firing.Lock()
	defer s.firing.Unlock()

	r, err := s.deps.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if r.Fired {
		return nil
	}
	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.Notify(ctx, r); err != nil {
			return fmt.Errorf("notify reminder %s: %w", id, err)
		}
	}
	if err := s.deps.Store.MarkFired(ctx, id); err != nil {
		return err
	}
	s.deps.Logger.Info("reminder fired", "id", id, "task", r.Task)
	eventbus.Emit(ctx, s.deps.Bus, domain.EventReminderFired, "", map[string]string{"id": id, "task": r.Task})
	return nil
}

func taskID(reminderID string) string { return "reminder:" + reminderID }

// Describe renders the confirmation a worker relays to the coordinator.
func Describe(r *domain.Reminder) string {
	msg := fmt.Sprintf("Reminder set for task '%s' due at %s.", r.Task, r.DueDate.Format(time.RFC3339))
	if r.RemindAt != nil {
		msg += fmt.Sprintf(" Reminder will trigger at %s.", r.RemindAt.Format(time.RFC3339))
	}
	return msg
}
