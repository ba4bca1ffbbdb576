package main

import (
	"context"
	"fmt"
	"time"

	"voice2action/internal/adapter/llm"
	"voice2action/internal/adapter/messaging"
	"voice2action/internal/adapter/store"
	"voice2action/internal/infra/config"
	"voice2action/internal/security"
	"voice2action/internal/usecase/datetime"
	"voice2action/internal/usecase/email"
	"voice2action/internal/usecase/reminder"
	"voice2action/internal/usecase/scheduling"
)

const reminderSweepInterval = "1m"

// ServiceComponents holds the services the worker tools are built on.
type ServiceComponents struct {
	Transcriber *llm.WhisperTranscriber
	Sandbox     *security.Sandbox // nil unless transcription.audio_roots is set
	DateTime    *datetime.Service
	Store       *store.SQLiteReminderStore
	Scheduler   *scheduling.Scheduler // nil unless reminders.notify is set
	Reminders   *reminder.Service
	Outbox      *messaging.Outbox
	Email       *email.Service
	Quarantine  *messaging.Quarantine
	Location    *time.Location
}

// initServices opens the reminder database and email outbox and builds the
// services on top of them.
// Returns components, cleanup function, and any error
func initServices(cfg *config.Config, infra *InfraComponents) (*ServiceComponents, func(), error) {
	log := infra.Logger
	comp := &ServiceComponents{
		Transcriber: llm.NewWhisperTranscriber(cfg.Transcription, cfg.LLM.CircuitBreaker, log),
		Location:    time.Local,
	}
	comp.DateTime = datetime.NewService(nil, comp.Location)
	if len(cfg.Transcription.AudioRoots) > 0 {
		sb, err := security.NewSandbox(cfg.Transcription.AudioRoots...)
		if err != nil {
			return nil, nil, fmt.Errorf("audio roots: %w", err)
		}
		comp.Sandbox = sb
	}

	outbox, err := messaging.NewOutbox(cfg.Email.Outbox, log)
	if err != nil {
		return nil, nil, err
	}
	comp.Outbox = outbox
	comp.Email = email.NewService(outbox, email.Config{
		From:            cfg.Email.From,
		To:              cfg.Email.To,
		MaxSendsPerHour: cfg.Email.MaxSendsPerHour,
	}, nil, infra.Bus, log)
	comp.Quarantine = messaging.NewQuarantine(cfg.Email.Quarantine, log)

	reminders, err := store.NewSQLiteReminderStore(cfg.Reminders.DBPath)
	if err != nil {
		_ = outbox.Close()
		return nil, nil, fmt.Errorf("reminder store: %w", err)
	}
	comp.Store = reminders

	if cfg.Reminders.Notify {
		comp.Scheduler = scheduling.NewScheduler(log)
	}
	comp.Reminders = reminder.NewService(reminder.Deps{
		Store:     reminders,
		Scheduler: comp.Scheduler,
		Notifier:  messaging.NewReminderNotifier(comp.Email, log),
		Bus:       infra.Bus,
		Logger:    log,
	})

	cleanup := func() {
		if comp.Scheduler != nil {
			if err := comp.Scheduler.Stop(); err != nil {
				log.Warn("scheduler stop failed", "error", err)
			}
		}
		if err := reminders.Close(); err != nil {
			log.Warn("reminder store close failed", "error", err)
		}
		if err := outbox.Close(); err != nil {
			log.Warn("outbox close failed", "error", err)
		}
	}
	return comp, cleanup, nil
}

// startReminders begins firing stored reminders in-process. It is a no-op
// unless reminders.notify is set.
func (s *ServiceComponents) startReminders(ctx context.Context) error {
	if s.Scheduler == nil {
		return nil
	}
	s.Scheduler.RegisterAction(scheduling.ActionReminderSweep, s.Reminders.Sweep)
	if err := s.Scheduler.AddTask(scheduling.Task{
		Name:     "reminder-sweep",
		Schedule: reminderSweepInterval,
		Action:   scheduling.ActionReminderSweep,
	}); err != nil {
		return fmt.Errorf("schedule reminder sweep: %w", err)
	}
	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := s.Reminders.LoadAndSchedule(ctx); err != nil {
		return fmt.Errorf("load reminders: %w", err)
	}
	return nil
}
