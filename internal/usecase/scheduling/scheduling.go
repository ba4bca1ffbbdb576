// Package scheduling runs recurring and one-shot jobs on top of robfig/cron.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Action names a recurring job handler.
type Action string

// ActionReminderSweep fires reminders whose one-shot entry was missed, for
// example because the process was down at trigger time.
const ActionReminderSweep Action = "reminder_sweep"

const jobTimeout = 5 * time.Minute

// Task is a recurring job bound to a registered Action.
type Task struct {
	Name     string
	Schedule string // cron expression "*/5 * * * *" OR duration "30m"
	Action   Action
}

// Scheduler runs tasks on cron or fixed-interval schedules. Jobs only run
// between Start and Stop.
type Scheduler struct {
	cron    *cron.Cron
	actions map[Action]func(ctx context.Context) error
	dynamic map[string]cron.EntryID
	logger  *slog.Logger
	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		actions: make(map[Action]func(ctx context.Context) error),
		dynamic: make(map[string]cron.EntryID),
		logger:  logger,
	}
}

// RegisterAction registers the handler for action.
func (s *Scheduler) RegisterAction(action Action, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action] = fn
}

// AddTask schedules a recurring task whose action must already be registered.
func (s *Scheduler) AddTask(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, ok := s.actions[task.Action]
	if !ok {
		return fmt.Errorf("scheduler: unknown action %q for task %q", task.Action, task.Name)
	}
	schedule, err := ParseSchedule(task.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for task %q: %w", task.Schedule, task.Name, err)
	}

	s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.run("task", task.Name, fn)
	}))
	s.logger.Info("task added to scheduler", "name", task.Name, "schedule", task.Schedule, "action", string(task.Action))
	return nil
}

// AddDynamicTask schedules fn under id. A oneShot task is removed after its
// first run.
func (s *Scheduler) AddDynamicTask(id string, schedule cron.Schedule, fn func(ctx context.Context) error, oneShot bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.dynamic[id]; exists {
		return fmt.Errorf("scheduler: dynamic task %q already exists", id)
	}

	var entryID cron.EntryID
	entryID = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.run("dynamic task", id, fn)
		if oneShot {
			s.cron.Remove(entryID)
			s.mu.Lock()
			delete(s.dynamic, id)
			s.mu.Unlock()
		}
	}))
	s.dynamic[id] = entryID
	s.logger.Debug("dynamic task added", "id", id)
	return nil
}

// RemoveDynamicTask unschedules a dynamic task.
func (s *Scheduler) RemoveDynamicTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.dynamic[id]
	if !ok {
		return fmt.Errorf("scheduler: dynamic task %q not found", id)
	}
	s.cron.Remove(entryID)
	delete(s.dynamic, id)
	s.logger.Debug("dynamic task removed", "id", id)
	return nil
}

// HasDynamicTask reports whether id is currently scheduled.
func (s *Scheduler) HasDynamicTask(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dynamic[id]
	return ok
}

// NextRun returns the next run time of a dynamic task, or nil.
func (s *Scheduler) NextRun(id string) *time.Time {
	s.mu.Lock()
	entryID, ok := s.dynamic[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	entry := s.cron.Entry(entryID)
	if entry.ID == 0 || entry.Next.IsZero() {
		return nil
	}
	t := entry.Next
	return &t
}

func (s *Scheduler) run(kind, name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		s.logger.Debug("scheduler stopped, skipping "+kind, "name", name)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	if err := fn(jobCtx); err != nil {
		s.logger.Warn(kind+" failed", "name", name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Debug(kind+" completed", "name", name, "duration", time.Since(start))
}

// Start begins running scheduled jobs. Jobs receive a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.ctx = nil
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	return nil
}

// ParseSchedule parses a cron expression (with descriptors such as @hourly)
// or, failing that, a positive Go duration.
func ParseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	dur, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", schedule)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return NewConstantDelay(dur), nil
}

// NewConstantDelay returns a schedule that fires every d. Unlike
// cron.Every it supports sub-second intervals.
func NewConstantDelay(d time.Duration) cron.Schedule {
	return &constantDelay{delay: d}
}

type constantDelay struct {
	delay time.Duration
}

func (d *constantDelay) Next(t time.Time) time.Time {
	return t.Add(d.delay)
}

// OnceAt returns a schedule that fires a single time at at, or immediately
// on the next tick when at is already in the past.
func OnceAt(at time.Time) cron.Schedule {
	return &onceSchedule{at: at}
}

type onceSchedule struct {
	at   time.Time
	done atomic.Bool
}

func (s *onceSchedule) Next(t time.Time) time.Time {
	if s.done.Swap(true) {
		return time.Time{}
	}
	if !s.at.After(t) {
		// cron treats a Next before now as due.
		return t
	}
	return s.at
}
