package scheduling

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_TaskFires(t *testing.T) {
	var count atomic.Int32
	s := NewScheduler(newTestLogger())
	s.RegisterAction(ActionReminderSweep, func(context.Context) error {
		count.Add(1)
		return nil
	})
	require.NoError(t, s.AddTask(Task{Name: "sweep", Schedule: "50ms", Action: ActionReminderSweep}))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return count.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)
	require.NoError(t, s.Stop())
}

func TestScheduler_UnknownActionAndBadSchedule(t *testing.T) {
	s := NewScheduler(newTestLogger())
	assert.Error(t, s.AddTask(Task{Name: "x", Schedule: "1m", Action: "nope"}))

	s.RegisterAction(ActionReminderSweep, func(context.Context) error { return nil })
	assert.Error(t, s.AddTask(Task{Name: "x", Schedule: "whenever", Action: ActionReminderSweep}))
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s := NewScheduler(newTestLogger())
	require.NoError(t, s.Stop())
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}

func TestScheduler_DynamicOneShot(t *testing.T) {
	var count atomic.Int32
	s := NewScheduler(newTestLogger())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.NoError(t, s.AddDynamicTask("r1", OnceAt(time.Now().Add(-time.Minute)), func(context.Context) error {
		count.Add(1)
		return nil
	}, true))
	assert.True(t, s.HasDynamicTask("r1"))

	assert.Eventually(t, func() bool { return count.Load() == 1 && !s.HasDynamicTask("r1") }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
}

func TestScheduler_DynamicTaskLifecycle(t *testing.T) {
	s := NewScheduler(newTestLogger())
	fn := func(context.Context) error { return nil }
	at := time.Now().Add(time.Hour)

	require.NoError(t, s.AddDynamicTask("r", OnceAt(at), fn, true))
	assert.Error(t, s.AddDynamicTask("r", OnceAt(at), fn, true))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	next := s.NextRun("r")
	require.NotNil(t, next)
	assert.WithinDuration(t, at, *next, time.Second)

	require.NoError(t, s.RemoveDynamicTask("r"))
	assert.Error(t, s.RemoveDynamicTask("r"))
	assert.Nil(t, s.NextRun("r"))
}

func TestParseSchedule(t *testing.T) {
	for _, ok := range []string{"*/5 * * * *", "@hourly", "30m", "10ms"} {
		_, err := ParseSchedule(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"", "-5m", "0s", "every tuesday"} {
		_, err := ParseSchedule(bad)
		assert.Error(t, err, bad)
	}
}

func TestOnceAt(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)

	s := OnceAt(future)
	assert.Equal(t, future, s.Next(now))
	assert.True(t, s.Next(now).IsZero())

	past := OnceAt(now.Add(-time.Hour))
	assert.Equal(t, now, past.Next(now))
}
