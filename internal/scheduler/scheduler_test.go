package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energyiq/internal/scheduler"
	"energyiq/internal/scheduler/infrastructure/memory"
	"energyiq/internal/scheduler/lock"
)

var errHeld = errors.New("held by another writer")

func newScheduler(t *testing.T, locker scheduler.Locker) (*scheduler.Scheduler, *memory.RunStore) {
	t.Helper()
	runs := memory.NewRunStore()
	s, err := scheduler.New(locker, runs, nil, scheduler.WithLocation(time.UTC))
	require.NoError(t, err)
	return s, runs
}

func TestTriggerNow_RecordsSuccess(t *testing.T) {
	s, runs := newScheduler(t, nil)
	require.NoError(t, s.Register(scheduler.Job{
		Name: "aggregator",
		Spec: "*/15 * * * *",
		Run:  func(ctx context.Context) (int, error) { return 7, nil },
	}))

	run, err := s.TriggerNow(context.Background(), "aggregator")
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatusSucceeded, run.Status)
	assert.Equal(t, 7, run.Processed)

	ledger, err := runs.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, "aggregator", ledger[0].Job)
	assert.Equal(t, "manual", ledger[0].Trigger)
	assert.Equal(t, scheduler.StatusSucceeded, ledger[0].Status)
	require.NotNil(t, ledger[0].FinishedAt)
}

func TestTriggerNow_FailureIsRecordedAndReturned(t *testing.T) {
	s, runs := newScheduler(t, nil)
	boom := errors.New("store unavailable")
	require.NoError(t, s.Register(scheduler.Job{
		Name: "insights",
		Run:  func(ctx context.Context) (int, error) { return 0, boom },
	}))

	run, err := s.TriggerNow(context.Background(), "insights")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, scheduler.StatusFailed, run.Status)

	ledger, err := runs.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, "store unavailable", ledger[0].Error)
}

func TestTriggerNow_SkippedErrorIsNotAFailure(t *testing.T) {
	s, _ := newScheduler(t, nil)
	require.NoError(t, s.Register(scheduler.Job{
		Name:    "aggregator",
		Run:     func(ctx context.Context) (int, error) { return 0, errHeld },
		Skipped: func(err error) bool { return errors.Is(err, errHeld) },
	}))

	run, err := s.TriggerNow(context.Background(), "aggregator")
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatusSkipped, run.Status)
}

func TestTriggerNow_TimeoutIsRecorded(t *testing.T) {
	s, _ := newScheduler(t, nil)
	require.NoError(t, s.Register(scheduler.Job{
		Name:    "aggregator",
		Timeout: 20 * time.Millisecond,
		Run: func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		},
	}))

	run, err := s.TriggerNow(context.Background(), "aggregator")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, scheduler.StatusTimeout, run.Status)
}

func TestTriggerNow_PanicIsRecovered(t *testing.T) {
	s, runs := newScheduler(t, nil)
	require.NoError(t, s.Register(scheduler.Job{
		Name: "insights",
		Run:  func(ctx context.Context) (int, error) { panic("nil map") },
	}))

	run, err := s.TriggerNow(context.Background(), "insights")
	require.Error(t, err)
	assert.Equal(t, scheduler.StatusFailed, run.Status)

	ledger, err := runs.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Contains(t, ledger[0].Error, "nil map")
}

func TestTriggerNow_BusyWhenLockHeld(t *testing.T) {
	locker := lock.NewLocal()
	s, runs := newScheduler(t, locker)
	require.NoError(t, s.Register(scheduler.Job{
		Name: "aggregator",
		Run:  func(ctx context.Context) (int, error) { return 1, nil },
	}))

	unlock, ok, err := locker.TryLock(context.Background(), "aggregator", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.TriggerNow(context.Background(), "aggregator")
	assert.ErrorIs(t, err, scheduler.ErrJobBusy)

	unlock()
	_, err = s.TriggerNow(context.Background(), "aggregator")
	require.NoError(t, err)

	ledger, err := runs.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, ledger, 1)
}

func TestRegister_Validation(t *testing.T) {
	s, _ := newScheduler(t, nil)
	noop := func(ctx context.Context) (int, error) { return 0, nil }

	_, err := s.TriggerNow(context.Background(), "missing")
	assert.ErrorIs(t, err, scheduler.ErrUnknownJob)

	assert.Error(t, s.Register(scheduler.Job{Name: "bad", Spec: "every tuesday", Run: noop}))
	assert.Error(t, s.Register(scheduler.Job{Name: "", Run: noop}))

	require.NoError(t, s.Register(scheduler.Job{Name: "insights", Spec: "0 0 * * *", Run: noop}))
	assert.ErrorIs(t, s.Register(scheduler.Job{Name: "insights", Run: noop}), scheduler.ErrDuplicateJob)
	assert.Equal(t, []string{"insights"}, s.Jobs())
}

func TestStartStop(t *testing.T) {
	s, _ := newScheduler(t, nil)
	require.NoError(t, s.Register(scheduler.Job{
		Name: "insights",
		Spec: "0 0 * * *",
		Run:  func(ctx context.Context) (int, error) { return 0, nil },
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	select {
	case <-s.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

type recordingNotifier struct {
	runs []scheduler.Run
}

func (n *recordingNotifier) NotifyFailure(ctx context.Context, run scheduler.Run) error {
	n.runs = append(n.runs, run)
	return nil
}

func TestNotifier_OnlyFailedRuns(t *testing.T) {
	notifier := &recordingNotifier{}
	s, err := scheduler.New(nil, memory.NewRunStore(), nil, scheduler.WithNotifier(notifier))
	require.NoError(t, err)
	require.NoError(t, s.Register(scheduler.Job{
		Name: "ok",
		Run:  func(ctx context.Context) (int, error) { return 1, nil },
	}))
	require.NoError(t, s.Register(scheduler.Job{
		Name:    "busy",
		Run:     func(ctx context.Context) (int, error) { return 0, errHeld },
		Skipped: func(err error) bool { return errors.Is(err, errHeld) },
	}))
	require.NoError(t, s.Register(scheduler.Job{
		Name: "broken",
		Run:  func(ctx context.Context) (int, error) { return 0, errors.New("disk full") },
	}))

	for _, name := range []string{"ok", "busy", "broken"} {
		_, _ = s.TriggerNow(context.Background(), name)
	}

	require.Len(t, notifier.runs, 1)
	assert.Equal(t, "broken", notifier.runs[0].Job)
	assert.Equal(t, scheduler.StatusFailed, notifier.runs[0].Status)
	assert.NotNil(t, notifier.runs[0].FinishedAt)
}
