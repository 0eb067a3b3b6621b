package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"energyiq/internal/observability/metrics"
	"energyiq/internal/scheduler/lock"
)

const (
	triggerSchedule = "schedule"
	triggerManual   = "manual"
)

// Job is a named unit of scheduled work. Run returns the number of items processed.
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) (int, error)
	// Skipped reports errors that mean another writer already holds the work.
	Skipped func(err error) bool
}

// Scheduler runs jobs on cron schedules and on demand.
type Scheduler struct {
	cron    *cron.Cron
	locker  Locker
	runs    RunStore
	notify  Notifier
	logger  *zap.Logger
	now     func() time.Time
	baseCtx context.Context

	mu   sync.RWMutex
	jobs map[string]Job
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithLocation evaluates cron specs in loc.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.cron = newCron(loc, s.logger)
		}
	}
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithNotifier alerts n when a run fails or times out.
func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) {
		s.notify = n
	}
}

// New constructs a scheduler. A nil locker falls back to process-local locks.
func New(locker Locker, runs RunStore, logger *zap.Logger, opts ...Option) (*Scheduler, error) {
	if runs == nil {
		return nil, errors.New("scheduler: nil run store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = lock.NewLocal()
	}
	s := &Scheduler{
		locker:  locker,
		runs:    runs,
		logger:  logger,
		now:     time.Now,
		baseCtx: context.Background(),
		jobs:    make(map[string]Job),
	}
	s.cron = newCron(time.UTC, logger)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func newCron(loc *time.Location, logger *zap.Logger) *cron.Cron {
	cl := cronLogger{logger: logger.Sugar()}
	return cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
}

// Register adds job to the schedule. An empty spec registers an on-demand job.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("scheduler: job requires name and run func")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
	}
	if job.Spec != "" {
		if _, err := s.cron.AddFunc(job.Spec, func() {
			_, err := s.execute(s.baseCtx, job, triggerSchedule)
			if err != nil && !errors.Is(err, ErrJobBusy) {
				s.logger.Warn("scheduled job failed, retrying next tick", zap.String("job", job.Name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("scheduler: job %s spec %q: %w", job.Name, job.Spec, err)
		}
	}
	s.jobs[job.Name] = job
	return nil
}

// Start begins running scheduled jobs until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Strings("jobs", s.Jobs()))
}

// Stop stops scheduling and returns a context done when running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Jobs returns the registered job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TriggerNow runs the named job synchronously and returns its ledger row.
func (s *Scheduler) TriggerNow(ctx context.Context, name string) (Run, error) {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, job, triggerManual)
}

// Runs returns the most recent ledger rows.
func (s *Scheduler) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.runs.List(ctx, limit)
}

func (s *Scheduler) execute(ctx context.Context, job Job, trigger string) (run Run, err error) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	logger := s.logger.With(zap.String("job", job.Name), zap.String("trigger", trigger))

	unlock, ok, err := s.locker.TryLock(ctx, job.Name, timeout+time.Minute)
	if err != nil {
		metrics.ObserveJob(job.Name, metrics.ResultError, 0)
		return Run{}, fmt.Errorf("scheduler: lock %s: %w", job.Name, err)
	}
	if !ok {
		metrics.ObserveJob(job.Name, metrics.ResultSkipped, 0)
		logger.Info("job skipped, lock held elsewhere")
		return Run{}, ErrJobBusy
	}
	defer unlock()

	run = Run{
		ID:        uuid.New(),
		Job:       job.Name,
		Trigger:   trigger,
		Status:    StatusRunning,
		StartedAt: s.now().UTC(),
	}
	if err := s.runs.Start(ctx, run); err != nil {
		logger.Warn("job ledger start failed", zap.Error(err))
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: job %s panic: %v", job.Name, r)
			run.Status = StatusFailed
			run.Error = err.Error()
			run = s.finish(run, metrics.ResultError, logger)
		}
	}()

	processed, runErr := job.Run(runCtx)
	run.Processed = processed
	result := metrics.ResultSuccess
	switch {
	case runErr == nil:
		run.Status = StatusSucceeded
	case job.Skipped != nil && job.Skipped(runErr):
		run.Status = StatusSkipped
		result = metrics.ResultSkipped
		runErr = nil
	case errors.Is(runErr, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded):
		run.Status = StatusTimeout
		run.Error = runErr.Error()
		result = metrics.ResultTimeout
	default:
		run.Status = StatusFailed
		run.Error = runErr.Error()
		result = metrics.ResultError
	}
	run = s.finish(run, result, logger)
	return run, runErr
}

func (s *Scheduler) finish(run Run, result string, logger *zap.Logger) Run {
	finished := s.now().UTC()
	run.FinishedAt = &finished
	elapsed := finished.Sub(run.StartedAt)
	metrics.ObserveJob(run.Job, result, elapsed)

	// the job context may already be cancelled; the ledger write must still land
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.runs.Finish(ctx, run); err != nil {
		logger.Warn("job ledger finish failed", zap.Error(err))
	}
	if s.notify != nil && (run.Status == StatusFailed || run.Status == StatusTimeout) {
		if err := s.notify.NotifyFailure(ctx, run); err != nil {
			logger.Warn("job failure notification failed", zap.Error(err))
		}
	}

	fields := []zap.Field{
		zap.String("run_id", run.ID.String()),
		zap.String("status", run.Status),
		zap.Int("processed", run.Processed),
		zap.Duration("elapsed", elapsed),
	}
	if run.Error != "" {
		logger.Warn("job finished", append(fields, zap.String("error", run.Error))...)
		return run
	}
	logger.Info("job finished", fields...)
	return run
}

type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
