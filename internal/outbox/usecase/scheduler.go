package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/allisson/admissions/internal/errors"
)

// Task names registered by NewOutboxScheduler.
const (
	TaskPoll    = "poll"
	TaskRetry   = "retry"
	TaskReclaim = "reclaim"
	TaskPurge   = "purge"
	TaskHealth  = "health"
)

// TaskFunc is the body of a scheduled task.
type TaskFunc func(ctx context.Context) error

type task struct {
	name     string
	schedule cron.Schedule
	run      TaskFunc
}

// Scheduler runs named recurring tasks. Each task runs serially: a slow run delays its own
// next tick and never overlaps itself. Task errors and panics are logged and never stop
// the scheduler.
type Scheduler struct {
	mu     sync.Mutex
	tasks  []task
	logger *slog.Logger
}

// NewScheduler creates an empty Scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Add registers a task. Tasks added after Run starts are not picked up.
func (s *Scheduler) Add(name string, schedule cron.Schedule, run TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task{name: name, schedule: schedule, run: run})
}

// Tasks returns the registered task names in registration order.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks))
	for _, t := range s.tasks {
		names = append(names, t.name)
	}
	return names
}

// Run starts every task and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	tasks := make([]task, len(s.tasks))
	copy(tasks, s.tasks)
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("starting scheduler", slog.Any("tasks", s.Tasks()))
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() error {
			s.loop(ctx, t)
			return nil
		})
	}

	err := g.Wait()

	if s.logger != nil {
		s.logger.Info("scheduler stopped")
	}
	return err
}

func (s *Scheduler) loop(ctx context.Context, t task) {
	for {
		next := t.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runOnce(ctx, t)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.Error("scheduled task panicked",
				slog.String("task", t.name),
				slog.Any("panic", r),
			)
		}
	}()

	if err := t.run(ctx); err != nil && ctx.Err() == nil && s.logger != nil {
		s.logger.Error("scheduled task failed",
			slog.String("task", t.name),
			slog.Any("error", err),
		)
	}
}

// everySchedule fires at a constant interval with millisecond precision.
type everySchedule struct {
	interval time.Duration
}

// Every returns a schedule that fires every d, rounded to the millisecond. Unlike
// cron.Every it does not round to whole seconds.
func Every(d time.Duration) cron.Schedule {
	d = d.Round(time.Millisecond)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return everySchedule{interval: d}
}

func (s everySchedule) Next(t time.Time) time.Time {
	return t.Add(s.interval)
}

// ParseSchedule parses a standard five-field cron expression or a descriptor like "@daily".
func ParseSchedule(expr string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "invalid cron schedule %q: %v", expr, err)
	}
	return schedule, nil
}

// NewOutboxScheduler registers the dispatcher cadences and the health check.
func NewOutboxScheduler(
	config Config,
	dispatcher *Dispatcher,
	monitor *HealthMonitor,
	logger *slog.Logger,
) (*Scheduler, error) {
	purgeSchedule, err := ParseSchedule(config.PurgeSchedule)
	if err != nil {
		return nil, fmt.Errorf("failed to parse purge schedule: %w", err)
	}

	s := NewScheduler(logger)
	s.Add(TaskPoll, Every(config.PollInterval), func(ctx context.Context) error {
		_, err := dispatcher.DispatchReady(ctx)
		return err
	})
	s.Add(TaskRetry, Every(config.RetryInterval), func(ctx context.Context) error {
		_, err := dispatcher.DispatchRetries(ctx)
		return err
	})
	s.Add(TaskReclaim, Every(config.ReclaimInterval), func(ctx context.Context) error {
		_, err := dispatcher.ReclaimStaleLeases(ctx)
		return err
	})
	s.Add(TaskPurge, purgeSchedule, func(ctx context.Context) error {
		_, err := dispatcher.Purge(ctx)
		return err
	})
	s.Add(TaskHealth, Every(config.HealthInterval), func(ctx context.Context) error {
		_, err := monitor.Check(ctx)
		return err
	})

	return s, nil
}
