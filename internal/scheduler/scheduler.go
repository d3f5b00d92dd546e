// Package scheduler evaluates cron schedules and fires endpoint load runs.
// It runs as a background goroutine inside the server, checking enabled
// schedules at a configurable interval (default 30s).
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/unhackeddev/nfury/internal/domain"
)

// ScheduleStore is the slice of the store the scheduler reads and advances.
type ScheduleStore interface {
	ListEnabledSchedules(ctx context.Context) ([]domain.Schedule, error)
	UpdateSchedule(ctx context.Context, sched *domain.Schedule) error
	MarkScheduleFired(ctx context.Context, id int64, firedAt, nextRun time.Time) error
}

// RunStarter fires endpoint runs. Satisfied by the runner.
type RunStarter interface {
	StartEndpointRun(ctx context.Context, endpointID int64, usersOverride *int) (string, error)
	IsRunning() bool
}

// Scheduler checks enabled schedules and fires runs when they're due.
type Scheduler struct {
	schedules ScheduleStore
	starter   RunStarter
	interval  time.Duration
	parser    cron.Parser
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a Scheduler with the given store, run starter, and check
// interval.
func New(schedules ScheduleStore, starter RunStarter, interval time.Duration) *Scheduler {
	return &Scheduler{
		schedules: schedules,
		starter:   starter,
		interval:  interval,
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Start begins the background scheduler goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop cancels the background goroutine and waits for it to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// Validate reports whether the cron expression parses.
func (s *Scheduler) Validate(cronExpr string) error {
	_, err := s.parser.Parse(cronExpr)
	return err
}

// tick evaluates all enabled schedules and fires runs that are due. The
// run slot is single-occupancy: a due schedule is skipped while any run is
// active, and its next_run_at advances so it does not pile up.
func (s *Scheduler) tick(ctx context.Context) {
	schedules, err := s.schedules.ListEnabledSchedules(ctx)
	if err != nil {
		slog.Error("scheduler: failed to list schedules", "error", err)
		return
	}

	now := time.Now()

	for _, sched := range schedules {
		cronSched, err := s.parser.Parse(sched.CronExpr)
		if err != nil {
			slog.Warn("scheduler: invalid cron expression",
				"schedule_id", sched.ID, "cron", sched.CronExpr, "error", err)
			continue
		}

		// If next_run_at is nil, compute it and set it (don't fire).
		if sched.NextRunAt == nil {
			next := cronSched.Next(now)
			sched.NextRunAt = &next
			if err := s.schedules.UpdateSchedule(ctx, &sched); err != nil {
				slog.Error("scheduler: failed to set initial next_run_at",
					"schedule_id", sched.ID, "error", err)
			}
			continue
		}

		// Not due yet.
		if sched.NextRunAt.After(now) {
			continue
		}

		// Due — skip (never queue) while the slot is busy. next_run_at
		// still advances: a missed window is dropped, not replayed.
		if s.starter.IsRunning() {
			slog.Debug("scheduler: skipping — a run is already active",
				"schedule_id", sched.ID, "endpoint_id", sched.EndpointID)
			s.advance(ctx, sched.ID, now, cronSched.Next(now))
			continue
		}

		runToken, err := s.starter.StartEndpointRun(ctx, sched.EndpointID, nil)
		switch {
		case errors.Is(err, domain.ErrRunInProgress):
			// Raced with a manual start between the IsRunning check and
			// the actual start. Same treatment as busy.
			slog.Debug("scheduler: run slot taken, skipping", "schedule_id", sched.ID)
		case errors.Is(err, domain.ErrNotFound):
			slog.Warn("scheduler: endpoint gone for schedule",
				"schedule_id", sched.ID, "endpoint_id", sched.EndpointID)
		case err != nil:
			slog.Error("scheduler: failed to start run",
				"schedule_id", sched.ID, "endpoint_id", sched.EndpointID, "error", err)
		default:
			slog.Info("scheduler: fired run",
				"schedule_id", sched.ID, "endpoint_id", sched.EndpointID, "run_token", runToken)
		}

		s.advance(ctx, sched.ID, now, cronSched.Next(now))
	}
}

func (s *Scheduler) advance(ctx context.Context, id int64, firedAt, nextRun time.Time) {
	if err := s.schedules.MarkScheduleFired(ctx, id, firedAt, nextRun); err != nil {
		slog.Error("scheduler: failed to advance schedule", "schedule_id", id, "error", err)
	}
}
