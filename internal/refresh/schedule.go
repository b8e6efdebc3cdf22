package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Trigger starts a refresh. *Job implements it.
type Trigger interface {
	Trigger(scope Scope, target string) (string, error)
}

var _ Trigger = (*Job)(nil)

// Scheduler triggers a full refresh on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
	spec string
	log  *slog.Logger
}

// NewScheduler parses spec, a six-field cron expression with a leading
// seconds field, evaluated in loc (UTC when nil).
func NewScheduler(spec string, loc *time.Location, t Trigger, log *slog.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		cron: cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		spec: spec,
		log:  log.With("component", "scheduler"),
	}
	if _, err := s.cron.AddFunc(spec, func() { s.fire(t) }); err != nil {
		return nil, fmt.Errorf("parsing refresh schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) fire(t Trigger) {
	id, err := t.Trigger(ScopeAll, "")
	switch {
	case errors.Is(err, ErrBusy):
		s.log.Warn("scheduled refresh skipped, a refresh is already running")
	case err != nil:
		s.log.Error("scheduled refresh", "error", err)
	default:
		s.log.Info("scheduled refresh triggered", "run_id", id)
	}
}

// Next returns the next scheduled fire time.
func (s *Scheduler) Next(now time.Time) time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Schedule.Next(now)
}

// Run starts the schedule and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.log.Info("refresh schedule started", "schedule", s.spec, "next", s.Next(time.Now()))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("refresh schedule stopped")
	return nil
}
