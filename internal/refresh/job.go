package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBusy is returned by Trigger while a refresh is running.
var ErrBusy = errors.New("refresh already running")

// Refresher runs one refresh. *Orchestrator implements it.
type Refresher interface {
	Refresh(ctx context.Context, scope Scope, target string) (Report, error)
}

var _ Refresher = (*Orchestrator)(nil)

// Status is the pollable state of the most recent refresh run.
type Status struct {
	Running        bool       `json:"running"`
	RunID          string     `json:"run_id,omitempty"`
	Scope          Scope      `json:"scope,omitempty"`
	Target         string     `json:"target,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Synced         int        `json:"synced"`
	SyncFailed     int        `json:"sync_failed"`
	Forecast       int        `json:"forecast"`
	ForecastFailed int        `json:"forecast_failed"`
	Error          string     `json:"error,omitempty"`
	UpToDate       []string   `json:"up_to_date"`
}

// Job runs refreshes in the background, one at a time, and remembers which
// targets were refreshed successfully during the life of the process.
type Job struct {
	ctx context.Context
	r   Refresher
	log *slog.Logger

	mu       sync.Mutex
	status   Status
	upToDate map[string]bool
	done     chan struct{}
	hub      *hub
}

// allKey marks a completed full refresh in the up-to-date set.
const allKey = "All"

// NewJob creates a Job. Runs inherit ctx, so cancelling it aborts the
// current refresh.
func NewJob(ctx context.Context, r Refresher, log *slog.Logger) *Job {
	done := make(chan struct{})
	close(done)
	return &Job{
		ctx:      ctx,
		r:        r,
		log:      log.With("component", "refresh-job"),
		upToDate: make(map[string]bool),
		done:     done,
		hub:      newHub(),
	}
}

// Trigger starts a refresh in the background and returns its run id. It
// returns ErrBusy without starting anything if a run is in progress.
func (j *Job) Trigger(scope Scope, target string) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Running {
		return "", ErrBusy
	}

	id := uuid.NewString()
	now := time.Now()
	j.status = Status{
		Running:   true,
		RunID:     id,
		Scope:     scope,
		Target:    target,
		StartedAt: &now,
	}
	j.done = make(chan struct{})
	j.hub.broadcast(j.statusLocked())
	go j.run(id, scope, target, j.done)
	return id, nil
}

func (j *Job) run(id string, scope Scope, target string, done chan struct{}) {
	defer close(done)
	log := j.log.With("run_id", id, "scope", scope, "target", target)
	log.Info("refresh started")

	rep, err := j.r.Refresh(j.ctx, scope, target)

	j.mu.Lock()
	defer j.mu.Unlock()
	defer func() { j.hub.broadcast(j.statusLocked()) }()
	now := time.Now()
	j.status.Running = false
	j.status.FinishedAt = &now
	j.status.Synced = rep.Synced
	j.status.SyncFailed = rep.SyncFailed
	j.status.Forecast = rep.Forecast
	j.status.ForecastFailed = rep.ForecastFailed
	if err != nil {
		j.status.Error = err.Error()
		log.Error("refresh failed", "error", err)
		return
	}
	j.upToDate[upToDateKey(scope, target)] = true
	log.Info("refresh finished", "elapsed", rep.Elapsed.Round(time.Millisecond))
}

// Wait blocks until the current run, if any, has finished.
func (j *Job) Wait() {
	j.mu.Lock()
	done := j.done
	j.mu.Unlock()
	<-done
}

// Status returns a copy of the current run state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.statusLocked()
}

func (j *Job) statusLocked() Status {
	s := j.status
	s.UpToDate = make([]string, 0, len(j.upToDate))
	for k := range j.upToDate {
		s.UpToDate = append(s.UpToDate, k)
	}
	sort.Strings(s.UpToDate)
	return s
}

// IsUpToDate reports whether refreshing target at scope would be redundant:
// the symbol itself was refreshed, its sector was, or a full refresh ran.
// sector is the symbol's sector for ticker scope and the target for sector
// scope.
func (j *Job) IsUpToDate(scope Scope, target, sector string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.upToDate[allKey] {
		return true
	}
	switch scope {
	case ScopeTicker:
		return j.upToDate[target] || (sector != "" && j.upToDate[sector])
	case ScopeSector:
		if sector == "" {
			sector = target
		}
		return j.upToDate[sector]
	}
	return false
}

func upToDateKey(scope Scope, target string) string {
	if scope == ScopeAll {
		return allKey
	}
	return target
}
