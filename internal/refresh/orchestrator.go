// Package refresh drives data refreshes: whole-universe and partial-scope
// orchestration, the background fire-and-poll job, and the cron schedule.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"innov8/internal/forecast"
	"innov8/internal/gather"
	"innov8/internal/ohlc"
	"innov8/internal/refdata"
	"innov8/internal/snapshot"
)

// Scope selects what a refresh covers.
type Scope string

const (
	ScopeTicker Scope = "ticker"
	ScopeSector Scope = "sector"
	ScopeAll    Scope = "all"
)

// ErrUnknownScope is returned for an unrecognized scope name.
var ErrUnknownScope = errors.New("unknown refresh scope")

// ParseScope parses a scope name case-insensitively.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeTicker:
		return ScopeTicker, nil
	case ScopeSector:
		return ScopeSector, nil
	case ScopeAll, "":
		return ScopeAll, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScope, s)
}

// Report summarizes one refresh.
type Report struct {
	Scope          Scope
	Target         string
	Symbols        int
	Synced         int
	SyncFailed     int
	Forecast       int
	ForecastFailed int
	Elapsed        time.Duration
}

// Orchestrator sequences the synchronizer, snapshot builder and forecast
// engine. Only RefreshAll leaves prices and forecasts mutually consistent;
// partial refreshes update prices and leave forecasts stale.
type Orchestrator struct {
	loader  *refdata.Loader
	sync    *ohlc.Synchronizer
	builder *snapshot.Builder
	engine  *forecast.Engine
	log     *slog.Logger
}

// NewOrchestrator wires an Orchestrator.
func NewOrchestrator(l *refdata.Loader, s *ohlc.Synchronizer, b *snapshot.Builder, e *forecast.Engine, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		loader:  l,
		sync:    s,
		builder: b,
		engine:  e,
		log:     log.With("component", "refresh"),
	}
}

// Seed resolves the universe from the constituent source, populates the
// instrument table and runs a full refresh. It is the first-run path.
func (o *Orchestrator) Seed(ctx context.Context) (Report, error) {
	symbols, err := o.loader.ResolveUniverse(ctx, true)
	if err != nil {
		return Report{}, err
	}
	o.log.Info("seeding universe", "symbols", len(symbols))
	o.loader.PopulateInstruments(ctx, symbols)
	return o.RefreshAll(ctx)
}

// Refresh dispatches on scope.
func (o *Orchestrator) Refresh(ctx context.Context, scope Scope, target string) (Report, error) {
	switch scope {
	case ScopeAll:
		return o.RefreshAll(ctx)
	case ScopeSector:
		return o.RefreshSector(ctx, target)
	case ScopeTicker:
		return o.RefreshSymbol(ctx, target)
	}
	return Report{}, fmt.Errorf("%w: %q", ErrUnknownScope, scope)
}

// RefreshAll syncs every known instrument, rebuilds the snapshot, signals
// other processes, clears all forecasts and regenerates them.
func (o *Orchestrator) RefreshAll(ctx context.Context) (Report, error) {
	start := time.Now()
	symbols, err := o.loader.ResolveUniverse(ctx, false)
	if err != nil {
		return Report{}, err
	}

	r := Report{Scope: ScopeAll, Symbols: len(symbols)}
	sum := gather.Summarize(o.sync.SyncAll(ctx, symbols))
	r.Synced, r.SyncFailed = sum.OK, sum.Failed

	snap, err := o.builder.Load(ctx, true)
	if err != nil {
		return r, fmt.Errorf("rebuilding snapshot: %w", err)
	}
	if err := o.builder.Signal(); err != nil {
		o.log.Warn("writing refresh signal", "error", err)
	}

	if err := o.engine.Clear(ctx); err != nil {
		return r, fmt.Errorf("clearing forecasts: %w", err)
	}
	sum = gather.Summarize(o.engine.RegenerateAll(ctx, snap, symbols))
	r.Forecast, r.ForecastFailed = sum.OK, sum.Failed

	r.Elapsed = time.Since(start)
	o.log.Info("full refresh complete",
		"symbols", r.Symbols,
		"synced", r.Synced,
		"sync_failed", r.SyncFailed,
		"forecast", r.Forecast,
		"forecast_failed", r.ForecastFailed,
		"elapsed", r.Elapsed.Round(time.Millisecond),
	)
	return r, nil
}

// RefreshSymbol syncs one instrument and rebuilds the snapshot.
func (o *Orchestrator) RefreshSymbol(ctx context.Context, symbol string) (Report, error) {
	if symbol == "" {
		return Report{}, errors.New("ticker refresh needs a symbol")
	}
	return o.refreshPrices(ctx, ScopeTicker, symbol, []string{symbol})
}

// RefreshSector syncs the instruments of sector and rebuilds the snapshot.
func (o *Orchestrator) RefreshSector(ctx context.Context, sector string) (Report, error) {
	snap, err := o.builder.Load(ctx, false)
	if err != nil {
		return Report{}, err
	}
	symbols := snap.SectorSymbols(sector)
	if len(symbols) == 0 {
		return Report{}, fmt.Errorf("%w: sector %q", snapshot.ErrNotFound, sector)
	}
	return o.refreshPrices(ctx, ScopeSector, sector, symbols)
}

func (o *Orchestrator) refreshPrices(ctx context.Context, scope Scope, target string, symbols []string) (Report, error) {
	start := time.Now()
	r := Report{Scope: scope, Target: target, Symbols: len(symbols)}

	sum := gather.Summarize(o.sync.SyncAll(ctx, symbols))
	r.Synced, r.SyncFailed = sum.OK, sum.Failed

	if _, err := o.builder.Load(ctx, true); err != nil {
		return r, fmt.Errorf("rebuilding snapshot: %w", err)
	}
	r.Elapsed = time.Since(start)
	o.log.Info("partial refresh complete",
		"scope", scope,
		"target", target,
		"synced", r.Synced,
		"sync_failed", r.SyncFailed,
		"elapsed", r.Elapsed.Round(time.Millisecond),
	)
	return r, nil
}

// RegenerateForecasts forecasts the given symbols, or every symbol in the
// snapshot when none are given, without syncing prices.
func (o *Orchestrator) RegenerateForecasts(ctx context.Context, symbols []string) (Report, error) {
	start := time.Now()
	snap, err := o.builder.Load(ctx, false)
	if err != nil {
		return Report{}, err
	}
	if len(symbols) == 0 {
		symbols = snap.Symbols()
	}

	r := Report{Scope: ScopeAll, Symbols: len(symbols)}
	sum := gather.Summarize(o.engine.RegenerateAll(ctx, snap, symbols))
	r.Forecast, r.ForecastFailed = sum.OK, sum.Failed
	r.Elapsed = time.Since(start)
	return r, nil
}
