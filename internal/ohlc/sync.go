// Package ohlc implements the incremental OHLC synchronizer: per symbol it
// derives a cursor from the stored history, requests only the missing range
// from the provider and commits the new bars in one transaction.
package ohlc

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"innov8/internal/domain"
	"innov8/internal/gather"
	"innov8/internal/store"
)

// DefaultLookbackDays seeds an instrument with no stored history.
const DefaultLookbackDays = 365

// Options configures a Synchronizer.
type Options struct {
	// LookbackDays is how far back an empty instrument is seeded.
	LookbackDays int
	// Location is the exchange calendar used to date "now".
	Location *time.Location
	// Workers bounds concurrent symbol syncs in SyncAll.
	Workers int
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Synchronizer fetches missing daily bars and writes them to the store.
type Synchronizer struct {
	store    store.PriceStore
	provider gather.Provider
	lookback int
	loc      *time.Location
	workers  int
	now      func() time.Time
	log      *slog.Logger
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(st store.PriceStore, p gather.Provider, opts Options, log *slog.Logger) *Synchronizer {
	s := &Synchronizer{
		store:    st,
		provider: p,
		lookback: opts.LookbackDays,
		loc:      opts.Location,
		workers:  opts.Workers,
		now:      opts.Now,
		log:      log.With("component", "ohlc"),
	}
	if s.lookback <= 0 {
		s.lookback = DefaultLookbackDays
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Cursor returns the earliest date not yet stored for symbol: the day after
// the latest stored bar, or the lookback origin if nothing is stored.
func (s *Synchronizer) Cursor(ctx context.Context, symbol string) (time.Time, error) {
	last, ok, err := s.store.LastDate(ctx, symbol)
	if err != nil {
		return time.Time{}, err
	}
	if ok {
		return last.AddDate(0, 0, 1), nil
	}
	return domain.NormalizeDate(s.now(), s.loc).AddDate(0, 0, -s.lookback), nil
}

// Sync brings symbol up to date. An instrument whose cursor is at or past
// now is a no-op and issues no provider request.
func (s *Synchronizer) Sync(ctx context.Context, symbol string) (store.InsertStats, error) {
	cursor, err := s.Cursor(ctx, symbol)
	if err != nil {
		return store.InsertStats{}, err
	}

	window := gather.DateRange{Start: cursor, End: s.now()}
	if window.Empty() {
		s.log.Debug("up to date", "symbol", symbol, "cursor", cursor.Format(domain.DateLayout))
		return store.InsertStats{}, nil
	}

	raw, err := s.provider.History(ctx, symbol, window.Start, window.End)
	if err != nil {
		return store.InsertStats{}, fmt.Errorf("fetching history: %w", err)
	}

	bars, err := prepare(symbol, raw, cursor)
	if err != nil {
		return store.InsertStats{}, err
	}
	if len(bars) == 0 {
		return store.InsertStats{}, nil
	}

	stats, err := s.store.InsertBars(ctx, symbol, bars)
	if err != nil {
		return store.InsertStats{}, fmt.Errorf("writing bars: %w", err)
	}
	s.log.Debug("synced", "symbol", symbol, "bars", stats.NewBars, "dates", stats.NewDates,
		"from", bars[0].Timestamp.Format(domain.DateLayout),
		"to", bars[len(bars)-1].Timestamp.Format(domain.DateLayout))
	return stats, nil
}

// SyncAll syncs every symbol. A failing symbol is logged and reported in
// its result; the rest of the batch proceeds.
func (s *Synchronizer) SyncAll(ctx context.Context, symbols []string) []gather.Result[store.InsertStats] {
	start := time.Now()
	results := gather.Each(ctx, symbols, s.workers, s.Sync)
	gather.LogResults(s.log, "sync", results, time.Since(start))
	return results
}

// prepare validates provider bars and orders them by date. Bars dated
// before the cursor are dropped and a repeated date keeps its last bar.
func prepare(symbol string, raw []domain.Bar, cursor time.Time) ([]domain.Bar, error) {
	byDate := make(map[int64]domain.Bar, len(raw))
	for _, b := range raw {
		b.Symbol = symbol
		if b.Timestamp.Before(cursor) {
			continue
		}
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("bar %s: %w", b.Timestamp.Format(domain.DateLayout), err)
		}
		byDate[b.Unix()] = b
	}

	bars := make([]domain.Bar, 0, len(byDate))
	for _, b := range byDate {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}
