// Package refdata resolves the ticker universe and populates the instrument
// and dimension tables from provider metadata.
package refdata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"innov8/internal/gather"
	"innov8/internal/store"
)

// Loader is the reference-data loader.
type Loader struct {
	store    store.ReferenceStore
	provider gather.Provider
	universe gather.UniverseSource
	workers  int
	log      *slog.Logger
}

// NewLoader creates a Loader. workers bounds concurrent metadata fetches.
func NewLoader(st store.ReferenceStore, p gather.Provider, u gather.UniverseSource, workers int, log *slog.Logger) *Loader {
	return &Loader{
		store:    st,
		provider: p,
		universe: u,
		workers:  workers,
		log:      log.With("component", "refdata"),
	}
}

// ResolveUniverse returns the symbols to track. With scrape set the universe
// source is consulted (it falls back to its static list on its own);
// otherwise the universe is read back from the instrument table.
func (l *Loader) ResolveUniverse(ctx context.Context, scrape bool) ([]string, error) {
	if scrape {
		symbols, err := l.universe.Symbols(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving universe: %w", err)
		}
		return symbols, nil
	}

	symbols, err := l.store.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading universe from store: %w", err)
	}
	return symbols, nil
}

// PopulateInstruments fetches metadata for each symbol and inserts the
// instrument with its dimension values. Each symbol succeeds or fails on its
// own; the Value of a successful result reports whether a new row was
// created.
func (l *Loader) PopulateInstruments(ctx context.Context, symbols []string) []gather.Result[bool] {
	start := time.Now()
	results := gather.Each(ctx, symbols, l.workers, func(ctx context.Context, sym string) (bool, error) {
		info, err := l.provider.Metadata(ctx, sym)
		if err != nil {
			return false, err
		}
		return l.store.InsertInstrument(ctx, info)
	})
	gather.LogResults(l.log, "populate instrument", results, time.Since(start))
	return results
}
