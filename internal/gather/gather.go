// Package gather defines the external data collaborators (market-data
// provider, symbol-universe source) and the best-effort batch runner every
// per-symbol pass goes through.
package gather

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"innov8/internal/domain"
)

// Provider supplies instrument metadata and daily history. Both calls are
// fallible per symbol.
type Provider interface {
	// Metadata returns the validated reference data for symbol.
	Metadata(ctx context.Context, symbol string) (domain.InstrumentInfo, error)
	// History returns daily bars for symbol in [start, end), oldest first,
	// with timestamps normalized to UTC midnight of the trading date.
	History(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// UniverseSource produces the list of ticker symbols to track.
type UniverseSource interface {
	Symbols(ctx context.Context) ([]string, error)
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the range contains no instant, i.e. Start is at or
// past End.
func (r DateRange) Empty() bool {
	return !r.Start.Before(r.End)
}

// ---------------------------------------------------------------------------
// Batch runner
// ---------------------------------------------------------------------------

// Result pairs one work item with its outcome.
type Result[T any] struct {
	Item  string
	Value T
	Err   error
}

// Each runs fn once per item with at most workers invocations in flight
// (workers <= 1 runs sequentially, in order). A failing item never stops the
// others; its error is recorded in its Result. Results are returned in item
// order. Items not started before ctx is cancelled carry ctx.Err().
func Each[T any](ctx context.Context, items []string, workers int, fn func(ctx context.Context, item string) (T, error)) []Result[T] {
	results := make([]Result[T], len(items))
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, item := range items {
		results[i].Item = item
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			v, err := fn(ctx, item)
			results[i].Value = v
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Summary counts the outcomes of a batch.
type Summary struct {
	OK     int
	Failed int
}

// Summarize counts successes and failures.
func Summarize[T any](results []Result[T]) Summary {
	var s Summary
	for _, r := range results {
		if r.Err != nil {
			s.Failed++
		} else {
			s.OK++
		}
	}
	return s
}

// Failed returns the items whose operation returned an error.
func Failed[T any](results []Result[T]) []string {
	var out []string
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r.Item)
		}
	}
	return out
}

// LogResults logs every failure at error level and every success at debug
// level, followed by one summary line for the batch.
func LogResults[T any](log *slog.Logger, op string, results []Result[T], elapsed time.Duration) Summary {
	for _, r := range results {
		if r.Err != nil {
			log.Error(op+" failed", "symbol", r.Item, "error", r.Err)
			continue
		}
		log.Debug(op+" ok", "symbol", r.Item)
	}
	s := Summarize(results)
	log.Info(op+" complete",
		"ok", s.OK,
		"failed", s.Failed,
		"elapsed", elapsed.Round(time.Millisecond),
	)
	return s
}
