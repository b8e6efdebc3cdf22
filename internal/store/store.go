// Package store owns the relational price/instrument store: schema
// management, dimension and fact writes, the denormalized snapshot query,
// and forecast persistence.
package store

import (
	"context"
	"time"

	"innov8/internal/domain"
)

// ReferenceStore persists instrument metadata and the dimension tables.
type ReferenceStore interface {
	// InsertInstrument inserts-or-ignores the four dimension values of info
	// and inserts the instrument row. It reports false when the symbol was
	// already present.
	InsertInstrument(ctx context.Context, info domain.InstrumentInfo) (bool, error)

	// Symbols returns every known symbol in insertion order.
	Symbols(ctx context.Context) ([]string, error)
}

// PriceStore persists and queries daily OHLCV bars.
type PriceStore interface {
	// LastDate returns the latest stored bar date for symbol. ok is false if
	// no bar exists yet.
	LastDate(ctx context.Context, symbol string) (last time.Time, ok bool, err error)

	// InsertBars writes the bars of one symbol in a single transaction.
	InsertBars(ctx context.Context, symbol string, bars []domain.Bar) (InsertStats, error)
}

// ForecastStore persists and queries forecast rows.
type ForecastStore interface {
	// InsertForecasts writes all points of one symbol in a single transaction.
	InsertForecasts(ctx context.Context, symbol string, points []domain.ForecastPoint) error

	// ReplaceForecasts swaps the points of one symbol in a single transaction.
	ReplaceForecasts(ctx context.Context, symbol string, points []domain.ForecastPoint) error

	// ClearForecasts deletes every forecast row.
	ClearForecasts(ctx context.Context) error

	// NextForecast returns the earliest point dated strictly after after.
	NextForecast(ctx context.Context, symbol string, after time.Time) (domain.ForecastPoint, bool, error)
}

// SnapshotSource streams the denormalized join used to build a snapshot.
type SnapshotSource interface {
	ScanSnapshot(ctx context.Context, fn func(SnapshotRow)) error
}

// InsertStats reports how many rows one InsertBars call created.
type InsertStats struct {
	NewDates int
	NewBars  int
}

// Counts summarizes table cardinalities.
type Counts struct {
	Instruments int
	Dates       int
	Bars        int
	Forecasts   int
}

// SnapshotRow is one (instrument, date) row of the denormalized join.
type SnapshotRow struct {
	Symbol   string
	Name     string
	Sector   string
	Date     int64 // unix seconds, UTC midnight
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   int64
	Exchange string
	Type     string
	Currency string
}
