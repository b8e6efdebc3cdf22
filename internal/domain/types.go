// Package domain defines the value types exchanged between the provider
// boundary, the relational store, the snapshot, and the forecast engine.
package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Validation errors returned at the provider boundary.
var (
	ErrInvalidInfo = errors.New("invalid instrument info")
	ErrInvalidBar  = errors.New("invalid bar")
)

// InstrumentInfo is the typed metadata returned by a provider for a symbol.
// All five dimension fields are required.
type InstrumentInfo struct {
	Symbol      string
	DisplayName string
	Currency    string
	Exchange    string
	Type        string
	Sector      string
}

// Validate reports ErrInvalidInfo when a required field is blank.
func (i InstrumentInfo) Validate() error {
	fields := []struct {
		name, value string
	}{
		{"symbol", i.Symbol},
		{"display_name", i.DisplayName},
		{"currency", i.Currency},
		{"exchange", i.Exchange},
		{"type", i.Type},
		{"sector", i.Sector},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s missing %s", ErrInvalidInfo, i.Symbol, f.name)
		}
	}
	return nil
}

// Bar is one trading day of OHLCV data. Timestamp is UTC midnight of the
// trading date (see NormalizeDate).
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Unix returns the bar date as seconds since epoch.
func (b Bar) Unix() int64 { return b.Timestamp.Unix() }

// Validate checks price positivity and high/low consistency.
func (b Bar) Validate() error {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%w: %s %s non-positive price", ErrInvalidBar, b.Symbol, b.Timestamp.Format(DateLayout))
		}
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: %s %s negative volume", ErrInvalidBar, b.Symbol, b.Timestamp.Format(DateLayout))
	}
	if b.High < math.Max(b.Open, b.Close) || b.Low > math.Min(b.Open, b.Close) {
		return fmt.Errorf("%w: %s %s high/low out of range", ErrInvalidBar, b.Symbol, b.Timestamp.Format(DateLayout))
	}
	return nil
}

// ForecastPoint is one forecast business day for an instrument.
type ForecastPoint struct {
	Symbol string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
}

// PriceField selects one of the four forecast series.
type PriceField string

const (
	FieldOpen  PriceField = "open"
	FieldHigh  PriceField = "high"
	FieldLow   PriceField = "low"
	FieldClose PriceField = "close"
)

// PriceFields lists the forecast fields in processing order.
var PriceFields = []PriceField{FieldOpen, FieldHigh, FieldLow, FieldClose}

// DateLayout is the calendar-date format used across the API and config.
const DateLayout = "2006-01-02"

// NormalizeDate drops the time-of-day and zone of t, keeping the calendar
// date as observed in loc, and returns UTC midnight of that date. A daily bar
// stamped 2024-01-11T05:00:00Z (midnight New York) becomes 2024-01-11T00:00Z.
func NormalizeDate(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
