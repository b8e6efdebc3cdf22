// Package forecast produces short-horizon price forecasts: a per-field
// time-series model, bounded-drift clipping of its raw output, high/low
// reconciliation and persistence.
package forecast

import (
	"errors"
	"fmt"
	"time"

	"innov8/internal/util"
)

// ErrInsufficientHistory is returned when a series is too short to fit or
// to clip.
var ErrInsufficientHistory = errors.New("insufficient history")

// Model is a univariate forecaster over daily observations.
type Model interface {
	// Fit trains the model on a date-ordered series.
	Fit(dates []time.Time, values []float64) error
	// Predict returns n future business days after the last fitted date and
	// the model's point prediction for each.
	Predict(n int) ([]time.Time, []float64, error)
}

// NewModelFunc creates an untrained Model. The engine creates one model per
// price field.
type NewModelFunc func() Model

// DefaultTrendWindow is the number of trailing observations a TrendModel
// fits by default.
const DefaultTrendWindow = 60

// TrendModel fits an ordinary least-squares line of value against calendar
// time over the trailing Window observations and extrapolates it.
type TrendModel struct {
	Window int

	origin    time.Time
	last      time.Time
	slope     float64
	intercept float64
	fitted    bool
}

var _ Model = (*TrendModel)(nil)

// NewTrendModel returns a TrendModel with the default window.
func NewTrendModel() Model {
	return &TrendModel{Window: DefaultTrendWindow}
}

// Fit implements Model. At least two distinct dates are required.
func (m *TrendModel) Fit(dates []time.Time, values []float64) error {
	if len(dates) != len(values) {
		return fmt.Errorf("fit: %d dates for %d values", len(dates), len(values))
	}
	if m.Window > 0 && len(dates) > m.Window {
		dates = dates[len(dates)-m.Window:]
		values = values[len(values)-m.Window:]
	}
	if len(dates) < 2 || !dates[len(dates)-1].After(dates[0]) {
		return fmt.Errorf("%w: need two distinct dates, have %d points", ErrInsufficientHistory, len(dates))
	}

	m.origin = dates[0]
	m.last = dates[len(dates)-1]

	var sx, sy float64
	xs := make([]float64, len(dates))
	for i, d := range dates {
		xs[i] = m.x(d)
		sx += xs[i]
		sy += values[i]
	}
	n := float64(len(xs))
	mx, my := sx/n, sy/n

	var sxy, sxx float64
	for i := range xs {
		dx := xs[i] - mx
		sxy += dx * (values[i] - my)
		sxx += dx * dx
	}
	m.slope = sxy / sxx
	m.intercept = my - m.slope*mx
	m.fitted = true
	return nil
}

// Predict implements Model.
func (m *TrendModel) Predict(n int) ([]time.Time, []float64, error) {
	if !m.fitted {
		return nil, nil, errors.New("predict before fit")
	}
	dates := util.NextBusinessDays(m.last, n)
	values := make([]float64, len(dates))
	for i, d := range dates {
		values[i] = m.intercept + m.slope*m.x(d)
	}
	return dates, values, nil
}

// x is the regression abscissa: days since the first fitted date.
func (m *TrendModel) x(d time.Time) float64 {
	return d.Sub(m.origin).Hours() / 24
}
