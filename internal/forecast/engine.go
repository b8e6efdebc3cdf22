package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"innov8/internal/domain"
	"innov8/internal/gather"
	"innov8/internal/snapshot"
	"innov8/internal/store"
)

// DefaultHorizon is the number of business days forecast per instrument.
const DefaultHorizon = 5

// ClipWindow is the number of trailing daily moves that bound each forecast
// step. It does not follow the configured horizon.
const ClipWindow = 5

// Engine fits one model per price field, clips and reconciles the raw
// predictions and persists the result.
type Engine struct {
	store    store.ForecastStore
	newModel NewModelFunc
	horizon  int
	log      *slog.Logger
}

// NewEngine creates an Engine. A nil newModel selects NewTrendModel; a
// non-positive horizon selects DefaultHorizon.
func NewEngine(st store.ForecastStore, newModel NewModelFunc, horizon int, log *slog.Logger) *Engine {
	if newModel == nil {
		newModel = NewTrendModel
	}
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &Engine{
		store:    st,
		newModel: newModel,
		horizon:  horizon,
		log:      log.With("component", "forecast"),
	}
}

// Horizon returns the number of forecast business days.
func (e *Engine) Horizon() int { return e.horizon }

// Forecast computes the forecast of symbol from snap without persisting it.
func (e *Engine) Forecast(snap *snapshot.Snapshot, symbol string) ([]domain.ForecastPoint, error) {
	if !snap.Has(symbol) {
		return nil, fmt.Errorf("%w: %s has no history", ErrInsufficientHistory, symbol)
	}

	var dates []time.Time
	fields := make(map[domain.PriceField][]float64, len(domain.PriceFields))
	for _, field := range domain.PriceFields {
		histDates, history := snap.Series(symbol, field)
		if len(history) < ClipWindow+1 {
			return nil, fmt.Errorf("%w: %s has %d points, need %d",
				ErrInsufficientHistory, symbol, len(history), ClipWindow+1)
		}

		model := e.newModel()
		if err := model.Fit(histDates, history); err != nil {
			return nil, fmt.Errorf("fitting %s: %w", field, err)
		}
		predDates, raw, err := model.Predict(e.horizon)
		if err != nil {
			return nil, fmt.Errorf("predicting %s: %w", field, err)
		}
		if len(raw) != e.horizon || len(predDates) != e.horizon {
			return nil, fmt.Errorf("model returned %d points for %s, want %d", len(raw), field, e.horizon)
		}

		clipped, err := ClipDrift(history, raw, ClipWindow)
		if err != nil {
			return nil, err
		}
		fields[field] = clipped
		dates = predDates
	}

	opens, closes := fields[domain.FieldOpen], fields[domain.FieldClose]
	highs, lows := Reconcile(opens, fields[domain.FieldHigh], fields[domain.FieldLow], closes)

	points := make([]domain.ForecastPoint, e.horizon)
	for i := range points {
		points[i] = domain.ForecastPoint{
			Symbol: symbol,
			Date:   domain.NormalizeDate(dates[i], nil),
			Open:   opens[i],
			High:   highs[i],
			Low:    lows[i],
			Close:  closes[i],
		}
	}
	return points, nil
}

// Run forecasts symbol and replaces its stored forecasts.
func (e *Engine) Run(ctx context.Context, snap *snapshot.Snapshot, symbol string) ([]domain.ForecastPoint, error) {
	points, err := e.Forecast(snap, symbol)
	if err != nil {
		return nil, err
	}
	if err := e.store.ReplaceForecasts(ctx, symbol, points); err != nil {
		return nil, fmt.Errorf("storing forecasts: %w", err)
	}
	return points, nil
}

// RegenerateAll forecasts every symbol. A symbol that cannot be forecast
// fails alone; its previous forecasts, if any, are left in place.
func (e *Engine) RegenerateAll(ctx context.Context, snap *snapshot.Snapshot, symbols []string) []gather.Result[[]domain.ForecastPoint] {
	start := time.Now()
	results := gather.Each(ctx, symbols, 1, func(ctx context.Context, sym string) ([]domain.ForecastPoint, error) {
		return e.Run(ctx, snap, sym)
	})
	gather.LogResults(e.log, "forecast", results, time.Since(start))
	return results
}

// Clear deletes every stored forecast.
func (e *Engine) Clear(ctx context.Context) error {
	return e.store.ClearForecasts(ctx)
}
