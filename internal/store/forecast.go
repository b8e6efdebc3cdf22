package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"innov8/internal/domain"
)

// InsertForecasts writes all forecast points of symbol in one transaction.
// Forecast dates are raw unix timestamps, not trading_date references.
func (s *SQLiteStore) InsertForecasts(ctx context.Context, symbol string, points []domain.ForecastPoint) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		id, err := instrumentID(ctx, tx, symbol)
		if err != nil {
			return err
		}
		return insertForecasts(ctx, tx, id, symbol, points)
	})
}

// ReplaceForecasts deletes the forecasts of symbol and writes points in
// their place, in one transaction.
func (s *SQLiteStore) ReplaceForecasts(ctx context.Context, symbol string, points []domain.ForecastPoint) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		id, err := instrumentID(ctx, tx, symbol)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM forecast WHERE instrument_id = ?`, id); err != nil {
			return fmt.Errorf("clearing forecasts for %s: %w", symbol, err)
		}
		return insertForecasts(ctx, tx, id, symbol, points)
	})
}

func insertForecasts(ctx context.Context, tx *sql.Tx, id int64, symbol string, points []domain.ForecastPoint) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO forecast (instrument_id, date, open, high, low, close)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, id, p.Date.Unix(), p.Open, p.High, p.Low, p.Close); err != nil {
			return fmt.Errorf("inserting forecast %s %s: %w", symbol, p.Date.Format(domain.DateLayout), err)
		}
	}
	return nil
}

// ClearForecasts deletes every forecast row.
func (s *SQLiteStore) ClearForecasts(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM forecast`)
		return err
	})
}

// NextForecast returns the earliest forecast for symbol dated strictly after
// after. The caller owns the cursor; ok is false once the forecasts are
// exhausted.
func (s *SQLiteStore) NextForecast(ctx context.Context, symbol string, after time.Time) (domain.ForecastPoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := domain.ForecastPoint{Symbol: symbol}
	var date int64
	err := s.db.QueryRowContext(ctx, `
		SELECT f.date, f.open, f.high, f.low, f.close
		FROM forecast f
			JOIN instrument i ON i.id = f.instrument_id
		WHERE i.symbol = ?
			AND f.date > ?
		ORDER BY f.date ASC
		LIMIT 1`, symbol, after.Unix(),
	).Scan(&date, &p.Open, &p.High, &p.Low, &p.Close)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ForecastPoint{}, false, nil
	}
	if err != nil {
		return domain.ForecastPoint{}, false, fmt.Errorf("next forecast for %s: %w", symbol, err)
	}
	p.Date = time.Unix(date, 0).UTC()
	return p, true, nil
}

// Forecasts returns every stored forecast for symbol in date order.
func (s *SQLiteStore) Forecasts(ctx context.Context, symbol string) ([]domain.ForecastPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.date, f.open, f.high, f.low, f.close
		FROM forecast f
			JOIN instrument i ON i.id = f.instrument_id
		WHERE i.symbol = ?
		ORDER BY f.date ASC`, symbol)
	if err != nil {
		return nil, fmt.Errorf("forecasts for %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []domain.ForecastPoint
	for rows.Next() {
		p := domain.ForecastPoint{Symbol: symbol}
		var date int64
		if err := rows.Scan(&date, &p.Open, &p.High, &p.Low, &p.Close); err != nil {
			return nil, err
		}
		p.Date = time.Unix(date, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}
