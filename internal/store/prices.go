package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"innov8/internal/domain"
)

// LastDate returns the latest stored bar date for symbol.
func (s *SQLiteStore) LastDate(ctx context.Context, symbol string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(d.date)
		FROM price_bar p
			JOIN instrument i ON i.id = p.instrument_id
			JOIN trading_date d ON d.id = p.date_id
		WHERE i.symbol = ?`, symbol,
	).Scan(&last)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest date for %s: %w", symbol, err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(last.Int64, 0).UTC(), true, nil
}

// InsertBars writes bars for symbol in one transaction: each date is
// inserted-or-ignored into trading_date, then each bar is inserted into
// price_bar with both keys resolved by sub-select. Either every row commits
// or none does. A bar that already exists for the (symbol, date) pair fails
// the primary key and rolls the whole call back.
func (s *SQLiteStore) InsertBars(ctx context.Context, symbol string, bars []domain.Bar) (InsertStats, error) {
	var stats InsertStats
	if len(bars) == 0 {
		return stats, nil
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := instrumentID(ctx, tx, symbol); err != nil {
			return err
		}

		dateStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO trading_date (date) VALUES (?)`)
		if err != nil {
			return err
		}
		defer dateStmt.Close()

		for _, b := range bars {
			res, err := dateStmt.ExecContext(ctx, b.Unix())
			if err != nil {
				return fmt.Errorf("inserting date %d: %w", b.Unix(), err)
			}
			n, _ := res.RowsAffected()
			stats.NewDates += int(n)
		}

		priceStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO price_bar (
				instrument_id,
				date_id,
				open,
				high,
				low,
				close,
				volume
			)
			VALUES (
				(SELECT id FROM instrument WHERE symbol = ?),
				(SELECT id FROM trading_date WHERE date = ?),
				?, ?, ?, ?, ?
			)`)
		if err != nil {
			return err
		}
		defer priceStmt.Close()

		for _, b := range bars {
			if _, err := priceStmt.ExecContext(ctx, symbol, b.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
				return fmt.Errorf("inserting bar %s %s: %w", symbol, b.Timestamp.Format(domain.DateLayout), err)
			}
			stats.NewBars++
		}
		return nil
	})
	if err != nil {
		return InsertStats{}, err
	}
	return stats, nil
}

// BarCount returns the number of bars stored for symbol.
func (s *SQLiteStore) BarCount(ctx context.Context, symbol string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM price_bar p
			JOIN instrument i ON i.id = p.instrument_id
		WHERE i.symbol = ?`, symbol,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting bars for %s: %w", symbol, err)
	}
	return n, nil
}

// ScanSnapshot runs the denormalized join across every fact and dimension
// table, calling fn once per (instrument, date) row ordered by symbol and
// date.
func (s *SQLiteStore) ScanSnapshot(ctx context.Context, fn func(SnapshotRow)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.symbol,
			i.display_name,
			s.name,
			d.date,
			p.open,
			p.high,
			p.low,
			p.close,
			p.volume,
			e.name,
			t.name,
			c.iso_code
		FROM price_bar p
			JOIN instrument i ON p.instrument_id = i.id
			JOIN trading_date d ON p.date_id = d.id
			JOIN sector s ON i.sector_id = s.id
			JOIN exchange e ON i.exchange_id = e.id
			JOIN currency c ON i.currency_id = c.id
			JOIN instrument_type t ON i.type_id = t.id
		ORDER BY i.symbol, d.date`)
	if err != nil {
		return fmt.Errorf("snapshot query: %w", err)
	}
	defer rows.Close()

	var r SnapshotRow
	for rows.Next() {
		if err := rows.Scan(&r.Symbol, &r.Name, &r.Sector, &r.Date,
			&r.Open, &r.High, &r.Low, &r.Close, &r.Volume,
			&r.Exchange, &r.Type, &r.Currency); err != nil {
			return fmt.Errorf("snapshot scan: %w", err)
		}
		fn(r)
	}
	return rows.Err()
}
