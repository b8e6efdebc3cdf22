package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"innov8/internal/domain"
)

// InsertInstrument inserts-or-ignores the dimension values observed in info
// and then the instrument row, resolving its foreign keys by sub-select. An
// existing symbol is left untouched: instrument rows are insert-only.
func (s *SQLiteStore) InsertInstrument(ctx context.Context, info domain.InstrumentInfo) (bool, error) {
	if err := info.Validate(); err != nil {
		return false, err
	}

	var inserted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		dims := []struct {
			query, value string
		}{
			{`INSERT OR IGNORE INTO currency (iso_code) VALUES (?)`, info.Currency},
			{`INSERT OR IGNORE INTO exchange (name) VALUES (?)`, info.Exchange},
			{`INSERT OR IGNORE INTO instrument_type (name) VALUES (?)`, info.Type},
			{`INSERT OR IGNORE INTO sector (name) VALUES (?)`, info.Sector},
		}
		for _, d := range dims {
			if _, err := tx.ExecContext(ctx, d.query, d.value); err != nil {
				return fmt.Errorf("inserting dimension %q: %w", d.value, err)
			}
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO instrument (
				display_name,
				symbol,
				currency_id,
				exchange_id,
				type_id,
				sector_id
			)
			VALUES (
				?,
				?,
				(SELECT id FROM currency WHERE iso_code = ?),
				(SELECT id FROM exchange WHERE name = ?),
				(SELECT id FROM instrument_type WHERE name = ?),
				(SELECT id FROM sector WHERE name = ?)
			)
			ON CONFLICT(symbol) DO NOTHING`,
			info.DisplayName, info.Symbol, info.Currency, info.Exchange, info.Type, info.Sector,
		)
		if err != nil {
			return fmt.Errorf("inserting instrument %s: %w", info.Symbol, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0
		return nil
	})
	return inserted, err
}

// Symbols returns every known symbol in insertion order.
func (s *SQLiteStore) Symbols(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT symbol FROM instrument ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// Instrument returns the stored metadata of symbol.
func (s *SQLiteStore) Instrument(ctx context.Context, symbol string) (domain.InstrumentInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := domain.InstrumentInfo{Symbol: symbol}
	err := s.db.QueryRowContext(ctx, `
		SELECT i.display_name, c.iso_code, e.name, t.name, s.name
		FROM instrument i
			JOIN currency c ON i.currency_id = c.id
			JOIN exchange e ON i.exchange_id = e.id
			JOIN instrument_type t ON i.type_id = t.id
			JOIN sector s ON i.sector_id = s.id
		WHERE i.symbol = ?`, symbol,
	).Scan(&info.DisplayName, &info.Currency, &info.Exchange, &info.Type, &info.Sector)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.InstrumentInfo{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	if err != nil {
		return domain.InstrumentInfo{}, fmt.Errorf("loading %s: %w", symbol, err)
	}
	return info, nil
}
