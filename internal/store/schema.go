package store

import (
	"context"
	"fmt"
)

// factTable is the table whose presence distinguishes a warm store from a
// first run.
const factTable = "price_bar"

// createStatements create the normalized schema. Order matters: referenced
// tables come first.
var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS exchange (
		id INTEGER PRIMARY KEY NOT NULL,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS instrument_type (
		id INTEGER PRIMARY KEY NOT NULL,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS sector (
		id INTEGER PRIMARY KEY NOT NULL,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS currency (
		id INTEGER PRIMARY KEY NOT NULL,
		iso_code TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS instrument (
		id INTEGER PRIMARY KEY NOT NULL,
		currency_id INTEGER NOT NULL,
		exchange_id INTEGER NOT NULL,
		type_id INTEGER NOT NULL,
		sector_id INTEGER NOT NULL,
		symbol TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		FOREIGN KEY(currency_id) REFERENCES currency(id),
		FOREIGN KEY(exchange_id) REFERENCES exchange(id),
		FOREIGN KEY(type_id) REFERENCES instrument_type(id),
		FOREIGN KEY(sector_id) REFERENCES sector(id)
	)`,
	`CREATE TABLE IF NOT EXISTS trading_date (
		id INTEGER PRIMARY KEY NOT NULL,
		date INTEGER NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS price_bar (
		instrument_id INTEGER NOT NULL,
		date_id INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		PRIMARY KEY (instrument_id, date_id),
		FOREIGN KEY(instrument_id) REFERENCES instrument(id),
		FOREIGN KEY(date_id) REFERENCES trading_date(id)
	)`,
	`CREATE INDEX IF NOT EXISTS fk_instrument_idx ON instrument (
		sector_id,
		exchange_id,
		currency_id,
		type_id
	)`,
	`CREATE TABLE IF NOT EXISTS forecast (
		instrument_id INTEGER NOT NULL,
		date INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		PRIMARY KEY (instrument_id, date),
		FOREIGN KEY(instrument_id) REFERENCES instrument(id)
	)`,
}

// dropStatements drop children before parents so foreign keys never block.
var dropStatements = []string{
	`DROP TABLE IF EXISTS forecast`,
	`DROP TABLE IF EXISTS price_bar`,
	`DROP TABLE IF EXISTS trading_date`,
	`DROP TABLE IF EXISTS instrument`,
	`DROP TABLE IF EXISTS instrument_type`,
	`DROP TABLE IF EXISTS sector`,
	`DROP TABLE IF EXISTS exchange`,
	`DROP TABLE IF EXISTS currency`,
}

// ResetSchema drops every table and recreates the schema.
func (s *SQLiteStore) ResetSchema(ctx context.Context) error {
	stmts := append(append([]string{}, dropStatements...), createStatements...)
	return s.execAll(ctx, stmts)
}

// EnsureSchema creates missing tables without touching existing data. It
// reports warm=true when the fact table already existed, meaning the store
// was populated by an earlier run.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) (warm bool, err error) {
	warm, err = s.hasTable(ctx, factTable)
	if err != nil {
		return false, err
	}
	if err := s.execAll(ctx, createStatements); err != nil {
		return false, err
	}
	return warm, nil
}

// Tables lists the user tables in creation order.
func (s *SQLiteStore) Tables(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) hasTable(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", name, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) execAll(ctx context.Context, stmts []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}
