package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ ReferenceStore = (*SQLiteStore)(nil)
var _ PriceStore = (*SQLiteStore)(nil)
var _ ForecastStore = (*SQLiteStore)(nil)
var _ SnapshotSource = (*SQLiteStore)(nil)

// ErrUnknownSymbol is returned when a write references a symbol with no
// instrument row.
var ErrUnknownSymbol = errors.New("unknown symbol")

// SQLiteStore implements every store interface over a single SQLite
// connection. One mutex guards each unit of work on the connection; it is
// held per transaction, never across a batch.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns
// a ready-to-use SQLiteStore. The schema is not touched; call EnsureSchema or
// ResetSchema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening %s: %w", dbPath, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction while holding the connection lock.
// The transaction is rolled back if fn returns an error.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Counts returns the cardinality of the instrument, date, bar and forecast
// tables.
func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM instrument),
		       (SELECT COUNT(*) FROM trading_date),
		       (SELECT COUNT(*) FROM price_bar),
		       (SELECT COUNT(*) FROM forecast)`,
	).Scan(&c.Instruments, &c.Dates, &c.Bars, &c.Forecasts)
	if err != nil {
		return Counts{}, fmt.Errorf("counting rows: %w", err)
	}
	return c, nil
}

// instrumentID resolves symbol inside tx.
func instrumentID(ctx context.Context, tx *sql.Tx, symbol string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM instrument WHERE symbol = ?`, symbol).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	if err != nil {
		return 0, fmt.Errorf("resolving %s: %w", symbol, err)
	}
	return id, nil
}
