package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"innov8/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ResetSchema(context.Background()))
	return s
}

func info(symbol, sector string) domain.InstrumentInfo {
	return domain.InstrumentInfo{
		Symbol:      symbol,
		DisplayName: symbol + " Inc.",
		Currency:    "USD",
		Exchange:    "NMS",
		Type:        "EQUITY",
		Sector:      sector,
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func bar(symbol string, ts time.Time, c float64) domain.Bar {
	return domain.Bar{Symbol: symbol, Timestamp: ts, Open: c - 1, High: c + 1, Low: c - 2, Close: c, Volume: 1000}
}

func TestSQLiteStoreOpen(t *testing.T) {
	s := newTestStore(t)

	// Verify the store is usable by pinging the database.
	require.NoError(t, s.db.Ping())
	assert.NoError(t, s.Close())
}

func TestResetSchemaCreatesTables(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tables, err := s.Tables(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"exchange", "instrument_type", "sector", "currency",
		"instrument", "trading_date", "price_bar", "forecast",
	}, tables)

	var n int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'fk_instrument_idx'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestResetSchemaDropsData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertInstrument(ctx, info("AAPL", "Technology"))
	require.NoError(t, err)

	require.NoError(t, s.ResetSchema(ctx))
	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, c.Instruments)
}

func TestEnsureSchemaColdThenWarm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ensure.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)

	warm, err := s.EnsureSchema(ctx)
	require.NoError(t, err)
	assert.False(t, warm, "empty store reports a first run")

	_, err = s.InsertInstrument(ctx, info("AAPL", "Technology"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	warm, err = s.EnsureSchema(ctx)
	require.NoError(t, err)
	assert.True(t, warm)

	symbols, err := s.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, symbols, "existing data survives EnsureSchema")
}

func TestInsertInstrument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.InsertInstrument(ctx, info("AAPL", "Technology"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.InsertInstrument(ctx, info("MSFT", "Technology"))
	require.NoError(t, err)
	assert.True(t, ok)

	// Insert-only: a second insert of the same symbol is ignored.
	changed := info("AAPL", "Consumer Electronics")
	ok, err = s.InsertInstrument(ctx, changed)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Instrument(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Technology", got.Sector)

	// Dimension values collapse to one row each; the new sector was still
	// observed and inserted.
	var sectors, currencies int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM sector`).Scan(&sectors))
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM currency`).Scan(&currencies))
	assert.Equal(t, 2, sectors)
	assert.Equal(t, 1, currencies)

	symbols, err := s.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)
}

func TestInsertInstrumentRejectsIncompleteInfo(t *testing.T) {
	s := newTestStore(t)
	bad := info("AAPL", "")

	_, err := s.InsertInstrument(context.Background(), bad)
	assert.ErrorIs(t, err, domain.ErrInvalidInfo)
}

func TestInsertBars(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, sym := range []string{"AAPL", "MSFT"} {
		_, err := s.InsertInstrument(ctx, info(sym, "Technology"))
		require.NoError(t, err)
	}

	stats, err := s.InsertBars(ctx, "AAPL", []domain.Bar{
		bar("AAPL", day(2024, 1, 9), 185),
		bar("AAPL", day(2024, 1, 10), 186),
	})
	require.NoError(t, err)
	assert.Equal(t, InsertStats{NewDates: 2, NewBars: 2}, stats)

	// Shared dates collapse into the existing trading_date rows.
	stats, err = s.InsertBars(ctx, "MSFT", []domain.Bar{
		bar("MSFT", day(2024, 1, 9), 370),
		bar("MSFT", day(2024, 1, 10), 372),
	})
	require.NoError(t, err)
	assert.Equal(t, InsertStats{NewDates: 0, NewBars: 2}, stats)

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Dates)
	assert.Equal(t, 4, c.Bars)

	last, ok, err := s.LastDate(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day(2024, 1, 10), last)
}

func TestInsertBarsDuplicateRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.InsertInstrument(ctx, info("AAPL", "Technology"))
	require.NoError(t, err)

	_, err = s.InsertBars(ctx, "AAPL", []domain.Bar{bar("AAPL", day(2024, 1, 10), 186)})
	require.NoError(t, err)

	// The new date would be inserted first, but the duplicate bar fails the
	// primary key and the whole transaction is rolled back.
	_, err = s.InsertBars(ctx, "AAPL", []domain.Bar{
		bar("AAPL", day(2024, 1, 11), 187),
		bar("AAPL", day(2024, 1, 10), 186),
	})
	require.Error(t, err)

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Dates, "no partial date write is visible")
	assert.Equal(t, 1, c.Bars)
}

func TestInsertBarsUnknownSymbol(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertBars(ctx, "NOPE", []domain.Bar{bar("NOPE", day(2024, 1, 10), 10)})
	assert.ErrorIs(t, err, ErrUnknownSymbol)

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, c.Dates)
}

func TestLastDateEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.InsertInstrument(ctx, info("AAPL", "Technology"))
	require.NoError(t, err)

	_, ok, err := s.LastDate(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScanSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.InsertInstrument(ctx, info("MSFT", "Technology"))
	require.NoError(t, err)
	_, err = s.InsertInstrument(ctx, info("AAPL", "Technology"))
	require.NoError(t, err)

	_, err = s.InsertBars(ctx, "MSFT", []domain.Bar{bar("MSFT", day(2024, 1, 10), 372)})
	require.NoError(t, err)
	_, err = s.InsertBars(ctx, "AAPL", []domain.Bar{
		bar("AAPL", day(2024, 1, 10), 186),
		bar("AAPL", day(2024, 1, 9), 185),
	})
	require.NoError(t, err)

	var rows []SnapshotRow
	require.NoError(t, s.ScanSnapshot(ctx, func(r SnapshotRow) { rows = append(rows, r) }))
	require.Len(t, rows, 3)

	// Ordered by symbol then date.
	assert.Equal(t, "AAPL", rows[0].Symbol)
	assert.Equal(t, day(2024, 1, 9).Unix(), rows[0].Date)
	assert.Equal(t, "AAPL", rows[1].Symbol)
	assert.Equal(t, "MSFT", rows[2].Symbol)

	r := rows[2]
	assert.Equal(t, "MSFT Inc.", r.Name)
	assert.Equal(t, "Technology", r.Sector)
	assert.Equal(t, "NMS", r.Exchange)
	assert.Equal(t, "EQUITY", r.Type)
	assert.Equal(t, "USD", r.Currency)
	assert.Equal(t, 372.0, r.Close)
	assert.Equal(t, int64(1000), r.Volume)
}

func TestForecastStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.InsertInstrument(ctx, info("AAPL", "Technology"))
	require.NoError(t, err)

	points := []domain.ForecastPoint{
		{Symbol: "AAPL", Date: day(2024, 1, 11), Open: 1, High: 2, Low: 0.5, Close: 1.5},
		{Symbol: "AAPL", Date: day(2024, 1, 12), Open: 2, High: 3, Low: 1.5, Close: 2.5},
	}
	require.NoError(t, s.InsertForecasts(ctx, "AAPL", points))

	// Strictly after the cursor.
	p, ok, err := s.NextForecast(ctx, "AAPL", day(2024, 1, 10))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day(2024, 1, 11), p.Date)
	assert.Equal(t, 1.5, p.Close)

	p, ok, err = s.NextForecast(ctx, "AAPL", day(2024, 1, 11))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day(2024, 1, 12), p.Date)

	_, ok, err = s.NextForecast(ctx, "AAPL", day(2024, 1, 12))
	require.NoError(t, err)
	assert.False(t, ok, "cursor at the last point is exhausted")

	all, err := s.Forecasts(ctx, "AAPL")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.ClearForecasts(ctx))
	_, ok, err = s.NextForecast(ctx, "AAPL", day(2020, 1, 1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInsertForecastsUnknownSymbol(t *testing.T) {
	s := newTestStore(t)
	err := s.InsertForecasts(context.Background(), "NOPE", []domain.ForecastPoint{{Date: day(2024, 1, 11)}})
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestReplaceForecasts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, sym := range []string{"AAPL", "MSFT"} {
		_, err := s.InsertInstrument(ctx, info(sym, "Technology"))
		require.NoError(t, err)
	}
	old := []domain.ForecastPoint{{Date: day(2024, 1, 11), Open: 1, High: 1, Low: 1, Close: 1}}
	require.NoError(t, s.InsertForecasts(ctx, "AAPL", old))
	require.NoError(t, s.InsertForecasts(ctx, "MSFT", old))

	fresh := []domain.ForecastPoint{
		{Date: day(2024, 1, 11), Open: 2, High: 2, Low: 2, Close: 2},
		{Date: day(2024, 1, 12), Open: 3, High: 3, Low: 3, Close: 3},
	}
	require.NoError(t, s.ReplaceForecasts(ctx, "AAPL", fresh))

	got, err := s.Forecasts(ctx, "AAPL")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[0].Close)

	other, err := s.Forecasts(ctx, "MSFT")
	require.NoError(t, err)
	assert.Len(t, other, 1, "other symbols are untouched")

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Forecasts)
}
