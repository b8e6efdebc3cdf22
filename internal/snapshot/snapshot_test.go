package snapshot

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"innov8/internal/domain"
	"innov8/internal/gather/gathertest"
	"innov8/internal/store"
	"innov8/internal/util"
)

var day = gathertest.Day

// series builds consecutive business-day rows for symbol starting at from.
func series(symbol, sector string, from time.Time, closes ...float64) []Row {
	rows := make([]Row, 0, len(closes))
	d := from
	for !util.IsBusinessDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	for _, c := range closes {
		rows = append(rows, Row{
			Symbol:   symbol,
			Name:     symbol + " Corp",
			Sector:   sector,
			Date:     d,
			Open:     c,
			High:     c + 1,
			Low:      c - 1,
			Close:    c,
			Volume:   100,
			Exchange: "NASDAQ",
			Type:     "EQUITY",
			Currency: "USD",
		})
		d = util.NextBusinessDays(d, 1)[0]
	}
	return rows
}

func concat(parts ...[]Row) []Row {
	var out []Row
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "snap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ResetSchema(context.Background()))
	return st
}

func seed(t *testing.T, st *store.SQLiteStore, symbol, sector string, bars ...domain.Bar) {
	t.Helper()
	ctx := context.Background()
	_, err := st.InsertInstrument(ctx, domain.InstrumentInfo{
		Symbol: symbol, DisplayName: symbol + " Corp", Currency: "USD",
		Exchange: "NASDAQ", Type: "EQUITY", Sector: sector,
	})
	require.NoError(t, err)
	if len(bars) > 0 {
		_, err = st.InsertBars(ctx, symbol, bars)
		require.NoError(t, err)
	}
}

func TestBuildFromStore(t *testing.T) {
	st := newStore(t)
	seed(t, st, "XOM", "Energy", gathertest.Bar("XOM", day(2024, 1, 10), 100))
	seed(t, st, "MSFT", "Technology",
		gathertest.Bar("MSFT", day(2024, 1, 10), 370),
		gathertest.Bar("MSFT", day(2024, 1, 11), 372))
	seed(t, st, "AAPL", "Technology", gathertest.Bar("AAPL", day(2024, 1, 11), 186))

	snap, err := Build(context.Background(), st)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.Len())
	assert.Equal(t, []string{"AAPL", "MSFT", "XOM"}, snap.Symbols())
	assert.Equal(t, []string{"Energy", "Technology"}, snap.Sectors())
	assert.Equal(t, []string{"AAPL", "MSFT"}, snap.SectorSymbols("Technology"))
	assert.Nil(t, snap.SectorSymbols("Utilities"))
	assert.Len(t, snap.FilterSector("Technology"), 3)
	assert.Equal(t, 2, snap.sectors.Len(), "sector column is interned")
	assert.Equal(t, 1, snap.currencies.Len())

	rows := snap.FilterSymbol("MSFT")
	require.Len(t, rows, 2)
	assert.Equal(t, day(2024, 1, 10), rows[0].Date)
	assert.Equal(t, 372.0, rows[1].Close)
	assert.Equal(t, "MSFT Corp", rows[1].Name)

	dates, highs := snap.Series("MSFT", domain.FieldHigh)
	assert.Equal(t, []time.Time{day(2024, 1, 10), day(2024, 1, 11)}, dates)
	assert.Equal(t, []float64{371, 373}, highs)

	info, ok := snap.Info("XOM")
	require.True(t, ok)
	assert.Equal(t, "Energy", info.Sector)
	assert.False(t, snap.Has("NOPE"))
	assert.Len(t, snap.Bars("MSFT"), 2)
}

func TestBuilderReusesUntilSignalled(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	seed(t, st, "AAPL", "Technology", gathertest.Bar("AAPL", day(2024, 1, 10), 185))

	marker := filepath.Join(t.TempDir(), "signal", "update_signal")
	b := NewBuilder(st, marker, util.Discard())
	assert.Nil(t, b.Current())

	first, err := b.Load(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Len())

	_, err = st.InsertBars(ctx, "AAPL", []domain.Bar{gathertest.Bar("AAPL", day(2024, 1, 11), 186)})
	require.NoError(t, err)

	again, err := b.Load(ctx, false)
	require.NoError(t, err)
	assert.Same(t, first, again, "no signal, no rebuild")

	require.NoError(t, b.Signal())
	rebuilt, err := b.Load(ctx, false)
	require.NoError(t, err)
	assert.NotSame(t, first, rebuilt)
	assert.Equal(t, 2, rebuilt.Len())
	_, err = os.Stat(marker)
	assert.True(t, os.IsNotExist(err), "signal consumed by the rebuild")

	forced, err := b.Load(ctx, true)
	require.NoError(t, err)
	assert.NotSame(t, rebuilt, forced)
	assert.Same(t, forced, b.Current())
}

// signallingSource writes the refresh signal from inside a scan, as a
// separate update process committing mid-read would.
type signallingSource struct {
	rows   []store.SnapshotRow
	marker string
	signal bool
	err    error
	scans  int
}

func (s *signallingSource) ScanSnapshot(_ context.Context, fn func(store.SnapshotRow)) error {
	s.scans++
	if s.signal {
		if err := WriteSignal(s.marker); err != nil {
			return err
		}
	}
	if s.err != nil {
		return s.err
	}
	for _, r := range s.rows {
		fn(r)
	}
	return nil
}

func TestBuilderKeepsSignalWrittenDuringRead(t *testing.T) {
	ctx := context.Background()
	marker := filepath.Join(t.TempDir(), "update_signal")
	src := &signallingSource{
		rows: []store.SnapshotRow{{
			Symbol: "AAPL", Name: "Apple", Sector: "Technology",
			Date: day(2024, 1, 10).Unix(), Open: 185, High: 186, Low: 184, Close: 185,
			Volume: 100, Exchange: "NASDAQ", Type: "EQUITY", Currency: "USD",
		}},
		marker: marker,
	}
	b := NewBuilder(src, marker, util.Discard())

	_, err := b.Load(ctx, false)
	require.NoError(t, err)

	src.signal = true
	_, err = b.Load(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, src.scans)
	_, err = os.Stat(marker)
	require.NoError(t, err, "signal written during the read must survive the rebuild")

	src.signal = false
	_, err = b.Load(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, src.scans, "surviving signal triggers another rebuild")
	_, err = os.Stat(marker)
	assert.True(t, os.IsNotExist(err))
}

func TestBuilderRestoresSignalOnFailedRebuild(t *testing.T) {
	ctx := context.Background()
	marker := filepath.Join(t.TempDir(), "update_signal")
	src := &signallingSource{
		rows: []store.SnapshotRow{{
			Symbol: "AAPL", Name: "Apple", Sector: "Technology",
			Date: day(2024, 1, 10).Unix(), Open: 185, High: 186, Low: 184, Close: 185,
			Volume: 100, Exchange: "NASDAQ", Type: "EQUITY", Currency: "USD",
		}},
		marker: marker,
	}
	b := NewBuilder(src, marker, util.Discard())
	first, err := b.Load(ctx, false)
	require.NoError(t, err)

	require.NoError(t, b.Signal())
	src.err = errors.New("database is locked")
	got, err := b.Load(ctx, false)
	require.Error(t, err)
	assert.Same(t, first, got, "last good snapshot stays current")
	_, err = os.Stat(marker)
	require.NoError(t, err, "failed rebuild keeps the signal for a retry")

	src.err = nil
	rebuilt, err := b.Load(ctx, false)
	require.NoError(t, err)
	assert.NotSame(t, first, rebuilt)
	_, err = os.Stat(marker)
	assert.True(t, os.IsNotExist(err))
}

func TestSectorCorrelation(t *testing.T) {
	from := day(2024, 1, 1)
	up := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	down := []float64{8, 7, 6, 5, 4, 3, 2, 1}
	noisy := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	snap := FromRows(concat(
		series("AAA", "Tech", from, up...),
		series("BBB", "Tech", from, down...),
		series("CCC", "Tech", from, noisy[:7]...), // ends one day earlier
		series("XOM", "Energy", from, up...),
	))

	c, err := SectorCorrelation(snap, "Tech", CorrelationWindow)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, c.Symbols)

	_, ccc := snap.Series("CCC", domain.FieldClose)
	dates, _ := snap.Series("CCC", domain.FieldClose)
	assert.Equal(t, dates[len(dates)-1], c.End, "window ends at the earliest latest date")
	assert.Equal(t, ccc[len(ccc)-1], c.LastClose["CCC"])
	assert.Equal(t, 7.0, c.LastClose["AAA"], "last close inside the window")

	for i := range c.Symbols {
		assert.Equal(t, 1.0, c.Matrix[i][i])
		for j := range c.Symbols {
			assert.Equal(t, c.Matrix[i][j], c.Matrix[j][i])
		}
	}
	assert.Equal(t, -1.0, c.Matrix[0][1])

	peers, err := c.Ranked("AAA")
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, "BBB", peers[0].Symbol)
	assert.GreaterOrEqual(t, math.Abs(peers[0].Correlation), math.Abs(peers[1].Correlation))

	_, err = c.Ranked("XOM")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = SectorCorrelation(snap, "Utilities", CorrelationWindow)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSectorCorrelationWindow(t *testing.T) {
	// 200 business days; only the last 90 calendar days count.
	closesA := make([]float64, 200)
	closesB := make([]float64, 200)
	for i := range closesA {
		closesA[i] = float64(100 + i)
		if i < 100 {
			closesB[i] = float64(500 - i) // anti-correlated early on
		} else {
			closesB[i] = float64(i)
		}
	}
	snap := FromRows(concat(
		series("AAA", "Tech", day(2023, 1, 2), closesA...),
		series("BBB", "Tech", day(2023, 1, 2), closesB...),
	))

	c, err := SectorCorrelation(snap, "Tech", CorrelationWindow)
	require.NoError(t, err)
	assert.Equal(t, 1.0, c.Matrix[0][1])
	assert.Equal(t, c.End.Add(-CorrelationWindow), c.Start)
}

func TestFiftyTwoWeek(t *testing.T) {
	closes := make([]float64, 300)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	closes[10] = 1000 // outside the last 252 closes
	snap := FromRows(series("AAPL", "Tech", day(2023, 1, 2), closes...))

	st, err := FiftyTwoWeek(snap, "AAPL")
	require.NoError(t, err)

	assert.Len(t, st.Weekly, 52)
	for _, w := range st.Weekly {
		assert.Equal(t, time.Monday, w.Week.Weekday())
	}
	last := st.Weekly[len(st.Weekly)-1]
	assert.Equal(t, 300.0, last.Close, "week is labeled by Monday and holds its last close")

	assert.Equal(t, 49.0, st.Low)
	assert.Equal(t, 300.0, st.High)
	assert.Equal(t, 300.0, st.Price)
	assert.InDelta(t, (300.0-49)/49, st.AboveLow, 1e-12)
	assert.Zero(t, st.BelowHigh)

	_, err = FiftyTwoWeek(snap, "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIndicators(t *testing.T) {
	closes := []float64{10, 11, 12, 13, 14, 15, 16, 17, 18, 19}
	snap := FromRows(series("AAPL", "Tech", day(2024, 1, 1), closes...))

	pts, err := Indicators(snap, "AAPL", 3, 5)
	require.NoError(t, err)
	require.Len(t, pts, len(closes))

	assert.Nil(t, pts[1].EMA)
	require.NotNil(t, pts[2].EMA)
	assert.InDelta(t, 11.0, *pts[2].EMA, 1e-9, "EMA seeds with the SMA of the first period")
	assert.Nil(t, pts[3].SMA)
	require.NotNil(t, pts[4].SMA)
	assert.InDelta(t, 12.0, *pts[4].SMA, 1e-9)
	assert.InDelta(t, 17.0, *pts[9].SMA, 1e-9)

	_, err = Indicators(snap, "AAPL", 3, 50)
	assert.ErrorIs(t, err, ErrShortHistory)
}

func TestGetQuote(t *testing.T) {
	snap := FromRows(series("AAPL", "Tech", day(2024, 1, 1), 100, 110))

	q, err := GetQuote(snap, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL Corp", q.Name)
	assert.Equal(t, 110.0, q.Price)
	assert.Equal(t, 10.0, q.Change)
	assert.InDelta(t, 10.0, q.ChangePct, 1e-9)
	assert.Equal(t, "USD", q.Currency)
	assert.Equal(t, "Tech", q.Sector)

	single := FromRows(series("MSFT", "Tech", day(2024, 1, 1), 100))
	q, err = GetQuote(single, "MSFT")
	require.NoError(t, err)
	assert.Zero(t, q.Change)
}

func TestParquetExport(t *testing.T) {
	snap := FromRows(concat(
		series("AAPL", "Tech", day(2024, 1, 1), 100, 101, 102),
		series("XOM", "Energy", day(2024, 1, 1), 90, 91),
	))
	path := filepath.Join(t.TempDir(), "export", "snapshot.parquet")

	require.NoError(t, WriteParquet(path, snap))
	back, err := ReadParquet(path)
	require.NoError(t, err)
	assert.Equal(t, snap.Rows(), back.Rows())
}
