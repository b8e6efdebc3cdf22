package snapshot

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/markcheno/go-talib"

	"innov8/internal/domain"
	"innov8/internal/util"
)

var (
	// ErrNotFound is returned for a symbol or sector absent from the snapshot.
	ErrNotFound = errors.New("not in snapshot")
	// ErrShortHistory is returned when a series is too short for the
	// requested statistic.
	ErrShortHistory = errors.New("history too short")
)

const (
	// CorrelationWindow is the trailing window of intra-sector correlation.
	CorrelationWindow = 90 * 24 * time.Hour

	weeksPerYear       = 52
	tradingDaysPerYear = 252
)

// ---------------------------------------------------------------------------
// Intra-sector correlation
// ---------------------------------------------------------------------------

// Correlation is the pairwise close-price correlation of one sector.
type Correlation struct {
	Sector  string
	Start   time.Time
	End     time.Time
	Symbols []string
	// Matrix[i][j] is the Pearson correlation of Symbols[i] and Symbols[j]
	// rounded to three decimals; NaN when fewer than two shared dates exist
	// or a series is constant.
	Matrix    [][]float64
	LastClose map[string]float64
}

// Peer is one row of a ranked correlation table.
type Peer struct {
	Symbol      string
	Correlation float64
	LastClose   float64
}

// SectorCorrelation correlates the closes of every instrument in sector over
// the window ending at the earliest of their latest dates.
func SectorCorrelation(s *Snapshot, sector string, window time.Duration) (*Correlation, error) {
	symbols := s.SectorSymbols(sector)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: sector %q", ErrNotFound, sector)
	}

	var end time.Time
	for i, sym := range symbols {
		dates, _ := s.Series(sym, domain.FieldClose)
		last := dates[len(dates)-1]
		if i == 0 || last.Before(end) {
			end = last
		}
	}
	start := end.Add(-window)

	closes := make([]map[int64]float64, len(symbols))
	c := &Correlation{
		Sector:    sector,
		Start:     start,
		End:       end,
		Symbols:   symbols,
		LastClose: make(map[string]float64, len(symbols)),
	}
	for i, sym := range symbols {
		dates, values := s.Series(sym, domain.FieldClose)
		closes[i] = make(map[int64]float64)
		for j, d := range dates {
			if d.Before(start) || d.After(end) {
				continue
			}
			closes[i][d.Unix()] = values[j]
			c.LastClose[sym] = values[j]
		}
	}

	n := len(symbols)
	c.Matrix = make([][]float64, n)
	for i := range c.Matrix {
		c.Matrix[i] = make([]float64, n)
		c.Matrix[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			r := round3(pearson(closes[i], closes[j]))
			c.Matrix[i][j] = r
			c.Matrix[j][i] = r
		}
	}
	return c, nil
}

// Ranked returns the other symbols of the sector ordered by absolute
// correlation with symbol, strongest first. Undefined correlations are
// omitted.
func (c *Correlation) Ranked(symbol string) ([]Peer, error) {
	idx := -1
	for i, s := range c.Symbols {
		if s == symbol {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s in sector %q", ErrNotFound, symbol, c.Sector)
	}

	var peers []Peer
	for j, other := range c.Symbols {
		if j == idx || math.IsNaN(c.Matrix[idx][j]) {
			continue
		}
		peers = append(peers, Peer{Symbol: other, Correlation: c.Matrix[idx][j], LastClose: c.LastClose[other]})
	}
	sort.SliceStable(peers, func(a, b int) bool {
		return math.Abs(peers[a].Correlation) > math.Abs(peers[b].Correlation)
	})
	return peers, nil
}

// pearson correlates two date-keyed series over their shared dates.
func pearson(a, b map[int64]float64) float64 {
	var xs, ys []float64
	for d, x := range a {
		if y, ok := b[d]; ok {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	if len(xs) < 2 {
		return math.NaN()
	}

	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= float64(len(xs))
	my /= float64(len(ys))

	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return math.NaN()
	}
	return sxy / math.Sqrt(sxx*syy)
}

func round3(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Round(v*1000) / 1000
}

// ---------------------------------------------------------------------------
// 52-week range
// ---------------------------------------------------------------------------

// WeeklyClose is the last close of one week, labeled by the week's Monday.
type WeeklyClose struct {
	Week  time.Time
	Close float64
}

// FiftyTwoWeekStats summarizes the trailing year of one instrument.
type FiftyTwoWeekStats struct {
	Symbol    string
	Weekly    []WeeklyClose
	Low       float64
	High      float64
	Price     float64
	AboveLow  float64 // (price - low) / low
	BelowHigh float64 // (high - price) / high
}

// FiftyTwoWeek computes weekly closes over the last 52 weeks and the
// low/high of the last 252 closes.
func FiftyTwoWeek(s *Snapshot, symbol string) (*FiftyTwoWeekStats, error) {
	dates, closes := s.Series(symbol, domain.FieldClose)
	if len(closes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}

	var weekly []WeeklyClose
	for i, d := range dates {
		week := util.StartOfWeek(d)
		if n := len(weekly); n > 0 && weekly[n-1].Week.Equal(week) {
			weekly[n-1].Close = closes[i]
			continue
		}
		weekly = append(weekly, WeeklyClose{Week: week, Close: closes[i]})
	}
	if len(weekly) > weeksPerYear {
		weekly = weekly[len(weekly)-weeksPerYear:]
	}

	recent := closes
	if len(recent) > tradingDaysPerYear {
		recent = recent[len(recent)-tradingDaysPerYear:]
	}
	low, high := recent[0], recent[0]
	for _, v := range recent[1:] {
		low = math.Min(low, v)
		high = math.Max(high, v)
	}
	price := closes[len(closes)-1]

	return &FiftyTwoWeekStats{
		Symbol:    symbol,
		Weekly:    weekly,
		Low:       low,
		High:      high,
		Price:     price,
		AboveLow:  (price - low) / low,
		BelowHigh: (high - price) / high,
	}, nil
}

// ---------------------------------------------------------------------------
// Moving averages
// ---------------------------------------------------------------------------

// IndicatorPoint is one date of the close series with its moving averages.
// EMA and SMA are nil during their warm-up period.
type IndicatorPoint struct {
	Date  time.Time
	Close float64
	EMA   *float64
	SMA   *float64
}

// Indicators computes the exponential and simple moving averages of the
// close series of symbol.
func Indicators(s *Snapshot, symbol string, emaPeriod, smaPeriod int) ([]IndicatorPoint, error) {
	dates, closes := s.Series(symbol, domain.FieldClose)
	if len(closes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	if emaPeriod < 2 || smaPeriod < 2 {
		return nil, fmt.Errorf("moving average periods must be at least 2")
	}
	if len(closes) < max(emaPeriod, smaPeriod) {
		return nil, fmt.Errorf("%w: %s has %d closes, need %d", ErrShortHistory, symbol, len(closes), max(emaPeriod, smaPeriod))
	}

	ema := talib.Ema(closes, emaPeriod)
	sma := talib.Sma(closes, smaPeriod)

	out := make([]IndicatorPoint, len(closes))
	for i := range closes {
		out[i] = IndicatorPoint{Date: dates[i], Close: closes[i]}
		if i >= emaPeriod-1 {
			v := ema[i]
			out[i].EMA = &v
		}
		if i >= smaPeriod-1 {
			v := sma[i]
			out[i].SMA = &v
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Price card
// ---------------------------------------------------------------------------

// Quote is the latest price of one instrument with its day-over-day change.
type Quote struct {
	Symbol    string
	Name      string
	Date      time.Time
	Price     float64
	Change    float64
	ChangePct float64
	Currency  string
	Exchange  string
	Sector    string
}

// GetQuote returns the price card of symbol. With a single bar the change
// is zero.
func GetQuote(s *Snapshot, symbol string) (*Quote, error) {
	info, ok := s.Info(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	dates, closes := s.Series(symbol, domain.FieldClose)
	n := len(closes)

	q := &Quote{
		Symbol:   symbol,
		Name:     info.DisplayName,
		Date:     dates[n-1],
		Price:    closes[n-1],
		Currency: info.Currency,
		Exchange: info.Exchange,
		Sector:   info.Sector,
	}
	if n > 1 {
		prev := closes[n-2]
		q.Change = q.Price - prev
		q.ChangePct = q.Change / prev * 100
	}
	return q, nil
}
