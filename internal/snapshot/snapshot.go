// Package snapshot materializes the denormalized, read-optimized view of the
// price store that every chart, table and forecast reads from.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"time"

	"innov8/internal/domain"
	"innov8/internal/store"
)

// ---------------------------------------------------------------------------
// Categorical columns
// ---------------------------------------------------------------------------

// Code is the interned value of a categorical column.
type Code uint32

// Categories interns the distinct values of one low-cardinality column.
type Categories struct {
	values []string
	index  map[string]Code
}

func newCategories() Categories {
	return Categories{index: make(map[string]Code)}
}

func (c *Categories) intern(v string) Code {
	if code, ok := c.index[v]; ok {
		return code
	}
	code := Code(len(c.values))
	c.values = append(c.values, v)
	c.index[v] = code
	return code
}

// Lookup returns the code of v, if v occurs in the column.
func (c *Categories) Lookup(v string) (Code, bool) {
	code, ok := c.index[v]
	return code, ok
}

// Value returns the display string of code.
func (c *Categories) Value(code Code) string {
	return c.values[code]
}

// Len returns the number of distinct values.
func (c *Categories) Len() int {
	return len(c.values)
}

// ---------------------------------------------------------------------------
// Snapshot
// ---------------------------------------------------------------------------

// Row is one denormalized (instrument, date) row.
type Row struct {
	Symbol   string
	Name     string
	Sector   string
	Date     time.Time // calendar date at UTC midnight
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   int64
	Exchange string
	Type     string
	Currency string
}

type span struct{ start, end int }

// Snapshot is an immutable columnar table, one row per (instrument, date),
// sorted by symbol and date. String columns are interned; equality filters
// by symbol or sector compare codes.
type Snapshot struct {
	builtAt time.Time

	symbols    Categories
	names      Categories
	sectors    Categories
	exchanges  Categories
	types      Categories
	currencies Categories

	symbol   []Code
	name     []Code
	sector   []Code
	exchange []Code
	typ      []Code
	currency []Code
	date     []time.Time
	open     []float64
	high     []float64
	low      []float64
	close    []float64
	volume   []int64

	// spans maps a symbol code to its contiguous row range.
	spans []span
}

// Build runs the snapshot query and materializes the result.
func Build(ctx context.Context, src store.SnapshotSource) (*Snapshot, error) {
	s := &Snapshot{
		builtAt:    time.Now(),
		symbols:    newCategories(),
		names:      newCategories(),
		sectors:    newCategories(),
		exchanges:  newCategories(),
		types:      newCategories(),
		currencies: newCategories(),
	}

	err := src.ScanSnapshot(ctx, func(r store.SnapshotRow) {
		s.append(Row{
			Symbol:   r.Symbol,
			Name:     r.Name,
			Sector:   r.Sector,
			Date:     time.Unix(r.Date, 0).UTC(),
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			Volume:   r.Volume,
			Exchange: r.Exchange,
			Type:     r.Type,
			Currency: r.Currency,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("building snapshot: %w", err)
	}
	return s, nil
}

// FromRows builds a snapshot from rows already ordered by symbol and date.
func FromRows(rows []Row) *Snapshot {
	s := &Snapshot{
		builtAt:    time.Now(),
		symbols:    newCategories(),
		names:      newCategories(),
		sectors:    newCategories(),
		exchanges:  newCategories(),
		types:      newCategories(),
		currencies: newCategories(),
	}
	for _, r := range rows {
		s.append(r)
	}
	return s
}

func (s *Snapshot) append(r Row) {
	i := len(s.date)
	code := s.symbols.intern(r.Symbol)
	if int(code) == len(s.spans) {
		s.spans = append(s.spans, span{start: i})
	}
	s.spans[code].end = i + 1

	s.symbol = append(s.symbol, code)
	s.name = append(s.name, s.names.intern(r.Name))
	s.sector = append(s.sector, s.sectors.intern(r.Sector))
	s.exchange = append(s.exchange, s.exchanges.intern(r.Exchange))
	s.typ = append(s.typ, s.types.intern(r.Type))
	s.currency = append(s.currency, s.currencies.intern(r.Currency))
	s.date = append(s.date, r.Date)
	s.open = append(s.open, r.Open)
	s.high = append(s.high, r.High)
	s.low = append(s.low, r.Low)
	s.close = append(s.close, r.Close)
	s.volume = append(s.volume, r.Volume)
}

// BuiltAt returns when the snapshot was materialized.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Len returns the number of rows.
func (s *Snapshot) Len() int { return len(s.date) }

// Row returns row i.
func (s *Snapshot) Row(i int) Row {
	return Row{
		Symbol:   s.symbols.Value(s.symbol[i]),
		Name:     s.names.Value(s.name[i]),
		Sector:   s.sectors.Value(s.sector[i]),
		Date:     s.date[i],
		Open:     s.open[i],
		High:     s.high[i],
		Low:      s.low[i],
		Close:    s.close[i],
		Volume:   s.volume[i],
		Exchange: s.exchanges.Value(s.exchange[i]),
		Type:     s.types.Value(s.typ[i]),
		Currency: s.currencies.Value(s.currency[i]),
	}
}

// Rows returns every row.
func (s *Snapshot) Rows() []Row {
	out := make([]Row, s.Len())
	for i := range out {
		out[i] = s.Row(i)
	}
	return out
}

// Symbols returns every symbol in the snapshot, sorted.
func (s *Snapshot) Symbols() []string {
	out := append([]string(nil), s.symbols.values...)
	sort.Strings(out)
	return out
}

// Sectors returns every sector in the snapshot, sorted.
func (s *Snapshot) Sectors() []string {
	out := append([]string(nil), s.sectors.values...)
	sort.Strings(out)
	return out
}

// SectorSymbols returns the symbols of sector, sorted.
func (s *Snapshot) SectorSymbols(sector string) []string {
	code, ok := s.sectors.Lookup(sector)
	if !ok {
		return nil
	}
	var out []string
	for symCode, sp := range s.spans {
		if sp.end > sp.start && s.sector[sp.start] == code {
			out = append(out, s.symbols.Value(Code(symCode)))
		}
	}
	sort.Strings(out)
	return out
}

// Has reports whether symbol has any rows.
func (s *Snapshot) Has(symbol string) bool {
	_, ok := s.symbols.Lookup(symbol)
	return ok
}

func (s *Snapshot) rangeOf(symbol string) (span, bool) {
	code, ok := s.symbols.Lookup(symbol)
	if !ok {
		return span{}, false
	}
	return s.spans[code], true
}

// FilterSymbol returns the rows of symbol in date order.
func (s *Snapshot) FilterSymbol(symbol string) []Row {
	sp, ok := s.rangeOf(symbol)
	if !ok {
		return nil
	}
	out := make([]Row, 0, sp.end-sp.start)
	for i := sp.start; i < sp.end; i++ {
		out = append(out, s.Row(i))
	}
	return out
}

// FilterSector returns the rows of every instrument in sector.
func (s *Snapshot) FilterSector(sector string) []Row {
	code, ok := s.sectors.Lookup(sector)
	if !ok {
		return nil
	}
	var out []Row
	for i, c := range s.sector {
		if c == code {
			out = append(out, s.Row(i))
		}
	}
	return out
}

// Series returns the dates and values of one price field for symbol.
func (s *Snapshot) Series(symbol string, field domain.PriceField) ([]time.Time, []float64) {
	sp, ok := s.rangeOf(symbol)
	if !ok {
		return nil, nil
	}
	var col []float64
	switch field {
	case domain.FieldOpen:
		col = s.open
	case domain.FieldHigh:
		col = s.high
	case domain.FieldLow:
		col = s.low
	default:
		col = s.close
	}
	dates := append([]time.Time(nil), s.date[sp.start:sp.end]...)
	values := append([]float64(nil), col[sp.start:sp.end]...)
	return dates, values
}

// Info returns the instrument metadata of symbol.
func (s *Snapshot) Info(symbol string) (domain.InstrumentInfo, bool) {
	sp, ok := s.rangeOf(symbol)
	if !ok {
		return domain.InstrumentInfo{}, false
	}
	r := s.Row(sp.start)
	return domain.InstrumentInfo{
		Symbol:      r.Symbol,
		DisplayName: r.Name,
		Currency:    r.Currency,
		Exchange:    r.Exchange,
		Type:        r.Type,
		Sector:      r.Sector,
	}, true
}

// Bars returns the OHLCV bars of symbol in date order.
func (s *Snapshot) Bars(symbol string) []domain.Bar {
	sp, ok := s.rangeOf(symbol)
	if !ok {
		return nil
	}
	out := make([]domain.Bar, 0, sp.end-sp.start)
	for i := sp.start; i < sp.end; i++ {
		out = append(out, domain.Bar{
			Symbol:    symbol,
			Timestamp: s.date[i],
			Open:      s.open[i],
			High:      s.high[i],
			Low:       s.low[i],
			Close:     s.close[i],
			Volume:    s.volume[i],
		})
	}
	return out
}
