// Package gathertest provides in-memory collaborators for tests.
package gathertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"innov8/internal/domain"
	"innov8/internal/gather"
)

var (
	_ gather.Provider       = (*Provider)(nil)
	_ gather.UniverseSource = (*Universe)(nil)
)

// HistoryCall records one History request.
type HistoryCall struct {
	Symbol     string
	Start, End time.Time
}

// Provider is a scripted gather.Provider. Bars returned by History are the
// configured bars for the symbol that fall in [start, end).
type Provider struct {
	mu       sync.Mutex
	Infos    map[string]domain.InstrumentInfo
	Bars     map[string][]domain.Bar
	Errs     map[string]error // returned by both calls for the symbol
	NoFilter bool             // return every configured bar regardless of range
	calls    []HistoryCall
}

// NewProvider returns an empty Provider.
func NewProvider() *Provider {
	return &Provider{
		Infos: make(map[string]domain.InstrumentInfo),
		Bars:  make(map[string][]domain.Bar),
		Errs:  make(map[string]error),
	}
}

// AddInstrument registers metadata for symbol in sector.
func (p *Provider) AddInstrument(symbol, sector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Infos[symbol] = domain.InstrumentInfo{
		Symbol:      symbol,
		DisplayName: symbol + " Corp",
		Currency:    "USD",
		Exchange:    "NASDAQ",
		Type:        "EQUITY",
		Sector:      sector,
	}
}

// AddBars appends bars for symbol.
func (p *Provider) AddBars(symbol string, bars ...domain.Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Bars[symbol] = append(p.Bars[symbol], bars...)
}

// Fail makes every call for symbol return err.
func (p *Provider) Fail(symbol string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Errs[symbol] = err
}

// Metadata implements gather.Provider.
func (p *Provider) Metadata(_ context.Context, symbol string) (domain.InstrumentInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.Errs[symbol]; err != nil {
		return domain.InstrumentInfo{}, err
	}
	info, ok := p.Infos[symbol]
	if !ok {
		return domain.InstrumentInfo{}, fmt.Errorf("asset not found: %s", symbol)
	}
	return info, nil
}

// History implements gather.Provider.
func (p *Provider) History(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, HistoryCall{Symbol: symbol, Start: start, End: end})
	if err := p.Errs[symbol]; err != nil {
		return nil, err
	}

	var out []domain.Bar
	for _, b := range p.Bars[symbol] {
		if p.NoFilter || (!b.Timestamp.Before(start) && b.Timestamp.Before(end)) {
			out = append(out, b)
		}
	}
	return out, nil
}

// Calls returns the History requests seen so far.
func (p *Provider) Calls() []HistoryCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]HistoryCall(nil), p.calls...)
}

// Universe is a fixed gather.UniverseSource.
type Universe struct {
	List []string
	Err  error
}

// Symbols implements gather.UniverseSource.
func (u *Universe) Symbols(context.Context) ([]string, error) {
	if u.Err != nil {
		return nil, u.Err
	}
	return append([]string(nil), u.List...), nil
}

// Bar builds a consistent daily bar around close c.
func Bar(symbol string, date time.Time, c float64) domain.Bar {
	return domain.Bar{
		Symbol:    symbol,
		Timestamp: date,
		Open:      c - 0.5,
		High:      c + 1,
		Low:       c - 1,
		Close:     c,
		Volume:    1_000,
	}
}

// Day returns UTC midnight of the given date.
func Day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
