// Package httpapi serves the dashboard's JSON API: snapshot reads, the
// analytics panels, forecast stepping and the refresh job.
package httpapi

import "innov8/internal/refresh"

// SymbolsResponse lists instrument symbols.
type SymbolsResponse struct {
	Sector  string   `json:"sector,omitempty"`
	Symbols []string `json:"symbols"`
}

// SectorsResponse lists sectors.
type SectorsResponse struct {
	Sectors []string `json:"sectors"`
}

// BarJSON is one daily bar.
type BarJSON struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// BarsResponse holds the daily history of one symbol.
type BarsResponse struct {
	Symbol string    `json:"symbol"`
	Name   string    `json:"name"`
	Sector string    `json:"sector"`
	Bars   []BarJSON `json:"bars"`
}

// QuoteResponse is the price card of one symbol.
type QuoteResponse struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Date      string  `json:"date"`
	Price     float64 `json:"price"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"changePct"`
	Currency  string  `json:"currency"`
	Exchange  string  `json:"exchange"`
	Sector    string  `json:"sector"`
}

// WeeklyCloseJSON is the last close of one week.
type WeeklyCloseJSON struct {
	Week  string  `json:"week"`
	Close float64 `json:"close"`
}

// FiftyTwoWeekResponse is the 52-week panel of one symbol.
type FiftyTwoWeekResponse struct {
	Symbol    string            `json:"symbol"`
	Weekly    []WeeklyCloseJSON `json:"weekly"`
	Low       float64           `json:"low"`
	High      float64           `json:"high"`
	Price     float64           `json:"price"`
	AboveLow  float64           `json:"aboveLow"`
	BelowHigh float64           `json:"belowHigh"`
}

// IndicatorJSON is one close with its moving averages; EMA and SMA are
// null during warm-up.
type IndicatorJSON struct {
	Date  string   `json:"date"`
	Close float64  `json:"close"`
	EMA   *float64 `json:"ema"`
	SMA   *float64 `json:"sma"`
}

// IndicatorsResponse holds the moving averages of one symbol.
type IndicatorsResponse struct {
	Symbol    string          `json:"symbol"`
	EMAPeriod int             `json:"emaPeriod"`
	SMAPeriod int             `json:"smaPeriod"`
	Points    []IndicatorJSON `json:"points"`
}

// PeerJSON is one row of a ranked correlation table.
type PeerJSON struct {
	Symbol      string   `json:"symbol"`
	Correlation *float64 `json:"correlation"`
	LastClose   float64  `json:"lastClose"`
}

// CorrelationResponse is the intra-sector correlation matrix. Undefined
// correlations are null. Peers is set when a symbol was requested.
type CorrelationResponse struct {
	Sector  string       `json:"sector"`
	Start   string       `json:"start"`
	End     string       `json:"end"`
	Symbols []string     `json:"symbols"`
	Matrix  [][]*float64 `json:"matrix"`
	Symbol  string       `json:"symbol,omitempty"`
	Peers   []PeerJSON   `json:"peers,omitempty"`
}

// ForecastPointJSON is one forecast business day.
type ForecastPointJSON struct {
	Date  string  `json:"date"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// ForecastResponse is the forecast point following the requested date.
// Point is null when no later point exists; HasMore reports whether another
// point follows the returned one.
type ForecastResponse struct {
	Symbol  string             `json:"symbol"`
	Point   *ForecastPointJSON `json:"point"`
	HasMore bool               `json:"has_more"`
}

// RefreshResponse acknowledges a refresh request. RunID is empty when the
// target was already up to date and nothing was started.
type RefreshResponse struct {
	RunID    string        `json:"run_id,omitempty"`
	Scope    refresh.Scope `json:"scope"`
	Target   string        `json:"target,omitempty"`
	UpToDate bool          `json:"up_to_date"`
}

// RefreshStatusResponse is the state of the refresh job.
type RefreshStatusResponse = refresh.Status
