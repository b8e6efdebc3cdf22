package us

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/time/rate"

	"innov8/internal/domain"
	"innov8/internal/gather"
	"innov8/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ gather.Provider = (*AlpacaProvider)(nil)

// Currency is the listing currency of every instrument the US provider
// serves.
const Currency = "USD"

const (
	maxAttempts = 3
	retryDelay  = 2 * time.Second
)

// AlpacaOptions configures an AlpacaProvider.
type AlpacaOptions struct {
	APIKey          string
	APISecret       string
	BaseURL         string // trading API, serves asset metadata
	DataURL         string // market-data API, serves bars
	Feed            string
	Timeout         time.Duration
	RateLimitPerMin int
	Location        *time.Location // calendar used to date bars
	Reference       *ReferenceData
}

// ---------------------------------------------------------------------------
// AlpacaProvider: asset metadata and daily bars from the Alpaca APIs.
// ---------------------------------------------------------------------------

// AlpacaProvider implements gather.Provider. Asset metadata comes from the
// trading API, daily bars from the market-data API; sector and instrument
// type come from the reference classification. Every request waits on a
// shared rate limiter and transient failures are retried with backoff.
type AlpacaProvider struct {
	trading *alpaca.Client
	data    *marketdata.Client
	limiter *rate.Limiter
	feed    string
	loc     *time.Location
	ref     *ReferenceData
	log     *slog.Logger
}

// NewAlpacaProvider creates an AlpacaProvider from opts.
func NewAlpacaProvider(opts AlpacaOptions) *AlpacaProvider {
	httpClient := &http.Client{Timeout: opts.Timeout}

	tradingOpts := alpaca.ClientOpts{
		APIKey:     opts.APIKey,
		APISecret:  opts.APISecret,
		HTTPClient: httpClient,
	}
	if opts.BaseURL != "" {
		tradingOpts.BaseURL = opts.BaseURL
	}
	dataOpts := marketdata.ClientOpts{
		APIKey:     opts.APIKey,
		APISecret:  opts.APISecret,
		HTTPClient: httpClient,
	}
	if opts.DataURL != "" {
		dataOpts.BaseURL = opts.DataURL
	}

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	ref := opts.Reference
	if ref == nil {
		ref = BundledReferenceData()
	}

	return &AlpacaProvider{
		trading: alpaca.NewClient(tradingOpts),
		data:    marketdata.NewClient(dataOpts),
		limiter: newLimiter(opts.RateLimitPerMin),
		feed:    opts.Feed,
		loc:     loc,
		ref:     ref,
		log:     slog.Default().With("component", "alpaca"),
	}
}

// newLimiter allows perMin requests per minute with no burst beyond one.
// A non-positive perMin disables limiting.
func newLimiter(perMin int) *rate.Limiter {
	if perMin <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), 1)
}

// Metadata fetches the asset record for symbol and classifies it.
func (p *AlpacaProvider) Metadata(ctx context.Context, symbol string) (domain.InstrumentInfo, error) {
	var asset *alpaca.Asset
	err := p.call(ctx, func() error {
		var err error
		asset, err = p.trading.GetAsset(providerSymbol(symbol))
		return err
	})
	if err != nil {
		return domain.InstrumentInfo{}, fmt.Errorf("GetAsset %s: %w", symbol, err)
	}
	return assetInfo(symbol, asset, p.ref)
}

// History fetches daily bars for symbol in [start, end).
func (p *AlpacaProvider) History(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	if (gather.DateRange{Start: start, End: end}).Empty() {
		return nil, fmt.Errorf("empty range %s..%s", start.Format(domain.DateLayout), end.Format(domain.DateLayout))
	}

	var raw []marketdata.Bar
	err := p.call(ctx, func() error {
		var err error
		raw, err = p.data.GetBars(providerSymbol(symbol), marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
			Feed:      marketdata.Feed(p.feed),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}

	bars, err := convertBars(symbol, raw, p.loc, end)
	if err != nil {
		return nil, err
	}
	p.log.Debug("fetched bars", "symbol", symbol, "bars", len(bars),
		"start", start.Format(domain.DateLayout), "end", end.Format(domain.DateLayout))
	return bars, nil
}

// call waits for the rate limiter and runs fn with retries. Client errors
// (4xx other than 429) are not retried.
func (p *AlpacaProvider) call(ctx context.Context, fn func() error) error {
	return util.Retry(ctx, maxAttempts, retryDelay, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		err := fn()
		if err != nil && !retryable(err) {
			return util.Permanent(err)
		}
		return err
	})
}

func retryable(err error) bool {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return true
}

// providerSymbol maps the canonical dashed class-share symbol to Alpaca's
// dotted form (BRK-B -> BRK.B).
func providerSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "-", ".")
}

// assetInfo converts an Alpaca asset into validated instrument metadata.
func assetInfo(symbol string, asset *alpaca.Asset, ref *ReferenceData) (domain.InstrumentInfo, error) {
	if asset == nil {
		return domain.InstrumentInfo{}, fmt.Errorf("%w: no asset for %s", domain.ErrInvalidInfo, symbol)
	}
	info := domain.InstrumentInfo{
		Symbol:      symbol,
		DisplayName: strings.TrimSpace(asset.Name),
		Currency:    Currency,
		Exchange:    strings.TrimSpace(asset.Exchange),
		Type:        ref.SymbolType(symbol),
		Sector:      ref.Sector(symbol),
	}
	if err := info.Validate(); err != nil {
		return domain.InstrumentInfo{}, err
	}
	return info, nil
}

// convertBars maps provider bars onto domain bars dated at UTC midnight of
// their trading date in loc. Bars at or after end are dropped. Any bar that
// fails validation fails the whole conversion.
func convertBars(symbol string, raw []marketdata.Bar, loc *time.Location, end time.Time) ([]domain.Bar, error) {
	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		b := domain.Bar{
			Symbol:    symbol,
			Timestamp: domain.NormalizeDate(ab.Timestamp, loc),
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    int64(ab.Volume),
		}
		if !b.Timestamp.Before(end) {
			continue
		}
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("%s %s: %w", symbol, b.Timestamp.Format(domain.DateLayout), err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}
