package us

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"innov8/internal/domain"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func TestConvertBars(t *testing.T) {
	loc := newYork(t)
	end := time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC)

	raw := []marketdata.Bar{
		// Daily bars are stamped at midnight New York time.
		{Timestamp: time.Date(2024, 1, 11, 5, 0, 0, 0, time.UTC), Open: 186, High: 187.5, Low: 185, Close: 186.5, Volume: 1000},
		{Timestamp: time.Date(2024, 1, 12, 5, 0, 0, 0, time.UTC), Open: 186.5, High: 188, Low: 186, Close: 187, Volume: 2000},
		{Timestamp: time.Date(2024, 1, 13, 5, 0, 0, 0, time.UTC), Open: 187, High: 188, Low: 186, Close: 187, Volume: 10},
	}

	bars, err := convertBars("AAPL", raw, loc, end)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 {
		t.Fatalf("convertBars() returned %d bars, want 2 (bar at end dropped)", len(bars))
	}
	if want := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC); !bars[0].Timestamp.Equal(want) {
		t.Errorf("bars[0].Timestamp = %v, want %v", bars[0].Timestamp, want)
	}
	if bars[1].Volume != 2000 || bars[1].Symbol != "AAPL" {
		t.Errorf("bars[1] = %+v", bars[1])
	}
}

func TestConvertBarsRejectsInvalid(t *testing.T) {
	raw := []marketdata.Bar{
		{Timestamp: time.Date(2024, 1, 11, 5, 0, 0, 0, time.UTC), Open: 186, High: 185, Low: 184, Close: 186.5, Volume: 1},
	}
	_, err := convertBars("AAPL", raw, time.UTC, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, domain.ErrInvalidBar) {
		t.Errorf("convertBars() error = %v, want ErrInvalidBar", err)
	}
}

func TestAssetInfo(t *testing.T) {
	ref := BundledReferenceData()
	asset := &alpaca.Asset{Symbol: "AAPL", Name: "Apple Inc. Common Stock", Exchange: "NASDAQ", Class: "us_equity"}

	info, err := assetInfo("AAPL", asset, ref)
	if err != nil {
		t.Fatal(err)
	}
	want := domain.InstrumentInfo{
		Symbol:      "AAPL",
		DisplayName: "Apple Inc. Common Stock",
		Currency:    "USD",
		Exchange:    "NASDAQ",
		Type:        TypeEquity,
		Sector:      "Technology",
	}
	if info != want {
		t.Errorf("assetInfo() = %+v, want %+v", info, want)
	}
}

func TestAssetInfoMissingName(t *testing.T) {
	asset := &alpaca.Asset{Symbol: "AAPL", Exchange: "NASDAQ"}
	if _, err := assetInfo("AAPL", asset, BundledReferenceData()); !errors.Is(err, domain.ErrInvalidInfo) {
		t.Errorf("assetInfo() error = %v, want ErrInvalidInfo", err)
	}
	if _, err := assetInfo("AAPL", nil, BundledReferenceData()); !errors.Is(err, domain.ErrInvalidInfo) {
		t.Errorf("assetInfo(nil) error = %v, want ErrInvalidInfo", err)
	}
}

func TestProviderSymbol(t *testing.T) {
	if got := providerSymbol("BRK-B"); got != "BRK.B" {
		t.Errorf("providerSymbol(BRK-B) = %q, want BRK.B", got)
	}
	if got := providerSymbol("AAPL"); got != "AAPL" {
		t.Errorf("providerSymbol(AAPL) = %q", got)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&alpaca.APIError{StatusCode: http.StatusNotFound}, false},
		{&alpaca.APIError{StatusCode: http.StatusUnprocessableEntity}, false},
		{&alpaca.APIError{StatusCode: http.StatusTooManyRequests}, true},
		{&alpaca.APIError{StatusCode: http.StatusBadGateway}, true},
		{errors.New("connection reset"), true},
	}
	for _, c := range cases {
		if got := retryable(c.err); got != c.want {
			t.Errorf("retryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestNewLimiter(t *testing.T) {
	l := newLimiter(120)
	if got, want := float64(l.Limit()), 2.0; got != want {
		t.Errorf("newLimiter(120).Limit() = %v, want %v", got, want)
	}
	if l := newLimiter(0); !l.Allow() || !l.Allow() {
		t.Error("newLimiter(0) should not limit")
	}
}
