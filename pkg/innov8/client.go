// Package innov8 is a Go client for the innov8 dashboard server.
package innov8

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"innov8/internal/domain"
	"innov8/internal/httpapi"
)

// Client provides a Go SDK for interacting with the innov8 server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new innov8 API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("innov8 api: %d %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// Symbols lists every symbol in the server's snapshot.
func (c *Client) Symbols(ctx context.Context) ([]string, error) {
	var resp httpapi.SymbolsResponse
	if err := c.do(ctx, http.MethodGet, "/api/symbols", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Symbols, nil
}

// Quote retrieves the price card of symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (httpapi.QuoteResponse, error) {
	var resp httpapi.QuoteResponse
	err := c.do(ctx, http.MethodGet, "/api/symbols/"+url.PathEscape(symbol)+"/quote", nil, &resp)
	return resp, err
}

// NextForecast returns the first forecast point of symbol strictly after
// after. A zero after starts at the first point.
func (c *Client) NextForecast(ctx context.Context, symbol string, after time.Time) (httpapi.ForecastResponse, error) {
	q := url.Values{}
	if !after.IsZero() {
		q.Set("after", after.Format(domain.DateLayout))
	}
	var resp httpapi.ForecastResponse
	err := c.do(ctx, http.MethodGet, "/api/forecast/"+url.PathEscape(symbol), q, &resp)
	return resp, err
}

// TriggerRefresh asks the server to refresh scope ("ticker", "sector" or
// "all"). Unless force is set, an up-to-date target starts nothing and the
// response has UpToDate set.
func (c *Client) TriggerRefresh(ctx context.Context, scope, target string, force bool) (httpapi.RefreshResponse, error) {
	q := url.Values{"scope": {scope}}
	if target != "" {
		q.Set("target", target)
	}
	if force {
		q.Set("force", strconv.FormatBool(force))
	}
	var resp httpapi.RefreshResponse
	err := c.do(ctx, http.MethodPost, "/api/refresh", q, &resp)
	return resp, err
}

// RefreshStatus retrieves the state of the server's refresh job.
func (c *Client) RefreshStatus(ctx context.Context) (httpapi.RefreshStatusResponse, error) {
	var resp httpapi.RefreshStatusResponse
	err := c.do(ctx, http.MethodGet, "/api/refresh", nil, &resp)
	return resp, err
}

// WaitRefresh polls RefreshStatus every interval until no run is active.
func (c *Client) WaitRefresh(ctx context.Context, interval time.Duration) (httpapi.RefreshStatusResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		st, err := c.RefreshStatus(ctx)
		if err != nil || !st.Running {
			return st, err
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}
