package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"innov8/internal/domain"
	"innov8/internal/refresh"
	"innov8/internal/snapshot"
)

// Default moving-average periods of the indicators panel.
const (
	DefaultEMAPeriod = 20
	DefaultSMAPeriod = 50
)

// ForecastReader steps through stored forecasts.
type ForecastReader interface {
	NextForecast(ctx context.Context, symbol string, after time.Time) (domain.ForecastPoint, bool, error)
}

// DashboardServer serves the dashboard HTTP API.
type DashboardServer struct {
	builder   *snapshot.Builder
	forecasts ForecastReader
	job       *refresh.Job
	log       *slog.Logger
}

// NewDashboardServer creates a new dashboard HTTP server. job may be nil,
// in which case the refresh endpoints answer 503.
func NewDashboardServer(b *snapshot.Builder, f ForecastReader, job *refresh.Job, log *slog.Logger) *DashboardServer {
	return &DashboardServer{
		builder:   b,
		forecasts: f,
		job:       job,
		log:       log.With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *DashboardServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/symbols", s.handleSymbols)
	mux.HandleFunc("GET /api/sectors", s.handleSectors)
	mux.HandleFunc("GET /api/sectors/{sector}/symbols", s.handleSectorSymbols)
	mux.HandleFunc("GET /api/sectors/{sector}/correlation", s.handleCorrelation)
	mux.HandleFunc("GET /api/symbols/{symbol}/bars", s.handleBars)
	mux.HandleFunc("GET /api/symbols/{symbol}/quote", s.handleQuote)
	mux.HandleFunc("GET /api/symbols/{symbol}/52w", s.handleFiftyTwoWeek)
	mux.HandleFunc("GET /api/symbols/{symbol}/indicators", s.handleIndicators)
	mux.HandleFunc("GET /api/forecast/{symbol}", s.handleForecast)
	mux.HandleFunc("POST /api/refresh", s.handleTriggerRefresh)
	mux.HandleFunc("GET /api/refresh", s.handleRefreshStatus)
	mux.HandleFunc("GET /api/refresh/events", s.handleRefreshEvents)
}

// Handler returns an http.Handler with CORS middleware.
func (s *DashboardServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeSnapshotError maps analytics errors onto status codes.
func (s *DashboardServer) writeSnapshotError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, snapshot.ErrShortHistory):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// snapshot returns the current snapshot, rebuilding it if another process
// signalled a refresh. A failed rebuild falls back to the previous snapshot.
func (s *DashboardServer) snapshot(w http.ResponseWriter, r *http.Request) (*snapshot.Snapshot, bool) {
	snap, err := s.builder.Load(r.Context(), false)
	if err != nil {
		if snap == nil {
			s.log.Error("loading snapshot", "error", err)
			writeError(w, http.StatusServiceUnavailable, "snapshot unavailable")
			return nil, false
		}
		s.log.Warn("rebuilding snapshot, serving previous", "error", err)
	}
	return snap, true
}

// pathSymbol reads the {symbol} path value in canonical form.
func pathSymbol(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
}

func formatDate(t time.Time) string {
	return t.Format(domain.DateLayout)
}

// parseDateParam parses an optional YYYY-MM-DD query parameter.
func parseDateParam(r *http.Request, name string) (time.Time, bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(domain.DateLayout, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid %s %q, want YYYY-MM-DD", name, v)
	}
	return t, true, nil
}

// parsePeriod reads a positive integer query parameter with a default.
func parsePeriod(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 2 {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}

// nullable maps NaN to JSON null.
func nullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// ---------------------------------------------------------------------------
// Snapshot reads
// ---------------------------------------------------------------------------

func (s *DashboardServer) handleSymbols(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, SymbolsResponse{Symbols: snap.Symbols()})
}

func (s *DashboardServer) handleSectors(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, SectorsResponse{Sectors: snap.Sectors()})
}

func (s *DashboardServer) handleSectorSymbols(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	sector := r.PathValue("sector")
	symbols := snap.SectorSymbols(sector)
	if len(symbols) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("sector %q not found", sector))
		return
	}
	writeJSON(w, SymbolsResponse{Sector: sector, Symbols: symbols})
}

func (s *DashboardServer) handleBars(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	symbol := pathSymbol(r)
	info, found := snap.Info(symbol)
	if !found {
		writeError(w, http.StatusNotFound, fmt.Sprintf("symbol %s not found", symbol))
		return
	}
	from, hasFrom, err := parseDateParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, hasTo, err := parseDateParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bars := []BarJSON{}
	for _, b := range snap.Bars(symbol) {
		if hasFrom && b.Timestamp.Before(from) {
			continue
		}
		if hasTo && b.Timestamp.After(to) {
			continue
		}
		bars = append(bars, BarJSON{
			Date:   formatDate(b.Timestamp),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	writeJSON(w, BarsResponse{Symbol: symbol, Name: info.DisplayName, Sector: info.Sector, Bars: bars})
}

// ---------------------------------------------------------------------------
// Analytics
// ---------------------------------------------------------------------------

func (s *DashboardServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	q, err := snapshot.GetQuote(snap, pathSymbol(r))
	if err != nil {
		s.writeSnapshotError(w, err)
		return
	}
	writeJSON(w, QuoteResponse{
		Symbol:    q.Symbol,
		Name:      q.Name,
		Date:      formatDate(q.Date),
		Price:     q.Price,
		Change:    q.Change,
		ChangePct: q.ChangePct,
		Currency:  q.Currency,
		Exchange:  q.Exchange,
		Sector:    q.Sector,
	})
}

func (s *DashboardServer) handleFiftyTwoWeek(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	st, err := snapshot.FiftyTwoWeek(snap, pathSymbol(r))
	if err != nil {
		s.writeSnapshotError(w, err)
		return
	}
	weekly := make([]WeeklyCloseJSON, len(st.Weekly))
	for i, wc := range st.Weekly {
		weekly[i] = WeeklyCloseJSON{Week: formatDate(wc.Week), Close: wc.Close}
	}
	writeJSON(w, FiftyTwoWeekResponse{
		Symbol:    st.Symbol,
		Weekly:    weekly,
		Low:       st.Low,
		High:      st.High,
		Price:     st.Price,
		AboveLow:  st.AboveLow,
		BelowHigh: st.BelowHigh,
	})
}

func (s *DashboardServer) handleIndicators(w http.ResponseWriter, r *http.Request) {
	emaPeriod, err := parsePeriod(r, "ema", DefaultEMAPeriod)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	smaPeriod, err := parsePeriod(r, "sma", DefaultSMAPeriod)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	symbol := pathSymbol(r)
	points, err := snapshot.Indicators(snap, symbol, emaPeriod, smaPeriod)
	if err != nil {
		s.writeSnapshotError(w, err)
		return
	}
	out := make([]IndicatorJSON, len(points))
	for i, p := range points {
		out[i] = IndicatorJSON{Date: formatDate(p.Date), Close: p.Close, EMA: p.EMA, SMA: p.SMA}
	}
	writeJSON(w, IndicatorsResponse{Symbol: symbol, EMAPeriod: emaPeriod, SMAPeriod: smaPeriod, Points: out})
}

func (s *DashboardServer) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	c, err := snapshot.SectorCorrelation(snap, r.PathValue("sector"), snapshot.CorrelationWindow)
	if err != nil {
		s.writeSnapshotError(w, err)
		return
	}

	resp := CorrelationResponse{
		Sector:  c.Sector,
		Start:   formatDate(c.Start),
		End:     formatDate(c.End),
		Symbols: c.Symbols,
		Matrix:  make([][]*float64, len(c.Matrix)),
	}
	for i, row := range c.Matrix {
		resp.Matrix[i] = make([]*float64, len(row))
		for j, v := range row {
			resp.Matrix[i][j] = nullable(v)
		}
	}

	if sym := strings.ToUpper(r.URL.Query().Get("symbol")); sym != "" {
		peers, err := c.Ranked(sym)
		if err != nil {
			s.writeSnapshotError(w, err)
			return
		}
		resp.Symbol = sym
		resp.Peers = make([]PeerJSON, len(peers))
		for i, p := range peers {
			resp.Peers[i] = PeerJSON{Symbol: p.Symbol, Correlation: nullable(p.Correlation), LastClose: p.LastClose}
		}
	}
	writeJSON(w, resp)
}

// ---------------------------------------------------------------------------
// Forecasts
// ---------------------------------------------------------------------------

func (s *DashboardServer) handleForecast(w http.ResponseWriter, r *http.Request) {
	symbol := pathSymbol(r)
	after, _, err := parseDateParam(r, "after")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	p, found, err := s.forecasts.NextForecast(ctx, symbol, after)
	if err != nil {
		s.log.Error("reading forecast", "symbol", symbol, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read forecast")
		return
	}

	resp := ForecastResponse{Symbol: symbol}
	if found {
		resp.Point = &ForecastPointJSON{
			Date:  formatDate(p.Date),
			Open:  p.Open,
			High:  p.High,
			Low:   p.Low,
			Close: p.Close,
		}
		_, more, err := s.forecasts.NextForecast(ctx, symbol, p.Date)
		if err != nil {
			s.log.Error("reading forecast", "symbol", symbol, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to read forecast")
			return
		}
		resp.HasMore = more
	}
	writeJSON(w, resp)
}

// ---------------------------------------------------------------------------
// Refresh job
// ---------------------------------------------------------------------------

func (s *DashboardServer) handleTriggerRefresh(w http.ResponseWriter, r *http.Request) {
	if s.job == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh not configured")
		return
	}
	q := r.URL.Query()
	scope, err := refresh.ParseScope(q.Get("scope"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	target := strings.TrimSpace(q.Get("target"))

	var sector string
	switch scope {
	case refresh.ScopeTicker:
		target = strings.ToUpper(target)
		if target == "" {
			writeError(w, http.StatusBadRequest, "ticker refresh needs a target symbol")
			return
		}
		snap, ok := s.snapshot(w, r)
		if !ok {
			return
		}
		if info, found := snap.Info(target); found {
			sector = info.Sector
		}
	case refresh.ScopeSector:
		if target == "" {
			writeError(w, http.StatusBadRequest, "sector refresh needs a target sector")
			return
		}
		sector = target
	case refresh.ScopeAll:
		target = ""
	}

	resp := RefreshResponse{Scope: scope, Target: target}
	force, _ := strconv.ParseBool(q.Get("force"))
	if !force && s.job.IsUpToDate(scope, target, sector) {
		resp.UpToDate = true
		writeJSON(w, resp)
		return
	}

	id, err := s.job.Trigger(scope, target)
	if errors.Is(err, refresh.ErrBusy) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp.RunID = id
	writeJSONStatus(w, http.StatusAccepted, resp)
}

func (s *DashboardServer) handleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	if s.job == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh not configured")
		return
	}
	writeJSON(w, s.job.Status())
}

// handleRefreshEvents streams the job status as server-sent events: the
// current status first, then one event per run start or finish, until the
// client disconnects.
func (s *DashboardServer) handleRefreshEvents(w http.ResponseWriter, r *http.Request) {
	if s.job == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	subID, ch := s.job.Subscribe(16)
	defer s.job.Unsubscribe(subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(st refresh.Status) error {
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := send(s.job.Status()); err != nil {
		return
	}
	s.log.Debug("refresh events subscribed", "subID", subID)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("refresh events client disconnected", "subID", subID)
			return
		case st, ok := <-ch:
			if !ok {
				return
			}
			if err := send(st); err != nil {
				return
			}
		}
	}
}
