package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscan/internal/aggregator"
	"github.com/alanyoungcy/arbscan/internal/domain"
	"github.com/alanyoungcy/arbscan/internal/events"
	"github.com/alanyoungcy/arbscan/internal/metrics"
	"github.com/alanyoungcy/arbscan/internal/ratelimit"
	"github.com/alanyoungcy/arbscan/internal/risk"
	"github.com/alanyoungcy/arbscan/internal/server/handler"
	"github.com/alanyoungcy/arbscan/internal/server/ws"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	srv     *httptest.Server
	risk    *risk.Manager
	recent  *events.Recent
	bus     *events.LocalBus
	limiter *ratelimit.Limiter
}

func newFixture(t *testing.T, cfg Config, checks map[string]handler.Check) *fixture {
	t.Helper()
	logger := testLogger()

	rm := risk.NewManager(risk.Config{
		InitialEquity: 10_000, MaxPositionSize: 0.3, MinTradeSize: 500,
		MaxDailyLoss: 0.05, MaxDrawdown: 0.15, StopLoss: 0.05, TakeProfit: 0.05,
	}, logger)
	recent := events.NewRecent(16)
	bus := events.NewLocalBus()
	limiter := ratelimit.New(ratelimit.Config{}, logger)
	breakers := aggregator.NewBreakers(3, time.Minute, time.Now, nil)
	breakers.RecordFailure("kraken")

	status := handler.NewStatusHandler("paper", []string{"arbitrage"}, []domain.Venue{"jupiter"}, []domain.Pair{"SOL/USDC"}, time.Now())
	hub := ws.NewHub(bus, events.Channel, func() any { return status.Snapshot() }, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.Run(ctx) }()

	s := NewServer(cfg, Handlers{
		Health:    handler.NewHealthHandler(checks),
		Status:    status,
		Risk:      handler.NewRiskHandler(rm, nil, logger),
		Positions: handler.NewPositionHandler(rm, nil, logger),
		Events:    handler.NewEventHandler(recent, nil, events.Channel, logger),
		Detail:    handler.NewHealthDetailHandler(breakers, limiter),
		Metrics:   metrics.New().Handler(),
	}, hub, limiter, logger)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, risk: rm, recent: recent, bus: bus, limiter: limiter}
}

func getJSON(t *testing.T, url string, header http.Header, out any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	var health map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/health", nil, &health))
	assert.Equal(t, "ok", health["status"])

	var status map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/status", nil, &status))
	assert.Equal(t, "paper", status["mode"])
}

func TestHealthDegraded(t *testing.T) {
	f := newFixture(t, Config{}, map[string]handler.Check{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})

	var health map[string]any
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, f.srv.URL+"/api/health", nil, &health))
	assert.Equal(t, "degraded", health["status"])
}

func TestAuthRequiredExceptHealthAndMetrics(t *testing.T) {
	f := newFixture(t, Config{APIKey: "secret"}, nil)

	assert.Equal(t, http.StatusUnauthorized, getJSON(t, f.srv.URL+"/api/risk", nil, nil))
	assert.Equal(t, http.StatusUnauthorized,
		getJSON(t, f.srv.URL+"/api/risk", http.Header{"X-Api-Key": {"wrong"}}, nil))

	var m domain.RiskMetrics
	assert.Equal(t, http.StatusOK,
		getJSON(t, f.srv.URL+"/api/risk", http.Header{"Authorization": {"Bearer secret"}}, &m))
	assert.Equal(t, 10_000.0, m.Equity)

	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/health", nil, nil))

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnauthorizedCarriesChallengeAndRequestID(t *testing.T) {
	f := newFixture(t, Config{APIKey: "secret"}, nil)

	resp, err := http.Get(f.srv.URL + "/api/positions")
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, `Bearer realm="arbscan"`, resp.Header.Get("WWW-Authenticate"))
	assert.Equal(t, "missing authentication token", body["error"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRequestIDEchoed(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/status", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "dash-42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "dash-42", resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(f.srv.URL + "/api/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Len(t, resp.Header.Get("X-Request-ID"), 36, "generated ids are uuids")
}

func TestWebSocketTokenQueryParam(t *testing.T) {
	f := newFixture(t, Config{APIKey: "secret"}, nil)
	base := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(base+"?token=secret", nil)
	require.NoError(t, err)
	conn.Close()

	// The query parameter is only honoured on upgrades.
	assert.Equal(t, http.StatusUnauthorized, getJSON(t, f.srv.URL+"/api/risk?token=secret", nil, nil))
}

func TestEmergencyStop(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	_, err := f.risk.OnFill(context.Background(), domain.ApprovedTrade{
		ID: "t1", Strategy: "arbitrage", Pair: "SOL/USDC", Venue: "jupiter",
		Side: domain.SideBuy, Size: 900, LimitPrice: 180, StopLoss: 171, TakeProfit: 189,
	}, domain.Fill{TradeID: "t1", ExecutedPrice: 180, Timestamp: time.Now()})
	require.NoError(t, err)

	resp, err := http.Post(f.srv.URL+"/api/emergency-stop", "application/json", strings.NewReader(`{"reason":"test"}`))
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["already_engaged"])
	assert.Len(t, body["closed_positions"], 1)
	assert.True(t, f.risk.Metrics().EmergencyStopped)
	assert.Empty(t, f.risk.OpenPairs())

	resp, err = http.Post(f.srv.URL+"/api/emergency-stop", "application/json", nil)
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, true, body["already_engaged"])

	resp, err = http.Post(f.srv.URL+"/api/emergency-stop", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPositionsAndOpportunities(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	ctx := context.Background()

	_, err := f.risk.OnFill(ctx, domain.ApprovedTrade{
		ID: "t1", Strategy: "arbitrage", Pair: "SOL/USDC", Venue: "jupiter",
		Side: domain.SideBuy, Size: 900, LimitPrice: 180, StopLoss: 171, TakeProfit: 189,
	}, domain.Fill{TradeID: "t1", ExecutedPrice: 180, Timestamp: time.Now()})
	require.NoError(t, err)

	var pos struct {
		Positions []domain.Position `json:"positions"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/positions?status=open", nil, &pos))
	require.Len(t, pos.Positions, 1)
	assert.Equal(t, "t1", pos.Positions[0].TradeID)

	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/positions?status=closed", nil, &pos))
	assert.Empty(t, pos.Positions)

	assert.Equal(t, http.StatusNotFound, getJSON(t, f.srv.URL+"/api/positions?source=journal", nil, nil))

	f.recent.Emit(ctx, domain.Event{Kind: domain.EventOpportunityFound, Pair: "SOL/USDC"})
	var evs struct {
		Events []domain.Event `json:"events"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/opportunities/recent", nil, &evs))
	require.Len(t, evs.Events, 1)
	assert.Equal(t, domain.Pair("SOL/USDC"), evs.Events[0].Pair)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, f.srv.URL+"/api/events/recent", nil, nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, f.srv.URL+"/api/events/history", nil, nil))
}

func TestBreakersAndRateLimits(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	var b struct {
		Breakers []aggregator.BreakerStatus `json:"breakers"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/breakers", nil, &b))
	require.Len(t, b.Breakers, 1)
	assert.Equal(t, domain.Venue("kraken"), b.Breakers[0].Venue)
	assert.Equal(t, 1, b.Breakers[0].Failures)

	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/ratelimits", nil, nil))
}

func TestClientRateLimit(t *testing.T) {
	f := newFixture(t, Config{RateLimit: 2, RateWindow: time.Minute}, nil)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/status", nil, nil))
	}
	assert.Equal(t, http.StatusTooManyRequests, getJSON(t, f.srv.URL+"/api/status", nil, nil))
	assert.Equal(t, http.StatusOK,
		getJSON(t, f.srv.URL+"/api/status", http.Header{"X-Forwarded-For": {"10.1.1.1"}}, nil))
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, Config{CORSOrigins: []string{"https://dash.example"}, APIKey: "k"}, nil)

	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/api/risk", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dash.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://dash.example", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "X-Request-ID")

	req, err = http.NewRequest(http.MethodGet, f.srv.URL+"/api/risk", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("X-API-Key", "k")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://dash.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "X-Request-ID, Retry-After", resp.Header.Get("Access-Control-Expose-Headers"))
}

func TestWebSocketStreamsEvents(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first map[string]any
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "status", first["kind"])

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "subscribe", "kinds": []string{"trade_filled"}}))
	// Give the read pump a moment to apply the filter before publishing.
	time.Sleep(100 * time.Millisecond)

	ctx := context.Background()
	require.NoError(t, f.bus.Publish(ctx, events.Channel, []byte(`{"kind":"opportunity_found"}`)))
	require.NoError(t, f.bus.Publish(ctx, events.Channel, []byte(`{"kind":"trade_filled","pair":"SOL/USDC"}`)))

	var got map[string]any
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "trade_filled", got["kind"])
	assert.Equal(t, "SOL/USDC", got["pair"])
}
