// Package metrics exposes Prometheus collectors for the scanner and an
// EventSink that feeds them.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// Metrics owns a private registry so tests and multiple instances never
// collide on the global one.
type Metrics struct {
	reg *prometheus.Registry

	Events        *prometheus.CounterVec
	RateLimitHits *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
	BreakerTrips  *prometheus.CounterVec
	Opportunities *prometheus.CounterVec
	NetSpread     prometheus.Histogram
	TickDuration  *prometheus.HistogramVec
	TickErrors    *prometheus.CounterVec
	GasUSD        *prometheus.GaugeVec

	Equity        prometheus.Gauge
	Drawdown      prometheus.Gauge
	OpenPositions prometheus.Gauge
	DailyPnL      prometheus.Gauge
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbscan_events_total",
			Help: "Scanner events by kind",
		}, []string{"kind"}),
		RateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbscan_rate_limit_hits_total",
			Help: "Fetches deferred or rejected by the rate limiter",
		}, []string{"endpoint"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbscan_cache_misses_total",
			Help: "Price cache misses by venue",
		}, []string{"venue"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbscan_circuit_breaker_trips_total",
			Help: "Venue circuit breakers opened",
		}, []string{"venue"}),
		Opportunities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbscan_opportunities_total",
			Help: "Arbitrage opportunities found by pair",
		}, []string{"pair"}),
		NetSpread: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbscan_opportunity_net_spread",
			Help:    "Net spread of detected opportunities (fraction)",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.02, 0.05, 0.1},
		}),
		TickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbscan_tick_duration_seconds",
			Help:    "Scanner tick duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"strategy"}),
		TickErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbscan_tick_errors_total",
			Help: "Scanner ticks that ended with an error",
		}, []string{"strategy"}),
		GasUSD: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arbscan_gas_usd",
			Help: "Estimated swap gas cost in USD",
		}, []string{"chain"}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbscan_equity_usd",
			Help: "Portfolio equity",
		}),
		Drawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbscan_drawdown",
			Help: "Current drawdown from peak equity (fraction)",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbscan_open_positions",
			Help: "Open positions",
		}),
		DailyPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbscan_daily_pnl_usd",
			Help: "Realised PnL since the start of the trading day",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Events,
		m.RateLimitHits,
		m.CacheMisses,
		m.BreakerTrips,
		m.Opportunities,
		m.NetSpread,
		m.TickDuration,
		m.TickErrors,
		m.GasUSD,
		m.Equity,
		m.Drawdown,
		m.OpenPositions,
		m.DailyPnL,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Emit implements domain.EventSink.
func (m *Metrics) Emit(_ context.Context, ev domain.Event) {
	m.Events.WithLabelValues(string(ev.Kind)).Inc()
	switch ev.Kind {
	case domain.EventRateLimitHit:
		m.RateLimitHits.WithLabelValues(ev.Endpoint).Inc()
	case domain.EventCacheMiss:
		m.CacheMisses.WithLabelValues(string(ev.Venue)).Inc()
	case domain.EventCircuitBreakerOpened:
		m.BreakerTrips.WithLabelValues(string(ev.Venue)).Inc()
	case domain.EventOpportunityFound:
		m.Opportunities.WithLabelValues(string(ev.Pair)).Inc()
		if opp, ok := ev.Payload.(domain.Opportunity); ok {
			m.NetSpread.Observe(opp.NetSpread)
		}
	}
}

// ObserveTick records one scanner tick.
func (m *Metrics) ObserveTick(strategy string, d time.Duration, err error) {
	m.TickDuration.WithLabelValues(strategy).Observe(d.Seconds())
	if err != nil {
		m.TickErrors.WithLabelValues(strategy).Inc()
	}
}

// SetPortfolio updates the portfolio gauges.
func (m *Metrics) SetPortfolio(rm domain.RiskMetrics) {
	m.Equity.Set(rm.Equity)
	m.Drawdown.Set(rm.CurrentDrawdown)
	m.OpenPositions.Set(float64(rm.OpenPositions))
	m.DailyPnL.Set(rm.DailyPnL)
}

// SetGas records a gas estimate.
func (m *Metrics) SetGas(chain domain.Chain, usd float64) {
	m.GasUSD.WithLabelValues(string(chain)).Set(usd)
}

var _ domain.EventSink = (*Metrics)(nil)
