// Package app provides the top-level application lifecycle. It wires every
// component from configuration and runs the scanners, the event fan-out, the
// HTTP API and periodic housekeeping until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbscan/internal/arbitrage"
	"github.com/alanyoungcy/arbscan/internal/cache/redis"
	"github.com/alanyoungcy/arbscan/internal/config"
	"github.com/alanyoungcy/arbscan/internal/domain"
	"github.com/alanyoungcy/arbscan/internal/events"
	"github.com/alanyoungcy/arbscan/internal/scanner"
	"github.com/alanyoungcy/arbscan/internal/server"
	"github.com/alanyoungcy/arbscan/internal/server/handler"
	"github.com/alanyoungcy/arbscan/internal/server/ws"
	"github.com/alanyoungcy/arbscan/internal/source"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Run wires all dependencies, starts every long-running task and blocks
// until ctx is cancelled or a task fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "app: starting",
		slog.String("mode", a.cfg.Mode),
		slog.Int("pairs", len(a.cfg.Pairs)),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	startedAt := time.Now()
	g, ctx := errgroup.WithContext(ctx)

	pairs := scannerPairs(a.cfg.Pairs)
	loopDeps := scanner.Deps{
		Prices:   deps.Aggregator,
		Risk:     deps.Risk,
		Executor: deps.Executor,
		Journal:  deps.Journal,
		Sink:     deps.Sink,
		Observer: deps.Metrics,
	}
	intervals := a.cfg.Intervals()
	var strategies []string

	if a.cfg.Arbitrage.Enabled {
		detector := arbitrage.NewDetector(arbitrage.Config{
			MinNetSpread: a.cfg.Arbitrage.MinProfit,
			MinLiquidity: a.cfg.LiquidityFloor(),
		}, a.logger)
		arb := scanner.NewArbitrage(scanner.ArbitrageConfig{
			Loop:  a.loopConfig(intervals.Arbitrage.Duration),
			Pairs: pairs,
			Costs: deps.Costs,
			VenueChains: map[domain.Venue]domain.Chain{
				source.VenueJupiter: domain.ChainSolana,
				source.VenueUniswap: domain.ChainBase,
			},
		}, loopDeps, detector, deps.Gas, a.logger)
		g.Go(func() error { return arb.Run(ctx) })
		strategies = append(strategies, scanner.StrategyArbitrage)
	}

	if a.cfg.Swing.Enabled {
		swing := scanner.NewSwing(scanner.SwingConfig{
			Loop:        a.loopConfig(intervals.Swing.Duration),
			Pairs:       pairs,
			Indicators:  indicatorConfig(a.cfg.Swing),
			HistorySize: a.cfg.Swing.HistorySize,
		}, loopDeps, a.logger)
		g.Go(func() error { return swing.Run(ctx) })
		strategies = append(strategies, scanner.StrategySwing)
	}

	g.Go(func() error { return deps.Publisher.Run(ctx) })
	if deps.Notifier != nil {
		g.Go(func() error { return deps.Notifier.Run(ctx) })
	}
	if deps.Paper != nil {
		g.Go(func() error { return deps.Paper.Run(ctx) })
	}
	if deps.Reporter != nil {
		g.Go(func() error { return deps.Reporter.Run(ctx, a.cfg.Report.Interval.Duration) })
	}
	g.Go(func() error { return a.housekeeping(ctx, deps) })

	if a.cfg.Server.Enabled {
		srv, hub := a.buildServer(deps, strategies, startedAt)
		g.Go(func() error { return hub.Run(ctx) })
		g.Go(func() error { return srv.Run(ctx) })
	}

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("app: shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) loopConfig(interval time.Duration) scanner.LoopConfig {
	return scanner.LoopConfig{
		Interval:    interval,
		TickTimeout: a.cfg.Scan.TickTimeout.Duration,
		Workers:     a.cfg.Scan.Workers,
	}
}

func (a *App) buildServer(deps *Dependencies, strategies []string, startedAt time.Time) (*server.Server, *ws.Hub) {
	status := handler.NewStatusHandler(a.cfg.Mode, strategies, deps.Registry.List(), pairSymbols(a.cfg.Pairs), startedAt)
	hub := ws.NewHub(deps.Bus, events.Channel, func() any { return status.Snapshot() }, a.logger)

	var tail handler.StreamTailer
	if bus, ok := deps.Bus.(*redis.EventBus); ok {
		tail = bus
	}
	var usage handler.UsageSource
	if deps.LocalLimiter != nil {
		usage = deps.LocalLimiter
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(deps.Checks),
		Status:    status,
		Risk:      handler.NewRiskHandler(deps.Risk, deps.Journal, a.logger),
		Positions: handler.NewPositionHandler(deps.Risk, deps.Journal, a.logger),
		Events:    handler.NewEventHandler(deps.Recent, tail, events.Channel, a.logger),
		Detail:    handler.NewHealthDetailHandler(deps.Aggregator, usage),
		Metrics:   deps.Metrics.Handler(),
	}, hub, deps.Limiter, a.logger)
	return srv, hub
}

// housekeeping purges expired cache entries and idle limiter windows, and
// refreshes the portfolio and gas gauges.
func (a *App) housekeeping(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Cache.SweepInterval.Duration
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		swept := deps.Cache.Sweep()
		if deps.LocalLimiter != nil {
			deps.LocalLimiter.Prune()
		}
		deps.Metrics.SetPortfolio(deps.Risk.Metrics())
		for _, chain := range []domain.Chain{domain.ChainSolana, domain.ChainBase} {
			if usd, err := deps.Gas.GasCost(ctx, chain); err == nil {
				deps.Metrics.SetGas(chain, usd)
			}
		}
		a.logger.DebugContext(ctx, "app: housekeeping", slog.Int("cache_swept", swept))
	}
}

func scannerPairs(in []config.PairConfig) []scanner.PairConfig {
	out := make([]scanner.PairConfig, 0, len(in))
	for _, p := range in {
		venues := make([]domain.Venue, len(p.Venues))
		for i, v := range p.Venues {
			venues[i] = domain.Venue(v)
		}
		out = append(out, scanner.PairConfig{
			Pair:   domain.Pair(p.Symbol),
			Chain:  domain.Chain(p.Chain),
			Venues: venues,
		})
	}
	return out
}

func pairSymbols(in []config.PairConfig) []domain.Pair {
	out := make([]domain.Pair, len(in))
	for i, p := range in {
		out[i] = domain.Pair(p.Symbol)
	}
	return out
}

func indicatorConfig(c config.SwingConfig) scanner.IndicatorConfig {
	ind := scanner.DefaultIndicators()
	setPositive(&ind.RSIPeriod, c.RSIPeriod)
	setPositive(&ind.EMAShort, c.EMAShort)
	setPositive(&ind.EMALong, c.EMALong)
	setPositive(&ind.MACDFast, c.MACDFast)
	setPositive(&ind.MACDSlow, c.MACDSlow)
	setPositive(&ind.MACDSignal, c.MACDSignal)
	setPositive(&ind.SMAPeriod, c.SMAPeriod)
	setPositive(&ind.MinHistory, c.MinHistory)
	setPositive(&ind.Oversold, c.Oversold)
	setPositive(&ind.Overbought, c.Overbought)
	setPositive(&ind.MinConfidence, c.MinConfidence)
	return ind
}

func setPositive[T int | float64](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}
