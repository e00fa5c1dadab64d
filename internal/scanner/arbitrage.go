package scanner

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbscan/internal/arbitrage"
	"github.com/alanyoungcy/arbscan/internal/domain"
)

// StrategyArbitrage names the cross-venue loop.
const StrategyArbitrage = "arbitrage"

// ArbitrageConfig configures the cross-venue loop.
type ArbitrageConfig struct {
	Loop  LoopConfig
	Pairs []PairConfig
	// Costs is the static part of the cost model; gas is filled in per tick.
	Costs arbitrage.Costs
	// VenueChains lists on-chain venues whose swaps pay gas.
	VenueChains map[domain.Venue]domain.Chain
}

// Arbitrage is the cross-venue scanning loop.
type Arbitrage struct {
	cfg      ArbitrageConfig
	deps     Deps
	detector *arbitrage.Detector
	gas      domain.GasOracle
	logger   *slog.Logger
}

// NewArbitrage creates the loop. gas may be nil.
func NewArbitrage(cfg ArbitrageConfig, deps Deps, detector *arbitrage.Detector, gas domain.GasOracle, logger *slog.Logger) *Arbitrage {
	cfg.Loop = cfg.Loop.withDefaults()
	return &Arbitrage{
		cfg:      cfg,
		deps:     deps,
		detector: detector,
		gas:      gas,
		logger:   logger.With(slog.String("component", "arb_scanner")),
	}
}

// Run ticks until ctx is cancelled or an invariant is violated.
func (a *Arbitrage) Run(ctx context.Context) error {
	return runLoop(ctx, StrategyArbitrage, a.cfg.Loop, a.deps, a.logger, a.Tick)
}

// Tick scans every pair once.
func (a *Arbitrage) Tick(ctx context.Context) error {
	costs := a.costModel(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Loop.Workers)
	for _, pc := range a.cfg.Pairs {
		g.Go(func() error {
			return a.scanPair(gctx, pc, costs)
		})
	}
	return g.Wait()
}

func (a *Arbitrage) scanPair(ctx context.Context, pc PairConfig, costs arbitrage.Costs) error {
	prices, err := a.deps.Prices.PricesFor(ctx, pc.Pair, pc.Venues)
	if ref := referencePrice(prices); ref > 0 {
		monitor(ctx, a.deps, pc.Pair, ref, a.logger)
	}
	switch {
	case errors.Is(err, domain.ErrInsufficientData):
		a.logger.DebugContext(ctx, "arb_scanner: insufficient data",
			slog.String("pair", string(pc.Pair)),
			slog.Int("venues", len(prices)),
		)
		return nil
	case err != nil:
		// Cancelled ticks are discarded.
		return nil
	}

	opp, ok := a.detector.Top(pc.Pair, prices, costs)
	if !ok {
		return nil
	}
	a.deps.emit(ctx, domain.Event{
		Kind:     domain.EventOpportunityFound,
		Strategy: StrategyArbitrage,
		Pair:     opp.Pair,
		Venue:    opp.BuyVenue,
		Payload:  opp,
	})
	if ctx.Err() != nil {
		return nil
	}

	d := a.deps.Risk.Evaluate(ctx, opp)
	if !d.Approved {
		a.deps.emit(ctx, domain.Event{
			Kind:     domain.EventTradeRejected,
			Strategy: StrategyArbitrage,
			Pair:     opp.Pair,
			Reason:   string(d.Reason),
			Payload:  opp,
		})
		return nil
	}
	if d.Size <= 0 {
		a.deps.Risk.Release(ctx, d.TradeID)
		return errInvalidSize(opp.Pair, d.Size)
	}

	trade := domain.ApprovedTrade{
		ID:          tradeID(d),
		Strategy:    StrategyArbitrage,
		Pair:        opp.Pair,
		Venue:       opp.BuyVenue,
		Side:        domain.SideBuy,
		Size:        d.Size,
		LimitPrice:  opp.BuyPrice,
		StopLoss:    d.StopLoss,
		TakeProfit:  d.TakeProfit,
		CreatedAt:   a.deps.now(),
		Opportunity: &opp,
	}
	return dispatch(ctx, a.deps, trade, a.logger)
}

// costModel resolves per-venue gas for this tick on top of the static costs.
func (a *Arbitrage) costModel(ctx context.Context) arbitrage.Costs {
	costs := a.cfg.Costs
	if a.gas == nil || len(a.cfg.VenueChains) == 0 {
		return costs
	}
	byChain := make(map[domain.Chain]float64)
	gas := make(map[domain.Venue]float64, len(a.cfg.VenueChains)+len(costs.Gas))
	for v, g := range costs.Gas {
		gas[v] = g
	}
	for v, chain := range a.cfg.VenueChains {
		cost, ok := byChain[chain]
		if !ok {
			c, err := a.gas.GasCost(ctx, chain)
			if err != nil {
				a.logger.DebugContext(ctx, "arb_scanner: gas estimate unavailable",
					slog.String("chain", string(chain)),
					slog.String("error", err.Error()),
				)
				continue
			}
			cost = c
			byChain[chain] = c
		}
		gas[v] = cost
	}
	costs.Gas = gas
	return costs
}
