package scanner

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// StrategySwing names the indicator loop.
const StrategySwing = "swing"

// SwingConfig configures the indicator loop.
type SwingConfig struct {
	Loop       LoopConfig
	Pairs      []PairConfig
	Indicators IndicatorConfig
	// HistorySize bounds the per-pair price history.
	HistorySize int
}

// Swing samples a reference price per pair each tick and trades indicator
// signals.
type Swing struct {
	cfg    SwingConfig
	deps   Deps
	logger *slog.Logger

	mu      sync.Mutex
	history map[domain.Pair][]float64
}

// NewSwing creates the loop.
func NewSwing(cfg SwingConfig, deps Deps, logger *slog.Logger) *Swing {
	cfg.Loop = cfg.Loop.withDefaults()
	if cfg.HistorySize < cfg.Indicators.MinHistory {
		cfg.HistorySize = max(200, cfg.Indicators.MinHistory)
	}
	return &Swing{
		cfg:     cfg,
		deps:    deps,
		logger:  logger.With(slog.String("component", "swing_scanner")),
		history: make(map[domain.Pair][]float64),
	}
}

// Run ticks until ctx is cancelled or an invariant is violated.
func (s *Swing) Run(ctx context.Context) error {
	return runLoop(ctx, StrategySwing, s.cfg.Loop, s.deps, s.logger, s.Tick)
}

// Tick samples and evaluates every pair once.
func (s *Swing) Tick(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Loop.Workers)
	for _, pc := range s.cfg.Pairs {
		g.Go(func() error {
			return s.scanPair(gctx, pc)
		})
	}
	return g.Wait()
}

func (s *Swing) scanPair(ctx context.Context, pc PairConfig) error {
	// A single quote is enough to sample the reference price.
	prices, _ := s.deps.Prices.PricesFor(ctx, pc.Pair, pc.Venues)
	ref := referencePrice(prices)
	if ref <= 0 || ctx.Err() != nil {
		return nil
	}
	monitor(ctx, s.deps, pc.Pair, ref, s.logger)

	closes := s.record(pc.Pair, ref)
	ind, ok := s.cfg.Indicators.Compute(closes)
	if !ok {
		return nil
	}
	side, conf, ok := s.cfg.Indicators.Signal(ref, ind)
	if !ok {
		return nil
	}

	sig := domain.SwingSignal{
		Pair:       pc.Pair,
		Venue:      primaryVenue(pc.Venues, prices),
		Side:       side,
		Price:      ref,
		Confidence: conf,
		RSI:        ind.RSI,
		EMAShort:   ind.EMAShort,
		EMALong:    ind.EMALong,
		MACD:       ind.MACD,
		MACDSignal: ind.MACDSignal,
		SMA:        ind.SMA,
		ObservedAt: s.deps.now(),
	}
	s.deps.emit(ctx, domain.Event{
		Kind:     domain.EventSwingSignal,
		Strategy: StrategySwing,
		Pair:     sig.Pair,
		Venue:    sig.Venue,
		Payload:  sig,
	})

	d := s.deps.Risk.EvaluateSwing(ctx, sig)
	if !d.Approved {
		s.deps.emit(ctx, domain.Event{
			Kind:     domain.EventTradeRejected,
			Strategy: StrategySwing,
			Pair:     sig.Pair,
			Reason:   string(d.Reason),
		})
		return nil
	}
	if d.Size <= 0 {
		s.deps.Risk.Release(ctx, d.TradeID)
		return errInvalidSize(sig.Pair, d.Size)
	}

	return dispatch(ctx, s.deps, domain.ApprovedTrade{
		ID:         tradeID(d),
		Strategy:   StrategySwing,
		Pair:       sig.Pair,
		Venue:      sig.Venue,
		Side:       sig.Side,
		Size:       d.Size,
		LimitPrice: sig.Price,
		StopLoss:   d.StopLoss,
		TakeProfit: d.TakeProfit,
		CreatedAt:  s.deps.now(),
	}, s.logger)
}

// record appends price to the pair's history and returns a copy of it.
func (s *Swing) record(pair domain.Pair, price float64) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append(s.history[pair], price)
	if len(h) > s.cfg.HistorySize {
		h = h[len(h)-s.cfg.HistorySize:]
	}
	s.history[pair] = h
	return append([]float64(nil), h...)
}

// HistoryLen returns how many samples are held for pair.
func (s *Swing) HistoryLen(pair domain.Pair) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history[pair])
}

// primaryVenue returns the first venue in fallback order that quoted.
func primaryVenue(order []domain.Venue, prices map[domain.Venue]domain.PricePoint) domain.Venue {
	for _, v := range order {
		if _, ok := prices[v]; ok {
			return v
		}
	}
	return ""
}
