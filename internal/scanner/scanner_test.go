package scanner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscan/internal/arbitrage"
	"github.com/alanyoungcy/arbscan/internal/domain"
	"github.com/alanyoungcy/arbscan/internal/events"
	"github.com/alanyoungcy/arbscan/internal/executor"
	"github.com/alanyoungcy/arbscan/internal/risk"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePrices struct {
	mu     sync.Mutex
	quotes map[domain.Pair]map[domain.Venue]float64
	calls  int
}

func (f *fakePrices) set(pair domain.Pair, q map[domain.Venue]float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quotes == nil {
		f.quotes = make(map[domain.Pair]map[domain.Venue]float64)
	}
	f.quotes[pair] = q
}

func (f *fakePrices) PricesFor(_ context.Context, pair domain.Pair, venues []domain.Venue) (map[domain.Venue]domain.PricePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out := make(map[domain.Venue]domain.PricePoint)
	for _, v := range venues {
		if p, ok := f.quotes[pair][v]; ok {
			out[v] = domain.PricePoint{Venue: v, Pair: pair, Price: p, Confidence: 1}
		}
	}
	if len(out) < 2 {
		return out, fmt.Errorf("fake: %w", domain.ErrInsufficientData)
	}
	return out, nil
}

type memJournal struct {
	mu        sync.Mutex
	fills     []domain.Fill
	positions map[string]domain.Position
}

func (j *memJournal) RecordFill(_ context.Context, _ domain.ApprovedTrade, f domain.Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fills = append(j.fills, f)
	return nil
}

func (j *memJournal) UpsertPosition(_ context.Context, p domain.Position) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.positions == nil {
		j.positions = make(map[string]domain.Position)
	}
	j.positions[p.ID] = p
	return nil
}

func (j *memJournal) ListPositions(context.Context, domain.PositionStatus, domain.ListOpts) ([]domain.Position, error) {
	return nil, nil
}

func riskConfig() risk.Config {
	return risk.Config{
		InitialEquity:       10000,
		MaxPositionSize:     0.3,
		MinTradeSize:        500,
		MaxDailyLoss:        0.05,
		MaxDrawdown:         0.15,
		StopLoss:            0.03,
		TakeProfit:          0.05,
		MaxSignalsPerMinute: 3,
		MinSwingConfidence:  0.5,
	}
}

type harness struct {
	prices  *fakePrices
	risk    *risk.Manager
	journal *memJournal
	recent  *events.Recent
	deps    Deps
}

func newHarness(exec domain.Executor) *harness {
	h := &harness{
		prices:  &fakePrices{},
		journal: &memJournal{},
		recent:  events.NewRecent(50),
	}
	h.risk = risk.NewManager(riskConfig(), testLogger(), risk.WithSink(h.recent))
	if exec == nil {
		exec = executor.NewPaperExecutor(executor.PaperConfig{}, nil, testLogger(), executor.WithSeed(1))
	}
	h.deps = Deps{
		Prices:   h.prices,
		Risk:     h.risk,
		Executor: exec,
		Journal:  h.journal,
		Sink:     h.recent,
	}
	return h
}

var solPair = PairConfig{Pair: "SOL/USDC", Chain: domain.ChainSolana, Venues: []domain.Venue{"jupiter", "coingecko"}}

func newArb(h *harness) *Arbitrage {
	det := arbitrage.NewDetector(arbitrage.Config{MinNetSpread: 0.005, MinLiquidity: 500}, testLogger())
	return NewArbitrage(ArbitrageConfig{
		Loop:  LoopConfig{Interval: time.Second},
		Pairs: []PairConfig{solPair},
		Costs: arbitrage.Costs{Absolute: 0.30},
	}, h.deps, det, nil, testLogger())
}

func TestArbitrageTick_EndToEnd(t *testing.T) {
	h := newHarness(nil)
	h.prices.set("SOL/USDC", map[domain.Venue]float64{"jupiter": 180, "coingecko": 182})

	require.NoError(t, newArb(h).Tick(context.Background()))

	opps := h.recent.List(domain.EventOpportunityFound, 0)
	require.Len(t, opps, 1)
	opp := opps[0].Payload.(domain.Opportunity)
	assert.InDelta(t, 0.00944, opp.NetSpread, 1e-5)

	require.Len(t, h.recent.List(domain.EventTradeApproved, 0), 1)
	require.Len(t, h.recent.List(domain.EventTradeFilled, 0), 1)

	snap := h.risk.Snapshot()
	require.Len(t, snap.OpenPositions, 1)
	pos := snap.OpenPositions[0]
	assert.Equal(t, domain.Venue("jupiter"), pos.Venue)
	assert.InDelta(t, 3000, pos.Size, 1e-9)
	assert.InDelta(t, 180*0.97, pos.StopLoss, 1e-9)
	assert.InDelta(t, 180*1.05, pos.TakeProfit, 1e-9)

	assert.Len(t, h.journal.fills, 1)
	assert.Contains(t, h.journal.positions, pos.ID)
}

func TestArbitrageTick_InsufficientDataSkips(t *testing.T) {
	h := newHarness(nil)
	h.prices.set("SOL/USDC", map[domain.Venue]float64{"jupiter": 180})

	require.NoError(t, newArb(h).Tick(context.Background()))
	assert.Empty(t, h.recent.List(domain.EventOpportunityFound, 0))
	assert.Empty(t, h.risk.Snapshot().OpenPositions)
}

func TestArbitrageTick_ExecutionFailureLeavesState(t *testing.T) {
	h := newHarness(executor.NewLogExecutor(testLogger()))
	h.prices.set("SOL/USDC", map[domain.Venue]float64{"jupiter": 180, "coingecko": 182})

	require.NoError(t, newArb(h).Tick(context.Background()))
	assert.Len(t, h.recent.List(domain.EventExecutionFailed, 0), 1)
	snap := h.risk.Snapshot()
	assert.Empty(t, snap.OpenPositions)
	assert.Zero(t, snap.ReservedExposure, "failed trade returns its headroom")
	assert.Empty(t, h.journal.fills)

	// The released headroom is available to the next tick.
	require.NoError(t, newArb(h).Tick(context.Background()))
	assert.Len(t, h.recent.List(domain.EventTradeApproved, 0), 2)
}

// slowExecutor fills at the limit price after a delay, so concurrent pair
// workers all evaluate before any fill lands.
type slowExecutor struct {
	delay time.Duration
}

func (e slowExecutor) Execute(ctx context.Context, trade domain.ApprovedTrade) (domain.Fill, error) {
	select {
	case <-time.After(e.delay):
	case <-ctx.Done():
		return domain.Fill{}, ctx.Err()
	}
	return domain.Fill{TradeID: trade.ID, ExecutedPrice: trade.LimitPrice, Timestamp: time.Now()}, nil
}

func TestArbitrageTick_ConcurrentPairsStayWithinExposureCap(t *testing.T) {
	h := newHarness(slowExecutor{delay: 50 * time.Millisecond})
	venues := []domain.Venue{"jupiter", "coingecko"}
	var pairs []PairConfig
	for _, p := range []domain.Pair{"SOL/USDC", "ETH/USDC", "RAY/USDC"} {
		h.prices.set(p, map[domain.Venue]float64{"jupiter": 180, "coingecko": 182})
		pairs = append(pairs, PairConfig{Pair: p, Chain: domain.ChainSolana, Venues: venues})
	}
	det := arbitrage.NewDetector(arbitrage.Config{MinNetSpread: 0.005, MinLiquidity: 500}, testLogger())
	arb := NewArbitrage(ArbitrageConfig{
		Loop:  LoopConfig{Interval: time.Second, Workers: 3},
		Pairs: pairs,
		Costs: arbitrage.Costs{Absolute: 0.30},
	}, h.deps, det, nil, testLogger())

	require.NoError(t, arb.Tick(context.Background()))

	snap := h.risk.Snapshot()
	maxExposure := riskConfig().MaxPositionSize * riskConfig().InitialEquity
	assert.LessOrEqual(t, snap.OpenExposure, maxExposure+1e-9)
	assert.Len(t, snap.OpenPositions, 1)
	assert.Zero(t, snap.ReservedExposure)
	assert.Len(t, h.recent.List(domain.EventTradeFilled, 0), 1)
	assert.Len(t, h.recent.List(domain.EventTradeRejected, 0), 2)
}

func TestArbitrageTick_PositionMonitor(t *testing.T) {
	h := newHarness(nil)
	arb := newArb(h)
	h.prices.set("SOL/USDC", map[domain.Venue]float64{"jupiter": 180, "coingecko": 182})
	require.NoError(t, arb.Tick(context.Background()))
	require.Len(t, h.risk.Snapshot().OpenPositions, 1)

	// Both venues rally past take-profit (180 * 1.05 = 189).
	h.prices.set("SOL/USDC", map[domain.Venue]float64{"jupiter": 195, "coingecko": 195})
	require.NoError(t, arb.Tick(context.Background()))

	assert.Empty(t, h.risk.Snapshot().OpenPositions)
	closed := h.recent.List(domain.EventPositionClosed, 0)
	require.Len(t, closed, 1)
	assert.Equal(t, string(domain.PositionClosedTP), closed[0].Reason)

	var journaled domain.Position
	for _, p := range h.journal.positions {
		journaled = p
	}
	assert.Equal(t, domain.PositionClosedTP, journaled.Status)
}

type zeroSizeRisk struct{ RiskGate }

func (zeroSizeRisk) Evaluate(context.Context, domain.Opportunity) risk.Decision {
	return risk.Decision{Approved: true, Size: -1}
}

func (zeroSizeRisk) MarkPrice(context.Context, domain.Pair, float64) []domain.Position { return nil }

func (zeroSizeRisk) Release(context.Context, string) bool { return false }

func TestArbitrageRun_StopsOnInvariant(t *testing.T) {
	h := newHarness(nil)
	h.deps.Risk = zeroSizeRisk{}
	h.prices.set("SOL/USDC", map[domain.Venue]float64{"jupiter": 180, "coingecko": 182})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := newArb(h).Run(ctx)
	assert.ErrorIs(t, err, domain.ErrInvariant)
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newArb(h).Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestRun_RejectsNonPositiveInterval(t *testing.T) {
	h := newHarness(nil)
	s := NewSwing(SwingConfig{Indicators: DefaultIndicators()}, h.deps, testLogger())
	assert.ErrorIs(t, s.Run(context.Background()), domain.ErrInvariant)
}

func TestIndicatorSignal(t *testing.T) {
	cfg := DefaultIndicators()
	tests := []struct {
		name  string
		price float64
		ind   Indicators
		side  domain.Side
		conf  float64
		ok    bool
	}{
		{
			name: "long", price: 105,
			ind:  Indicators{RSI: 25, EMAShort: 101, EMALong: 100, MACD: 0.5, MACDSignal: 0.2, SMA: 100},
			side: domain.SideBuy, conf: 1, ok: true,
		},
		{
			name: "short", price: 95,
			ind:  Indicators{RSI: 75, EMAShort: 99, EMALong: 100, MACD: -0.5, MACDSignal: -0.2, SMA: 100},
			side: domain.SideSell, conf: 1, ok: true,
		},
		{
			name: "long but below sma", price: 95,
			ind: Indicators{RSI: 25, EMAShort: 101, EMALong: 100, MACD: 0.5, MACDSignal: 0.2, SMA: 100},
		},
		{
			name: "neutral rsi", price: 105,
			ind: Indicators{RSI: 50, EMAShort: 101, EMALong: 100, MACD: 0.5, MACDSignal: 0.2, SMA: 100},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			side, conf, ok := cfg.Signal(tt.price, tt.ind)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.side, side)
				assert.InDelta(t, tt.conf, conf, 1e-9)
			}
		})
	}
}

func TestIndicatorCompute(t *testing.T) {
	cfg := DefaultIndicators()
	series := make([]float64, 80)
	for i := range series {
		series[i] = 100 + 5*math.Sin(float64(i)/6)
	}

	_, ok := cfg.Compute(series[:40])
	assert.False(t, ok)

	ind, ok := cfg.Compute(series)
	require.True(t, ok)
	assert.Greater(t, ind.RSI, 0.0)
	assert.Less(t, ind.RSI, 100.0)
	assert.InDelta(t, 100, ind.SMA, 5)
}

func TestSwingTick_BoundsHistory(t *testing.T) {
	h := newHarness(nil)
	h.prices.set("SOL/USDC", map[domain.Venue]float64{"jupiter": 180, "coingecko": 182})
	ind := DefaultIndicators()
	s := NewSwing(SwingConfig{
		Loop:        LoopConfig{Interval: time.Second},
		Pairs:       []PairConfig{solPair},
		Indicators:  ind,
		HistorySize: 60,
	}, h.deps, testLogger())

	for i := 0; i < 70; i++ {
		require.NoError(t, s.Tick(context.Background()))
	}
	assert.Equal(t, 60, s.HistoryLen("SOL/USDC"))
	// A flat series never signals.
	assert.Empty(t, h.recent.List(domain.EventSwingSignal, 0))
}

func TestSwingTick_SingleQuoteStillSamples(t *testing.T) {
	h := newHarness(nil)
	h.prices.set("SOL/USDC", map[domain.Venue]float64{"coingecko": 182})
	s := NewSwing(SwingConfig{Loop: LoopConfig{Interval: time.Second}, Pairs: []PairConfig{solPair}, Indicators: DefaultIndicators()}, h.deps, testLogger())

	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, 1, s.HistoryLen("SOL/USDC"))
}

func TestPrimaryVenue(t *testing.T) {
	prices := map[domain.Venue]domain.PricePoint{"b": {}, "c": {}}
	assert.Equal(t, domain.Venue("b"), primaryVenue([]domain.Venue{"a", "b", "c"}, prices))
	assert.Equal(t, domain.Venue(""), primaryVenue(nil, prices))
}
