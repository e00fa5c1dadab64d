// Package executor turns approved trades into fills. PaperExecutor simulates
// fills locally; LogExecutor records intent without trading.
package executor

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// FeeSchedule returns the taker fee for a venue as a fraction.
type FeeSchedule interface {
	FeeFraction(v domain.Venue) float64
}

// PaperConfig configures simulated fills.
type PaperConfig struct {
	// MaxSlippage bounds the random adverse price move, as a fraction.
	MaxSlippage float64
	// DedupTTL is how long a trade ID stays blocked after execution.
	DedupTTL time.Duration
	// CleanupInterval is how often Run purges expired trade IDs.
	CleanupInterval time.Duration
}

// PaperExecutor fills every valid trade at the limit price moved against the
// trader by a random slippage in [0, MaxSlippage).
type PaperExecutor struct {
	cfg    PaperConfig
	fees   FeeSchedule
	dedup  *Dedup
	now    func() time.Time
	logger *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// PaperOption customises a PaperExecutor.
type PaperOption func(*PaperExecutor)

// WithSeed makes slippage deterministic.
func WithSeed(seed int64) PaperOption {
	return func(p *PaperExecutor) { p.rng = rand.New(rand.NewSource(seed)) }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) PaperOption {
	return func(p *PaperExecutor) { p.now = now }
}

// NewPaperExecutor creates a paper executor.
func NewPaperExecutor(cfg PaperConfig, fees FeeSchedule, logger *slog.Logger, opts ...PaperOption) *PaperExecutor {
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 2 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 30 * time.Second
	}
	p := &PaperExecutor{
		cfg:    cfg,
		fees:   fees,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: logger.With(slog.String("component", "paper_executor")),
	}
	for _, o := range opts {
		o(p)
	}
	p.dedup = NewDedup(cfg.DedupTTL, p.now)
	return p
}

// Execute simulates a fill. Duplicate trade IDs and non-positive sizes or
// prices fail with *domain.ExecutionFailure.
func (p *PaperExecutor) Execute(ctx context.Context, trade domain.ApprovedTrade) (domain.Fill, error) {
	if err := ctx.Err(); err != nil {
		return domain.Fill{}, &domain.ExecutionFailure{TradeID: trade.ID, Reason: err.Error()}
	}
	if trade.Size <= 0 || trade.LimitPrice <= 0 {
		return domain.Fill{}, &domain.ExecutionFailure{TradeID: trade.ID, Reason: "non-positive size or price"}
	}
	if p.dedup.IsDuplicate(trade.ID) {
		return domain.Fill{}, &domain.ExecutionFailure{TradeID: trade.ID, Reason: "duplicate trade"}
	}

	slip := p.slippage()
	price := trade.LimitPrice * (1 + slip)
	if trade.Side == domain.SideSell {
		price = trade.LimitPrice * (1 - slip)
	}
	var fee float64
	if p.fees != nil {
		fee = trade.Size * p.fees.FeeFraction(trade.Venue)
	}

	f := domain.Fill{
		TradeID:       trade.ID,
		ExecutedPrice: price,
		FeesPaid:      fee,
		Timestamp:     p.now(),
		Reference:     "paper-" + uuid.NewString(),
	}
	p.logger.InfoContext(ctx, "paper_executor: filled",
		slog.String("trade_id", trade.ID),
		slog.String("pair", string(trade.Pair)),
		slog.String("venue", string(trade.Venue)),
		slog.String("side", string(trade.Side)),
		slog.Float64("size", trade.Size),
		slog.Float64("limit", trade.LimitPrice),
		slog.Float64("executed", price),
		slog.Float64("fee", fee),
	)
	return f, nil
}

func (p *PaperExecutor) slippage() float64 {
	if p.cfg.MaxSlippage <= 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64() * p.cfg.MaxSlippage
}

// Run purges expired trade IDs until ctx is cancelled.
func (p *PaperExecutor) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := p.dedup.Cleanup(); n > 0 {
				p.logger.Debug("paper_executor: dedup cleanup", slog.Int("removed", n))
			}
		}
	}
}

var _ domain.Executor = (*PaperExecutor)(nil)
