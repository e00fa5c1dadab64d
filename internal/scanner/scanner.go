// Package scanner runs the periodic strategy loops. Each tick fetches
// prices for the configured pairs, looks for trades, gates them through the
// risk manager and hands approved trades to the executor.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/arbscan/internal/domain"
	"github.com/alanyoungcy/arbscan/internal/risk"
)

// PairConfig is one traded pair with its venues in fallback order.
type PairConfig struct {
	Pair   domain.Pair
	Chain  domain.Chain
	Venues []domain.Venue
}

// PriceSource returns per-venue quotes for a pair.
type PriceSource interface {
	PricesFor(ctx context.Context, pair domain.Pair, venues []domain.Venue) (map[domain.Venue]domain.PricePoint, error)
}

// RiskGate is the portfolio-side collaborator of both loops.
type RiskGate interface {
	Evaluate(ctx context.Context, opp domain.Opportunity) risk.Decision
	EvaluateSwing(ctx context.Context, sig domain.SwingSignal) risk.Decision
	OnFill(ctx context.Context, trade domain.ApprovedTrade, fill domain.Fill) (domain.Position, error)
	Release(ctx context.Context, tradeID string) bool
	MarkPrice(ctx context.Context, pair domain.Pair, price float64) []domain.Position
}

// TickObserver is told about every completed tick.
type TickObserver interface {
	ObserveTick(strategy string, d time.Duration, err error)
}

// LoopConfig controls one loop's schedule.
type LoopConfig struct {
	Interval time.Duration
	// TickTimeout bounds each tick. Defaults to Interval.
	TickTimeout time.Duration
	// Workers bounds the pairs processed concurrently.
	Workers int
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.TickTimeout <= 0 {
		c.TickTimeout = c.Interval
	}
	if c.Workers < 1 {
		c.Workers = 4
	}
	return c
}

// Deps are the collaborators shared by both loops.
type Deps struct {
	Prices   PriceSource
	Risk     RiskGate
	Executor domain.Executor
	// Journal is optional.
	Journal domain.Journal
	Sink    domain.EventSink
	// Observer is optional.
	Observer TickObserver
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) emit(ctx context.Context, ev domain.Event) {
	if d.Sink == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = d.now()
	}
	d.Sink.Emit(ctx, ev)
}

// runLoop calls tick immediately and then every interval until ctx is done.
// A tick error wrapping domain.ErrInvariant stops the loop; anything else is
// logged and the loop continues.
func runLoop(ctx context.Context, name string, cfg LoopConfig, deps Deps, logger *slog.Logger, tick func(context.Context) error) error {
	if cfg.Interval <= 0 {
		return fmt.Errorf("scanner: %s: interval must be positive: %w", name, domain.ErrInvariant)
	}
	logger.Info("scanner: loop started",
		slog.String("strategy", name),
		slog.Duration("interval", cfg.Interval),
	)
	defer logger.Info("scanner: loop stopped", slog.String("strategy", name))

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		start := time.Now()
		tctx, cancel := context.WithTimeout(ctx, cfg.TickTimeout)
		err := tick(tctx)
		cancel()
		if deps.Observer != nil {
			deps.Observer.ObserveTick(name, time.Since(start), err)
		}

		switch {
		case err == nil:
		case errors.Is(err, domain.ErrInvariant):
			logger.Error("scanner: invariant violated, stopping loop",
				slog.String("strategy", name),
				slog.String("error", err.Error()),
			)
			return err
		case ctx.Err() != nil:
			return nil
		default:
			logger.Warn("scanner: tick failed",
				slog.String("strategy", name),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// dispatch executes an approved trade and records the fill. Execution
// failures release the trade's reserved headroom and leave portfolio state
// otherwise untouched; only an invariant violation from the risk manager is
// returned.
func dispatch(ctx context.Context, deps Deps, trade domain.ApprovedTrade, logger *slog.Logger) error {
	deps.emit(ctx, domain.Event{
		Kind:     domain.EventTradeApproved,
		Strategy: trade.Strategy,
		Pair:     trade.Pair,
		Venue:    trade.Venue,
		Payload:  trade,
	})

	fill, err := deps.Executor.Execute(ctx, trade)
	if err != nil {
		deps.Risk.Release(context.WithoutCancel(ctx), trade.ID)
		reason := err.Error()
		var failure *domain.ExecutionFailure
		if errors.As(err, &failure) {
			reason = failure.Reason
		}
		logger.WarnContext(ctx, "scanner: execution failed",
			slog.String("trade_id", trade.ID),
			slog.String("pair", string(trade.Pair)),
			slog.String("reason", reason),
		)
		deps.emit(ctx, domain.Event{
			Kind:     domain.EventExecutionFailed,
			Strategy: trade.Strategy,
			Pair:     trade.Pair,
			Venue:    trade.Venue,
			Reason:   reason,
		})
		return nil
	}

	// The fill happened; record it even if the tick deadline has passed.
	rctx := context.WithoutCancel(ctx)
	pos, err := deps.Risk.OnFill(rctx, trade, fill)
	if err != nil {
		return fmt.Errorf("scanner: record fill %s: %w", trade.ID, err)
	}
	deps.emit(rctx, domain.Event{
		Kind:     domain.EventTradeFilled,
		Strategy: trade.Strategy,
		Pair:     trade.Pair,
		Venue:    trade.Venue,
		Payload:  fill,
	})

	if deps.Journal != nil {
		if err := deps.Journal.RecordFill(rctx, trade, fill); err != nil {
			logger.WarnContext(ctx, "scanner: journal fill failed", slog.String("error", err.Error()))
		}
		journalPosition(rctx, deps, pos, logger)
	}
	return nil
}

// monitor marks open positions on pair to price and journals any that
// closed.
func monitor(ctx context.Context, deps Deps, pair domain.Pair, price float64, logger *slog.Logger) {
	for _, pos := range deps.Risk.MarkPrice(ctx, pair, price) {
		if deps.Journal != nil {
			journalPosition(context.WithoutCancel(ctx), deps, pos, logger)
		}
	}
}

func journalPosition(ctx context.Context, deps Deps, pos domain.Position, logger *slog.Logger) {
	if err := deps.Journal.UpsertPosition(ctx, pos); err != nil {
		logger.WarnContext(ctx, "scanner: journal position failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}

// referencePrice is the mean of the tick's quotes.
func referencePrice(prices map[domain.Venue]domain.PricePoint) float64 {
	var sum float64
	var n int
	for _, pp := range prices {
		if pp.Price > 0 {
			sum += pp.Price
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// tradeID is the reservation id of an approval, or a fresh id when the gate
// did not issue one.
func tradeID(d risk.Decision) string {
	if d.TradeID != "" {
		return d.TradeID
	}
	return uuid.NewString()
}

func errInvalidSize(pair domain.Pair, size float64) error {
	return fmt.Errorf("scanner: %s: approved size %.4f: %w", pair, size, domain.ErrInvariant)
}
