package executor

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// LogExecutor is the live-mode executor used when no external executor is
// attached. It records the approved trade and reports it as not executed,
// so no position is ever opened.
type LogExecutor struct {
	logger *slog.Logger
}

// NewLogExecutor creates a LogExecutor.
func NewLogExecutor(logger *slog.Logger) *LogExecutor {
	return &LogExecutor{logger: logger.With(slog.String("component", "log_executor"))}
}

// Execute logs the trade and returns an ExecutionFailure.
func (l *LogExecutor) Execute(ctx context.Context, trade domain.ApprovedTrade) (domain.Fill, error) {
	l.logger.InfoContext(ctx, "log_executor: approved trade (no executor attached)",
		slog.String("trade_id", trade.ID),
		slog.String("strategy", trade.Strategy),
		slog.String("pair", string(trade.Pair)),
		slog.String("venue", string(trade.Venue)),
		slog.String("side", string(trade.Side)),
		slog.Float64("size", trade.Size),
		slog.Float64("limit", trade.LimitPrice),
		slog.Float64("stop_loss", trade.StopLoss),
		slog.Float64("take_profit", trade.TakeProfit),
	)
	return domain.Fill{}, &domain.ExecutionFailure{TradeID: trade.ID, Reason: "no live executor attached"}
}

var _ domain.Executor = (*LogExecutor)(nil)
