package domain

import (
	"fmt"
	"time"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ApprovedTrade is handed to an Executor after the risk gate approves an
// opportunity. Size is notional in the quote currency.
type ApprovedTrade struct {
	ID         string    `json:"id"`
	Strategy   string    `json:"strategy"`
	Pair       Pair      `json:"pair"`
	Venue      Venue     `json:"venue"`
	Side       Side      `json:"side"`
	Size       float64   `json:"size"`
	LimitPrice float64   `json:"limit_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	CreatedAt  time.Time `json:"created_at"`
	// Opportunity is set for arbitrage trades.
	Opportunity *Opportunity `json:"opportunity,omitempty"`
}

// Fill confirms execution of an ApprovedTrade.
type Fill struct {
	TradeID       string    `json:"trade_id"`
	ExecutedPrice float64   `json:"executed_price"`
	FeesPaid      float64   `json:"fees_paid"`
	Timestamp     time.Time `json:"timestamp"`
	Reference     string    `json:"reference,omitempty"`
}

// ExecutionFailure is returned by an Executor when a trade was not executed.
// Portfolio state must not change on failure.
type ExecutionFailure struct {
	TradeID string
	Reason  string
}

func (e *ExecutionFailure) Error() string {
	return fmt.Sprintf("execution of %s failed: %s", e.TradeID, e.Reason)
}
