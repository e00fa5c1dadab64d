package domain

import "time"

// PositionStatus tracks the lifecycle of a position. Every status other than
// PositionOpen is terminal.
type PositionStatus string

const (
	PositionOpen         PositionStatus = "open"
	PositionClosedTP     PositionStatus = "closed_tp"
	PositionClosedSL     PositionStatus = "closed_sl"
	PositionClosedManual PositionStatus = "closed_manual"
)

// Closed reports whether the status is terminal.
func (s PositionStatus) Closed() bool {
	return s != PositionOpen
}

// Position is an exposure opened from a confirmed fill. Size is notional in
// the quote currency; Quantity is in base units.
type Position struct {
	ID          string         `json:"id"`
	TradeID     string         `json:"trade_id"`
	Strategy    string         `json:"strategy"`
	Pair        Pair           `json:"pair"`
	Venue       Venue          `json:"venue"`
	Side        Side           `json:"side"`
	EntryPrice  float64        `json:"entry_price"`
	Size        float64        `json:"size"`
	Quantity    float64        `json:"quantity"`
	FeesPaid    float64        `json:"fees_paid"`
	StopLoss    float64        `json:"stop_loss"`
	TakeProfit  float64        `json:"take_profit"`
	Status      PositionStatus `json:"status"`
	OpenedAt    time.Time      `json:"opened_at"`
	ClosedAt    *time.Time     `json:"closed_at,omitempty"`
	ExitPrice   *float64       `json:"exit_price,omitempty"`
	RealizedPnL float64        `json:"realized_pnl"`
}

// PnLAt returns the PnL the position would realise if closed at price.
func (p Position) PnLAt(price float64) float64 {
	if p.Side == SideSell {
		return (p.EntryPrice-price)*p.Quantity - p.FeesPaid
	}
	return (price-p.EntryPrice)*p.Quantity - p.FeesPaid
}

// PortfolioState is the snapshot of account state used for a single gating
// decision.
type PortfolioState struct {
	Equity           float64
	OpenPositions    []Position
	OpenExposure     float64
	// ReservedExposure is approved size awaiting a fill.
	ReservedExposure float64
	DailyRealizedPnL float64
	PeakEquity       float64
	CurrentDrawdown  float64
	DayStart         time.Time
	EmergencyStopped bool
}

// RiskMetrics summarises trading performance for the session.
type RiskMetrics struct {
	Equity           float64 `json:"equity"`
	PeakEquity       float64 `json:"peak_equity"`
	TotalPnL         float64 `json:"total_pnl"`
	DailyPnL         float64 `json:"daily_pnl"`
	CurrentDrawdown  float64 `json:"current_drawdown"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	WinRate          float64 `json:"win_rate"`
	TotalTrades      int     `json:"total_trades"`
	ProfitableTrades int     `json:"profitable_trades"`
	OpenPositions    int     `json:"open_positions"`
	OpenExposure     float64 `json:"open_exposure"`
	EmergencyStopped bool    `json:"emergency_stopped"`
}
