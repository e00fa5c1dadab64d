package domain

import "time"

// Opportunity is a cost-adjusted cross-venue price discrepancy. Spreads are
// fractions (0.015 == 1.5%). NetSpread always equals GrossSpread minus
// EstimatedCost.
type Opportunity struct {
	ID            string  `json:"id"`
	Pair          Pair    `json:"pair"`
	BuyVenue      Venue   `json:"buy_venue"`
	SellVenue     Venue   `json:"sell_venue"`
	BuyPrice      float64 `json:"buy_price"`
	SellPrice     float64 `json:"sell_price"`
	GrossSpread   float64 `json:"gross_spread"`
	EstimatedCost float64 `json:"estimated_cost"`
	NetSpread     float64 `json:"net_spread"`
	// AvailableLiquidity is the smaller of both legs' quoted liquidity;
	// zero means unknown.
	AvailableLiquidity float64   `json:"available_liquidity"`
	ObservedAt         time.Time `json:"observed_at"`
}

// SwingSignal is a directional entry proposed by the indicator strategy.
type SwingSignal struct {
	Pair       Pair      `json:"pair"`
	Venue      Venue     `json:"venue"`
	Side       Side      `json:"side"`
	Price      float64   `json:"price"`
	Confidence float64   `json:"confidence"`
	RSI        float64   `json:"rsi"`
	EMAShort   float64   `json:"ema_short"`
	EMALong    float64   `json:"ema_long"`
	MACD       float64   `json:"macd"`
	MACDSignal float64   `json:"macd_signal"`
	SMA        float64   `json:"sma"`
	ObservedAt time.Time `json:"observed_at"`
}
