package arbitrage

import "github.com/alanyoungcy/arbscan/internal/domain"

// CostModel estimates the round-trip cost of buying on one venue and selling
// on another, as a fraction of the buy price.
type CostModel interface {
	Cost(buy, sell domain.Venue, pair domain.Pair, buyPrice float64) float64
}

// Costs is the standard CostModel: per-venue taker fees for both legs, a
// per-unit absolute cost normalised by the buy price, and per-venue gas
// normalised by the reference trade notional.
type Costs struct {
	// FeeBps is the taker fee per venue in basis points.
	FeeBps map[domain.Venue]float64
	// DefaultFeeBps applies to venues missing from FeeBps.
	DefaultFeeBps float64
	// Absolute is a fixed cost per unit of base asset, in quote currency.
	Absolute float64
	// Gas is the network cost of one swap per venue, in quote currency.
	Gas map[domain.Venue]float64
	// Notional is the reference trade size used to normalise gas.
	Notional float64
}

// Cost implements CostModel.
func (c Costs) Cost(buy, sell domain.Venue, _ domain.Pair, buyPrice float64) float64 {
	cost := (c.fee(buy) + c.fee(sell)) / 10000
	if c.Absolute > 0 && buyPrice > 0 {
		cost += c.Absolute / buyPrice
	}
	if c.Notional > 0 {
		cost += (c.Gas[buy] + c.Gas[sell]) / c.Notional
	}
	return cost
}

func (c Costs) fee(v domain.Venue) float64 {
	if bps, ok := c.FeeBps[v]; ok {
		return bps
	}
	return c.DefaultFeeBps
}

// FeeFraction returns the single-leg fee for v as a fraction.
func (c Costs) FeeFraction(v domain.Venue) float64 {
	return c.fee(v) / 10000
}

var _ CostModel = Costs{}
