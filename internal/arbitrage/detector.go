// Package arbitrage finds cost-adjusted price discrepancies between venues
// quoting the same pair.
package arbitrage

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// Config sets the emission thresholds.
type Config struct {
	// MinNetSpread is the smallest net spread, as a fraction, worth reporting.
	MinNetSpread float64
	// MinLiquidity is the smallest known per-venue liquidity a leg may have.
	// Venues with unknown (zero) liquidity are not filtered.
	MinLiquidity float64
}

// Detector compares every ordered venue pair for one trading pair.
type Detector struct {
	cfg    Config
	logger *slog.Logger
}

// NewDetector creates a detector.
func NewDetector(cfg Config, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "arb_detector")),
	}
}

// Detect returns every qualifying opportunity for pair, most profitable
// first. For each ordered venue pair (A, B) with A != B it computes
//
//	gross = (pB - pA) / pA
//	net   = gross - model.Cost(A, B, pair, pA)
//
// and emits when net >= MinNetSpread and both legs carry enough known
// liquidity. Ties sort by buy venue, then sell venue.
func (d *Detector) Detect(pair domain.Pair, prices map[domain.Venue]domain.PricePoint, model CostModel) []domain.Opportunity {
	venues := make([]domain.Venue, 0, len(prices))
	for v, pp := range prices {
		if pp.Price <= 0 {
			d.logger.Warn("arb_detector: ignoring non-positive price",
				slog.String("pair", string(pair)),
				slog.String("venue", string(v)),
				slog.Float64("price", pp.Price),
			)
			continue
		}
		venues = append(venues, v)
	}
	sort.Slice(venues, func(i, j int) bool { return venues[i] < venues[j] })

	var opps []domain.Opportunity
	for _, buy := range venues {
		for _, sell := range venues {
			if buy == sell {
				continue
			}
			opp, ok := d.evaluate(pair, prices[buy], prices[sell], model)
			if ok {
				opps = append(opps, opp)
			}
		}
	}

	sort.SliceStable(opps, func(i, j int) bool {
		a, b := opps[i], opps[j]
		if a.NetSpread != b.NetSpread {
			return a.NetSpread > b.NetSpread
		}
		if a.BuyVenue != b.BuyVenue {
			return a.BuyVenue < b.BuyVenue
		}
		return a.SellVenue < b.SellVenue
	})
	return opps
}

func (d *Detector) evaluate(pair domain.Pair, buy, sell domain.PricePoint, model CostModel) (domain.Opportunity, bool) {
	if sell.Price <= buy.Price {
		return domain.Opportunity{}, false
	}
	if !d.liquid(buy) || !d.liquid(sell) {
		return domain.Opportunity{}, false
	}

	gross := (sell.Price - buy.Price) / buy.Price
	cost := model.Cost(buy.Venue, sell.Venue, pair, buy.Price)
	net := gross - cost
	if net < d.cfg.MinNetSpread {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		ID:                 uuid.NewString(),
		Pair:               pair,
		BuyVenue:           buy.Venue,
		SellVenue:          sell.Venue,
		BuyPrice:           buy.Price,
		SellPrice:          sell.Price,
		GrossSpread:        gross,
		EstimatedCost:      cost,
		NetSpread:          net,
		AvailableLiquidity: minKnown(buy.Liquidity, sell.Liquidity),
		ObservedAt:         older(buy.ObservedAt, sell.ObservedAt),
	}, true
}

func (d *Detector) liquid(pp domain.PricePoint) bool {
	return pp.Liquidity == 0 || pp.Liquidity >= d.cfg.MinLiquidity
}

// Top returns the most profitable opportunity for pair, if any qualifies.
func (d *Detector) Top(pair domain.Pair, prices map[domain.Venue]domain.PricePoint, model CostModel) (domain.Opportunity, bool) {
	opps := d.Detect(pair, prices, model)
	if len(opps) == 0 {
		return domain.Opportunity{}, false
	}
	return opps[0], true
}

// minKnown returns the smaller positive value, or zero when both are unknown.
func minKnown(a, b float64) float64 {
	switch {
	case a <= 0:
		return b
	case b <= 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}

func older(a, b time.Time) time.Time {
	if a.IsZero() || (!b.IsZero() && b.Before(a)) {
		return b
	}
	return a
}
