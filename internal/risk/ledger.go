package risk

import "github.com/shopspring/decimal"

// ledger holds account balances in exact decimal arithmetic so that repeated
// realisations do not drift.
type ledger struct {
	equity      decimal.Decimal
	peak        decimal.Decimal
	daily       decimal.Decimal
	total       decimal.Decimal
	maxDrawdown float64
}

func newLedger(initial float64) ledger {
	eq := decimal.NewFromFloat(initial)
	return ledger{equity: eq, peak: eq}
}

// realize books a closed position's PnL. Peak equity never decreases.
func (l *ledger) realize(pnl decimal.Decimal) {
	l.equity = l.equity.Add(pnl)
	l.daily = l.daily.Add(pnl)
	l.total = l.total.Add(pnl)
	if l.equity.GreaterThan(l.peak) {
		l.peak = l.equity
	}
	if dd := l.drawdown(); dd > l.maxDrawdown {
		l.maxDrawdown = dd
	}
}

// drawdown is (peak - equity) / peak.
func (l *ledger) drawdown() float64 {
	if !l.peak.IsPositive() {
		return 0
	}
	return l.peak.Sub(l.equity).Div(l.peak).InexactFloat64()
}
