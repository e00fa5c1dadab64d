package scanner

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// IndicatorConfig sets the indicator periods and thresholds of the swing
// strategy.
type IndicatorConfig struct {
	RSIPeriod     int
	EMAShort      int
	EMALong       int
	MACDFast      int
	MACDSlow      int
	MACDSignal    int
	SMAPeriod     int
	MinHistory    int
	Oversold      float64
	Overbought    float64
	MinConfidence float64
}

// DefaultIndicators returns the standard swing settings.
func DefaultIndicators() IndicatorConfig {
	return IndicatorConfig{
		RSIPeriod:     14,
		EMAShort:      12,
		EMALong:       26,
		MACDFast:      12,
		MACDSlow:      26,
		MACDSignal:    9,
		SMAPeriod:     50,
		MinHistory:    50,
		Oversold:      30,
		Overbought:    70,
		MinConfidence: 0.3,
	}
}

// Indicators holds the latest value of each series.
type Indicators struct {
	RSI        float64
	EMAShort   float64
	EMALong    float64
	MACD       float64
	MACDSignal float64
	SMA        float64
}

// Compute evaluates the indicators over closes. It reports false when the
// history is too short for every series to have a value.
func (c IndicatorConfig) Compute(closes []float64) (Indicators, bool) {
	need := max(c.MinHistory, c.SMAPeriod, c.MACDSlow+c.MACDSignal, c.RSIPeriod+1)
	if len(closes) < need {
		return Indicators{}, false
	}
	macd, signal, _ := talib.Macd(closes, c.MACDFast, c.MACDSlow, c.MACDSignal)
	ind := Indicators{
		RSI:        last(talib.Rsi(closes, c.RSIPeriod)),
		EMAShort:   last(talib.Ema(closes, c.EMAShort)),
		EMALong:    last(talib.Ema(closes, c.EMALong)),
		MACD:       last(macd),
		MACDSignal: last(signal),
		SMA:        last(talib.Sma(closes, c.SMAPeriod)),
	}
	for _, v := range []float64{ind.RSI, ind.EMAShort, ind.EMALong, ind.MACD, ind.MACDSignal, ind.SMA} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Indicators{}, false
		}
	}
	return ind, true
}

// Signal applies the entry rules to the latest price:
//
//	long:  RSI < oversold   and EMA short > long and MACD > signal and price > SMA
//	short: RSI > overbought and EMA short < long and MACD < signal and price < SMA
//
// Confidence scales with RSI distance from the opposite band. Signals at or
// below MinConfidence are suppressed.
func (c IndicatorConfig) Signal(price float64, ind Indicators) (domain.Side, float64, bool) {
	band := c.Overbought - c.Oversold
	if band <= 0 {
		return "", 0, false
	}
	var (
		side domain.Side
		conf float64
	)
	switch {
	case ind.RSI < c.Oversold && ind.EMAShort > ind.EMALong && ind.MACD > ind.MACDSignal && price > ind.SMA:
		side, conf = domain.SideBuy, math.Min(1, (c.Overbought-ind.RSI)/band)
	case ind.RSI > c.Overbought && ind.EMAShort < ind.EMALong && ind.MACD < ind.MACDSignal && price < ind.SMA:
		side, conf = domain.SideSell, math.Min(1, (ind.RSI-c.Oversold)/band)
	default:
		return "", 0, false
	}
	if conf <= c.MinConfidence {
		return "", 0, false
	}
	return side, conf, true
}

func last(s []float64) float64 {
	if len(s) == 0 {
		return math.NaN()
	}
	return s[len(s)-1]
}
