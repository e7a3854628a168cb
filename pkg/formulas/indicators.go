// Package formulas provides the indicator math used to enrich market
// snapshots. All calculators return nil rather than a guess when the
// series is too short for the requested period.
package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateEMA calculates the Exponential Moving Average over closes.
//
// Falls back to a simple mean when fewer than length bars are available,
// so early bars still produce a usable (if coarse) value.
func CalculateEMA(closes []float64, length int) *float64 {
	if len(closes) == 0 || length <= 0 {
		return nil
	}

	if len(closes) < length {
		sma := Mean(closes)
		return &sma
	}

	ema := talib.Ema(closes, length)
	if last := lastValid(ema); last != nil {
		return last
	}

	sma := Mean(closes[len(closes)-length:])
	return &sma
}

// CalculateSMA calculates the Simple Moving Average over the last length closes
func CalculateSMA(closes []float64, length int) *float64 {
	if len(closes) == 0 || length <= 0 {
		return nil
	}
	if len(closes) < length {
		sma := Mean(closes)
		return &sma
	}

	sma := talib.Sma(closes, length)
	return lastValid(sma)
}

// CalculateRSI calculates the Relative Strength Index (Wilder smoothing)
func CalculateRSI(closes []float64, length int) *float64 {
	if length <= 0 || len(closes) <= length {
		return nil
	}

	rsi := talib.Rsi(closes, length)
	return lastValid(rsi)
}

// CalculateATR calculates the Average True Range (Wilder smoothing).
// The three series must be equal length and longer than the period.
func CalculateATR(highs, lows, closes []float64, length int) *float64 {
	if length <= 0 || len(closes) <= length {
		return nil
	}
	if len(highs) != len(closes) || len(lows) != len(closes) {
		return nil
	}

	atr := talib.Atr(highs, lows, closes, length)
	return lastValid(atr)
}

// CalculateVWAP calculates the session volume-weighted average price:
// cumulative typical price x volume over cumulative volume.
func CalculateVWAP(highs, lows, closes, volumes []float64) *float64 {
	n := len(closes)
	if n == 0 || len(highs) != n || len(lows) != n || len(volumes) != n {
		return nil
	}

	var weighted, totalVolume float64
	for i := 0; i < n; i++ {
		typical := (highs[i] + lows[i] + closes[i]) / 3.0
		weighted += typical * volumes[i]
		totalVolume += volumes[i]
	}
	if totalVolume == 0 {
		return nil
	}

	vwap := weighted / totalVolume
	return &vwap
}

// RelativeVolume compares the latest bar's volume to the mean of the
// preceding lookback bars. Values above 1 mean heavier-than-usual trading.
func RelativeVolume(volumes []float64, lookback int) *float64 {
	if lookback <= 0 || len(volumes) <= lookback {
		return nil
	}

	recent := volumes[len(volumes)-1]
	baseline := Mean(volumes[len(volumes)-1-lookback : len(volumes)-1])
	if baseline == 0 {
		return nil
	}

	rel := recent / baseline
	return &rel
}

// PercentChange returns the percentage move from the first to the last close
func PercentChange(closes []float64) *float64 {
	if len(closes) < 2 || closes[0] == 0 {
		return nil
	}

	change := (closes[len(closes)-1] - closes[0]) / closes[0] * 100.0
	return &change
}

// lastValid returns a pointer to the last non-NaN value of a talib output
// series, or nil when every entry is NaN (series shorter than the period).
func lastValid(series []float64) *float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !isNaN(series[i]) {
			v := series[i]
			return &v
		}
	}
	return nil
}
