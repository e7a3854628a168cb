// Package market_regime classifies recent price action into a coarse
// regime label. The label is advisory context for decision runs; the
// validation gate only warns on "crash", it never blocks on regime.
package market_regime

import (
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/tradegate/tradegate/internal/domain"
	"github.com/tradegate/tradegate/pkg/formulas"
)

// Regime labels. Crash takes precedence over volatile, volatile over
// the trend labels.
const (
	RegimeNormal   = "normal"
	RegimeBull     = "bull"
	RegimeBear     = "bear"
	RegimeVolatile = "volatile"
	RegimeCrash    = "crash"
)

// Config holds detection thresholds
type Config struct {
	ShortWindow   int     // fast SMA window for the trend read
	LongWindow    int     // slow SMA window for the trend read
	VolWindow     int     // bars per realized-volatility sample
	VolPercentile float64 // sample percentile that marks volatile
	MinVol        float64 // absolute per-bar stddev floor for volatile
	CrashDrawdown float64 // peak-to-last drawdown that marks crash
}

// DefaultConfig returns the standard thresholds: 50/200 trend lines,
// 20-bar volatility samples flagged above their own 90th percentile and
// a 0.5% absolute floor, crash at an 8% drawdown.
func DefaultConfig() Config {
	return Config{
		ShortWindow:   50,
		LongWindow:    200,
		VolWindow:     20,
		VolPercentile: 0.90,
		MinVol:        0.005,
		CrashDrawdown: 0.08,
	}
}

// Detector classifies bar series into a regime label
type Detector struct {
	cfg Config
	log zerolog.Logger
}

// NewDetector creates a regime detector. Zero-value config fields fall
// back to defaults.
func NewDetector(cfg Config, log zerolog.Logger) *Detector {
	defaults := DefaultConfig()
	if cfg.ShortWindow == 0 {
		cfg.ShortWindow = defaults.ShortWindow
	}
	if cfg.LongWindow == 0 {
		cfg.LongWindow = defaults.LongWindow
	}
	if cfg.VolWindow == 0 {
		cfg.VolWindow = defaults.VolWindow
	}
	if cfg.VolPercentile == 0 {
		cfg.VolPercentile = defaults.VolPercentile
	}
	if cfg.MinVol == 0 {
		cfg.MinVol = defaults.MinVol
	}
	if cfg.CrashDrawdown == 0 {
		cfg.CrashDrawdown = defaults.CrashDrawdown
	}

	return &Detector{
		cfg: cfg,
		log: log.With().Str("service", "market_regime").Logger(),
	}
}

// Detect classifies the bars, oldest first. Too little history reads as
// normal: the detector never manufactures a signal it cannot support.
func (d *Detector) Detect(bars []domain.Bar) string {
	closes := make([]float64, 0, len(bars))
	for _, bar := range bars {
		if bar.Close > 0 {
			closes = append(closes, bar.Close)
		}
	}
	if len(closes) <= d.cfg.VolWindow {
		return RegimeNormal
	}

	if dd := drawdown(closes); dd >= d.cfg.CrashDrawdown {
		d.log.Debug().Float64("drawdown", dd).Msg("Crash regime detected")
		return RegimeCrash
	}

	if d.volatilityElevated(closes) {
		return RegimeVolatile
	}

	return d.trend(closes)
}

// drawdown is the fractional drop from the highest close in the window
// to the latest close
func drawdown(closes []float64) float64 {
	peak := closes[0]
	for _, c := range closes {
		if c > peak {
			peak = c
		}
	}
	if peak <= 0 {
		return 0
	}
	return (peak - closes[len(closes)-1]) / peak
}

// volatilityElevated compares the latest realized-volatility sample
// against the configured percentile of all samples in the window. The
// MinVol floor keeps a quiet series from reading as elevated on noise
// alone.
func (d *Detector) volatilityElevated(closes []float64) bool {
	returns := formulas.Returns(closes)
	w := d.cfg.VolWindow
	if len(returns) < 2*w {
		return false
	}

	samples := make([]float64, 0, len(returns)-w+1)
	for i := 0; i+w <= len(returns); i++ {
		samples = append(samples, formulas.StdDev(returns[i:i+w]))
	}
	current := samples[len(samples)-1]
	if current <= d.cfg.MinVol {
		return false
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	threshold := stat.Quantile(d.cfg.VolPercentile, stat.Empirical, sorted, nil)

	return current > threshold
}

// trend reads the fast/slow SMA relation with the latest close as
// confirmation. Not enough bars for the slow line reads as normal.
func (d *Detector) trend(closes []float64) string {
	if len(closes) < d.cfg.LongWindow {
		return RegimeNormal
	}

	fast := formulas.CalculateSMA(closes, d.cfg.ShortWindow)
	slow := formulas.CalculateSMA(closes, d.cfg.LongWindow)
	if fast == nil || slow == nil {
		return RegimeNormal
	}

	last := closes[len(closes)-1]
	switch {
	case *fast > *slow && last > *fast:
		return RegimeBull
	case *fast < *slow && last < *fast:
		return RegimeBear
	default:
		return RegimeNormal
	}
}
