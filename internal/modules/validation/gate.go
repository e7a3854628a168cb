// Package validation implements the stateless tradability gate that runs
// before any decision logic. Checks never short-circuit: every violated
// condition is reported so the audit trail shows the full picture, not
// just the first failure.
package validation

import (
	"time"

	"github.com/rs/zerolog"
)

// Hard violation and soft warning codes, in the order they are checked
const (
	ViolationInsufficientLiquidity = "insufficient_liquidity"
	ViolationTradingHalted         = "trading_halted"
	ViolationBlackoutWindow        = "blackout_window"
	ViolationMarketClosed          = "market_closed"
	ViolationInsufficientBars      = "insufficient_bars_for_indicators"
	ViolationInvalidPrice          = "invalid_price"

	WarningRegime = "regime_warning"
)

// Regular and extended trading session bounds, minutes from midnight
const (
	sessionOpenMinutes   = 9*60 + 30 // 09:30
	sessionCloseMinutes  = 16 * 60   // 16:00
	extendedOpenMinutes  = 4 * 60    // 04:00
	extendedCloseMinutes = 20 * 60   // 20:00
)

// Result is the outcome of one validation pass. Passed is true exactly
// when no hard violation was recorded; soft warnings never block.
type Result struct {
	Passed         bool     `json:"passed"`
	HardViolations []string `json:"hard_violations"`
	SoftWarnings   []string `json:"soft_warnings"`
}

// Input carries everything the gate inspects for one symbol
type Input struct {
	Symbol        string
	Price         float64
	Volume24h     float64
	BarCount      int
	Regime        string
	EarningsToday bool
	FDAToday      bool
	Halted        bool
	ExtendedHours bool
	EnforceHours  bool
}

// Config holds the gate's thresholds. Now is injectable so the
// market-hours check is deterministic under test.
type Config struct {
	MinLiquidity float64
	MinBars      int
	Location     *time.Location
	Now          func() time.Time
}

// DefaultConfig returns the standard thresholds: a million shares of
// daily volume and enough bars for the 50-period indicators.
func DefaultConfig() Config {
	return Config{
		MinLiquidity: 1_000_000,
		MinBars:      50,
	}
}

// Gate runs the tradability checks
type Gate struct {
	cfg Config
	log zerolog.Logger
}

// NewGate creates a validation gate. Zero-value config fields fall back
// to defaults; the market session is evaluated in New York time unless a
// location is supplied.
func NewGate(cfg Config, log zerolog.Logger) *Gate {
	defaults := DefaultConfig()
	if cfg.MinLiquidity == 0 {
		cfg.MinLiquidity = defaults.MinLiquidity
	}
	if cfg.MinBars == 0 {
		cfg.MinBars = defaults.MinBars
	}
	if cfg.Location == nil {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.Local
		}
		cfg.Location = loc
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Gate{
		cfg: cfg,
		log: log.With().Str("service", "validation").Logger(),
	}
}

// Validate runs every check against the input and accumulates the
// violations. Deterministic for identical inputs under a frozen clock.
func (g *Gate) Validate(input Input) Result {
	var hard []string
	var soft []string

	if input.Symbol == "" || input.Volume24h < 0 || input.Volume24h < g.cfg.MinLiquidity {
		hard = append(hard, ViolationInsufficientLiquidity)
	}

	if input.Halted {
		hard = append(hard, ViolationTradingHalted)
	}

	if input.EarningsToday || input.FDAToday {
		hard = append(hard, ViolationBlackoutWindow)
	}

	if input.EnforceHours && !g.withinSession(input.ExtendedHours) {
		hard = append(hard, ViolationMarketClosed)
	}

	if input.BarCount < g.cfg.MinBars {
		hard = append(hard, ViolationInsufficientBars)
	}

	if input.Price <= 0 {
		hard = append(hard, ViolationInvalidPrice)
	}

	if input.Regime == "crash" {
		soft = append(soft, WarningRegime)
	}

	result := Result{
		Passed:         len(hard) == 0,
		HardViolations: hard,
		SoftWarnings:   soft,
	}

	if !result.Passed {
		g.log.Debug().
			Str("symbol", input.Symbol).
			Strs("violations", hard).
			Msg("Validation failed")
	}

	return result
}

// withinSession reports whether the injected clock falls inside the
// regular session, or the extended session when requested.
func (g *Gate) withinSession(extended bool) bool {
	now := g.cfg.Now().In(g.cfg.Location)
	minutes := now.Hour()*60 + now.Minute()

	if extended {
		return minutes >= extendedOpenMinutes && minutes < extendedCloseMinutes
	}
	return minutes >= sessionOpenMinutes && minutes < sessionCloseMinutes
}
