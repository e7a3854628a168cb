// Package risk implements the daily risk governor: a single-writer state
// machine that sizes positions and enforces the per-day loss, trade-count
// and cooldown limits. All state mutation happens under one mutex; the
// rest of the pipeline only ever sees copies.
package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PositionSize is the sized allocation for an approved trade. Computed
// once, never mutated.
type PositionSize struct {
	Shares        int     `json:"shares"`
	Notional      float64 `json:"notional"`
	RiskPerTrade  float64 `json:"risk_per_trade"`
	StopLossPrice float64 `json:"stop_loss_price"`
}

// State is the governor's daily accounting. TradesToday and DailyLoss
// only ever grow within a day; the lazy reset at the day boundary is the
// sole path back to zero.
type State struct {
	TradesToday int       `json:"trades_today"`
	DailyLoss   float64   `json:"daily_loss"`
	LastTradeAt time.Time `json:"last_trade_at"`
	ResetAnchor time.Time `json:"reset_anchor"`
}

// Config holds the governor's limits
type Config struct {
	MaxRiskPerTrade float64
	MaxDailyLoss    float64
	MaxTradesPerDay int
	CooldownSeconds int
	AccountSize     float64
	Now             func() time.Time
}

// DefaultConfig returns the standard limits: 1% risk per trade, 5% daily
// loss, 10 trades per day, 5 minute cooldown, 100k account.
func DefaultConfig() Config {
	return Config{
		MaxRiskPerTrade: 0.01,
		MaxDailyLoss:    0.05,
		MaxTradesPerDay: 10,
		CooldownSeconds: 300,
		AccountSize:     100_000,
	}
}

// Governor enforces the daily risk limits for one account
type Governor struct {
	cfg Config
	log zerolog.Logger

	mu    sync.Mutex
	state State
}

// NewGovernor creates a governor with its reset anchor at the current
// UTC midnight
func NewGovernor(cfg Config, log zerolog.Logger) *Governor {
	defaults := DefaultConfig()
	if cfg.MaxRiskPerTrade == 0 {
		cfg.MaxRiskPerTrade = defaults.MaxRiskPerTrade
	}
	if cfg.MaxDailyLoss == 0 {
		cfg.MaxDailyLoss = defaults.MaxDailyLoss
	}
	if cfg.MaxTradesPerDay == 0 {
		cfg.MaxTradesPerDay = defaults.MaxTradesPerDay
	}
	if cfg.CooldownSeconds == 0 {
		cfg.CooldownSeconds = defaults.CooldownSeconds
	}
	if cfg.AccountSize == 0 {
		cfg.AccountSize = defaults.AccountSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	g := &Governor{
		cfg: cfg,
		log: log.With().Str("service", "risk_governor").Logger(),
	}
	g.state.ResetAnchor = midnightUTC(cfg.Now())

	return g
}

// Evaluate applies the limit checks in order and, when everything passes,
// sizes the position. A NO_TRADE decision is approved with no position:
// there is nothing to govern.
func (g *Governor) Evaluate(symbol, decision string, confidence, price, atr, previousLoss float64) (bool, string, *PositionSize) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.resetDailyStateIfNeeded()

	if decision == "NO_TRADE" {
		return true, "Trade rejected by AI/strategy", nil
	}

	maxDailyLoss := g.cfg.MaxDailyLoss * g.cfg.AccountSize
	if previousLoss > maxDailyLoss || g.state.DailyLoss > maxDailyLoss {
		return false, "Max daily loss exceeded", nil
	}

	if g.state.TradesToday >= g.cfg.MaxTradesPerDay {
		return false, "Max trades per day exceeded", nil
	}

	cooldown := time.Duration(g.cfg.CooldownSeconds) * time.Second
	if !g.state.LastTradeAt.IsZero() && g.cfg.Now().Sub(g.state.LastTradeAt) < cooldown {
		return false, "In cooldown period", nil
	}

	if symbol == "" || price <= 0 {
		return false, "Invalid price or ATR data", nil
	}
	if atr <= 0 {
		return false, "ATR must be positive", nil
	}

	position := g.sizePosition(price, atr)

	maxRiskPerTrade := g.cfg.MaxRiskPerTrade * g.cfg.AccountSize
	if position.RiskPerTrade > maxRiskPerTrade {
		reason := fmt.Sprintf("Risk per trade $%.2f exceeds maximum $%.2f",
			position.RiskPerTrade, maxRiskPerTrade)
		return false, reason, nil
	}

	if g.state.DailyLoss+position.RiskPerTrade > maxDailyLoss {
		return false, "Trade would breach daily loss limit", nil
	}

	g.log.Info().
		Str("symbol", symbol).
		Str("decision", decision).
		Float64("confidence", confidence).
		Int("shares", position.Shares).
		Float64("risk_per_trade", position.RiskPerTrade).
		Msg("Trade approved by risk governor")

	return true, "Trade approved", position
}

// RecordTrade registers a settled trade. Every call increments the trade
// count and stamps the cooldown clock; only losses move DailyLoss. Wins
// never reduce it, that happens solely at the day boundary.
func (g *Governor) RecordTrade(symbol string, pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.resetDailyStateIfNeeded()

	g.state.TradesToday++
	g.state.LastTradeAt = g.cfg.Now()
	if pnl < 0 {
		g.state.DailyLoss += math.Abs(pnl)
	}

	g.log.Info().
		Str("symbol", symbol).
		Float64("pnl", pnl).
		Int("trades_today", g.state.TradesToday).
		Float64("daily_loss", g.state.DailyLoss).
		Msg("Trade recorded")
}

// Snapshot returns a copy of the current state
func (g *Governor) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.resetDailyStateIfNeeded()
	return g.state
}

// resetDailyStateIfNeeded zeroes the counters once "now" has crossed the
// anchor's next midnight. Caller must hold the mutex.
func (g *Governor) resetDailyStateIfNeeded() {
	now := g.cfg.Now()
	if now.Sub(g.state.ResetAnchor) < 24*time.Hour {
		return
	}

	g.log.Info().
		Int("trades_today", g.state.TradesToday).
		Float64("daily_loss", g.state.DailyLoss).
		Msg("Daily risk state reset")

	g.state.TradesToday = 0
	g.state.DailyLoss = 0
	g.state.LastTradeAt = time.Time{}
	g.state.ResetAnchor = midnightUTC(now)
}

// sizePosition computes the share count from the risk budget and a
// 2xATR stop distance. The floor-to-1 means a very wide stop can still
// produce a position whose risk exceeds the budget; Evaluate rejects
// that case explicitly.
func (g *Governor) sizePosition(price, atr float64) *PositionSize {
	stopDistance := atr * 2

	shares := int(g.cfg.AccountSize * g.cfg.MaxRiskPerTrade / stopDistance)
	if shares < 1 {
		shares = 1
	}

	return &PositionSize{
		Shares:        shares,
		Notional:      float64(shares) * price,
		RiskPerTrade:  float64(shares) * stopDistance,
		StopLossPrice: price - stopDistance,
	}
}

func midnightUTC(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}
