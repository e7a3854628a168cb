// Package handlers exposes the risk governor's daily state over HTTP.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/modules/risk"
)

// RiskHandlers contains HTTP handlers for the risk API
type RiskHandlers struct {
	log      zerolog.Logger
	governor *risk.Governor
	limits   risk.Config
}

// NewRiskHandlers creates a new risk handlers instance. The limits are
// echoed alongside the live state so a reader can judge headroom.
func NewRiskHandlers(governor *risk.Governor, limits risk.Config, log zerolog.Logger) *RiskHandlers {
	return &RiskHandlers{
		log:      log.With().Str("handler", "risk").Logger(),
		governor: governor,
		limits:   limits,
	}
}

// HandleState handles GET /api/risk/state
func (h *RiskHandlers) HandleState(w http.ResponseWriter, r *http.Request) {
	state := h.governor.Snapshot()

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"state": state,
		"limits": map[string]interface{}{
			"max_risk_per_trade": h.limits.MaxRiskPerTrade,
			"max_daily_loss":     h.limits.MaxDailyLoss,
			"max_trades_per_day": h.limits.MaxTradesPerDay,
			"cooldown_seconds":   h.limits.CooldownSeconds,
			"account_size":       h.limits.AccountSize,
		},
	})
}

// writeJSON writes a JSON response
func (h *RiskHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
