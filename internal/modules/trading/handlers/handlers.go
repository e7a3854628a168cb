// Package handlers provides HTTP handlers for triggering decision runs
// and browsing recorded decisions.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/domain"
	"github.com/tradegate/tradegate/internal/modules/audit"
	"github.com/tradegate/tradegate/internal/modules/trading"
)

// TradingHandlers contains HTTP handlers for the trading API
type TradingHandlers struct {
	log  zerolog.Logger
	orch *trading.Orchestrator
	repo *audit.Repository
}

// NewTradingHandlers creates a new trading handlers instance
func NewTradingHandlers(orch *trading.Orchestrator, repo *audit.Repository, log zerolog.Logger) *TradingHandlers {
	return &TradingHandlers{
		log:  log.With().Str("handler", "trading").Logger(),
		orch: orch,
		repo: repo,
	}
}

// HandleRecentDecisions handles GET /api/decisions
func (h *TradingHandlers) HandleRecentDecisions(w http.ResponseWriter, r *http.Request) {
	decisions, err := h.repo.RecentDecisions(r.Context(), queryLimit(r))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list decisions")
		h.writeError(w, http.StatusInternalServerError, "Failed to list decisions")
		return
	}
	if decisions == nil {
		decisions = []audit.Decision{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"decisions": decisions,
		"count":     len(decisions),
	})
}

// HandleDecisionsBySymbol handles GET /api/decisions/{symbol}
func (h *TradingHandlers) HandleDecisionsBySymbol(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	decisions, err := h.repo.DecisionsBySymbol(r.Context(), symbol, queryLimit(r))
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to list decisions")
		h.writeError(w, http.StatusInternalServerError, "Failed to list decisions")
		return
	}
	if decisions == nil {
		decisions = []audit.Decision{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":    symbol,
		"decisions": decisions,
		"count":     len(decisions),
	})
}

// HandleRunDecision handles POST /api/decisions/run. The run is
// synchronous; the full decision is returned once the pipeline finishes.
func (h *TradingHandlers) HandleRunDecision(w http.ResponseWriter, r *http.Request) {
	var req trading.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	decision, err := h.orch.Run(r.Context(), req)
	if err != nil {
		if domain.IsValidationError(err) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Str("symbol", req.Symbol).Msg("Decision run failed")
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, decision)
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}

// writeJSON writes a JSON response
func (h *TradingHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *TradingHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
