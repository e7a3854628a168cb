// Package handlers provides HTTP handlers for browsing the audit trail.
// Read-only: the trail is append-only and nothing here writes to it.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/modules/audit"
)

// AuditHandlers contains HTTP handlers for the audit API
type AuditHandlers struct {
	log  zerolog.Logger
	repo *audit.Repository
}

// NewAuditHandlers creates a new audit handlers instance
func NewAuditHandlers(repo *audit.Repository, log zerolog.Logger) *AuditHandlers {
	return &AuditHandlers{
		log:  log.With().Str("handler", "audit").Logger(),
		repo: repo,
	}
}

// HandleRecentDecisions handles GET /api/audit/decisions
func (h *AuditHandlers) HandleRecentDecisions(w http.ResponseWriter, r *http.Request) {
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

// HandleDecisionsBySymbol handles GET /api/audit/decisions/{symbol}
func (h *AuditHandlers) HandleDecisionsBySymbol(w http.ResponseWriter, r *http.Request) {
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

// HandleOpenOrders handles GET /api/audit/orders/open
func (h *AuditHandlers) HandleOpenOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.repo.OpenOrders(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list open orders")
		h.writeError(w, http.StatusInternalServerError, "Failed to list open orders")
		return
	}
	if orders == nil {
		orders = []audit.OrderRecord{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"count":  len(orders),
	})
}

// HandleOrdersBySymbol handles GET /api/audit/orders/{symbol}
func (h *AuditHandlers) HandleOrdersBySymbol(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	orders, err := h.repo.OrdersBySymbol(r.Context(), symbol, queryLimit(r))
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to list orders")
		h.writeError(w, http.StatusInternalServerError, "Failed to list orders")
		return
	}
	if orders == nil {
		orders = []audit.OrderRecord{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"orders": orders,
		"count":  len(orders),
	})
}

// HandleOutcomesForOrder handles GET /api/audit/outcomes/{orderID}
func (h *AuditHandlers) HandleOutcomesForOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	outcomes, err := h.repo.OutcomesForOrder(r.Context(), orderID)
	if err != nil {
		h.log.Error().Err(err).Str("order_id", orderID).Msg("Failed to list outcomes")
		h.writeError(w, http.StatusInternalServerError, "Failed to list outcomes")
		return
	}
	if outcomes == nil {
		outcomes = []audit.TradeOutcome{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"order_id": orderID,
		"outcomes": outcomes,
		"count":    len(outcomes),
	})
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}

// writeJSON writes a JSON response
func (h *AuditHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *AuditHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
