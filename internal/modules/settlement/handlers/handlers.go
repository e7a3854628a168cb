// Package handlers provides HTTP handlers for settlement operations.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/domain"
	"github.com/tradegate/tradegate/internal/modules/settlement"
)

// SettlementHandlers contains HTTP handlers for the settlement API
type SettlementHandlers struct {
	log     zerolog.Logger
	service *settlement.Service
}

// NewSettlementHandlers creates a new settlement handlers instance
func NewSettlementHandlers(service *settlement.Service, log zerolog.Logger) *SettlementHandlers {
	return &SettlementHandlers{
		log:     log.With().Str("handler", "settlement").Logger(),
		service: service,
	}
}

// HandleRecordClose handles POST /api/settlement/close
func (h *SettlementHandlers) HandleRecordClose(w http.ResponseWriter, r *http.Request) {
	req := struct {
		OrderID string   `json:"order_id"`
		Symbol  string   `json:"symbol"`
		PnL     *float64 `json:"pnl"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PnL == nil {
		h.writeError(w, http.StatusBadRequest, "pnl is required")
		return
	}

	if err := h.service.RecordClose(r.Context(), req.Symbol, req.OrderID, *req.PnL); err != nil {
		if domain.IsValidationError(err) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Str("order_id", req.OrderID).Msg("Failed to record close")
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "closed",
		"order_id": req.OrderID,
		"pnl":      *req.PnL,
	})
}

// HandlePoll handles POST /api/settlement/poll, a manual trigger for
// the open-order sweep
func (h *SettlementHandlers) HandlePoll(w http.ResponseWriter, r *http.Request) {
	if err := h.service.PollOpenOrders(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Settlement poll failed")
		h.writeError(w, http.StatusInternalServerError, "Settlement poll failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "polled"})
}

// writeJSON writes a JSON response
func (h *SettlementHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *SettlementHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
