// Package handlers provides HTTP handlers for the symbol registry.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/domain"
	"github.com/tradegate/tradegate/internal/modules/symbols"
)

// SymbolHandlers contains HTTP handlers for the symbols API
type SymbolHandlers struct {
	log     zerolog.Logger
	service *symbols.Service
}

// NewSymbolHandlers creates a new symbol handlers instance
func NewSymbolHandlers(service *symbols.Service, log zerolog.Logger) *SymbolHandlers {
	return &SymbolHandlers{
		log:     log.With().Str("handler", "symbols").Logger(),
		service: service,
	}
}

// HandleListSymbols handles GET /api/symbols
func (h *SymbolHandlers) HandleListSymbols(w http.ResponseWriter, r *http.Request) {
	onlyEnabled := r.URL.Query().Get("enabled") == "true"

	list, err := h.service.List(r.Context(), onlyEnabled)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list symbols")
		h.writeError(w, http.StatusInternalServerError, "Failed to list symbols")
		return
	}
	if list == nil {
		list = []symbols.Entry{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbols": list,
		"count":   len(list),
	})
}

// HandleAddSymbol handles POST /api/symbols
func (h *SymbolHandlers) HandleAddSymbol(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Symbol  string `json:"symbol"`
		Enabled *bool  `json:"enabled"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	entry, err := h.service.Add(r.Context(), req.Symbol, enabled)
	if err != nil {
		if domain.IsValidationError(err) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}

	h.writeJSON(w, http.StatusCreated, entry)
}

// HandleEnableSymbol handles POST /api/symbols/{symbol}/enable
func (h *SymbolHandlers) HandleEnableSymbol(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.Enable(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

// HandleDisableSymbol handles POST /api/symbols/{symbol}/disable
func (h *SymbolHandlers) HandleDisableSymbol(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.Disable(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

// HandleSetHalted handles PUT /api/symbols/{symbol}/halted
func (h *SymbolHandlers) HandleSetHalted(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Halted bool `json:"halted"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	entry, err := h.service.SetHalted(r.Context(), chi.URLParam(r, "symbol"), req.Halted)
	if err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

// HandleRemoveSymbol handles DELETE /api/symbols/{symbol}
func (h *SymbolHandlers) HandleRemoveSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if err := h.service.Remove(r.Context(), symbol); err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "symbol": symbol})
}

// writeJSON writes a JSON response
func (h *SymbolHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *SymbolHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
