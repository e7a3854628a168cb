package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all trading routes
func (h *TradingHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/decisions", func(r chi.Router) {
		r.Get("/", h.HandleRecentDecisions)
		r.Post("/run", h.HandleRunDecision)
		r.Get("/{symbol}", h.HandleDecisionsBySymbol)
	})
}
