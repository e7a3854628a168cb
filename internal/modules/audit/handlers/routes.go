package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all audit routes
func (h *AuditHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.Get("/decisions", h.HandleRecentDecisions)
		r.Get("/decisions/{symbol}", h.HandleDecisionsBySymbol)
		r.Get("/orders/open", h.HandleOpenOrders)
		r.Get("/orders/{symbol}", h.HandleOrdersBySymbol)
		r.Get("/outcomes/{orderID}", h.HandleOutcomesForOrder)
	})
}
