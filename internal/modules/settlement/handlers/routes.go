package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all settlement routes
func (h *SettlementHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/settlement", func(r chi.Router) {
		r.Post("/close", h.HandleRecordClose)
		r.Post("/poll", h.HandlePoll)
	})
}
