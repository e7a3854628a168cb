package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers risk routes on the provided router
func (h *RiskHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Get("/state", h.HandleState)
	})
}
