package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all guide routes
func (h *GuideHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/guides", func(r chi.Router) {
		r.Get("/", h.HandleListGuides)
		r.Post("/", h.HandleCreateGuide)
		r.Get("/{name}", h.HandleGetGuide)
		r.Put("/{name}", h.HandleUpdateGuide)
		r.Post("/{name}/deactivate", h.HandleDeactivateGuide)
		r.Get("/{name}/versions/{version}", h.HandleGetGuideVersion)
	})
}
