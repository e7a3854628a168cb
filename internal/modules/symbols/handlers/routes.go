package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all symbol registry routes
func (h *SymbolHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/symbols", func(r chi.Router) {
		r.Get("/", h.HandleListSymbols)
		r.Post("/", h.HandleAddSymbol)
		r.Post("/{symbol}/enable", h.HandleEnableSymbol)
		r.Post("/{symbol}/disable", h.HandleDisableSymbol)
		r.Put("/{symbol}/halted", h.HandleSetHalted)
		r.Delete("/{symbol}", h.HandleRemoveSymbol)
	})
}
