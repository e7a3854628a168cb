// Package handlers provides HTTP handlers for guide management.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/modules/guides"
)

// GuideHandlers contains HTTP handlers for the guides API
type GuideHandlers struct {
	log     zerolog.Logger
	service *guides.Service
}

// NewGuideHandlers creates a new guide handlers instance
func NewGuideHandlers(service *guides.Service, log zerolog.Logger) *GuideHandlers {
	return &GuideHandlers{
		log:     log.With().Str("handler", "guides").Logger(),
		service: service,
	}
}

// HandleListGuides handles GET /api/guides
func (h *GuideHandlers) HandleListGuides(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	list, err := h.service.List(r.Context(), includeInactive)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list guides")
		h.writeError(w, http.StatusInternalServerError, "Failed to list guides")
		return
	}
	if list == nil {
		list = []guides.Guide{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"guides": list,
		"count":  len(list),
	})
}

// HandleGetGuide handles GET /api/guides/{name}
func (h *GuideHandlers) HandleGetGuide(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	guide, err := h.service.Get(r.Context(), name)
	if err != nil {
		h.log.Error().Err(err).Str("name", name).Msg("Failed to get guide")
		h.writeError(w, http.StatusInternalServerError, "Failed to get guide")
		return
	}
	if guide == nil {
		h.writeError(w, http.StatusNotFound, "Guide not found")
		return
	}

	h.writeJSON(w, http.StatusOK, guide)
}

// HandleGetGuideVersion handles GET /api/guides/{name}/versions/{version}
func (h *GuideHandlers) HandleGetGuideVersion(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		h.writeError(w, http.StatusBadRequest, "Invalid version")
		return
	}

	guide, err := h.service.GetVersion(r.Context(), name, version)
	if err != nil {
		h.log.Error().Err(err).Str("name", name).Int("version", version).Msg("Failed to get guide version")
		h.writeError(w, http.StatusInternalServerError, "Failed to get guide version")
		return
	}
	if guide == nil {
		h.writeError(w, http.StatusNotFound, "Guide version not found")
		return
	}

	h.writeJSON(w, http.StatusOK, guide)
}

// HandleCreateGuide handles POST /api/guides
func (h *GuideHandlers) HandleCreateGuide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string   `json:"name"`
		HardRules     []string `json:"hard_rules"`
		SoftRules     []string `json:"soft_rules"`
		Disqualifiers []string `json:"disqualifiers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	guide, err := h.service.Create(r.Context(), &guides.Guide{
		Name:          req.Name,
		HardRules:     req.HardRules,
		SoftRules:     req.SoftRules,
		Disqualifiers: req.Disqualifiers,
	})
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusCreated, guide)
}

// HandleUpdateGuide handles PUT /api/guides/{name}
func (h *GuideHandlers) HandleUpdateGuide(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req struct {
		HardRules     []string `json:"hard_rules"`
		SoftRules     []string `json:"soft_rules"`
		Disqualifiers []string `json:"disqualifiers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	guide, err := h.service.Update(r.Context(), name, req.HardRules, req.SoftRules, req.Disqualifiers)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, guide)
}

// HandleDeactivateGuide handles POST /api/guides/{name}/deactivate
func (h *GuideHandlers) HandleDeactivateGuide(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.service.Deactivate(r.Context(), name); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated", "name": name})
}

// writeJSON writes a JSON response
func (h *GuideHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *GuideHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
