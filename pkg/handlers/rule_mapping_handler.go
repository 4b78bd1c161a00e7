package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/services"
)

// RuleMappingHandler manages named rule mappings.
type RuleMappingHandler struct {
	svc    services.RuleMappingService
	logger *zap.Logger
}

// NewRuleMappingHandler creates a new rule mapping handler.
func NewRuleMappingHandler(svc services.RuleMappingService, logger *zap.Logger) *RuleMappingHandler {
	return &RuleMappingHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers the rule mapping handler's routes on the given mux.
func (h *RuleMappingHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/mappings"

	mux.HandleFunc("GET "+base, h.List)
	mux.HandleFunc("POST "+base, h.Create)
	mux.HandleFunc("PATCH "+base+"/{id}", h.Update)
	mux.HandleFunc("DELETE "+base+"/{id}", h.Delete)
}

// List handles GET /api/mappings.
func (h *RuleMappingHandler) List(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "list_mappings_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, mappings)
}

// Create handles POST /api/mappings.
func (h *RuleMappingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.RuleMappingInput
	if !decodeJSON(w, r, h.logger, &in) {
		return
	}
	mapping, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.logger, err, "create_mapping_failed")
		return
	}
	writeData(w, h.logger, http.StatusCreated, mapping)
}

// Update handles PATCH /api/mappings/{id}.
func (h *RuleMappingHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}
	var in services.RuleMappingInput
	if !decodeJSON(w, r, h.logger, &in) {
		return
	}
	mapping, err := h.svc.Update(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, h.logger, err, "update_mapping_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, mapping)
}

// Delete handles DELETE /api/mappings/{id}.
func (h *RuleMappingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err, "delete_mapping_failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
