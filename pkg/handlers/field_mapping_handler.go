package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/services"
)

// FieldMappingHandler manages raw-to-canonical lead field name mappings.
type FieldMappingHandler struct {
	svc    services.FieldMappingService
	logger *zap.Logger
}

// NewFieldMappingHandler creates a new field mapping handler.
func NewFieldMappingHandler(svc services.FieldMappingService, logger *zap.Logger) *FieldMappingHandler {
	return &FieldMappingHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers the field mapping handler's routes on the given mux.
func (h *FieldMappingHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/field-mappings"

	mux.HandleFunc("GET "+base, h.List)
	mux.HandleFunc("POST "+base, h.Create)
	mux.HandleFunc("GET "+base+"/unmapped", h.Unmapped)
	mux.HandleFunc("GET "+base+"/standard-fields", h.StandardFields)
	mux.HandleFunc("POST "+base+"/backfill", h.Backfill)
	mux.HandleFunc("GET "+base+"/{id}", h.Get)
	mux.HandleFunc("PATCH "+base+"/{id}", h.Update)
	mux.HandleFunc("DELETE "+base+"/{id}", h.Delete)
}

// List handles GET /api/field-mappings.
func (h *FieldMappingHandler) List(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "list_field_mappings_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, mappings)
}

// Get handles GET /api/field-mappings/{id}.
func (h *FieldMappingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}
	mapping, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "get_field_mapping_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, mapping)
}

// Create handles POST /api/field-mappings.
func (h *FieldMappingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.FieldMappingInput
	if !decodeJSON(w, r, h.logger, &in) {
		return
	}
	mapping, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.logger, err, "create_field_mapping_failed")
		return
	}
	writeData(w, h.logger, http.StatusCreated, mapping)
}

// Update handles PATCH /api/field-mappings/{id}.
func (h *FieldMappingHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}
	var in services.FieldMappingInput
	if !decodeJSON(w, r, h.logger, &in) {
		return
	}
	mapping, err := h.svc.Update(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, h.logger, err, "update_field_mapping_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, mapping)
}

// Delete handles DELETE /api/field-mappings/{id}.
func (h *FieldMappingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err, "delete_field_mapping_failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unmapped handles GET /api/field-mappings/unmapped.
func (h *FieldMappingHandler) Unmapped(w http.ResponseWriter, r *http.Request) {
	fields, err := h.svc.UnmappedFields(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "list_unmapped_fields_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, fields)
}

// StandardFields handles GET /api/field-mappings/standard-fields.
func (h *FieldMappingHandler) StandardFields(w http.ResponseWriter, r *http.Request) {
	writeData(w, h.logger, http.StatusOK, h.svc.StandardFields())
}

// Backfill handles POST /api/field-mappings/backfill.
func (h *FieldMappingHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Backfill(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "backfill_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, result)
}
