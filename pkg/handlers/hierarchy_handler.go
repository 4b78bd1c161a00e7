package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
	"github.com/ekaya-inc/ekaya-adsync/pkg/services"
)

// HierarchyHandler serves the campaign tree and its country tags.
type HierarchyHandler struct {
	svc    services.HierarchyService
	logger *zap.Logger
}

// NewHierarchyHandler creates a new hierarchy handler.
func NewHierarchyHandler(svc services.HierarchyService, logger *zap.Logger) *HierarchyHandler {
	return &HierarchyHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers the hierarchy handler's routes on the given mux.
func (h *HierarchyHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/campaigns/hierarchy", h.Get)
	mux.HandleFunc("GET /api/campaigns/countries", h.Countries)
}

// Get handles GET /api/campaigns/hierarchy.
// Query: account_id, search, country, level, since, until.
func (h *HierarchyHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	level := strings.ToLower(q.Get("level"))
	switch level {
	case "", models.LevelCampaign, models.LevelAdSet, models.LevelAd:
	default:
		writeError(w, h.logger, http.StatusBadRequest, "invalid_level", "level must be campaign, adset or ad")
		return
	}

	dr, ok := ParseDateRange(w, r, h.logger)
	if !ok {
		return
	}

	filter := models.HierarchyFilter{
		AdAccountID: models.NormalizeAccountID(q.Get("account_id")),
		Search:      strings.TrimSpace(q.Get("search")),
		Country:     strings.TrimSpace(q.Get("country")),
		Level:       level,
		DateRange:   dr,
	}

	tree, err := h.svc.GetHierarchy(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, err, "get_hierarchy_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, tree)
}

// Countries handles GET /api/campaigns/countries.
func (h *HierarchyHandler) Countries(w http.ResponseWriter, r *http.Request) {
	codes, err := h.svc.GetAvailableCountries(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "get_countries_failed")
		return
	}
	if codes == nil {
		codes = []string{}
	}
	writeData(w, h.logger, http.StatusOK, codes)
}
