package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
	"github.com/ekaya-inc/ekaya-adsync/pkg/services"
)

// LeadsHandler serves stored leads.
type LeadsHandler struct {
	svc    services.LeadService
	logger *zap.Logger
}

// NewLeadsHandler creates a new leads handler.
func NewLeadsHandler(svc services.LeadService, logger *zap.Logger) *LeadsHandler {
	return &LeadsHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers the leads handler's routes on the given mux.
func (h *LeadsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/leads", h.List)
	mux.HandleFunc("GET /api/leads/{id}", h.Get)
}

// List handles GET /api/leads.
// Query: since, until, account_id, campaign_id, form_name, search, page, limit.
func (h *LeadsHandler) List(w http.ResponseWriter, r *http.Request) {
	dr, ok := ParseDateRange(w, r, h.logger)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := models.LeadFilter{
		DateRange:   dr,
		AdAccountID: models.NormalizeAccountID(q.Get("account_id")),
		CampaignID:  q.Get("campaign_id"),
		FormName:    q.Get("form_name"),
		Search:      strings.TrimSpace(q.Get("search")),
		Page:        queryInt(r, "page", 1),
		Limit:       queryInt(r, "limit", 50),
	}

	page, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, err, "list_leads_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, page)
}

// Get handles GET /api/leads/{id}.
func (h *LeadsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	lead, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "get_lead_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, lead)
}
