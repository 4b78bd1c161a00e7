package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
	"github.com/ekaya-inc/ekaya-adsync/pkg/services"
)

// CampaignHandler serves the flat campaign list.
type CampaignHandler struct {
	svc    services.CampaignService
	logger *zap.Logger
}

func NewCampaignHandler(svc services.CampaignService, logger *zap.Logger) *CampaignHandler {
	return &CampaignHandler{svc: svc, logger: logger}
}

func (h *CampaignHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/campaigns", h.List)
}

// List handles GET /api/campaigns.
// Query: account_id, search, since, until.
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	dr, ok := ParseDateRange(w, r, h.logger)
	if !ok {
		return
	}

	q := r.URL.Query()
	rows, err := h.svc.List(r.Context(), models.CampaignFilter{
		AdAccountID: models.NormalizeAccountID(q.Get("account_id")),
		Search:      strings.TrimSpace(q.Get("search")),
		DateRange:   dr,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "list_campaigns_failed")
		return
	}
	if rows == nil {
		rows = []*models.CampaignSummary{}
	}
	writeData(w, h.logger, http.StatusOK, rows)
}
