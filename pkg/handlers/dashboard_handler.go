package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
	"github.com/ekaya-inc/ekaya-adsync/pkg/services"
)

// defaultStatsDays is the window used when no since/until is given.
const defaultStatsDays = 30

// DashboardHandler serves account listings and headline stats.
type DashboardHandler struct {
	svc    services.DashboardService
	logger *zap.Logger
	now    func() time.Time
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(svc services.DashboardService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{svc: svc, logger: logger, now: time.Now}
}

// RegisterRoutes registers the dashboard handler's routes on the given mux.
func (h *DashboardHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/ad-accounts", h.ListAdAccounts)
	mux.HandleFunc("GET /api/dashboard/stats", h.Stats)
}

// ListAdAccounts handles GET /api/ad-accounts.
func (h *DashboardHandler) ListAdAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.ListAdAccounts(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "list_ad_accounts_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, accounts)
}

// Stats handles GET /api/dashboard/stats.
// Query: since, until (default last 30 days), account_id, objective.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	dr, ok := ParseDateRange(w, r, h.logger)
	if !ok {
		return
	}
	if dr == nil {
		lookback := models.LookbackRange(h.now().UTC(), defaultStatsDays)
		dr = &lookback
	}

	q := r.URL.Query()
	stats, err := h.svc.Stats(r.Context(), *dr, q.Get("account_id"), q.Get("objective"))
	if err != nil {
		writeServiceError(w, h.logger, err, "get_stats_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, stats)
}
