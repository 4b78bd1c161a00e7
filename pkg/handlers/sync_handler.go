package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
	"github.com/ekaya-inc/ekaya-adsync/pkg/services"
)

const recentSyncLogs = 20

// SyncLogLister is the slice of the sync log repository the status
// endpoint reads.
type SyncLogLister interface {
	ListRecent(ctx context.Context, limit int) ([]*models.SyncLog, error)
}

// SyncStatusResponse combines both run states with the latest log rows.
type SyncStatusResponse struct {
	Spend services.SyncProgress     `json:"spend"`
	Leads services.LeadSyncProgress `json:"leads"`
	Logs  []*models.SyncLog         `json:"logs"`
}

// SyncFormRequest is the body of POST /api/meta/sync/form.
type SyncFormRequest struct {
	FormID string `json:"form_id"`
}

// SyncHandler triggers and reports spend and lead syncs.
type SyncHandler struct {
	spend    services.SyncService
	leads    services.LeadSyncService
	syncLogs SyncLogLister
	logger   *zap.Logger
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(spend services.SyncService, leads services.LeadSyncService, syncLogs SyncLogLister, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		spend:    spend,
		leads:    leads,
		syncLogs: syncLogs,
		logger:   logger,
	}
}

// RegisterRoutes registers the sync handler's routes on the given mux.
func (h *SyncHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/meta"

	mux.HandleFunc("POST "+base+"/sync", h.StartSpend)
	mux.HandleFunc("GET "+base+"/sync/status", h.Status)
	mux.HandleFunc("POST "+base+"/sync/leads", h.StartLeads)
	mux.HandleFunc("GET "+base+"/sync/progress", h.LeadProgress)
	mux.HandleFunc("GET "+base+"/sync/forms", h.ListForms)
	mux.HandleFunc("POST "+base+"/sync/form", h.SyncForm)
	mux.HandleFunc("GET "+base+"/debug/campaign-actions", h.DebugCampaignActions)
}

// StartSpend handles POST /api/meta/sync.
// Answers 202 with the new run's progress, or 409 with the active run's.
func (h *SyncHandler) StartSpend(w http.ResponseWriter, r *http.Request) {
	progress, err := h.spend.Start(r.Context())
	h.writeStart(w, progress, err)
}

// StartLeads handles POST /api/meta/sync/leads.
func (h *SyncHandler) StartLeads(w http.ResponseWriter, r *http.Request) {
	progress, err := h.leads.Start(r.Context())
	h.writeStart(w, progress, err)
}

func (h *SyncHandler) writeStart(w http.ResponseWriter, progress any, err error) {
	if errors.Is(err, apperrors.ErrSyncInProgress) {
		resp := ApiResponse{Success: false, Data: progress, Error: "sync_in_progress", Message: err.Error()}
		if err := WriteJSON(w, http.StatusConflict, resp); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}
		return
	}
	if err != nil {
		writeServiceError(w, h.logger, err, "sync_start_failed")
		return
	}
	writeData(w, h.logger, http.StatusAccepted, progress)
}

// Status handles GET /api/meta/sync/status.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	logs, err := h.syncLogs.ListRecent(r.Context(), recentSyncLogs)
	if err != nil {
		writeServiceError(w, h.logger, err, "list_sync_logs_failed")
		return
	}
	if logs == nil {
		logs = []*models.SyncLog{}
	}
	writeData(w, h.logger, http.StatusOK, SyncStatusResponse{
		Spend: h.spend.Progress(),
		Leads: h.leads.Progress(),
		Logs:  logs,
	})
}

// LeadProgress handles GET /api/meta/sync/progress.
func (h *SyncHandler) LeadProgress(w http.ResponseWriter, r *http.Request) {
	writeData(w, h.logger, http.StatusOK, h.leads.Progress())
}

// ListForms handles GET /api/meta/sync/forms.
func (h *SyncHandler) ListForms(w http.ResponseWriter, r *http.Request) {
	forms, err := h.leads.ListAvailableForms(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "list_forms_failed")
		return
	}
	if forms == nil {
		forms = []services.AvailableForm{}
	}
	writeData(w, h.logger, http.StatusOK, forms)
}

// SyncForm handles POST /api/meta/sync/form.
func (h *SyncHandler) SyncForm(w http.ResponseWriter, r *http.Request) {
	var req SyncFormRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	if strings.TrimSpace(req.FormID) == "" {
		writeError(w, h.logger, http.StatusBadRequest, "missing_form_id", "form_id is required")
		return
	}

	result, err := h.leads.SyncForm(r.Context(), strings.TrimSpace(req.FormID))
	if err != nil {
		writeServiceError(w, h.logger, err, "sync_form_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, result)
}

// DebugCampaignActions handles GET /api/meta/debug/campaign-actions.
// Query: account_id (required), campaign (name substring), date (YYYY-MM-DD, default yesterday).
func (h *SyncHandler) DebugCampaignActions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	accountID := q.Get("account_id")
	if accountID == "" {
		writeError(w, h.logger, http.StatusBadRequest, "missing_account_id", "account_id is required")
		return
	}

	date := time.Now().UTC().AddDate(0, 0, -1)
	if raw := q.Get("date"); raw != "" {
		parsed, err := time.Parse(models.DateLayout, raw)
		if err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	result, err := h.spend.DebugCampaignActions(r.Context(), accountID, q.Get("campaign"), date)
	if err != nil {
		writeServiceError(w, h.logger, err, "debug_campaign_actions_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, result)
}
