package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/services"
)

// SubscribeRequest is the body of POST /api/subscriptions/subscribe. An
// empty list subscribes every stored account.
type SubscribeRequest struct {
	AdAccountIDs []string `json:"ad_account_ids"`
}

// SubscriptionHandler manages the app's webhook subscriptions per account.
type SubscriptionHandler struct {
	svc    services.SubscriptionService
	logger *zap.Logger
}

// NewSubscriptionHandler creates a new subscription handler.
func NewSubscriptionHandler(svc services.SubscriptionService, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers the subscription handler's routes on the given mux.
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/subscriptions", h.List)
	mux.HandleFunc("POST /api/subscriptions/refresh", h.Refresh)
	mux.HandleFunc("POST /api/subscriptions/subscribe", h.Subscribe)
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "list_subscriptions_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, subs)
}

func (h *SubscriptionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	subs, err := h.svc.Refresh(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "refresh_subscriptions_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, subs)
}

func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, h.logger, &req) {
			return
		}
	}
	results, err := h.svc.Subscribe(r.Context(), req.AdAccountIDs)
	if err != nil {
		writeServiceError(w, h.logger, err, "subscribe_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, results)
}
