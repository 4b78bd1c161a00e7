package handlers

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/services"
)

// maxWebhookBody bounds a single delivery.
const maxWebhookBody = 1 << 20

// WebhookHandler receives real-time lead deliveries.
type WebhookHandler struct {
	svc    services.WebhookService
	logger *zap.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(svc services.WebhookService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers the webhook handler's routes on the given mux.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/webhook", h.Verify)
	mux.HandleFunc("POST /api/webhook", h.Receive)
}

// Verify handles the subscription handshake. The challenge is echoed as
// plain text.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, err := h.svc.VerifyHandshake(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"))
	if err != nil {
		h.logger.Warn("Webhook handshake rejected", zap.String("mode", q.Get("hub.mode")))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// Receive verifies the body signature before ingesting it.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, h.logger, http.StatusRequestEntityTooLarge, "body_too_large", "Webhook body too large")
			return
		}
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Failed to read body")
		return
	}

	if err := h.svc.VerifySignature(body, r.Header.Get(services.SignatureHeader)); err != nil {
		h.logger.Warn("Webhook signature rejected", zap.Error(err))
		writeError(w, h.logger, http.StatusUnauthorized, "invalid_signature", "Invalid signature")
		return
	}

	result, err := h.svc.HandleEvent(r.Context(), body)
	if err != nil {
		writeServiceError(w, h.logger, err, "webhook_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, result)
}
