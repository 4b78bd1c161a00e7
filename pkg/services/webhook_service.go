package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-adsync/pkg/meta"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
	"github.com/ekaya-inc/ekaya-adsync/pkg/repositories"
	"github.com/ekaya-inc/ekaya-adsync/pkg/telemetry"
)

// SignatureHeader carries the HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Hub-Signature-256"

// WebhookResult summarises one delivery.
type WebhookResult struct {
	Received int `json:"received"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// WebhookService verifies and ingests real-time lead deliveries.
type WebhookService interface {
	// VerifyHandshake returns the challenge to echo when the subscription
	// handshake presents the configured verify token.
	VerifyHandshake(mode, token, challenge string) (string, error)

	// VerifySignature checks header against the app secret. It fails when
	// either is missing.
	VerifySignature(body []byte, header string) error

	// HandleEvent ingests every leadgen change of an already verified body.
	HandleEvent(ctx context.Context, body []byte) (*WebhookResult, error)
}

type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string       `json:"field"`
			Value leadgenValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type leadgenValue struct {
	LeadgenID   meta.FlexString `json:"leadgen_id"`
	FormID      meta.FlexString `json:"form_id"`
	PageID      meta.FlexString `json:"page_id"`
	AdID        meta.FlexString `json:"ad_id"`
	AdGroupID   meta.FlexString `json:"adgroup_id"`
	AdAccountID meta.FlexString `json:"ad_account_id"`
	CreatedTime meta.FlexString `json:"created_time"`
}

type webhookService struct {
	meta        MetaAPI
	ingester    *leadIngester
	syncLogs    repositories.SyncLogRepository
	appSecret   string
	verifyToken string
	logger      *zap.Logger
}

func NewWebhookService(
	metaAPI MetaAPI,
	leads repositories.LeadRepository,
	adSets repositories.AdSetRepository,
	syncLogs repositories.SyncLogRepository,
	resolver FieldResolver,
	metrics *telemetry.Metrics,
	appSecret, verifyToken string,
	logger *zap.Logger,
) WebhookService {
	logger = logger.Named("webhook-service")
	return &webhookService{
		meta:        metaAPI,
		ingester:    newLeadIngester(leads, adSets, resolver, metrics, logger),
		syncLogs:    syncLogs,
		appSecret:   appSecret,
		verifyToken: verifyToken,
		logger:      logger,
	}
}

var _ WebhookService = (*webhookService)(nil)

func (s *webhookService) VerifyHandshake(mode, token, challenge string) (string, error) {
	if mode != "subscribe" || s.verifyToken == "" ||
		!hmac.Equal([]byte(token), []byte(s.verifyToken)) {
		return "", fmt.Errorf("webhook handshake rejected: %w", apperrors.ErrInvalidSignature)
	}
	return challenge, nil
}

func (s *webhookService) VerifySignature(body []byte, header string) error {
	if s.appSecret == "" {
		return fmt.Errorf("app secret not configured: %w", apperrors.ErrInvalidSignature)
	}
	sig, ok := strings.CutPrefix(strings.TrimSpace(header), "sha256=")
	if !ok || sig == "" {
		return fmt.Errorf("missing signature: %w", apperrors.ErrInvalidSignature)
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("malformed signature: %w", apperrors.ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(s.appSecret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return apperrors.ErrInvalidSignature
	}
	return nil
}

func (s *webhookService) HandleEvent(ctx context.Context, body []byte) (*WebhookResult, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", apperrors.ErrInvalidInput)
	}

	result := &WebhookResult{}
	if payload.Object != "page" && payload.Object != "ad_account" {
		s.logger.Debug("Ignoring webhook object", zap.String("object", payload.Object))
		return result, nil
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "leadgen" {
				continue
			}
			v := change.Value
			if v.LeadgenID == "" {
				continue
			}
			result.Received++

			src := leadSource{
				Source:      models.LeadSourceWebhook,
				FormID:      v.FormID.String(),
				PageID:      firstNonEmpty(v.PageID.String(), pageIDFor(payload.Object, entry.ID)),
				AdAccountID: models.NormalizeAccountID(v.AdAccountID.String()),
			}

			// Redeliveries are common; skip them before calling the Graph API.
			dup, err := s.ingester.stored(ctx, v.LeadgenID.String())
			if err != nil {
				return result, s.ingestFailed(ctx, src, v, err)
			}
			if dup {
				s.logger.Debug("Skipping redelivered lead", zap.String("lead_id", v.LeadgenID.String()))
				result.Skipped++
				continue
			}

			inserted, skipped, err := s.ingester.ingest(ctx, src, []meta.Lead{s.fetchLead(ctx, v)})
			if err != nil {
				return result, s.ingestFailed(ctx, src, v, err)
			}
			result.Inserted += inserted
			result.Skipped += skipped
		}
	}

	if result.Received > 0 {
		s.writeLog(ctx, models.SyncStatusSuccess, "", nil)
		s.logger.Info("Processed webhook delivery",
			zap.Int("received", result.Received),
			zap.Int("inserted", result.Inserted),
			zap.Int("skipped", result.Skipped))
	}
	return result, nil
}

func (s *webhookService) ingestFailed(ctx context.Context, src leadSource, v leadgenValue, err error) error {
	msg := err.Error()
	s.writeLog(ctx, models.SyncStatusError, src.AdAccountID, &msg)
	return fmt.Errorf("failed to ingest webhook lead %s: %w", v.LeadgenID, err)
}

// fetchLead loads the full lead. When that fails the lead is still stored
// from the change payload, without field values.
func (s *webhookService) fetchLead(ctx context.Context, v leadgenValue) meta.Lead {
	lead, err := s.meta.GetLead(ctx, v.LeadgenID.String())
	if err == nil && lead != nil {
		if lead.AdSetID == "" {
			lead.AdSetID = v.AdGroupID.String()
		}
		if lead.AdID == "" {
			lead.AdID = v.AdID.String()
		}
		return *lead
	}

	s.logger.Warn("Failed to fetch webhook lead details, storing without fields",
		zap.String("lead_id", v.LeadgenID.String()),
		zap.Error(err))
	return meta.Lead{
		ID:          v.LeadgenID.String(),
		FormID:      v.FormID.String(),
		AdID:        v.AdID.String(),
		AdSetID:     v.AdGroupID.String(),
		CreatedTime: unixToGraphTime(v.CreatedTime.String()),
	}
}

func (s *webhookService) writeLog(ctx context.Context, status, accountID string, message *string) {
	entry := &models.SyncLog{Type: models.SyncTypeWebhook, Status: status, ErrorMessage: message}
	if accountID != "" {
		entry.AdAccountID = &accountID
	}
	if err := s.syncLogs.Create(ctx, entry); err != nil {
		s.logger.Error("Failed to write sync log", zap.Error(err))
	}
}

func pageIDFor(object, entryID string) string {
	if object == "page" {
		return entryID
	}
	return ""
}

func unixToGraphTime(s string) string {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return ""
	}
	return time.Unix(secs, 0).UTC().Format(meta.TimeLayout)
}
