package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
)

const (
	accountFields  = "id,account_id,name,account_status,currency"
	campaignFields = "id,name,objective,status,created_time"
	adSetFields    = "id,name,campaign_id,status,targeting,optimization_goal"
	adFields       = "id,name,adset_id,campaign_id,status,creative"
	leadFields     = "id,created_time,field_data,ad_id,ad_name,adset_id,adset_name,campaign_id,campaign_name,form_id,platform"
	formFields     = "id,name,status,leads_count"
	pageFields     = "id,name,access_token"

	listLimit     = "500"
	leadPageLimit = "100"

	// SubscribedFields are the webhook fields requested for ad accounts.
	SubscribedFields = "leadgen,ads,adsets,campaigns"
)

// Fields requested per level for lifetime and per-day insights.
var (
	insightFields = map[string][]string{
		LevelCampaign: {"campaign_id", "campaign_name", "spend", "actions"},
		LevelAdSet:    {"adset_id", "adset_name", "campaign_id", "spend", "actions"},
		LevelAd:       {"ad_id", "ad_name", "adset_id", "campaign_id", "spend", "actions"},
	}
	dailyFields = map[string]string{
		LevelCampaign: "campaign_id,campaign_name,spend,actions,impressions,clicks,date_start",
		LevelAdSet:    "campaign_id,adset_id,adset_name,spend,actions,impressions,clicks,date_start",
		LevelAd:       "campaign_id,adset_id,ad_id,ad_name,spend,actions,impressions,clicks,date_start",
	}
)

// InsightFields returns the default field list for a level.
func InsightFields(level string) []string {
	return insightFields[level]
}

// DailyWindow is the result of one per-day insights window.
type DailyWindow struct {
	Range models.DateRange
	Rows  []InsightRow
}

// Service exposes the typed Graph endpoints the sync pipeline needs.
type Service struct {
	client      *Client
	accessToken string
	logger      *zap.Logger

	PageDelay      time.Duration
	DailyPageDelay time.Duration
	WindowDelay    time.Duration
	WindowDays     int
	MaxRecords     int
}

func NewService(client *Client, accessToken string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client:         client,
		accessToken:    accessToken,
		logger:         logger.Named("meta"),
		PageDelay:      300 * time.Millisecond,
		DailyPageDelay: 500 * time.Millisecond,
		WindowDelay:    2 * time.Second,
		WindowDays:     DefaultWindowDays,
		MaxRecords:     DefaultMaxRecords,
	}
}

func actPath(accountID, edge string) string {
	return "act_" + strings.TrimPrefix(accountID, "act_") + "/" + edge
}

func (s *Service) get(path string, query map[string]string) Request {
	return Request{Method: http.MethodGet, Path: path, Query: query, AccessToken: s.accessToken}
}

func (s *Service) opts(delay time.Duration) PageOptions {
	return PageOptions{PageDelay: delay, MaxRecords: s.MaxRecords}
}

// tolerateThrottle keeps what a walk collected when it was throttled out.
// The remainder of that unit of work is skipped and logged.
func tolerateThrottle[T any](s *Service, what, accountID string, items []T, err error) ([]T, error) {
	if err == nil {
		return items, nil
	}
	if IsThrottled(err) {
		s.logger.Warn("Throttling retries exhausted, keeping partial results",
			zap.String("collection", what),
			zap.String("account_id", accountID),
			zap.Int("records", len(items)),
			zap.Error(err))
		return items, nil
	}
	return nil, fmt.Errorf("failed to fetch %s for account %s: %w", what, accountID, err)
}

func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	req := s.get("me/adaccounts", map[string]string{"fields": accountFields, "limit": listLimit})
	items, _, err := collect[Account](ctx, s.client, req, s.opts(s.PageDelay))
	return tolerateThrottle(s, "ad accounts", "me", items, err)
}

func (s *Service) ListCampaigns(ctx context.Context, accountID string) ([]Campaign, error) {
	req := s.get(actPath(accountID, "campaigns"), map[string]string{"fields": campaignFields, "limit": listLimit})
	items, _, err := collect[Campaign](ctx, s.client, req, s.opts(s.PageDelay))
	return tolerateThrottle(s, "campaigns", accountID, items, err)
}

func (s *Service) ListAdSets(ctx context.Context, accountID string) ([]AdSet, error) {
	req := s.get(actPath(accountID, "adsets"), map[string]string{"fields": adSetFields, "limit": listLimit})
	items, _, err := collect[AdSet](ctx, s.client, req, s.opts(s.PageDelay))
	return tolerateThrottle(s, "ad sets", accountID, items, err)
}

func (s *Service) ListAds(ctx context.Context, accountID string) ([]Ad, error) {
	req := s.get(actPath(accountID, "ads"), map[string]string{"fields": adFields, "limit": listLimit})
	items, _, err := collect[Ad](ctx, s.client, req, s.opts(s.PageDelay))
	return tolerateThrottle(s, "ads", accountID, items, err)
}

func timeRange(r models.DateRange) string {
	b, _ := json.Marshal(map[string]string{"since": r.SinceString(), "until": r.UntilString()})
	return string(b)
}

// ListInsights fetches lifetime-in-range insights at one level. An empty
// fields list uses InsightFields(level).
func (s *Service) ListInsights(ctx context.Context, accountID, level string, fields []string, r models.DateRange) ([]InsightRow, error) {
	if len(fields) == 0 {
		fields = InsightFields(level)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("unknown insights level %q", level)
	}
	req := s.get(actPath(accountID, "insights"), map[string]string{
		"level":      level,
		"fields":     strings.Join(fields, ","),
		"time_range": timeRange(r),
		"limit":      listLimit,
	})
	items, _, err := collect[InsightRow](ctx, s.client, req, s.opts(s.PageDelay))
	return tolerateThrottle(s, level+" insights", accountID, items, err)
}

// ListDailyInsights fetches per-day insights in WindowDays windows. A window
// that stays throttled is skipped; the other windows are still returned.
// Any other error aborts.
func (s *Service) ListDailyInsights(ctx context.Context, accountID, level string, r models.DateRange) ([]DailyWindow, error) {
	fields, ok := dailyFields[level]
	if !ok {
		return nil, fmt.Errorf("unknown insights level %q", level)
	}

	windows := SplitDateRange(r, s.WindowDays)
	s.logger.Info("Fetching daily insights",
		zap.String("account_id", accountID),
		zap.String("level", level),
		zap.String("range", r.String()),
		zap.Int("windows", len(windows)))

	var out []DailyWindow
	for i, w := range windows {
		if i > 0 {
			if err := s.client.Sleep(ctx, s.WindowDelay); err != nil {
				return out, err
			}
		}

		req := s.get(actPath(accountID, "insights"), map[string]string{
			"level":          level,
			"fields":         fields,
			"time_range":     timeRange(w),
			"time_increment": "1",
			"limit":          listLimit,
		})
		rows, _, err := collect[InsightRow](ctx, s.client, req, s.opts(s.DailyPageDelay))
		if err != nil {
			if IsThrottled(err) {
				s.logger.Warn("Skipping throttled daily insights window",
					zap.String("account_id", accountID),
					zap.String("level", level),
					zap.String("window", w.String()),
					zap.Error(err))
				continue
			}
			return out, fmt.Errorf("failed to fetch daily %s insights for %s: %w", level, w, err)
		}

		s.logger.Debug("Fetched daily insights window",
			zap.String("window", w.String()),
			zap.Int("window_index", i+1),
			zap.Int("rows", len(rows)))
		out = append(out, DailyWindow{Range: w, Rows: rows})
	}
	return out, nil
}

// ForEachFormLeadPage streams a form's leads one page at a time. pageToken
// is the page access token that owns the form; empty uses the service token.
func (s *Service) ForEachFormLeadPage(ctx context.Context, formID, pageToken string, fn func([]Lead) error) error {
	req := s.get(formID+"/leads", map[string]string{"fields": leadFields, "limit": leadPageLimit})
	if pageToken != "" {
		req.AccessToken = pageToken
	}
	_, err := s.client.FetchAll(ctx, req, s.opts(s.PageDelay), func(items []json.RawMessage) error {
		leads := make([]Lead, 0, len(items))
		for _, raw := range items {
			var l Lead
			if err := json.Unmarshal(raw, &l); err != nil {
				return fmt.Errorf("decode lead: %w", err)
			}
			leads = append(leads, l)
		}
		return fn(leads)
	})
	if err != nil {
		return fmt.Errorf("failed to fetch leads for form %s: %w", formID, err)
	}
	return nil
}

// GetLead fetches one lead with its field data.
func (s *Service) GetLead(ctx context.Context, leadID string) (*Lead, error) {
	resp, err := s.client.Do(ctx, s.get(leadID, map[string]string{"fields": leadFields}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lead %s: %w", leadID, err)
	}
	var lead Lead
	if err := resp.Decode(&lead); err != nil {
		return nil, err
	}
	return &lead, nil
}

// ListPages returns the pages the token manages, with their page tokens.
func (s *Service) ListPages(ctx context.Context) ([]Page, error) {
	req := s.get("me/accounts", map[string]string{"fields": pageFields, "limit": listLimit})
	items, _, err := collect[Page](ctx, s.client, req, s.opts(s.PageDelay))
	return tolerateThrottle(s, "pages", "me", items, err)
}

// ListLeadForms returns a page's lead forms using its page token.
func (s *Service) ListLeadForms(ctx context.Context, pageID, pageToken string) ([]LeadForm, error) {
	req := s.get(pageID+"/leadgen_forms", map[string]string{"fields": formFields, "limit": listLimit})
	if pageToken != "" {
		req.AccessToken = pageToken
	}
	items, _, err := collect[LeadForm](ctx, s.client, req, s.opts(s.PageDelay))
	return tolerateThrottle(s, "lead forms", pageID, items, err)
}

// Subscribe subscribes the app to an ad account's webhook fields.
func (s *Service) Subscribe(ctx context.Context, accountID string) (bool, error) {
	resp, err := s.client.Do(ctx, Request{
		Method:      http.MethodPost,
		Path:        actPath(accountID, "subscribed_apps"),
		Form:        map[string]string{"subscribed_fields": SubscribedFields},
		AccessToken: s.accessToken,
	})
	if err != nil {
		return false, fmt.Errorf("failed to subscribe account %s: %w", accountID, err)
	}
	var body struct {
		Success bool `json:"success"`
	}
	if err := resp.Decode(&body); err != nil {
		return false, err
	}
	return body.Success, nil
}

// SubscriptionStatus lists the apps subscribed to an ad account.
func (s *Service) SubscriptionStatus(ctx context.Context, accountID string) ([]SubscribedApp, error) {
	resp, err := s.client.Do(ctx, s.get(actPath(accountID, "subscribed_apps"), nil))
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription status for account %s: %w", accountID, err)
	}
	var body struct {
		Data []SubscribedApp `json:"data"`
	}
	if err := resp.Decode(&body); err != nil {
		return nil, err
	}
	return body.Data, nil
}
