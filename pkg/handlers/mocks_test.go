package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-adsync/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
	"github.com/ekaya-inc/ekaya-adsync/pkg/services"
)

// envelope decodes an ApiResponse whose data is kept raw for a second pass.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
	}
	return env
}

type mockSyncService struct {
	progress  services.SyncProgress
	startErr  error
	debug     *services.CampaignActionsDebug
	debugErr  error
	debugArgs []string
	debugDate time.Time
}

func (m *mockSyncService) Start(ctx context.Context) (services.SyncProgress, error) {
	return m.progress, m.startErr
}

func (m *mockSyncService) Run(ctx context.Context) (services.SyncProgress, error) {
	return m.progress, m.startErr
}

func (m *mockSyncService) Progress() services.SyncProgress { return m.progress }

func (m *mockSyncService) DebugCampaignActions(ctx context.Context, accountID, campaignName string, date time.Time) (*services.CampaignActionsDebug, error) {
	m.debugArgs = []string{accountID, campaignName}
	m.debugDate = date
	return m.debug, m.debugErr
}

type mockLeadSyncService struct {
	progress   services.LeadSyncProgress
	startErr   error
	forms      []services.AvailableForm
	formsErr   error
	formResult *services.FormSyncResult
	formErr    error
	syncedForm string
}

func (m *mockLeadSyncService) Start(ctx context.Context) (services.LeadSyncProgress, error) {
	return m.progress, m.startErr
}

func (m *mockLeadSyncService) Run(ctx context.Context) (services.LeadSyncProgress, error) {
	return m.progress, m.startErr
}

func (m *mockLeadSyncService) Progress() services.LeadSyncProgress { return m.progress }

func (m *mockLeadSyncService) SyncForm(ctx context.Context, formID string) (*services.FormSyncResult, error) {
	m.syncedForm = formID
	return m.formResult, m.formErr
}

func (m *mockLeadSyncService) ListAvailableForms(ctx context.Context) ([]services.AvailableForm, error) {
	return m.forms, m.formsErr
}

type mockSyncLogs struct {
	logs []*models.SyncLog
	err  error
}

func (m *mockSyncLogs) ListRecent(ctx context.Context, limit int) ([]*models.SyncLog, error) {
	return m.logs, m.err
}

type mockWebhookService struct {
	challenge string
	verifyErr error
	sigErr    error
	result    *services.WebhookResult
	handleErr error
	handled   []byte
}

func (m *mockWebhookService) VerifyHandshake(mode, token, challenge string) (string, error) {
	if m.verifyErr != nil {
		return "", m.verifyErr
	}
	return challenge, nil
}

func (m *mockWebhookService) VerifySignature(body []byte, header string) error {
	return m.sigErr
}

func (m *mockWebhookService) HandleEvent(ctx context.Context, body []byte) (*services.WebhookResult, error) {
	m.handled = body
	return m.result, m.handleErr
}

type mockHierarchyService struct {
	tree       *models.Hierarchy
	countries  []string
	err        error
	lastFilter models.HierarchyFilter
}

func (m *mockHierarchyService) GetHierarchy(ctx context.Context, filter models.HierarchyFilter) (*models.Hierarchy, error) {
	m.lastFilter = filter
	return m.tree, m.err
}

func (m *mockHierarchyService) GetAvailableCountries(ctx context.Context) ([]string, error) {
	return m.countries, m.err
}

func (m *mockHierarchyService) Invalidate() {}

type mockCampaignService struct {
	rows       []*models.CampaignSummary
	err        error
	lastFilter models.CampaignFilter
}

func (m *mockCampaignService) List(ctx context.Context, filter models.CampaignFilter) ([]*models.CampaignSummary, error) {
	m.lastFilter = filter
	return m.rows, m.err
}

type mockLeadService struct {
	page       *models.LeadPage
	detail     *models.LeadDetail
	err        error
	lastFilter models.LeadFilter
}

func (m *mockLeadService) List(ctx context.Context, filter models.LeadFilter) (*models.LeadPage, error) {
	m.lastFilter = filter
	return m.page, m.err
}

func (m *mockLeadService) Get(ctx context.Context, id uuid.UUID) (*models.LeadDetail, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.detail == nil {
		return nil, apperrors.ErrNotFound
	}
	return m.detail, nil
}

type mockDashboardService struct {
	accounts    []*models.AdAccount
	stats       *models.DashboardStats
	err         error
	lastRange   models.DateRange
	lastAccount string
}

func (m *mockDashboardService) ListAdAccounts(ctx context.Context) ([]*models.AdAccount, error) {
	return m.accounts, m.err
}

func (m *mockDashboardService) Stats(ctx context.Context, r models.DateRange, accountID, objective string) (*models.DashboardStats, error) {
	m.lastRange = r
	m.lastAccount = accountID
	return m.stats, m.err
}

type mockFieldMappingService struct {
	mappings  []*models.FieldMapping
	err       error
	lastInput services.FieldMappingInput
	deleted   uuid.UUID
}

func (m *mockFieldMappingService) List(ctx context.Context) ([]*models.FieldMapping, error) {
	return m.mappings, m.err
}

func (m *mockFieldMappingService) Get(ctx context.Context, id uuid.UUID) (*models.FieldMapping, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, fm := range m.mappings {
		if fm.ID == id {
			return fm, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockFieldMappingService) Create(ctx context.Context, in services.FieldMappingInput) (*models.FieldMapping, error) {
	m.lastInput = in
	if m.err != nil {
		return nil, m.err
	}
	return &models.FieldMapping{ID: uuid.New(), RawFieldName: in.RawFieldName, MappedField: in.MappedField}, nil
}

func (m *mockFieldMappingService) Update(ctx context.Context, id uuid.UUID, in services.FieldMappingInput) (*models.FieldMapping, error) {
	m.lastInput = in
	if m.err != nil {
		return nil, m.err
	}
	return &models.FieldMapping{ID: id, RawFieldName: in.RawFieldName, MappedField: in.MappedField}, nil
}

func (m *mockFieldMappingService) Delete(ctx context.Context, id uuid.UUID) error {
	m.deleted = id
	return m.err
}

func (m *mockFieldMappingService) UnmappedFields(ctx context.Context) ([]models.UnmappedField, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []models.UnmappedField{{FieldName: "Şehir", Count: 3, SampleValues: []string{"İzmir"}}}, nil
}

func (m *mockFieldMappingService) StandardFields() []string {
	return []string{"email", "full_name", "phone_number"}
}

func (m *mockFieldMappingService) Seed(ctx context.Context) (int, error) { return 0, m.err }

func (m *mockFieldMappingService) Backfill(ctx context.Context) (*services.BackfillResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &services.BackfillResult{FieldNames: 2, RowsUpdated: 9}, nil
}

type mockSubscriptionService struct {
	subs    []*models.Subscription
	results []services.SubscribeResult
	err     error
	lastIDs []string
}

func (m *mockSubscriptionService) List(ctx context.Context) ([]*models.Subscription, error) {
	return m.subs, m.err
}

func (m *mockSubscriptionService) Refresh(ctx context.Context) ([]*models.Subscription, error) {
	return m.subs, m.err
}

func (m *mockSubscriptionService) Subscribe(ctx context.Context, accountIDs []string) ([]services.SubscribeResult, error) {
	m.lastIDs = accountIDs
	return m.results, m.err
}

type mockRuleMappingService struct {
	mappings  []*models.RuleMapping
	err       error
	lastInput services.RuleMappingInput
	deleted   uuid.UUID
}

func (m *mockRuleMappingService) List(ctx context.Context) ([]*models.RuleMapping, error) {
	return m.mappings, m.err
}

func (m *mockRuleMappingService) Create(ctx context.Context, in services.RuleMappingInput) (*models.RuleMapping, error) {
	m.lastInput = in
	if m.err != nil {
		return nil, m.err
	}
	return &models.RuleMapping{ID: uuid.New(), Name: in.Name, Rules: in.Rules}, nil
}

func (m *mockRuleMappingService) Update(ctx context.Context, id uuid.UUID, in services.RuleMappingInput) (*models.RuleMapping, error) {
	m.lastInput = in
	if m.err != nil {
		return nil, m.err
	}
	return &models.RuleMapping{ID: id, Name: in.Name, Rules: in.Rules}, nil
}

func (m *mockRuleMappingService) Delete(ctx context.Context, id uuid.UUID) error {
	m.deleted = id
	return m.err
}
