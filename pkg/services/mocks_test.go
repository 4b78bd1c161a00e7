package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/ekaya-inc/ekaya-adsync/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-adsync/pkg/meta"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
	"github.com/ekaya-inc/ekaya-adsync/pkg/repositories"
)

// mockMetaAPI implements MetaAPI with testify expectations.
type mockMetaAPI struct {
	mock.Mock
}

var _ MetaAPI = (*mockMetaAPI)(nil)

func (m *mockMetaAPI) ListAccounts(ctx context.Context) ([]meta.Account, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).([]meta.Account)
	return v, args.Error(1)
}

func (m *mockMetaAPI) ListCampaigns(ctx context.Context, accountID string) ([]meta.Campaign, error) {
	args := m.Called(ctx, accountID)
	v, _ := args.Get(0).([]meta.Campaign)
	return v, args.Error(1)
}

func (m *mockMetaAPI) ListAdSets(ctx context.Context, accountID string) ([]meta.AdSet, error) {
	args := m.Called(ctx, accountID)
	v, _ := args.Get(0).([]meta.AdSet)
	return v, args.Error(1)
}

func (m *mockMetaAPI) ListAds(ctx context.Context, accountID string) ([]meta.Ad, error) {
	args := m.Called(ctx, accountID)
	v, _ := args.Get(0).([]meta.Ad)
	return v, args.Error(1)
}

func (m *mockMetaAPI) ListInsights(ctx context.Context, accountID, level string, fields []string, r models.DateRange) ([]meta.InsightRow, error) {
	args := m.Called(ctx, accountID, level, fields, r)
	v, _ := args.Get(0).([]meta.InsightRow)
	return v, args.Error(1)
}

func (m *mockMetaAPI) ListDailyInsights(ctx context.Context, accountID, level string, r models.DateRange) ([]meta.DailyWindow, error) {
	args := m.Called(ctx, accountID, level, r)
	v, _ := args.Get(0).([]meta.DailyWindow)
	return v, args.Error(1)
}

func (m *mockMetaAPI) ListPages(ctx context.Context) ([]meta.Page, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).([]meta.Page)
	return v, args.Error(1)
}

func (m *mockMetaAPI) ListLeadForms(ctx context.Context, pageID, pageToken string) ([]meta.LeadForm, error) {
	args := m.Called(ctx, pageID, pageToken)
	v, _ := args.Get(0).([]meta.LeadForm)
	return v, args.Error(1)
}

// ForEachFormLeadPage feeds the pages given as the first return value to fn.
func (m *mockMetaAPI) ForEachFormLeadPage(ctx context.Context, formID, pageToken string, fn func([]meta.Lead) error) error {
	args := m.Called(ctx, formID, pageToken)
	pages, _ := args.Get(0).([][]meta.Lead)
	for _, page := range pages {
		if err := fn(page); err != nil {
			return err
		}
	}
	return args.Error(1)
}

func (m *mockMetaAPI) GetLead(ctx context.Context, leadID string) (*meta.Lead, error) {
	args := m.Called(ctx, leadID)
	v, _ := args.Get(0).(*meta.Lead)
	return v, args.Error(1)
}

func (m *mockMetaAPI) Subscribe(ctx context.Context, accountID string) (bool, error) {
	args := m.Called(ctx, accountID)
	return args.Bool(0), args.Error(1)
}

func (m *mockMetaAPI) SubscriptionStatus(ctx context.Context, accountID string) ([]meta.SubscribedApp, error) {
	args := m.Called(ctx, accountID)
	v, _ := args.Get(0).([]meta.SubscribedApp)
	return v, args.Error(1)
}

// fakeAccountRepo implements repositories.AdAccountRepository in memory.
type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*models.AdAccount
	order    []string
}

func newFakeAccountRepo(accounts ...*models.AdAccount) *fakeAccountRepo {
	r := &fakeAccountRepo{accounts: map[string]*models.AdAccount{}}
	for _, a := range accounts {
		_ = r.Upsert(context.Background(), a)
	}
	return r
}

func (r *fakeAccountRepo) Upsert(_ context.Context, a *models.AdAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[a.AccountID]; !ok {
		r.order = append(r.order, a.AccountID)
	}
	cp := *a
	r.accounts[a.AccountID] = &cp
	return nil
}

func (r *fakeAccountRepo) List(_ context.Context) ([]*models.AdAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.AdAccount, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.accounts[id])
	}
	return out, nil
}

func (r *fakeAccountRepo) Get(_ context.Context, accountID string) (*models.AdAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return a, nil
}

// metricWrite records one UpdateMetrics call.
type metricWrite struct {
	spend float64
	leads int
}

// fakeCampaignRepo implements repositories.CampaignRepository in memory.
type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns []*models.Campaign
	metrics   map[string]metricWrite
	upsertErr error
	listErr   error
}

func (r *fakeCampaignRepo) Upsert(_ context.Context, campaigns []*models.Campaign) (int, error) {
	if r.upsertErr != nil {
		return 0, r.upsertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns = append(r.campaigns, campaigns...)
	return len(campaigns), nil
}

func (r *fakeCampaignRepo) UpdateMetrics(_ context.Context, id string, spend float64, leads int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.campaigns {
		if c.CampaignID == id {
			if r.metrics == nil {
				r.metrics = map[string]metricWrite{}
			}
			r.metrics[id] = metricWrite{spend, leads}
			c.SpendUSD, c.InsightsLeadsCount = spend, leads
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeCampaignRepo) List(_ context.Context, filter repositories.ListFilter) ([]*models.Campaign, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Campaign
	for _, c := range r.campaigns {
		if filter.AdAccountID != "" && c.AdAccountID != filter.AdAccountID {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(filter.Search)) {
			continue
		}
		if filter.CreatedIn != nil {
			created := c.CreatedAt
			if c.CreatedTime != nil {
				created = *c.CreatedTime
			}
			if created.Before(filter.CreatedIn.Since) || created.After(filter.CreatedIn.Until) {
				continue
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *fakeCampaignRepo) ListNames(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.campaigns))
	for _, c := range r.campaigns {
		out = append(out, c.Name)
	}
	return out, nil
}

// fakeAdSetRepo implements repositories.AdSetRepository in memory.
type fakeAdSetRepo struct {
	mu      sync.Mutex
	adSets  []*models.AdSet
	getErr  error
	gets    int
	metrics map[string]metricWrite
}

func (r *fakeAdSetRepo) Upsert(_ context.Context, adSets []*models.AdSet) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adSets = append(r.adSets, adSets...)
	return len(adSets), nil
}

func (r *fakeAdSetRepo) UpdateMetrics(_ context.Context, id string, spend float64, leads int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.adSets {
		if a.AdSetID == id {
			if r.metrics == nil {
				r.metrics = map[string]metricWrite{}
			}
			r.metrics[id] = metricWrite{spend, leads}
			a.SpendUSD, a.InsightsLeadsCount = spend, leads
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAdSetRepo) List(_ context.Context, filter repositories.ListFilter) ([]*models.AdSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AdSet
	for _, a := range r.adSets {
		if filter.AdAccountID != "" && a.AdAccountID != filter.AdAccountID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *fakeAdSetRepo) Get(_ context.Context, id string) (*models.AdSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	if r.getErr != nil {
		return nil, r.getErr
	}
	for _, a := range r.adSets {
		if a.AdSetID == id {
			return a, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeAdSetRepo) ListNames(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.adSets))
	for _, a := range r.adSets {
		out = append(out, a.Name)
	}
	return out, nil
}

// fakeAdRepo implements repositories.AdRepository in memory.
type fakeAdRepo struct {
	mu  sync.Mutex
	ads []*models.Ad
}

func (r *fakeAdRepo) Upsert(_ context.Context, ads []*models.Ad) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ads = append(r.ads, ads...)
	return len(ads), nil
}

func (r *fakeAdRepo) UpdateMetrics(_ context.Context, id string, spend float64, leads int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.ads {
		if a.AdID == id {
			a.SpendUSD, a.InsightsLeadsCount = spend, leads
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAdRepo) List(_ context.Context, filter repositories.ListFilter) ([]*models.Ad, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Ad
	for _, a := range r.ads {
		if filter.AdAccountID != "" && a.AdAccountID != filter.AdAccountID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *fakeAdRepo) ListNames(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.ads))
	for _, a := range r.ads {
		out = append(out, a.Name)
	}
	return out, nil
}

// fakeDailyRepo implements repositories.DailyInsightRepository in memory.
type fakeDailyRepo struct {
	mu       sync.Mutex
	replaces [][]repositories.DailyBatch
	rows     []*models.DailyInsight
	sumSpend float64
	lists    int
}

func (r *fakeDailyRepo) Replace(_ context.Context, _ string, batches []repositories.DailyBatch) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaces = append(r.replaces, batches)
	n := 0
	for _, b := range batches {
		n += len(b.Rows)
	}
	return n, nil
}

func (r *fakeDailyRepo) ListInRange(_ context.Context, dr models.DateRange, accountID string) ([]*models.DailyInsight, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists++
	var out []*models.DailyInsight
	for _, d := range r.rows {
		if d.Date.Before(dr.Since) || d.Date.After(dr.Until) {
			continue
		}
		if accountID != "" && d.AdAccountID != accountID {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *fakeDailyRepo) SumSpend(_ context.Context, _ models.DateRange, _, _ string) (float64, error) {
	return r.sumSpend, nil
}

// fakeLeadRepo implements repositories.LeadRepository in memory.
type fakeLeadRepo struct {
	mu         sync.Mutex
	leads      map[string]*models.Lead
	values     []*models.LeadFieldValue
	formCounts map[string]int
	insertErr  error
	fieldsErr  error
	samples    []models.FieldSample
	unmapped   []string
	backfilled map[string]string
	countInRng int
}

func newFakeLeadRepo() *fakeLeadRepo {
	return &fakeLeadRepo{leads: map[string]*models.Lead{}, backfilled: map[string]string{}}
}

func (r *fakeLeadRepo) ExistingLeadIDs(_ context.Context, ids []string) (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]bool{}
	for _, id := range ids {
		if _, ok := r.leads[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (r *fakeLeadRepo) InsertLeads(_ context.Context, leads []*models.Lead) ([]*models.Lead, error) {
	if r.insertErr != nil {
		return nil, r.insertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var inserted []*models.Lead
	for _, l := range leads {
		if _, ok := r.leads[l.LeadID]; ok {
			continue
		}
		l.ID = uuid.New()
		l.IngestedAt = time.Now()
		r.leads[l.LeadID] = l
		for _, f := range l.Fields {
			r.values = append(r.values, &models.LeadFieldValue{
				LeadID:          l.ID,
				FieldName:       f.Name,
				MappedFieldName: f.MappedName,
				FieldValue:      f.Value,
			})
		}
		inserted = append(inserted, l)
	}
	return inserted, nil
}

func (r *fakeLeadRepo) List(_ context.Context, filter models.LeadFilter) (*models.LeadPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	page := &models.LeadPage{Items: []*models.LeadListItem{}, Page: filter.Page, Limit: filter.Limit}
	for _, l := range r.leads {
		page.Items = append(page.Items, &models.LeadListItem{Lead: *l})
	}
	page.Total = len(page.Items)
	return page, nil
}

func (r *fakeLeadRepo) GetByID(_ context.Context, id uuid.UUID) (*models.LeadListItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.leads {
		if l.ID == id {
			return &models.LeadListItem{Lead: *l}, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeLeadRepo) FieldValues(_ context.Context, id uuid.UUID) ([]*models.LeadFieldValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.LeadFieldValue
	for _, v := range r.values {
		if v.LeadID == id {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *fakeLeadRepo) FormLeadCounts(_ context.Context, _ *models.DateRange) (map[string]int, error) {
	if r.formCounts == nil {
		return map[string]int{}, nil
	}
	return r.formCounts, nil
}

func (r *fakeLeadRepo) CountInRange(_ context.Context, _ *models.DateRange, _ string) (int, error) {
	return r.countInRng, nil
}

func (r *fakeLeadRepo) FieldSamples(_ context.Context, limit int) ([]models.FieldSample, error) {
	if r.fieldsErr != nil {
		return nil, r.fieldsErr
	}
	if len(r.samples) > limit {
		return r.samples[:limit], nil
	}
	return r.samples, nil
}

func (r *fakeLeadRepo) UnmappedFieldNames(_ context.Context) ([]string, error) {
	if r.fieldsErr != nil {
		return nil, r.fieldsErr
	}
	return r.unmapped, nil
}

func (r *fakeLeadRepo) SetMappedFieldName(_ context.Context, fieldName, mapped string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backfilled[fieldName] = mapped
	return 2, nil
}

func (r *fakeLeadRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.leads)
}

func (r *fakeLeadRepo) get(leadID string) *models.Lead {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leads[leadID]
}

// fakeSyncLogRepo implements repositories.SyncLogRepository in memory.
type fakeSyncLogRepo struct {
	mu          sync.Mutex
	logs        []*models.SyncLog
	lastSuccess map[string]*time.Time
}

func (r *fakeSyncLogRepo) Create(_ context.Context, log *models.SyncLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log.ID = int64(len(r.logs) + 1)
	r.logs = append(r.logs, log)
	return nil
}

func (r *fakeSyncLogRepo) LastSuccess(_ context.Context, syncType string) (*time.Time, error) {
	return r.lastSuccess[syncType], nil
}

func (r *fakeSyncLogRepo) ListRecent(_ context.Context, limit int) ([]*models.SyncLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.logs) > limit {
		return r.logs[len(r.logs)-limit:], nil
	}
	return r.logs, nil
}

func (r *fakeSyncLogRepo) byStatus(status string) []*models.SyncLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SyncLog
	for _, l := range r.logs {
		if l.Status == status {
			out = append(out, l)
		}
	}
	return out
}

// fakeResolver maps raw names through a fixed table.
type fakeResolver struct {
	mappings     map[string]string
	invalidated  int
	resolveCalls int
}

func (f *fakeResolver) Resolve(_ context.Context, raw string) (string, bool) {
	f.resolveCalls++
	v, ok := f.mappings[raw]
	return v, ok
}

func (f *fakeResolver) ResolvePtr(ctx context.Context, raw string) *string {
	if v, ok := f.Resolve(ctx, raw); ok {
		return &v
	}
	return nil
}

func (f *fakeResolver) Invalidate() { f.invalidated++ }

// fakeFieldMappingRepo implements repositories.FieldMappingRepository in memory.
type fakeFieldMappingRepo struct {
	mappings map[uuid.UUID]*models.FieldMapping
	seeded   []*models.FieldMapping
	listErr  error
}

func newFakeFieldMappingRepo() *fakeFieldMappingRepo {
	return &fakeFieldMappingRepo{mappings: map[uuid.UUID]*models.FieldMapping{}}
}

func (r *fakeFieldMappingRepo) List(_ context.Context) ([]*models.FieldMapping, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*models.FieldMapping
	for _, m := range r.mappings {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RawFieldName < out[j].RawFieldName })
	return out, nil
}

func (r *fakeFieldMappingRepo) Get(_ context.Context, id uuid.UUID) (*models.FieldMapping, error) {
	m, ok := r.mappings[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return m, nil
}

func (r *fakeFieldMappingRepo) Create(_ context.Context, m *models.FieldMapping) error {
	for _, existing := range r.mappings {
		if existing.NormalizedName == m.NormalizedName {
			return apperrors.ErrConflict
		}
	}
	m.ID = uuid.New()
	r.mappings[m.ID] = m
	return nil
}

func (r *fakeFieldMappingRepo) Update(_ context.Context, m *models.FieldMapping) error {
	if _, ok := r.mappings[m.ID]; !ok {
		return apperrors.ErrNotFound
	}
	r.mappings[m.ID] = m
	return nil
}

func (r *fakeFieldMappingRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.mappings[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.mappings, id)
	return nil
}

func (r *fakeFieldMappingRepo) UpsertSeed(_ context.Context, mappings []*models.FieldMapping) (int, error) {
	r.seeded = append(r.seeded, mappings...)
	return len(mappings), nil
}

// fakeSubscriptionRepo implements repositories.SubscriptionRepository in memory.
type fakeSubscriptionRepo struct {
	subs map[string]*models.Subscription
}

func (r *fakeSubscriptionRepo) Upsert(_ context.Context, sub *models.Subscription) error {
	if r.subs == nil {
		r.subs = map[string]*models.Subscription{}
	}
	r.subs[sub.AdAccountID] = sub
	return nil
}

func (r *fakeSubscriptionRepo) List(_ context.Context) ([]*models.Subscription, error) {
	var out []*models.Subscription
	for _, s := range r.subs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdAccountID < out[j].AdAccountID })
	return out, nil
}

// countingInvalidator counts Invalidate calls.
type countingInvalidator struct {
	mu sync.Mutex
	n  int
}

func (c *countingInvalidator) Invalidate() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingInvalidator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
