package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-adsync/pkg/meta"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
)

type leadSyncFixture struct {
	api      *mockMetaAPI
	leads    *fakeLeadRepo
	adSets   *fakeAdSetRepo
	syncLogs *fakeSyncLogRepo
	svc      *leadSyncService
}

func newLeadSyncFixture() *leadSyncFixture {
	f := &leadSyncFixture{
		api:      &mockMetaAPI{},
		leads:    newFakeLeadRepo(),
		adSets:   &fakeAdSetRepo{adSets: []*models.AdSet{{AdSetID: "s1", CampaignID: "c1", AdAccountID: "111"}}},
		syncLogs: &fakeSyncLogRepo{},
	}
	resolver := &fakeResolver{mappings: map[string]string{"Full Name": "full_name"}}
	f.svc = NewLeadSyncService(f.api, f.leads, f.adSets, f.syncLogs, resolver, nil, zap.NewNop()).(*leadSyncService)
	return f
}

func (f *leadSyncFixture) expectForms() {
	f.api.On("ListPages", mock.Anything).Return([]meta.Page{{ID: "p1", Name: "Brand page", AccessToken: "page-token"}}, nil)
	f.api.On("ListLeadForms", mock.Anything, "p1", "page-token").Return([]meta.LeadForm{
		{ID: "f1", Name: "Form A", Status: "ACTIVE", LeadsCount: 3},
		{ID: "f0", Name: "Empty form", LeadsCount: 0},
		{ID: "f2", Name: "Form B", Status: "ACTIVE", LeadsCount: 9},
	}, nil)
}

func TestLeadSyncService_Run_CountsAndDedups(t *testing.T) {
	f := newLeadSyncFixture()
	f.expectForms()
	f.leads.leads["l3"] = &models.Lead{LeadID: "l3"}

	l1 := meta.Lead{
		ID:          "l1",
		CreatedTime: "2026-10-01T08:30:00+0000",
		AdSetID:     "s1",
		CampaignID:  "c1",
		FieldData: []meta.FieldData{
			{Name: "Full Name", Values: []string{"Ana"}},
			{Name: "Phone", Values: []string{"1", "2"}},
		},
	}
	l2 := meta.Lead{ID: "l2", CreatedTime: "2026-10-01T09:00:00+0000", AdSetID: "s1"}
	f.api.On("ForEachFormLeadPage", mock.Anything, "f1", "page-token").
		Return([][]meta.Lead{{l1, l2, l1}, {{ID: "l3"}}}, nil)
	f.api.On("ForEachFormLeadPage", mock.Anything, "f2", "page-token").
		Return(nil, errors.New("form access revoked"))

	progress, err := f.svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, RunCompleted, progress.Status)
	assert.Equal(t, 2, progress.FormsTotal)
	assert.Equal(t, 2, progress.FormsProcessed)
	assert.Equal(t, 4, progress.Fetched)
	assert.Equal(t, 2, progress.Inserted)
	assert.Equal(t, 2, progress.Skipped)
	assert.Equal(t, 1, progress.Errors, "a failing form does not stop the run")

	stored := f.leads.get("l1")
	require.NotNil(t, stored)
	assert.Equal(t, "f1", stored.FormID)
	assert.Equal(t, "Form A", stored.FormName)
	assert.Equal(t, "p1", stored.PageID)
	assert.Equal(t, "111", stored.AdAccountID)
	assert.Equal(t, models.LeadSourceSync, stored.Source)
	assert.Equal(t, 2026, stored.CreatedAt.Year())

	require.Len(t, stored.Fields, 2)
	require.NotNil(t, stored.Fields[0].MappedName)
	assert.Equal(t, "full_name", *stored.Fields[0].MappedName)
	assert.Nil(t, stored.Fields[1].MappedName)
	assert.Equal(t, "1, 2", stored.Fields[1].Value)

	assert.Equal(t, 1, f.adSets.gets, "ad set account lookups are cached")

	logs := f.syncLogs.byStatus(models.SyncStatusSuccess)
	require.Len(t, logs, 1)
	assert.Equal(t, models.SyncTypeLeads, logs[0].Type)
}

func TestLeadSyncService_Run_SecondRunInsertsNothing(t *testing.T) {
	f := newLeadSyncFixture()
	f.api.On("ListPages", mock.Anything).Return([]meta.Page{{ID: "p1", AccessToken: "page-token"}}, nil)
	f.api.On("ListLeadForms", mock.Anything, "p1", "page-token").Return([]meta.LeadForm{{ID: "f1", LeadsCount: 2}}, nil)
	f.api.On("ForEachFormLeadPage", mock.Anything, "f1", "page-token").
		Return([][]meta.Lead{{{ID: "l1"}, {ID: "l2"}}}, nil)

	first, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)

	second, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 2, f.leads.count())
}

func TestLeadSyncService_Run_DiscoveryFailure(t *testing.T) {
	f := newLeadSyncFixture()
	f.api.On("ListPages", mock.Anything).Return(nil, errors.New("token expired"))

	progress, err := f.svc.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, RunError, progress.Status)
	assert.Contains(t, progress.Error, "token expired")
	assert.Len(t, f.syncLogs.byStatus(models.SyncStatusError), 1)
}

func TestLeadSyncService_SyncForm(t *testing.T) {
	f := newLeadSyncFixture()
	f.expectForms()
	f.api.On("ForEachFormLeadPage", mock.Anything, "f1", "page-token").
		Return([][]meta.Lead{{{ID: "l1"}}}, nil)

	result, err := f.svc.SyncForm(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "Form A", result.FormName)
	assert.Equal(t, 1, result.Fetched)
	assert.Equal(t, 1, result.Inserted)

	logs := f.syncLogs.byStatus(models.SyncStatusSuccess)
	require.Len(t, logs, 1)
	assert.Equal(t, models.SyncTypeLeadForm, logs[0].Type)

	_, err = f.svc.SyncForm(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.svc.SyncForm(context.Background(), "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestLeadSyncService_ListAvailableForms(t *testing.T) {
	f := newLeadSyncFixture()
	f.expectForms()

	forms, err := f.svc.ListAvailableForms(context.Background())
	require.NoError(t, err)

	require.Len(t, forms, 2)
	assert.Equal(t, "f2", forms[0].FormID, "sorted by lead count")
	assert.Equal(t, "f1", forms[1].FormID)
	assert.Equal(t, "Brand page", forms[0].PageName)
}

func TestLeadIngester_InsertFailure(t *testing.T) {
	leads := newFakeLeadRepo()
	leads.insertErr = errors.New("check constraint violated")
	in := newLeadIngester(leads, &fakeAdSetRepo{}, &fakeResolver{}, nil, zap.NewNop())

	_, _, err := in.ingest(context.Background(), leadSource{Source: models.LeadSourceSync}, []meta.Lead{{ID: "l1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check constraint violated")
}

func TestLeadIngester_UnparseableTimeFallsBackToNow(t *testing.T) {
	leads := newFakeLeadRepo()
	in := newLeadIngester(leads, &fakeAdSetRepo{}, &fakeResolver{}, nil, zap.NewNop())

	inserted, skipped, err := in.ingest(context.Background(), leadSource{Source: models.LeadSourceSync},
		[]meta.Lead{{ID: "l1", CreatedTime: "yesterday"}})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 0, skipped)
	assert.False(t, leads.get("l1").CreatedAt.IsZero())
}
