package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
)

func TestDashboardService_Stats(t *testing.T) {
	spendAt := time.Date(2026, 10, 10, 6, 0, 0, 0, time.UTC)
	leads := newFakeLeadRepo()
	leads.countInRng = 42
	svc := NewDashboardService(
		newFakeAccountRepo(),
		&fakeDailyRepo{sumSpend: 1234.5},
		leads,
		&fakeSyncLogRepo{lastSuccess: map[string]*time.Time{models.SyncTypeSpend: &spendAt}},
		zap.NewNop(),
	)

	r, err := models.ParseDateRange("2026-10-01", "2026-10-10")
	require.NoError(t, err)

	stats, err := svc.Stats(context.Background(), r, "act_111", "OUTCOME_LEADS")
	require.NoError(t, err)

	assert.Equal(t, 1234.5, stats.TotalSpend)
	assert.Equal(t, 42, stats.TotalLeads)
	require.NotNil(t, stats.LastSpendSync)
	assert.True(t, spendAt.Equal(*stats.LastSpendSync))
	assert.Nil(t, stats.LastLeadsSync)
}

func TestDashboardService_ListAdAccountsNeverNil(t *testing.T) {
	svc := NewDashboardService(newFakeAccountRepo(), &fakeDailyRepo{}, newFakeLeadRepo(), &fakeSyncLogRepo{}, zap.NewNop())

	accounts, err := svc.ListAdAccounts(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, accounts)
	assert.Empty(t, accounts)
}
