package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
	"github.com/ekaya-inc/ekaya-adsync/pkg/repositories"
)

// DashboardService serves the headline figures and the account list.
type DashboardService interface {
	ListAdAccounts(ctx context.Context) ([]*models.AdAccount, error)
	// Stats totals spend and leads inside r. Empty accountID or objective
	// match everything.
	Stats(ctx context.Context, r models.DateRange, accountID, objective string) (*models.DashboardStats, error)
}

type dashboardService struct {
	accounts repositories.AdAccountRepository
	daily    repositories.DailyInsightRepository
	leads    repositories.LeadRepository
	syncLogs repositories.SyncLogRepository
	logger   *zap.Logger
}

func NewDashboardService(
	accounts repositories.AdAccountRepository,
	daily repositories.DailyInsightRepository,
	leads repositories.LeadRepository,
	syncLogs repositories.SyncLogRepository,
	logger *zap.Logger,
) DashboardService {
	return &dashboardService{
		accounts: accounts,
		daily:    daily,
		leads:    leads,
		syncLogs: syncLogs,
		logger:   logger.Named("dashboard-service"),
	}
}

var _ DashboardService = (*dashboardService)(nil)

func (s *dashboardService) ListAdAccounts(ctx context.Context) ([]*models.AdAccount, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []*models.AdAccount{}
	}
	return accounts, nil
}

func (s *dashboardService) Stats(ctx context.Context, r models.DateRange, accountID, objective string) (*models.DashboardStats, error) {
	accountID = models.NormalizeAccountID(accountID)
	stats := &models.DashboardStats{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.TotalSpend, err = s.daily.SumSpend(gctx, r, accountID, objective)
		return
	})
	g.Go(func() (err error) {
		stats.TotalLeads, err = s.leads.CountInRange(gctx, &r, accountID)
		return
	})
	g.Go(func() (err error) {
		stats.LastSpendSync, err = s.syncLogs.LastSuccess(gctx, models.SyncTypeSpend)
		return
	})
	g.Go(func() (err error) {
		stats.LastLeadsSync, err = s.syncLogs.LastSuccess(gctx, models.SyncTypeLeads)
		return
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compute dashboard stats: %w", err)
	}
	return stats, nil
}
