package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
	"github.com/ekaya-inc/ekaya-adsync/pkg/repositories"
)

// CampaignService serves the flat campaign list.
type CampaignService interface {
	// List returns stored campaigns ordered by spend, highest first.
	List(ctx context.Context, filter models.CampaignFilter) ([]*models.CampaignSummary, error)
}

type campaignService struct {
	campaigns repositories.CampaignRepository
	accounts  repositories.AdAccountRepository
	leads     repositories.LeadRepository
	logger    *zap.Logger
}

func NewCampaignService(
	campaigns repositories.CampaignRepository,
	accounts repositories.AdAccountRepository,
	leads repositories.LeadRepository,
	logger *zap.Logger,
) CampaignService {
	return &campaignService{
		campaigns: campaigns,
		accounts:  accounts,
		leads:     leads,
		logger:    logger.Named("campaign-service"),
	}
}

var _ CampaignService = (*campaignService)(nil)

func (s *campaignService) List(ctx context.Context, filter models.CampaignFilter) ([]*models.CampaignSummary, error) {
	var (
		campaigns  []*models.Campaign
		accounts   []*models.AdAccount
		formCounts map[string]int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		campaigns, err = s.campaigns.List(gctx, repositories.ListFilter{
			AdAccountID: models.NormalizeAccountID(filter.AdAccountID),
			Search:      filter.Search,
			CreatedIn:   filter.DateRange,
		})
		return
	})
	g.Go(func() (err error) {
		accounts, err = s.accounts.List(gctx)
		return
	})
	g.Go(func() (err error) {
		formCounts, err = s.leads.FormLeadCounts(gctx, nil)
		return
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load campaigns: %w", err)
	}

	names := make(map[string]string, len(accounts))
	for _, a := range accounts {
		names[a.AccountID] = a.AccountName
	}

	out := make([]*models.CampaignSummary, 0, len(campaigns))
	for _, c := range campaigns {
		row := &models.CampaignSummary{
			Campaign:      *c,
			AdAccountName: names[c.AdAccountID],
			FormLeads:     formCounts[c.CampaignID],
		}
		row.Leads = row.FormLeads
		if c.InsightsLeadsCount > 0 {
			row.Leads = c.InsightsLeadsCount
		}
		out = append(out, row)
	}
	return out, nil
}
