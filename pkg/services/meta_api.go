package services

import (
	"context"

	"github.com/ekaya-inc/ekaya-adsync/pkg/meta"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
)

// MetaAPI is the part of the Graph API the services depend on.
// *meta.Service implements it; tests substitute a mock.
type MetaAPI interface {
	ListAccounts(ctx context.Context) ([]meta.Account, error)
	ListCampaigns(ctx context.Context, accountID string) ([]meta.Campaign, error)
	ListAdSets(ctx context.Context, accountID string) ([]meta.AdSet, error)
	ListAds(ctx context.Context, accountID string) ([]meta.Ad, error)
	ListInsights(ctx context.Context, accountID, level string, fields []string, r models.DateRange) ([]meta.InsightRow, error)
	ListDailyInsights(ctx context.Context, accountID, level string, r models.DateRange) ([]meta.DailyWindow, error)

	ListPages(ctx context.Context) ([]meta.Page, error)
	ListLeadForms(ctx context.Context, pageID, pageToken string) ([]meta.LeadForm, error)
	ForEachFormLeadPage(ctx context.Context, formID, pageToken string, fn func([]meta.Lead) error) error
	GetLead(ctx context.Context, leadID string) (*meta.Lead, error)

	Subscribe(ctx context.Context, accountID string) (bool, error)
	SubscriptionStatus(ctx context.Context, accountID string) ([]meta.SubscribedApp, error)
}

var _ MetaAPI = (*meta.Service)(nil)

// CacheInvalidator is implemented by read caches that must be dropped after
// a sync changes the underlying rows.
type CacheInvalidator interface {
	Invalidate()
}

// RunStatus is the state of a sync run.
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunError     RunStatus = "error"
)
