package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
	"github.com/ekaya-inc/ekaya-adsync/pkg/repositories"
)

// SubscribeResult is the outcome for one account.
type SubscribeResult struct {
	AdAccountID string `json:"ad_account_id"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

// SubscriptionService manages webhook subscriptions of ad accounts.
type SubscriptionService interface {
	List(ctx context.Context) ([]*models.Subscription, error)
	// Refresh asks the platform for the current state of every stored account.
	Refresh(ctx context.Context) ([]*models.Subscription, error)
	// Subscribe subscribes the given accounts, or every stored account when
	// accountIDs is empty.
	Subscribe(ctx context.Context, accountIDs []string) ([]SubscribeResult, error)
}

type subscriptionService struct {
	meta     MetaAPI
	accounts repositories.AdAccountRepository
	repo     repositories.SubscriptionRepository
	logger   *zap.Logger
	now      func() time.Time
}

func NewSubscriptionService(
	metaAPI MetaAPI,
	accounts repositories.AdAccountRepository,
	repo repositories.SubscriptionRepository,
	logger *zap.Logger,
) SubscriptionService {
	return &subscriptionService{
		meta:     metaAPI,
		accounts: accounts,
		repo:     repo,
		logger:   logger.Named("subscription-service"),
		now:      time.Now,
	}
}

var _ SubscriptionService = (*subscriptionService)(nil)

func (s *subscriptionService) List(ctx context.Context) ([]*models.Subscription, error) {
	subs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []*models.Subscription{}
	}
	return subs, nil
}

func (s *subscriptionService) Refresh(ctx context.Context) ([]*models.Subscription, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, a := range accounts {
		now := s.now()
		sub := &models.Subscription{AdAccountID: a.AccountID, LastAttempt: &now}

		apps, err := s.meta.SubscriptionStatus(ctx, a.AccountID)
		switch {
		case err != nil:
			msg := err.Error()
			sub.Status = models.SubscriptionError
			sub.LastError = &msg
			s.logger.Warn("Failed to read subscription status",
				zap.String("account_id", a.AccountID),
				zap.Error(err))
		case len(apps) == 0:
			sub.Status = models.SubscriptionNotSubscribed
		default:
			sub.Status = models.SubscriptionSubscribed
			sub.Fields = strings.Join(apps[0].SubscribedFields, ",")
			sub.LastSuccess = &now
		}

		if err := s.repo.Upsert(ctx, sub); err != nil {
			return nil, err
		}
	}
	return s.List(ctx)
}

func (s *subscriptionService) Subscribe(ctx context.Context, accountIDs []string) ([]SubscribeResult, error) {
	if len(accountIDs) == 0 {
		accounts, err := s.accounts.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, a := range accounts {
			accountIDs = append(accountIDs, a.AccountID)
		}
	}

	results := make([]SubscribeResult, 0, len(accountIDs))
	for _, raw := range accountIDs {
		accountID := models.NormalizeAccountID(raw)
		now := s.now()
		sub := &models.Subscription{AdAccountID: accountID, Fields: models.SubscribedFields, LastAttempt: &now}
		result := SubscribeResult{AdAccountID: accountID}

		ok, err := s.meta.Subscribe(ctx, accountID)
		switch {
		case err != nil:
			msg := err.Error()
			sub.Status = models.SubscriptionError
			sub.LastError = &msg
			result.Error = msg
		case !ok:
			msg := "platform did not confirm the subscription"
			sub.Status = models.SubscriptionError
			sub.LastError = &msg
			result.Error = msg
		default:
			sub.Status = models.SubscriptionSubscribed
			sub.LastSuccess = &now
			result.Success = true
		}

		if err := s.repo.Upsert(ctx, sub); err != nil {
			return results, err
		}
		s.logger.Info("Subscription attempt",
			zap.String("account_id", accountID),
			zap.Bool("success", result.Success))
		results = append(results, result)
	}
	return results, nil
}
