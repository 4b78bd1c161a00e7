package repositories

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-adsync/pkg/database"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
)

// SubscriptionRepository tracks webhook subscription state per ad account.
type SubscriptionRepository interface {
	Upsert(ctx context.Context, sub *models.Subscription) error
	// List returns one row per stored ad account; accounts never subscribed
	// appear as not_subscribed.
	List(ctx context.Context) ([]*models.Subscription, error)
}

type subscriptionRepository struct {
	db *database.DB
}

func NewSubscriptionRepository(db *database.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

var _ SubscriptionRepository = (*subscriptionRepository)(nil)

func (r *subscriptionRepository) Upsert(ctx context.Context, sub *models.Subscription) error {
	err := r.db.Conn(ctx).QueryRow(ctx, `
		INSERT INTO subscriptions (ad_account_id, status, fields, last_attempt, last_success, last_error)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ad_account_id) DO UPDATE
		SET status = EXCLUDED.status,
		    fields = EXCLUDED.fields,
		    last_attempt = EXCLUDED.last_attempt,
		    last_success = COALESCE(EXCLUDED.last_success, subscriptions.last_success),
		    last_error = EXCLUDED.last_error,
		    updated_at = NOW()
		RETURNING id, last_success`,
		sub.AdAccountID, sub.Status, sub.Fields, sub.LastAttempt, sub.LastSuccess, sub.LastError,
	).Scan(&sub.ID, &sub.LastSuccess)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription for %s: %w", sub.AdAccountID, err)
	}
	return nil
}

func (r *subscriptionRepository) List(ctx context.Context) ([]*models.Subscription, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, `
		SELECT COALESCE(s.id, '00000000-0000-0000-0000-000000000000'::uuid), a.account_id, a.account_name,
		       COALESCE(s.status, $1), COALESCE(s.fields, ''), s.last_attempt, s.last_success, s.last_error
		FROM ad_accounts a
		LEFT JOIN subscriptions s ON s.ad_account_id = a.account_id
		ORDER BY a.account_name`, models.SubscriptionNotSubscribed)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		var s models.Subscription
		if err := rows.Scan(&s.ID, &s.AdAccountID, &s.AccountName, &s.Status, &s.Fields,
			&s.LastAttempt, &s.LastSuccess, &s.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}
	return subs, nil
}
