package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-adsync/pkg/database"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
)

// AdRepository stores ads keyed by their platform id.
type AdRepository interface {
	Upsert(ctx context.Context, ads []*models.Ad) (int, error)
	UpdateMetrics(ctx context.Context, adID string, spendUSD float64, leads int) (bool, error)
	// List honours filter.Search as a name substring, used as a cheap
	// pre-filter when a country is requested.
	List(ctx context.Context, filter ListFilter) ([]*models.Ad, error)
	ListNames(ctx context.Context) ([]string, error)
}

type adRepository struct {
	db *database.DB
}

func NewAdRepository(db *database.DB) AdRepository {
	return &adRepository{db: db}
}

var _ AdRepository = (*adRepository)(nil)

func (r *adRepository) Upsert(ctx context.Context, ads []*models.Ad) (int, error) {
	if len(ads) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO ads (ad_id, name, status, adset_id, campaign_id, ad_account_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ad_id) DO UPDATE
		SET name = EXCLUDED.name,
		    status = EXCLUDED.status,
		    adset_id = EXCLUDED.adset_id,
		    campaign_id = EXCLUDED.campaign_id,
		    ad_account_id = EXCLUDED.ad_account_id,
		    updated_at = NOW()`

	batch := &pgx.Batch{}
	for _, a := range ads {
		batch.Queue(query, a.AdID, a.Name, nullString(a.Status), a.AdSetID, a.CampaignID, a.AdAccountID)
	}

	if err := r.db.Conn(ctx).SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("failed to upsert %d ads: %w", len(ads), err)
	}
	return len(ads), nil
}

func (r *adRepository) UpdateMetrics(ctx context.Context, adID string, spendUSD float64, leads int) (bool, error) {
	tag, err := r.db.Conn(ctx).Exec(ctx, `
		UPDATE ads
		SET spend_usd = $2, insights_leads_count = $3, updated_at = NOW()
		WHERE ad_id = $1`,
		adID, spendUSD, leads)
	if err != nil {
		return false, fmt.Errorf("failed to update metrics for ad %s: %w", adID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *adRepository) List(ctx context.Context, filter ListFilter) ([]*models.Ad, error) {
	var (
		conds []string
		args  []any
	)
	if filter.AdAccountID != "" {
		args = append(args, filter.AdAccountID)
		conds = append(conds, fmt.Sprintf("ad_account_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}

	query := `
		SELECT id, ad_id, name, status, adset_id, campaign_id, ad_account_id,
		       spend_usd, insights_leads_count, created_at, updated_at
		FROM ads`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name"

	rows, err := r.db.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ads: %w", err)
	}
	defer rows.Close()

	var ads []*models.Ad
	for rows.Next() {
		var a models.Ad
		var status *string
		if err := rows.Scan(&a.ID, &a.AdID, &a.Name, &status, &a.AdSetID, &a.CampaignID, &a.AdAccountID,
			&a.SpendUSD, &a.InsightsLeadsCount, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ad: %w", err)
		}
		a.Status = derefString(status)
		ads = append(ads, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ads: %w", err)
	}
	return ads, nil
}

func (r *adRepository) ListNames(ctx context.Context) ([]string, error) {
	return queryNames(ctx, r.db, "SELECT name FROM ads")
}
