package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-adsync/pkg/database"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
)

// CampaignRepository stores campaigns keyed by their platform id.
type CampaignRepository interface {
	// Upsert writes one chunk of campaigns in a single batch round trip.
	// Later values overwrite earlier ones; spend and lead counts are untouched.
	Upsert(ctx context.Context, campaigns []*models.Campaign) (int, error)

	// UpdateMetrics overwrites spend and platform lead count. Returns false
	// when no campaign has that id.
	UpdateMetrics(ctx context.Context, campaignID string, spendUSD float64, leads int) (bool, error)

	List(ctx context.Context, filter ListFilter) ([]*models.Campaign, error)

	// ListNames returns every campaign name, for country discovery.
	ListNames(ctx context.Context) ([]string, error)
}

type campaignRepository struct {
	db *database.DB
}

func NewCampaignRepository(db *database.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

var _ CampaignRepository = (*campaignRepository)(nil)

func (r *campaignRepository) Upsert(ctx context.Context, campaigns []*models.Campaign) (int, error) {
	if len(campaigns) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO campaigns (campaign_id, name, type, status, ad_account_id, created_time)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (campaign_id) DO UPDATE
		SET name = EXCLUDED.name,
		    type = EXCLUDED.type,
		    status = EXCLUDED.status,
		    ad_account_id = EXCLUDED.ad_account_id,
		    created_time = COALESCE(EXCLUDED.created_time, campaigns.created_time),
		    updated_at = NOW()`

	batch := &pgx.Batch{}
	for _, c := range campaigns {
		batch.Queue(query, c.CampaignID, c.Name, nullString(c.Type), nullString(c.Status), c.AdAccountID, c.CreatedTime)
	}

	if err := r.db.Conn(ctx).SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("failed to upsert %d campaigns: %w", len(campaigns), err)
	}
	return len(campaigns), nil
}

func (r *campaignRepository) UpdateMetrics(ctx context.Context, campaignID string, spendUSD float64, leads int) (bool, error) {
	tag, err := r.db.Conn(ctx).Exec(ctx, `
		UPDATE campaigns
		SET spend_usd = $2, insights_leads_count = $3, updated_at = NOW()
		WHERE campaign_id = $1`,
		campaignID, spendUSD, leads)
	if err != nil {
		return false, fmt.Errorf("failed to update metrics for campaign %s: %w", campaignID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *campaignRepository) List(ctx context.Context, filter ListFilter) ([]*models.Campaign, error) {
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
	if filter.CreatedIn != nil {
		args = append(args, filter.CreatedIn.Since, filter.CreatedIn.Until)
		conds = append(conds, fmt.Sprintf("COALESCE(created_time, created_at)::date BETWEEN $%d AND $%d", len(args)-1, len(args)))
	}

	query := `
		SELECT id, campaign_id, name, type, status, ad_account_id, spend_usd,
		       insights_leads_count, created_time, created_at, updated_at
		FROM campaigns`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY spend_usd DESC, name"

	rows, err := r.db.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*models.Campaign
	for rows.Next() {
		var c models.Campaign
		var typ, status *string
		if err := rows.Scan(&c.ID, &c.CampaignID, &c.Name, &typ, &status, &c.AdAccountID, &c.SpendUSD,
			&c.InsightsLeadsCount, &c.CreatedTime, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		c.Type = derefString(typ)
		c.Status = derefString(status)
		campaigns = append(campaigns, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaigns: %w", err)
	}
	return campaigns, nil
}

func (r *campaignRepository) ListNames(ctx context.Context) ([]string, error) {
	return queryNames(ctx, r.db, "SELECT name FROM campaigns")
}

func queryNames(ctx context.Context, db *database.DB, query string) ([]string, error) {
	rows, err := db.Conn(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query names: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect names: %w", err)
	}
	return names, nil
}
