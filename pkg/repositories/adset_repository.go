package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-adsync/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-adsync/pkg/database"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
)

// AdSetRepository stores ad sets keyed by their platform id.
type AdSetRepository interface {
	Upsert(ctx context.Context, adSets []*models.AdSet) (int, error)
	UpdateMetrics(ctx context.Context, adSetID string, spendUSD float64, leads int) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]*models.AdSet, error)
	Get(ctx context.Context, adSetID string) (*models.AdSet, error)
	ListNames(ctx context.Context) ([]string, error)
}

type adSetRepository struct {
	db *database.DB
}

func NewAdSetRepository(db *database.DB) AdSetRepository {
	return &adSetRepository{db: db}
}

var _ AdSetRepository = (*adSetRepository)(nil)

const adSetColumns = `id, adset_id, name, status, optimization_goal, campaign_id, ad_account_id,
		       spend_usd, insights_leads_count, created_at, updated_at`

func (r *adSetRepository) Upsert(ctx context.Context, adSets []*models.AdSet) (int, error) {
	if len(adSets) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO ad_sets (adset_id, name, status, optimization_goal, campaign_id, ad_account_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (adset_id) DO UPDATE
		SET name = EXCLUDED.name,
		    status = EXCLUDED.status,
		    optimization_goal = EXCLUDED.optimization_goal,
		    campaign_id = EXCLUDED.campaign_id,
		    ad_account_id = EXCLUDED.ad_account_id,
		    updated_at = NOW()`

	batch := &pgx.Batch{}
	for _, a := range adSets {
		batch.Queue(query, a.AdSetID, a.Name, nullString(a.Status), nullString(a.OptimizationGoal), a.CampaignID, a.AdAccountID)
	}

	if err := r.db.Conn(ctx).SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("failed to upsert %d ad sets: %w", len(adSets), err)
	}
	return len(adSets), nil
}

func (r *adSetRepository) UpdateMetrics(ctx context.Context, adSetID string, spendUSD float64, leads int) (bool, error) {
	tag, err := r.db.Conn(ctx).Exec(ctx, `
		UPDATE ad_sets
		SET spend_usd = $2, insights_leads_count = $3, updated_at = NOW()
		WHERE adset_id = $1`,
		adSetID, spendUSD, leads)
	if err != nil {
		return false, fmt.Errorf("failed to update metrics for ad set %s: %w", adSetID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *adSetRepository) List(ctx context.Context, filter ListFilter) ([]*models.AdSet, error) {
	query := "SELECT " + adSetColumns + " FROM ad_sets"
	var args []any
	if filter.AdAccountID != "" {
		query += " WHERE ad_account_id = $1"
		args = append(args, filter.AdAccountID)
	}
	query += " ORDER BY name"

	rows, err := r.db.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ad sets: %w", err)
	}
	defer rows.Close()

	var adSets []*models.AdSet
	for rows.Next() {
		a, err := scanAdSet(rows)
		if err != nil {
			return nil, err
		}
		adSets = append(adSets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ad sets: %w", err)
	}
	return adSets, nil
}

func (r *adSetRepository) Get(ctx context.Context, adSetID string) (*models.AdSet, error) {
	row := r.db.Conn(ctx).QueryRow(ctx, "SELECT "+adSetColumns+" FROM ad_sets WHERE adset_id = $1", adSetID)
	a, err := scanAdSet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	return a, err
}

func (r *adSetRepository) ListNames(ctx context.Context) ([]string, error) {
	return queryNames(ctx, r.db, "SELECT name FROM ad_sets")
}

func scanAdSet(row pgx.Row) (*models.AdSet, error) {
	var a models.AdSet
	var status, goal *string
	err := row.Scan(&a.ID, &a.AdSetID, &a.Name, &status, &goal, &a.CampaignID, &a.AdAccountID,
		&a.SpendUSD, &a.InsightsLeadsCount, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan ad set: %w", err)
	}
	a.Status = derefString(status)
	a.OptimizationGoal = derefString(goal)
	return &a, nil
}
