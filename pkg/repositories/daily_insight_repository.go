package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-adsync/pkg/database"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
)

// copyChunkSize bounds the rows sent per COPY round trip.
const copyChunkSize = 500

// DailyBatch is the complete set of fetched rows for one level over one window.
type DailyBatch struct {
	Level string
	Range models.DateRange
	Rows  []*models.DailyInsight
}

// DailyInsightRepository stores per-day metrics. Windows are always replaced
// as a whole, never merged.
type DailyInsightRepository interface {
	// Replace deletes the account's rows of each batch's level inside the
	// batch's window and inserts the batch rows, all in one transaction.
	Replace(ctx context.Context, accountID string, batches []DailyBatch) (int, error)

	// ListInRange returns every row whose date falls inside r.
	ListInRange(ctx context.Context, r models.DateRange, accountID string) ([]*models.DailyInsight, error)

	// SumSpend totals campaign-level spend inside r. Empty accountID or
	// objective match everything.
	SumSpend(ctx context.Context, r models.DateRange, accountID, objective string) (float64, error)
}

type dailyInsightRepository struct {
	db *database.DB
}

func NewDailyInsightRepository(db *database.DB) DailyInsightRepository {
	return &dailyInsightRepository{db: db}
}

var _ DailyInsightRepository = (*dailyInsightRepository)(nil)

var dailyInsightColumns = []string{
	"date", "campaign_id", "adset_id", "ad_id", "campaign_name", "adset_name", "ad_name",
	"spend_usd", "leads_count", "impressions", "clicks", "ad_account_id",
}

// levelCondition selects the rows belonging to one hierarchy level.
func levelCondition(level string) (string, error) {
	switch level {
	case models.LevelCampaign:
		return "adset_id = ''", nil
	case models.LevelAdSet:
		return "adset_id <> '' AND ad_id = ''", nil
	case models.LevelAd:
		return "ad_id <> ''", nil
	default:
		return "", fmt.Errorf("unknown insights level %q", level)
	}
}

func (r *dailyInsightRepository) Replace(ctx context.Context, accountID string, batches []DailyBatch) (int, error) {
	inserted := 0
	err := r.db.WithTx(ctx, func(ctx context.Context) error {
		conn := r.db.Conn(ctx)
		for _, b := range batches {
			cond, err := levelCondition(b.Level)
			if err != nil {
				return err
			}

			_, err = conn.Exec(ctx, `
				DELETE FROM daily_insights
				WHERE ad_account_id = $1 AND date >= $2 AND date <= $3 AND `+cond,
				accountID, b.Range.Since, b.Range.Until)
			if err != nil {
				return fmt.Errorf("failed to delete %s daily insights for %s: %w", b.Level, b.Range, err)
			}

			for start := 0; start < len(b.Rows); start += copyChunkSize {
				end := min(start+copyChunkSize, len(b.Rows))
				chunk := b.Rows[start:end]
				n, err := conn.CopyFrom(ctx, pgx.Identifier{"daily_insights"}, dailyInsightColumns,
					pgx.CopyFromSlice(len(chunk), func(i int) ([]any, error) {
						d := chunk[i]
						return []any{
							d.Date, d.CampaignID, d.AdSetID, d.AdID, d.CampaignName, d.AdSetName, d.AdName,
							d.SpendUSD, d.LeadsCount, d.Impressions, d.Clicks, d.AdAccountID,
						}, nil
					}))
				if err != nil {
					return fmt.Errorf("failed to insert %s daily insights for %s: %w", b.Level, b.Range, err)
				}
				inserted += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *dailyInsightRepository) ListInRange(ctx context.Context, dr models.DateRange, accountID string) ([]*models.DailyInsight, error) {
	query := `
		SELECT date, campaign_id, adset_id, ad_id, campaign_name, adset_name, ad_name,
		       spend_usd, leads_count, impressions, clicks, ad_account_id
		FROM daily_insights
		WHERE date >= $1 AND date <= $2`
	args := []any{dr.Since, dr.Until}
	if accountID != "" {
		query += " AND ad_account_id = $3"
		args = append(args, accountID)
	}

	rows, err := r.db.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily insights: %w", err)
	}
	defer rows.Close()

	var out []*models.DailyInsight
	for rows.Next() {
		var d models.DailyInsight
		if err := rows.Scan(&d.Date, &d.CampaignID, &d.AdSetID, &d.AdID, &d.CampaignName, &d.AdSetName, &d.AdName,
			&d.SpendUSD, &d.LeadsCount, &d.Impressions, &d.Clicks, &d.AdAccountID); err != nil {
			return nil, fmt.Errorf("failed to scan daily insight: %w", err)
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily insights: %w", err)
	}
	return out, nil
}

func (r *dailyInsightRepository) SumSpend(ctx context.Context, dr models.DateRange, accountID, objective string) (float64, error) {
	query := `
		SELECT COALESCE(SUM(d.spend_usd), 0)
		FROM daily_insights d
		LEFT JOIN campaigns c ON c.campaign_id = d.campaign_id
		WHERE d.adset_id = '' AND d.date >= $1 AND d.date <= $2
		  AND ($3::text = '' OR d.ad_account_id = $3)
		  AND ($4::text = '' OR c.type = $4)`

	var total float64
	if err := r.db.Conn(ctx).QueryRow(ctx, query, dr.Since, dr.Until, accountID, objective).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum spend: %w", err)
	}
	return total, nil
}
