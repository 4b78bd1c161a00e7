package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-adsync/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-adsync/pkg/database"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
)

// formLeadPageSize caps rows per keyset page when counting leads per campaign.
const formLeadPageSize = 1000

// LeadRepository stores form submissions and their field values.
// Leads are immutable; the external lead id is the dedup key.
type LeadRepository interface {
	// ExistingLeadIDs returns the subset of ids already stored.
	ExistingLeadIDs(ctx context.Context, leadIDs []string) (map[string]bool, error)

	// InsertLeads inserts the leads not yet stored together with their field
	// values and returns the ones actually inserted. A lead whose id was
	// inserted concurrently is silently skipped.
	InsertLeads(ctx context.Context, leads []*models.Lead) ([]*models.Lead, error)

	List(ctx context.Context, filter models.LeadFilter) (*models.LeadPage, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.LeadListItem, error)
	FieldValues(ctx context.Context, leadID uuid.UUID) ([]*models.LeadFieldValue, error)

	// FormLeadCounts counts stored leads per campaign id, optionally only
	// those captured inside r.
	FormLeadCounts(ctx context.Context, r *models.DateRange) (map[string]int, error)

	// CountInRange counts leads captured inside r. Nil r counts everything.
	CountInRange(ctx context.Context, r *models.DateRange, accountID string) (int, error)

	// FieldSamples returns up to limit stored field name/value pairs.
	FieldSamples(ctx context.Context, limit int) ([]models.FieldSample, error)

	// UnmappedFieldNames lists distinct stored field names without a mapped name.
	UnmappedFieldNames(ctx context.Context) ([]string, error)

	// SetMappedFieldName fills mapped_field_name on every value of fieldName
	// that has none yet.
	SetMappedFieldName(ctx context.Context, fieldName, mapped string) (int64, error)
}

type leadRepository struct {
	db *database.DB
}

func NewLeadRepository(db *database.DB) LeadRepository {
	return &leadRepository{db: db}
}

var _ LeadRepository = (*leadRepository)(nil)

func (r *leadRepository) ExistingLeadIDs(ctx context.Context, leadIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(leadIDs) == 0 {
		return existing, nil
	}

	rows, err := r.db.Conn(ctx).Query(ctx, `SELECT lead_id FROM leads WHERE lead_id = ANY($1)`, leadIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing leads: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect existing leads: %w", err)
	}
	for _, id := range ids {
		existing[id] = true
	}
	return existing, nil
}

func (r *leadRepository) InsertLeads(ctx context.Context, leads []*models.Lead) ([]*models.Lead, error) {
	if len(leads) == 0 {
		return nil, nil
	}

	var inserted []*models.Lead
	err := r.db.WithTx(ctx, func(ctx context.Context) error {
		inserted = inserted[:0]
		conn := r.db.Conn(ctx)

		query := `
			INSERT INTO leads (lead_id, form_id, form_name, page_id, ad_id, ad_name, ad_set_id, ad_set_name,
			                   campaign_id, campaign_name, ad_account_id, source, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (lead_id) DO NOTHING
			RETURNING id, ingested_at`

		batch := &pgx.Batch{}
		for _, l := range leads {
			batch.Queue(query, l.LeadID, nullString(l.FormID), nullString(l.FormName), nullString(l.PageID),
				nullString(l.AdID), nullString(l.AdName), nullString(l.AdSetID), nullString(l.AdSetName),
				nullString(l.CampaignID), nullString(l.CampaignName), nullString(l.AdAccountID), l.Source, l.CreatedAt)
		}

		br := conn.SendBatch(ctx, batch)
		for _, l := range leads {
			err := br.QueryRow().Scan(&l.ID, &l.IngestedAt)
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			if err != nil {
				_ = br.Close()
				return fmt.Errorf("failed to insert lead %s: %w", l.LeadID, err)
			}
			inserted = append(inserted, l)
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("failed to insert leads: %w", err)
		}

		var values [][]any
		for _, l := range inserted {
			for _, f := range l.Fields {
				values = append(values, []any{l.ID, f.Name, f.Value, f.MappedName})
			}
		}
		if len(values) == 0 {
			return nil
		}
		_, err := conn.CopyFrom(ctx, pgx.Identifier{"lead_field_values"},
			[]string{"lead_id", "field_name", "field_value", "mapped_field_name"},
			pgx.CopyFromRows(values))
		if err != nil {
			return fmt.Errorf("failed to insert lead field values: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

const leadListSelect = `
	SELECT l.id, l.lead_id, l.form_id, l.form_name, l.page_id, l.ad_id, l.ad_name, l.ad_set_id, l.ad_set_name,
	       l.campaign_id, l.campaign_name, l.ad_account_id, l.source, l.created_at, l.ingested_at,
	       COALESCE(a.account_name, ''), COALESCE(c.name, '')
	FROM leads l
	LEFT JOIN ad_accounts a ON a.account_id = l.ad_account_id
	LEFT JOIN campaigns c ON c.campaign_id = l.campaign_id`

func (r *leadRepository) List(ctx context.Context, filter models.LeadFilter) (*models.LeadPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}

	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.DateRange != nil {
		add("l.created_at >= $%d", filter.DateRange.Since)
		add("l.created_at < $%d", filter.DateRange.EndExclusive())
	}
	if filter.AdAccountID != "" {
		add("l.ad_account_id = $%d", filter.AdAccountID)
	}
	if filter.CampaignID != "" {
		add("l.campaign_id = $%d", filter.CampaignID)
	}
	if filter.FormName != "" {
		add("l.form_name = $%d", filter.FormName)
	}
	if filter.Search != "" {
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(l.lead_id ILIKE $%[1]d OR l.form_name ILIKE $%[1]d OR l.campaign_name ILIKE $%[1]d OR l.ad_name ILIKE $%[1]d)", n))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	conn := r.db.Conn(ctx)
	var total int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM leads l"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count leads: %w", err)
	}

	query := leadListSelect + where +
		fmt.Sprintf(" ORDER BY l.created_at DESC, l.id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	page := &models.LeadPage{Items: []*models.LeadListItem{}, Total: total, Page: filter.Page, Limit: filter.Limit}
	for rows.Next() {
		item, err := scanLeadListItem(rows)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leads: %w", err)
	}
	return page, nil
}

func (r *leadRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.LeadListItem, error) {
	item, err := scanLeadListItem(r.db.Conn(ctx).QueryRow(ctx, leadListSelect+" WHERE l.id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

func (r *leadRepository) FieldValues(ctx context.Context, leadID uuid.UUID) ([]*models.LeadFieldValue, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, `
		SELECT id, lead_id, field_name, mapped_field_name, field_value
		FROM lead_field_values
		WHERE lead_id = $1
		ORDER BY id`, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lead field values: %w", err)
	}
	defer rows.Close()

	var values []*models.LeadFieldValue
	for rows.Next() {
		var v models.LeadFieldValue
		if err := rows.Scan(&v.ID, &v.LeadID, &v.FieldName, &v.MappedFieldName, &v.FieldValue); err != nil {
			return nil, fmt.Errorf("failed to scan lead field value: %w", err)
		}
		values = append(values, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lead field values: %w", err)
	}
	return values, nil
}

func (r *leadRepository) FormLeadCounts(ctx context.Context, dr *models.DateRange) (map[string]int, error) {
	counts := make(map[string]int)
	conn := r.db.Conn(ctx)

	var last uuid.UUID
	for {
		query := `
			SELECT id, campaign_id
			FROM leads
			WHERE id > $1 AND campaign_id IS NOT NULL`
		args := []any{last}
		if dr != nil {
			query += " AND created_at >= $2 AND created_at < $3"
			args = append(args, dr.Since, dr.EndExclusive())
		}
		query += fmt.Sprintf(" ORDER BY id LIMIT %d", formLeadPageSize)

		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query lead campaigns: %w", err)
		}

		n := 0
		for rows.Next() {
			var campaignID string
			if err := rows.Scan(&last, &campaignID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan lead campaign: %w", err)
			}
			counts[campaignID]++
			n++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating lead campaigns: %w", err)
		}
		if n < formLeadPageSize {
			return counts, nil
		}
	}
}

func (r *leadRepository) CountInRange(ctx context.Context, dr *models.DateRange, accountID string) (int, error) {
	query := "SELECT COUNT(*) FROM leads WHERE ($1::text = '' OR ad_account_id = $1)"
	args := []any{accountID}
	if dr != nil {
		query += " AND created_at >= $2 AND created_at < $3"
		args = append(args, dr.Since, dr.EndExclusive())
	}

	var n int
	if err := r.db.Conn(ctx).QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count leads: %w", err)
	}
	return n, nil
}

func (r *leadRepository) FieldSamples(ctx context.Context, limit int) ([]models.FieldSample, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, `
		SELECT field_name, field_value
		FROM lead_field_values
		ORDER BY id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query field samples: %w", err)
	}
	samples, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.FieldSample, error) {
		var s models.FieldSample
		err := row.Scan(&s.FieldName, &s.FieldValue)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect field samples: %w", err)
	}
	return samples, nil
}

func (r *leadRepository) UnmappedFieldNames(ctx context.Context) ([]string, error) {
	return queryNames(ctx, r.db, `
		SELECT DISTINCT field_name
		FROM lead_field_values
		WHERE mapped_field_name IS NULL
		ORDER BY field_name`)
}

func (r *leadRepository) SetMappedFieldName(ctx context.Context, fieldName, mapped string) (int64, error) {
	tag, err := r.db.Conn(ctx).Exec(ctx, `
		UPDATE lead_field_values
		SET mapped_field_name = $2
		WHERE field_name = $1 AND mapped_field_name IS NULL`,
		fieldName, mapped)
	if err != nil {
		return 0, fmt.Errorf("failed to backfill mapped name for %q: %w", fieldName, err)
	}
	return tag.RowsAffected(), nil
}

func scanLeadListItem(row pgx.Row) (*models.LeadListItem, error) {
	var item models.LeadListItem
	var formID, formName, pageID, adID, adName, adSetID, adSetName, campaignID, campaignName, accountID *string
	err := row.Scan(&item.ID, &item.LeadID, &formID, &formName, &pageID, &adID, &adName, &adSetID, &adSetName,
		&campaignID, &campaignName, &accountID, &item.Source, &item.CreatedAt, &item.IngestedAt,
		&item.AdAccountName, &item.StoredCampaignName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan lead: %w", err)
	}
	item.FormID = derefString(formID)
	item.FormName = derefString(formName)
	item.PageID = derefString(pageID)
	item.AdID = derefString(adID)
	item.AdName = derefString(adName)
	item.AdSetID = derefString(adSetID)
	item.AdSetName = derefString(adSetName)
	item.CampaignID = derefString(campaignID)
	item.CampaignName = derefString(campaignName)
	item.AdAccountID = derefString(accountID)
	return &item, nil
}
