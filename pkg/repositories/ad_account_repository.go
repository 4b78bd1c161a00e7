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

// AdAccountRepository stores ad accounts. Accounts are created on first sync,
// renamed on later syncs and never deleted.
type AdAccountRepository interface {
	Upsert(ctx context.Context, account *models.AdAccount) error
	List(ctx context.Context) ([]*models.AdAccount, error)
	Get(ctx context.Context, accountID string) (*models.AdAccount, error)
}

type adAccountRepository struct {
	db *database.DB
}

func NewAdAccountRepository(db *database.DB) AdAccountRepository {
	return &adAccountRepository{db: db}
}

var _ AdAccountRepository = (*adAccountRepository)(nil)

func (r *adAccountRepository) Upsert(ctx context.Context, account *models.AdAccount) error {
	query := `
		INSERT INTO ad_accounts (account_id, account_name, currency, account_status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id) DO UPDATE
		SET account_name = EXCLUDED.account_name,
		    currency = COALESCE(EXCLUDED.currency, ad_accounts.currency),
		    account_status = COALESCE(EXCLUDED.account_status, ad_accounts.account_status),
		    updated_at = NOW()
		RETURNING id, created_at, updated_at`

	var status *int
	if account.AccountStatus != 0 {
		status = &account.AccountStatus
	}

	err := r.db.Conn(ctx).QueryRow(ctx, query,
		account.AccountID,
		account.AccountName,
		nullString(account.Currency),
		status,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert ad account %s: %w", account.AccountID, err)
	}
	return nil
}

func (r *adAccountRepository) List(ctx context.Context) ([]*models.AdAccount, error) {
	query := `
		SELECT id, account_id, account_name, currency, account_status, created_at, updated_at
		FROM ad_accounts
		ORDER BY account_name`

	rows, err := r.db.Conn(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ad accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.AdAccount
	for rows.Next() {
		a, err := scanAdAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ad accounts: %w", err)
	}
	return accounts, nil
}

func (r *adAccountRepository) Get(ctx context.Context, accountID string) (*models.AdAccount, error) {
	query := `
		SELECT id, account_id, account_name, currency, account_status, created_at, updated_at
		FROM ad_accounts
		WHERE account_id = $1`

	a, err := scanAdAccount(r.db.Conn(ctx).QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func scanAdAccount(row pgx.Row) (*models.AdAccount, error) {
	var a models.AdAccount
	var currency *string
	var status *int
	if err := row.Scan(&a.ID, &a.AccountID, &a.AccountName, &currency, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan ad account: %w", err)
	}
	a.Currency = derefString(currency)
	if status != nil {
		a.AccountStatus = *status
	}
	return &a, nil
}
