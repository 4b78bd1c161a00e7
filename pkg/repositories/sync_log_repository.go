package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-adsync/pkg/database"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
)

// SyncLogRepository appends sync audit rows.
type SyncLogRepository interface {
	Create(ctx context.Context, log *models.SyncLog) error
	// LastSuccess returns the time of the newest successful run of syncType,
	// or nil when there is none.
	LastSuccess(ctx context.Context, syncType string) (*time.Time, error)
	ListRecent(ctx context.Context, limit int) ([]*models.SyncLog, error)
}

type syncLogRepository struct {
	db *database.DB
}

func NewSyncLogRepository(db *database.DB) SyncLogRepository {
	return &syncLogRepository{db: db}
}

var _ SyncLogRepository = (*syncLogRepository)(nil)

func (r *syncLogRepository) Create(ctx context.Context, log *models.SyncLog) error {
	err := r.db.Conn(ctx).QueryRow(ctx, `
		INSERT INTO sync_logs (type, status, ad_account_id, error_message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		log.Type, log.Status, log.AdAccountID, log.ErrorMessage,
	).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create sync log: %w", err)
	}
	return nil
}

func (r *syncLogRepository) LastSuccess(ctx context.Context, syncType string) (*time.Time, error) {
	var t time.Time
	err := r.db.Conn(ctx).QueryRow(ctx, `
		SELECT created_at
		FROM sync_logs
		WHERE type = $1 AND status = 'success'
		ORDER BY created_at DESC
		LIMIT 1`, syncType).Scan(&t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query last %s sync: %w", syncType, err)
	}
	return &t, nil
}

func (r *syncLogRepository) ListRecent(ctx context.Context, limit int) ([]*models.SyncLog, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, `
		SELECT id, type, status, ad_account_id, error_message, created_at
		FROM sync_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.SyncLog
	for rows.Next() {
		var l models.SyncLog
		if err := rows.Scan(&l.ID, &l.Type, &l.Status, &l.AdAccountID, &l.ErrorMessage, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync logs: %w", err)
	}
	return logs, nil
}
