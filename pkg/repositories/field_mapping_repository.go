package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-adsync/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-adsync/pkg/database"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
)

// FieldMappingRepository stores raw-to-canonical field name mappings.
// Implements fieldmap.Loader through List.
type FieldMappingRepository interface {
	List(ctx context.Context) ([]*models.FieldMapping, error)
	Get(ctx context.Context, id uuid.UUID) (*models.FieldMapping, error)
	// Create returns apperrors.ErrConflict when the raw or normalized name exists.
	Create(ctx context.Context, m *models.FieldMapping) error
	Update(ctx context.Context, m *models.FieldMapping) error
	Delete(ctx context.Context, id uuid.UUID) error
	// UpsertSeed inserts or refreshes mappings keyed on normalized name.
	UpsertSeed(ctx context.Context, mappings []*models.FieldMapping) (int, error)
}

type fieldMappingRepository struct {
	db *database.DB
}

func NewFieldMappingRepository(db *database.DB) FieldMappingRepository {
	return &fieldMappingRepository{db: db}
}

var _ FieldMappingRepository = (*fieldMappingRepository)(nil)

const fieldMappingColumns = `id, raw_field_name, normalized_name, mapped_field, language, auto_detected, created_at, updated_at`

func (r *fieldMappingRepository) List(ctx context.Context) ([]*models.FieldMapping, error) {
	rows, err := r.db.Conn(ctx).Query(ctx,
		"SELECT "+fieldMappingColumns+" FROM field_mappings ORDER BY mapped_field, raw_field_name")
	if err != nil {
		return nil, fmt.Errorf("failed to query field mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*models.FieldMapping
	for rows.Next() {
		m, err := scanFieldMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating field mappings: %w", err)
	}
	return mappings, nil
}

func (r *fieldMappingRepository) Get(ctx context.Context, id uuid.UUID) (*models.FieldMapping, error) {
	m, err := scanFieldMapping(r.db.Conn(ctx).QueryRow(ctx,
		"SELECT "+fieldMappingColumns+" FROM field_mappings WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *fieldMappingRepository) Create(ctx context.Context, m *models.FieldMapping) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}

	err := r.db.Conn(ctx).QueryRow(ctx, `
		INSERT INTO field_mappings (id, raw_field_name, normalized_name, mapped_field, language, auto_detected)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		m.ID, m.RawFieldName, m.NormalizedName, m.MappedField, m.Language, m.AutoDetected,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("field mapping for %q: %w", m.RawFieldName, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create field mapping: %w", err)
	}
	return nil
}

func (r *fieldMappingRepository) Update(ctx context.Context, m *models.FieldMapping) error {
	err := r.db.Conn(ctx).QueryRow(ctx, `
		UPDATE field_mappings
		SET raw_field_name = $2, normalized_name = $3, mapped_field = $4, language = $5,
		    auto_detected = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		m.ID, m.RawFieldName, m.NormalizedName, m.MappedField, m.Language, m.AutoDetected,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("field mapping for %q: %w", m.RawFieldName, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to update field mapping: %w", err)
	}
	return nil
}

func (r *fieldMappingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, "DELETE FROM field_mappings WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete field mapping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *fieldMappingRepository) UpsertSeed(ctx context.Context, mappings []*models.FieldMapping) (int, error) {
	if len(mappings) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO field_mappings (raw_field_name, normalized_name, mapped_field, language, auto_detected)
		VALUES ($1, $2, $3, $4, false)
		ON CONFLICT (normalized_name) DO UPDATE
		SET mapped_field = EXCLUDED.mapped_field,
		    language = EXCLUDED.language,
		    updated_at = NOW()`

	batch := &pgx.Batch{}
	for _, m := range mappings {
		batch.Queue(query, m.RawFieldName, m.NormalizedName, m.MappedField, m.Language)
	}
	if err := r.db.Conn(ctx).SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("failed to seed %d field mappings: %w", len(mappings), err)
	}
	return len(mappings), nil
}

func scanFieldMapping(row pgx.Row) (*models.FieldMapping, error) {
	var m models.FieldMapping
	err := row.Scan(&m.ID, &m.RawFieldName, &m.NormalizedName, &m.MappedField, &m.Language,
		&m.AutoDetected, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan field mapping: %w", err)
	}
	return &m, nil
}
