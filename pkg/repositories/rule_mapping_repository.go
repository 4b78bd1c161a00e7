package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-adsync/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-adsync/pkg/database"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
)

// RuleMappingRepository stores named rule sets as JSONB.
type RuleMappingRepository interface {
	List(ctx context.Context) ([]*models.RuleMapping, error)
	Create(ctx context.Context, m *models.RuleMapping) error
	Update(ctx context.Context, m *models.RuleMapping) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type ruleMappingRepository struct {
	db *database.DB
}

func NewRuleMappingRepository(db *database.DB) RuleMappingRepository {
	return &ruleMappingRepository{db: db}
}

var _ RuleMappingRepository = (*ruleMappingRepository)(nil)

func (r *ruleMappingRepository) List(ctx context.Context) ([]*models.RuleMapping, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, `
		SELECT id, name, rules, created_at, updated_at
		FROM rule_mappings
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule mappings: %w", err)
	}
	defer rows.Close()

	mappings := []*models.RuleMapping{}
	for rows.Next() {
		m, err := scanRuleMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule mappings: %w", err)
	}
	return mappings, nil
}

func (r *ruleMappingRepository) Create(ctx context.Context, m *models.RuleMapping) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	rules, err := marshalRules(m.Rules)
	if err != nil {
		return err
	}

	err = r.db.Conn(ctx).QueryRow(ctx, `
		INSERT INTO rule_mappings (id, name, rules)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		m.ID, m.Name, rules,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create rule mapping: %w", err)
	}
	return nil
}

func (r *ruleMappingRepository) Update(ctx context.Context, m *models.RuleMapping) error {
	rules, err := marshalRules(m.Rules)
	if err != nil {
		return err
	}

	err = r.db.Conn(ctx).QueryRow(ctx, `
		UPDATE rule_mappings
		SET name = $2, rules = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		m.ID, m.Name, rules,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("failed to update rule mapping: %w", err)
	}
	return nil
}

func (r *ruleMappingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, "DELETE FROM rule_mappings WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete rule mapping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func marshalRules(rules []models.MappingRule) ([]byte, error) {
	if rules == nil {
		rules = []models.MappingRule{}
	}
	b, err := json.Marshal(rules)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rules: %w", err)
	}
	return b, nil
}

func scanRuleMapping(row pgx.Row) (*models.RuleMapping, error) {
	var m models.RuleMapping
	var rules []byte
	if err := row.Scan(&m.ID, &m.Name, &rules, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan rule mapping: %w", err)
	}
	if err := json.Unmarshal(rules, &m.Rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rules: %w", err)
	}
	return &m, nil
}
