package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
)

// fakeRuleMappingRepo implements repositories.RuleMappingRepository in memory.
type fakeRuleMappingRepo struct {
	items map[uuid.UUID]*models.RuleMapping
}

func (r *fakeRuleMappingRepo) List(_ context.Context) ([]*models.RuleMapping, error) {
	out := []*models.RuleMapping{}
	for _, m := range r.items {
		out = append(out, m)
	}
	return out, nil
}

func (r *fakeRuleMappingRepo) Create(_ context.Context, m *models.RuleMapping) error {
	m.ID = uuid.New()
	r.items[m.ID] = m
	return nil
}

func (r *fakeRuleMappingRepo) Update(_ context.Context, m *models.RuleMapping) error {
	if _, ok := r.items[m.ID]; !ok {
		return apperrors.ErrNotFound
	}
	r.items[m.ID] = m
	return nil
}

func (r *fakeRuleMappingRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.items[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func TestRuleMappingService_CRUD(t *testing.T) {
	repo := &fakeRuleMappingRepo{items: map[uuid.UUID]*models.RuleMapping{}}
	svc := NewRuleMappingService(repo, zap.NewNop())
	ctx := context.Background()

	created, err := svc.Create(ctx, RuleMappingInput{Name: " Route by city "})
	require.NoError(t, err)
	assert.Equal(t, "Route by city", created.Name)
	assert.NotNil(t, created.Rules)

	rules := []models.MappingRule{{SourceField: "city", SourceValue: "Izmir", TargetEntity: "branch", TargetID: "b-1"}}
	updated, err := svc.Update(ctx, created.ID, RuleMappingInput{Name: "Route by city", Rules: rules})
	require.NoError(t, err)
	assert.Equal(t, rules, updated.Rules)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, svc.Delete(ctx, created.ID))
	assert.ErrorIs(t, svc.Delete(ctx, created.ID), apperrors.ErrNotFound)
}

func TestRuleMappingService_Validation(t *testing.T) {
	svc := NewRuleMappingService(&fakeRuleMappingRepo{items: map[uuid.UUID]*models.RuleMapping{}}, zap.NewNop())

	_, err := svc.Create(context.Background(), RuleMappingInput{Name: "  "})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.Create(context.Background(), RuleMappingInput{
		Name:  "Broken",
		Rules: []models.MappingRule{{SourceField: "city"}},
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
