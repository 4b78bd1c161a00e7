package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
	"github.com/ekaya-inc/ekaya-adsync/pkg/repositories"
)

// RuleMappingInput is the writable part of a named rule set.
type RuleMappingInput struct {
	Name  string               `json:"name"`
	Rules []models.MappingRule `json:"rules"`
}

// RuleMappingService manages named rule sets routing lead values to entities.
type RuleMappingService interface {
	List(ctx context.Context) ([]*models.RuleMapping, error)
	Create(ctx context.Context, in RuleMappingInput) (*models.RuleMapping, error)
	Update(ctx context.Context, id uuid.UUID, in RuleMappingInput) (*models.RuleMapping, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type ruleMappingService struct {
	repo   repositories.RuleMappingRepository
	logger *zap.Logger
}

func NewRuleMappingService(repo repositories.RuleMappingRepository, logger *zap.Logger) RuleMappingService {
	return &ruleMappingService{repo: repo, logger: logger.Named("rule-mapping-service")}
}

var _ RuleMappingService = (*ruleMappingService)(nil)

func validateRules(in RuleMappingInput) (RuleMappingInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, fmt.Errorf("name is required: %w", apperrors.ErrInvalidInput)
	}
	for i, r := range in.Rules {
		if strings.TrimSpace(r.SourceField) == "" || strings.TrimSpace(r.TargetEntity) == "" {
			return in, fmt.Errorf("rule %d needs sourceField and targetEntity: %w", i, apperrors.ErrInvalidInput)
		}
	}
	if in.Rules == nil {
		in.Rules = []models.MappingRule{}
	}
	return in, nil
}

func (s *ruleMappingService) List(ctx context.Context) ([]*models.RuleMapping, error) {
	return s.repo.List(ctx)
}

func (s *ruleMappingService) Create(ctx context.Context, in RuleMappingInput) (*models.RuleMapping, error) {
	in, err := validateRules(in)
	if err != nil {
		return nil, err
	}
	m := &models.RuleMapping{Name: in.Name, Rules: in.Rules}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *ruleMappingService) Update(ctx context.Context, id uuid.UUID, in RuleMappingInput) (*models.RuleMapping, error) {
	in, err := validateRules(in)
	if err != nil {
		return nil, err
	}
	m := &models.RuleMapping{ID: id, Name: in.Name, Rules: in.Rules}
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *ruleMappingService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
