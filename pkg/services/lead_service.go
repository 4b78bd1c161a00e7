package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
	"github.com/ekaya-inc/ekaya-adsync/pkg/repositories"
)

const maxLeadPageSize = 500

// LeadService serves stored leads to the dashboard.
type LeadService interface {
	List(ctx context.Context, filter models.LeadFilter) (*models.LeadPage, error)
	// Get returns a lead with its field values. Values stored without a
	// mapped name are resolved through the field mapping cache.
	Get(ctx context.Context, id uuid.UUID) (*models.LeadDetail, error)
}

type leadService struct {
	leads    repositories.LeadRepository
	resolver FieldResolver
	logger   *zap.Logger
}

func NewLeadService(leads repositories.LeadRepository, resolver FieldResolver, logger *zap.Logger) LeadService {
	return &leadService{
		leads:    leads,
		resolver: resolver,
		logger:   logger.Named("lead-service"),
	}
}

var _ LeadService = (*leadService)(nil)

func (s *leadService) List(ctx context.Context, filter models.LeadFilter) (*models.LeadPage, error) {
	if filter.Limit > maxLeadPageSize {
		filter.Limit = maxLeadPageSize
	}
	return s.leads.List(ctx, filter)
}

func (s *leadService) Get(ctx context.Context, id uuid.UUID) (*models.LeadDetail, error) {
	item, err := s.leads.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	values, err := s.leads.FieldValues(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &models.LeadDetail{LeadListItem: item, Fields: []models.LeadDetailField{}}
	index := make(map[string]int)
	for _, v := range values {
		if i, ok := index[v.FieldName]; ok {
			detail.Fields[i].Values = append(detail.Fields[i].Values, v.FieldValue)
			continue
		}
		mapped := v.MappedFieldName
		if mapped == nil {
			mapped = s.resolver.ResolvePtr(ctx, v.FieldName)
		}
		index[v.FieldName] = len(detail.Fields)
		detail.Fields = append(detail.Fields, models.LeadDetailField{
			Name:       v.FieldName,
			MappedName: mapped,
			Values:     []string{v.FieldValue},
		})
	}
	return detail, nil
}
