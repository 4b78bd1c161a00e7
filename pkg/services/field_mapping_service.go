package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-adsync/pkg/database"
	"github.com/ekaya-inc/ekaya-adsync/pkg/fieldmap"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
	"github.com/ekaya-inc/ekaya-adsync/pkg/repositories"
)

const (
	unmappedSampleRows   = 10000
	unmappedSampleValues = 3
)

// FieldMappingCache is the read-through cache the mapping service keeps in
// step with every write.
type FieldMappingCache interface {
	FieldResolver
	Resolve(ctx context.Context, raw string) (string, bool)
	Invalidate()
}

var _ FieldMappingCache = (*fieldmap.Cache)(nil)

// FieldMappingInput is the writable part of a mapping.
type FieldMappingInput struct {
	RawFieldName string  `json:"raw_field_name"`
	MappedField  string  `json:"mapped_field"`
	Language     *string `json:"language,omitempty"`
	AutoDetected bool    `json:"auto_detected"`
}

// BackfillResult reports a mapped-name backfill.
type BackfillResult struct {
	FieldNames  int   `json:"field_names"`
	RowsUpdated int64 `json:"rows_updated"`
}

// FieldMappingService manages raw-to-canonical field name mappings.
type FieldMappingService interface {
	List(ctx context.Context) ([]*models.FieldMapping, error)
	Get(ctx context.Context, id uuid.UUID) (*models.FieldMapping, error)
	Create(ctx context.Context, in FieldMappingInput) (*models.FieldMapping, error)
	Update(ctx context.Context, id uuid.UUID, in FieldMappingInput) (*models.FieldMapping, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// UnmappedFields groups recent stored field rows whose names resolve to
	// no mapping, most frequent first.
	UnmappedFields(ctx context.Context) ([]models.UnmappedField, error)
	StandardFields() []string

	// Seed upserts the built-in multilingual mapping table.
	Seed(ctx context.Context) (int, error)

	// Backfill fills mapped names on stored field values that have none.
	Backfill(ctx context.Context) (*BackfillResult, error)
}

type fieldMappingService struct {
	repo   repositories.FieldMappingRepository
	leads  repositories.LeadRepository
	cache  FieldMappingCache
	logger *zap.Logger
}

func NewFieldMappingService(
	repo repositories.FieldMappingRepository,
	leads repositories.LeadRepository,
	cache FieldMappingCache,
	logger *zap.Logger,
) FieldMappingService {
	return &fieldMappingService{
		repo:   repo,
		leads:  leads,
		cache:  cache,
		logger: logger.Named("field-mapping-service"),
	}
}

var _ FieldMappingService = (*fieldMappingService)(nil)

func (s *fieldMappingService) List(ctx context.Context) ([]*models.FieldMapping, error) {
	mappings, err := s.repo.List(ctx)
	if err != nil {
		if !database.IsUndefinedTable(err) {
			return nil, err
		}
		s.logger.Warn("field_mappings table does not exist yet, listing nothing")
	}
	if mappings == nil {
		mappings = []*models.FieldMapping{}
	}
	return mappings, nil
}

func (s *fieldMappingService) Get(ctx context.Context, id uuid.UUID) (*models.FieldMapping, error) {
	return s.repo.Get(ctx, id)
}

func validateMappingInput(in FieldMappingInput) (FieldMappingInput, string, error) {
	in.RawFieldName = strings.TrimSpace(in.RawFieldName)
	in.MappedField = strings.TrimSpace(in.MappedField)
	if in.RawFieldName == "" || in.MappedField == "" {
		return in, "", fmt.Errorf("raw_field_name and mapped_field are required: %w", apperrors.ErrInvalidInput)
	}
	normalized := fieldmap.Normalize(in.RawFieldName)
	if normalized == "" {
		return in, "", fmt.Errorf("raw_field_name %q has no usable characters: %w", in.RawFieldName, apperrors.ErrInvalidInput)
	}
	return in, normalized, nil
}

func (s *fieldMappingService) Create(ctx context.Context, in FieldMappingInput) (*models.FieldMapping, error) {
	in, normalized, err := validateMappingInput(in)
	if err != nil {
		return nil, err
	}

	m := &models.FieldMapping{
		RawFieldName:   in.RawFieldName,
		NormalizedName: normalized,
		MappedField:    in.MappedField,
		Language:       in.Language,
		AutoDetected:   in.AutoDetected,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	s.cache.Invalidate()

	s.logger.Info("Created field mapping",
		zap.String("raw_field_name", m.RawFieldName),
		zap.String("mapped_field", m.MappedField))
	return m, nil
}

func (s *fieldMappingService) Update(ctx context.Context, id uuid.UUID, in FieldMappingInput) (*models.FieldMapping, error) {
	in, normalized, err := validateMappingInput(in)
	if err != nil {
		return nil, err
	}

	m := &models.FieldMapping{
		ID:             id,
		RawFieldName:   in.RawFieldName,
		NormalizedName: normalized,
		MappedField:    in.MappedField,
		Language:       in.Language,
		AutoDetected:   in.AutoDetected,
	}
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, err
	}
	s.cache.Invalidate()
	return m, nil
}

func (s *fieldMappingService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate()
	return nil
}

func (s *fieldMappingService) UnmappedFields(ctx context.Context) ([]models.UnmappedField, error) {
	samples, err := s.leads.FieldSamples(ctx, unmappedSampleRows)
	if err != nil {
		if !database.IsUndefinedTable(err) {
			return nil, err
		}
		s.logger.Warn("lead field tables do not exist yet, no unmapped fields")
	}

	byName := make(map[string]*models.UnmappedField)
	seenValue := make(map[string]map[string]bool)
	for _, sample := range samples {
		if _, ok := s.cache.Resolve(ctx, sample.FieldName); ok {
			continue
		}
		f, ok := byName[sample.FieldName]
		if !ok {
			f = &models.UnmappedField{FieldName: sample.FieldName, SampleValues: []string{}}
			byName[sample.FieldName] = f
			seenValue[sample.FieldName] = map[string]bool{}
		}
		f.Count++
		v := strings.TrimSpace(sample.FieldValue)
		if v != "" && len(f.SampleValues) < unmappedSampleValues && !seenValue[sample.FieldName][v] {
			seenValue[sample.FieldName][v] = true
			f.SampleValues = append(f.SampleValues, v)
		}
	}

	out := make([]models.UnmappedField, 0, len(byName))
	for _, f := range byName {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].FieldName < out[j].FieldName
	})
	return out, nil
}

func (s *fieldMappingService) StandardFields() []string {
	return append([]string(nil), fieldmap.StandardFields...)
}

func (s *fieldMappingService) Seed(ctx context.Context) (int, error) {
	entries, err := fieldmap.SeedEntries()
	if err != nil {
		return 0, err
	}

	mappings := make([]*models.FieldMapping, 0, len(entries))
	for _, e := range entries {
		lang := e.Language
		mappings = append(mappings, &models.FieldMapping{
			RawFieldName:   e.Raw,
			NormalizedName: fieldmap.Normalize(e.Raw),
			MappedField:    e.Field,
			Language:       &lang,
		})
	}

	n, err := s.repo.UpsertSeed(ctx, mappings)
	if err != nil {
		return 0, err
	}
	s.cache.Invalidate()
	s.logger.Info("Seeded field mappings", zap.Int("mappings", n))
	return n, nil
}

func (s *fieldMappingService) Backfill(ctx context.Context) (*BackfillResult, error) {
	names, err := s.leads.UnmappedFieldNames(ctx)
	if err != nil {
		if !database.IsUndefinedTable(err) {
			return nil, err
		}
		s.logger.Warn("lead field tables do not exist yet, nothing to backfill")
	}

	result := &BackfillResult{}
	for _, name := range names {
		mapped, ok := s.cache.Resolve(ctx, name)
		if !ok {
			continue
		}
		n, err := s.leads.SetMappedFieldName(ctx, name, mapped)
		if err != nil {
			return result, err
		}
		result.FieldNames++
		result.RowsUpdated += n
	}

	s.logger.Info("Backfilled mapped field names",
		zap.Int("field_names", result.FieldNames),
		zap.Int64("rows", result.RowsUpdated))
	return result, nil
}
