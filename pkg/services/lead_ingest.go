package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-adsync/pkg/database"
	"github.com/ekaya-inc/ekaya-adsync/pkg/fieldmap"
	"github.com/ekaya-inc/ekaya-adsync/pkg/meta"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
	"github.com/ekaya-inc/ekaya-adsync/pkg/repositories"
	"github.com/ekaya-inc/ekaya-adsync/pkg/retry"
	"github.com/ekaya-inc/ekaya-adsync/pkg/telemetry"
)

// FieldResolver maps a raw form field label to its canonical name.
type FieldResolver interface {
	ResolvePtr(ctx context.Context, raw string) *string
}

var _ FieldResolver = (*fieldmap.Cache)(nil)

// leadSource carries what the caller knows about where a batch of leads
// came from. Empty values are filled from the lead payload where possible.
type leadSource struct {
	Source      string
	FormID      string
	FormName    string
	PageID      string
	AdAccountID string
}

// leadIngester is the dedup-then-insert path shared by lead sync and the
// webhook.
type leadIngester struct {
	leads    repositories.LeadRepository
	adSets   repositories.AdSetRepository
	resolver FieldResolver
	metrics  *telemetry.Metrics
	retryCfg *retry.Config
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	accounts map[string]string // ad set id -> ad account id
}

func newLeadIngester(
	leads repositories.LeadRepository,
	adSets repositories.AdSetRepository,
	resolver FieldResolver,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *leadIngester {
	return &leadIngester{
		leads:    leads,
		adSets:   adSets,
		resolver: resolver,
		metrics:  metrics,
		retryCfg: retry.StoreWriteConfig(),
		logger:   logger,
		now:      time.Now,
		accounts: make(map[string]string),
	}
}

// stored reports whether leadID is already in the store.
func (in *leadIngester) stored(ctx context.Context, leadID string) (bool, error) {
	existing, err := in.leads.ExistingLeadIDs(ctx, []string{leadID})
	if err != nil {
		return false, err
	}
	return existing[leadID], nil
}

// ingest stores the unseen leads of one page. It returns how many were
// inserted and how many were already stored.
func (in *leadIngester) ingest(ctx context.Context, src leadSource, batch []meta.Lead) (int, int, error) {
	if len(batch) == 0 {
		return 0, 0, nil
	}

	ids := make([]string, 0, len(batch))
	for _, l := range batch {
		ids = append(ids, l.ID)
	}
	existing, err := in.leads.ExistingLeadIDs(ctx, ids)
	if err != nil {
		return 0, 0, err
	}

	seen := make(map[string]bool, len(batch))
	var fresh []*models.Lead
	for _, l := range batch {
		if existing[l.ID] || seen[l.ID] {
			continue
		}
		seen[l.ID] = true
		fresh = append(fresh, in.toModel(ctx, src, l))
	}

	var inserted []*models.Lead
	if len(fresh) > 0 {
		err = retry.DoIf(ctx, in.retryCfg, database.IsTransient, func() error {
			var err error
			inserted, err = in.leads.InsertLeads(ctx, fresh)
			return err
		})
		if err != nil {
			return 0, 0, fmt.Errorf("failed to insert leads: %w", err)
		}
	}

	skipped := len(batch) - len(inserted)
	in.metrics.AddLeads(src.Source, "inserted", len(inserted))
	in.metrics.AddLeads(src.Source, "skipped", skipped)
	return len(inserted), skipped, nil
}

func (in *leadIngester) toModel(ctx context.Context, src leadSource, l meta.Lead) *models.Lead {
	created, err := meta.ParseTime(l.CreatedTime)
	if err != nil {
		created = in.now().UTC()
	}

	m := &models.Lead{
		LeadID:       l.ID,
		FormID:       firstNonEmpty(l.FormID, src.FormID),
		FormName:     src.FormName,
		PageID:       src.PageID,
		AdID:         l.AdID,
		AdName:       l.AdName,
		AdSetID:      l.AdSetID,
		AdSetName:    l.AdSetName,
		CampaignID:   l.CampaignID,
		CampaignName: l.CampaignName,
		AdAccountID:  firstNonEmpty(src.AdAccountID, in.accountFor(ctx, l.AdSetID)),
		Source:       src.Source,
		CreatedAt:    created,
	}
	for _, f := range l.FieldData {
		m.Fields = append(m.Fields, models.LeadField{
			Name:       f.Name,
			MappedName: in.resolver.ResolvePtr(ctx, f.Name),
			Value:      strings.Join(f.Values, ", "),
		})
	}
	return m
}

// accountFor looks up the ad account owning an ad set, remembering answers.
func (in *leadIngester) accountFor(ctx context.Context, adSetID string) string {
	if adSetID == "" {
		return ""
	}
	in.mu.Lock()
	id, ok := in.accounts[adSetID]
	in.mu.Unlock()
	if ok {
		return id
	}

	adSet, err := in.adSets.Get(ctx, adSetID)
	switch {
	case err == nil:
		id = adSet.AdAccountID
	case errors.Is(err, apperrors.ErrNotFound):
		id = ""
	default:
		in.logger.Warn("Failed to resolve ad account for ad set", zap.String("adset_id", adSetID), zap.Error(err))
		return ""
	}

	in.mu.Lock()
	in.accounts[adSetID] = id
	in.mu.Unlock()
	return id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
