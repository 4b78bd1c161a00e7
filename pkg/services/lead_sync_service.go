package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-adsync/pkg/meta"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
	"github.com/ekaya-inc/ekaya-adsync/pkg/repositories"
	"github.com/ekaya-inc/ekaya-adsync/pkg/telemetry"
)

// LeadSyncProgress is the pollable snapshot of a lead sync run.
type LeadSyncProgress struct {
	Status         RunStatus  `json:"status"`
	CurrentForm    string     `json:"current_form,omitempty"`
	FormsTotal     int        `json:"forms_total"`
	FormsProcessed int        `json:"forms_processed"`
	Fetched        int        `json:"fetched"`
	Inserted       int        `json:"inserted"`
	Skipped        int        `json:"skipped"`
	Errors         int        `json:"errors"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// AvailableForm is a lead form with leads. Page tokens stay server side.
type AvailableForm struct {
	FormID     string `json:"form_id"`
	FormName   string `json:"form_name"`
	Status     string `json:"status,omitempty"`
	LeadsCount int    `json:"leads_count"`
	PageID     string `json:"page_id"`
	PageName   string `json:"page_name"`
}

// FormSyncResult reports one form's sync.
type FormSyncResult struct {
	FormID   string `json:"form_id"`
	FormName string `json:"form_name"`
	Fetched  int    `json:"fetched"`
	Inserted int    `json:"inserted"`
	Skipped  int    `json:"skipped"`
}

// LeadSyncService copies form submissions from every lead form into the store.
type LeadSyncService interface {
	Start(ctx context.Context) (LeadSyncProgress, error)
	Run(ctx context.Context) (LeadSyncProgress, error)
	Progress() LeadSyncProgress

	// SyncForm syncs a single form, resolving its page token server side.
	SyncForm(ctx context.Context, formID string) (*FormSyncResult, error)
	ListAvailableForms(ctx context.Context) ([]AvailableForm, error)
}

type formTarget struct {
	form      meta.LeadForm
	pageID    string
	pageName  string
	pageToken string
}

type leadSyncService struct {
	meta     MetaAPI
	ingester *leadIngester
	syncLogs repositories.SyncLogRepository
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	progress LeadSyncProgress
}

func NewLeadSyncService(
	metaAPI MetaAPI,
	leads repositories.LeadRepository,
	adSets repositories.AdSetRepository,
	syncLogs repositories.SyncLogRepository,
	resolver FieldResolver,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) LeadSyncService {
	logger = logger.Named("lead-sync-service")
	return &leadSyncService{
		meta:     metaAPI,
		ingester: newLeadIngester(leads, adSets, resolver, metrics, logger),
		syncLogs: syncLogs,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		progress: LeadSyncProgress{Status: RunIdle},
	}
}

var _ LeadSyncService = (*leadSyncService)(nil)

func (s *leadSyncService) Progress() LeadSyncProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *leadSyncService) update(fn func(p *LeadSyncProgress)) {
	s.mu.Lock()
	fn(&s.progress)
	s.mu.Unlock()
}

func (s *leadSyncService) claim() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress.Status == RunRunning {
		return apperrors.ErrSyncInProgress
	}
	started := s.now()
	s.progress = LeadSyncProgress{Status: RunRunning, StartedAt: &started}
	return nil
}

func (s *leadSyncService) Start(ctx context.Context) (LeadSyncProgress, error) {
	if err := s.claim(); err != nil {
		return s.Progress(), err
	}
	go func() {
		_ = s.execute(context.WithoutCancel(ctx))
	}()
	return s.Progress(), nil
}

func (s *leadSyncService) Run(ctx context.Context) (LeadSyncProgress, error) {
	if err := s.claim(); err != nil {
		return s.Progress(), err
	}
	err := s.execute(ctx)
	return s.Progress(), err
}

func (s *leadSyncService) execute(ctx context.Context) error {
	started := s.now()

	targets, err := s.discoverForms(ctx)
	if err != nil {
		return s.fail(ctx, started, err)
	}
	s.update(func(p *LeadSyncProgress) { p.FormsTotal = len(targets) })
	s.logger.Info("Starting lead sync", zap.Int("forms", len(targets)))

	for _, t := range targets {
		s.update(func(p *LeadSyncProgress) { p.CurrentForm = t.form.Name })

		_, err := s.syncTarget(ctx, t, func(fetched, inserted, skipped int) {
			s.update(func(p *LeadSyncProgress) {
				p.Fetched += fetched
				p.Inserted += inserted
				p.Skipped += skipped
			})
		})
		if err != nil {
			s.logger.Error("Failed to sync lead form",
				zap.String("form_id", t.form.ID),
				zap.String("form_name", t.form.Name),
				zap.Error(err))
			s.update(func(p *LeadSyncProgress) { p.Errors++ })
		}
		s.update(func(p *LeadSyncProgress) { p.FormsProcessed++ })
	}

	finished := s.now()
	s.update(func(p *LeadSyncProgress) {
		p.Status = RunCompleted
		p.CurrentForm = ""
		p.FinishedAt = &finished
	})
	s.writeLog(ctx, models.SyncTypeLeads, models.SyncStatusSuccess, nil)
	s.metrics.ObserveSync(models.SyncTypeLeads, models.SyncStatusSuccess, finished.Sub(started))

	p := s.Progress()
	s.logger.Info("Lead sync completed",
		zap.Int("forms", p.FormsProcessed),
		zap.Int("fetched", p.Fetched),
		zap.Int("inserted", p.Inserted),
		zap.Int("skipped", p.Skipped),
		zap.Int("errors", p.Errors))
	return nil
}

func (s *leadSyncService) fail(ctx context.Context, started time.Time, err error) error {
	finished := s.now()
	s.update(func(p *LeadSyncProgress) {
		p.Status = RunError
		p.Error = err.Error()
		p.FinishedAt = &finished
	})
	msg := err.Error()
	s.writeLog(ctx, models.SyncTypeLeads, models.SyncStatusError, &msg)
	s.metrics.ObserveSync(models.SyncTypeLeads, models.SyncStatusError, finished.Sub(started))
	s.logger.Error("Lead sync failed", zap.Error(err))
	return err
}

func (s *leadSyncService) writeLog(ctx context.Context, syncType, status string, message *string) {
	if err := s.syncLogs.Create(ctx, &models.SyncLog{Type: syncType, Status: status, ErrorMessage: message}); err != nil {
		s.logger.Error("Failed to write sync log", zap.String("type", syncType), zap.Error(err))
	}
}

// discoverForms lists every form with at least one lead across all pages.
func (s *leadSyncService) discoverForms(ctx context.Context) ([]formTarget, error) {
	pages, err := s.meta.ListPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}

	var targets []formTarget
	for _, page := range pages {
		forms, err := s.meta.ListLeadForms(ctx, page.ID, page.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to list lead forms for page %s: %w", page.ID, err)
		}
		for _, f := range forms {
			if f.LeadsCount <= 0 {
				continue
			}
			targets = append(targets, formTarget{form: f, pageID: page.ID, pageName: page.Name, pageToken: page.AccessToken})
		}
	}
	return targets, nil
}

func (s *leadSyncService) syncTarget(ctx context.Context, t formTarget, onPage func(fetched, inserted, skipped int)) (*FormSyncResult, error) {
	src := leadSource{
		Source:   models.LeadSourceSync,
		FormID:   t.form.ID,
		FormName: t.form.Name,
		PageID:   t.pageID,
	}
	result := &FormSyncResult{FormID: t.form.ID, FormName: t.form.Name}

	err := s.meta.ForEachFormLeadPage(ctx, t.form.ID, t.pageToken, func(batch []meta.Lead) error {
		inserted, skipped, err := s.ingester.ingest(ctx, src, batch)
		if err != nil {
			return err
		}
		result.Fetched += len(batch)
		result.Inserted += inserted
		result.Skipped += skipped
		if onPage != nil {
			onPage(len(batch), inserted, skipped)
		}
		return nil
	})
	return result, err
}

func (s *leadSyncService) SyncForm(ctx context.Context, formID string) (*FormSyncResult, error) {
	if formID == "" {
		return nil, fmt.Errorf("form id is required: %w", apperrors.ErrInvalidInput)
	}

	targets, err := s.discoverForms(ctx)
	if err != nil {
		return nil, err
	}
	var target *formTarget
	for i := range targets {
		if targets[i].form.ID == formID {
			target = &targets[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("lead form %s: %w", formID, apperrors.ErrNotFound)
	}

	result, err := s.syncTarget(ctx, *target, nil)
	if err != nil {
		msg := err.Error()
		s.writeLog(ctx, models.SyncTypeLeadForm, models.SyncStatusError, &msg)
		return nil, err
	}
	s.writeLog(ctx, models.SyncTypeLeadForm, models.SyncStatusSuccess, nil)
	s.logger.Info("Synced lead form",
		zap.String("form_id", formID),
		zap.Int("fetched", result.Fetched),
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (s *leadSyncService) ListAvailableForms(ctx context.Context) ([]AvailableForm, error) {
	targets, err := s.discoverForms(ctx)
	if err != nil {
		return nil, err
	}
	forms := make([]AvailableForm, 0, len(targets))
	for _, t := range targets {
		forms = append(forms, AvailableForm{
			FormID:     t.form.ID,
			FormName:   t.form.Name,
			Status:     t.form.Status,
			LeadsCount: t.form.LeadsCount,
			PageID:     t.pageID,
			PageName:   t.pageName,
		})
	}
	sort.SliceStable(forms, func(i, j int) bool { return forms[i].LeadsCount > forms[j].LeadsCount })
	return forms, nil
}
