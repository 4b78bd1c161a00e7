package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-adsync/pkg/database"
	"github.com/ekaya-inc/ekaya-adsync/pkg/insights"
	"github.com/ekaya-inc/ekaya-adsync/pkg/meta"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
	"github.com/ekaya-inc/ekaya-adsync/pkg/repositories"
	"github.com/ekaya-inc/ekaya-adsync/pkg/retry"
	"github.com/ekaya-inc/ekaya-adsync/pkg/telemetry"
	"github.com/ekaya-inc/ekaya-adsync/pkg/workpool"
)

// DefaultChunkSize is the number of rows sent per upsert.
const DefaultChunkSize = 500

// debugRowLimit caps the rows returned by DebugCampaignActions.
const debugRowLimit = 10

// SyncProgress is the pollable snapshot of an ingestion run.
type SyncProgress struct {
	Status            RunStatus  `json:"status"`
	CurrentAccount    string     `json:"current_account,omitempty"`
	AccountsTotal     int        `json:"accounts_total"`
	AccountsProcessed int        `json:"accounts_processed"`
	Campaigns         int        `json:"campaigns"`
	AdSets            int        `json:"ad_sets"`
	Ads               int        `json:"ads"`
	InsightsUpdated   int        `json:"insights_updated"`
	DailyRows         int        `json:"daily_rows"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	Error             string     `json:"error,omitempty"`
}

// SyncOptions tunes one SyncService.
type SyncOptions struct {
	LookbackDays    int
	ChunkSize       int
	DailyLevels     []string
	AllowedAccounts []string

	// RetryConfig governs store-write retries. Nil uses retry.StoreWriteConfig.
	RetryConfig *retry.Config
}

// SyncService ingests the advertising hierarchy and its metrics.
type SyncService interface {
	// Start claims the run and executes it in the background. When a run is
	// already active it returns that run's progress and ErrSyncInProgress.
	Start(ctx context.Context) (SyncProgress, error)

	// Run claims the run and executes it before returning.
	Run(ctx context.Context) (SyncProgress, error)

	Progress() SyncProgress

	// DebugCampaignActions returns the raw actions reported for campaigns on
	// one day next to the lead count extracted from them.
	DebugCampaignActions(ctx context.Context, accountID, campaignName string, date time.Time) (*CampaignActionsDebug, error)
}

// CampaignActionsDebug is the DebugCampaignActions result.
type CampaignActionsDebug struct {
	Date          string               `json:"date"`
	Rows          []CampaignActionsRow `json:"rows"`
	ActionSummary map[string]int64     `json:"action_summary"`
}

type CampaignActionsRow struct {
	CampaignID   string        `json:"campaign_id"`
	CampaignName string        `json:"campaign_name"`
	SpendUSD     float64       `json:"spend_usd"`
	Actions      []meta.Action `json:"actions"`
	LeadCount    int           `json:"lead_count"`
}

type syncService struct {
	meta      MetaAPI
	accounts  repositories.AdAccountRepository
	campaigns repositories.CampaignRepository
	adSets    repositories.AdSetRepository
	ads       repositories.AdRepository
	daily     repositories.DailyInsightRepository
	syncLogs  repositories.SyncLogRepository
	pool      *workpool.Pool
	caches    []CacheInvalidator
	metrics   *telemetry.Metrics
	opts      SyncOptions
	logger    *zap.Logger

	now func() time.Time

	mu       sync.Mutex
	progress SyncProgress
}

func NewSyncService(
	metaAPI MetaAPI,
	accounts repositories.AdAccountRepository,
	campaigns repositories.CampaignRepository,
	adSets repositories.AdSetRepository,
	ads repositories.AdRepository,
	daily repositories.DailyInsightRepository,
	syncLogs repositories.SyncLogRepository,
	pool *workpool.Pool,
	caches []CacheInvalidator,
	metrics *telemetry.Metrics,
	opts SyncOptions,
	logger *zap.Logger,
) SyncService {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 90
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if len(opts.DailyLevels) == 0 {
		opts.DailyLevels = []string{models.LevelCampaign}
	}
	if opts.RetryConfig == nil {
		opts.RetryConfig = retry.StoreWriteConfig()
	}
	return &syncService{
		meta:      metaAPI,
		accounts:  accounts,
		campaigns: campaigns,
		adSets:    adSets,
		ads:       ads,
		daily:     daily,
		syncLogs:  syncLogs,
		pool:      pool,
		caches:    caches,
		metrics:   metrics,
		opts:      opts,
		logger:    logger.Named("sync-service"),
		now:       time.Now,
		progress:  SyncProgress{Status: RunIdle},
	}
}

var _ SyncService = (*syncService)(nil)

func (s *syncService) Progress() SyncProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *syncService) update(fn func(p *SyncProgress)) {
	s.mu.Lock()
	fn(&s.progress)
	s.mu.Unlock()
}

// claim moves the run to running unless one is already active.
func (s *syncService) claim() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress.Status == RunRunning {
		return apperrors.ErrSyncInProgress
	}
	started := s.now()
	s.progress = SyncProgress{Status: RunRunning, StartedAt: &started}
	return nil
}

func (s *syncService) Start(ctx context.Context) (SyncProgress, error) {
	if err := s.claim(); err != nil {
		return s.Progress(), err
	}
	// The run outlives the request that started it.
	go func() {
		_ = s.execute(context.WithoutCancel(ctx))
	}()
	return s.Progress(), nil
}

func (s *syncService) Run(ctx context.Context) (SyncProgress, error) {
	if err := s.claim(); err != nil {
		return s.Progress(), err
	}
	err := s.execute(ctx)
	return s.Progress(), err
}

func (s *syncService) execute(ctx context.Context) error {
	started := s.now()
	s.logger.Info("Starting sync", zap.Int("lookback_days", s.opts.LookbackDays))

	accounts, err := s.meta.ListAccounts(ctx)
	if err != nil {
		return s.fail(ctx, "", started, fmt.Errorf("failed to list ad accounts: %w", err))
	}
	accounts = s.allowed(accounts)
	s.update(func(p *SyncProgress) { p.AccountsTotal = len(accounts) })

	r := models.LookbackRange(s.now(), s.opts.LookbackDays)
	for _, acct := range accounts {
		accountID := acct.NumericID()
		s.update(func(p *SyncProgress) { p.CurrentAccount = acct.Name })
		s.logger.Info("Syncing ad account",
			zap.String("account_id", accountID),
			zap.String("account_name", acct.Name),
			zap.String("range", r.String()))

		if err := s.syncAccount(ctx, acct, r); err != nil {
			return s.fail(ctx, accountID, started, err)
		}
		s.update(func(p *SyncProgress) { p.AccountsProcessed++ })
	}

	// One audit row covers the whole run.
	s.writeLog(ctx, models.SyncStatusSuccess, nil, nil)
	finished := s.now()
	s.update(func(p *SyncProgress) {
		p.Status = RunCompleted
		p.CurrentAccount = ""
		p.FinishedAt = &finished
	})
	for _, c := range s.caches {
		c.Invalidate()
	}
	s.metrics.ObserveSync(models.SyncTypeSpend, models.SyncStatusSuccess, finished.Sub(started))

	p := s.Progress()
	s.logger.Info("Sync completed",
		zap.Int("accounts", p.AccountsProcessed),
		zap.Int("campaigns", p.Campaigns),
		zap.Int("ad_sets", p.AdSets),
		zap.Int("ads", p.Ads),
		zap.Int("insights_updated", p.InsightsUpdated),
		zap.Int("daily_rows", p.DailyRows),
		zap.Duration("elapsed", finished.Sub(started)))
	return nil
}

// fail records the error on the progress snapshot and in the audit log.
func (s *syncService) fail(ctx context.Context, accountID string, started time.Time, err error) error {
	finished := s.now()
	s.update(func(p *SyncProgress) {
		p.Status = RunError
		p.Error = err.Error()
		p.FinishedAt = &finished
	})

	var acct *string
	if accountID != "" {
		acct = &accountID
	}
	msg := err.Error()
	s.writeLog(ctx, models.SyncStatusError, acct, &msg)
	s.metrics.ObserveSync(models.SyncTypeSpend, models.SyncStatusError, finished.Sub(started))

	s.logger.Error("Sync failed", zap.String("account_id", accountID), zap.Error(err))
	return err
}

func (s *syncService) writeLog(ctx context.Context, status string, accountID, message *string) {
	entry := &models.SyncLog{Type: models.SyncTypeSpend, Status: status, AdAccountID: accountID, ErrorMessage: message}
	if err := s.syncLogs.Create(ctx, entry); err != nil {
		s.logger.Error("Failed to write sync log", zap.String("status", status), zap.Error(err))
	}
}

func (s *syncService) allowed(accounts []meta.Account) []meta.Account {
	if len(s.opts.AllowedAccounts) == 0 {
		return accounts
	}
	allow := make(map[string]bool, len(s.opts.AllowedAccounts))
	for _, id := range s.opts.AllowedAccounts {
		allow[models.NormalizeAccountID(id)] = true
	}
	var out []meta.Account
	for _, a := range accounts {
		if allow[a.NumericID()] {
			out = append(out, a)
			continue
		}
		s.logger.Debug("Skipping ad account outside allow-list", zap.String("account_id", a.NumericID()))
	}
	return out
}

// write retries a store write on transient errors.
func (s *syncService) write(ctx context.Context, fn func() error) error {
	return retry.DoIf(ctx, s.opts.RetryConfig, database.IsTransient, fn)
}

func (s *syncService) syncAccount(ctx context.Context, acct meta.Account, r models.DateRange) error {
	accountID := acct.NumericID()

	account := &models.AdAccount{
		AccountID:     accountID,
		AccountName:   acct.Name,
		Currency:      acct.Currency,
		AccountStatus: acct.AccountStatus,
	}
	if err := s.write(ctx, func() error { return s.accounts.Upsert(ctx, account) }); err != nil {
		return fmt.Errorf("failed to upsert ad account %s: %w", accountID, err)
	}

	campaignIDs, err := s.syncCampaigns(ctx, accountID)
	if err != nil {
		return err
	}
	adSetIDs, err := s.syncAdSets(ctx, accountID, campaignIDs)
	if err != nil {
		return err
	}
	if err := s.syncAds(ctx, accountID, adSetIDs); err != nil {
		return err
	}

	for _, level := range []string{models.LevelCampaign, models.LevelAdSet, models.LevelAd} {
		if err := s.writeBackMetrics(ctx, accountID, level, r); err != nil {
			return err
		}
	}

	return s.replaceDaily(ctx, accountID, r)
}

func (s *syncService) syncCampaigns(ctx context.Context, accountID string) (map[string]bool, error) {
	remote, err := s.meta.ListCampaigns(ctx, accountID)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]bool, len(remote))
	rows := make([]*models.Campaign, 0, len(remote))
	for _, c := range remote {
		row := &models.Campaign{
			CampaignID:  c.ID,
			Name:        c.Name,
			Type:        c.Objective,
			Status:      c.Status,
			AdAccountID: accountID,
		}
		if c.CreatedTime != "" {
			if t, err := meta.ParseTime(c.CreatedTime); err == nil {
				row.CreatedTime = &t
			}
		}
		ids[c.ID] = true
		rows = append(rows, row)
	}

	n, err := upsertChunks(ctx, s, "campaigns", rows, s.campaigns.Upsert)
	s.update(func(p *SyncProgress) { p.Campaigns += n })
	s.metrics.AddEntities("campaign", n)
	return ids, err
}

func (s *syncService) syncAdSets(ctx context.Context, accountID string, campaignIDs map[string]bool) (map[string]bool, error) {
	remote, err := s.meta.ListAdSets(ctx, accountID)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]bool, len(remote))
	rows := make([]*models.AdSet, 0, len(remote))
	dropped := 0
	for _, a := range remote {
		if !campaignIDs[a.CampaignID] {
			dropped++
			continue
		}
		ids[a.ID] = true
		rows = append(rows, &models.AdSet{
			AdSetID:          a.ID,
			Name:             a.Name,
			Status:           a.Status,
			OptimizationGoal: a.OptimizationGoal,
			CampaignID:       a.CampaignID,
			AdAccountID:      accountID,
		})
	}
	if dropped > 0 {
		s.logger.Warn("Dropping ad sets whose campaign was not synced",
			zap.String("account_id", accountID),
			zap.Int("dropped", dropped))
	}

	n, err := upsertChunks(ctx, s, "ad sets", rows, s.adSets.Upsert)
	s.update(func(p *SyncProgress) { p.AdSets += n })
	s.metrics.AddEntities("adset", n)
	return ids, err
}

func (s *syncService) syncAds(ctx context.Context, accountID string, adSetIDs map[string]bool) error {
	remote, err := s.meta.ListAds(ctx, accountID)
	if err != nil {
		return err
	}

	rows := make([]*models.Ad, 0, len(remote))
	dropped := 0
	for _, a := range remote {
		if !adSetIDs[a.AdSetID] {
			dropped++
			continue
		}
		rows = append(rows, &models.Ad{
			AdID:        a.ID,
			Name:        a.Name,
			Status:      a.Status,
			AdSetID:     a.AdSetID,
			CampaignID:  a.CampaignID,
			AdAccountID: accountID,
		})
	}
	if dropped > 0 {
		s.logger.Warn("Dropping ads whose ad set was not synced",
			zap.String("account_id", accountID),
			zap.Int("dropped", dropped))
	}

	n, err := upsertChunks(ctx, s, "ads", rows, s.ads.Upsert)
	s.update(func(p *SyncProgress) { p.Ads += n })
	s.metrics.AddEntities("ad", n)
	return err
}

func upsertChunks[T any](ctx context.Context, s *syncService, what string, rows []T, upsert func(context.Context, []T) (int, error)) (int, error) {
	total := 0
	for start := 0; start < len(rows); start += s.opts.ChunkSize {
		end := min(start+s.opts.ChunkSize, len(rows))
		chunk := rows[start:end]

		var n int
		err := s.write(ctx, func() error {
			var err error
			n, err = upsert(ctx, chunk)
			return err
		})
		if err != nil {
			return total, fmt.Errorf("failed to upsert %s %d-%d: %w", what, start, end, err)
		}
		total += n
	}
	return total, nil
}

func (s *syncService) metricUpdater(level string) func(ctx context.Context, id string, spend float64, leads int) (bool, error) {
	switch level {
	case models.LevelAdSet:
		return s.adSets.UpdateMetrics
	case models.LevelAd:
		return s.ads.UpdateMetrics
	default:
		return s.campaigns.UpdateMetrics
	}
}

// writeBackMetrics overwrites spend and platform lead counts for one level
// through the bounded worker pool.
func (s *syncService) writeBackMetrics(ctx context.Context, accountID, level string, r models.DateRange) error {
	rows, err := s.meta.ListInsights(ctx, accountID, level, nil, r)
	if err != nil {
		return err
	}

	updateFn := s.metricUpdater(level)
	var (
		mu      sync.Mutex
		updated int
		missing int
	)
	writes := make([]workpool.Write, 0, len(rows))
	for _, row := range rows {
		id := row.ExternalID(level)
		if id == "" {
			continue
		}
		m := insights.Extract(row)
		writes = append(writes, workpool.Write{
			Key: level + ":" + id,
			Apply: func(ctx context.Context) error {
				var found bool
				err := s.write(ctx, func() error {
					var err error
					found, err = updateFn(ctx, id, m.SpendUSD, m.LeadsCount)
					return err
				})
				mu.Lock()
				if found {
					updated++
				} else if err == nil {
					missing++
				}
				mu.Unlock()
				return err
			},
		})
	}

	out := s.pool.Apply(ctx, writes)
	s.update(func(p *SyncProgress) { p.InsightsUpdated += updated })
	if missing > 0 {
		s.logger.Debug("Insights rows without a stored entity",
			zap.String("level", level),
			zap.Int("rows", missing))
	}
	if out.Failed > 0 {
		return fmt.Errorf("failed to write back %d %s metrics: %w", out.Failed, level, out.Err)
	}
	return nil
}

func (s *syncService) replaceDaily(ctx context.Context, accountID string, r models.DateRange) error {
	var batches []repositories.DailyBatch
	for _, level := range s.opts.DailyLevels {
		windows, err := s.meta.ListDailyInsights(ctx, accountID, level, r)
		if err != nil {
			return err
		}
		// Throttled windows never reach here. An empty window still clears
		// the stored rows for its range.
		for _, w := range windows {
			batches = append(batches, repositories.DailyBatch{
				Level: level,
				Range: w.Range,
				Rows:  toDailyInsights(accountID, level, w.Rows),
			})
		}
	}
	if len(batches) == 0 {
		s.logger.Info("No daily insights windows fetched, keeping stored rows", zap.String("account_id", accountID))
		return nil
	}

	var n int
	err := s.write(ctx, func() error {
		var err error
		n, err = s.daily.Replace(ctx, accountID, batches)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to replace daily insights: %w", err)
	}
	s.update(func(p *SyncProgress) { p.DailyRows += n })
	s.metrics.AddEntities("daily_insight", n)
	return nil
}

func toDailyInsights(accountID, level string, rows []meta.InsightRow) []*models.DailyInsight {
	out := make([]*models.DailyInsight, 0, len(rows))
	for _, row := range rows {
		date, err := time.Parse(models.DateLayout, row.DateStart)
		if err != nil || row.CampaignID == "" {
			continue
		}
		m := insights.Extract(row)
		d := &models.DailyInsight{
			Date:         date,
			CampaignID:   row.CampaignID,
			CampaignName: row.CampaignName,
			SpendUSD:     m.SpendUSD,
			LeadsCount:   m.LeadsCount,
			Impressions:  m.Impressions,
			Clicks:       m.Clicks,
			AdAccountID:  accountID,
		}
		switch level {
		case models.LevelAdSet:
			d.AdSetID, d.AdSetName = row.AdSetID, row.AdSetName
		case models.LevelAd:
			d.AdSetID, d.AdID, d.AdName = row.AdSetID, row.AdID, row.AdName
		}
		if level != models.LevelCampaign && d.Level() != level {
			continue
		}
		out = append(out, d)
	}
	return out
}

func (s *syncService) DebugCampaignActions(ctx context.Context, accountID, campaignName string, date time.Time) (*CampaignActionsDebug, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account id is required: %w", apperrors.ErrInvalidInput)
	}
	r := models.DateRange{Since: date, Until: date}
	rows, err := s.meta.ListInsights(ctx, models.NormalizeAccountID(accountID), models.LevelCampaign,
		[]string{"campaign_id", "campaign_name", "spend", "actions"}, r)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(campaignName))
	var matched []meta.InsightRow
	for _, row := range rows {
		if needle != "" && !strings.Contains(strings.ToLower(row.CampaignName), needle) {
			continue
		}
		matched = append(matched, row)
		if len(matched) == debugRowLimit {
			break
		}
	}

	out := &CampaignActionsDebug{
		Date:          r.SinceString(),
		Rows:          make([]CampaignActionsRow, 0, len(matched)),
		ActionSummary: insights.Summary(matched),
	}
	for _, row := range matched {
		out.Rows = append(out.Rows, CampaignActionsRow{
			CampaignID:   row.CampaignID,
			CampaignName: row.CampaignName,
			SpendUSD:     insights.ParseSpend(row.Spend.String()),
			Actions:      row.Actions,
			LeadCount:    insights.LeadCount(row.Actions),
		})
	}
	return out, nil
}
