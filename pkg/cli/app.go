package cli

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/migrations"
	"github.com/ekaya-inc/ekaya-adsync/pkg/cache"
	"github.com/ekaya-inc/ekaya-adsync/pkg/config"
	"github.com/ekaya-inc/ekaya-adsync/pkg/database"
	"github.com/ekaya-inc/ekaya-adsync/pkg/fieldmap"
	"github.com/ekaya-inc/ekaya-adsync/pkg/logging"
	"github.com/ekaya-inc/ekaya-adsync/pkg/meta"
	"github.com/ekaya-inc/ekaya-adsync/pkg/repositories"
	"github.com/ekaya-inc/ekaya-adsync/pkg/services"
	"github.com/ekaya-inc/ekaya-adsync/pkg/telemetry"
	"github.com/ekaya-inc/ekaya-adsync/pkg/workpool"
)

// newLogger returns a development logger locally and a JSON production
// logger everywhere else.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsLocal() {
		logConfig := zap.NewDevelopmentConfig()
		logConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		return logConfig.Build()
	}
	return zap.NewProduction()
}

// loadConfig reads configuration and builds the matching logger.
func loadConfig(version string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(version)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

type repos struct {
	accounts      repositories.AdAccountRepository
	campaigns     repositories.CampaignRepository
	adSets        repositories.AdSetRepository
	ads           repositories.AdRepository
	daily         repositories.DailyInsightRepository
	leads         repositories.LeadRepository
	fieldMappings repositories.FieldMappingRepository
	syncLogs      repositories.SyncLogRepository
	subscriptions repositories.SubscriptionRepository
	ruleMappings  repositories.RuleMappingRepository
}

// app is the fully wired service. Commands build one and use the parts
// they need.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *database.DB
	redis   *redis.Client
	metrics *telemetry.Metrics
	repos   repos

	fieldCache *fieldmap.Cache

	sync          services.SyncService
	leadSync      services.LeadSyncService
	webhook       services.WebhookService
	hierarchy     services.HierarchyService
	campaigns     services.CampaignService
	leads         services.LeadService
	dashboard     services.DashboardService
	fieldMappings services.FieldMappingService
	subscriptions services.SubscriptionService
	ruleMappings  services.RuleMappingService
}

// migrate applies pending schema migrations.
func migrate(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := database.OpenSQL(cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, migrations.FS, logger); err != nil {
		return err
	}
	return nil
}

// newApp connects to the stores and wires every repository and service.
// Migrations run first so a fresh database is usable immediately.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("redis_host", cfg.Redis.Host),
		zap.String("graph_version", cfg.Meta.APIVersion),
		zap.Strings("allowed_ad_accounts", cfg.Meta.AllowedAdAccounts),
	)

	if err := migrate(cfg, logger); err != nil {
		return nil, err
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return nil, err
	}

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		// The shared cache tier is optional; process-local caches still work.
		logger.Warn("Redis unavailable, using in-process caches only", zap.Error(err))
		redisClient = nil
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		redis:   redisClient,
		metrics: telemetry.NewMetrics(prometheus.NewRegistry()),
		repos: repos{
			accounts:      repositories.NewAdAccountRepository(db),
			campaigns:     repositories.NewCampaignRepository(db),
			adSets:        repositories.NewAdSetRepository(db),
			ads:           repositories.NewAdRepository(db),
			daily:         repositories.NewDailyInsightRepository(db),
			leads:         repositories.NewLeadRepository(db),
			fieldMappings: repositories.NewFieldMappingRepository(db),
			syncLogs:      repositories.NewSyncLogRepository(db),
			subscriptions: repositories.NewSubscriptionRepository(db),
			ruleMappings:  repositories.NewRuleMappingRepository(db),
		},
	}
	a.wireServices()
	return a, nil
}

func (a *app) wireServices() {
	cfg, logger, r := a.cfg, a.logger, a.repos

	client := meta.NewClient(&http.Client{Timeout: cfg.Meta.HTTPTimeout()},
		cfg.Meta.GraphBaseURL, cfg.Meta.APIVersion, cfg.Meta.AppSecret, logger)
	client.Metrics = a.metrics
	graph := meta.NewService(client, cfg.Meta.AccessToken, logger)

	a.fieldCache = fieldmap.NewCache(r.fieldMappings, logger)

	a.hierarchy = services.NewHierarchyService(r.campaigns, r.adSets, r.ads, r.daily, r.leads,
		cache.NewRedisStore(a.redis, cfg.Redis.KeyPrefix),
		cfg.Cache.HierarchyTTL(), cfg.Cache.CountriesTTL(), a.metrics, logger)

	pool := workpool.New(workpool.Config{MaxConcurrent: cfg.Sync.WriteConcurrency}, logger)
	a.sync = services.NewSyncService(graph, r.accounts, r.campaigns, r.adSets, r.ads, r.daily, r.syncLogs,
		pool, []services.CacheInvalidator{a.hierarchy}, a.metrics,
		services.SyncOptions{
			LookbackDays:    cfg.Sync.LookbackDays,
			ChunkSize:       cfg.Sync.UpsertChunkSize,
			DailyLevels:     cfg.Sync.DailyLevels,
			AllowedAccounts: cfg.Meta.AllowedAdAccounts,
		}, logger)

	a.leadSync = services.NewLeadSyncService(graph, r.leads, r.adSets, r.syncLogs, a.fieldCache, a.metrics, logger)
	a.webhook = services.NewWebhookService(graph, r.leads, r.adSets, r.syncLogs, a.fieldCache, a.metrics,
		cfg.Meta.AppSecret, cfg.Meta.WebhookVerifyToken, logger)
	a.campaigns = services.NewCampaignService(r.campaigns, r.accounts, r.leads, logger)
	a.leads = services.NewLeadService(r.leads, a.fieldCache, logger)
	a.dashboard = services.NewDashboardService(r.accounts, r.daily, r.leads, r.syncLogs, logger)
	a.fieldMappings = services.NewFieldMappingService(r.fieldMappings, r.leads, a.fieldCache, logger)
	a.subscriptions = services.NewSubscriptionService(graph, r.accounts, r.subscriptions, logger)
	a.ruleMappings = services.NewRuleMappingService(r.ruleMappings, logger)
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.db.Close()
	_ = a.logger.Sync()
}
