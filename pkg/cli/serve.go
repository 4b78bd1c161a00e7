package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/handlers"
	"github.com/ekaya-inc/ekaya-adsync/pkg/middleware"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and webhook receiver",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), version)
		},
	}
}

// routes mounts every handler on a fresh mux.
func (a *app) routes() http.Handler {
	mux := http.NewServeMux()

	handlers.NewHealthHandler(a.cfg, a.metrics, a.logger).RegisterRoutes(mux)
	handlers.NewSyncHandler(a.sync, a.leadSync, a.repos.syncLogs, a.logger).RegisterRoutes(mux)
	handlers.NewWebhookHandler(a.webhook, a.logger).RegisterRoutes(mux)
	handlers.NewHierarchyHandler(a.hierarchy, a.logger).RegisterRoutes(mux)
	handlers.NewCampaignHandler(a.campaigns, a.logger).RegisterRoutes(mux)
	handlers.NewLeadsHandler(a.leads, a.logger).RegisterRoutes(mux)
	handlers.NewDashboardHandler(a.dashboard, a.logger).RegisterRoutes(mux)
	handlers.NewFieldMappingHandler(a.fieldMappings, a.logger).RegisterRoutes(mux)
	handlers.NewSubscriptionHandler(a.subscriptions, a.logger).RegisterRoutes(mux)
	handlers.NewRuleMappingHandler(a.ruleMappings, a.logger).RegisterRoutes(mux)

	return middleware.Chain(mux,
		middleware.RecordMetrics(a.metrics),
		middleware.RequestLogger(a.logger),
	)
}

func runServe(ctx context.Context, version string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadConfig(version)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := cfg.ValidateForSync(); err != nil {
		logger.Warn("Graph credentials missing; sync endpoints will fail until configured", zap.Error(err))
	}
	if cfg.Meta.AppSecret == "" {
		logger.Warn("META_APP_SECRET not set; webhook deliveries will be rejected")
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-adsync",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
