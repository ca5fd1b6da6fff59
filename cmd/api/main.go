package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/consertaja/billing/api/routes"
	"github.com/consertaja/billing/internal/gateway"
	"github.com/consertaja/billing/internal/ledger"
	"github.com/consertaja/billing/internal/reconcile"
	"github.com/consertaja/billing/internal/referral"
	"github.com/consertaja/billing/internal/saasmetrics"
	"github.com/consertaja/billing/pkg/config"
	"github.com/consertaja/billing/pkg/db"
	"github.com/consertaja/billing/pkg/env"
	"github.com/consertaja/billing/pkg/instance"
	"github.com/consertaja/billing/pkg/logger"
	"github.com/consertaja/billing/pkg/metrics"
	"github.com/consertaja/billing/pkg/migrate"
	"github.com/consertaja/billing/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gatewayClient, err := gateway.NewClient(context.Background(), cfg.Gateway, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create gateway client", err)
		os.Exit(1)
	}

	repo := ledger.NewRepository(dbClient.DB())

	reconcileService, err := reconcile.NewService(reconcile.ServiceParams{
		Repo:              repo,
		Gateway:           gatewayClient,
		TransactionRunner: dbClient,
		Billing:           cfg.Billing,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciliation service", err)
		os.Exit(1)
	}

	referralService, err := referral.NewService(referral.ServiceParams{
		Repo:              repo,
		TransactionRunner: dbClient,
		Config:            cfg.Referral,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create referral service", err)
		os.Exit(1)
	}

	metricsService, err := saasmetrics.NewService(saasmetrics.ServiceParams{
		Repo:     repo,
		Referral: referralService,
		Billing:  cfg.Billing,
		Alerts:   cfg.Alerts,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create metrics service", err)
		os.Exit(1)
	}

	webhookGuard, err := redis.NewDedupGuard(redisClient, cfg.Gateway.DedupTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook dedup guard", err)
		os.Exit(1)
	}

	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)

	addr := ":" + env.Get("PORT", cfg.App.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			reconcileService,
			metricsService,
			gatewayClient,
			webhookGuard,
			webhookMetrics,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}
