package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/consertaja/billing/internal/cron"
	"github.com/consertaja/billing/internal/gateway"
	"github.com/consertaja/billing/internal/ledger"
	"github.com/consertaja/billing/internal/reconcile"
	"github.com/consertaja/billing/internal/referral"
	"github.com/consertaja/billing/pkg/config"
	"github.com/consertaja/billing/pkg/db"
	"github.com/consertaja/billing/pkg/instance"
	"github.com/consertaja/billing/pkg/logger"
	"github.com/consertaja/billing/pkg/metrics"
	"github.com/consertaja/billing/pkg/migrate"
	"github.com/consertaja/billing/pkg/redis"
)

const lockKeyFormat = "cron-worker:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockKey(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	trialJob, err := cron.NewTrialExpiryJob(reconcileService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create trial expiry job", err)
		os.Exit(1)
	}
	overdueJob, err := cron.NewOverdueSuspendJob(reconcileService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create overdue suspend job", err)
		os.Exit(1)
	}
	periodJob, err := cron.NewPeriodExpiryJob(reconcileService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create period expiry job", err)
		os.Exit(1)
	}
	referralJob, err := cron.NewReferralScanJob(referralService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create referral scan job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(trialJob, overdueJob, periodJob, referralJob)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
