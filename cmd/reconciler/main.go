package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gmottadev/pageturner-backend/internal/cron"
	"github.com/gmottadev/pageturner-backend/internal/ops"
	"github.com/gmottadev/pageturner-backend/internal/orders"
	"github.com/gmottadev/pageturner-backend/internal/payments"
	"github.com/gmottadev/pageturner-backend/internal/reconcile"
	"github.com/gmottadev/pageturner-backend/pkg/config"
	"github.com/gmottadev/pageturner-backend/pkg/db"
	"github.com/gmottadev/pageturner-backend/pkg/logger"
	"github.com/gmottadev/pageturner-backend/pkg/metrics"
	"github.com/gmottadev/pageturner-backend/pkg/migrate"
	"github.com/gmottadev/pageturner-backend/pkg/outbox"
	"github.com/gmottadev/pageturner-backend/pkg/redis"
	"github.com/gmottadev/pageturner-backend/pkg/shipping"
	"github.com/gmottadev/pageturner-backend/pkg/stripe"
)

const lockKeyFormat = "pt:reconciler:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "reconciler"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "reconciler"

	logg = logger.New(logger.Options{
		ServiceName: "reconciler",
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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	carrier, err := shipping.NewClient(context.Background(), shipping.ClientParams{
		Config:    cfg.Shipping,
		Reconcile: cfg.Reconcile,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap shipping client", err)
		os.Exit(1)
	}

	gateway := payments.NewStripeGateway(stripeClient, cfg.Reconcile)

	ordersRepo := orders.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	reconciler, err := reconcile.NewBatchReconciler(reconcile.BatchReconcilerParams{
		DB:       dbClient,
		Orders:   ordersRepo,
		Carrier:  carrier,
		Gateway:  gateway,
		Resolver: reconcile.NewRefundResolver(gateway, logg),
		Outbox:   outboxService,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build reconciler", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	reconcileMetrics := metrics.NewReconcileMetrics(promRegistry)
	cronMetrics := metrics.NewCronJobMetrics(promRegistry)

	reconcileJob, err := reconcile.NewJob(reconcile.JobParams{
		Logger:      logg,
		Reconciler:  reconciler,
		Metrics:     reconcileMetrics,
		PassTimeout: cfg.Reconcile.PassTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build reconcile job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create scheduler lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(reconcileJob),
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Reconcile.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create scheduler", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting order reconciler")

	opsHandler := ops.NewHandler(ops.ServerParams{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		Registry: promRegistry,
	})
	go func() {
		addr := net.JoinHostPort("", cfg.App.OpsPort)
		if err := ops.Serve(ctx, addr, opsHandler, logg); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "ops server stopped unexpectedly", err)
		}
	}()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "reconciler stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "reconciler shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
