package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/tablepos-backend/internal/cart"
	"github.com/angelmondragon/tablepos-backend/internal/cron"
	"github.com/angelmondragon/tablepos-backend/internal/notifications"
	"github.com/angelmondragon/tablepos-backend/pkg/config"
	"github.com/angelmondragon/tablepos-backend/pkg/db"
	"github.com/angelmondragon/tablepos-backend/pkg/instance"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/angelmondragon/tablepos-backend/pkg/metrics"
	"github.com/angelmondragon/tablepos-backend/pkg/migrate"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox"
	"github.com/angelmondragon/tablepos-backend/pkg/redis"
)

// lockSlack lets a crashed holder's lock lapse before the next tick.
const lockSlack = 5 * time.Minute

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})
	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	must(ctx, logg, "load config", err)
	cfg.Service.Kind = "cron-worker"
	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID("cron-0"),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	must(ctx, logg, "bootstrap database", err)
	defer closeWith(ctx, logg, "database", dbClient.Close)
	must(ctx, logg, "run dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	must(ctx, logg, "bootstrap redis", err)
	defer closeWith(ctx, logg, "redis", redisClient.Close)

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), lockTTL(cfg.Cron.Interval))
	must(ctx, logg, "create cron lock", err)

	registry, err := buildRegistry(cfg, logg, dbClient)
	must(ctx, logg, "build cron jobs", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	must(ctx, logg, "create cron service", err)

	if *once {
		logg.Info(ctx, "running a single cron cycle")
		must(ctx, logg, "cron cycle", service.RunOnce(ctx))
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	outboxRepo := outbox.NewRepository(dbClient.DB())
	staleCarts, err := cron.NewStaleCartJob(cron.StaleCartJobParams{
		Logger:     logg,
		DB:         dbClient,
		Carts:      cart.NewRepository(dbClient.DB()),
		Outbox:     outbox.NewService(outboxRepo, logg),
		StaleAfter: cfg.Cron.CartStaleAfter,
	})
	if err != nil {
		return nil, fmt.Errorf("stale cart job: %w", err)
	}
	outboxRetention, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:        "outbox-retention",
		Logger:      logg,
		Purge:       outboxRepo.DeletePublishedBefore,
		Keep:        cron.Days(cfg.Cron.OutboxRetentionDays),
		DefaultKeep: cron.Days(7),
	})
	if err != nil {
		return nil, err
	}
	notificationCleanup, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:        "notification-cleanup",
		Logger:      logg,
		Purge:       notifications.NewRepository(dbClient.DB()).DeleteReadBefore,
		Keep:        cron.Days(cfg.Cron.NotificationRetentionDays),
		DefaultKeep: cron.Days(30),
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(staleCarts, outboxRetention, notificationCleanup).Only(cfg.Cron.Jobs...)
}

func must(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "failed to "+step, err)
	os.Exit(1)
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+name, err)
	}
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return redis.Key("cron-worker", "lock", env)
}

func lockTTL(interval time.Duration) time.Duration {
	if interval > 2*lockSlack {
		return interval - lockSlack
	}
	return interval
}
