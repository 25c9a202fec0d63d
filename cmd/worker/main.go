package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/tablepos-backend/internal/analytics/router"
	"github.com/angelmondragon/tablepos-backend/internal/analytics/types"
	"github.com/angelmondragon/tablepos-backend/internal/analytics/worker"
	"github.com/angelmondragon/tablepos-backend/internal/analytics/writer"
	"github.com/angelmondragon/tablepos-backend/internal/audit"
	"github.com/angelmondragon/tablepos-backend/internal/notifications"
	"github.com/angelmondragon/tablepos-backend/pkg/bigquery"
	"github.com/angelmondragon/tablepos-backend/pkg/config"
	"github.com/angelmondragon/tablepos-backend/pkg/db"
	"github.com/angelmondragon/tablepos-backend/pkg/instance"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/angelmondragon/tablepos-backend/pkg/mongo"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/tablepos-backend/pkg/pubsub"
	"github.com/angelmondragon/tablepos-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "error closing bigquery client", err)
		}
	}()

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	deps := []dependency{
		{name: "database", ping: dbClient.Ping},
		{name: "redis", ping: redisClient.Ping},
		{name: "pubsub", ping: pubsubClient.Ping},
		{name: "bigquery", ping: bqClient.Ping},
	}

	if cfg.BigQuery.CreateTables {
		err := bqClient.EnsureTable(ctx, bigquery.TableSpec{
			Name:           bqClient.SalesTable(),
			Schema:         types.SalesFactSchema,
			PartitionField: "occurred_at",
			ClusterBy:      []string{"event_type"},
		})
		requireResource(ctx, logg, "sales table", err)
	}

	salesWriter, err := writer.New(bqClient, writer.Config{SalesTable: bqClient.SalesTable()})
	requireResource(ctx, logg, "sales writer", err)
	salesRouter, err := router.NewRouter(salesWriter, cfg.Kitchen.Location(), logg, nil)
	requireResource(ctx, logg, "analytics router", err)
	analyticsService, err := worker.NewService("analytics", pubsubClient.AnalyticsSubscription(), salesRouter, manager, logg)
	requireResource(ctx, logg, "analytics consumer", err)

	alertConsumer, err := notifications.NewConsumer(notifications.NewRepository(dbClient.DB()), pubsubClient.StaffAlertSubscription(), manager, logg)
	requireResource(ctx, logg, "staff alert consumer", err)

	consumers := []consumer{
		analyticsService,
		namedConsumer{name: "staff-alerts", run: alertConsumer.Run},
	}

	if strings.TrimSpace(cfg.Mongo.URI) != "" {
		mongoClient, err := mongo.NewClient(ctx, cfg.Mongo, logg)
		requireResource(ctx, logg, "mongo", err)
		defer func() {
			if err := mongoClient.Close(context.Background()); err != nil {
				logg.Error(ctx, "error closing mongo client", err)
			}
		}()
		requireResource(ctx, logg, "mongo indexes", mongoClient.EnsureIndexes(ctx))

		store, err := audit.NewMongoStore(mongoClient.AuditCollection())
		requireResource(ctx, logg, "audit store", err)
		auditHandler, err := audit.NewHandler(store, logg)
		requireResource(ctx, logg, "audit handler", err)
		auditService, err := worker.NewService("audit", pubsubClient.AuditSubscription(), auditHandler, manager, logg)
		requireResource(ctx, logg, "audit consumer", err)

		consumers = append(consumers, auditService)
		deps = append(deps, dependency{name: "mongo", ping: mongoClient.Ping})
	} else {
		logg.Warn(ctx, "mongo uri not set, status audit consumer disabled")
	}

	service, err := NewService(ServiceParams{
		Logger:       logg,
		Consumers:    consumers,
		Dependencies: deps,
		OnStop: func(ctx context.Context) {
			if err := salesWriter.Flush(ctx); err != nil {
				logg.Error(ctx, "failed to flush sales facts", err)
			}
		},
	})
	requireResource(ctx, logg, "worker service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID("worker-0"),
	})
	logg.Info(runCtx, "starting worker")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
