package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/tablepos-backend/pkg/config"
	"github.com/angelmondragon/tablepos-backend/pkg/db"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/angelmondragon/tablepos-backend/pkg/migrate"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/registry"
	"github.com/angelmondragon/tablepos-backend/pkg/pubsub"
	"github.com/angelmondragon/tablepos-backend/pkg/rabbitmq"
	"github.com/angelmondragon/tablepos-backend/pkg/realtime"
	"github.com/angelmondragon/tablepos-backend/pkg/redis"
)

func main() {
	requeueIDs := flag.String("requeue", "", "comma separated outbox event ids to move from the dlq back into the outbox, then exit")
	force := flag.Bool("force", false, "with -requeue, also requeue events parked for non-transient reasons")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "outbox-publisher"

	logg = logger.New(logger.Options{
		ServiceName: "outbox-publisher",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
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

	dlqRepo := outbox.NewDLQRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())

	if *requeueIDs != "" {
		ids, err := parseEventIDs(*requeueIDs)
		if err != nil {
			logg.Error(context.Background(), "invalid -requeue", err)
			os.Exit(2)
		}
		n, err := requeueDeadLetters(context.Background(), dbClient, outboxRepo, dlqRepo, ids, *force, logg)
		fmt.Printf("requeued %d of %d events\n", n, len(ids))
		if err != nil {
			os.Exit(1)
		}
		return
	}

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	broadcaster, closeBroadcaster, err := newBroadcaster(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap change broadcaster", err)
		os.Exit(1)
	}
	defer closeBroadcaster()

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		logg.Error(context.Background(), "failed to build event registry", err)
		os.Exit(1)
	}
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outboxRepo,
		Registry:      eventRegistry,
		DLQRepository: dlqRepo,
		Broadcaster:   broadcaster,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox publisher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":             cfg.App.Env,
		"serviceKind":     "outbox-publisher",
		"realtime_source": cfg.Realtime.Source,
	})
	logg.Info(ctx, "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

// newBroadcaster picks the change fan-out matching the realtime source the
// API listens on. Postgres screens are fed by row triggers, so nothing is
// broadcast from here.
func newBroadcaster(ctx context.Context, cfg *config.Config, logg *logger.Logger) (realtime.Broadcaster, func(), error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(cfg.Realtime.Source)) {
	case config.RealtimeSourceRedis:
		client, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return nil, noop, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}
		return realtime.NewRedisBroadcaster(client, cfg.Realtime.ChannelPrefix), closeFn, nil
	case config.RealtimeSourceRabbitMQ:
		client, err := rabbitmq.New(ctx, cfg.Realtime, logg)
		if err != nil {
			return nil, noop, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				logg.Error(context.Background(), "error closing rabbitmq", err)
			}
		}
		return realtime.NewRabbitBroadcaster(client), closeFn, nil
	default:
		return nil, noop, nil
	}
}
