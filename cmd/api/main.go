package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/tablepos-backend/api/controllers"
	"github.com/angelmondragon/tablepos-backend/api/routes"
	"github.com/angelmondragon/tablepos-backend/internal/cart"
	"github.com/angelmondragon/tablepos-backend/internal/kitchen"
	"github.com/angelmondragon/tablepos-backend/internal/menu"
	"github.com/angelmondragon/tablepos-backend/internal/notifications"
	"github.com/angelmondragon/tablepos-backend/internal/orders"
	"github.com/angelmondragon/tablepos-backend/internal/reports"
	"github.com/angelmondragon/tablepos-backend/internal/returns"
	"github.com/angelmondragon/tablepos-backend/internal/tables"
	"github.com/angelmondragon/tablepos-backend/pkg/config"
	"github.com/angelmondragon/tablepos-backend/pkg/db"
	"github.com/angelmondragon/tablepos-backend/pkg/instance"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/angelmondragon/tablepos-backend/pkg/metrics"
	"github.com/angelmondragon/tablepos-backend/pkg/migrate"
	"github.com/angelmondragon/tablepos-backend/pkg/optimistic"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox"
	"github.com/angelmondragon/tablepos-backend/pkg/rabbitmq"
	"github.com/angelmondragon/tablepos-backend/pkg/realtime"
	"github.com/angelmondragon/tablepos-backend/pkg/redis"
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
		Format:      cfg.App.LogFormat,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) error {
	bootCtx := context.Background()

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	cacheMetrics := metrics.NewCacheMetrics(registry)

	pingers := map[string]controllers.Pinger{
		"database": dbClient,
		"redis":    redisClient,
	}

	var store optimistic.Store = optimistic.NewMemoryStore()
	if cfg.Optimistic.UsesRedis() {
		store = optimistic.NewRedisStore(redisClient)
	}
	tracker, err := optimistic.NewTracker(store, cfg.Optimistic.InFlightTTL, metrics.NewOptimisticMetrics(registry))
	if err != nil {
		return err
	}

	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	source, closeSource, err := newChangeSource(bootCtx, cfg, logg, redisClient, pingers)
	if err != nil {
		return err
	}
	defer closeSource()

	hub, err := realtime.NewHub(source, realtime.HubOptions{
		DedupeWindow: cfg.Realtime.DedupeWindow,
		Metrics:      metrics.NewRealtimeMetrics(registry),
		Logger:       logg,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := hub.Close(); err != nil {
			logg.Error(context.Background(), "error closing realtime hub", err)
		}
	}()

	tablesService, err := tables.NewService(tables.NewRepository(dbClient.DB()), dbClient, emitter, logg)
	if err != nil {
		return err
	}
	menuService, err := menu.NewService(menu.NewRepository(dbClient.DB()), dbClient, emitter, logg)
	if err != nil {
		return err
	}
	cartService, err := cart.NewService(cart.NewRepository(dbClient.DB()), dbClient, emitter, tracker, logg)
	if err != nil {
		return err
	}
	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:    orders.NewRepository(dbClient.DB()),
		Tx:      dbClient,
		Outbox:  emitter,
		Pending: tracker,
		Logger:  logg,
	})
	if err != nil {
		return err
	}

	kitchenRepo := kitchen.NewRepository(dbClient.DB())
	board, err := kitchen.NewBoard(kitchenRepo, kitchen.BoardOptions{
		TTL:     cfg.Cache.EntryTTL,
		Metrics: cacheMetrics,
		Logger:  logg,
	})
	if err != nil {
		return err
	}
	detachBoard, err := board.Attach(hub)
	if err != nil {
		return err
	}
	defer detachBoard()

	kitchenService, err := kitchen.NewService(kitchen.ServiceParams{
		Repo:      kitchenRepo,
		Tx:        dbClient,
		Outbox:    emitter,
		Pending:   tracker,
		Board:     board,
		Logger:    logg,
		LateAfter: cfg.Kitchen.LateAfter,
	})
	if err != nil {
		return err
	}
	returnsService, err := returns.NewService(returns.NewRepository(dbClient.DB()), dbClient, emitter, tracker, logg)
	if err != nil {
		return err
	}
	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		return err
	}
	reportsService, err := reports.NewService(reports.NewRepository(dbClient.DB()), dbClient, emitter, cfg.Kitchen.Location(), logg)
	if err != nil {
		return err
	}

	var importer controllers.MenuImporter
	if strings.TrimSpace(cfg.Sheets.CredentialsJSON) != "" {
		fetcher, err := menu.NewSheetsFetcher(bootCtx, cfg.Sheets.CredentialsJSON)
		if err != nil {
			return err
		}
		sheets, err := menu.NewSheetsImporter(fetcher, menuService, cfg.Sheets.DefaultRange, logg)
		if err != nil {
			return err
		}
		importer = sheets
	} else {
		logg.Warn(bootCtx, "sheets credentials not set, menu import disabled")
	}

	router := routes.NewRouter(cfg, logg, routes.Deps{
		Pingers:        pingers,
		Idempotency:    redisClient,
		RateLimiter:    redisClient,
		HTTPMetrics:    metrics.NewHTTPMetrics(registry),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Changes:        hub,
		Tables:         tablesService,
		Menu:           menuService,
		MenuImporter:   importer,
		Cart:           cartService,
		Orders:         ordersService,
		Kitchen:        kitchenService,
		Returns:        returnsService,
		Notifications:  notificationsService,
		Reports:        reportsService,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":             cfg.App.Env,
		"addr":            addr,
		"instance":        instance.ID("local"),
		"realtime_source": cfg.Realtime.Source,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logg.Info(ctx, "api server shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newChangeSource builds the transport the realtime hub listens on.
// Non-redis transports register their own readiness check.
func newChangeSource(ctx context.Context, cfg *config.Config, logg *logger.Logger, redisClient *redis.Client, pingers map[string]controllers.Pinger) (realtime.Source, func(), error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(cfg.Realtime.Source)) {
	case config.RealtimeSourcePostgres:
		source := realtime.NewPGSource(cfg.DB.DSN, logg)
		closeFn := func() {
			if err := source.Close(); err != nil {
				logg.Error(context.Background(), "error closing postgres listener", err)
			}
		}
		return source, closeFn, nil
	case config.RealtimeSourceRabbitMQ:
		client, err := rabbitmq.New(ctx, cfg.Realtime, logg)
		if err != nil {
			return nil, noop, err
		}
		pingers["rabbitmq"] = client
		closeFn := func() {
			if err := client.Close(); err != nil {
				logg.Error(context.Background(), "error closing rabbitmq", err)
			}
		}
		return realtime.NewRabbitSource(client, logg), closeFn, nil
	default:
		return realtime.NewRedisSource(redisClient, cfg.Realtime.ChannelPrefix, logg), noop, nil
	}
}
