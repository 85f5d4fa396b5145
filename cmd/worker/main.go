package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packfinderz-inventory/internal/consumers/orders"
	"github.com/angelmondragon/packfinderz-inventory/internal/reservations"
	"github.com/angelmondragon/packfinderz-inventory/internal/stock"
	"github.com/angelmondragon/packfinderz-inventory/pkg/config"
	"github.com/angelmondragon/packfinderz-inventory/pkg/db"
	"github.com/angelmondragon/packfinderz-inventory/pkg/instance"
	"github.com/angelmondragon/packfinderz-inventory/pkg/logger"
	"github.com/angelmondragon/packfinderz-inventory/pkg/metrics"
	"github.com/angelmondragon/packfinderz-inventory/pkg/migrate"
	"github.com/angelmondragon/packfinderz-inventory/pkg/outbox"
	"github.com/angelmondragon/packfinderz-inventory/pkg/outbox/idempotency"
	"github.com/angelmondragon/packfinderz-inventory/pkg/outbox/registry"
	"github.com/angelmondragon/packfinderz-inventory/pkg/pubsub"
	"github.com/angelmondragon/packfinderz-inventory/pkg/redis"
	"github.com/angelmondragon/packfinderz-inventory/pkg/tracing"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	shutdownTracing, err := tracing.Setup(context.Background(), cfg.Tracing, "worker", cfg.Service.Version, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to set up tracing", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logg.Error(context.Background(), "error flushing traces", err)
		}
	}()

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
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

	inventoryMetrics := metrics.NewInventoryMetrics(prometheus.DefaultRegisterer)
	consumerMetrics := metrics.NewConsumerMetrics(prometheus.DefaultRegisterer)

	manager, err := reservations.NewManager(reservations.ManagerParams{
		DB:         dbClient,
		Repository: reservations.NewRepository(dbClient.DB()),
		Ledger:     stock.NewLedger(time.Now, inventoryMetrics),
		Outbox:     outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Metrics:    inventoryMetrics,
		Logger:     logg,
		DefaultTTL: cfg.Reservations.DefaultTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation manager", err)
		os.Exit(1)
	}
	coordinator, err := reservations.NewBatchCoordinator(manager)
	if err != nil {
		logg.Error(context.Background(), "failed to create batch coordinator", err)
		os.Exit(1)
	}

	idempotencyManager, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	handler, err := orders.NewHandler(orders.HandlerParams{
		Coordinator:  coordinator,
		Reservations: manager,
		Idempotency:  idempotencyManager,
		Decoder:      registry.NewOrderDecoderRegistry(),
		Metrics:      consumerMetrics,
		Logger:       logg,
		HoldTTL:      cfg.Reservations.DefaultTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order event handler", err)
		os.Exit(1)
	}
	ordersConsumer, err := orders.NewConsumer(pubsubClient.OrdersSubscription(), handler)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders consumer", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Logger: logg,
		Dependencies: []Dependency{
			{Name: "database", Ping: dbClient.Ping},
			{Name: "redis", Ping: redisClient.Ping},
			{Name: "pubsub", Ping: pubsubClient.Ping},
		},
		Runners: []Runner{
			{Name: orders.ConsumerName, Runner: ordersConsumer},
			{Name: "metrics", Runner: metricsServer{addr: cfg.Service.MetricsAddr, logg: logg}},
		},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}

type metricsServer struct {
	addr string
	logg *logger.Logger
}

func (m metricsServer) Run(ctx context.Context) error {
	return metrics.Serve(ctx, m.addr, prometheus.DefaultGatherer, m.logg)
}
