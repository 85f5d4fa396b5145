package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packfinderz-inventory/pkg/config"
	"github.com/angelmondragon/packfinderz-inventory/pkg/db"
	"github.com/angelmondragon/packfinderz-inventory/pkg/instance"
	"github.com/angelmondragon/packfinderz-inventory/pkg/kafka"
	"github.com/angelmondragon/packfinderz-inventory/pkg/logger"
	"github.com/angelmondragon/packfinderz-inventory/pkg/metrics"
	"github.com/angelmondragon/packfinderz-inventory/pkg/migrate"
	"github.com/angelmondragon/packfinderz-inventory/pkg/outbox"
	"github.com/angelmondragon/packfinderz-inventory/pkg/outbox/registry"
	"github.com/angelmondragon/packfinderz-inventory/pkg/pubsub"
)

func main() {
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
	})

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

	transport, ping, topic, closeFn, err := buildTransport(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap outbox transport", err)
		os.Exit(1)
	}
	defer closeFn()

	eventRegistry, err := registry.NewEventRegistry(topic)
	if err != nil {
		logg.Error(context.Background(), "failed to build event registry", err)
		os.Exit(1)
	}
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Transport:     transport,
		TransportPing: ping,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox publisher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "outbox-publisher",
		"transport":   cfg.Outbox.TransportName(),
		"instance":    instance.GetID(),
	})
	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()

	logg.Info(ctx, "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

// buildTransport returns the configured publisher, its readiness probe, the
// topic events are routed to and a close hook.
func buildTransport(ctx context.Context, cfg *config.Config, logg *logger.Logger) (outbox.Publisher, func(context.Context) error, string, func(), error) {
	if cfg.Outbox.TransportName() == config.OutboxTransportKafka {
		pub, err := kafka.NewPublisher(cfg.Kafka)
		if err != nil {
			return nil, nil, "", nil, err
		}
		closeFn := func() {
			if err := pub.Close(); err != nil {
				logg.Error(context.Background(), "error closing kafka writer", err)
			}
		}
		return pub, nil, cfg.Kafka.Topic, closeFn, nil
	}

	// The publisher never consumes, so skip the subscription check.
	psCfg := cfg.PubSub
	psCfg.OrdersSubscription = ""
	client, err := pubsub.NewClient(ctx, cfg.GCP, psCfg, logg)
	if err != nil {
		return nil, nil, "", nil, err
	}
	pub, err := pubsub.NewEventPublisher(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, "", nil, err
	}
	closeFn := func() {
		_ = pub.Close()
		if err := client.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}
	return pub, client.Ping, cfg.PubSub.InventoryTopic, closeFn, nil
}
