package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packfinderz-inventory/api/controllers"
	"github.com/angelmondragon/packfinderz-inventory/api/middleware"
	"github.com/angelmondragon/packfinderz-inventory/internal/stock"
	"github.com/angelmondragon/packfinderz-inventory/pkg/config"
	"github.com/angelmondragon/packfinderz-inventory/pkg/db"
	"github.com/angelmondragon/packfinderz-inventory/pkg/logger"
	"github.com/angelmondragon/packfinderz-inventory/pkg/metrics"
	pkgredis "github.com/angelmondragon/packfinderz-inventory/pkg/redis"
)

// RedisStore is the slice of the Redis client the HTTP surface needs.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// Params carries everything the router wires into handlers.
type Params struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           db.Pinger
	Redis        RedisStore
	Stock        stock.Service
	Reservations controllers.ReservationService
	Batch        controllers.BatchService
	Sweeper      controllers.ExpirySweeper
	Gatherer     prometheus.Gatherer
	HTTPMetrics  *metrics.HTTPMetrics
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.Tracing(),
		middleware.Logging(logg, p.HTTPMetrics),
	)

	var checks []controllers.ReadinessCheck
	if p.DB != nil {
		checks = append(checks, controllers.ReadinessCheck{Name: "database", Ping: p.DB.Ping})
	}
	if p.Redis != nil {
		checks = append(checks, controllers.ReadinessCheck{Name: "redis", Ping: p.Redis.Ping})
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, checks...))
	})

	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(p.Gatherer))
	}

	r.Route("/api/inventory", func(r chi.Router) {
		if cfg.RateLimit.Enabled && p.Redis != nil {
			policy := middleware.NewRateLimitPolicy("inventory", cfg.RateLimit.Window, cfg.RateLimit.Requests)
			r.Use(middleware.RateLimit(policy, p.Redis, logg))
		}
		if p.Redis != nil {
			r.Use(middleware.Idempotency(p.Redis, logg))
		}

		r.Get("/", controllers.InventoryList(p.Stock, logg))
		r.Post("/", controllers.InventoryProvision(p.Stock, logg))
		r.Get("/low-stock", controllers.InventoryLowStock(p.Stock, logg))
		r.Get("/out-of-stock", controllers.InventoryOutOfStock(p.Stock, logg))
		r.Post("/check-availability", controllers.InventoryCheckAvailability(p.Stock, logg))
		r.Post("/cleanup-expired", controllers.InventoryCleanupExpired(p.Sweeper, logg))

		r.Route("/items/{itemId}", func(r chi.Router) {
			r.Get("/", controllers.InventoryGet(p.Stock, logg))
			r.Put("/", controllers.InventoryUpdateSettings(p.Stock, logg))
			r.Delete("/", controllers.InventoryDelete(p.Stock, logg))
			r.Get("/available", controllers.InventoryAvailable(p.Stock, logg))
			r.Post("/restock", controllers.InventoryRestock(p.Stock, logg))
			r.Post("/increase", controllers.InventoryRestock(p.Stock, logg))
			r.Post("/sell", controllers.InventorySell(p.Stock, logg))
			r.Post("/decrease", controllers.InventorySell(p.Stock, logg))
			r.Post("/return", controllers.InventoryReturn(p.Stock, logg))
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", controllers.ReservationHold(p.Reservations, logg))
			r.Route("/batch", func(r chi.Router) {
				r.Post("/reserve", controllers.BatchReserve(p.Batch, logg))
				r.Post("/confirm", controllers.BatchConfirm(p.Batch, logg))
				r.Post("/cancel", controllers.BatchCancel(p.Batch, logg))
			})
			r.Get("/order/{orderId}", controllers.ReservationListByOrder(p.Reservations, logg))
			r.Delete("/order/{orderId}", controllers.ReservationCancelByOrder(p.Batch, logg))
			r.Get("/{reservationId}", controllers.ReservationGet(p.Reservations, logg))
			r.Post("/{reservationId}/confirm", controllers.ReservationConfirm(p.Reservations, logg))
			r.Post("/{reservationId}/cancel", controllers.ReservationCancel(p.Reservations, logg))
		})
	})

	return r
}
