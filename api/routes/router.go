package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mfigueroa/stockroom-backend/api/controllers"
	"github.com/mfigueroa/stockroom-backend/api/middleware"
	"github.com/mfigueroa/stockroom-backend/internal/inventory"
	"github.com/mfigueroa/stockroom-backend/internal/realtime"
	"github.com/mfigueroa/stockroom-backend/pkg/config"
	"github.com/mfigueroa/stockroom-backend/pkg/db"
	"github.com/mfigueroa/stockroom-backend/pkg/logger"
	pkgredis "github.com/mfigueroa/stockroom-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *pkgredis.Client,
	hub *realtime.Hub,
	inventoryService inventory.Service,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Use(middleware.Logging(logg))
		r.Get("/live", controllers.HealthLive())
		r.Get("/ready", controllers.HealthReady(dbP, redisClient, logg))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// The websocket route skips the logging middleware: its response
	// writer wrapper does not implement http.Hijacker.
	wsPolicy := middleware.NewRateLimitPolicy("ws", cfg.RateLimit.WSWindow, cfg.RateLimit.WSLimit)
	r.With(
		middleware.RateLimit(wsPolicy, redisClient, logg),
		middleware.OptionalAuth(cfg.JWT, logg),
	).Get("/ws", controllers.Websocket(hub, cfg.Realtime, logg))

	r.Route("/api/v1/inventory", func(r chi.Router) {
		r.Use(middleware.Logging(logg))
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Get("/", controllers.ListInventory(inventoryService, logg))
		r.Route("/{productId}/{size}", func(r chi.Router) {
			r.Get("/", controllers.GetInventory(inventoryService, logg))
			r.Get("/logs", controllers.ListInventoryLogs(inventoryService, logg))
			r.Put("/", controllers.AdjustInventory(inventoryService, logg))
			r.Post("/reserve", controllers.ReserveInventory(inventoryService, logg))
			r.Post("/release", controllers.ReleaseInventory(inventoryService, logg))
			r.Post("/finalize", controllers.FinalizeInventory(inventoryService, logg))

			r.With(middleware.RequireRole("admin", logg)).
				Delete("/", controllers.DeleteInventory(inventoryService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Logging(logg))
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Post("/notifications/broadcast", controllers.BroadcastNotification(hub, logg))
	})

	return r
}
