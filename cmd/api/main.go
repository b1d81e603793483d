package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mfigueroa/stockroom-backend/api/routes"
	"github.com/mfigueroa/stockroom-backend/internal/inventory"
	"github.com/mfigueroa/stockroom-backend/internal/orders"
	"github.com/mfigueroa/stockroom-backend/internal/realtime"
	"github.com/mfigueroa/stockroom-backend/pkg/config"
	"github.com/mfigueroa/stockroom-backend/pkg/db"
	"github.com/mfigueroa/stockroom-backend/pkg/logger"
	"github.com/mfigueroa/stockroom-backend/pkg/metrics"
	"github.com/mfigueroa/stockroom-backend/pkg/pubsub"
	"github.com/mfigueroa/stockroom-backend/pkg/redis"
)

const shutdownGrace = 10 * time.Second

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

	if err := db.MaybeAutoMigrate(context.Background(), cfg.DB, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to migrate schema", err)
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

	realtimeMetrics := metrics.NewRealtimeMetrics(prometheus.DefaultRegisterer)
	hub := realtime.NewHub(cfg.Realtime, logg, realtimeMetrics)

	inventoryService, err := inventory.NewService(dbClient, inventory.NewRepository(dbClient.DB()), hub)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go hub.Run(ctx)

	// The orders consumer shares the process with the hub so its
	// notifications reach live connections directly.
	if cfg.PubSub.OrdersSubscription != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(ctx, "error closing pubsub", err)
			}
		}()

		consumer, err := orders.NewConsumer(inventoryService, hub, redisClient, pubsubClient.OrdersSubscription(), logg)
		if err != nil {
			logg.Error(ctx, "failed to create orders consumer", err)
			os.Exit(1)
		}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error(ctx, "orders consumer stopped unexpectedly", err)
			}
		}()
	} else {
		logg.Warn(ctx, "orders subscription not configured, consumer disabled")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, hub, inventoryService, prometheus.DefaultGatherer),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "error during shutdown", err)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}
