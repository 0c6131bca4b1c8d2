package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/config-api/internal/config"
	"github.com/jwalitptl/config-api/internal/handler"
	configHandler "github.com/jwalitptl/config-api/internal/handler/config"
	"github.com/jwalitptl/config-api/internal/middleware"
	"github.com/jwalitptl/config-api/internal/repository/postgres"
	"github.com/jwalitptl/config-api/internal/router"
	configService "github.com/jwalitptl/config-api/internal/service/config"
	"github.com/jwalitptl/config-api/pkg/cache"
	"github.com/jwalitptl/config-api/pkg/logger"
	"github.com/jwalitptl/config-api/pkg/messaging/redis"
	"github.com/jwalitptl/config-api/pkg/metrics"
	"github.com/jwalitptl/config-api/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)
	appMetrics := metrics.NewMetrics("config_api", "core")

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Repositories
	configRepo := postgres.NewConfigRepository(db)
	domainRepo := postgres.NewDomainRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	// Core service, optionally wrapped with the read-through cache
	var svc configService.ConfigServicer = configService.NewService(configRepo, domainRepo, appLogger)
	if cfg.Cache.Enabled {
		store, err := cache.NewRedisStore(cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis cache")
		}
		defer store.Close()
		svc = configService.NewCachedService(svc, store, cfg.Cache.TTL, appLogger, appMetrics)
	}

	// Handlers and router
	h := handler.NewHandler(db)
	configH := configHandler.NewHandler(svc)
	r := router.NewRouter(configH, h, router.RouterConfig{
		RateLimit:      rate.Limit(cfg.Server.RateLimit),
		RateBurst:      cfg.Server.RateBurst,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSConfig:     middleware.DefaultCORSConfig(),
		MetricsPrefix:  "config_api",
	})
	r.Setup()

	// Broker and outbox dispatcher
	zl := log.Logger
	broker, err := redis.NewRedisBroker(redis.Config{URL: cfg.Redis.URL}, &zl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis broker")
	}
	defer broker.Close()

	dispatcher := worker.NewDispatcher(outboxRepo, broker, worker.DispatcherConfig{
		BatchSize:    cfg.Outbox.BatchSize,
		PollInterval: cfg.Outbox.PollInterval,
		Topic:        cfg.Outbox.Topic,
	}, appLogger, appMetrics)

	dispatcherCtx, stopDispatcher := context.WithCancel(context.Background())
	go dispatcher.Start(dispatcherCtx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	stopDispatcher()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
}
