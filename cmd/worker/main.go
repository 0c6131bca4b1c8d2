package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/config-api/internal/config"
	"github.com/jwalitptl/config-api/internal/repository/postgres"
	"github.com/jwalitptl/config-api/pkg/logger"
	"github.com/jwalitptl/config-api/pkg/messaging/redis"
	"github.com/jwalitptl/config-api/pkg/metrics"
	"github.com/jwalitptl/config-api/pkg/worker"
)

// workerEnv overrides dispatcher knobs from the environment, so the
// worker can be tuned per deployment without a config file.
type workerEnv struct {
	BatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE"`
	PollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL"`
	Topic        string        `envconfig:"OUTBOX_TOPIC"`
	MetricsPort  int           `envconfig:"METRICS_PORT" default:"9090"`
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	var env workerEnv
	if err := envconfig.Process("config_worker", &env); err != nil {
		log.Fatal().Err(err).Msg("failed to process environment")
	}
	if env.BatchSize > 0 {
		cfg.Outbox.BatchSize = env.BatchSize
	}
	if env.PollInterval > 0 {
		cfg.Outbox.PollInterval = env.PollInterval
	}
	if env.Topic != "" {
		cfg.Outbox.Topic = env.Topic
	}

	appLogger := logger.NewLogger(nil)
	appMetrics := metrics.NewMetrics("config_api", "worker")

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	outboxRepo := postgres.NewOutboxRepository(db)

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

	ctx, cancel := context.WithCancel(context.Background())
	go dispatcher.Start(ctx)

	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", env.MetricsPort),
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start metrics server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down worker...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics server forced to shutdown")
	}
}
