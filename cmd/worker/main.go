package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/servicebook/booking-api/config"
	"github.com/servicebook/booking-api/internal/email"
	"github.com/servicebook/booking-api/internal/repository"
	"github.com/servicebook/booking-api/internal/repository/postgres"
	"github.com/servicebook/booking-api/pkg/logger"
	"github.com/servicebook/booking-api/pkg/messaging"
	"github.com/servicebook/booking-api/pkg/messaging/amqp"
	"github.com/servicebook/booking-api/pkg/messaging/memory"
	"github.com/servicebook/booking-api/pkg/messaging/redis"
	"github.com/servicebook/booking-api/pkg/metrics"
	"github.com/servicebook/booking-api/pkg/worker"
)

func newBroker(ctx context.Context, cfg *config.Config, log *logger.Logger) (messaging.Broker, error) {
	switch strings.ToLower(cfg.Broker.Type) {
	case "amqp":
		return amqp.NewBroker(cfg.AMQP.ToBrokerConfig(), log)
	case "memory":
		return memory.NewBroker(), nil
	default:
		return redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig(), log)
	}
}

func setupHealthServer(port int, store repository.Store, appLogger *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error(err, "Health check server failed")
		}
	}()
	return srv
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	appLogger := logger.NewLogger(cfg.Log.ToLoggerConfig())
	log.Logger = appLogger.ZL

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		appLogger.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()
	store := postgres.NewStore(db)

	m := metrics.New(cfg.Metrics.Namespace)
	m.MustRegister(prometheus.DefaultRegisterer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker, err := newBroker(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal(err, "Failed to create message broker", "type", cfg.Broker.Type)
	}
	defer broker.Close()

	processor, err := worker.NewOutboxProcessor(store, broker, cfg.Outbox.ToWorkerConfig(), appLogger, m)
	if err != nil {
		appLogger.Fatal(err, "Invalid outbox configuration")
	}
	cleanup := worker.NewOutboxCleanupWorker(store.Outbox(), cfg.Outbox.Retention, cfg.Outbox.CleanupInterval, appLogger, m)

	healthSrv := setupHealthServer(cfg.Worker.HealthPort, store, appLogger)

	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	run(processor.Start)
	run(cleanup.Start)

	if cfg.SMTP.Enabled {
		notifier := email.NewNotifier(email.NewSMTPService(cfg.SMTP.ToSMTPConfig()), store.Catalog(), appLogger)
		for _, channel := range notifier.Channels() {
			channel := channel
			run(func(ctx context.Context) {
				if err := messaging.Consume(ctx, broker, channel, notifier.Handle, appLogger); err != nil {
					appLogger.Error(err, "Notification consumer stopped", "channel", channel)
				}
			})
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	appLogger.Info("Shutting down...")
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)
}
