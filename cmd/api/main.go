package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/servicebook/booking-api/config"
	bookingHandler "github.com/servicebook/booking-api/internal/handler/booking"
	"github.com/servicebook/booking-api/internal/handler/health"
	paymentHandler "github.com/servicebook/booking-api/internal/handler/payment"
	slotHandler "github.com/servicebook/booking-api/internal/handler/slot"
	"github.com/servicebook/booking-api/internal/middleware"
	"github.com/servicebook/booking-api/internal/repository/cache"
	"github.com/servicebook/booking-api/internal/repository/postgres"
	"github.com/servicebook/booking-api/internal/router"
	bookingService "github.com/servicebook/booking-api/internal/service/booking"
	paymentService "github.com/servicebook/booking-api/internal/service/payment"
	slotService "github.com/servicebook/booking-api/internal/service/slot"
	"github.com/servicebook/booking-api/pkg/auth"
	"github.com/servicebook/booking-api/pkg/logger"
	"github.com/servicebook/booking-api/pkg/metrics"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(cfg.Log.ToLoggerConfig())
	log.Logger = appLogger.ZL
	gin.SetMode(cfg.Server.Mode)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	store := postgres.NewStore(db)
	catalog := cache.NewCatalog(store.Catalog(), cfg.Cache.ToCacheConfig())

	m := metrics.New(cfg.Metrics.Namespace)
	m.MustRegister(prometheus.DefaultRegisterer)

	slotSvc := slotService.NewService(store, catalog, m, appLogger)
	bookingSvc := bookingService.NewService(store, catalog, m, appLogger)
	paymentSvc := paymentService.NewService(store, catalog, m, appLogger)

	authMiddleware := middleware.NewAuthMiddleware(auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, 0))

	routerCfg := router.RouterConfig{
		CORSConfig:     cfg.CORS.ToCORSConfig(),
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		MetricsPrefix:  cfg.Metrics.Namespace + "_http",
		Registerer:     prometheus.DefaultRegisterer,
		Gatherer:       prometheus.DefaultGatherer,
	}
	if cfg.RateLimit.Enabled {
		limiter := cfg.RateLimit.ToLimiterConfig()
		routerCfg.RateLimit = &limiter
	}

	r := router.NewRouter(routerCfg,
		health.NewHandler(store),
		slotHandler.NewHandler(slotSvc, authMiddleware),
		bookingHandler.NewHandler(bookingSvc, paymentSvc, authMiddleware),
		paymentHandler.NewHandler(paymentSvc, authMiddleware),
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}
