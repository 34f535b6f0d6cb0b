package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lakumart/groupbuy-server-go/internal/client"
	"github.com/lakumart/groupbuy-server-go/internal/config"
	"github.com/lakumart/groupbuy-server-go/internal/database"
	"github.com/lakumart/groupbuy-server-go/internal/handler"
	"github.com/lakumart/groupbuy-server-go/internal/jobs"
	"github.com/lakumart/groupbuy-server-go/internal/middleware"
	"github.com/lakumart/groupbuy-server-go/internal/redis"
	"github.com/lakumart/groupbuy-server-go/internal/repository"
	"github.com/lakumart/groupbuy-server-go/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("APP_ENV") == "production"
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	sessionRepo := repository.NewSessionRepository(db.DB)
	participantRepo := repository.NewParticipantRepository(db.DB)
	paymentRecordRepo := repository.NewPaymentRecordRepository(db.DB)

	paymentClient := client.NewPaymentClient(cfg.PaymentServiceURL)
	warehouseClient := client.NewWarehouseClient(cfg.WarehouseServiceURL)
	orderClient := client.NewOrderClient(cfg.OrderServiceURL)
	walletClient := client.NewWalletClient(cfg.WalletServiceURL)

	botFiller := service.NewBotFiller(sessionRepo, participantRepo, paymentRecordRepo, cfg.BotUserID)
	orchestrator := service.NewWarehouseOrchestrator(sessionRepo, participantRepo, warehouseClient)
	sessionService := service.NewSessionService(sessionRepo, participantRepo, paymentClient, warehouseClient)
	lifecycleService := service.NewLifecycleService(
		sessionRepo, participantRepo, paymentRecordRepo,
		botFiller, orchestrator,
		paymentClient, walletClient, orderClient,
		sessionService,
	)

	rateLimit := middleware.NewRateLimitMiddleware(redisClient.Client, cfg.JoinRateLimitPerMin)
	serviceToken := middleware.NewServiceTokenMiddleware(cfg.InternalToken)
	bodyLimit := middleware.NewBodyLimitMiddleware(0)

	sessionHandler := handler.NewSessionHandler(sessionService, rateLimit.Handler)
	internalHandler := handler.NewInternalHandler(lifecycleService, sessionService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimit.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"service":   "group-buying",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/api/group-buying", func(r chi.Router) {
		r.Mount("/", sessionHandler.Routes())
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(serviceToken.Handler)
		r.Mount("/", internalHandler.Routes())
	})

	expirationJob := jobs.NewExpirationJob(lifecycleService, config.ExpirationJobInterval)
	expirationJob.Start()
	defer expirationJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
