package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/ad-product-extractor/internal/api"
	"github.com/maltedev/ad-product-extractor/internal/app"
	"github.com/maltedev/ad-product-extractor/internal/config"
	"github.com/maltedev/ad-product-extractor/internal/database"
	"github.com/maltedev/ad-product-extractor/internal/events"
	"github.com/maltedev/ad-product-extractor/internal/jobs"
	"github.com/maltedev/ad-product-extractor/internal/logger"
	"github.com/maltedev/ad-product-extractor/internal/ratelimit"
	"github.com/redis/go-redis/v9"
)

const (
	extractBurst  = 20
	extractRefill = 3 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "json").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.Database.DB())
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	relay := database.NewRelay(database.NewOutboxRepository(db), redisClient, log, database.RelayConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
		StreamMaxLen: cfg.Redis.MaxLen,
	})
	go func() {
		if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("relay stopped with error", "error", err)
		}
	}()

	pipeline, err := app.NewPipeline(cfg, log)
	if err != nil {
		log.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	manager := jobs.NewManager(
		database.NewJobRepository(db),
		pipeline.Extractor,
		events.NewBuilder(cfg.Redis.Stream),
		jobs.Options{Workers: cfg.Jobs.Workers, PollInterval: cfg.Jobs.PollInterval},
		log,
	)
	go manager.Start(ctx)

	handlers := api.NewHandlers(
		pipeline.Extractor,
		manager,
		relay,
		ratelimit.NewTokenBucketRateLimiter(extractBurst, extractRefill),
		log,
	)

	server := &http.Server{
		Addr: net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(handlers, api.RouterOptions{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: cfg.Server.WriteTimeout,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down server")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	log.Info("server starting", "addr", server.Addr, "workers", cfg.Jobs.Workers, "browser", cfg.Browser.Enabled)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
