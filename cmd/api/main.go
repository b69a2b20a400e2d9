package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Naiemjoy1/mfs-server/internal/api"
	"github.com/Naiemjoy1/mfs-server/internal/auth"
	"github.com/Naiemjoy1/mfs-server/internal/config"
	"github.com/Naiemjoy1/mfs-server/internal/events"
	"github.com/Naiemjoy1/mfs-server/internal/ratelimit"
	"github.com/Naiemjoy1/mfs-server/internal/reconcile"
	"github.com/Naiemjoy1/mfs-server/internal/service"
	"github.com/Naiemjoy1/mfs-server/internal/store"
)

func newLogger(env string) *slog.Logger {
	if env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	db, err := store.NewPostgres(connectCtx, cfg.DBSource)
	if err != nil {
		cancel()
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(connectCtx); err != nil {
		cancel()
		logger.Error("unable to apply migrations", "error", err)
		os.Exit(1)
	}
	cancel()
	defer db.Close()
	logger.Info("database ready")

	// Events
	var publisher events.Publisher = events.Nop{Logger: logger}
	if cfg.RabbitMQURL != "" {
		p, err := events.NewAMQPPublisher(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("rabbitmq unavailable; events disabled", "error", err)
		} else {
			publisher = p
			logger.Info("publishing ledger events", "exchange", events.Exchange)
		}
	}
	defer publisher.Close()

	// Login and PIN throttling
	var limiter service.AttemptLimiter
	if cfg.RedisURL != "" {
		client, err := ratelimit.Dial(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable; attempt throttling disabled", "error", err)
		} else {
			defer client.Close()
			limiter = ratelimit.NewRedis(client, "mfs:rate_limit")
		}
	}

	// Initialize Layers
	pins := auth.NewPINHasher(cfg.BcryptCost)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	engine := service.NewEngine(db, pins, publisher, logger, service.Options{
		RequireActiveAccount: cfg.RequireActiveAccount,
		MaxMutationRetries:   cfg.MaxMutationRetries,
		PINLimiter:           limiter,
		PINAttempts: service.AttemptPolicy{
			MaxAttempts: cfg.PINMaxAttempts,
			Window:      cfg.PINWindow,
		},
	})
	accounts := service.NewAccounts(db, pins, tokens, limiter, service.AttemptPolicy{
		MaxAttempts: cfg.LoginMaxAttempts,
		Window:      cfg.LoginWindow,
	}, logger)
	handler := api.NewHandler(engine, accounts, tokens, logger)

	// Reconciliation
	scheduler, err := reconcile.Schedule(cfg.ReconcileSchedule, reconcile.NewJob(db, logger), logger)
	if err != nil {
		logger.Error("invalid reconciliation schedule", "schedule", cfg.ReconcileSchedule, "error", err)
		os.Exit(1)
	}
	defer func() { <-scheduler.Stop().Done() }()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Routes(cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
