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

	"leadfunnel_backend/internal/capi"
	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/funnels"
	"leadfunnel_backend/internal/funnels/repository"
	apphttp "leadfunnel_backend/internal/http"
	"leadfunnel_backend/internal/http/router"
	"leadfunnel_backend/internal/notification"
	"leadfunnel_backend/internal/scheduler"
	"leadfunnel_backend/internal/webhook"
	"leadfunnel_backend/internal/whatsapp"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/db"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/ratelimit"
	"leadfunnel_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	scoreScheduler, closeScheduler := initScoreScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}

	limiter := initRateLimiter(cfg, log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	store := repository.New(pool)

	// Notification module subscribes to domain events (not HTTP-facing)
	var whatsappSender whatsapp.Sender
	if client := whatsapp.NewClient(cfg, cfg.GetPhoneDefaultRegion(), log); client != nil {
		whatsappSender = client
	} else {
		log.Warn("WHATSAPP_URL not configured; client notifications and relays are dropped")
	}
	notificationModule := notification.New(pool, whatsappSender, store, log)
	notificationModule.RegisterHandlers(eventBus)

	funnelsModule, err := funnels.NewModule(store, eventBus, val, cfg, log, funnels.Deps{
		Relay:  notificationModule,
		Sender: capi.NewClient(cfg, log),
	})
	if err != nil {
		log.Error("failed to initialize funnels module", "error", err)
		panic("failed to initialize funnels module: " + err.Error())
	}
	if scoreScheduler != nil {
		funnelsModule.SetScoreScheduler(scoreScheduler)
	}

	webhookModule := webhook.NewModule(store, funnelsModule.Machine(), cfg.GetPhoneDefaultRegion(), cfg, val, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:  cfg,
		Logger:  log,
		Health:  pool,
		Limiter: limiter,
		Modules: []apphttp.Module{
			funnelsModule,
			webhookModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		eventBus.Wait()
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initScoreScheduler(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, func()) {
	if !cfg.IsSchedulerEnabled() {
		log.Warn("REDIS_URL not configured; leads are scored inline")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scoring scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func initRateLimiter(cfg config.RateLimitConfig, log *logger.Logger) ratelimit.Limiter {
	perMinute := cfg.GetRateLimitPerMinute()
	if cfg.GetRedisURL() == "" {
		log.Info("using in-process rate limiter", "perMinute", perMinute)
		return ratelimit.NewLocal(perMinute)
	}

	client, err := ratelimit.NewRedisClient(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		log.Error("failed to initialize redis rate limiter, falling back to in-process", "error", err)
		return ratelimit.NewLocal(perMinute)
	}
	log.Info("using redis rate limiter", "perMinute", perMinute)
	return ratelimit.NewRedis(client, perMinute, time.Minute)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
