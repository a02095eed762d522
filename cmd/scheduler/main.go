package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/funnels"
	"leadfunnel_backend/internal/funnels/repository"
	"leadfunnel_backend/internal/scheduler"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/db"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)

	// Worker-side funnels wiring (no HTTP handlers required).
	funnelsModule, err := funnels.NewModule(repository.New(pool), eventBus, validator.New(), cfg, log, funnels.Deps{})
	if err != nil {
		log.Error("failed to initialize funnels module", "error", err)
		panic("failed to initialize funnels module: " + err.Error())
	}

	sweepInterval := getDurationEnv("SESSION_SWEEP_INTERVAL", time.Hour)
	sessionSweep := scheduler.NewSessionSweep(funnelsModule.Machine(), log, sweepInterval, cfg.GetSessionIdleTTL())
	go sessionSweep.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, funnelsModule.ScoringService(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	eventBus.Wait()
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
