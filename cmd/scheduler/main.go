package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/repository"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/scheduler"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/config"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/db"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "interval", cfg.GetMetricsSnapshotInterval())

	// Snapshots are computed from the shared database; an in-memory store
	// would only ever see its own empty process.
	if !cfg.UsesDatabase() {
		panic("scheduler requires DATABASE_URL")
	}
	if cfg.GetRedisURL() == "" {
		panic("scheduler requires REDIS_URL")
	}

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

	redisClient, err := scheduler.NewRedisClient(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		log.Error("failed to configure redis", "error", err)
		panic("failed to configure redis: " + err.Error())
	}
	defer redisClient.Close()

	cache := scheduler.NewSnapshotCache(redisClient, cfg.GetMetricsSnapshotTTL())
	snapshots := scheduler.NewSnapshotter(repository.New(pool), cache, log)

	worker, err := scheduler.NewWorker(cfg, snapshots, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	log.Info("scheduler stopped")
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
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

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
