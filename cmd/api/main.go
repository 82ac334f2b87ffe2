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

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/activity"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/events"
	apphttp "github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/http"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/http/router"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/notification/sse"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/board"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/catalog"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/handler"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/ledger"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/locking"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/metrics"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/movement"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/placement"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/repository"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/sequencer"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/scheduler"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/migrations"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/config"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/db"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/logger"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/observability"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

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

	store, health, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	var redisClient *redis.Client
	if cfg.GetRedisURL() != "" {
		redisClient, err = scheduler.NewRedisClient(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
		if err != nil {
			log.Error("failed to configure redis", "error", err)
			panic("failed to configure redis: " + err.Error())
		}
		defer redisClient.Close()
	}

	metricsRegistry := observability.New()
	locker := newLocker(cfg, redisClient, metricsRegistry, log)

	// Event bus carrying committed pipeline events to the sinks
	eventBus := events.NewInMemoryBus(log)

	activity.NewRecorder(store, log).Subscribe(eventBus)
	if cfg.IsBrokerEnabled() {
		publisher, err := activity.Dial(cfg.GetAMQPURL(), cfg.GetAMQPExchange(), log)
		if err != nil {
			log.Error("failed to connect to broker", "error", err)
			panic("failed to connect to broker: " + err.Error())
		}
		defer publisher.Close()
		publisher.Subscribe(eventBus)
		log.Info("pipeline events forwarded to broker", "exchange", cfg.GetAMQPExchange())
	}

	stream := sse.New(log)
	stream.Subscribe(eventBus)
	defer stream.Close()

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Pipeline Engine (Composition Root)
	// ========================================================================

	templates, err := catalog.LoadTemplates(cfg.GetPipelineTemplatesPath())
	if err != nil {
		log.Error("failed to load pipeline templates", "error", err)
		panic("failed to load pipeline templates: " + err.Error())
	}
	log.Info("pipeline templates loaded", "templates", templates.Names())

	planner := placement.New(locker, sequencer.New(cfg.GetPositionGap()), log, metricsRegistry)
	services := handler.Services{
		Catalog: catalog.New(store, templates, log),
		Ledger:  ledger.New(store, planner, eventBus, log, metricsRegistry),
		Moves:   movement.New(store, planner, eventBus, log, metricsRegistry),
		Board:   board.New(store),
		Metrics: metrics.New(store),
	}

	if redisClient != nil {
		services.Snapshots = scheduler.NewSnapshotCache(redisClient, cfg.GetMetricsSnapshotTTL())
		snapshotClient, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize scheduler client", "error", err)
			panic("failed to initialize scheduler client: " + err.Error())
		}
		defer snapshotClient.Close()
		services.Requester = snapshotClient
	}

	pipelineModule := handler.NewModule(handler.New(services, val, log), stream)

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   health,
		Metrics:  metricsRegistry,
		EventBus: eventBus,
		Modules:  []apphttp.Module{pipelineModule},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "error", err)
			panic("server stopped: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Streams block Shutdown until their clients leave, so end them first.
	stream.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	eventBus.Wait()
	log.Info("server stopped")
}

// openStore returns the PostgreSQL store when DATABASE_URL is set and the
// in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.Store, apphttp.HealthChecker, func()) {
	if !cfg.UsesDatabase() {
		log.Warn("DATABASE_URL not set, using in-memory store")
		return repository.NewMemory(), db.NoopHealth{}, func() {}
	}

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
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool, migrations.FS)
	}); err != nil {
		pool.Close()
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	return repository.New(pool), db.NewPoolAdapter(pool), pool.Close
}

func newLocker(cfg *config.Config, client *redis.Client, observer locking.Observer, log *logger.Logger) locking.Locker {
	if cfg.GetLockBackend() == config.LockBackendRedis {
		if client == nil {
			panic("LOCK_BACKEND=redis requires REDIS_URL")
		}
		log.Info("using redis stage locks", "timeout", cfg.GetLockTimeout(), "ttl", cfg.GetLockTTL())
		return locking.NewRedis(client, cfg.GetLockTimeout(), cfg.GetLockTTL(), observer, log)
	}
	log.Info("using in-process stage locks", "timeout", cfg.GetLockTimeout())
	return locking.NewLocal(cfg.GetLockTimeout(), observer)
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
