// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq worker and client.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetMetricsSnapshotInterval() time.Duration
	GetMetricsSnapshotTTL() time.Duration
}

// EngineConfig provides the knobs of the stage engine itself.
type EngineConfig interface {
	GetLockBackend() string
	GetLockTimeout() time.Duration
	GetLockTTL() time.Duration
	GetPositionGap() int64
	GetPipelineTemplatesPath() string
}

// BrokerConfig provides settings for the activity event exchange.
type BrokerConfig interface {
	GetAMQPURL() string
	GetAMQPExchange() string
	IsBrokerEnabled() bool
}

// LockBackendLocal only serializes writers inside one process. Deployments
// running more than one API instance need LockBackendRedis, otherwise
// concurrent placements in a stage fail as busy and must be retried.
const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                     string
	HTTPAddr                string
	DatabaseURL             string
	JWTAccessSecret         string
	CORSAllowAll            bool
	CORSOrigins             []string
	CORSAllowCreds          bool
	RedisURL                string
	RedisTLSInsecure        bool
	AsynqQueueName          string
	AsynqConcurrency        int
	MetricsSnapshotInterval time.Duration
	MetricsSnapshotTTL      time.Duration
	LockBackend             string
	LockTimeout             time.Duration
	LockTTL                 time.Duration
	PositionGap             int64
	PipelineTemplatesPath   string
	AMQPURL                 string
	AMQPExchange            string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string                        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool                  { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string                  { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int                   { return c.AsynqConcurrency }
func (c *Config) GetMetricsSnapshotInterval() time.Duration { return c.MetricsSnapshotInterval }
func (c *Config) GetMetricsSnapshotTTL() time.Duration      { return c.MetricsSnapshotTTL }

// EngineConfig implementation
func (c *Config) GetLockBackend() string           { return c.LockBackend }
func (c *Config) GetLockTimeout() time.Duration    { return c.LockTimeout }
func (c *Config) GetLockTTL() time.Duration        { return c.LockTTL }
func (c *Config) GetPositionGap() int64            { return c.PositionGap }
func (c *Config) GetPipelineTemplatesPath() string { return c.PipelineTemplatesPath }

// BrokerConfig implementation
func (c *Config) GetAMQPURL() string      { return c.AMQPURL }
func (c *Config) GetAMQPExchange() string { return c.AMQPExchange }
func (c *Config) IsBrokerEnabled() bool   { return c.AMQPURL != "" }

// UsesDatabase reports whether leads are persisted in PostgreSQL.
// An empty DATABASE_URL runs the engine on the in-memory store.
func (c *Config) UsesDatabase() bool { return c.DatabaseURL != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                     getEnv("APP_ENV", "development"),
		HTTPAddr:                getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		JWTAccessSecret:         getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:            corsAllowAll,
		CORSOrigins:             corsOrigins,
		CORSAllowCreds:          strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:                getEnv("REDIS_URL", ""),
		RedisTLSInsecure:        strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:          getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:        int(mustInt64(getEnv("ASYNQ_CONCURRENCY", "10"))),
		MetricsSnapshotInterval: mustDuration(getEnv("METRICS_SNAPSHOT_INTERVAL", "5m")),
		MetricsSnapshotTTL:      mustDuration(getEnv("METRICS_SNAPSHOT_TTL", "15m")),
		LockBackend:             strings.ToLower(getEnv("LOCK_BACKEND", LockBackendLocal)),
		LockTimeout:             mustDuration(getEnv("LOCK_TIMEOUT", "2s")),
		LockTTL:                 mustDuration(getEnv("LOCK_TTL", "10s")),
		PositionGap:             mustInt64(getEnv("POSITION_GAP", "1000")),
		PipelineTemplatesPath:   getEnv("PIPELINE_TEMPLATES_PATH", ""),
		AMQPURL:                 getEnv("AMQP_URL", ""),
		AMQPExchange:            getEnv("AMQP_EXCHANGE", "pipeline.events"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if c.LockBackend != LockBackendLocal && c.LockBackend != LockBackendRedis {
		return fmt.Errorf("LOCK_BACKEND must be %q or %q", LockBackendLocal, LockBackendRedis)
	}
	if c.LockBackend == LockBackendRedis && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when LOCK_BACKEND is redis")
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("LOCK_TIMEOUT must be a positive duration")
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be a positive duration")
	}
	if c.PositionGap < 2 {
		return fmt.Errorf("POSITION_GAP must be at least 2")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
