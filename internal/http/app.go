// Package http provides HTTP server infrastructure including module registration.
package http

import (
	"context"
	"net/http"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/events"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/config"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/logger"

	"github.com/gin-gonic/gin"
)

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// MetricsExporter serves the Prometheus endpoint and instruments requests.
type MetricsExporter interface {
	Handler() http.Handler
	GinMiddleware() gin.HandlerFunc
}

// App holds the fully initialized application dependencies.
// This is populated by main.go (the composition root) and passed to the router.
type App struct {
	// Config holds the router configuration (HTTP and JWT settings only).
	Config RouterConfig
	// Logger is the structured logger.
	Logger *logger.Logger
	// Health is used for readiness/health checks (e.g., DB ping).
	Health HealthChecker
	// Metrics exposes /metrics. Optional.
	Metrics MetricsExporter
	// EventBus carries committed pipeline events to the sinks.
	EventBus events.Bus
	// Modules contains all HTTP-facing domain modules.
	Modules []Module
}
