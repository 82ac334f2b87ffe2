// Package observability owns the Prometheus collectors exposed on /metrics.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pipeline_engine"

// Outcome labels for command counters.
const (
	OutcomeOK        = "ok"
	OutcomeRejected  = "rejected"
	OutcomeBusy      = "busy"
	OutcomeIntegrity = "integrity"
	OutcomeError     = "error"
)

// Metrics groups every collector registered by the engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	commands        *prometheus.CounterVec
	lockWait        *prometheus.HistogramVec
	renumbers       prometheus.Counter
	integrityErrors prometheus.Counter
	httpDuration    *prometheus.HistogramVec
}

// New builds a private registry with Go runtime collectors plus engine metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Mutating commands by operation and outcome.",
		}, []string{"operation", "outcome"}),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring stage lock scopes.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2, 5},
		}, []string{"backend"}),
		renumbers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_renumbers_total",
			Help:      "Local renumbers triggered by exhausted position gaps.",
		}),
		integrityErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_errors_total",
			Help:      "Sequencing failures surfaced as integrity errors.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.commands,
		m.lockWait,
		m.renumbers,
		m.integrityErrors,
		m.httpDuration,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Command records the outcome of a mutating engine operation.
func (m *Metrics) Command(operation, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(operation, outcome).Inc()
}

// LockWait records how long acquiring a lock scope took.
func (m *Metrics) LockWait(backend string, d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(backend).Observe(d.Seconds())
}

// Renumbered counts a local renumber of a stage.
func (m *Metrics) Renumbered() {
	if m == nil {
		return
	}
	m.renumbers.Inc()
}

// IntegrityError counts a sequencing failure.
func (m *Metrics) IntegrityError() {
	if m == nil {
		return
	}
	m.integrityErrors.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GinMiddleware observes request latency keyed by the matched route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
