package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCommandCounters(t *testing.T) {
	m := New()
	m.Command("move", OutcomeOK)
	m.Command("move", OutcomeOK)
	m.Command("move", OutcomeBusy)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commands.WithLabelValues("move", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("move", OutcomeBusy)))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Command("move", OutcomeOK)
	m.LockWait("local", time.Millisecond)
	m.Renumbered()
	m.IntegrityError()
}

func TestHandlerExposesEngineMetrics(t *testing.T) {
	m := New()
	m.Renumbered()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "pipeline_engine_stage_renumbers_total 1"))
}
