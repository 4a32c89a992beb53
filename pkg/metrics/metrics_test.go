package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stockflow/stockflow-backend/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCommit(t *testing.T) {
	m := metrics.New(metrics.DefaultConfig("inventory-service"))

	m.RecordCommit("out", "committed", 5)
	m.RecordCommit("out", "committed", 3)
	m.RecordCommit("out", "insufficient_stock", 100)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MovementsCommitted.WithLabelValues("out", "committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MovementsCommitted.WithLabelValues("out", "insufficient_stock")))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.MovementQuantity.WithLabelValues("out")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.RecordCommit("in", "committed", 1)
		m.ObserveLockWait(time.Millisecond)
		m.ObserveCommit("in", time.Millisecond)
		m.RecordAlert("low_stock")
		m.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
		m.InFlight(1)
		m.SetStockDrift(2)
		m.RecordPublish("inventory.stock.moved", true)
		m.SetCircuitBreakerState("rabbitmq", 2)
	})
}

func TestHandler_ExposesLedgerMetrics(t *testing.T) {
	m := metrics.New(metrics.DefaultConfig("inventory-service"))
	m.RecordAlert("high_stock")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "stockflow_alerts_generated_total"))
}
