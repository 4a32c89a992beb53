package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. All Record methods are
// safe to call on a nil *Metrics.
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Ledger metrics
	MovementsCommitted *prometheus.CounterVec
	MovementQuantity   *prometheus.CounterVec
	LockWaitDuration   prometheus.Histogram
	CommitDuration     *prometheus.HistogramVec
	AlertsGenerated    *prometheus.CounterVec
	StockDrift         prometheus.Gauge

	// Messaging metrics
	EventsPublished     *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "stockflow",
	}
}

// New creates a new Metrics instance on its own registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	constLabels := prometheus.Labels{"service": config.ServiceName}

	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: constLabels,
		},
		[]string{"method", "route", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: constLabels,
			Buckets:     []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	m.HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests currently being processed",
			ConstLabels: constLabels,
		},
	)

	m.MovementsCommitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   "ledger",
			Name:        "commits_total",
			Help:        "Stock movement commit attempts by movement type and outcome",
			ConstLabels: constLabels,
		},
		[]string{"type", "outcome"},
	)

	m.MovementQuantity = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   "ledger",
			Name:        "quantity_total",
			Help:        "Units moved by committed movements",
			ConstLabels: constLabels,
		},
		[]string{"type"},
	)

	m.LockWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   "ledger",
			Name:        "lock_wait_seconds",
			Help:        "Time spent waiting for a per-product lock",
			ConstLabels: constLabels,
			Buckets:     []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	m.CommitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   "ledger",
			Name:        "commit_duration_seconds",
			Help:        "Time spent holding the product lock for one commit",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	m.AlertsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   "alerts",
			Name:        "generated_total",
			Help:        "Alerts created by threshold rules",
			ConstLabels: constLabels,
		},
		[]string{"type"},
	)

	m.StockDrift = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   "ledger",
			Name:        "stock_drift_products",
			Help:        "Products whose current stock disagrees with their latest movement, as of the last audit",
			ConstLabels: constLabels,
		},
	)

	m.EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "events_published_total",
			Help:        "Events published to the message broker",
			ConstLabels: constLabels,
		},
		[]string{"event_type", "status"},
	)

	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "circuit_breaker_state",
			Help:        "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			ConstLabels: constLabels,
		},
		[]string{"name"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.MovementsCommitted,
		m.MovementQuantity,
		m.LockWaitDuration,
		m.CommitDuration,
		m.AlertsGenerated,
		m.StockDrift,
		m.EventsPublished,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records one served request
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// InFlight adjusts the in-flight request gauge by delta
func (m *Metrics) InFlight(delta float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Add(delta)
}

// RecordCommit records the outcome of a ledger commit attempt
func (m *Metrics) RecordCommit(movementType, outcome string, quantity int64) {
	if m == nil {
		return
	}
	m.MovementsCommitted.WithLabelValues(movementType, outcome).Inc()
	if outcome == "committed" {
		m.MovementQuantity.WithLabelValues(movementType).Add(float64(quantity))
	}
}

// ObserveLockWait records how long a commit waited for its product lock
func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.LockWaitDuration.Observe(d.Seconds())
}

// ObserveCommit records how long a commit held its product lock
func (m *Metrics) ObserveCommit(movementType string, d time.Duration) {
	if m == nil {
		return
	}
	m.CommitDuration.WithLabelValues(movementType).Observe(d.Seconds())
}

// RecordAlert counts a generated alert
func (m *Metrics) RecordAlert(alertType string) {
	if m == nil {
		return
	}
	m.AlertsGenerated.WithLabelValues(alertType).Inc()
}

// SetStockDrift sets the number of drifting products found by the last audit
func (m *Metrics) SetStockDrift(n int) {
	if m == nil {
		return
	}
	m.StockDrift.Set(float64(n))
}

// RecordPublish counts a publish attempt
func (m *Metrics) RecordPublish(eventType string, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.EventsPublished.WithLabelValues(eventType, status).Inc()
}

// SetCircuitBreakerState records a breaker state (0=closed, 1=half-open, 2=open)
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
