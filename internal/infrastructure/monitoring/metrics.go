package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsTotal  prometheus.Counter
	SessionsActive prometheus.Gauge
	SessionSwitches prometheus.Counter

	// Lineage metrics
	RefreshesTotal  *prometheus.CounterVec
	StaleDiscards   prometheus.Counter
	DetailCacheHits *prometheus.CounterVec

	// Cache metrics
	CacheWrites      prometheus.Counter
	CacheCorruptions prometheus.Counter

	// Backend collaborator metrics
	BackendCalls    *prometheus.CounterVec
	BackendDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSEvents      *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SessionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_sessions",
				Help: "Number of sessions in the registry",
			},
		),
		SessionSwitches: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_session_switches_total",
				Help: "Total number of session switches",
			},
		),

		RefreshesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_lineage_refreshes_total",
				Help: "Total number of lineage refreshes",
			},
			[]string{"status"},
		),
		StaleDiscards: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_lineage_stale_discards_total",
				Help: "Refresh responses discarded because the active session changed",
			},
		),
		DetailCacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_node_detail_cache_total",
				Help: "Node detail lookups by cache outcome",
			},
			[]string{"outcome"},
		),

		CacheWrites: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_cache_writes_total",
				Help: "Total number of state cache writes",
			},
		),
		CacheCorruptions: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_cache_corruptions_total",
				Help: "Cache entries discarded as malformed",
			},
		),

		BackendCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_backend_calls_total",
				Help: "Total number of analysis backend calls",
			},
			[]string{"call", "status"},
		),
		BackendDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_backend_duration_seconds",
				Help:    "Analysis backend call duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"call"},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_ws_events_total",
				Help: "Total number of WebSocket events pushed",
			},
			[]string{"type"},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_uptime_seconds",
				Help: "Gateway uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordBackendCall records one collaborator call.
func (m *Metrics) RecordBackendCall(call, status string, duration time.Duration) {
	m.BackendCalls.WithLabelValues(call, status).Inc()
	m.BackendDuration.WithLabelValues(call).Observe(duration.Seconds())
}

// RecordRefresh records a lineage refresh outcome ("applied", "stale",
// "error").
func (m *Metrics) RecordRefresh(status string) {
	m.RefreshesTotal.WithLabelValues(status).Inc()
	if status == "stale" {
		m.StaleDiscards.Inc()
	}
}

// RecordDetailLookup records a node detail lookup outcome ("hit",
// "negative", "miss").
func (m *Metrics) RecordDetailLookup(outcome string) {
	m.DetailCacheHits.WithLabelValues(outcome).Inc()
}

// RecordWSEvent records a pushed WebSocket event.
func (m *Metrics) RecordWSEvent(eventType string) {
	m.WSEvents.WithLabelValues(eventType).Inc()
}

// SetSessions sets the number of sessions in the registry.
func (m *Metrics) SetSessions(count int) {
	m.SessionsActive.Set(float64(count))
}

// IncSessionsCreated increments the sessions created counter.
func (m *Metrics) IncSessionsCreated() {
	m.SessionsTotal.Inc()
}

// IncSessionSwitches increments the session switch counter.
func (m *Metrics) IncSessionSwitches() {
	m.SessionSwitches.Inc()
}

// IncCacheWrites increments the cache write counter.
func (m *Metrics) IncCacheWrites() {
	m.CacheWrites.Inc()
}

// IncCacheCorruptions increments the corrupted-entry counter.
func (m *Metrics) IncCacheCorruptions() {
	m.CacheCorruptions.Inc()
}

// IncWSConnections increments WebSocket connections.
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections.
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}
