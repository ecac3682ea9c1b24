package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service
type Metrics struct {
	// HTTP metrics
	RequestTotal    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Sync metrics
	SyncRuns     *prometheus.CounterVec
	SyncDuration *prometheus.HistogramVec

	// Domain metrics
	NotesSaved     prometheus.Counter
	MatchesCreated *prometheus.CounterVec
	MatchesDeleted prometheus.Counter

	// Security metrics
	SecurityEvents *prometheus.CounterVec
	ActiveLockouts prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		RequestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eclosion_http_requests_total",
				Help: "Total HTTP requests by route and status code",
			},
			[]string{"route", "status"},
		),

		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eclosion_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		SyncRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eclosion_sync_runs_total",
				Help: "Background sync runs by job and outcome",
			},
			[]string{"job", "outcome"}, // job: full, light; outcome: ok, error
		),

		SyncDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eclosion_sync_duration_seconds",
				Help:    "Background sync duration",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"job"},
		),

		NotesSaved: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "eclosion_notes_saved_total",
				Help: "Total note save operations",
			},
		),

		MatchesCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eclosion_refund_matches_created_total",
				Help: "Refund matches created by kind",
			},
			[]string{"kind"}, // kind: matched, expected, skipped
		),

		MatchesDeleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "eclosion_refund_matches_deleted_total",
				Help: "Refund matches deleted",
			},
		),

		SecurityEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eclosion_security_events_total",
				Help: "Security events recorded by type and outcome",
			},
			[]string{"event_type", "success"},
		),

		ActiveLockouts: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "eclosion_active_ip_lockouts",
				Help: "IPs currently locked out of remote unlock",
			},
		),
	}
}

// RecordSync records one background sync run
func (m *Metrics) RecordSync(job string, err error, seconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.SyncRuns.WithLabelValues(job, outcome).Inc()
	m.SyncDuration.WithLabelValues(job).Observe(seconds)
}

// RecordMatchCreated records a refund match by kind
func (m *Metrics) RecordMatchCreated(expected, skipped bool) {
	kind := "matched"
	switch {
	case expected:
		kind = "expected"
	case skipped:
		kind = "skipped"
	}
	m.MatchesCreated.WithLabelValues(kind).Inc()
}

// RecordSecurityEvent records an audit log write
func (m *Metrics) RecordSecurityEvent(eventType string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.SecurityEvents.WithLabelValues(eventType, outcome).Inc()
}
