package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for gate metrics.
const (
	OutcomeAuthenticated = "authenticated"
	OutcomeAnonymous     = "anonymous"
	OutcomeRejected      = "rejected"
)

// Rejection reason labels.
const (
	ReasonExpired      = "expired"
	ReasonInvalidToken = "invalid_token"
	ReasonBadClaims    = "bad_claims"
)

// Metrics holds Prometheus metrics for the authentication gate.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	rejectionsTotal *prometheus.CounterVec
	authDuration    prometheus.Histogram
	registerer      prometheus.Registerer
}

// NewMetrics creates a new Metrics instance registered with
// prometheus.DefaultRegisterer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Metrics instance with a custom
// registerer. Useful for tests where a private registry is preferred.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "avauthmw"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		registerer: registerer,
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "requests_total",
			Help:      "Total number of requests seen by the authentication gate",
		},
		[]string{"outcome"},
	)

	m.rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "rejections_total",
			Help:      "Total number of rejected requests by reason",
		},
		[]string{"reason"},
	)

	m.authDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "duration_seconds",
			Help:      "Authentication duration in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// Register with the provided registerer, ignoring duplicates. Metric
	// descriptors are identical when re-registered, so this is safe.
	collectors := []prometheus.Collector{
		m.requestsTotal,
		m.rejectionsTotal,
		m.authDuration,
	}
	for _, c := range collectors {
		_ = m.registerer.Register(c)
	}

	return m
}

// RecordRequest records a request outcome.
func (m *Metrics) RecordRequest(outcome string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(outcome).Inc()
	m.authDuration.Observe(duration.Seconds())
}

// RecordRejection records a rejected request.
func (m *Metrics) RecordRejection(reason string) {
	m.rejectionsTotal.WithLabelValues(reason).Inc()
}
