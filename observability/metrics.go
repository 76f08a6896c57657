// Package observability provides Prometheus metrics for the chat gateway.
//
// Metrics are exposed via the /metrics endpoint. All metric operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "raggate"

// Subsystem for chat turn metrics
const chatSubsystem = "chat"

// Turn outcome label values.
const (
	OutcomeAnswered   = "answered"
	OutcomeRejected   = "rejected"
	OutcomeTerminated = "terminated"
	OutcomeError      = "error"
)

// ChatMetrics holds all Prometheus metrics for chat gateway operations.
// Initialize once at startup via InitMetrics().
type ChatMetrics struct {
	// ActiveConnections tracks currently open websocket connections.
	ActiveConnections prometheus.Gauge

	// TurnsTotal counts processed turns by outcome
	// (answered, rejected, terminated, error).
	TurnsTotal *prometheus.CounterVec

	// TurnDurationSeconds measures end-to-end turn latency, from frame
	// receipt to reply emission.
	TurnDurationSeconds prometheus.Histogram

	// RetrievalDocuments observes how many documents survived the
	// relevance filter per turn.
	RetrievalDocuments prometheus.Histogram
}

// DefaultMetrics is the singleton instance of ChatMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *ChatMetrics

// InitMetrics registers all chat metrics with the default Prometheus
// registry and stores the result in DefaultMetrics. Call exactly once;
// promauto panics on duplicate registration.
func InitMetrics() *ChatMetrics {
	DefaultMetrics = &ChatMetrics{
		ActiveConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_connections",
				Help:      "Number of currently open websocket connections",
			},
		),

		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "turns_total",
				Help:      "Total number of processed turns by outcome",
			},
			[]string{"outcome"},
		),

		TurnDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "End-to-end turn latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		RetrievalDocuments: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "retrieval_documents",
				Help:      "Documents passing the relevance filter per turn",
				Buckets:   []float64{0, 1, 2, 3, 4, 5, 8, 12},
			},
		),
	}
	return DefaultMetrics
}
