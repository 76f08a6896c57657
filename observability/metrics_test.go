package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// newTestMetrics builds ChatMetrics against a private registry so tests
// never fight over the global one.
func newTestMetrics(t *testing.T) (*ChatMetrics, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := &ChatMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "active_connections",
			Help:      "Number of currently open websocket connections",
		}),
		TurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "turns_total",
			Help:      "Total number of processed turns by outcome",
		}, []string{"outcome"}),
		TurnDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "turn_duration_seconds",
			Help:      "End-to-end turn latency in seconds",
		}),
		RetrievalDocuments: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "retrieval_documents",
			Help:      "Documents passing the relevance filter per turn",
		}),
	}
	reg.MustRegister(m.ActiveConnections, m.TurnsTotal, m.TurnDurationSeconds, m.RetrievalDocuments)
	return m, reg
}

func TestActiveConnectionsGauge(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ActiveConnections.Inc()
	m.ActiveConnections.Inc()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveConnections))

	m.ActiveConnections.Dec()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveConnections))
}

func TestTurnsTotalByOutcome(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.TurnsTotal.WithLabelValues(OutcomeAnswered).Inc()
	m.TurnsTotal.WithLabelValues(OutcomeAnswered).Inc()
	m.TurnsTotal.WithLabelValues(OutcomeRejected).Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues(OutcomeAnswered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues(OutcomeRejected)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues(OutcomeError)))
}

func TestHistogramsAccept(t *testing.T) {
	m, reg := newTestMetrics(t)

	m.TurnDurationSeconds.Observe(0.42)
	m.RetrievalDocuments.Observe(3)

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}
