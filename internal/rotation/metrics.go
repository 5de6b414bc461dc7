package rotation

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rotationStartedTotal   *prometheus.CounterVec
	rotationCompletedTotal *prometheus.CounterVec
	rotationDuration       *prometheus.HistogramVec
	rollbackTotal          *prometheus.CounterVec

	metricsOnce       sync.Once
	metricsRegistered bool
)

// Metrics records rotation events to Prometheus. Recording is a no-op until
// InitMetrics has been called.
type Metrics struct{}

// NewMetrics creates a Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// InitMetrics registers all Prometheus metrics. Safe to call more than once.
func InitMetrics() {
	metricsOnce.Do(func() {
		rotationStartedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uaa_rotate_started_total",
				Help: "Total number of rotation runs started",
			},
			[]string{"target_client"},
		)

		rotationCompletedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uaa_rotate_completed_total",
				Help: "Total number of rotation runs completed",
			},
			[]string{"target_client", "status", "stage"},
		)

		rotationDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "uaa_rotate_duration_seconds",
				Help:    "Duration of rotation runs in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120},
			},
			[]string{"target_client"},
		)

		rollbackTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uaa_rotate_rollback_total",
				Help: "Total number of rollback attempts",
			},
			[]string{"target_client", "outcome"},
		)

		metricsRegistered = true
	})
}

// RecordStarted records the start of a rotation run.
func (m *Metrics) RecordStarted(targetClient string) {
	if !metricsRegistered || rotationStartedTotal == nil {
		return
	}
	rotationStartedTotal.WithLabelValues(targetClient).Inc()
}

// RecordCompleted records the terminal outcome of a rotation run.
func (m *Metrics) RecordCompleted(targetClient, status, stage string, durationSeconds float64) {
	if !metricsRegistered {
		return
	}
	if rotationCompletedTotal != nil {
		rotationCompletedTotal.WithLabelValues(targetClient, status, stage).Inc()
	}
	if rotationDuration != nil {
		rotationDuration.WithLabelValues(targetClient).Observe(durationSeconds)
	}
}

// RecordRollback records a rollback attempt and its outcome.
func (m *Metrics) RecordRollback(targetClient, outcome string) {
	if !metricsRegistered || rollbackTotal == nil {
		return
	}
	rollbackTotal.WithLabelValues(targetClient, outcome).Inc()
}
