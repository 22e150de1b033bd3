package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Evaluations      *prometheus.CounterVec
	EvaluateDuration prometheus.Histogram
	Compensations    *prometheus.CounterVec
	Releases         prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardrail_evaluations_total",
			Help: "Guardrail evaluations by decision and deny reason",
		}, []string{"decision", "reason"}),
		EvaluateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "guardrail_evaluate_duration_seconds",
			Help:    "Latency of guardrail evaluations including the audit write",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		Compensations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardrail_audit_compensations_total",
			Help: "Reservations or overdraft requests undone because their audit entry failed",
		}, []string{"kind"}),
		Releases: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guardrail_reservations_released_total",
			Help: "Reservations released through the engine",
		}),
	}
}

func (m *Metrics) IncEvaluation(decision, reason string) {
	m.Evaluations.WithLabelValues(decision, reason).Inc()
}

func (m *Metrics) ObserveEvaluate(start time.Time) {
	m.EvaluateDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncCompensation(kind string) {
	m.Compensations.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncRelease() {
	m.Releases.Inc()
}
