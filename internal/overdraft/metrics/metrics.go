package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Transitions   *prometheus.CounterVec
	DecisionTime  prometheus.Histogram
	SweepDuration prometheus.Histogram
	AutoDecisions *prometheus.CounterVec
	Alerts        *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardrail_overdraft_transitions_total",
			Help: "Overdraft request transitions by target state",
		}, []string{"state"}),
		DecisionTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "guardrail_overdraft_time_to_decision_seconds",
			Help:    "Time between an overdraft request and its decision",
			Buckets: []float64{1, 10, 60, 300, 1800, 3600, 4 * 3600, 24 * 3600, 48 * 3600},
		}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "guardrail_overdraft_sweep_duration_seconds",
			Help:    "Duration of expiry and review-timeout sweeps",
			Buckets: prometheus.DefBuckets,
		}),
		AutoDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardrail_overdraft_auto_decisions_total",
			Help: "Overdraft decisions taken by a rule, by rule",
		}, []string{"rule"}),
		Alerts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardrail_overdraft_alerts_total",
			Help: "Utilisation alerts raised on active overdrafts, by level",
		}, []string{"level"}),
	}
}

func (m *Metrics) IncTransition(state string) {
	m.Transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveDecision(requestedAt, decidedAt time.Time) {
	m.DecisionTime.Observe(decidedAt.Sub(requestedAt).Seconds())
}

func (m *Metrics) ObserveSweep(start time.Time) {
	m.SweepDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncAutoDecision(rule string) {
	m.AutoDecisions.WithLabelValues(rule).Inc()
}

func (m *Metrics) IncAlert(level string) {
	m.Alerts.WithLabelValues(level).Inc()
}
