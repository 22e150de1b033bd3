package compliance

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks audit persistence on the decision critical path.
type Metrics struct {
	EntriesRecorded *prometheus.CounterVec
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
	ChainBreaks     prometheus.Counter
}

// NewMetrics registers the audit metrics with the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		EntriesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardrail_audit_entries_total",
			Help: "Audit entries durably appended, by subject type",
		}, []string{"subject_type"}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guardrail_audit_persist_failures_total",
			Help: "Audit appends that failed (each one failed its triggering operation)",
		}),
		PersistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "guardrail_audit_persist_duration_seconds",
			Help:    "Duration of synchronous audit appends",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ChainBreaks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guardrail_audit_chain_breaks_total",
			Help: "Verification runs that found a broken hash chain",
		}),
	}
}

func (m *Metrics) IncEntries(subjectType string) {
	m.EntriesRecorded.WithLabelValues(subjectType).Inc()
}

func (m *Metrics) IncPersistFailures() {
	m.PersistFailures.Inc()
}

// ObservePersistDuration records the duration of an append started at start.
func (m *Metrics) ObservePersistDuration(start time.Time) {
	m.PersistDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncChainBreaks() {
	m.ChainBreaks.Inc()
}
