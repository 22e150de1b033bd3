package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Reservations        *prometheus.CounterVec
	Releases            prometheus.Counter
	ReserveLatency      prometheus.Histogram
	ArchivedRecords     prometheus.Counter
	ExtensionsInstalled prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Reservations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardrail_usage_reservations_total",
			Help: "Reservation attempts by outcome (reserved, insufficient, contention, error)",
		}, []string{"outcome"}),
		Releases: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guardrail_usage_releases_total",
			Help: "Reservations released",
		}),
		ReserveLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "guardrail_usage_reserve_duration_seconds",
			Help:    "Duration of the atomic check-and-increment",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 2},
		}),
		ArchivedRecords: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guardrail_usage_archived_records_total",
			Help: "Closed period records moved to the archive",
		}),
		ExtensionsInstalled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guardrail_usage_extensions_installed_total",
			Help: "Overdraft extensions installed into the usage store",
		}),
	}
}

func (m *Metrics) IncReservation(outcome string) {
	m.Reservations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncReleases() {
	m.Releases.Inc()
}

func (m *Metrics) ObserveReserve(start time.Time) {
	m.ReserveLatency.Observe(time.Since(start).Seconds())
}

func (m *Metrics) AddArchived(n int) {
	m.ArchivedRecords.Add(float64(n))
}

func (m *Metrics) IncExtensions() {
	m.ExtensionsInstalled.Inc()
}
