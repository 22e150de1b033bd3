package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Notifications *prometheus.CounterVec
	Deliveries    *prometheus.CounterVec
	QueueDropped  prometheus.Counter
	CircuitState  prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Notifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardrail_minor_notifications_total",
			Help: "Minor notifications created, by trigger",
		}, []string{"trigger"}),
		Deliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guardrail_minor_deliveries_total",
			Help: "Minor notification delivery attempts, by outcome",
		}, []string{"outcome"}),
		QueueDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guardrail_minor_queue_dropped_total",
			Help: "Notifications left for redelivery because the dispatch queue was full",
		}),
		CircuitState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "guardrail_minor_delivery_circuit_open",
			Help: "1 while the delivery circuit breaker is open",
		}),
	}
}

func (m *Metrics) IncNotification(trigger string) {
	m.Notifications.WithLabelValues(trigger).Inc()
}

func (m *Metrics) IncDelivery(outcome string) {
	m.Deliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncDropped() {
	m.QueueDropped.Inc()
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if open {
		m.CircuitState.Set(1)
		return
	}
	m.CircuitState.Set(0)
}
