package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics observes event emission and delivery.
type Metrics struct {
	Emitted          *prometheus.CounterVec
	Dropped          prometheus.Counter
	DeliveryFailures *prometheus.CounterVec
	DeliveryRetries  prometheus.Counter
	QueueDepth       prometheus.Gauge
}

// NewMetrics registers event metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Emitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracecore_events_emitted_total",
			Help: "Events handed to the outbound queue by type",
		}, []string{"type"}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "tracecore_events_dropped_batches_total",
			Help: "Event batches dropped because the outbound queue was full",
		}),
		DeliveryFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracecore_events_delivery_failures_total",
			Help: "Event batches a sink failed to accept after all retries",
		}, []string{"sink"}),
		DeliveryRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "tracecore_events_delivery_retries_total",
			Help: "Delivery attempts retried after a sink error",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "tracecore_events_queue_depth",
			Help: "Event batches waiting for delivery",
		}),
	}
}

func (m *Metrics) incEmitted(t Type) {
	if m != nil {
		m.Emitted.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) incDropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

func (m *Metrics) incDeliveryFailure(sink string) {
	if m != nil {
		m.DeliveryFailures.WithLabelValues(sink).Inc()
	}
}

func (m *Metrics) incRetry() {
	if m != nil {
		m.DeliveryRetries.Inc()
	}
}

func (m *Metrics) setDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}
