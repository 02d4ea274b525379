package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions   *prometheus.CounterVec
	StoreErrors prometheus.Counter
	Degraded    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracecore_ratelimit_decisions_total",
			Help: "Mutation rate limit decisions, by outcome and backing store",
		}, []string{"outcome", "store"}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "tracecore_ratelimit_store_errors_total",
			Help: "Failed checks against the primary rate limit store",
		}),
		Degraded: f.NewGauge(prometheus.GaugeOpts{
			Name: "tracecore_ratelimit_degraded",
			Help: "1 while rate limiting runs on the in-memory fallback",
		}),
	}
}

func (m *Metrics) IncDecision(allowed bool, store string) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	m.Decisions.WithLabelValues(outcome, store).Inc()
}

func (m *Metrics) IncStoreError() {
	if m == nil {
		return
	}
	m.StoreErrors.Inc()
}

func (m *Metrics) SetDegraded(degraded bool) {
	if m == nil {
		return
	}
	v := 0.0
	if degraded {
		v = 1
	}
	m.Degraded.Set(v)
}
