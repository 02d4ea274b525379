package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registry module.
type Metrics struct {
	EntitiesRegistered  prometheus.Counter
	CheckpointsAppended prometheus.Counter
	AuthorizationDenied *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
}

// New registers registry metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EntitiesRegistered: f.NewCounter(prometheus.CounterOpts{
			Name: "tracecore_entities_registered_total",
			Help: "Total number of entities registered",
		}),
		CheckpointsAppended: f.NewCounter(prometheus.CounterOpts{
			Name: "tracecore_checkpoints_appended_total",
			Help: "Total number of checkpoints appended, including genesis checkpoints",
		}),
		AuthorizationDenied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracecore_registry_authorization_denied_total",
			Help: "Registry mutations rejected by the authorization gate",
		}, []string{"operation"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracecore_registry_operation_duration_seconds",
			Help:    "Duration of registry mutations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) AddEntitiesRegistered(n int) {
	if m == nil {
		return
	}
	m.EntitiesRegistered.Add(float64(n))
}

func (m *Metrics) AddCheckpoints(n int) {
	if m == nil {
		return
	}
	m.CheckpointsAppended.Add(float64(n))
}

func (m *Metrics) IncAuthorizationDenied(op string) {
	if m == nil {
		return
	}
	m.AuthorizationDenied.WithLabelValues(op).Inc()
}

// ObserveOperation records the duration of op.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(op string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
