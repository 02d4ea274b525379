package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the compliance evaluator.
type Metrics struct {
	ChecksRecorded         *prometheus.CounterVec
	ChecksSkipped          *prometheus.CounterVec
	ConfidenceRejections   prometheus.Counter
	StatusCacheLookups     *prometheus.CounterVec
	AuthorizationDenied    *prometheus.CounterVec
	OperationDuration      *prometheus.HistogramVec
	ProjectionInconsistent prometheus.Counter
}

// New registers compliance metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChecksRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracecore_compliance_checks_recorded_total",
			Help: "Compliance checks committed, by outcome",
		}, []string{"outcome"}),
		ChecksSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracecore_compliance_checks_skipped_total",
			Help: "Batch check items skipped, by reason",
		}, []string{"reason"}),
		ConfidenceRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "tracecore_compliance_confidence_rejections_total",
			Help: "Checks rejected for insufficient confidence on critical rules",
		}),
		StatusCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracecore_compliance_status_cache_lookups_total",
			Help: "Status cache lookups, by result",
		}, []string{"result"}),
		AuthorizationDenied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracecore_compliance_authorization_denied_total",
			Help: "Compliance mutations rejected by the authorization gate",
		}, []string{"operation"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracecore_compliance_operation_duration_seconds",
			Help:    "Duration of compliance operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		ProjectionInconsistent: f.NewCounter(prometheus.CounterOpts{
			Name: "tracecore_compliance_projection_inconsistent_total",
			Help: "Verify calls that found a stored status diverging from its history",
		}),
	}
}

func (m *Metrics) IncChecks(passed bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if passed {
		outcome = "passed"
	}
	m.ChecksRecorded.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncSkipped(reason string) {
	if m == nil {
		return
	}
	m.ChecksSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncConfidenceRejection() {
	if m == nil {
		return
	}
	m.ConfidenceRejections.Inc()
}

// IncCacheLookup records a status cache hit, miss or error.
func (m *Metrics) IncCacheLookup(result string) {
	if m == nil {
		return
	}
	m.StatusCacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) IncAuthorizationDenied(op string) {
	if m == nil {
		return
	}
	m.AuthorizationDenied.WithLabelValues(op).Inc()
}

func (m *Metrics) IncInconsistent() {
	if m == nil {
		return
	}
	m.ProjectionInconsistent.Inc()
}

// ObserveOperation records the duration of op since start.
func (m *Metrics) ObserveOperation(op string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
