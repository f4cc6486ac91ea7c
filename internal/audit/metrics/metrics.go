package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for audit record synthesis.
type Metrics struct {
	// Records persisted by action and outcome code
	RecordsCreated *prometheus.CounterVec

	// Case resolution results by resource type
	CaseResolutions *prometheus.CounterVec

	// Synthesis failures that failed the host operation
	FatalFailures *prometheus.CounterVec

	SynthesizeLatency prometheus.Histogram
}

// New registers the audit metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RecordsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fhiraudit_audit_records_created_total",
			Help: "Total audit records persisted by action and outcome",
		}, []string{"action", "outcome"}),

		CaseResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fhiraudit_audit_case_resolutions_total",
			Help: "Case resolution results by resource type",
		}, []string{"resource_type", "result"}), // result: "resolved", "not_applicable", "unresolved", "unsupported"

		FatalFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fhiraudit_audit_fatal_failures_total",
			Help: "Audit synthesis failures that failed the audited operation",
		}, []string{"code"}),

		SynthesizeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fhiraudit_audit_synthesize_duration_seconds",
			Help:    "Duration of audit record synthesis including persistence",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncRecordCreated(action, outcome string) {
	if m != nil {
		m.RecordsCreated.WithLabelValues(action, outcome).Inc()
	}
}

func (m *Metrics) IncCaseResolution(resourceType, result string) {
	if m != nil {
		m.CaseResolutions.WithLabelValues(resourceType, result).Inc()
	}
}

func (m *Metrics) IncFatalFailure(code string) {
	if m != nil {
		m.FatalFailures.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) ObserveSynthesizeLatency(d time.Duration) {
	if m != nil {
		m.SynthesizeLatency.Observe(d.Seconds())
	}
}
