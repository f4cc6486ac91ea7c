package mining

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for event log exports.
type Metrics struct {
	ExportLatency  prometheus.Histogram
	TracesExported prometheus.Counter
	EventsExported prometheus.Counter
	// Records left out of an export by reason
	Skipped *prometheus.CounterVec
}

// NewMetrics registers the export metrics with reg, or the default
// registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		ExportLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fhiraudit_mining_export_duration_seconds",
			Help:    "Duration of event log exports",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		TracesExported: factory.NewCounter(prometheus.CounterOpts{
			Name: "fhiraudit_mining_traces_exported_total",
			Help: "Total traces written to exported event logs",
		}),
		EventsExported: factory.NewCounter(prometheus.CounterOpts{
			Name: "fhiraudit_mining_events_exported_total",
			Help: "Total events written to exported event logs",
		}),
		Skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fhiraudit_mining_records_skipped_total",
			Help: "Audit records left out of exports by reason",
		}, []string{"reason"}), // reason: "undecodable", "no_case", "no_label"
	}
}

func (m *Metrics) ObserveExport(d time.Duration, traces, events int) {
	if m == nil {
		return
	}
	m.ExportLatency.Observe(d.Seconds())
	m.TracesExported.Add(float64(traces))
	m.EventsExported.Add(float64(events))
}

func (m *Metrics) IncSkipped(reason string) {
	if m != nil {
		m.Skipped.WithLabelValues(reason).Inc()
	}
}
