package fanout

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit fan-out.
type Metrics struct {
	Published           prometheus.Counter
	Dropped             *prometheus.CounterVec
	CircuitBreakerState prometheus.Gauge
	BufferLength        prometheus.Gauge
}

// NewMetrics registers the fan-out metrics with reg, or the default
// registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounter(prometheus.CounterOpts{
			Name: "fhiraudit_fanout_published_total",
			Help: "Total audit records published to the broker",
		}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fhiraudit_fanout_dropped_total",
			Help: "Total audit records dropped by the fan-out",
		}, []string{"reason"}), // reason: "buffer_full", "publish_failed", "encode_failed"
		CircuitBreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fhiraudit_fanout_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
		BufferLength: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fhiraudit_fanout_buffer_length",
			Help: "Audit records waiting to be published",
		}),
	}
}

func (m *Metrics) AddPublished(n int) {
	if m != nil {
		m.Published.Add(float64(n))
	}
}

func (m *Metrics) AddDropped(reason string, n int) {
	if m != nil {
		m.Dropped.WithLabelValues(reason).Add(float64(n))
	}
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}

func (m *Metrics) SetBufferLength(n int) {
	if m != nil {
		m.BufferLength.Set(float64(n))
	}
}
