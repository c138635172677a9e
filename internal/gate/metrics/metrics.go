package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the admission gate.
type Metrics struct {
	Enabled       prometheus.Gauge
	Changes       prometheus.Counter
	FallbackReads prometheus.Counter
	BreakerOpen   prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Enabled: factory.NewGauge(prometheus.GaugeOpts{
			Name: "checkin_gate_enabled",
			Help: "Admission gate state as last observed (1=open for check-ins, 0=closed)",
		}),
		Changes: factory.NewCounter(prometheus.CounterOpts{
			Name: "checkin_gate_changes_total",
			Help: "Operator changes to the admission gate",
		}),
		FallbackReads: factory.NewCounter(prometheus.CounterOpts{
			Name: "checkin_gate_fallback_total",
			Help: "Gate reads or writes served from the in-process fallback",
		}),
		BreakerOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "checkin_gate_breaker_open",
			Help: "Gate store circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

func (m *Metrics) SetEnabled(enabled bool) {
	m.Enabled.Set(boolToFloat(enabled))
}

func (m *Metrics) SetBreakerOpen(open bool) {
	m.BreakerOpen.Set(boolToFloat(open))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
