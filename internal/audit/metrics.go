package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks audit delivery.
type Metrics struct {
	Published    prometheus.Counter
	Dropped      prometheus.Counter
	SinkFailures prometheus.Counter
}

// NewMetrics registers audit metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounter(prometheus.CounterOpts{
			Name: "checkin_audit_published_total",
			Help: "Audit events written to the sink",
		}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "checkin_audit_dropped_total",
			Help: "Audit events dropped because the queue was full",
		}),
		SinkFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "checkin_audit_sink_failures_total",
			Help: "Audit events the sink failed to persist",
		}),
	}
}
