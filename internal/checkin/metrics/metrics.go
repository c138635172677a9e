package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the check-in ledger.
type Metrics struct {
	Recorded            prometheus.Counter
	Removed             prometheus.Counter
	GateRejected        prometheus.Counter
	AmbiguousIdentifier prometheus.Counter
	VersionConflicts    prometheus.Counter
	IdempotentReplays   prometheus.Counter
	RecordDuration      prometheus.Histogram
	ResolveDuration     prometheus.Histogram
}

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Recorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "checkin_recorded_total",
			Help: "Accepted check-in records",
		}),
		Removed: factory.NewCounter(prometheus.CounterOpts{
			Name: "checkin_removed_total",
			Help: "Check-ins actually removed (no-op deletes excluded)",
		}),
		GateRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "checkin_gate_rejected_total",
			Help: "Check-ins rejected because the admission gate was closed",
		}),
		AmbiguousIdentifier: factory.NewCounter(prometheus.CounterOpts{
			Name: "checkin_ambiguous_identifier_total",
			Help: "Identifiers that resolved to more than one candidate",
		}),
		VersionConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "checkin_version_conflicts_total",
			Help: "Optimistic update attempts that lost to a concurrent writer and were re-applied",
		}),
		IdempotentReplays: factory.NewCounter(prometheus.CounterOpts{
			Name: "checkin_idempotent_replays_total",
			Help: "Check-in retries answered from an earlier request token",
		}),
		RecordDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkin_record_duration_seconds",
			Help:    "Duration of RecordCheckIn (scanner critical path)",
			Buckets: latencyBuckets,
		}),
		ResolveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkin_resolve_duration_seconds",
			Help:    "Duration of identifier resolution",
			Buckets: latencyBuckets,
		}),
	}
}

// ObserveRecord records the duration of a RecordCheckIn call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRecord(start time.Time) {
	m.RecordDuration.Observe(time.Since(start).Seconds())
}

// ObserveResolve records the duration of an identifier resolution.
func (m *Metrics) ObserveResolve(start time.Time) {
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}
