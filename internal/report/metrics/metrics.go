package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers roster scans behind the reporting endpoints.
type Metrics struct {
	ScanDuration     prometheus.Histogram
	ScansShared      prometheus.Counter
	RosterSize       prometheus.Gauge
	UndatedTimeslots prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkin_report_scan_duration_seconds",
			Help:    "Time to load the full roster for a report",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		ScansShared: factory.NewCounter(prometheus.CounterOpts{
			Name: "checkin_report_scans_shared_total",
			Help: "Report requests served by a scan already in flight",
		}),
		RosterSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "checkin_report_roster_size",
			Help: "Candidates seen by the most recent roster scan",
		}),
		UndatedTimeslots: factory.NewGauge(prometheus.GaugeOpts{
			Name: "checkin_report_undated_timeslots",
			Help: "Candidates left out of date grouping because their timeslot has no date",
		}),
	}
}

func (m *Metrics) ObserveScan(start time.Time, size int, shared bool) {
	m.ScanDuration.Observe(time.Since(start).Seconds())
	m.RosterSize.Set(float64(size))
	if shared {
		m.ScansShared.Inc()
	}
}
