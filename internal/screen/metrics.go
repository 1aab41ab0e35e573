package screen

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments source consultation and checks. A nil *Metrics is a no-op.
type Metrics struct {
	// Live fetch latency by source and outcome ("ok", "error")
	FetchDuration *prometheus.HistogramVec

	// How each source was served: fresh_cache, live, stale_cache, failed
	SourceServed *prometheus.CounterVec

	// Check verdicts by overall status
	CheckOutcomes *prometheus.CounterVec

	CheckDuration prometheus.Histogram

	ChecksInFlight prometheus.Gauge
}

// NewMetrics registers the screening metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sanctions_source_fetch_duration_seconds",
			Help:    "Duration of live source fetches",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"source", "outcome"}),

		SourceServed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sanctions_source_served_total",
			Help: "Source consultations by how the records were served",
		}, []string{"source", "served"}),

		CheckOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sanctions_check_outcomes_total",
			Help: "Screening checks by overall status",
		}, []string{"status"}),

		CheckDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sanctions_check_duration_seconds",
			Help:    "Duration of single checks including source consultation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		}),

		ChecksInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "sanctions_checks_in_flight",
			Help: "Checks currently being evaluated",
		}),
	}
}

func (m *Metrics) observeFetch(source string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.FetchDuration.WithLabelValues(source, outcome).Observe(d.Seconds())
}

func (m *Metrics) served(source, how string) {
	if m != nil {
		m.SourceServed.WithLabelValues(source, how).Inc()
	}
}

func (m *Metrics) observeCheck(status string, d time.Duration) {
	if m != nil {
		m.CheckOutcomes.WithLabelValues(status).Inc()
		m.CheckDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) checkStarted() {
	if m != nil {
		m.ChecksInFlight.Inc()
	}
}

func (m *Metrics) checkDone() {
	if m != nil {
		m.ChecksInFlight.Dec()
	}
}
