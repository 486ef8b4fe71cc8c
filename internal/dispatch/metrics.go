package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutcomeOK labels successful dispatches.
const OutcomeOK = "ok"

// Metrics instruments dispatches with Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	dispatches *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	inFlight   *prometheus.GaugeVec
}

// NewMetrics creates the dispatch collectors and registers them with reg.
// A nil reg leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatchkit_dispatches_total",
				Help: "Total number of dispatches by family, key and outcome",
			},
			[]string{"family", "key", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dispatchkit_dispatch_duration_seconds",
				Help:    "Dispatch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"family", "key"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dispatchkit_dispatches_in_flight",
				Help: "Current number of dispatches being processed",
			},
			[]string{"family"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.dispatches, m.duration, m.inFlight)
	}
	return m
}

func (m *Metrics) begin(family string) func() {
	if m == nil {
		return func() {}
	}
	g := m.inFlight.WithLabelValues(family)
	g.Inc()
	return g.Dec
}

func (m *Metrics) observe(family, key, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(family, key, outcome).Inc()
	m.duration.WithLabelValues(family, key).Observe(elapsed.Seconds())
}
