package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/entrhq/deepdiver/pkg/monitor"
)

// Metrics are the engine's Prometheus collectors.
type Metrics struct {
	submitted  *prometheus.CounterVec
	outcomes   *prometheus.CounterVec
	errors     *prometheus.CounterVec
	polls      *prometheus.CounterVec
	probeFails *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	running    prometheus.Gauge
}

// NewMetrics registers the engine collectors with reg. A nil reg gives
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		submitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deepdiver",
			Name:      "jobs_submitted_total",
			Help:      "Generation jobs submitted, by kind.",
		}, []string{"kind"}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deepdiver",
			Name:      "job_outcomes_total",
			Help:      "Terminal job outcomes, by kind and state.",
		}, []string{"kind", "state"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deepdiver",
			Name:      "job_errors_total",
			Help:      "Jobs that ended with an engine error, by kind and stage.",
		}, []string{"kind", "stage"}),
		polls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deepdiver",
			Name:      "job_polls_total",
			Help:      "Status inspections performed while monitoring jobs.",
		}, []string{"kind"}),
		probeFails: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deepdiver",
			Name:      "job_probe_errors_total",
			Help:      "Status inspections that failed and were retried.",
		}, []string{"kind"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "deepdiver",
			Name:      "job_duration_seconds",
			Help:      "Time from submission to terminal state.",
			Buckets:   []float64{30, 60, 120, 300, 600, 900, 1200, 1800},
		}, []string{"kind"}),
		running: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "deepdiver",
			Name:      "jobs_running",
			Help:      "Jobs currently being submitted or monitored.",
		}),
	}
}

func (m *Metrics) recordSubmit(kind Kind) {
	m.submitted.WithLabelValues(string(kind)).Inc()
	m.running.Inc()
}

func (m *Metrics) recordDone() {
	m.running.Dec()
}

func (m *Metrics) recordError(kind Kind, stage string) {
	m.errors.WithLabelValues(string(kind), stage).Inc()
}

func (m *Metrics) recordCancel(kind Kind) {
	m.outcomes.WithLabelValues(string(kind), monitor.Cancelled.String()).Inc()
}

func (m *Metrics) recordWatch(kind Kind, res monitor.Result) {
	k := string(kind)
	m.outcomes.WithLabelValues(k, res.State.String()).Inc()
	m.polls.WithLabelValues(k).Add(float64(res.Polls))
	if res.ProbeErrors > 0 {
		m.probeFails.WithLabelValues(k).Add(float64(res.ProbeErrors))
	}
	m.duration.WithLabelValues(k).Observe(res.Elapsed.Seconds())
}
