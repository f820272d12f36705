// Package metrics exposes Prometheus metrics for enrichment runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "contact_enricher"

// Contact outcomes.
const (
	OutcomeEnriched = "enriched"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Recorder holds the enrichment metrics in its own registry.
type Recorder struct {
	registry    *prometheus.Registry
	contacts    *prometheus.CounterVec
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	lastSuccess prometheus.Gauge
}

// New registers the enrichment metrics plus Go runtime collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		contacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contacts_total",
			Help:      "Contacts processed, by outcome",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Enrichment passes, by result",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of enrichment passes in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800},
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last pass that finished without errors",
		}),
	}
	r.registry.MustRegister(
		r.contacts,
		r.runs,
		r.runDuration,
		r.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// AddContacts increments the counter of outcome by n.
func (r *Recorder) AddContacts(outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.contacts.WithLabelValues(outcome).Add(float64(n))
}

// ObserveRun records one pass.
func (r *Recorder) ObserveRun(ok bool, elapsed time.Duration, finished time.Time) {
	if r == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	r.runs.WithLabelValues(result).Inc()
	r.runDuration.Observe(elapsed.Seconds())
	if ok {
		r.lastSuccess.Set(float64(finished.Unix()))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
