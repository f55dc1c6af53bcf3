// Package metrics exposes Prometheus instrumentation for migration runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements the migration engine's observer on top of a
// Prometheus registry.
type Recorder struct {
	runs      *prometheus.CounterVec
	copyUnits *prometheus.CounterVec
	phases    *prometheus.HistogramVec
}

// NewRecorder registers the migration metrics on the default registry.
func NewRecorder() *Recorder {
	return &Recorder{
		runs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "psa_workbench_runs_total",
			Help: "Migration runs by workflow and outcome.",
		}, []string{"workflow", "status"}),
		copyUnits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "psa_workbench_copy_units_total",
			Help: "Sub-resource copy units by workflow, class and outcome.",
		}, []string{"workflow", "class", "status"}),
		phases: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "psa_workbench_phase_duration_seconds",
			Help:    "Wall-clock duration of each migration phase.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"workflow", "phase"}),
	}
}

// RunFinished counts a finished run and records its per-phase latency.
func (r *Recorder) RunFinished(workflow, status string, phases map[string]int64) {
	r.runs.WithLabelValues(workflow, status).Inc()
	for phase, ms := range phases {
		r.phases.WithLabelValues(workflow, phase).Observe(time.Duration(ms * int64(time.Millisecond)).Seconds())
	}
}

// UnitFinished counts one sub-resource copy unit outcome.
func (r *Recorder) UnitFinished(workflow, class, status string) {
	r.copyUnits.WithLabelValues(workflow, class, status).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
