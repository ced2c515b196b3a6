package job

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus instruments of the reconciliation job. A nil
// *Metrics records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	documents   *prometheus.CounterVec
	written     *prometheus.CounterVec
	runDuration prometheus.Histogram
	running     prometheus.Gauge
}

// NewMetrics registers the job metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keying_qc",
			Name:      "job_runs_total",
			Help:      "Reconciliation runs by outcome.",
		}, []string{"status"}),
		documents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keying_qc",
			Name:      "documents_total",
			Help:      "Documents handled by project and outcome.",
		}, []string{"project", "outcome"}),
		written: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keying_qc",
			Name:      "records_written_total",
			Help:      "Mistake records and keying documents written by project.",
		}, []string{"project", "kind"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "keying_qc",
			Name:      "job_run_duration_seconds",
			Help:      "Duration of reconciliation runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		running: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "keying_qc",
			Name:      "job_running",
			Help:      "1 while a reconciliation run is in flight.",
		}),
	}
}

func (m *Metrics) runFinished(status string, seconds float64) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(seconds)
}

func (m *Metrics) setRunning(on bool) {
	if m == nil {
		return
	}
	if on {
		m.running.Set(1)
		return
	}
	m.running.Set(0)
}

func (m *Metrics) document(project, outcome string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(project, outcome).Inc()
}

func (m *Metrics) wrote(project string, mistakes, effort int) {
	if m == nil {
		return
	}
	m.written.WithLabelValues(project, "mistakes").Add(float64(mistakes))
	m.written.WithLabelValues(project, "effort").Add(float64(effort))
}
