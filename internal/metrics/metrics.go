// Package metrics exports import pipeline counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/research-office/research-registry/internal/importer"
)

const namespace = "import"

// Run statuses reported on import_runs_total.
const (
	StatusOK         = "ok"
	StatusRowErrors  = "row_errors"
	StatusSourceRead = "source_error"
	StatusAborted    = "aborted"
)

// ImportMetrics observes processor runs.
type ImportMetrics struct {
	rows     *prometheus.CounterVec
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ importer.Observer = (*ImportMetrics)(nil)

// New registers the import collectors with reg.
func New(reg prometheus.Registerer) *ImportMetrics {
	f := promauto.With(reg)
	return &ImportMetrics{
		rows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows processed by outcome.",
		}, []string{"kind", "outcome"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Import runs by final status.",
		}, []string{"kind", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of import runs.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"kind"}),
	}
}

// NewRegistry returns a registry with the Go and process collectors and the
// import metrics.
func NewRegistry() (*prometheus.Registry, *ImportMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, New(reg)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func (m *ImportMetrics) RowProcessed(kind string, outcome importer.Outcome) {
	m.rows.WithLabelValues(kind, outcome.Status.String()).Inc()
}

func (m *ImportMetrics) RunFinished(kind string, report *importer.Report, err error) {
	status := StatusOK
	switch {
	case importer.IsFatal(err):
		status = StatusSourceRead
	case err != nil:
		status = StatusAborted
	case report != nil && report.HasErrors():
		status = StatusRowErrors
	}
	m.runs.WithLabelValues(kind, status).Inc()
	if report != nil {
		if d := report.Duration(); d > 0 {
			m.duration.WithLabelValues(kind).Observe(d.Seconds())
		}
	}
}
