package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusNotFound  = "not_found"
)

// ExporterConfig configures the Prometheus exporter.
type ExporterConfig struct {
	// Registry to use. A new one is created when nil.
	Registry *prometheus.Registry

	// LatencyBuckets are the run latency buckets in seconds.
	LatencyBuckets []float64
}

// DefaultExporterConfig returns default Prometheus configuration.
func DefaultExporterConfig() ExporterConfig {
	return ExporterConfig{
		LatencyBuckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}
}

// Exporter exports formatter run metrics in Prometheus format.
type Exporter struct {
	registry *prometheus.Registry

	runs    *prometheus.CounterVec
	latency *prometheus.HistogramVec
	edits   prometheus.Counter
	changed prometheus.Counter
}

// NewExporter creates an exporter and registers its collectors.
func NewExporter(cfg ExporterConfig) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultExporterConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{
		registry: registry,
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clangfmt",
				Name:      "runs_total",
				Help:      "Formatter runs by outcome",
			},
			[]string{"status"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "clangfmt",
				Name:      "run_duration_seconds",
				Help:      "Formatter run latency in seconds",
				Buckets:   cfg.LatencyBuckets,
			},
			[]string{"status"},
		),
		edits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clangfmt",
			Name:      "edits_total",
			Help:      "Edits produced by completed runs",
		}),
		changed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clangfmt",
			Name:      "files_changed_total",
			Help:      "Files whose text was rewritten",
		}),
	}
	registry.MustRegister(e.runs, e.latency, e.edits, e.changed)
	return e
}

func (e *Exporter) observe(status string, d time.Duration, edits int) {
	e.runs.WithLabelValues(status).Inc()
	if status == StatusCompleted || status == StatusFailed {
		e.latency.WithLabelValues(status).Observe(d.Seconds())
	}
	if edits > 0 {
		e.edits.Add(float64(edits))
	}
}

// Handler returns the HTTP handler serving the metrics.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
