package upload

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sheetflow/backend/internal/models"
)

// Metrics are the Prometheus collectors of the ingestion pipeline.
type Metrics struct {
	Runs       *prometheus.CounterVec
	Duration   prometheus.Histogram
	Tables     prometheus.Counter
	QueueDepth prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sheetflow",
			Subsystem: "ingestion",
			Name:      "runs_total",
			Help:      "Ingestion runs by final file status.",
		}, []string{"status"}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sheetflow",
			Subsystem: "ingestion",
			Name:      "duration_seconds",
			Help:      "Duration of successful ingestion runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		Tables: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sheetflow",
			Subsystem: "ingestion",
			Name:      "tables_created_total",
			Help:      "Tables created from uploaded sheets.",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "sheetflow",
			Subsystem: "ingestion",
			Name:      "queue_depth",
			Help:      "Tasks waiting for a worker.",
		}),
	}
}

func (m *Metrics) observe(r Result) {
	status := string(r.Status)
	if r.Err != nil && r.Status != models.FileStatusError {
		status = "aborted"
	}
	m.Runs.WithLabelValues(status).Inc()
	if r.Err == nil {
		m.Duration.Observe(r.Duration.Seconds())
	}
}
