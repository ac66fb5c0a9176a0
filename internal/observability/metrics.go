// Package observability exposes Prometheus metrics for pipeline runs.
package observability

import (
	"context"
	"net/http"

	"cryptoetl/internal/market/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cryptoetl"

// Metrics holds the pipeline metrics.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	RecordsFetched  prometheus.Counter
	RecordsSkipped  prometheus.Counter
	DocsUpserted    *prometheus.CounterVec
	HistoryInserted prometheus.Counter
	ExtractAttempts prometheus.Histogram

	LastRunTimestamp        prometheus.Gauge
	LastSuccessfulTimestamp prometheus.Gauge
}

// NewMetrics registers everything on a fresh registry, together with the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by terminal status",
		}, []string{"status"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of successful pipeline runs",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		RecordsFetched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "records_fetched_total",
			Help:      "Raw market records fetched from CoinGecko",
		}),
		RecordsSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "records_skipped_total",
			Help:      "Raw records dropped during transformation",
		}),
		DocsUpserted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "snapshot_docs_total",
			Help:      "Snapshot upsert tallies by result",
		}, []string{"result"}),
		HistoryInserted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "history_rows_inserted_total",
			Help:      "History rows confirmed by the store",
		}),
		ExtractAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "attempts",
			Help:      "HTTP attempts needed per run",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),

		LastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run started",
		}),
		LastSuccessfulTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time the last successful run started",
		}),
	}
}

// ObserveRun folds one run summary into the metrics.
func (m *Metrics) ObserveRun(_ context.Context, s model.RunSummary) {
	m.RunsTotal.WithLabelValues(string(s.Status)).Inc()
	m.RecordsFetched.Add(float64(s.Fetched))
	m.RecordsSkipped.Add(float64(s.Skipped))
	m.DocsUpserted.WithLabelValues("matched").Add(float64(s.Upsert.Matched))
	m.DocsUpserted.WithLabelValues("modified").Add(float64(s.Upsert.Modified))
	m.DocsUpserted.WithLabelValues("upserted").Add(float64(s.Upsert.Upserted))
	m.HistoryInserted.Add(float64(s.HistoryInserted))
	if s.ExtractAttempts > 0 {
		m.ExtractAttempts.Observe(float64(s.ExtractAttempts))
	}

	m.LastRunTimestamp.Set(float64(s.RanAt.Unix()))
	if s.Status == model.StatusSuccess {
		m.LastSuccessfulTimestamp.Set(float64(s.RanAt.Unix()))
		if s.DurationSeconds != nil {
			m.RunDuration.Observe(*s.DurationSeconds)
		}
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
