package exporter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gke_metrics_exporter"

var (
	// NamespacesDiscovered reports the size of the namespace set for the run.
	NamespacesDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "namespaces_discovered",
		Help:      "Number of active namespaces found by the discovery query",
	})

	// RowsWritten counts rows committed to the warehouse, by metric.
	RowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_written_total",
		Help:      "Rows written to the warehouse table",
	}, []string{"metric"})

	// FetchErrors counts time-series queries that failed, by metric and
	// error kind.
	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_errors_total",
		Help:      "Time series queries that returned an error",
	}, []string{"metric", "kind"})

	// SinkErrors counts batches the warehouse rejected, by metric.
	SinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sink_errors_total",
		Help:      "Row batches rejected by the warehouse",
	}, []string{"metric"})

	// MetricsSkipped counts (namespace, metric) pairs with no data.
	MetricsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "metrics_skipped_total",
		Help:      "Catalog metrics skipped because the fetch returned no rows",
	}, []string{"metric"})

	// NamespaceRunDuration observes wall time per namespace run.
	NamespaceRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "namespace_run_duration_seconds",
		Help:      "Wall-clock duration of one namespace pipeline run",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)
