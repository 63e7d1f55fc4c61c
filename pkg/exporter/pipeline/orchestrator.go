package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/resource-insights/gke-metrics-exporter/pkg/exporter"
	"github.com/resource-insights/gke-metrics-exporter/pkg/exporter/catalog"
	"github.com/resource-insights/gke-metrics-exporter/pkg/exporter/collector"
	"github.com/resource-insights/gke-metrics-exporter/pkg/exporter/ledger"
)

// Fetcher is the per-(metric, namespace) query contract.
type Fetcher interface {
	Fetch(ctx context.Context, name string, desc catalog.QueryDescriptor, namespace string) []collector.Row
}

// RowSink commits one batch of rows and reports the count written.
type RowSink interface {
	Write(ctx context.Context, rows []collector.Row) (int, error)
}

// Recorder receives per-metric outcomes; satisfied by *ledger.Ledger.
type Recorder interface {
	Record(o ledger.Outcome) error
}

// Orchestrator drives the catalog for each namespace. Fetch failures are
// already absorbed inside the fetcher; a sink failure aborts the remaining
// metrics of that namespace only.
type Orchestrator struct {
	catalog  catalog.Catalog
	fetcher  Fetcher
	sink     RowSink
	recorder Recorder // optional
	runDate  string
	workers  int
}

// Option customizes an orchestrator.
type Option func(*Orchestrator)

// WithRecorder wires a run ledger.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithWorkers bounds the namespace fan-out. Values below 2 keep the driver
// strictly sequential.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 1 {
			o.workers = n
		}
	}
}

// New creates an orchestrator. runDate is the shared run timestamp already
// rendered for row and ledger use.
func New(cat catalog.Catalog, fetcher Fetcher, sink RowSink, runDate string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		catalog: cat,
		fetcher: fetcher,
		sink:    sink,
		runDate: runDate,
		workers: 1,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunNamespace processes every catalog metric for one namespace, in catalog
// order. Zero-row fetches are skipped; the first sink error aborts the rest
// of this namespace and is returned.
func (o *Orchestrator) RunNamespace(ctx context.Context, namespace string) error {
	start := time.Now()

	for _, entry := range o.catalog {
		klog.InfoS("Retrieving metric", "metric", entry.Name, "namespace", namespace)
		rows := o.fetcher.Fetch(ctx, entry.Name, entry.Descriptor, namespace)

		if len(rows) == 0 {
			klog.InfoS("Metric unavailable, skip", "metric", entry.Name, "namespace", namespace)
			exporter.MetricsSkipped.WithLabelValues(entry.Name).Inc()
			o.record(ledger.Outcome{
				RunDate:   o.runDate,
				Namespace: namespace,
				Metric:    entry.Name,
				Status:    ledger.StatusSkipped,
			})
			continue
		}

		written, err := o.sink.Write(ctx, rows)
		if err != nil {
			exporter.SinkErrors.WithLabelValues(entry.Name).Inc()
			o.record(ledger.Outcome{
				RunDate:   o.runDate,
				Namespace: namespace,
				Metric:    entry.Name,
				Status:    ledger.StatusFailed,
				Detail:    err.Error(),
			})
			return fmt.Errorf("namespace %s aborted at metric %s: %w", namespace, entry.Name, err)
		}

		exporter.RowsWritten.WithLabelValues(entry.Name).Add(float64(written))
		o.record(ledger.Outcome{
			RunDate:   o.runDate,
			Namespace: namespace,
			Metric:    entry.Name,
			Rows:      written,
			Status:    ledger.StatusWritten,
		})
	}

	exporter.NamespaceRunDuration.Observe(time.Since(start).Seconds())
	klog.InfoS("Run completed", "namespace", namespace)
	return nil
}

// Run drives every namespace. Namespace runs share no state, so the driver
// may fan out up to the configured worker bound; failures stay contained to
// their namespace either way.
func (o *Orchestrator) Run(ctx context.Context, namespaces []string) {
	if o.workers <= 1 {
		for _, ns := range namespaces {
			if err := o.RunNamespace(ctx, ns); err != nil {
				klog.ErrorS(err, "Namespace run aborted", "namespace", ns)
			}
		}
		return
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, o.workers)
	for _, ns := range namespaces {
		wg.Add(1)
		sem <- struct{}{}
		go func(ns string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := o.RunNamespace(ctx, ns); err != nil {
				klog.ErrorS(err, "Namespace run aborted", "namespace", ns)
			}
		}(ns)
	}
	wg.Wait()
}

func (o *Orchestrator) record(outcome ledger.Outcome) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(outcome); err != nil {
		klog.ErrorS(err, "Failed to record run outcome",
			"namespace", outcome.Namespace, "metric", outcome.Metric)
	}
}
