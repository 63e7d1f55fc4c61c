package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	"github.com/resource-insights/gke-metrics-exporter/pkg/exporter"
	"github.com/resource-insights/gke-metrics-exporter/pkg/exporter/catalog"
	"github.com/resource-insights/gke-metrics-exporter/pkg/exporter/collector"
	"github.com/resource-insights/gke-metrics-exporter/pkg/exporter/config"
	"github.com/resource-insights/gke-metrics-exporter/pkg/exporter/kube"
	"github.com/resource-insights/gke-metrics-exporter/pkg/exporter/ledger"
	"github.com/resource-insights/gke-metrics-exporter/pkg/exporter/monitoring"
	"github.com/resource-insights/gke-metrics-exporter/pkg/exporter/pipeline"
	"github.com/resource-insights/gke-metrics-exporter/pkg/exporter/sink"
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		klog.ErrorS(err, "Failed to load configuration")
		os.Exit(1)
	}

	cat := catalog.Default()
	if cfg.Pipeline.CatalogPath != "" {
		cat, err = catalog.LoadFile(cfg.Pipeline.CatalogPath)
		if err != nil {
			klog.ErrorS(err, "Failed to load query catalog", "path", cfg.Pipeline.CatalogPath)
			os.Exit(1)
		}
	}

	ctx := context.Background()

	// One timestamp for the whole run: every metric queries the same
	// [runTime-window, runTime] interval and stamps the same run date.
	runTime := time.Now()

	monClient, err := monitoring.NewClient(ctx)
	if err != nil {
		klog.ErrorS(err, "Failed to create monitoring client")
		os.Exit(1)
	}
	defer monClient.Close()

	bqClient, err := bigquery.NewClient(ctx, cfg.Project.ProjectID)
	if err != nil {
		klog.ErrorS(err, "Failed to create warehouse client")
		os.Exit(1)
	}
	defer bqClient.Close()

	rowSink, err := sink.NewSink(bqClient, cfg.Project.ProjectID, cfg.Project.TableID)
	if err != nil {
		klog.ErrorS(err, "Failed to resolve warehouse table", "table", cfg.Project.TableID)
		os.Exit(1)
	}

	if cfg.Observability.MetricsEnabled {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Observability.MetricsPort)
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, nil); err != nil {
				klog.ErrorS(err, "Metrics server stopped", "addr", addr)
			}
		}()
	}

	klog.InfoS("Starting metrics export run",
		"project", cfg.Project.ProjectID,
		"table", cfg.Project.TableID,
		"catalogMetrics", len(cat),
		"runDate", runTime.Format(collector.RunDateFormat))

	discoverer := collector.NewDiscoverer(monClient, cfg.Project.ProjectID,
		cfg.Discovery.Window, cfg.Discovery.NamespaceFilter)
	namespaces := discoverer.Discover(ctx, runTime)

	if cfg.Discovery.KubeNamespaceCheck && namespaces.Len() > 0 {
		filter, err := kube.NewNamespaceFilterFromEnv()
		if err != nil {
			klog.ErrorS(err, "Kubernetes client unavailable, skipping namespace check")
		} else {
			namespaces = filter.Filter(ctx, namespaces)
		}
	}

	exporter.NamespacesDiscovered.Set(float64(namespaces.Len()))
	if namespaces.Len() == 0 {
		klog.ErrorS(nil, "Monitored namespace list is empty, ending job")
		return
	}

	opts := []pipeline.Option{pipeline.WithWorkers(cfg.Pipeline.Workers)}
	if cfg.Pipeline.LedgerPath != "" {
		runLedger, err := ledger.Open(cfg.Pipeline.LedgerPath)
		if err != nil {
			klog.ErrorS(err, "Failed to open run ledger, continuing without it",
				"path", cfg.Pipeline.LedgerPath)
		} else {
			defer runLedger.Close()
			opts = append(opts, pipeline.WithRecorder(runLedger))
		}
	}

	fetcher := collector.NewFetcher(monClient, cfg.Project.ProjectID, runTime)
	orchestrator := pipeline.New(cat, fetcher, rowSink,
		runTime.Format(collector.RunDateFormat), opts...)
	orchestrator.Run(ctx, sets.List(namespaces))

	klog.InfoS("Export run finished", "namespaces", namespaces.Len())
}
