package collector

import (
	"context"
	"fmt"
	"time"

	monitoringpb "cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	"github.com/resource-insights/gke-metrics-exporter/pkg/exporter/monitoring"
)

// discoveryMetric is the metric used to detect namespace activity: any
// namespace burning CPU in the discovery window is worth collecting.
const discoveryMetric = "kubernetes.io/container/cpu/core_usage_time"

// Discoverer finds the namespaces with container CPU activity in a recent
// window, bounding the scope of the per-metric queries.
type Discoverer struct {
	lister    monitoring.TimeSeriesLister
	projectID string
	window    time.Duration
	filter    string
}

// NewDiscoverer creates a namespace discoverer. filter is an optional
// backend-side predicate (for example excluding system namespaces) ANDed
// into the discovery query.
func NewDiscoverer(lister monitoring.TimeSeriesLister, projectID string, window time.Duration, filter string) *Discoverer {
	return &Discoverer{
		lister:    lister,
		projectID: projectID,
		window:    window,
		filter:    filter,
	}
}

// Discover returns the set of namespace names with non-zero container CPU
// usage in [runTime-window, runTime]. Any backend or unexpected error is
// logged and yields the empty set: callers treat an empty set as nothing to
// do, never as a condition to retry.
func (d *Discoverer) Discover(ctx context.Context, runTime time.Time) sets.Set[string] {
	namespaces := sets.New[string]()

	filter := fmt.Sprintf("metric.type = %q", discoveryMetric)
	if d.filter != "" {
		filter += " AND " + d.filter
	}

	req := &monitoringpb.ListTimeSeriesRequest{
		Name:   "projects/" + d.projectID,
		Filter: filter,
		Interval: &monitoringpb.TimeInterval{
			StartTime: timestamppb.New(runTime.Add(-d.window)),
			EndTime:   timestamppb.New(runTime),
		},
		View: monitoringpb.ListTimeSeriesRequest_FULL,
		Aggregation: &monitoringpb.Aggregation{
			AlignmentPeriod:    durationpb.New(d.window),
			PerSeriesAligner:   monitoringpb.Aggregation_ALIGN_RATE,
			CrossSeriesReducer: monitoringpb.Aggregation_REDUCE_SUM,
			GroupByFields:      []string{`resource.label."namespace_name"`},
		},
	}

	series, err := d.lister.ListTimeSeries(ctx, req)
	if err != nil {
		klog.ErrorS(err, "Namespace discovery query failed",
			"errorKind", monitoring.KindOf(err),
			"window", d.window)
		return namespaces
	}

	for _, ts := range series {
		if ns := ts.GetResource().GetLabels()["namespace_name"]; ns != "" {
			namespaces.Insert(ns)
		}
	}

	klog.InfoS("Discovered active namespaces", "count", namespaces.Len())
	return namespaces
}
