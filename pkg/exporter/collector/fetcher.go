package collector

import (
	"context"
	"fmt"
	"time"

	monitoringpb "cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"k8s.io/klog/v2"

	"github.com/resource-insights/gke-metrics-exporter/pkg/exporter"
	"github.com/resource-insights/gke-metrics-exporter/pkg/exporter/catalog"
	"github.com/resource-insights/gke-metrics-exporter/pkg/exporter/monitoring"
)

// Fetcher turns one (metric, namespace) query into canonical rows. The run
// timestamp is captured once per process and passed in so every metric in a
// run shares the same query end time.
type Fetcher struct {
	lister    monitoring.TimeSeriesLister
	projectID string
	runTime   time.Time
}

// NewFetcher creates a fetcher bound to one run timestamp.
func NewFetcher(lister monitoring.TimeSeriesLister, projectID string, runTime time.Time) *Fetcher {
	return &Fetcher{
		lister:    lister,
		projectID: projectID,
		runTime:   runTime,
	}
}

// Fetch queries one catalog metric for one namespace and maps every returned
// series to a row. Backend or unexpected errors are logged and whatever rows
// were already mapped are returned; a failing metric never aborts the rest of
// the namespace.
func (f *Fetcher) Fetch(ctx context.Context, name string, desc catalog.QueryDescriptor, namespace string) []Row {
	req := &monitoringpb.ListTimeSeriesRequest{
		Name: "projects/" + f.projectID,
		Filter: fmt.Sprintf("metric.type = %q AND resource.label.namespace_name = %q",
			desc.MetricType, namespace),
		Interval: &monitoringpb.TimeInterval{
			StartTime: timestamppb.New(f.runTime.Add(-desc.Window)),
			EndTime:   timestamppb.New(f.runTime),
		},
		View: monitoringpb.ListTimeSeriesRequest_FULL,
		Aggregation: &monitoringpb.Aggregation{
			AlignmentPeriod:    durationpb.New(desc.AlignmentPeriod),
			PerSeriesAligner:   desc.Aligner,
			CrossSeriesReducer: desc.Reducer,
			GroupByFields:      desc.GroupBy,
		},
	}

	series, err := f.lister.ListTimeSeries(ctx, req)
	if err != nil {
		kind := monitoring.KindOf(err)
		exporter.FetchErrors.WithLabelValues(name, string(kind)).Inc()
		klog.ErrorS(err, "Time series query failed, keeping rows fetched so far",
			"metric", name,
			"namespace", namespace,
			"errorKind", kind,
			"seriesFetched", len(series))
	}

	rows := make([]Row, 0, len(series))
	for _, ts := range series {
		rows = append(rows, f.buildRow(name, desc.Kind, ts))
	}
	return rows
}

func (f *Fetcher) buildRow(name string, kind catalog.Kind, ts *monitoringpb.TimeSeries) Row {
	resource := ts.GetResource().GetLabels()
	metricLabels := ts.GetMetric().GetLabels()
	systemLabels := ts.GetMetadata().GetSystemLabels().GetFields()

	row := Row{
		RunDate:       f.runTime.Format(RunDateFormat),
		MetricName:    name,
		ProjectID:     resource["project_id"],
		Location:      resource["location"],
		ClusterName:   resource["cluster_name"],
		NamespaceName: resource["namespace_name"],
	}

	// Exactly one label bag supplies the controller identity, selected by
	// the descriptor kind; the three sources are never mixed in one row.
	switch kind {
	case catalog.KindHPA:
		row.ControllerName = metricLabels["targetref_name"]
		row.ControllerType = metricLabels["targetref_kind"]
		row.ContainerName = metricLabels["container_name"]
	case catalog.KindVPA:
		row.ControllerName = resource["controller_name"]
		row.ControllerType = resource["controller_kind"]
		row.ContainerName = metricLabels["container_name"]
	default:
		row.ControllerName = systemLabels["top_level_controller_name"].GetStringValue()
		row.ControllerType = systemLabels["top_level_controller_type"].GetStringValue()
		row.ContainerName = resource["container_name"]
	}

	points := make([]Point, 0, len(ts.GetPoints()))
	for _, p := range ts.GetPoints() {
		points = append(points, Point{
			Timestamp: p.GetInterval().GetStartTime().AsTime().Format(PointTimeFormat),
			Value:     pointValue(p.GetValue()),
		})
	}
	row.Points = points
	return row
}

// pointValue prefers the double field and falls back to the int64 field. A
// double value of exactly 0 also falls through to int64; integer-typed
// metrics depend on that, and zero readings land on 0 either way.
func pointValue(v *monitoringpb.TypedValue) float64 {
	if d := v.GetDoubleValue(); d != 0 {
		return d
	}
	return float64(v.GetInt64Value())
}
