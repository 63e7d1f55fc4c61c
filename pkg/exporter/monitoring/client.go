package monitoring

import (
	"context"
	"fmt"

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	monitoringpb "cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"
)

// TimeSeriesLister is the read-side contract against Cloud Monitoring: one
// operation, list time series, fully drained into a slice so callers never
// hold a live iterator across their own processing.
type TimeSeriesLister interface {
	ListTimeSeries(ctx context.Context, req *monitoringpb.ListTimeSeriesRequest) ([]*monitoringpb.TimeSeries, error)
}

// Client wraps the Cloud Monitoring metric service client.
type Client struct {
	metrics *monitoring.MetricClient
}

// NewClient creates a Cloud Monitoring client using application default
// credentials.
func NewClient(ctx context.Context) (*Client, error) {
	mc, err := monitoring.NewMetricClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric client: %v", err)
	}
	return &Client{metrics: mc}, nil
}

// ListTimeSeries issues the query and drains the result iterator.
func (c *Client) ListTimeSeries(ctx context.Context, req *monitoringpb.ListTimeSeriesRequest) ([]*monitoringpb.TimeSeries, error) {
	it := c.metrics.ListTimeSeries(ctx, req)
	var series []*monitoringpb.TimeSeries
	for {
		ts, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return series, err
		}
		series = append(series, ts)
	}
	klog.V(2).InfoS("Listed time series", "filter", req.Filter, "series", len(series))
	return series, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.metrics.Close()
}

// ErrorKind annotates log lines at the fetch/discovery boundary. Both kinds
// recover the same way there; only the logged cause differs.
type ErrorKind string

const (
	// ErrorKindBackend covers errors the monitoring API itself reported
	// (auth, quota, transport), recognizable as gRPC status errors.
	ErrorKindBackend ErrorKind = "backend"
	// ErrorKindInternal covers everything else.
	ErrorKindInternal ErrorKind = "internal"
)

// KindOf classifies an error from a monitoring call.
func KindOf(err error) ErrorKind {
	if _, ok := status.FromError(err); ok {
		return ErrorKindBackend
	}
	return ErrorKindInternal
}
