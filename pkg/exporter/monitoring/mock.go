package monitoring

import (
	"context"

	monitoringpb "cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
)

// MockLister implements TimeSeriesLister for testing. Responses are keyed by
// the request filter; an unmatched filter returns the default series.
type MockLister struct {
	// SeriesByFilter maps an exact filter string to the series to return.
	SeriesByFilter map[string][]*monitoringpb.TimeSeries
	// Series is returned when no filter entry matches.
	Series []*monitoringpb.TimeSeries
	// Err is returned from every call when set. Series already configured
	// are still returned with it, mimicking an iterator failing mid-drain.
	Err error
	// Requests records every request received, in order.
	Requests []*monitoringpb.ListTimeSeriesRequest
}

// NewMockLister creates an empty mock lister.
func NewMockLister() *MockLister {
	return &MockLister{SeriesByFilter: make(map[string][]*monitoringpb.TimeSeries)}
}

// ListTimeSeries returns the configured series or error.
func (m *MockLister) ListTimeSeries(ctx context.Context, req *monitoringpb.ListTimeSeriesRequest) ([]*monitoringpb.TimeSeries, error) {
	m.Requests = append(m.Requests, req)
	series := m.Series
	if s, ok := m.SeriesByFilter[req.Filter]; ok {
		series = s
	}
	if m.Err != nil {
		return series, m.Err
	}
	return series, nil
}
