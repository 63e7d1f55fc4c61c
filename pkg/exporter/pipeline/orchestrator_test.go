package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resource-insights/gke-metrics-exporter/pkg/exporter/catalog"
	"github.com/resource-insights/gke-metrics-exporter/pkg/exporter/collector"
	"github.com/resource-insights/gke-metrics-exporter/pkg/exporter/ledger"
)

// fakeFetcher returns canned rows keyed by "namespace/metric".
type fakeFetcher struct {
	mu    sync.Mutex
	rows  map[string][]collector.Row
	calls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, name string, desc catalog.QueryDescriptor, namespace string) []collector.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := namespace + "/" + name
	f.calls = append(f.calls, key)
	return f.rows[key]
}

// fakeSink records batches and fails on metrics listed in failOn.
type fakeSink struct {
	mu      sync.Mutex
	batches [][]collector.Row
	failOn  map[string]bool
}

func (s *fakeSink) Write(ctx context.Context, rows []collector.Row) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[rows[0].MetricName] {
		return 0, errors.New("row 0 rejected: invalid schema")
	}
	s.batches = append(s.batches, rows)
	return len(rows), nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []ledger.Outcome
}

func (r *fakeRecorder) Record(o ledger.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return nil
}

func testCatalog(names ...string) catalog.Catalog {
	cat := make(catalog.Catalog, 0, len(names))
	for _, name := range names {
		cat = append(cat, catalog.Entry{Name: name, Descriptor: catalog.QueryDescriptor{
			MetricType: "kubernetes.io/test/" + name,
			Kind:       catalog.KindForName(name),
		}})
	}
	return cat
}

func rowsFor(metric, namespace string, n int) []collector.Row {
	rows := make([]collector.Row, n)
	for i := range rows {
		rows[i] = collector.Row{MetricName: metric, NamespaceName: namespace}
	}
	return rows
}

func TestRunNamespaceSkipsEmptyMetrics(t *testing.T) {
	fetcher := &fakeFetcher{rows: map[string][]collector.Row{
		"billing/cpu_usage": rowsFor("cpu_usage", "billing", 2),
		// memory_usage returns nothing
		"billing/vpa_cpu_recommendation": rowsFor("vpa_cpu_recommendation", "billing", 1),
	}}
	sink := &fakeSink{}
	recorder := &fakeRecorder{}

	o := New(testCatalog("cpu_usage", "memory_usage", "vpa_cpu_recommendation"),
		fetcher, sink, "2024-03-01 12:00:00", WithRecorder(recorder))
	err := o.RunNamespace(context.Background(), "billing")
	require.NoError(t, err)

	// The empty metric never reaches the sink, and the metrics after it
	// still run.
	require.Len(t, sink.batches, 2)
	assert.Equal(t, "cpu_usage", sink.batches[0][0].MetricName)
	assert.Equal(t, "vpa_cpu_recommendation", sink.batches[1][0].MetricName)

	require.Len(t, recorder.outcomes, 3)
	assert.Equal(t, ledger.StatusWritten, recorder.outcomes[0].Status)
	assert.Equal(t, ledger.StatusSkipped, recorder.outcomes[1].Status)
	assert.Equal(t, ledger.StatusWritten, recorder.outcomes[2].Status)
	assert.Equal(t, 2, recorder.outcomes[0].Rows)
}

func TestRunNamespaceCatalogOrder(t *testing.T) {
	fetcher := &fakeFetcher{rows: map[string][]collector.Row{}}
	o := New(testCatalog("cpu_usage", "memory_usage", "hpa_cpu"), fetcher, &fakeSink{}, "2024-03-01 12:00:00")

	require.NoError(t, o.RunNamespace(context.Background(), "billing"))
	assert.Equal(t, []string{"billing/cpu_usage", "billing/memory_usage", "billing/hpa_cpu"}, fetcher.calls)
}

func TestRunNamespaceSinkErrorAborts(t *testing.T) {
	fetcher := &fakeFetcher{rows: map[string][]collector.Row{
		"billing/cpu_usage":    rowsFor("cpu_usage", "billing", 3),
		"billing/memory_usage": rowsFor("memory_usage", "billing", 3),
		"billing/hpa_cpu":      rowsFor("hpa_cpu", "billing", 3),
	}}
	sink := &fakeSink{failOn: map[string]bool{"memory_usage": true}}
	recorder := &fakeRecorder{}

	o := New(testCatalog("cpu_usage", "memory_usage", "hpa_cpu"),
		fetcher, sink, "2024-03-01 12:00:00", WithRecorder(recorder))
	err := o.RunNamespace(context.Background(), "billing")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory_usage")
	assert.Contains(t, err.Error(), "billing")

	// cpu_usage was committed before the failure and stays committed;
	// hpa_cpu was never attempted.
	require.Len(t, sink.batches, 1)
	assert.Equal(t, "cpu_usage", sink.batches[0][0].MetricName)
	assert.Equal(t, []string{"billing/cpu_usage", "billing/memory_usage"}, fetcher.calls)

	require.Len(t, recorder.outcomes, 2)
	assert.Equal(t, ledger.StatusWritten, recorder.outcomes[0].Status)
	assert.Equal(t, ledger.StatusFailed, recorder.outcomes[1].Status)
	assert.NotEmpty(t, recorder.outcomes[1].Detail)
}

func TestRunContinuesPastAbortedNamespace(t *testing.T) {
	fetcher := &fakeFetcher{rows: map[string][]collector.Row{
		"billing/memory_usage": rowsFor("memory_usage", "billing", 1),
		"search/cpu_usage":     rowsFor("cpu_usage", "search", 1),
		"search/memory_usage":  rowsFor("memory_usage", "search", 1),
	}}
	sink := &fakeSink{failOn: map[string]bool{"memory_usage": true}}

	o := New(testCatalog("cpu_usage", "memory_usage"), fetcher, sink, "2024-03-01 12:00:00")
	o.Run(context.Background(), []string{"billing", "search"})

	// billing aborts at memory_usage; search still commits cpu_usage before
	// aborting at its own memory_usage.
	require.Len(t, sink.batches, 1)
	assert.Equal(t, "search", sink.batches[0][0].NamespaceName)
}

func TestRunWithWorkers(t *testing.T) {
	const namespaces = 8
	rows := make(map[string][]collector.Row, namespaces)
	var names []string
	for i := 0; i < namespaces; i++ {
		ns := fmt.Sprintf("ns-%d", i)
		names = append(names, ns)
		rows[ns+"/cpu_usage"] = rowsFor("cpu_usage", ns, 1)
	}
	fetcher := &fakeFetcher{rows: rows}
	sink := &fakeSink{}

	o := New(testCatalog("cpu_usage"), fetcher, sink, "2024-03-01 12:00:00", WithWorkers(3))
	o.Run(context.Background(), names)

	assert.Len(t, sink.batches, namespaces)
}
