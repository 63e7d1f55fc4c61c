package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"k8s.io/klog/v2"

	"github.com/resource-insights/gke-metrics-exporter/pkg/exporter/collector"
)

// Inserter is the write-side contract against the warehouse; satisfied by
// *bigquery.Inserter and mockable in tests.
type Inserter interface {
	Put(ctx context.Context, src interface{}) error
}

// Sink writes one batch of canonical rows per call. A batch is all rows of
// one metric; any row-level rejection fails the whole batch.
type Sink struct {
	inserter Inserter
	table    string
}

// NewSink resolves the target table and returns a sink over its inserter.
// tableID is "dataset.table" (project from defaultProject) or
// "project.dataset.table".
func NewSink(client *bigquery.Client, defaultProject, tableID string) (*Sink, error) {
	parts := strings.Split(tableID, ".")
	var table *bigquery.Table
	switch len(parts) {
	case 2:
		table = client.DatasetInProject(defaultProject, parts[0]).Table(parts[1])
	case 3:
		table = client.DatasetInProject(parts[0], parts[1]).Table(parts[2])
	default:
		return nil, fmt.Errorf("invalid table id %q, want dataset.table or project.dataset.table", tableID)
	}
	return &Sink{inserter: table.Inserter(), table: tableID}, nil
}

// NewSinkWithInserter wires an explicit inserter, used by tests.
func NewSinkWithInserter(inserter Inserter, table string) *Sink {
	return &Sink{inserter: inserter, table: table}
}

// Write performs one insert call for the batch and returns the number of
// rows written. Row-level errors from the backend become a hard error
// carrying the backend detail; the caller decides the blast radius.
func (s *Sink) Write(ctx context.Context, rows []collector.Row) (int, error) {
	savers := make([]*rowSaver, len(rows))
	for i := range rows {
		savers[i] = &rowSaver{row: &rows[i]}
	}

	if err := s.inserter.Put(ctx, savers); err != nil {
		var multi bigquery.PutMultiError
		if errors.As(err, &multi) {
			return 0, fmt.Errorf("%d of %d rows rejected by table %s: %v",
				len(multi), len(rows), s.table, multi)
		}
		return 0, fmt.Errorf("insert into table %s failed: %v", s.table, err)
	}

	klog.InfoS("Wrote rows to warehouse", "table", s.table, "rows", len(rows))
	return len(rows), nil
}

// rowSaver adapts a canonical row to the insert-rows JSON shape.
type rowSaver struct {
	row *collector.Row
}

func (r *rowSaver) Save() (map[string]bigquery.Value, string, error) {
	points := make([]bigquery.Value, 0, len(r.row.Points))
	for _, p := range r.row.Points {
		points = append(points, map[string]bigquery.Value{
			"metric_timestamp": p.Timestamp,
			"metric_value":     p.Value,
		})
	}
	return map[string]bigquery.Value{
		"run_date":        r.row.RunDate,
		"metric_name":     r.row.MetricName,
		"project_id":      r.row.ProjectID,
		"location":        r.row.Location,
		"cluster_name":    r.row.ClusterName,
		"namespace_name":  r.row.NamespaceName,
		"controller_name": r.row.ControllerName,
		"controller_type": r.row.ControllerType,
		"container_name":  r.row.ContainerName,
		"points_array":    points,
	}, "", nil
}
