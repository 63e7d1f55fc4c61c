package collector

// Point is one sampled value inside a canonical row. The timestamp keeps
// microsecond precision; the row-level run date does not.
type Point struct {
	Timestamp string
	Value     float64
}

// Row is the canonical output record, independent of which metric produced
// it. Rows are built once per returned series and never mutated afterwards.
type Row struct {
	RunDate        string
	MetricName     string
	ProjectID      string
	Location       string
	ClusterName    string
	NamespaceName  string
	ControllerName string
	ControllerType string
	ContainerName  string
	Points         []Point
}

const (
	// RunDateFormat renders the shared per-run timestamp.
	RunDateFormat = "2006-01-02 15:04:05"
	// PointTimeFormat renders point timestamps with sub-second precision.
	PointTimeFormat = "2006-01-02 15:04:05.000000"
)
