package catalog

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	monitoringpb "cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
)

// Kind selects which label bag supplies the controller identity fields for a
// metric. It is fixed at catalog load time instead of being re-derived from
// the metric name on every fetch.
type Kind string

const (
	// KindHPA sources controller identity from metric labels
	// (targetref_name, targetref_kind, container_name).
	KindHPA Kind = "hpa"
	// KindVPA sources controller name/kind from resource labels and the
	// container from metric labels.
	KindVPA Kind = "vpa"
	// KindController sources controller identity from the series metadata
	// system labels (top_level_controller_name/type).
	KindController Kind = "controller"
)

// KindForName infers the label-source kind from a catalog metric name.
// Matching is case-insensitive and positional-independent; "hpa" wins over
// "vpa" when both substrings appear.
func KindForName(name string) Kind {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "hpa"):
		return KindHPA
	case strings.Contains(lower, "vpa"):
		return KindVPA
	default:
		return KindController
	}
}

// QueryDescriptor holds the Cloud Monitoring query parameters for one catalog
// metric. Descriptors are immutable after load.
type QueryDescriptor struct {
	// MetricType is the Cloud Monitoring metric type, e.g.
	// "kubernetes.io/container/cpu/core_usage_time".
	MetricType string
	// Kind selects the label bag for controller identity.
	Kind Kind
	// Window is the lookback from the run timestamp.
	Window time.Duration
	// AlignmentPeriod is the per-series alignment grid.
	AlignmentPeriod time.Duration
	// Aligner resamples raw points before reduction.
	Aligner monitoringpb.Aggregation_Aligner
	// Reducer combines series within a group.
	Reducer monitoringpb.Aggregation_Reducer
	// GroupBy lists the aggregation group-by fields, in order.
	GroupBy []string
}

// Entry pairs a catalog metric name with its descriptor. Catalog order is
// processing order.
type Entry struct {
	Name       string
	Descriptor QueryDescriptor
}

// Catalog is the ordered set of metrics one run collects.
type Catalog []Entry

// descriptorSpec is the YAML shape of one catalog entry. Durations are
// strings ("168h") since yaml.v2 has no native duration support.
type descriptorSpec struct {
	Name            string   `yaml:"name"`
	MetricType      string   `yaml:"metricType"`
	Kind            string   `yaml:"kind"`
	Window          string   `yaml:"window"`
	AlignmentPeriod string   `yaml:"alignmentPeriod"`
	Aligner         string   `yaml:"aligner"`
	Reducer         string   `yaml:"reducer"`
	GroupBy         []string `yaml:"groupBy"`
}

type catalogSpec struct {
	Metrics []descriptorSpec `yaml:"metrics"`
}

// LoadFile reads a catalog definition from a YAML file, replacing the default
// catalog entirely.
func LoadFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %v", err)
	}
	var spec catalogSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %v", path, err)
	}
	if len(spec.Metrics) == 0 {
		return nil, fmt.Errorf("catalog file %s defines no metrics", path)
	}

	cat := make(Catalog, 0, len(spec.Metrics))
	for i, m := range spec.Metrics {
		entry, err := m.toEntry()
		if err != nil {
			return nil, fmt.Errorf("invalid catalog entry at index %d: %v", i, err)
		}
		cat = append(cat, entry)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

func (s descriptorSpec) toEntry() (Entry, error) {
	if s.Name == "" {
		return Entry{}, fmt.Errorf("metric name is required")
	}
	if s.MetricType == "" {
		return Entry{}, fmt.Errorf("metricType is required for %s", s.Name)
	}

	kind := Kind(s.Kind)
	switch kind {
	case KindHPA, KindVPA, KindController:
	case "":
		kind = KindForName(s.Name)
	default:
		return Entry{}, fmt.Errorf("unknown kind %q for %s", s.Kind, s.Name)
	}

	aligner, err := parseAligner(s.Aligner)
	if err != nil {
		return Entry{}, fmt.Errorf("%v for %s", err, s.Name)
	}
	reducer, err := parseReducer(s.Reducer)
	if err != nil {
		return Entry{}, fmt.Errorf("%v for %s", err, s.Name)
	}

	window, err := parseDuration(s.Window, "window")
	if err != nil {
		return Entry{}, fmt.Errorf("%v for %s", err, s.Name)
	}
	alignmentPeriod, err := parseDuration(s.AlignmentPeriod, "alignmentPeriod")
	if err != nil {
		return Entry{}, fmt.Errorf("%v for %s", err, s.Name)
	}

	return Entry{
		Name: s.Name,
		Descriptor: QueryDescriptor{
			MetricType:      s.MetricType,
			Kind:            kind,
			Window:          window,
			AlignmentPeriod: alignmentPeriod,
			Aligner:         aligner,
			Reducer:         reducer,
			GroupBy:         s.GroupBy,
		},
	}, nil
}

func parseDuration(value, field string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", field, value)
	}
	return d, nil
}

func parseAligner(name string) (monitoringpb.Aggregation_Aligner, error) {
	v, ok := monitoringpb.Aggregation_Aligner_value[name]
	if !ok {
		return 0, fmt.Errorf("unknown aligner %q", name)
	}
	return monitoringpb.Aggregation_Aligner(v), nil
}

func parseReducer(name string) (monitoringpb.Aggregation_Reducer, error) {
	v, ok := monitoringpb.Aggregation_Reducer_value[name]
	if !ok {
		return 0, fmt.Errorf("unknown reducer %q", name)
	}
	return monitoringpb.Aggregation_Reducer(v), nil
}

// Validate checks descriptor invariants over the whole catalog.
func (c Catalog) Validate() error {
	seen := make(map[string]bool, len(c))
	for _, e := range c {
		if seen[e.Name] {
			return fmt.Errorf("duplicate catalog metric %q", e.Name)
		}
		seen[e.Name] = true
		d := e.Descriptor
		if d.Window <= 0 {
			return fmt.Errorf("window for %s must be positive", e.Name)
		}
		if d.AlignmentPeriod <= 0 {
			return fmt.Errorf("alignment period for %s must be positive", e.Name)
		}
	}
	return nil
}

// Group-by fields shared by the usage metrics, keyed by the top-level
// controller the container belongs to.
var controllerGroupBy = []string{
	`resource.label."container_name"`,
	`metadata.system_labels."top_level_controller_name"`,
	`metadata.system_labels."top_level_controller_type"`,
}

var vpaGroupBy = []string{
	`resource.label."controller_name"`,
	`resource.label."controller_kind"`,
	`metric.label."container_name"`,
}

var hpaGroupBy = []string{
	`metric.label."targetref_name"`,
	`metric.label."targetref_kind"`,
	`metric.label."container_name"`,
}

// Default returns the built-in catalog: container CPU/memory usage and
// request metrics, VPA per-replica recommendations, and HPA target
// utilization custom metrics.
func Default() Catalog {
	return Catalog{
		{
			Name: "cpu_usage",
			Descriptor: QueryDescriptor{
				MetricType:      "kubernetes.io/container/cpu/core_usage_time",
				Kind:            KindController,
				Window:          14 * 24 * time.Hour,
				AlignmentPeriod: time.Hour,
				Aligner:         monitoringpb.Aggregation_ALIGN_RATE,
				Reducer:         monitoringpb.Aggregation_REDUCE_MEAN,
				GroupBy:         controllerGroupBy,
			},
		},
		{
			Name: "cpu_request_cores",
			Descriptor: QueryDescriptor{
				MetricType:      "kubernetes.io/container/cpu/request_cores",
				Kind:            KindController,
				Window:          14 * 24 * time.Hour,
				AlignmentPeriod: time.Hour,
				Aligner:         monitoringpb.Aggregation_ALIGN_MEAN,
				Reducer:         monitoringpb.Aggregation_REDUCE_MEAN,
				GroupBy:         controllerGroupBy,
			},
		},
		{
			Name: "memory_usage",
			Descriptor: QueryDescriptor{
				MetricType:      "kubernetes.io/container/memory/used_bytes",
				Kind:            KindController,
				Window:          14 * 24 * time.Hour,
				AlignmentPeriod: time.Hour,
				Aligner:         monitoringpb.Aggregation_ALIGN_MAX,
				Reducer:         monitoringpb.Aggregation_REDUCE_MAX,
				GroupBy:         controllerGroupBy,
			},
		},
		{
			Name: "memory_request_bytes",
			Descriptor: QueryDescriptor{
				MetricType:      "kubernetes.io/container/memory/request_bytes",
				Kind:            KindController,
				Window:          14 * 24 * time.Hour,
				AlignmentPeriod: time.Hour,
				Aligner:         monitoringpb.Aggregation_ALIGN_MEAN,
				Reducer:         monitoringpb.Aggregation_REDUCE_MEAN,
				GroupBy:         controllerGroupBy,
			},
		},
		{
			Name: "vpa_cpu_recommendation",
			Descriptor: QueryDescriptor{
				MetricType:      "kubernetes.io/autoscaler/container/cpu/per_replica_recommended_request_cores",
				Kind:            KindVPA,
				Window:          14 * 24 * time.Hour,
				AlignmentPeriod: time.Hour,
				Aligner:         monitoringpb.Aggregation_ALIGN_MEAN,
				Reducer:         monitoringpb.Aggregation_REDUCE_MEAN,
				GroupBy:         vpaGroupBy,
			},
		},
		{
			Name: "vpa_memory_recommendation",
			Descriptor: QueryDescriptor{
				MetricType:      "kubernetes.io/autoscaler/container/memory/per_replica_recommended_request_bytes",
				Kind:            KindVPA,
				Window:          14 * 24 * time.Hour,
				AlignmentPeriod: time.Hour,
				Aligner:         monitoringpb.Aggregation_ALIGN_MAX,
				Reducer:         monitoringpb.Aggregation_REDUCE_MAX,
				GroupBy:         vpaGroupBy,
			},
		},
		{
			Name: "hpa_cpu_target_utilization",
			Descriptor: QueryDescriptor{
				MetricType:      "custom.googleapis.com/podautoscaler/hpa/cpu/target_utilization",
				Kind:            KindHPA,
				Window:          14 * 24 * time.Hour,
				AlignmentPeriod: time.Hour,
				Aligner:         monitoringpb.Aggregation_ALIGN_MEAN,
				Reducer:         monitoringpb.Aggregation_REDUCE_MEAN,
				GroupBy:         hpaGroupBy,
			},
		},
		{
			Name: "hpa_memory_target_utilization",
			Descriptor: QueryDescriptor{
				MetricType:      "custom.googleapis.com/podautoscaler/hpa/memory/target_utilization",
				Kind:            KindHPA,
				Window:          14 * 24 * time.Hour,
				AlignmentPeriod: time.Hour,
				Aligner:         monitoringpb.Aggregation_ALIGN_MEAN,
				Reducer:         monitoringpb.Aggregation_REDUCE_MEAN,
				GroupBy:         hpaGroupBy,
			},
		},
	}
}
