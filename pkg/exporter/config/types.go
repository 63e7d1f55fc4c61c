package config

import (
	"fmt"
	"time"
)

// Config holds all configuration for the metrics exporter
type Config struct {
	Project       ProjectConfig       `yaml:"project"`
	Discovery     DiscoveryConfig     `yaml:"discovery"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ProjectConfig identifies the monitoring scope and the warehouse target
type ProjectConfig struct {
	ProjectID string `yaml:"projectId"` // Cloud project queried for time series
	TableID   string `yaml:"tableId"`   // dataset.table or project.dataset.table
}

// DiscoveryConfig bounds the namespace discovery query
type DiscoveryConfig struct {
	Window             time.Duration `yaml:"window"`             // Lookback for the activity query
	NamespaceFilter    string        `yaml:"namespaceFilter"`    // Backend predicate ANDed into discovery
	KubeNamespaceCheck bool          `yaml:"kubeNamespaceCheck"` // Cross-check against live cluster namespaces
}

// PipelineConfig holds per-run pipeline settings
type PipelineConfig struct {
	CatalogPath string `yaml:"catalogPath"` // Optional YAML catalog replacing the default
	Workers     int    `yaml:"workers"`     // Namespace fan-out bound, 1 = sequential
	LedgerPath  string `yaml:"ledgerPath"`  // Optional SQLite run ledger location
}

// ObservabilityConfig holds configuration for monitoring the exporter itself
type ObservabilityConfig struct {
	MetricsEnabled bool `yaml:"metricsEnabled"`
	MetricsPort    int  `yaml:"metricsPort"`
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if c.Project.ProjectID == "" {
		return fmt.Errorf("project id is required")
	}
	if c.Project.TableID == "" {
		return fmt.Errorf("warehouse table id is required")
	}
	if c.Discovery.Window <= 0 {
		return fmt.Errorf("discovery window must be positive")
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline workers must be at least 1")
	}
	if c.Observability.MetricsEnabled && (c.Observability.MetricsPort < 1 || c.Observability.MetricsPort > 65535) {
		return fmt.Errorf("metrics port %d out of range", c.Observability.MetricsPort)
	}
	return nil
}
