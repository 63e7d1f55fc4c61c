package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"k8s.io/klog/v2"
)

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Project: ProjectConfig{
			ProjectID: os.Getenv("PROJECT_ID"),
			TableID:   os.Getenv("BIGQUERY_TABLE"),
		},
		Discovery: DiscoveryConfig{
			Window:             getDurationOrDefault("DISCOVERY_WINDOW", 24*time.Hour),
			NamespaceFilter:    getEnvOrDefault("NAMESPACE_FILTER", `resource.label."namespace_name" != "kube-system"`),
			KubeNamespaceCheck: getBoolOrDefault("KUBE_NAMESPACE_CHECK", false),
		},
		Pipeline: PipelineConfig{
			CatalogPath: os.Getenv("CATALOG_PATH"),
			Workers:     getIntOrDefault("PIPELINE_WORKERS", 1),
			LedgerPath:  os.Getenv("LEDGER_PATH"),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getBoolOrDefault("METRICS_ENABLED", false),
			MetricsPort:    getIntOrDefault("METRICS_PORT", 9090),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}

	klog.V(2).InfoS("Loaded configuration",
		"projectID", cfg.Project.ProjectID,
		"tableID", cfg.Project.TableID,
		"discoveryWindow", cfg.Discovery.Window,
		"workers", cfg.Pipeline.Workers,
		"kubeNamespaceCheck", cfg.Discovery.KubeNamespaceCheck)

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		klog.InfoS("Invalid integer value, using default", "key", key, "default", defaultValue)
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		klog.InfoS("Invalid boolean value, using default", "key", key, "default", defaultValue)
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		klog.InfoS("Invalid duration value, using default", "key", key, "default", defaultValue)
	}
	return defaultValue
}
