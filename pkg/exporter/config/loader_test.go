package config

import (
	"testing"
	"time"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("PROJECT_ID", "acme-prod")
	t.Setenv("BIGQUERY_TABLE", "metrics.workloads")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}

	if cfg.Project.ProjectID != "acme-prod" {
		t.Errorf("ProjectID = %q, want acme-prod", cfg.Project.ProjectID)
	}
	if cfg.Discovery.Window != 24*time.Hour {
		t.Errorf("Discovery.Window = %v, want 24h", cfg.Discovery.Window)
	}
	if cfg.Discovery.NamespaceFilter == "" {
		t.Error("expected a default namespace filter")
	}
	if cfg.Pipeline.Workers != 1 {
		t.Errorf("Pipeline.Workers = %d, want 1", cfg.Pipeline.Workers)
	}
	if cfg.Observability.MetricsEnabled {
		t.Error("metrics should be disabled by default")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("PROJECT_ID", "acme-prod")
	t.Setenv("BIGQUERY_TABLE", "other.dataset.table")
	t.Setenv("DISCOVERY_WINDOW", "6h")
	t.Setenv("NAMESPACE_FILTER", `resource.label."namespace_name" = starts_with("team-")`)
	t.Setenv("PIPELINE_WORKERS", "4")
	t.Setenv("KUBE_NAMESPACE_CHECK", "true")
	t.Setenv("METRICS_ENABLED", "true")
	t.Setenv("METRICS_PORT", "9102")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}

	if cfg.Discovery.Window != 6*time.Hour {
		t.Errorf("Discovery.Window = %v, want 6h", cfg.Discovery.Window)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("Pipeline.Workers = %d, want 4", cfg.Pipeline.Workers)
	}
	if !cfg.Discovery.KubeNamespaceCheck {
		t.Error("KubeNamespaceCheck should be enabled")
	}
	if cfg.Observability.MetricsPort != 9102 {
		t.Errorf("MetricsPort = %d, want 9102", cfg.Observability.MetricsPort)
	}
}

func TestLoadFromEnvInvalidValuesFallBack(t *testing.T) {
	t.Setenv("PROJECT_ID", "acme-prod")
	t.Setenv("BIGQUERY_TABLE", "metrics.workloads")
	t.Setenv("DISCOVERY_WINDOW", "not-a-duration")
	t.Setenv("PIPELINE_WORKERS", "many")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}
	if cfg.Discovery.Window != 24*time.Hour {
		t.Errorf("Discovery.Window = %v, want default 24h", cfg.Discovery.Window)
	}
	if cfg.Pipeline.Workers != 1 {
		t.Errorf("Pipeline.Workers = %d, want default 1", cfg.Pipeline.Workers)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Project:   ProjectConfig{ProjectID: "acme-prod", TableID: "metrics.workloads"},
			Discovery: DiscoveryConfig{Window: time.Hour},
			Pipeline:  PipelineConfig{Workers: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing project", mutate: func(c *Config) { c.Project.ProjectID = "" }, wantErr: true},
		{name: "missing table", mutate: func(c *Config) { c.Project.TableID = "" }, wantErr: true},
		{name: "zero window", mutate: func(c *Config) { c.Discovery.Window = 0 }, wantErr: true},
		{name: "negative window", mutate: func(c *Config) { c.Discovery.Window = -time.Hour }, wantErr: true},
		{name: "zero workers", mutate: func(c *Config) { c.Pipeline.Workers = 0 }, wantErr: true},
		{name: "bad metrics port", mutate: func(c *Config) {
			c.Observability.MetricsEnabled = true
			c.Observability.MetricsPort = 70000
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
