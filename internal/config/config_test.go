package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/petrijr/stepflow/pkg/api"
)

const sampleConfig = `
app:
  name: weather-etl
paths:
  root: /tmp/etl
  input:
    dir: input
    weather_file: weather.json
  checkpoint:
    dir: checkpoints
  state:
    dir: state
  metrics:
    dir: metrics
  output:
    dir: output
steps:
  execution_order:
    - extract
    - transform
    - load
  dependencies:
    transform:
      - extract
    load:
      - transform
  save_metadata: true
  params:
    transform:
      max_workers: 4
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadResolvesPaths(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.App.Name != "weather-etl" {
		t.Fatalf("app name = %q", cfg.App.Name)
	}
	if got := cfg.NamespaceRoot(); got != "/tmp/etl" {
		t.Fatalf("NamespaceRoot = %q", got)
	}
	if got := cfg.InputFile(); got != filepath.Join("/tmp/etl", "input", "weather.json") {
		t.Fatalf("InputFile = %q", got)
	}
	if got := cfg.OutputDir(); got != filepath.Join("/tmp/etl", "output") {
		t.Fatalf("OutputDir = %q", got)
	}
	if got := cfg.MetricsDir(); got != filepath.Join("/tmp/etl", "metrics") {
		t.Fatalf("MetricsDir = %q", got)
	}
}

func TestLoadStepParams(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	params := cfg.StepParams("transform")
	if params.Int("max_workers", 0) != 4 {
		t.Fatalf("max_workers = %v", params["max_workers"])
	}

	// Steps without declared params still get a usable map.
	empty := cfg.StepParams("extract")
	if empty == nil {
		t.Fatalf("StepParams returned nil")
	}
	empty["mutated"] = true
	if _, leaked := cfg.StepParams("extract")["mutated"]; leaked {
		t.Fatalf("StepParams leaks internal state")
	}
}

func TestLoadRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{
			name: "missing root",
			body: "steps:\n  execution_order:\n    - extract\n",
		},
		{
			name: "empty order",
			body: "paths:\n  root: /tmp/etl\nsteps:\n  execution_order: []\n",
		},
		{
			name: "duplicate step",
			body: "paths:\n  root: /tmp/etl\nsteps:\n  execution_order:\n    - a\n    - a\n",
		},
		{
			name: "dependency on later step",
			body: "paths:\n  root: /tmp/etl\nsteps:\n  execution_order:\n    - a\n    - b\n  dependencies:\n    a:\n      - b\n",
		},
		{
			name: "unknown dependency",
			body: "paths:\n  root: /tmp/etl\nsteps:\n  execution_order:\n    - a\n  dependencies:\n    a:\n      - ghost\n",
		},
		{
			name: "not yaml",
			body: "{{nope",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			var cfgErr *api.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Load error = %v, want ConfigError", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	var cfgErr *api.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Load error = %v, want ConfigError", err)
	}
}
