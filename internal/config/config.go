// Package config loads the pipeline configuration file. Configuration is
// read once before orchestration begins and is immutable thereafter.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/stepflow/pkg/api"
)

// Config is the top-level pipeline configuration.
type Config struct {
	App   AppConfig   `yaml:"app"`
	Paths PathsConfig `yaml:"paths"`
	Steps StepsConfig `yaml:"steps"`
}

// AppConfig names the application for logging.
type AppConfig struct {
	Name string `yaml:"name"`
}

// PathsConfig declares the directory roots of the run namespace and the
// pipeline's input and output locations. All directories are resolved
// relative to Root unless absolute.
type PathsConfig struct {
	Root       string      `yaml:"root"`
	Input      InputConfig `yaml:"input"`
	Checkpoint DirConfig   `yaml:"checkpoint"`
	State      DirConfig   `yaml:"state"`
	Metrics    DirConfig   `yaml:"metrics"`
	Output     DirConfig   `yaml:"output"`
}

// DirConfig holds a single directory path.
type DirConfig struct {
	Dir string `yaml:"dir"`
}

// InputConfig locates the source data file.
type InputConfig struct {
	Dir         string `yaml:"dir"`
	WeatherFile string `yaml:"weather_file"`
}

// StepsConfig declares the pipeline order, resume dependencies and
// per-step parameters.
type StepsConfig struct {
	ExecutionOrder []string                  `yaml:"execution_order"`
	Dependencies   map[string][]string       `yaml:"dependencies"`
	SaveMetadata   bool                      `yaml:"save_metadata"`
	Params         map[string]api.StepConfig `yaml:"params"`
}

// Load reads and validates the configuration at path. All failures are
// reported as ConfigError; nothing about the run has happened yet.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &api.ConfigError{Path: path, Err: err}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &api.ConfigError{Path: path, Err: err}
	}

	if err := cfg.validate(); err != nil {
		return nil, &api.ConfigError{Path: path, Err: err}
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Paths.Root == "" {
		return errors.New("paths.root is required")
	}
	if len(c.Steps.ExecutionOrder) == 0 {
		return errors.New("steps.execution_order must not be empty")
	}

	seen := make(map[string]struct{}, len(c.Steps.ExecutionOrder))
	pos := make(map[string]int, len(c.Steps.ExecutionOrder))
	for i, step := range c.Steps.ExecutionOrder {
		if step == "" {
			return fmt.Errorf("steps.execution_order[%d] is empty", i)
		}
		if _, dup := seen[step]; dup {
			return fmt.Errorf("duplicate step in execution_order: %s", step)
		}
		seen[step] = struct{}{}
		pos[step] = i
	}

	for step, deps := range c.Steps.Dependencies {
		i, ok := pos[step]
		if !ok {
			return fmt.Errorf("dependencies declared for unknown step: %s", step)
		}
		for _, dep := range deps {
			j, ok := pos[dep]
			if !ok {
				return fmt.Errorf("step %s depends on unknown step %s", step, dep)
			}
			if j >= i {
				return fmt.Errorf("step %s depends on %s, which does not precede it", step, dep)
			}
		}
	}

	return nil
}

// NamespaceRoot returns the run namespace root directory.
func (c *Config) NamespaceRoot() string {
	return c.Paths.Root
}

// InputFile returns the full path of the source data file.
func (c *Config) InputFile() string {
	return c.resolve(filepath.Join(c.Paths.Input.Dir, c.Paths.Input.WeatherFile))
}

// OutputDir returns the full path of the output directory.
func (c *Config) OutputDir() string {
	dir := c.Paths.Output.Dir
	if dir == "" {
		dir = "output"
	}
	return c.resolve(dir)
}

// MetricsDir returns the full path of the metrics directory.
func (c *Config) MetricsDir() string {
	dir := c.Paths.Metrics.Dir
	if dir == "" {
		dir = "metrics"
	}
	return c.resolve(dir)
}

// StepParams returns the parameter map for step, never nil.
func (c *Config) StepParams(step string) api.StepConfig {
	params := api.StepConfig{}
	for k, v := range c.Steps.Params[step] {
		params[k] = v
	}
	return params
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Paths.Root, path)
}
