// Package config loads the harness configuration: global options, run
// defaults, and the host inventory that feeds host construction.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/drover-sh/drover/internal/host"
)

// Config represents the top-level harness configuration.
type Config struct {
	// Hosts maps declared host names to their host-specific values.
	Hosts map[string]host.Values `yaml:"hosts"`

	// Global holds values every host inherits unless shadowed.
	Global host.Values `yaml:"global,omitempty"`

	Defaults Defaults `yaml:"defaults"`
}

// Defaults holds run-wide settings.
type Defaults struct {
	// DryRun makes every command and transfer a no-op that echoes what
	// would have happened.
	DryRun bool `yaml:"dry_run"`

	// TraceLimit caps trailing output lines in failure messages.
	TraceLimit int `yaml:"trace_limit"`

	// Concurrency bounds parallel hosts in multi-host runs.
	Concurrency int `yaml:"concurrency"`

	// Timeout is the per-command deadline.
	Timeout Duration `yaml:"timeout"`
}

// Duration wraps time.Duration to support YAML unmarshaling from strings
// like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dur
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Hosts:  make(map[string]host.Values),
		Global: make(host.Values),
		Defaults: Defaults{
			TraceLimit:  10,
			Concurrency: 10,
			Timeout:     Duration{5 * time.Minute},
		},
	}
}

// DefaultConfigPath returns the default config file path.
// Respects $XDG_CONFIG_HOME if set, otherwise falls back to ~/.config.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir != "" {
		return filepath.Join(configDir, "drover", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "drover", "config.yaml")
}

// Load reads and parses a config YAML file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadDefault loads the config from the default path, falling back to the
// built-in defaults when no file exists.
func LoadDefault() (*Config, error) {
	path := DefaultConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Save writes the config to the given file path as YAML, creating parent
// directories if they don't exist.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks the config for logical errors.
func (c *Config) Validate() error {
	if c.Defaults.TraceLimit < 0 {
		return fmt.Errorf("trace_limit must be non-negative, got %d", c.Defaults.TraceLimit)
	}
	if c.Defaults.Concurrency < 0 {
		return fmt.Errorf("concurrency must be non-negative, got %d", c.Defaults.Concurrency)
	}
	if c.Defaults.Timeout.Duration < 0 {
		return fmt.Errorf("timeout must be non-negative, got %s", c.Defaults.Timeout)
	}

	for name, vals := range c.Hosts {
		if name == "" {
			return fmt.Errorf("host with empty name")
		}
		if vals == nil {
			return fmt.Errorf("host %q has no configuration", name)
		}
	}
	return nil
}

// HostByName constructs the Host for a declared inventory entry, merging
// platform defaults under its declared values over the global level.
func (c *Config) HostByName(name string) (*host.Host, error) {
	declared, ok := c.Hosts[name]
	if !ok {
		available := make([]string, 0, len(c.Hosts))
		for n := range c.Hosts {
			available = append(available, n)
		}
		if len(available) == 0 {
			return nil, fmt.Errorf("host %q not found (no hosts defined)", name)
		}
		return nil, fmt.Errorf("host %q not found (available: %v)", name, available)
	}
	return host.New(name, declared, c.Global), nil
}
