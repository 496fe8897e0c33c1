// Package config loads the tap's YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pitlane/simtap/internal/client"
	"github.com/pitlane/simtap/internal/sdk"
	"github.com/pitlane/simtap/internal/shm"
)

type Config struct {
	Mapping   MappingConfig   `yaml:"mapping"`
	Signal    SignalConfig    `yaml:"signal"`
	Decode    DecodeConfig    `yaml:"decode"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Record    RecordConfig    `yaml:"record"`
}

type MappingConfig struct {
	Path string `yaml:"path"`
}

type SignalConfig struct {
	Path string `yaml:"path"`
}

type DecodeConfig struct {
	// Policy is "skip" or "abort"; what one bad variable descriptor
	// does to the snapshot it sits in.
	Policy string `yaml:"policy"`

	// Reverify enables the post-read tick re-check.
	Reverify bool `yaml:"reverify"`

	// Values decodes every variable's samples, not just descriptors.
	Values bool `yaml:"values"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type BroadcastConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type RecordConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads, defaults, and validates the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Mapping.Path == "" {
		c.Mapping.Path = shm.DefaultRegionPath(sdk.DefaultMappingName)
	}
	if c.Signal.Path == "" {
		c.Signal.Path = shm.DefaultRegionPath(sdk.DefaultSignalName)
	}
	if c.Decode.Policy == "" {
		c.Decode.Policy = string(client.PolicySkip)
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9109"
	}
	if c.Broadcast.Addr == "" {
		c.Broadcast.Addr = ":8087"
	}
}

func (c *Config) validate() error {
	switch client.Policy(c.Decode.Policy) {
	case client.PolicySkip, client.PolicyAbort:
	default:
		return fmt.Errorf("decode.policy %q: must be %q or %q", c.Decode.Policy, client.PolicySkip, client.PolicyAbort)
	}
	if c.Record.Enabled && c.Record.Path == "" {
		return fmt.Errorf("record.enabled requires record.path")
	}
	if c.Record.Enabled && !c.Decode.Values {
		return fmt.Errorf("record.enabled requires decode.values")
	}
	return nil
}
