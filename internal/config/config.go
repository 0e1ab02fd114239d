// Package config loads the plant configuration: shift length, simulation
// defaults, trace field aliases and recommendation thresholds.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"troquel/internal/vsm"
)

// Config is the YAML document read at startup. Fields left out of the file
// keep their defaults.
type Config struct {
	DataDir           string              `yaml:"data_dir"`
	TracesFile        string              `yaml:"traces_file"`
	OrdersFile        string              `yaml:"orders_file"`
	ShiftMinutes      float64             `yaml:"shift_minutes"`
	SimulatedQuantity int                 `yaml:"simulated_quantity"`
	FinishedStatus    string              `yaml:"finished_status"`
	DefaultStages     []string            `yaml:"default_stages"`
	StageDataKeys     []string            `yaml:"stage_data_keys"`
	StageKeys         []string            `yaml:"stage_keys"`
	OrderKeys         []string            `yaml:"order_keys"`
	TimestampKeys     []string            `yaml:"timestamp_keys"`
	Aliases           map[string][]string `yaml:"aliases"`
	Thresholds        vsm.Thresholds      `yaml:"thresholds"`
	// TrustProxy makes the ingest rate limit key on X-Forwarded-For and
	// X-Real-IP instead of the connection address.
	TrustProxy        bool                `yaml:"trust_proxy"`
}

// Default returns the built-in configuration.
func Default() *Config {
	n := vsm.DefaultNormalizer()
	aliases := make(map[string][]string, len(n.Aliases))
	for m, a := range n.Aliases {
		aliases[string(m)] = a
	}
	return &Config{
		DataDir:           "data",
		TracesFile:        "traces.json",
		OrdersFile:        "production_orders.json",
		ShiftMinutes:      vsm.DefaultShiftMinutes,
		SimulatedQuantity: 120,
		FinishedStatus:    "finished",
		DefaultStages:     []string{"Reception", "Warehouse", "Preparation", "Printing", "Varnishing", "Cutting", "Packing"},
		StageDataKeys:     n.StageDataKeys,
		StageKeys:         n.StageKeys,
		OrderKeys:         n.OrderKeys,
		TimestampKeys:     n.TimestampKeys,
		Aliases:           aliases,
		Thresholds:        vsm.DefaultThresholds(),
	}
}

// Load reads path over the defaults. An empty path or a missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg and validates the result. Alias lists given in
// the document replace the default list for that metric only.
func Parse(data []byte, cfg *Config) error {
	defaults := cfg.Aliases
	cfg.Aliases = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	merged := make(map[string][]string, len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range cfg.Aliases {
		merged[k] = v
	}
	cfg.Aliases = merged
	return cfg.Validate()
}

// Validate checks the values the pipeline depends on.
func (c *Config) Validate() error {
	var problems []string
	if c.ShiftMinutes <= 0 {
		problems = append(problems, "shift_minutes must be positive")
	}
	if c.SimulatedQuantity < 0 {
		problems = append(problems, "simulated_quantity must not be negative")
	}
	t := c.Thresholds
	if t.MinEfficiency < 0 || t.MaxIdleTime < 0 || t.MaxSetupTime < 0 || t.MaxRejects < 0 || t.MaxErrors < 0 {
		problems = append(problems, "thresholds must not be negative")
	}
	known := map[string]bool{}
	for _, m := range vsm.Metrics {
		known[string(m)] = true
	}
	for k, v := range c.Aliases {
		if !known[k] {
			problems = append(problems, fmt.Sprintf("aliases: unknown metric %q", k))
			continue
		}
		if len(v) == 0 {
			problems = append(problems, fmt.Sprintf("aliases: %s has no field names", k))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Normalizer builds the trace normalizer described by the configuration.
func (c *Config) Normalizer() *vsm.Normalizer {
	n := vsm.DefaultNormalizer()
	override := vsm.AliasTable{}
	for k, v := range c.Aliases {
		override[vsm.Metric(k)] = v
	}
	n.Aliases = n.Aliases.Merge(override)
	if len(c.StageDataKeys) > 0 {
		n.StageDataKeys = c.StageDataKeys
	}
	if len(c.StageKeys) > 0 {
		n.StageKeys = c.StageKeys
	}
	if len(c.OrderKeys) > 0 {
		n.OrderKeys = c.OrderKeys
	}
	if len(c.TimestampKeys) > 0 {
		n.TimestampKeys = c.TimestampKeys
	}
	return n
}

// Options returns the analysis options for the pipeline.
func (c *Config) Options() vsm.Options {
	return vsm.Options{
		ShiftMinutes:      c.ShiftMinutes,
		Thresholds:        c.Thresholds,
		DefaultStages:     c.DefaultStages,
		SimulatedQuantity: c.SimulatedQuantity,
	}
}
