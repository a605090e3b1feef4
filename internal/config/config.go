// Package config loads the topology configuration file: the JSON
// document naming which applications, worker nodes and control-plane
// sub-components are under test, their failure/recovery rates, and the
// run's duration and iteration count.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// TopologyConfig is the top-level configuration document shape.
type TopologyConfig struct {
	ExperimentConfig     ExperimentConfig  `json:"experiment_config"`
	MTTFConfig           RatesConfig       `json:"mttf_config"`
	MTTRConfig           RatesConfig       `json:"mttr_config"`
	AvailabilityCriteria map[string]int    `json:"availability_criteria"`
	DurationHours        float64           `json:"duration"`
	Iterations           int               `json:"iterations"`
	DelaySeconds         float64           `json:"delay,omitempty"`
}

// ExperimentConfig carries the per-category enablement flags.
type ExperimentConfig struct {
	Applications map[string]bool `json:"applications"`
	WorkerNode   map[string]bool `json:"worker_node"`
	ControlPlane map[string]bool `json:"control_plane"`
}

// RatesConfig is the shared shape of mttf_config/mttr_config: an
// identifier or bare-type key to an hours value.
type RatesConfig struct {
	Pods         map[string]float64 `json:"pods"`
	WorkerNode   map[string]float64 `json:"worker_node"`
	ControlPlane map[string]float64 `json:"control_plane"`
}

const defaultInterFailureDelaySeconds = 60

// Load reads and validates a topology configuration file.
func Load(path string) (*TopologyConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening topology config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a topology configuration from a reader.
func Parse(r io.Reader) (*TopologyConfig, error) {
	var cfg TopologyConfig
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding topology config: %w", err)
	}
	if cfg.DelaySeconds == 0 {
		cfg.DelaySeconds = defaultInterFailureDelaySeconds
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects a configuration before any iteration begins rather
// than failing partway through a run.
func (c *TopologyConfig) Validate() error {
	if c.DurationHours < 0 {
		return fmt.Errorf("duration must be >= 0, got %v", c.DurationHours)
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be > 0, got %d", c.Iterations)
	}
	if c.DelaySeconds < 0 {
		return fmt.Errorf("delay must be >= 0, got %v", c.DelaySeconds)
	}
	for app, min := range c.AvailabilityCriteria {
		if min < 0 {
			return fmt.Errorf("availability_criteria[%s] must be >= 0, got %d", app, min)
		}
	}
	return nil
}

// Save writes the configuration back out as JSON, used by the
// Reporter to emit experiment_config.json alongside a run's results.
func (c *TopologyConfig) Save(path string) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling topology config: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}
