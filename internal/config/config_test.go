package config

import (
	"strings"
	"testing"
)

const validDoc = `{
	"experiment_config": {
		"applications": {"checkout": true},
		"worker_node": {"kubelet": true},
		"control_plane": {"etcd": true}
	},
	"mttf_config": {
		"pods": {"checkout": 100},
		"worker_node": {"kubelet": 50},
		"control_plane": {"etcd": 200}
	},
	"mttr_config": {
		"pods": {"checkout": 0.1}
	},
	"availability_criteria": {"checkout": 1},
	"duration": 24,
	"iterations": 5
}`

func TestParseValidDocument(t *testing.T) {
	cfg, err := Parse(strings.NewReader(validDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Iterations != 5 {
		t.Errorf("Iterations = %d, want 5", cfg.Iterations)
	}
	if cfg.DurationHours != 24 {
		t.Errorf("DurationHours = %v, want 24", cfg.DurationHours)
	}
	if cfg.DelaySeconds != defaultInterFailureDelaySeconds {
		t.Errorf("DelaySeconds = %v, want default %v", cfg.DelaySeconds, defaultInterFailureDelaySeconds)
	}
	if cfg.AvailabilityCriteria["checkout"] != 1 {
		t.Errorf("AvailabilityCriteria[checkout] = %d, want 1", cfg.AvailabilityCriteria["checkout"])
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	doc := `{"duration": 1, "iterations": 1, "bogus_field": true}`
	if _, err := Parse(strings.NewReader(doc)); err == nil {
		t.Fatal("expected an error for an unknown field")
	}
}

func TestValidateRejectsNonPositiveIterations(t *testing.T) {
	cfg := &TopologyConfig{DurationHours: 1, Iterations: 0}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for zero iterations")
	}
}

func TestValidateRejectsNegativeDuration(t *testing.T) {
	cfg := &TopologyConfig{DurationHours: -1, Iterations: 1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for negative duration")
	}
}

func TestValidateRejectsNegativeAvailabilityCriteria(t *testing.T) {
	cfg := &TopologyConfig{
		DurationHours:        1,
		Iterations:           1,
		AvailabilityCriteria: map[string]int{"checkout": -1},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a negative availability criterion")
	}
}

func TestSaveRoundTrips(t *testing.T) {
	cfg, err := Parse(strings.NewReader(validDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dir := t.TempDir()
	path := dir + "/experiment_config.json"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load after Save failed: %v", err)
	}
	if reloaded.Iterations != cfg.Iterations || reloaded.DurationHours != cfg.DurationHours {
		t.Errorf("reloaded config = %+v, want matching %+v", reloaded, cfg)
	}
}
