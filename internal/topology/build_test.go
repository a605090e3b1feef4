package topology

import (
	"testing"

	"github.com/JonasCGN/kuberbomber/internal/config"
)

func TestBuildExpandsWorkerNodeSubComponents(t *testing.T) {
	cfg := &config.TopologyConfig{
		ExperimentConfig: config.ExperimentConfig{
			Applications: map[string]bool{"foo-app": true},
			WorkerNode:   map[string]bool{"ip-10-0-0-5": true},
		},
		MTTFConfig: config.RatesConfig{
			Pods:       map[string]float64{"foo-app": 10},
			WorkerNode: map[string]float64{"worker_node": 500, "wn_kubelet": 50},
		},
		AvailabilityCriteria: map[string]int{"foo-app": 1},
		DurationHours:        100,
		Iterations:           1,
	}

	components, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	byName := map[string]*Component{}
	for _, c := range components {
		byName[c.Name] = c
	}

	if len(components) != 5 { // pod + worker-node + runtime + proxy + kubelet
		t.Fatalf("got %d components, want 5: %+v", len(components), components)
	}

	pod, ok := byName["pod-foo-app"]
	if !ok {
		t.Fatalf("missing pod component")
	}
	if pod.MTTFHours != 10 {
		t.Errorf("pod MTTF = %v, want 10", pod.MTTFHours)
	}

	kubelet, ok := byName["wn_kubelet-ip-10-0-0-5"]
	if !ok {
		t.Fatalf("missing kubelet sub-component")
	}
	if kubelet.Type != TypeWorkerKubelet {
		t.Errorf("kubelet type = %v", kubelet.Type)
	}
	if kubelet.MTTFHours != 50 {
		t.Errorf("kubelet MTTF = %v, want 50 (exact bare-type override)", kubelet.MTTFHours)
	}
	if kubelet.ParentID != "worker_node-ip-10-0-0-5" {
		t.Errorf("kubelet parent = %q", kubelet.ParentID)
	}

	runtime, ok := byName["wn_runtime-ip-10-0-0-5"]
	if !ok {
		t.Fatalf("missing runtime sub-component")
	}
	if runtime.MTTFHours != 500 {
		t.Errorf("runtime MTTF = %v, want 500 (built-in default for worker-runtime)", runtime.MTTFHours)
	}
}
