package topology

import (
	"fmt"
	"sort"

	"github.com/JonasCGN/kuberbomber/internal/config"
)

// defaultMTTFHours are the industry-standard fallbacks used when a
// run's topology configuration doesn't override a given type.
var defaultMTTFHours = map[ComponentType]float64{
	TypePod:           100,
	TypeContainer:     100,
	TypeWorkerNode:    500,
	TypeWorkerRuntime: 500,
	TypeWorkerProxy:   500,
	TypeWorkerKubelet: 500,
	TypeControlPlane:  800,
	TypeCPAPIServer:   800,
	TypeCPManager:     800,
	TypeCPScheduler:   800,
	TypeCPStore:       800,
}

// bareTypeKey returns the configuration-file key used for a
// component's type when looking up a bare-type fallback rate.
func bareTypeKey(t ComponentType) string {
	switch t {
	case TypeWorkerNode:
		return "worker_node"
	case TypeWorkerRuntime:
		return "wn_runtime"
	case TypeWorkerProxy:
		return "wn_proxy"
	case TypeWorkerKubelet:
		return "wn_kubelet"
	case TypeControlPlane:
		return "control_plane"
	case TypeCPAPIServer:
		return "cp_apiserver"
	case TypeCPManager:
		return "cp_manager"
	case TypeCPScheduler:
		return "cp_scheduler"
	case TypeCPStore:
		return "cp_store"
	default:
		return string(t)
	}
}

// resolveRate implements the "full identifier, else bare type" lookup
// rule shared by mttf_config and mttr_config.
func resolveRate(rates map[string]float64, id string, t ComponentType) (float64, bool) {
	if v, ok := rates[id]; ok {
		return v, true
	}
	if v, ok := rates[bareTypeKey(t)]; ok {
		return v, true
	}
	return 0, false
}

// Build constructs the flat component table from a topology
// configuration. Enabled worker nodes and control planes each expand
// into their sub-components (kubelet/proxy/runtime, or
// apiserver/manager/scheduler/store).
func Build(cfg *config.TopologyConfig) ([]*Component, error) {
	var components []*Component
	byName := map[string]*Component{}

	add := func(c *Component) {
		components = append(components, c)
		byName[c.Name] = c
	}

	mttf := func(id string, t ComponentType) float64 {
		if v, ok := resolveRate(mttfMap(cfg, t), id, t); ok {
			return v
		}
		return defaultMTTFHours[t]
	}
	mttr := func(id string, t ComponentType) (float64, bool) {
		return resolveRate(mttrMap(cfg, t), id, t)
	}

	for app, enabled := range cfg.ExperimentConfig.Applications {
		if !enabled {
			continue
		}
		name := "pod-" + app
		c := &Component{Name: name, Type: TypePod, MTTFHours: mttf(app, TypePod), Status: StatusHealthy}
		if v, ok := mttr(app, TypePod); ok {
			c.MTTRHours, c.HasMTTR = v, true
		}
		add(c)
	}

	for node, enabled := range cfg.ExperimentConfig.WorkerNode {
		if !enabled {
			continue
		}
		nodeComponentName := "worker_node-" + node
		wn := &Component{Name: nodeComponentName, Type: TypeWorkerNode, MTTFHours: mttf(node, TypeWorkerNode), Status: StatusHealthy}
		if v, ok := mttr(node, TypeWorkerNode); ok {
			wn.MTTRHours, wn.HasMTTR = v, true
		}
		add(wn)

		for _, sub := range []ComponentType{TypeWorkerRuntime, TypeWorkerProxy, TypeWorkerKubelet} {
			id := bareTypeKey(sub) + "-" + node
			c := &Component{Name: id, Type: sub, MTTFHours: mttf(id, sub), ParentID: nodeComponentName, Status: StatusHealthy}
			if v, ok := mttr(id, sub); ok {
				c.MTTRHours, c.HasMTTR = v, true
			}
			add(c)
		}
	}

	for cp, enabled := range cfg.ExperimentConfig.ControlPlane {
		if !enabled {
			continue
		}
		cpComponentName := "control_plane-" + cp
		cpComp := &Component{Name: cpComponentName, Type: TypeControlPlane, MTTFHours: mttf(cp, TypeControlPlane), Status: StatusHealthy}
		if v, ok := mttr(cp, TypeControlPlane); ok {
			cpComp.MTTRHours, cpComp.HasMTTR = v, true
		}
		add(cpComp)

		for _, sub := range []ComponentType{TypeCPAPIServer, TypeCPManager, TypeCPScheduler, TypeCPStore} {
			id := bareTypeKey(sub) + "-" + cp
			c := &Component{Name: id, Type: sub, MTTFHours: mttf(id, sub), ParentID: cpComponentName, Status: StatusHealthy}
			if v, ok := mttr(id, sub); ok {
				c.MTTRHours, c.HasMTTR = v, true
			}
			add(c)
		}
	}

	// Deterministic order: sort by name so event-stream determinism
	// under a fixed seed doesn't depend on Go's unspecified
	// map-iteration order.
	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	for _, c := range components {
		if err := c.Validate(byName); err != nil {
			return nil, fmt.Errorf("invalid topology: %w", err)
		}
	}
	return components, nil
}

func mttfMap(cfg *config.TopologyConfig, t ComponentType) map[string]float64 {
	switch t {
	case TypePod, TypeContainer:
		return cfg.MTTFConfig.Pods
	case TypeWorkerNode, TypeWorkerRuntime, TypeWorkerProxy, TypeWorkerKubelet:
		return cfg.MTTFConfig.WorkerNode
	default:
		return cfg.MTTFConfig.ControlPlane
	}
}

func mttrMap(cfg *config.TopologyConfig, t ComponentType) map[string]float64 {
	switch t {
	case TypePod, TypeContainer:
		return cfg.MTTRConfig.Pods
	case TypeWorkerNode, TypeWorkerRuntime, TypeWorkerProxy, TypeWorkerKubelet:
		return cfg.MTTRConfig.WorkerNode
	default:
		return cfg.MTTRConfig.ControlPlane
	}
}
