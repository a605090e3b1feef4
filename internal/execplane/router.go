package execplane

import (
	"context"

	"github.com/JonasCGN/kuberbomber/internal/topology"
)

// Router dispatches to the Local backend for pod/container-level
// operations and the Remote backend for everything else (worker nodes,
// control-plane sub-components), so the rest of the code base can
// treat the execution plane as a single Plane regardless of which
// component type is being acted on.
//
// If FIS is configured, non-shutdown-class operations against a
// non-pod component are offered to it first, falling back to Remote
// when FIS has no experiment template for the resolved operation. FIS
// is opt-in: a nil FIS field preserves the original SSH/EC2-only
// routing.
type Router struct {
	Local  Plane
	Remote Plane
	FIS    *FIS
}

func (r *Router) Invoke(ctx context.Context, comp *topology.Component, operation string) (Result, error) {
	switch comp.Type {
	case topology.TypePod, topology.TypeContainer:
		return r.Local.Invoke(ctx, comp, operation)
	default:
		if r.FIS != nil && !topology.IsShutdownClass(operation) {
			if _, ok := r.FIS.ExperimentTemplateIDs[operation]; ok {
				return r.FIS.Invoke(ctx, comp, operation)
			}
		}
		return r.Remote.Invoke(ctx, comp, operation)
	}
}
