// Package dispatch picks an operation for a component (random if
// unspecified, falling back to the first allowed operation and logging
// when a requested operation isn't valid for the component's type) and
// hands the call to the execution plane, retrying once on a transient
// remote error.
package dispatch

import (
	"context"
	"math/rand/v2"

	"github.com/avast/retry-go"
	"github.com/go-logr/logr"

	"github.com/JonasCGN/kuberbomber/internal/execplane"
	"github.com/JonasCGN/kuberbomber/internal/topology"
)

// Dispatcher binds a source of randomness and an execution plane
// together to carry out fault-injection operations.
type Dispatcher struct {
	Plane execplane.Plane
	Log   logr.Logger
	rng   *rand.Rand
}

// New returns a Dispatcher. seed1/seed2 should come from the same
// run-level seed pair the failure-time generator uses, so operation
// selection is reproducible across runs of the same seed.
func New(plane execplane.Plane, log logr.Logger, seed1, seed2 uint64) *Dispatcher {
	return &Dispatcher{
		Plane: plane,
		Log:   log,
		rng:   rand.New(rand.NewPCG(seed1, seed2)),
	}
}

// Dispatch carries out requestedOp against comp, or a random allowed
// operation if requestedOp is empty. If requestedOp is non-empty but
// not allowed for comp's type, it falls back to the first allowed
// operation and logs the substitution.
func (d *Dispatcher) Dispatch(ctx context.Context, comp *topology.Component, requestedOp string) (execplane.Result, string, error) {
	op := d.ResolveOperation(comp, requestedOp)

	var result execplane.Result
	err := retry.Do(
		func() error {
			var invokeErr error
			result, invokeErr = d.Plane.Invoke(ctx, comp, op)
			return invokeErr
		},
		retry.Attempts(2),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	return result, op, err
}

// ResolveOperation decides which operation would actually run for
// comp without invoking it: requestedOp if allowed, a random allowed
// operation if requestedOp is empty, or the first allowed operation
// (logging the substitution) if requestedOp isn't valid for comp's
// type. Callers that need to branch on the operation before dispatch
// — e.g. to route shutdown-class operations through the heal handler
// instead — resolve first, then pass the resolved operation back into
// Dispatch so it becomes a no-op passthrough.
func (d *Dispatcher) ResolveOperation(comp *topology.Component, requestedOp string) string {
	allowed := comp.Operations()
	if len(allowed) == 0 {
		return requestedOp
	}

	if requestedOp == "" {
		return allowed[d.rng.IntN(len(allowed))]
	}

	for _, op := range allowed {
		if op == requestedOp {
			return requestedOp
		}
	}

	fallback := allowed[0]
	d.Log.Info("requested operation not allowed for component type, falling back",
		"component", comp.Name, "type", comp.Type, "requested", requestedOp, "fallback", fallback)
	return fallback
}
