package dispatch

import (
	"context"
	"testing"

	"github.com/go-logr/logr"

	"github.com/JonasCGN/kuberbomber/internal/execplane"
	"github.com/JonasCGN/kuberbomber/internal/topology"
)

type fakePlane struct {
	lastOp string
	calls  int
	fail   bool
}

func (f *fakePlane) Invoke(_ context.Context, _ *topology.Component, operation string) (execplane.Result, error) {
	f.lastOp = operation
	f.calls++
	if f.fail {
		return execplane.Result{}, context.DeadlineExceeded
	}
	return execplane.Result{Success: true}, nil
}

func newTestComponent() *topology.Component {
	return &topology.Component{Name: "wn_kubelet-node1", Type: topology.TypeWorkerKubelet}
}

func TestDispatchUsesRequestedOperationWhenAllowed(t *testing.T) {
	plane := &fakePlane{}
	d := New(plane, logr.Discard(), 1, 2)

	_, op, err := d.Dispatch(context.Background(), newTestComponent(), topology.OpKillKubelet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op != topology.OpKillKubelet {
		t.Errorf("op = %q, want %q", op, topology.OpKillKubelet)
	}
}

func TestDispatchFallsBackOnDisallowedOperation(t *testing.T) {
	plane := &fakePlane{}
	d := New(plane, logr.Discard(), 1, 2)

	_, op, err := d.Dispatch(context.Background(), newTestComponent(), topology.OpKillStore)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	allowed := newTestComponent().Operations()
	if op != allowed[0] {
		t.Errorf("fallback op = %q, want first allowed %q", op, allowed[0])
	}
}

func TestDispatchPicksRandomAllowedOperationWhenUnspecified(t *testing.T) {
	plane := &fakePlane{}
	d := New(plane, logr.Discard(), 5, 6)

	_, op, err := d.Dispatch(context.Background(), newTestComponent(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, a := range newTestComponent().Operations() {
		if a == op {
			found = true
		}
	}
	if !found {
		t.Errorf("op %q not among allowed operations", op)
	}
}

func TestDispatchRetriesOnceOnTransientError(t *testing.T) {
	plane := &fakePlane{fail: true}
	d := New(plane, logr.Discard(), 1, 2)

	_, _, err := d.Dispatch(context.Background(), newTestComponent(), topology.OpKillKubelet)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if plane.calls != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", plane.calls)
	}
}
