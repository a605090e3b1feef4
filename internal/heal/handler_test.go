package heal

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/JonasCGN/kuberbomber/internal/execplane"
	"github.com/JonasCGN/kuberbomber/internal/topology"
)

type fakePlane struct {
	invoked []string
}

func (f *fakePlane) Invoke(_ context.Context, _ *topology.Component, operation string) (execplane.Result, error) {
	f.invoked = append(f.invoked, operation)
	return execplane.Result{Success: true}, nil
}

// fakeStates reports a fixed state regardless of what Run asks for, so
// tests can simulate infrastructure that never reaches the expected
// state within the poll window.
type fakeStates struct {
	state string
}

func (f *fakeStates) InstanceState(_ context.Context, _ *topology.Component) (string, error) {
	return f.state, nil
}

func TestRunDeclaresFailureWhenStopStateIsStuck(t *testing.T) {
	plane := &fakePlane{}
	h := New(plane, nil, nil, logr.Discard())
	h.States = &fakeStates{state: "running"} // never reaches "stopped"
	h.StatePollTimeout = 20 * time.Millisecond
	h.StatePollInterval = 5 * time.Millisecond
	comp := &topology.Component{Name: "worker_node-ip-10-0-0-5", Type: topology.TypeWorkerNode}

	outcome, err := h.Run(context.Background(), comp, topology.OpShutdownAndRestart, topology.OpStartNodeInstance, time.Millisecond, 90*time.Second, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Success {
		t.Error("expected Success=false when the infrastructure never reaches the stopped state")
	}
	if len(plane.invoked) != 1 {
		t.Errorf("expected only the stop invocation, got %v", plane.invoked)
	}
}

func TestRunDeclaresFailureWhenStartStateIsStuck(t *testing.T) {
	plane := &fakePlane{}
	h := New(plane, nil, nil, logr.Discard())
	h.States = &stoppedThenStuckStates{}
	h.StatePollTimeout = 20 * time.Millisecond
	h.StatePollInterval = 5 * time.Millisecond
	comp := &topology.Component{Name: "worker_node-ip-10-0-0-5", Type: topology.TypeWorkerNode}

	outcome, err := h.Run(context.Background(), comp, topology.OpShutdownAndRestart, topology.OpStartNodeInstance, time.Millisecond, 90*time.Second, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Success {
		t.Error("expected Success=false when the infrastructure never reaches the running state")
	}
	if len(plane.invoked) != 2 {
		t.Errorf("expected both stop and start invocations, got %v", plane.invoked)
	}
}

// stoppedThenStuckStates reports "stopped" (satisfying the post-stop
// poll) and then "stopped" forever (never satisfying the post-start
// poll for "running").
type stoppedThenStuckStates struct{}

func (s *stoppedThenStuckStates) InstanceState(_ context.Context, _ *topology.Component) (string, error) {
	return instanceStateStopped, nil
}

func TestRunExecutesStopThenSoakThenStart(t *testing.T) {
	plane := &fakePlane{}
	h := New(plane, nil, nil, logr.Discard())
	comp := &topology.Component{Name: "worker_node-ip-10-0-0-5", Type: topology.TypeWorkerNode}

	outcome, err := h.Run(context.Background(), comp, topology.OpShutdownAndRestart, topology.OpStartNodeInstance, 10*time.Millisecond, 90*time.Second, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success {
		t.Errorf("expected Success=true")
	}
	if outcome.AttributedMTTR != 90*time.Second {
		t.Errorf("AttributedMTTR = %v, want 90s (the configured MTTR, not observed wall-clock)", outcome.AttributedMTTR)
	}
	if len(plane.invoked) != 2 {
		t.Fatalf("expected 2 plane invocations (stop, start), got %d: %v", len(plane.invoked), plane.invoked)
	}
	if plane.invoked[0] != topology.OpShutdownAndRestart || plane.invoked[1] != topology.OpStartNodeInstance {
		t.Errorf("invoked = %v, want [%s %s]", plane.invoked, topology.OpShutdownAndRestart, topology.OpStartNodeInstance)
	}
}
