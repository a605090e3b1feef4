// Package heal implements the shutdown/heal sequence for
// shutdown-class operations, which don't simply fail a component and
// wait — they stop it, soak for the configured inter-failure delay
// (not MTTR), restart it, refresh discovery, and only then observe
// recovery diagnostically. The real time spent waiting for
// applications to come back is explicitly NOT what gets attributed to
// downtime — only the configured MTTR is.
package heal

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/JonasCGN/kuberbomber/internal/discovery"
	"github.com/JonasCGN/kuberbomber/internal/execplane"
	"github.com/JonasCGN/kuberbomber/internal/recovery"
	"github.com/JonasCGN/kuberbomber/internal/topology"
)

const (
	instanceStateStopped = "stopped"
	instanceStateRunning = "running"

	defaultStatePollTimeout  = 2 * time.Minute
	defaultStatePollInterval = 5 * time.Second
)

// StateChecker reports the current infrastructure state (an EC2
// instance-state name, e.g. "stopped"/"running") backing comp, used to
// bound how long the handler waits for a stop/start to actually take
// effect before declaring the operation stuck.
type StateChecker interface {
	InstanceState(ctx context.Context, comp *topology.Component) (string, error)
}

// Outcome is the result of a shutdown/heal sequence.
type Outcome struct {
	Success           bool
	AttributedMTTR    time.Duration
	ObservedRecovered bool
	ObservedElapsed   time.Duration
}

// Handler drives the stop -> soak -> start -> refresh -> observe
// sequence for shutdown-class operations.
type Handler struct {
	Plane      execplane.Plane
	Discovery  *discovery.Cache
	Detector   *recovery.Detector
	States     StateChecker
	Log        logr.Logger
	ObserveApp func(comp *topology.Component) (namespace, app string)

	// StatePollTimeout/StatePollInterval bound how long Run waits for
	// the infrastructure to reach the stopped state (after stopOp) and
	// the running state (after startOp) before declaring the operation
	// stuck. Left at their zero value, New fills in the defaults.
	StatePollTimeout  time.Duration
	StatePollInterval time.Duration
}

// New constructs a Handler.
func New(plane execplane.Plane, disc *discovery.Cache, detector *recovery.Detector, log logr.Logger) *Handler {
	return &Handler{
		Plane:             plane,
		Discovery:         disc,
		Detector:          detector,
		Log:               log,
		StatePollTimeout:  defaultStatePollTimeout,
		StatePollInterval: defaultStatePollInterval,
	}
}

// Run executes the shutdown/heal sequence for comp. soakFor is the
// configured inter-failure delay, NOT the component's MTTR — these are
// distinct knobs. mttr is the configured MTTR attributed to downtime
// regardless of how long recovery actually took to observe.
//
// If States is configured, Run polls it (bounded by StatePollTimeout)
// to confirm the infrastructure actually reached the stopped state
// after stopOp and the running state after startOp. A state stuck past
// the poll window is treated as a failed operation: Run returns a
// zero-value-except-Success Outcome with Success=false and a nil
// error, rather than aborting — the event still gets recorded, just
// with ok=false.
func (h *Handler) Run(ctx context.Context, comp *topology.Component, stopOp, startOp string, soakFor time.Duration, mttr time.Duration, observeTimeout time.Duration) (Outcome, error) {
	if _, err := h.Plane.Invoke(ctx, comp, stopOp); err != nil {
		h.Log.Error(err, "shutdown operation failed", "component", comp.Name)
		return Outcome{}, err
	}

	stopped, err := h.pollUntilState(ctx, comp, instanceStateStopped)
	if err != nil {
		return Outcome{}, err
	}
	if !stopped {
		h.Log.Info("infrastructure state stuck, never reached stopped; declaring failure",
			"component", comp.Name, "pollTimeout", h.StatePollTimeout)
		return Outcome{Success: false}, nil
	}

	h.Log.Info("soaking before self-heal", "component", comp.Name, "soak", soakFor)
	select {
	case <-time.After(soakFor):
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}

	if _, err := h.Plane.Invoke(ctx, comp, startOp); err != nil {
		h.Log.Error(err, "restart operation failed", "component", comp.Name)
		return Outcome{}, err
	}

	running, err := h.pollUntilState(ctx, comp, instanceStateRunning)
	if err != nil {
		return Outcome{}, err
	}
	if !running {
		h.Log.Info("infrastructure state stuck, never reached running; declaring failure",
			"component", comp.Name, "pollTimeout", h.StatePollTimeout)
		return Outcome{Success: false}, nil
	}

	// Discovery must be refreshed before recovery can be observed:
	// the node/bastion may have a new address after the restart.
	if h.Discovery != nil {
		if err := h.Discovery.Refresh(ctx); err != nil {
			h.Log.Error(err, "discovery refresh after restart failed", "component", comp.Name)
		}
	}

	outcome := Outcome{Success: true, AttributedMTTR: mttr}

	// Observing recovery here is diagnostic only: its wall-clock
	// duration is logged but never substituted for the configured
	// MTTR in the availability accounting.
	if h.Detector != nil && h.ObserveApp != nil {
		namespace, app := h.ObserveApp(comp)
		if app != "" {
			obsOutcome, err := h.Detector.WaitForRecovery(ctx, namespace, app, observeTimeout, time.Second)
			if err != nil {
				h.Log.Error(err, "diagnostic recovery observation failed", "component", comp.Name)
			} else {
				outcome.ObservedRecovered = obsOutcome.Recovered
				outcome.ObservedElapsed = time.Duration(obsOutcome.ElapsedSeconds * float64(time.Second))
				h.Log.Info("diagnostic recovery observation complete",
					"component", comp.Name, "recovered", obsOutcome.Recovered,
					"observedSeconds", obsOutcome.ElapsedSeconds, "attributedMTTR", mttr)
			}
		}
	}

	return outcome, nil
}

// pollUntilState polls States for comp's infrastructure state until it
// matches want or StatePollTimeout elapses. If no StateChecker is
// configured, it reports success immediately: the caller has no way to
// verify infrastructure state, so it trusts the execution plane's own
// result.
func (h *Handler) pollUntilState(ctx context.Context, comp *topology.Component, want string) (bool, error) {
	if h.States == nil {
		return true, nil
	}

	timeout := h.StatePollTimeout
	if timeout == 0 {
		timeout = defaultStatePollTimeout
	}
	interval := h.StatePollInterval
	if interval == 0 {
		interval = defaultStatePollInterval
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		state, err := h.States.InstanceState(ctx, comp)
		if err == nil && state == want {
			return true, nil
		}
		if err != nil {
			h.Log.V(1).Info("polling infrastructure state failed, retrying", "component", comp.Name, "error", err.Error())
		}

		if time.Now().After(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}
