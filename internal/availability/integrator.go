// Package availability tracks simulated-time intervals of system
// availability and integrates them into a running total at each event
// boundary.
package availability

// Prober reports whether the system is currently available, i.e.
// every required application has at least its configured minimum of
// healthy pods.
type Prober interface {
	IsAvailable() (bool, error)
}

// Integrator holds the running interval-accounting state:
// lastCheckSimTime and totalAvailable, both in simulated hours.
type Integrator struct {
	lastCheckSimTime float64
	totalAvailable   float64
	probe            Prober
}

// New returns an Integrator starting at sim time 0.
func New(probe Prober) *Integrator {
	return &Integrator{probe: probe}
}

// Reset zeroes the integrator state for a new iteration.
func (in *Integrator) Reset() {
	in.lastCheckSimTime = 0
	in.totalAvailable = 0
}

// CloseInterval closes the interval [last_check, t) by probing current
// availability and, if available, adding the elapsed delta to the
// running total; it then advances last_check_sim_time to t.
func (in *Integrator) CloseInterval(t float64) error {
	delta := t - in.lastCheckSimTime
	available, err := in.probe.IsAvailable()
	if err != nil {
		return err
	}
	if available {
		in.totalAvailable += delta
	}
	in.lastCheckSimTime = t
	return nil
}

// Finalize closes the final interval against the horizon identically
// to CloseInterval.
func (in *Integrator) Finalize(horizon float64) error {
	return in.CloseInterval(horizon)
}

// TotalAvailableHours returns the accumulated available time so far.
func (in *Integrator) TotalAvailableHours() float64 {
	return in.totalAvailable
}

// AvailabilityPercentage computes 100 * totalAvailableHours / horizon.
// It returns 0 for a zero horizon, so callers must handle
// horizon == 0 themselves: a zero horizon means
// availability is defined by a single probe, not by this division.
func AvailabilityPercentage(totalAvailableHours, horizon float64) float64 {
	if horizon == 0 {
		return 0
	}
	return 100 * totalAvailableHours / horizon
}
