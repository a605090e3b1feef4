// Package mttrprobe declares the interface a future empirical MTTR
// calibration tool would implement: measuring real recovery times
// across many fault injections to suggest configured MTTR values,
// rather than the simulator consuming configured values as-is.
//
// No implementation is provided here. Calibration is out of scope for
// the simulator itself; this package exists only so the configuration
// and heal packages have a stable seam to call into if one is added
// later.
package mttrprobe

import "context"

// Calibrator measures empirical recovery time for a component
// identifier, typically by running many fault/recovery cycles against
// a live environment and aggregating the results.
type Calibrator interface {
	// EstimateMTTRHours returns a suggested MTTR in hours for the
	// named component, along with the number of samples it's based
	// on.
	EstimateMTTRHours(ctx context.Context, componentID string) (hours float64, samples int, err error)
}
