// Package failuregen implements the per-component exponential
// failure-time generator: stateless with respect to past failures,
// memoryless, seeded once per run for reproducibility.
package failuregen

import "math/rand/v2"

// Generator samples Exp(1/MTTF) next-failure offsets. It holds no
// per-component state — the memoryless property means "next failure"
// only ever needs the current simulated time and the component's
// MTTF.
type Generator struct {
	rng *rand.Rand
}

// New returns a Generator seeded for reproducibility: the same seed
// and configuration must yield the same event stream.
func New(seed1, seed2 uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// NextFailureTime returns the absolute simulated time of the next
// failure for a component with the given MTTF, given the current
// simulated time.
func (g *Generator) NextFailureTime(currentSimTimeHours, mttfHours float64) float64 {
	rate := 1.0 / mttfHours
	offset := g.rng.ExpFloat64() / rate
	return currentSimTimeHours + offset
}
