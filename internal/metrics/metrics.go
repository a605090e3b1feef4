// Package metrics registers the Prometheus gauges and counters the
// iteration driver updates as a run progresses: failures injected,
// recoveries observed, the availability percentage per iteration, and
// accumulated downtime per component.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "kuberbomber"

var (
	// FailuresTotal counts every fault-injection dispatch, labelled by
	// component and operation.
	FailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "iteration",
			Name:      "failures_total",
			Help:      "Total number of fault-injection operations dispatched.",
		},
		[]string{"component", "operation"},
	)

	// RecoveriesTotal counts observed post-fault recoveries, labelled
	// by whether the observation window expired before recovery.
	RecoveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "iteration",
			Name:      "recoveries_total",
			Help:      "Total number of post-fault recovery observations, labelled by outcome.",
		},
		[]string{"recovered"},
	)

	// AvailabilityPercentage reports each iteration's availability
	// percentage, set once the iteration finishes.
	AvailabilityPercentage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "iteration",
			Name:      "availability_percentage",
			Help:      "Current iteration's availability percentage.",
		},
		[]string{"iteration"},
	)

	// DowntimeHours reports accumulated downtime per component for the
	// active iteration.
	DowntimeHours = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "iteration",
			Name:      "downtime_hours",
			Help:      "Accumulated downtime in simulated hours, per component, for the active iteration.",
		},
		[]string{"component"},
	)
)

// MustRegister registers every collector in this package against the
// default Prometheus registry. Called once from the entry point.
func MustRegister() {
	prometheus.MustRegister(FailuresTotal, RecoveriesTotal, AvailabilityPercentage, DowntimeHours)
}
