// Package iteration drives the N-iteration simulation loop: for each
// iteration it resets all per-run state, seeds the initial failure
// events, and pops events off the queue in simulated-time order,
// dispatching a fault-injection operation for each and recording the
// outcome, until the configured duration is exhausted.
package iteration

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/samber/lo"

	"github.com/JonasCGN/kuberbomber/internal/availability"
	"github.com/JonasCGN/kuberbomber/internal/config"
	"github.com/JonasCGN/kuberbomber/internal/dispatch"
	"github.com/JonasCGN/kuberbomber/internal/eventqueue"
	"github.com/JonasCGN/kuberbomber/internal/failuregen"
	"github.com/JonasCGN/kuberbomber/internal/heal"
	"github.com/JonasCGN/kuberbomber/internal/metrics"
	"github.com/JonasCGN/kuberbomber/internal/recovery"
	"github.com/JonasCGN/kuberbomber/internal/report"
	"github.com/JonasCGN/kuberbomber/internal/topology"
)

const interFailureStabilizationHours = 30.0 / 3600.0

// AppResolver maps a component to the Kubernetes namespace/application
// name used for post-fault recovery probing. Components with no
// corresponding application (e.g. control-plane sub-components) can
// return an empty app, which skips recovery observation.
type AppResolver func(comp *topology.Component) (namespace, app string)

// Driver owns every piece of run-scoped state and wires them together
// across iterations.
type Driver struct {
	Topology     []*topology.Component
	Queue        *eventqueue.Queue
	FailureGen   *failuregen.Generator
	Dispatcher   *dispatch.Dispatcher
	Detector     *recovery.Detector
	HealHandler  *heal.Handler
	Availability *availability.Integrator
	Reporter     *report.Reporter
	Config       *config.TopologyConfig
	AppFor       AppResolver
	Log          logr.Logger

	// RecoveryPollInterval governs how often WaitForRecovery re-probes
	// while waiting for a non-shutdown-class recovery.
	RecoveryPollInterval time.Duration

	byName map[string]*topology.Component

	// eventsByIter accumulates every event recorded so far, across all
	// iterations, so FlushPartial can write experiment_all_events.csv
	// even if the run is interrupted mid-iteration.
	eventsByIter map[int][]report.EventRecord
}

// New constructs a Driver. Callers must set the AppFor resolver before
// calling Run if any component needs diagnostic recovery observation.
func New(
	comps []*topology.Component,
	gen *failuregen.Generator,
	disp *dispatch.Dispatcher,
	detector *recovery.Detector,
	healHandler *heal.Handler,
	cfg *config.TopologyConfig,
	rep *report.Reporter,
	log logr.Logger,
) *Driver {
	byName := make(map[string]*topology.Component, len(comps))
	for _, c := range comps {
		byName[c.Name] = c
	}
	return &Driver{
		Topology:             comps,
		Queue:                eventqueue.New(),
		FailureGen:           gen,
		Dispatcher:           disp,
		Detector:             detector,
		HealHandler:          healHandler,
		Availability:         availability.New(nil),
		Reporter:             rep,
		Config:               cfg,
		Log:                  log,
		RecoveryPollInterval: time.Second,
		byName:               byName,
		eventsByIter:         make(map[int][]report.EventRecord),
	}
}

// topologyProber implements availability.Prober against the live
// component-status table: the system is available as long as every
// component named in the run's availability criteria is healthy.
type topologyProber struct {
	driver *Driver
}

func (p *topologyProber) IsAvailable() (bool, error) {
	if len(p.driver.Config.AvailabilityCriteria) == 0 {
		return !p.driver.anyUnhealthy(), nil
	}
	for app := range p.driver.Config.AvailabilityCriteria {
		c, ok := p.driver.byName["pod-"+app]
		if !ok {
			continue
		}
		if c.Status != topology.StatusHealthy {
			return false, nil
		}
	}
	return true, nil
}

func (d *Driver) anyUnhealthy() bool {
	for _, c := range d.Topology {
		if c.Status != topology.StatusHealthy {
			return true
		}
	}
	return false
}

// Run executes every configured iteration in sequence, returning the
// per-iteration summaries.
func (d *Driver) Run(ctx context.Context) ([]report.IterationSummary, error) {
	var summaries []report.IterationSummary
	for it := 1; it <= d.Config.Iterations; it++ {
		select {
		case <-ctx.Done():
			return summaries, ctx.Err()
		default:
		}

		summary, err := d.runIteration(ctx, it)
		if err != nil {
			return summaries, fmt.Errorf("iteration %d: %w", it, err)
		}
		summaries = append(summaries, summary)
		if err := d.Reporter.AppendIterationSummary(summary); err != nil {
			d.Log.Error(err, "failed appending iteration summary", "iteration", it)
		}
	}
	if err := d.Reporter.WriteAllEvents(d.eventsByIter); err != nil {
		d.Log.Error(err, "failed writing experiment_all_events.csv")
	}
	return summaries, nil
}

func (d *Driver) runIteration(ctx context.Context, iteration int) (report.IterationSummary, error) {
	d.Queue.Reset()
	d.Availability = availability.New(&topologyProber{driver: d})
	for _, c := range d.Topology {
		c.ResetIterationState()
	}

	duration := d.Config.DurationHours
	d.seedInitialEvents()

	var events []report.EventRecord
	start := time.Now()

	for !d.Queue.Empty() && d.Queue.Peek().SimTimeHours <= duration {
		select {
		case <-ctx.Done():
			return report.IterationSummary{}, ctx.Err()
		default:
		}

		ev := d.Queue.Pop()
		comp, ok := d.byName[ev.ComponentID]
		if !ok {
			d.Log.Info("dropping event for unknown component", "component", ev.ComponentID)
			continue
		}

		if err := d.Availability.CloseInterval(ev.SimTimeHours); err != nil {
			return report.IterationSummary{}, fmt.Errorf("closing interval at %v: %w", ev.SimTimeHours, err)
		}

		comp.Status = topology.StatusFailed
		comp.FailureCount++

		rec, downtimeHours, err := d.processFailure(ctx, comp, ev.SimTimeHours, start)
		if err != nil {
			d.Log.Error(err, "processing failure event failed", "component", comp.Name)
			comp.Status = topology.StatusHealthy
			continue
		}
		comp.Status = topology.StatusHealthy
		comp.AccumulatedHours += downtimeHours

		rec.AvailabilityPercentage = availability.AvailabilityPercentage(d.Availability.TotalAvailableHours(), ev.SimTimeHours)
		events = append(events, rec)
		d.eventsByIter[iteration] = events

		if err := d.Reporter.AppendEvent(iteration, rec); err != nil {
			d.Log.Error(err, "failed appending event", "component", comp.Name)
		}
		d.writeStatistics(iteration, ev.SimTimeHours, duration, events)

		metrics.FailuresTotal.WithLabelValues(comp.Name, rec.FailureType).Inc()
		metrics.DowntimeHours.WithLabelValues(comp.Name).Set(comp.AccumulatedHours)

		next := d.FailureGen.NextFailureTime(ev.SimTimeHours, comp.MTTFHours)
		d.Queue.Push(next, comp.Name)
	}

	if err := d.Availability.Finalize(duration); err != nil {
		return report.IterationSummary{}, fmt.Errorf("finalizing availability: %w", err)
	}

	totalFailures := lo.SumBy(d.Topology, func(c *topology.Component) int { return c.FailureCount })
	pct := availability.AvailabilityPercentage(d.Availability.TotalAvailableHours(), duration)
	if duration == 0 {
		// A zero horizon has no interval to integrate: availability is
		// 100% if a single probe finds the system available, else 0%.
		if ok, err := (&topologyProber{driver: d}).IsAvailable(); err == nil && ok {
			pct = 100
		}
	}
	metrics.AvailabilityPercentage.WithLabelValues(fmt.Sprintf("%d", iteration)).Set(pct)

	if err := d.writeComponentsSummary(); err != nil {
		d.Log.Error(err, "failed writing components summary")
	}

	return report.IterationSummary{
		Iteration:              iteration,
		DurationHours:          duration,
		TotalAvailableTime:     d.Availability.TotalAvailableHours(),
		AvailabilityPercentage: pct,
		TotalFailures:          totalFailures,
	}, nil
}

// seedInitialEvents schedules the first failure for every component.
func (d *Driver) seedInitialEvents() {
	for _, c := range d.Topology {
		t := d.FailureGen.NextFailureTime(0, c.MTTFHours)
		d.Queue.Push(t, c.Name)
	}
}

// processFailure dispatches the operation for comp and determines how
// much downtime to attribute to it: shutdown-class operations go
// through the heal handler and attribute exactly the configured MTTR
// regardless of observed recovery time; all other operations dispatch
// normally and attribute the recovery detector's observed elapsed
// time.
func (d *Driver) processFailure(ctx context.Context, comp *topology.Component, simTime float64, start time.Time) (report.EventRecord, float64, error) {
	op := d.Dispatcher.ResolveOperation(comp, "")

	if topology.IsShutdownClass(op) {
		return d.processShutdownClass(ctx, comp, op, simTime, start)
	}
	return d.processOrdinary(ctx, comp, op, simTime, start)
}

func (d *Driver) processShutdownClass(ctx context.Context, comp *topology.Component, op string, simTime float64, start time.Time) (report.EventRecord, float64, error) {
	mttrHours := comp.MTTRHours
	if !comp.HasMTTR {
		mttrHours = comp.MTTFHours / 100 // conservative fallback when no MTTR is configured
	}
	soak := time.Duration(d.Config.DelaySeconds * float64(time.Second))
	mttr := time.Duration(mttrHours * float64(time.Hour))

	outcome, err := d.HealHandler.Run(ctx, comp, op, topology.OpStartNodeInstance, soak, mttr, 60*time.Second)
	if err != nil {
		return report.EventRecord{}, 0, err
	}

	metrics.RecoveriesTotal.WithLabelValues(fmt.Sprintf("%v", outcome.ObservedRecovered)).Inc()

	rec := report.EventRecord{
		EventTimeHours:      simTime,
		RealTimeSeconds:     time.Since(start).Seconds(),
		ComponentType:       string(comp.Type),
		ComponentName:       comp.Name,
		FailureType:         op,
		RecoveryTimeSeconds: outcome.AttributedMTTR.Seconds(),
		SystemAvailable:     outcome.ObservedRecovered,
		DowntimeDuration:    mttrHours,
		CumulativeDowntime:  comp.AccumulatedHours + mttrHours,
	}
	return rec, mttrHours, nil
}

func (d *Driver) processOrdinary(ctx context.Context, comp *topology.Component, op string, simTime float64, start time.Time) (report.EventRecord, float64, error) {
	result, resolvedOp, err := d.Dispatcher.Dispatch(ctx, comp, op)
	if err != nil {
		return report.EventRecord{}, 0, err
	}

	recoverySeconds := 0.0
	recovered := result.Success
	// The topology models one component per application rather than
	// per-replica, so available/required pods collapse to 0/1.
	requiredPods := 1
	availablePods := 0

	if d.Detector != nil && d.AppFor != nil {
		namespace, app := d.AppFor(comp)
		if app != "" {
			outcome, err := d.Detector.WaitForRecovery(ctx, namespace, app, 5*time.Minute, d.RecoveryPollInterval)
			if err != nil {
				d.Log.Error(err, "recovery detection failed", "component", comp.Name)
			} else {
				recoverySeconds = outcome.ElapsedSeconds
				recovered = outcome.Recovered
			}
		}
	}
	if recovered {
		availablePods = 1
	}

	downtimeHours := recoverySeconds / 3600.0
	if comp.Type == topology.TypeWorkerNode || comp.Type == topology.TypeControlPlane {
		downtimeHours += interFailureStabilizationHours
	}

	metrics.RecoveriesTotal.WithLabelValues(fmt.Sprintf("%v", recovered)).Inc()

	rec := report.EventRecord{
		EventTimeHours:      simTime,
		RealTimeSeconds:     time.Since(start).Seconds(),
		ComponentType:       string(comp.Type),
		ComponentName:       comp.Name,
		FailureType:         resolvedOp,
		RecoveryTimeSeconds: recoverySeconds,
		SystemAvailable:     recovered,
		AvailablePods:       availablePods,
		RequiredPods:        requiredPods,
		DowntimeDuration:    downtimeHours,
		CumulativeDowntime:  comp.AccumulatedHours + downtimeHours,
	}
	return rec, downtimeHours, nil
}

func (d *Driver) writeStatistics(iteration int, currentTime, duration float64, events []report.EventRecord) {
	stats := report.IterationStatistics{
		Iteration:              iteration,
		DurationHours:          duration,
		CurrentTimeHours:       currentTime,
		TotalFailures:          len(events),
		AvailabilityPercentage: availability.AvailabilityPercentage(d.Availability.TotalAvailableHours(), currentTime),
		TotalDowntime:          currentTime - d.Availability.TotalAvailableHours(),
		MeanRecoveryTime:       meanRecoveryTime(events),
	}
	if err := d.Reporter.WriteStatistics(iteration, stats); err != nil {
		d.Log.Error(err, "failed writing statistics.csv", "iteration", iteration)
	}
}

func meanRecoveryTime(events []report.EventRecord) float64 {
	if len(events) == 0 {
		return 0
	}
	total := lo.SumBy(events, func(e report.EventRecord) float64 { return e.RecoveryTimeSeconds })
	return total / float64(len(events))
}

func (d *Driver) writeComponentsSummary() error {
	rows := make([][]string, 0, len(d.Topology))
	for _, c := range d.Topology {
		rows = append(rows, []string{
			c.Name,
			string(c.Type),
			fmt.Sprintf("%d", c.FailureCount),
			fmt.Sprintf("%v", c.AccumulatedHours),
		})
	}
	return d.Reporter.WriteComponentsSummary(rows)
}

// FlushPartial implements interrupt.Flusher: it writes every event
// recorded so far, across all iterations including the one in
// progress, plus the per-component rollup, so an interrupted run leaves
// the same artefacts a completed one would.
func (d *Driver) FlushPartial() error {
	if err := d.writeComponentsSummary(); err != nil {
		return err
	}
	return d.Reporter.WriteAllEvents(d.eventsByIter)
}
