// Package report implements the incremental reporter: per-event rows
// are appended and flushed immediately so a crash can only ever lose a
// row that was never written; statistics.csv is rewritten in full
// after every event; top-level cross-iteration files are written once
// per iteration and once at run end.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/mitchellh/hashstructure/v2"
	"go.uber.org/multierr"

	"github.com/JonasCGN/kuberbomber/internal/config"
)

// EventRecord is one row of an iteration's events.csv.
type EventRecord struct {
	EventTimeHours         float64
	RealTimeSeconds        float64
	ComponentType          string
	ComponentName          string
	FailureType            string
	RecoveryTimeSeconds    float64
	SystemAvailable        bool
	AvailablePods          int
	RequiredPods           int
	AvailabilityPercentage float64
	DowntimeDuration       float64
	CumulativeDowntime     float64
}

var eventFieldnames = []string{
	"event_time_hours", "real_time_seconds", "component_type", "component_name",
	"failure_type", "recovery_time_seconds", "system_available", "available_pods",
	"required_pods", "availability_percentage", "downtime_duration", "cumulative_downtime",
}

func (r EventRecord) row() []string {
	return []string{
		strconv.FormatFloat(r.EventTimeHours, 'f', -1, 64),
		strconv.FormatFloat(r.RealTimeSeconds, 'f', -1, 64),
		r.ComponentType,
		r.ComponentName,
		r.FailureType,
		strconv.FormatFloat(r.RecoveryTimeSeconds, 'f', -1, 64),
		strconv.FormatBool(r.SystemAvailable),
		strconv.Itoa(r.AvailablePods),
		strconv.Itoa(r.RequiredPods),
		strconv.FormatFloat(r.AvailabilityPercentage, 'f', -1, 64),
		strconv.FormatFloat(r.DowntimeDuration, 'f', -1, 64),
		strconv.FormatFloat(r.CumulativeDowntime, 'f', -1, 64),
	}
}

// IterationStatistics is the rewritten-in-full statistics.csv content
// for the currently running iteration.
type IterationStatistics struct {
	Iteration              int
	DurationHours          float64
	CurrentTimeHours       float64
	TotalFailures          int
	AvailabilityPercentage float64
	TotalDowntime          float64
	MeanRecoveryTime       float64
}

// IterationSummary is one row of the top-level experiment_iterations.csv,
// written once an iteration finishes.
type IterationSummary struct {
	Iteration              int
	DurationHours          float64
	TotalAvailableTime     float64
	AvailabilityPercentage float64
	TotalFailures          int
}

// Reporter owns a run's output directory and writes artefacts into it.
// Constructed once per run and passed explicitly to the iteration
// driver — never a package-level global.
type Reporter struct {
	baseDir string
	runID   string

	// seen holds, per iteration, the hashstructure hash of every event
	// row already durable on disk. It is populated lazily from an
	// iteration's existing events.csv the first time AppendEvent
	// touches that iteration, so that an interrupted run resuming
	// against the same output directory and replaying events doesn't
	// write duplicate rows for events that made it to disk before the
	// interrupt.
	seen map[int]map[uint64]struct{}
}

// New creates (but does not yet populate) the run's output directory
// tree, rooted at baseDir.
func New(baseDir string) (*Reporter, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("report: creating base dir %s: %w", baseDir, err)
	}
	return &Reporter{baseDir: baseDir, runID: uuid.NewString(), seen: make(map[int]map[uint64]struct{})}, nil
}

// RunID returns the UUID generated for this run, used to disambiguate
// artefacts across concurrent or repeated invocations.
func (r *Reporter) RunID() string { return r.runID }

func (r *Reporter) iterationDir(iteration int) string {
	return filepath.Join(r.baseDir, fmt.Sprintf("ITERACAO%d", iteration))
}

// AppendEvent appends one row to ITERACAO{n}/events.csv, writing the
// header only if the file is new, and flushes before returning — a
// crash can only ever lose a row that was never written.
//
// If rec hashes the same as a row already durable in this iteration's
// events.csv (from an earlier run of this Reporter, or a prior process
// that wrote to the same iteration directory before being interrupted),
// AppendEvent skips the write and returns nil: the replayed event is
// already on disk.
func (r *Reporter) AppendEvent(iteration int, rec EventRecord) error {
	dir := r.iterationDir(iteration)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("report: creating iteration dir: %w", err)
	}

	path := filepath.Join(dir, "events.csv")
	_, err := os.Stat(path)
	fileExists := err == nil

	if r.seen == nil {
		r.seen = make(map[int]map[uint64]struct{})
	}
	if r.seen[iteration] == nil {
		seen, err := loadSeenHashes(path, fileExists)
		if err != nil {
			return fmt.Errorf("report: loading existing events.csv for dedup: %w", err)
		}
		r.seen[iteration] = seen
	}

	hash, err := hashstructure.Hash(rec, hashstructure.FormatV2, nil)
	if err != nil {
		return fmt.Errorf("report: hashing event record: %w", err)
	}
	if _, dup := r.seen[iteration][hash]; dup {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("report: opening events.csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if !fileExists {
		if err := w.Write(eventFieldnames); err != nil {
			return fmt.Errorf("report: writing events.csv header: %w", err)
		}
	}
	if err := w.Write(rec.row()); err != nil {
		return fmt.Errorf("report: writing events.csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("report: flushing events.csv: %w", err)
	}
	if err := f.Sync(); err != nil {
		return err
	}

	r.seen[iteration][hash] = struct{}{}
	return nil
}

// loadSeenHashes reads an iteration's existing events.csv, if any, and
// returns the hashstructure hash of every row it contains, so
// AppendEvent can recognise and skip an interrupt-replayed duplicate.
func loadSeenHashes(path string, fileExists bool) (map[uint64]struct{}, error) {
	seen := make(map[uint64]struct{})
	if !fileExists {
		return seen, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		rec, err := parseEventRow(row)
		if err != nil {
			return nil, fmt.Errorf("parsing existing events.csv row %d: %w", i, err)
		}
		hash, err := hashstructure.Hash(rec, hashstructure.FormatV2, nil)
		if err != nil {
			return nil, err
		}
		seen[hash] = struct{}{}
	}
	return seen, nil
}

// parseEventRow reverses EventRecord.row, used to recover already-
// durable events from an existing events.csv for dedup hashing.
func parseEventRow(row []string) (EventRecord, error) {
	if len(row) != len(eventFieldnames) {
		return EventRecord{}, fmt.Errorf("expected %d columns, got %d", len(eventFieldnames), len(row))
	}

	var rec EventRecord
	var err error
	if rec.EventTimeHours, err = strconv.ParseFloat(row[0], 64); err != nil {
		return EventRecord{}, err
	}
	if rec.RealTimeSeconds, err = strconv.ParseFloat(row[1], 64); err != nil {
		return EventRecord{}, err
	}
	rec.ComponentType = row[2]
	rec.ComponentName = row[3]
	rec.FailureType = row[4]
	if rec.RecoveryTimeSeconds, err = strconv.ParseFloat(row[5], 64); err != nil {
		return EventRecord{}, err
	}
	if rec.SystemAvailable, err = strconv.ParseBool(row[6]); err != nil {
		return EventRecord{}, err
	}
	if rec.AvailablePods, err = strconv.Atoi(row[7]); err != nil {
		return EventRecord{}, err
	}
	if rec.RequiredPods, err = strconv.Atoi(row[8]); err != nil {
		return EventRecord{}, err
	}
	if rec.AvailabilityPercentage, err = strconv.ParseFloat(row[9], 64); err != nil {
		return EventRecord{}, err
	}
	if rec.DowntimeDuration, err = strconv.ParseFloat(row[10], 64); err != nil {
		return EventRecord{}, err
	}
	if rec.CumulativeDowntime, err = strconv.ParseFloat(row[11], 64); err != nil {
		return EventRecord{}, err
	}
	return rec, nil
}

// WriteStatistics rewrites ITERACAO{n}/statistics.csv in full with the
// latest snapshot — unlike events.csv this file has no append history
// to preserve, so a full rewrite after every event is cheap and always
// current.
func (r *Reporter) WriteStatistics(iteration int, stats IterationStatistics) error {
	dir := r.iterationDir(iteration)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("report: creating iteration dir: %w", err)
	}

	path := filepath.Join(dir, "statistics.csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: creating statistics.csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	rows := [][]string{
		{"metric", "value"},
		{"iteration", strconv.Itoa(stats.Iteration)},
		{"duration_hours", strconv.FormatFloat(stats.DurationHours, 'f', -1, 64)},
		{"current_time_hours", strconv.FormatFloat(stats.CurrentTimeHours, 'f', -1, 64)},
		{"total_failures", strconv.Itoa(stats.TotalFailures)},
		{"availability_percentage", strconv.FormatFloat(stats.AvailabilityPercentage, 'f', -1, 64)},
		{"total_downtime", strconv.FormatFloat(stats.TotalDowntime, 'f', -1, 64)},
		{"mean_recovery_time", strconv.FormatFloat(stats.MeanRecoveryTime, 'f', -1, 64)},
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("report: writing statistics.csv: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

var iterationSummaryFieldnames = []string{
	"iteration", "duration_hours", "total_available_time",
	"availability_percentage", "total_failures",
}

// AppendIterationSummary appends one row to the top-level
// experiment_iterations.csv once an iteration finishes.
func (r *Reporter) AppendIterationSummary(s IterationSummary) error {
	path := filepath.Join(r.baseDir, "experiment_iterations.csv")
	_, err := os.Stat(path)
	fileExists := err == nil

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("report: opening experiment_iterations.csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if !fileExists {
		if err := w.Write(iterationSummaryFieldnames); err != nil {
			return err
		}
	}
	row := []string{
		strconv.Itoa(s.Iteration),
		strconv.FormatFloat(s.DurationHours, 'f', -1, 64),
		strconv.FormatFloat(s.TotalAvailableTime, 'f', -1, 64),
		strconv.FormatFloat(s.AvailabilityPercentage, 'f', -1, 64),
		strconv.Itoa(s.TotalFailures),
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

// WriteConfig persists the resolved run configuration as
// experiment_config.json alongside the run's other artefacts.
func (r *Reporter) WriteConfig(cfg *config.TopologyConfig) error {
	return cfg.Save(filepath.Join(r.baseDir, "experiment_config.json"))
}

// WriteComponentsSummary writes experiment_components.csv, one row per
// component with its final per-run counters.
func (r *Reporter) WriteComponentsSummary(rows [][]string) error {
	path := filepath.Join(r.baseDir, "experiment_components.csv")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"component_name", "component_type", "failure_count", "accumulated_downtime_hours"}
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return multierr.Append(w.Error(), f.Sync())
}

// WriteAllEvents writes experiment_all_events.csv, the flattened
// cross-iteration record of every event across every iteration of the
// run, with an extra leading iteration column.
func (r *Reporter) WriteAllEvents(byIteration map[int][]EventRecord) error {
	path := filepath.Join(r.baseDir, "experiment_all_events.csv")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"iteration"}, eventFieldnames...)); err != nil {
		return err
	}
	for _, iteration := range sortedKeys(byIteration) {
		for _, rec := range byIteration[iteration] {
			row := append([]string{strconv.Itoa(iteration)}, rec.row()...)
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return multierr.Append(w.Error(), f.Sync())
}

func sortedKeys(m map[int][]EventRecord) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
