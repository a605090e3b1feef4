package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return rows
}

func TestAppendEventWritesHeaderOnceAndAppendsRows(t *testing.T) {
	r, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	rec1 := EventRecord{ComponentName: "pod-checkout", FailureType: "kill-all-processes"}
	rec2 := EventRecord{ComponentName: "pod-payments", FailureType: "kill-init"}

	if err := r.AppendEvent(1, rec1); err != nil {
		t.Fatalf("AppendEvent #1 failed: %v", err)
	}
	if err := r.AppendEvent(1, rec2); err != nil {
		t.Fatalf("AppendEvent #2 failed: %v", err)
	}

	rows := readCSV(t, filepath.Join(r.baseDir, "ITERACAO1", "events.csv"))
	if len(rows) != 3 {
		t.Fatalf("got %d rows (incl. header), want 3", len(rows))
	}
	if rows[0][0] != eventFieldnames[0] {
		t.Errorf("header row = %v, want fieldnames", rows[0])
	}
	if rows[1][3] != "pod-checkout" || rows[2][3] != "pod-payments" {
		t.Errorf("unexpected component_name column: %v / %v", rows[1][3], rows[2][3])
	}
}

func TestAppendEventSkipsExactDuplicateRow(t *testing.T) {
	r, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	rec := EventRecord{ComponentName: "pod-checkout", FailureType: "kill-all-processes", EventTimeHours: 1.5}
	if err := r.AppendEvent(1, rec); err != nil {
		t.Fatalf("AppendEvent #1 failed: %v", err)
	}
	if err := r.AppendEvent(1, rec); err != nil {
		t.Fatalf("AppendEvent #2 (duplicate) failed: %v", err)
	}

	rows := readCSV(t, filepath.Join(r.baseDir, "ITERACAO1", "events.csv"))
	if len(rows) != 2 {
		t.Fatalf("got %d rows (incl. header), want 2 — duplicate row should have been skipped", len(rows))
	}
}

func TestAppendEventSkipsRowAlreadyDurableFromPriorReporter(t *testing.T) {
	dir := t.TempDir()
	rec := EventRecord{ComponentName: "worker_node-ip-10-0-0-5", FailureType: "shutdown-and-restart", EventTimeHours: 4}

	r1, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := r1.AppendEvent(1, rec); err != nil {
		t.Fatalf("AppendEvent on first reporter failed: %v", err)
	}

	// Simulate a restart after an interrupt: a fresh Reporter against
	// the same output directory replays the same event.
	r2, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := r2.AppendEvent(1, rec); err != nil {
		t.Fatalf("AppendEvent on second reporter failed: %v", err)
	}

	rows := readCSV(t, filepath.Join(dir, "ITERACAO1", "events.csv"))
	if len(rows) != 2 {
		t.Fatalf("got %d rows (incl. header), want 2 — replayed row should have been recognised as already durable", len(rows))
	}
}

func TestWriteStatisticsOverwritesPreviousContent(t *testing.T) {
	r, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := r.WriteStatistics(1, IterationStatistics{Iteration: 1, TotalFailures: 1}); err != nil {
		t.Fatalf("WriteStatistics #1 failed: %v", err)
	}
	if err := r.WriteStatistics(1, IterationStatistics{Iteration: 1, TotalFailures: 9}); err != nil {
		t.Fatalf("WriteStatistics #2 failed: %v", err)
	}

	rows := readCSV(t, filepath.Join(r.baseDir, "ITERACAO1", "statistics.csv"))
	var got string
	for _, row := range rows {
		if row[0] == "total_failures" {
			got = row[1]
		}
	}
	if got != "9" {
		t.Errorf("total_failures = %q, want %q (the latest write, not the first)", got, "9")
	}
}

func TestAppendIterationSummaryAccumulatesAcrossIterations(t *testing.T) {
	r, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := r.AppendIterationSummary(IterationSummary{Iteration: 1, TotalFailures: 3}); err != nil {
		t.Fatalf("AppendIterationSummary #1 failed: %v", err)
	}
	if err := r.AppendIterationSummary(IterationSummary{Iteration: 2, TotalFailures: 5}); err != nil {
		t.Fatalf("AppendIterationSummary #2 failed: %v", err)
	}

	rows := readCSV(t, filepath.Join(r.baseDir, "experiment_iterations.csv"))
	if len(rows) != 3 {
		t.Fatalf("got %d rows (incl. header), want 3", len(rows))
	}
}

func TestWriteAllEventsOrdersByIterationThenInsertion(t *testing.T) {
	r, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	byIteration := map[int][]EventRecord{
		2: {{ComponentName: "pod-b"}},
		1: {{ComponentName: "pod-a-1"}, {ComponentName: "pod-a-2"}},
	}
	if err := r.WriteAllEvents(byIteration); err != nil {
		t.Fatalf("WriteAllEvents failed: %v", err)
	}

	rows := readCSV(t, filepath.Join(r.baseDir, "experiment_all_events.csv"))
	if len(rows) != 4 {
		t.Fatalf("got %d rows (incl. header), want 4", len(rows))
	}
	if rows[1][0] != "1" || rows[2][0] != "1" || rows[3][0] != "2" {
		t.Errorf("iteration column not sorted ascending: %v, %v, %v", rows[1][0], rows[2][0], rows[3][0])
	}
}

func TestRunIDIsStablePerReporterAndUnique(t *testing.T) {
	r1, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	r2, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if r1.RunID() != r1.RunID() {
		t.Error("RunID() changed across calls on the same Reporter")
	}
	if r1.RunID() == r2.RunID() {
		t.Error("two Reporters produced the same RunID")
	}
}
