package availability

import (
	"errors"
	"testing"
)

var errBoom = errors.New("probe failed")

type fakeProber struct {
	available bool
	err       error
}

func (f *fakeProber) IsAvailable() (bool, error) { return f.available, f.err }

func TestCloseIntervalAccumulatesOnlyWhileAvailable(t *testing.T) {
	p := &fakeProber{available: true}
	in := New(p)

	if err := in.CloseInterval(5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := in.TotalAvailableHours(); got != 5 {
		t.Errorf("TotalAvailableHours() = %v, want 5", got)
	}

	p.available = false
	if err := in.CloseInterval(8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := in.TotalAvailableHours(); got != 5 {
		t.Errorf("TotalAvailableHours() after unavailable interval = %v, want still 5", got)
	}

	p.available = true
	if err := in.CloseInterval(10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := in.TotalAvailableHours(); got != 7 {
		t.Errorf("TotalAvailableHours() = %v, want 7", got)
	}
}

func TestCloseIntervalPropagatesProbeError(t *testing.T) {
	p := &fakeProber{err: errBoom}
	in := New(p)

	if err := in.CloseInterval(1); err == nil {
		t.Fatal("expected error from probe to propagate")
	}
}

func TestResetZeroesState(t *testing.T) {
	p := &fakeProber{available: true}
	in := New(p)
	in.CloseInterval(4)

	in.Reset()
	if got := in.TotalAvailableHours(); got != 0 {
		t.Errorf("TotalAvailableHours() after Reset = %v, want 0", got)
	}

	if err := in.CloseInterval(3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := in.TotalAvailableHours(); got != 3 {
		t.Errorf("TotalAvailableHours() after Reset+close = %v, want 3", got)
	}
}

func TestFinalizeClosesAgainstHorizon(t *testing.T) {
	p := &fakeProber{available: true}
	in := New(p)
	in.CloseInterval(6)

	if err := in.Finalize(10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := in.TotalAvailableHours(); got != 10 {
		t.Errorf("TotalAvailableHours() after Finalize = %v, want 10", got)
	}
}

func TestAvailabilityPercentageGuardsZeroHorizon(t *testing.T) {
	if got := AvailabilityPercentage(5, 0); got != 0 {
		t.Errorf("AvailabilityPercentage(5, 0) = %v, want 0", got)
	}
	if got := AvailabilityPercentage(5, 10); got != 50 {
		t.Errorf("AvailabilityPercentage(5, 10) = %v, want 50", got)
	}
}

