// Package interrupt installs a SIGINT/SIGTERM handler that flushes
// whatever artefacts a run has produced so far before exiting, so an
// operator-cancelled run leaves the same files on disk a completed
// one would, just truncated at the last event actually written.
package interrupt

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
)

// Flusher is anything with partial state worth persisting on
// interrupt. The iteration driver implements it.
type Flusher interface {
	FlushPartial() error
}

// Handler watches for SIGINT/SIGTERM and runs every registered
// Flusher exactly once before the process exits.
type Handler struct {
	log      logr.Logger
	flushers []Flusher
	sigCh    chan os.Signal
	done     chan struct{}
}

// New constructs a Handler. Call Register for each component that
// needs to flush partial state, then Watch to start listening.
func New(log logr.Logger) *Handler {
	return &Handler{log: log, sigCh: make(chan os.Signal, 1), done: make(chan struct{})}
}

// Register adds f to the set flushed on interrupt.
func (h *Handler) Register(f Flusher) {
	h.flushers = append(h.flushers, f)
}

// Watch blocks until SIGINT or SIGTERM arrives, cancels the run
// context so the iteration loop stops before starting another event
// or iteration, flushes every registered Flusher (aggregating any
// errors), logs the outcome, and returns — callers exit the process
// afterward. If Stop is called first, Watch returns nil without
// cancelling or flushing.
func (h *Handler) Watch(cancel context.CancelFunc) error {
	signal.Notify(h.sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-h.sigCh:
	case <-h.done:
		return nil
	}
	h.log.Info("interrupt received, cancelling run and flushing partial results")
	cancel()

	var err error
	for _, f := range h.flushers {
		err = multierr.Append(err, f.FlushPartial())
	}
	if err != nil {
		h.log.Error(err, "error flushing partial results on interrupt")
	} else {
		h.log.Info("partial results flushed")
	}
	return err
}

// Stop unblocks a pending Watch call without a real signal having
// arrived, used on normal (non-interrupted) exit to let the watcher
// goroutine return instead of leaking for the rest of the process
// lifetime.
func (h *Handler) Stop() {
	signal.Stop(h.sigCh)
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}
