// Package engine - Build phase tracking
// ENFORCES the execution flow of a build:
// 1. Configured (context created over area, source and options)
// 2. Built (elevation and layers resolved)
// 3. Complete (statistics collected)
package engine

import (
	"sync"
	"time"

	"terrain-build/internal/errors"
)

// Phase represents build phases
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseConfigured           // Context created
	PhaseBuilt                // Requested kinds resolved
	PhaseComplete             // Result assembled
	PhaseFailed               // A stage failed
)

// String returns the phase name
func (p Phase) String() string {
	names := []string{"uninitialized", "configured", "built", "complete", "failed"}
	if int(p) >= 0 && int(p) < len(names) {
		return names[p]
	}
	return "unknown"
}

// PhaseTiming is the time a build spent reaching a phase
type PhaseTiming struct {
	Phase    Phase
	Duration time.Duration
}

// PhaseTracker tracks the current phase; phases can only move forward
type PhaseTracker struct {
	mu      sync.Mutex
	phase   Phase
	last    time.Time
	timings []PhaseTiming
	err     error
}

// NewPhaseTracker creates a tracker in PhaseUninitialized
func NewPhaseTracker() *PhaseTracker {
	return &PhaseTracker{last: time.Now()}
}

// Phase returns the current phase
func (t *PhaseTracker) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Advance moves to the next phase. Skipping or going back is an internal error.
func (t *PhaseTracker) Advance(next Phase) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.phase == PhaseFailed {
		return errors.Internal("build already failed", t.err)
	}
	if next != t.phase+1 || next == PhaseFailed {
		return errors.Newf(errors.TypeInternal, "cannot move from phase %s to %s", t.phase, next)
	}
	now := time.Now()
	t.timings = append(t.timings, PhaseTiming{Phase: next, Duration: now.Sub(t.last)})
	t.last = now
	t.phase = next
	return nil
}

// Fail moves to PhaseFailed and records the cause
func (t *PhaseTracker) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = PhaseFailed
	t.err = err
}

// Err returns the failure cause, if any
func (t *PhaseTracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Timings returns the time spent reaching each phase
func (t *PhaseTracker) Timings() []PhaseTiming {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]PhaseTiming(nil), t.timings...)
}
