// Package onceinit provides a one-shot initialization barrier for the
// classic "first caller runs setup, everyone else waits for or skips it"
// lazy-service-location pattern.
package onceinit

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Mode selects how competing Need callers are treated.
type Mode int

const (
	// Synchronized is the default, fair mode: Need blocks competing
	// callers until the elected caller calls Done or Retry.
	Synchronized Mode = iota

	// RunOnce makes Need non-blocking: only the first caller to win the
	// internal lock observes true; every other caller sees false
	// immediately, even while the elected caller is still running.
	RunOnce
)

// Barrier is a one-shot initialization coordinator. The zero value is not
// usable; construct one with New.
type Barrier struct {
	mode        Mode
	sem         *semaphore.Weighted
	initialized atomic.Bool
	held        atomic.Bool
}

// New returns a Barrier in the given mode, uninitialized.
func New(mode Mode) *Barrier {
	return &Barrier{
		mode: mode,
		sem:  semaphore.NewWeighted(1),
	}
}

// Need returns true exactly to the caller that must perform
// initialization. In Synchronized mode a true result means the caller now
// owns the barrier and must call Done or Retry before any other caller's
// Need can proceed; a false result means either initialization already
// happened or another caller is performing it and this call waited for
// that to finish. In RunOnce mode, Need never blocks: only the caller that
// wins the internal lock on the very first call ever sees true.
func (b *Barrier) Need() bool {
	if b.initialized.Load() {
		return false
	}

	switch b.mode {
	case RunOnce:
		if !b.sem.TryAcquire(1) {
			return false
		}
		if b.initialized.Load() {
			b.sem.Release(1)
			return false
		}
		b.held.Store(true)
		b.initialized.Store(true)
		return true

	default: // Synchronized
		_ = b.sem.Acquire(context.Background(), 1)
		if b.initialized.Load() {
			b.sem.Release(1)
			return false
		}
		b.held.Store(true)
		return true
	}
}

// Done marks the barrier initialized and releases ownership. It fails
// (panics, a programming error has no recoverable meaning here) if the
// calling goroutine does not currently hold the barrier from a true Need.
func (b *Barrier) Done() {
	b.release(true)
}

// Retry marks the barrier uninitialized and releases ownership, so a
// subsequent Need can elect a new initializer. It has the same ownership
// requirement as Done.
func (b *Barrier) Retry() {
	b.release(false)
}

func (b *Barrier) release(success bool) {
	if !b.held.CompareAndSwap(true, false) {
		panic("onceinit: done/retry called without owning the barrier")
	}
	b.initialized.Store(success)
	b.sem.Release(1)
}

// Initialized reports the current state without synchronizing with any
// in-flight Need/Done/Retry call.
func (b *Barrier) Initialized() bool {
	return b.initialized.Load()
}

// Clear forcibly resets the barrier to uninitialized. It does not require
// ownership and is meant for tests and administrative reset paths, not
// the steady-state initialization protocol.
func (b *Barrier) Clear() {
	b.initialized.Store(false)
}
