// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package report formats the periodic delta reports the leak detector
// emits to its output file: a header the first time, then per-report
// counters and, unless terse mode is set, the grouped, sorted list of
// live allocations with their backtraces.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arfero/arfero/backtrace"
	"github.com/arfero/arfero/internal/envconfig"
	"github.com/arfero/arfero/leak"
)

const rule = "---------------------------------------------------------------------------"

// Reporter writes delta reports for one Bookkeeper to an append-mode
// output file named after the running program and its pid.
type Reporter struct {
	book    *leak.Bookkeeper
	bt      *backtrace.Engine
	path    string
	started bool
}

// OutputPath returns the canonical report file name for the running
// process: the basename of argv[0] with the pid and ".leaks" appended.
func OutputPath() string {
	base := filepath.Base(os.Args[0])
	return fmt.Sprintf("%s.%d.leaks", base, os.Getpid())
}

// New returns a Reporter that appends to OutputPath(), using bt to
// print backtraces for groups that pass the karma threshold.
func New(book *leak.Bookkeeper, bt *backtrace.Engine) *Reporter {
	return &Reporter{book: book, bt: bt, path: OutputPath()}
}

// Emit writes one report. A failure to open the output file is logged
// as a warning and the report is skipped; it is never fatal: a
// diagnostic tool must never destabilize the host program.
func (r *Reporter) Emit() {
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logrus.WithError(err).Warn("report: could not open output file, skipping report")
		return
	}
	defer f.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	if !r.started {
		fmt.Fprintf(f, "profiling started %s\n", now)
		r.started = true
	}

	nAlloc, nMem, allocated, deltaAllocated, peak, deltaPeak := r.book.Summarize()
	fmt.Fprintf(f, "report %s: nallocs=%d live=%d allocated=%d(%+d) peak=%d(%+d)\n",
		now, nAlloc, nMem, allocated, deltaAllocated, peak, deltaPeak)

	if !envconfig.Bool("LIBERO_TERSE") {
		r.printGroups(f)
	}

	fmt.Fprintln(f, rule)
}

func (r *Reporter) printGroups(w io.Writer) {
	r.book.Sort()
	threshold := envconfig.Int("LIBERO_KARMA_DEPTH", 1)

	var group []*leak.Record
	flush := func() {
		if len(group) == 0 {
			return
		}
		karmas := map[int]bool{}
		for _, rec := range group {
			karmas[rec.Karma] = true
			fmt.Fprintf(w, "  ptr=%#x tid=%d size=%d karma=%d\n", rec.Ptr, rec.TID, rec.Size, rec.Karma)
			rec.Karma++
		}
		if len(karmas) >= threshold {
			r.bt.PrintPCs(w, group[0].PCs())
		}
		group = group[:0]
	}

	var prev *leak.Record
	for rec := r.book.Memories; rec != nil; rec = rec.Next() {
		if prev != nil && !prev.SameBacktrace(rec) {
			flush()
		}
		group = append(group, rec)
		prev = rec
	}
	flush()
}
