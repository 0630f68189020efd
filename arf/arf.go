// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arf is the user-facing entry point of the backtrace engine:
// a single Barf call that prints a headline and the current stack to
// an io.Writer (stderr by default).
//
// The header-side activation modes the wider project's C lineage
// exposes (a direct symbol, an indirection pointer the library
// populates at load time, or a lazily-resolved pointer read from an
// environment variable for preloaded use) are a consequence of C's
// weak-symbol and dynamic-preload linkage model. A Go binary is always
// statically linked against this package when imported, so only the
// first of those modes — call the function directly — has a
// counterpart here; BarfFunc exists purely so a caller that wants the
// L1-style "conditional invocation through a pointer" can nil it out.
package arf

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/arfero/arfero/backtrace"
)

var (
	once   sync.Once
	engine *backtrace.Engine
	mu     sync.Mutex
	out    io.Writer = os.Stderr
)

func get() *backtrace.Engine {
	once.Do(func() { engine = backtrace.New(8) })
	return engine
}

// SetOutput redirects where Barf writes; passing nil restores stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	out = w
}

// BarfFunc holds Barf. Barf itself does not consult it; call sites that
// call through BarfFunc after checking it for nil can be switched off
// by setting it to nil, mirroring the L1 activation mode's
// conditional-pointer-call behavior.
var BarfFunc = Barf

// Barf prints an optional headline followed by the current backtrace.
// Called with no arguments it prints a default headline; called with a
// single string it is prepended and colon-suffixed, matching the
// original library's no-arguments convenience form.
func Barf(format string, args ...interface{}) {
	mu.Lock()
	w := out
	mu.Unlock()

	why := "barf"
	switch {
	case format != "" && len(args) == 0:
		why = format + ":"
	case format != "":
		why = fmt.Sprintf(format, args...)
	}
	get().Print(w, why)
}
