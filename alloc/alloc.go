// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package alloc is the stable ABI a libc allocator-interposition shim
// calls into. It owns no allocation itself — a cgo or assembly layer
// outside this module is expected to call the real malloc/calloc/
// realloc/free symbols directly and report the outcome here — this
// package is purely the bookkeeping half described as "pure
// data-structure code" paired with that shim.
package alloc

import (
	"golang.org/x/sys/unix"

	"github.com/arfero/arfero/arbiter"
	"github.com/arfero/arfero/leak"
)

// Interposer routes allocator events to the leak bookkeeper under the
// arbiter's critical section, short-circuiting any call made while the
// calling goroutine is itself the section's executor (the recursive
// reentrant bookkeeping case).
type Interposer struct {
	arb     *arbiter.Arbiter
	book    *leak.Bookkeeper
	enabled func() bool // Profiling flag, read without the lock
}

// New returns an Interposer that tracks allocations in book whenever
// enabled reports true and the caller is not already the arbiter's
// executor.
func New(arb *arbiter.Arbiter, book *leak.Bookkeeper, enabled func() bool) *Interposer {
	return &Interposer{arb: arb, book: book, enabled: enabled}
}

func (in *Interposer) active() bool {
	return in.enabled() && !in.arb.IsExecutor()
}

// Malloc records a successful allocation of size bytes at ptr. Call
// this (and all of the methods below) only after the real allocator
// has already produced ptr — these never allocate or free memory
// themselves.
func (in *Interposer) Malloc(ptr uintptr, size int64) {
	if !in.active() {
		return
	}
	in.arb.Enter()
	in.book.Track(int32(unix.Gettid()), ptr, size, 0)
	in.arb.Exit()
}

// Calloc records an allocation the same way as Malloc; the zeroing
// itself is the real allocator's concern, not ours.
func (in *Interposer) Calloc(ptr uintptr, nmemb, size int64) {
	in.Malloc(ptr, nmemb*size)
}

// Memalign, Valloc and Pvalloc are aligned-allocation variants that all
// reduce to the same bookkeeping as Malloc.
func (in *Interposer) Memalign(ptr uintptr, size int64) { in.Malloc(ptr, size) }
func (in *Interposer) Valloc(ptr uintptr, size int64)   { in.Malloc(ptr, size) }
func (in *Interposer) Pvalloc(ptr uintptr, size int64)  { in.Malloc(ptr, size) }

// Free records that ptr is no longer live.
func (in *Interposer) Free(ptr uintptr) {
	if ptr == 0 || !in.active() {
		return
	}
	in.arb.Enter()
	in.book.Untrack(ptr)
	in.arb.Exit()
}

// Cfree is the legacy alias for Free.
func (in *Interposer) Cfree(ptr uintptr) { in.Free(ptr) }

// Realloc records a reallocation from oldPtr to newPtr of newSize
// bytes, applying the original allocator's routing rules:
// realloc(NULL, n) must attribute the allocation to Malloc's call site
// rather than an intermediate realloc frame, and realloc(p, 0) must be
// attributed to Free so it stops appearing as a live record.
func (in *Interposer) Realloc(oldPtr, newPtr uintptr, newSize int64) {
	switch {
	case oldPtr == 0:
		in.Malloc(newPtr, newSize)
	case newSize == 0:
		in.Free(oldPtr)
	default:
		if !in.active() {
			return
		}
		in.arb.Enter()
		in.book.Retrack(int32(unix.Gettid()), oldPtr, newPtr, newSize, 0)
		in.arb.Exit()
	}
}
