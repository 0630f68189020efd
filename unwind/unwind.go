// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package unwind collects the program counters of the calling
// goroutine's stack frames. Three interchangeable strategies are
// available: the Go runtime's own unwinder (NewPlatform), a manual
// frame-pointer walk (amd64/arm64), and a prologue-decoding walk for
// 32-bit arm. Select picks the manual walker where one exists and the
// runtime unwinder everywhere else.
package unwind

import (
	"errors"
	"runtime"

	"github.com/arfero/arfero/classify"
)

// ErrTruncated is returned alongside a partial frame list when more
// frames existed than the caller's buffer could hold.
var ErrTruncated = errors.New("unwind: stack truncated")

// Frame is one stack frame: the return address, and (only when the
// strategy walked maintained frame pointers) the frame pointer that
// produced it, needed to locate that frame's local variables.
type Frame struct {
	PC uintptr
	FP uintptr // 0 if unavailable
}

// Strategy produces the return-address chain for the calling goroutine,
// innermost first. With skip 0 the first entry is the function that
// called Unwind (or Frames); each unit of skip drops one more frame.
type Strategy interface {
	Name() string
	Unwind(skip, max int) ([]uintptr, error)
	Frames(skip, max int) ([]Frame, error)
}

// Platform unwinds using runtime.Callers, the same mechanism the Go
// runtime itself uses for panics. It works everywhere Go runs; Select
// returns it only on architectures without a manual frame walker.
type platformStrategy struct{}

// NewPlatform returns the runtime.Callers-backed strategy.
func NewPlatform() Strategy { return platformStrategy{} }

func (platformStrategy) Name() string { return "platform" }

func (platformStrategy) Unwind(skip, max int) ([]uintptr, error) {
	pc := make([]uintptr, max)
	// +2: runtime.Callers itself, and this method.
	n := runtime.Callers(skip+2, pc)
	if n == 0 {
		return nil, nil
	}
	if n == max {
		return pc[:n], ErrTruncated
	}
	return pc[:n], nil
}

func (p platformStrategy) Frames(skip, max int) ([]Frame, error) {
	pcs, err := p.Unwind(skip+1, max)
	frames := make([]Frame, len(pcs))
	for i, pc := range pcs {
		frames[i] = Frame{PC: pc}
	}
	return frames, err
}

// Select returns the best strategy available on this architecture: a
// frame-pointer walker where one is grounded (amd64, arm64, or the
// prologue-aware walker on 32-bit arm), else the platform unwinder.
func Select(c *classify.Cache) Strategy {
	if s := selectBest(c); s != nil {
		return s
	}
	return NewPlatform()
}
