// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unwind

import (
	"errors"
	"unsafe"

	"github.com/arfero/arfero/classify"
)

// frameRecord is the [saved-fp, return-address] pair both amd64 and
// arm64 leave at the address a maintained frame pointer points to.
type frameRecord struct {
	savedFP uintptr
	retAddr uintptr
}

var errNoFramePointer = errors.New("unwind: architecture has no frame pointer")

// framePointerStrategy walks the chain of maintained frame pointers by
// hand instead of asking the runtime, grounded on the i386 branch of
// getlr(): at each fp, fp[0] must be the previous fp (somewhere on the
// same stack segment) and fp[1] must be a return address in CODE.
type framePointerStrategy struct {
	c *classify.Cache
}

func newFramePointerStrategy(c *classify.Cache) Strategy {
	if !haveFramePointer {
		return nil
	}
	return framePointerStrategy{c: c}
}

func (framePointerStrategy) Name() string { return "frame-pointer" }

func (s framePointerStrategy) Unwind(skip, max int) ([]uintptr, error) {
	frames, err := s.Frames(skip+1, max)
	pcs := make([]uintptr, len(frames))
	for i, f := range frames {
		pcs[i] = f.PC
	}
	return pcs, err
}

func (s framePointerStrategy) Frames(skip, max int) ([]Frame, error) {
	fp := currentFramePointer()
	if fp == 0 {
		return nil, errNoFramePointer
	}

	var frames []Frame
	var prevSeg uintptr
	for i := 0; fp != 0 && len(frames) < max; i++ {
		rec := (*frameRecord)(unsafe.Pointer(fp))

		if kind, _ := s.c.Classify(nil, rec.retAddr); kind != classify.Code {
			break
		}

		if i >= skip {
			frames = append(frames, Frame{PC: rec.retAddr, FP: fp})
		}

		next := rec.savedFP
		if next == 0 {
			break
		}
		sk, seg := s.c.Classify(nil, next)
		if sk != classify.Stack {
			break
		}
		if prevSeg == 0 {
			prevSeg = seg
		} else if seg != 0 && seg != prevSeg {
			break // crossed into a different stack segment, e.g. a clone() boundary
		}
		if next == fp || next < fp {
			break // corrupted chain: same frame, or the stack grew the wrong way
		}
		fp = next
	}
	if len(frames) == max {
		return frames, ErrTruncated
	}
	return frames, nil
}
