// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build amd64

package unwind

import "github.com/arfero/arfero/classify"

const haveFramePointer = true

// currentFramePointer is implemented in fp_amd64.s. It returns the
// caller's frame pointer (the BP Go's amd64 compiler maintains by
// default), i.e. the frame one level up from this function.
func currentFramePointer() uintptr

func selectBest(c *classify.Cache) Strategy {
	return newFramePointerStrategy(c)
}
