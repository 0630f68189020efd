// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build arm64

package unwind

import "github.com/arfero/arfero/classify"

const haveFramePointer = true

// currentFramePointer is implemented in fp_arm64.s. It returns the
// caller's frame pointer (R29/FP), following the AAPCS64 convention
// Go's arm64 compiler maintains.
func currentFramePointer() uintptr

func selectBest(c *classify.Cache) Strategy {
	return newFramePointerStrategy(c)
}
