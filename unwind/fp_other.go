// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !amd64 && !arm64 && !arm

package unwind

import "github.com/arfero/arfero/classify"

const haveFramePointer = false

func currentFramePointer() uintptr { return 0 }

func selectBest(c *classify.Cache) Strategy { return nil }
