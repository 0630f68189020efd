// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package envconfig reads the handful of environment variables that
// tune the backtrace engine and leak detector (ARF_*, LIBERO_*). Each
// variable is parsed once and cached, matching the original library's
// static-local "have I already looked this up" pattern, and a
// malformed value is logged once rather than rejected.
package envconfig

import (
	"os"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu    sync.Mutex
	cache = map[string]int{}
	seen  = map[string]bool{}
)

// Int returns the integer value of the named environment variable, or
// def if it is unset, empty, or not a valid integer. A malformed value
// is logged once per process, not once per call.
func Int(name string, def int) int {
	mu.Lock()
	defer mu.Unlock()
	if v, ok := cache[name]; ok {
		return v
	}

	v := def
	if raw, ok := os.LookupEnv(name); ok && raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			v = n
		} else if !seen[name] {
			logrus.WithField("var", name).WithField("value", raw).
				Warn("envconfig: ignoring malformed integer, using default")
		}
	}
	seen[name] = true
	cache[name] = v
	return v
}

// Bool reports whether the named environment variable is set to a
// positive integer, the convention this project's C ancestor used in
// place of true/false strings (e.g. ARF_MANGLED=1).
func Bool(name string) bool {
	return Int(name, 0) > 0
}

// Reset clears the cache. It exists for tests that need to exercise
// envconfig with different process environments; production code never
// calls it.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cache = map[string]int{}
	seen = map[string]bool{}
}
