// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package arbiter

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnterExitRunsWithoutDeferredReport(t *testing.T) {
	var ran atomic.Int32
	a := New(func() { ran.Add(1) })
	a.Enter()
	require.True(t, a.IsExecutor())
	a.Exit()
	require.False(t, a.IsExecutor())
	require.Zero(t, ran.Load())
}

func TestRequestReportRunsDirectlyWhenFree(t *testing.T) {
	var ran atomic.Int32
	a := New(func() { ran.Add(1) })
	a.RequestReport()
	require.Equal(t, int32(1), ran.Load())
}

func TestConcurrentEnterExitSerializes(t *testing.T) {
	a := New(nil)
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Enter()
			counter++
			a.Exit()
		}()
	}
	wg.Wait()
	require.Equal(t, 50, counter)
}

func TestDeferredReportRunsOnExitWhenPending(t *testing.T) {
	var ran atomic.Int32
	a := New(func() { ran.Add(1) })
	a.Enter()
	a.spin.Store(pending) // simulate a signal handler marking a report pending
	a.Exit()
	require.Equal(t, int32(1), ran.Load())
}
