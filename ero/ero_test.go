// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ero

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWiresComponentsWithoutStarting(t *testing.T) {
	d := New()
	require.NotNil(t, d.book)
	require.NotNil(t, d.arb)
	require.NotNil(t, d.In)
	require.NotNil(t, d.rep)
	require.False(t, d.isProfiling())
}

func TestOnSignalFirstCallOnlyArmsProfiling(t *testing.T) {
	d := New()
	require.False(t, d.isProfiling())
	d.onSignal()
	require.True(t, d.isProfiling())
}

func TestInterposerTracksOnceProfiling(t *testing.T) {
	d := New()
	d.onSignal() // arm profiling without requesting a report
	d.In.Malloc(0x1000, 32)
	require.Equal(t, 1, d.book.NMemories)
}

func TestDefaultReturnsSameInstance(t *testing.T) {
	require.Same(t, Default(), Default())
}
