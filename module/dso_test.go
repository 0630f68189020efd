// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package module

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDebugCandidatesSearchOrder(t *testing.T) {
	cands := debugCandidates("/usr/bin/cat", "cat.debug")
	require.Equal(t, "/usr/bin/cat.debug", cands[0])
	require.Equal(t, "/usr/bin/.debug/cat.debug", cands[1])
	require.Equal(t, "/usr/lib/debug/usr/bin/cat.debug", cands[2])
	require.Equal(t, "/usr/local/lib/debug/usr/bin/cat.debug", cands[3])
}

func TestRegistryFindIsBinarySearchOverSortedRanges(t *testing.T) {
	r := NewRegistry(8)
	a := &DSO{Path: "/bin/a"}
	b := &DSO{Path: "/bin/b"}
	r.byRange = []mapping{
		{start: 0x1000, end: 0x2000, dso: a},
		{start: 0x5000, end: 0x6000, dso: b},
	}

	d, base, ok := r.find(0x1500)
	require.True(t, ok)
	require.Same(t, a, d)
	require.Equal(t, uintptr(0x1000), base)

	_, _, ok = r.find(0x3000)
	require.False(t, ok)

	d, _, ok = r.find(0x5fff)
	require.True(t, ok)
	require.Same(t, b, d)
}

func TestOpenOrReuseReusesIdleHandle(t *testing.T) {
	r := NewRegistry(8)
	first := r.openOrReuse("/bin/a", 0x400000)
	r.idle.Add("/bin/a", first)

	second := r.openOrReuse("/bin/a", 0x500000)
	require.Same(t, first, second)
	require.Equal(t, uint64(0x500000), second.base)
}
