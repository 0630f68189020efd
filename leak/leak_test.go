// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package leak

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeCapture(pcs ...uintptr) CaptureFunc {
	return func(skip, max int) []uintptr {
		if max < len(pcs) {
			return pcs[:max]
		}
		return pcs
	}
}

func TestTrackUntrackBalance(t *testing.T) {
	b := New(fakeCapture(1, 2, 3), true, -1)
	b.Track(1, 0x1000, 100, 0)
	b.Track(1, 0x2000, 200, 0)
	require.Equal(t, 2, b.NMemories)
	require.Equal(t, int64(300), b.Allocated)

	b.Untrack(0x1000)
	b.Untrack(0x2000)
	require.Equal(t, 0, b.NMemories)
	require.Equal(t, int64(0), b.Allocated)
}

func TestUntrackMissIsNoop(t *testing.T) {
	b := New(nil, false, -1)
	b.Track(1, 0x1000, 10, 0)
	b.Untrack(0xdead)
	require.Equal(t, 1, b.NMemories)
}

func TestRetrackAdjustsSizeAndMovesToHead(t *testing.T) {
	b := New(nil, false, -1)
	b.Track(1, 0x1000, 10, 0)
	b.Track(1, 0x2000, 20, 0)

	b.Retrack(1, 0x1000, 0x1500, 50, 0)
	require.Equal(t, uintptr(0x1500), b.Memories.Ptr)
	require.Equal(t, int64(70), b.Allocated) // 10+20 - 10 + 50
}

func TestRetrackMissFallsBackToTrack(t *testing.T) {
	b := New(nil, false, -1)
	b.Retrack(1, 0xdead, 0xbeef, 64, 0)
	require.Equal(t, 1, b.NMemories)
	require.Equal(t, uintptr(0xbeef), b.Memories.Ptr)
}

func TestPeakMonotonicity(t *testing.T) {
	b := New(nil, false, -1)
	b.Track(1, 1, 100, 0)
	b.Track(1, 2, 50, 0)
	require.Equal(t, int64(150), b.Peak)
	b.Untrack(1)
	require.Equal(t, int64(150), b.Peak) // peak doesn't shrink mid-period
	require.Equal(t, int64(50), b.Allocated)
}

func TestKarmaSurvivesAcrossSummarize(t *testing.T) {
	b := New(nil, false, -1)
	b.Track(1, 1, 10, 0)
	b.Memories.Karma++
	_, _, allocated, delta, peak, _ := b.Summarize()
	require.Equal(t, int64(10), allocated)
	require.Equal(t, int64(10), delta) // first report: previous baseline starts at 0
	require.Equal(t, int64(10), peak)
	require.Equal(t, 1, b.Memories.Karma)
}

func TestBacktraceEqualityWithPadding(t *testing.T) {
	b := New(fakeCapture(10, 20), true, -1)
	b.Track(1, 1, 8, 0)
	b.Track(1, 2, 8, 0)
	require.True(t, chainEqual(b.Memories.BT, b.Memories.next.BT))
}

func TestSortGroupsByBacktraceKarmaDescending(t *testing.T) {
	b := New(fakeCapture(1, 2), true, -1)
	b.Track(1, 1, 8, 0)
	b.Track(1, 2, 8, 0)
	b.Memories.Karma = 3 // most-recently tracked is head; give it higher karma

	b.Sort()
	require.True(t, chainEqual(b.Memories.BT, b.Memories.next.BT))
	require.GreaterOrEqual(t, b.Memories.Karma, b.Memories.next.Karma)
}
