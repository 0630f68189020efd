// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arfero/arfero/arbiter"
	"github.com/arfero/arfero/leak"
)

func newFixture(enabled bool) (*Interposer, *leak.Bookkeeper) {
	book := leak.New(nil, false, -1)
	arb := arbiter.New(nil)
	in := New(arb, book, func() bool { return enabled })
	return in, book
}

func TestMallocTracksWhenEnabled(t *testing.T) {
	in, book := newFixture(true)
	in.Malloc(0x1000, 64)
	require.Equal(t, 1, book.NMemories)
}

func TestMallocNoopWhenDisabled(t *testing.T) {
	in, book := newFixture(false)
	in.Malloc(0x1000, 64)
	require.Equal(t, 0, book.NMemories)
}

func TestFreeUntracks(t *testing.T) {
	in, book := newFixture(true)
	in.Malloc(0x1000, 64)
	in.Free(0x1000)
	require.Equal(t, 0, book.NMemories)
}

func TestReallocFromNullRoutesToMalloc(t *testing.T) {
	in, book := newFixture(true)
	in.Realloc(0, 0x2000, 128)
	require.Equal(t, 1, book.NMemories)
	require.Equal(t, uintptr(0x2000), book.Memories.Ptr)
}

func TestReallocToZeroRoutesToFree(t *testing.T) {
	in, book := newFixture(true)
	in.Malloc(0x1000, 64)
	in.Realloc(0x1000, 0, 0)
	require.Equal(t, 0, book.NMemories)
}

func TestReallocOrdinaryPathRetracks(t *testing.T) {
	in, book := newFixture(true)
	in.Malloc(0x1000, 64)
	in.Realloc(0x1000, 0x3000, 128)
	require.Equal(t, 1, book.NMemories)
	require.Equal(t, int64(128), book.Allocated)
}

func TestCfreeAliasesFree(t *testing.T) {
	in, book := newFixture(true)
	in.Malloc(0x1000, 64)
	in.Cfree(0x1000)
	require.Equal(t, 0, book.NMemories)
}
