// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package buffer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndPrepend(t *testing.T) {
	var b Buffer
	b.Append("world")
	b.Prepend("hello ")
	require.Equal(t, "hello world", b.String())
}

func TestAppendfHandlesLargeOutput(t *testing.T) {
	var b Buffer
	long := strings.Repeat("x", 200)
	b.Appendf("%s=%s", "name", long)
	require.Equal(t, "name="+long, b.String())
}

func TestRollback(t *testing.T) {
	var b Buffer
	b.Append("abc")
	cp := b.Checkpoint()
	b.Append("def")
	require.Equal(t, "abcdef", b.String())
	b.Rollback(cp)
	require.Equal(t, "abc", b.String())
}

func TestResetReusesBackingArray(t *testing.T) {
	var b Buffer
	b.Append("some text")
	backing := b.Bytes()
	b.Reset()
	require.Equal(t, 0, b.Len())
	b.Append("y")
	require.Same(t, &backing[0], &b.Bytes()[0])
}

func TestInsertSortedAndSearchSorted(t *testing.T) {
	less := func(a, b uintptr) bool { return a < b }
	var s []uintptr
	for _, x := range []uintptr{5, 1, 3, 2, 4} {
		s = InsertSorted(s, x, less)
	}
	require.Equal(t, []uintptr{1, 2, 3, 4, 5}, s)
	require.True(t, SearchSorted(s, 3, less))
	require.False(t, SearchSorted(s, 99, less))
}
