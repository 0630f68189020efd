// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arfero/arfero/internal/procmaps"
)

type fakeImage struct {
	base     uint64
	sections []Section
}

func (f fakeImage) Base() uint64       { return f.base }
func (f fakeImage) Sections() []Section { return f.sections }

func TestClassifyUsesSectionHeadersFirst(t *testing.T) {
	img := fakeImage{
		base: 0x400000,
		sections: []Section{
			{Addr: 0x1000, Size: 0x100, Loadable: true, Alloc: true, Exec: true},
			{Addr: 0x2000, Size: 0x100, Loadable: true, Alloc: true, Exec: false},
		},
	}
	var c Cache

	kind, end := c.Classify(img, 0x400000+0x1050)
	require.Equal(t, Code, kind)
	require.Equal(t, uintptr(0x400000+0x1100), end)

	kind, _ = c.Classify(img, 0x400000+0x2050)
	require.Equal(t, Data, kind)
}

func TestClassifyFallsBackToMaps(t *testing.T) {
	sample := `00400000-00452000 r-xp 00000000 08:02 173521      /usr/bin/cat
7f1000000000-7f1000021000 rw-p 00000000 00:00 0
7f1000021000-7f1000041000 rw-p 00000000 00:00 0                        [heap]
7fff12345000-7fff12366000 rw-p 00000000 00:00 0                        [stack]
7fff1237d000-7fff1237f000 r-xp 00000000 00:00 0                        [vdso]
`
	entries, err := procmaps.Parse(strings.NewReader(sample))
	require.NoError(t, err)

	var c Cache
	c.segments = nil
	for _, e := range entries {
		c.segments = append(c.segments, segment{start: e.Start, end: e.End, kind: classifyEntry(e)})
	}

	kind, _ := c.Classify(nil, 0x00400100)
	require.Equal(t, Code, kind)

	kind, _ = c.Classify(nil, 0x7f1000022000)
	require.Equal(t, Heap, kind)

	kind, _ = c.Classify(nil, 0x7fff12346000)
	require.Equal(t, Stack, kind)

	kind, _ = c.Classify(nil, 0x7fff1237e000)
	require.Equal(t, Code, kind)

	kind, _ = c.Classify(nil, 0x7f1000000100)
	require.Equal(t, Stack, kind)
}

func TestClassifyBelowLowAddressGuard(t *testing.T) {
	var c Cache
	kind, end := c.Classify(nil, 100)
	require.Equal(t, Other, kind)
	require.Equal(t, uintptr(0), end)
}
