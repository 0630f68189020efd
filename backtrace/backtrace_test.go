// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package backtrace

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arfero/arfero/symbolize"
)

func TestFuncLabelVariants(t *testing.T) {
	require.Equal(t, "[0x1000]", funcLabel(symbolize.Site{}, 0x1000))
	require.Equal(t, "foo()", funcLabel(symbolize.Site{FuncName: "foo"}, 0))
	require.Equal(t, "Thing", funcLabel(symbolize.Site{Class: "Thing"}, 0))
	require.Equal(t, "Thing::foo()", funcLabel(symbolize.Site{FuncName: "foo", Class: "Thing"}, 0))
}

func TestDecodeSLEB128(t *testing.T) {
	// -8 encodes as 0x78 per the DWARF spec worked example.
	v, n := decodeSLEB128([]byte{0x78})
	require.Equal(t, 1, n)
	require.Equal(t, int64(-8), v)

	v, n = decodeSLEB128([]byte{0x02})
	require.Equal(t, 1, n)
	require.Equal(t, int64(2), v)
}

func TestEvalLocationFbreg(t *testing.T) {
	block := []byte{dwOpFbreg, 0x78} // fbreg -8
	addr, ok := evalLocation(block, 1000, 0)
	require.True(t, ok)
	require.Equal(t, uintptr(992), addr)
}

func TestEvalLocationAddr(t *testing.T) {
	block := make([]byte, 9)
	block[0] = dwOpAddr
	block[1] = 0x10 // little-endian 0x10
	addr, ok := evalLocation(block, 0, 0x400000)
	require.True(t, ok)
	require.Equal(t, uintptr(0x400010), addr)
}

func TestEvalLocationUnsupportedOp(t *testing.T) {
	_, ok := evalLocation([]byte{0x9c /* DW_OP_call_frame_cfa */}, 0, 0)
	require.False(t, ok)
}

func TestEngineSmokePrintsWithoutPanicking(t *testing.T) {
	e := New(4)
	var buf bytes.Buffer
	e.Print(&buf, "smoke test")
	require.Contains(t, buf.String(), "smoke test")
}
