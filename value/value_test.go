// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package value

import (
	"os"
	"strings"
	"testing"
	"unsafe"

	"debug/dwarf"

	"github.com/stretchr/testify/require"

	"github.com/arfero/arfero/classify"
	"github.com/arfero/arfero/internal/envconfig"
)

func intType(size int64) *dwarf.IntType {
	return &dwarf.IntType{BasicType: dwarf.BasicType{
		CommonType: dwarf.CommonType{ByteSize: size, Name: "int"},
	}}
}

func TestDecodeBasicInt(t *testing.T) {
	var c classify.Cache
	d := NewDecoder(&c)

	x := int32(42)
	addr := uintptr(unsafe.Pointer(&x))

	got, ok := d.Decode(intType(4), "x", addr)
	require.True(t, ok)
	require.Equal(t, "x=42", got)
}

func TestDecodePointerToInt(t *testing.T) {
	var c classify.Cache
	d := NewDecoder(&c)

	y := int32(99)
	p := &y
	pAddr := uintptr(unsafe.Pointer(&p))

	dt := &dwarf.PtrType{CommonType: dwarf.CommonType{ByteSize: int64(pointerSize)}, Type: intType(4)}

	got, ok := d.Decode(dt, "p", pAddr)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(got, "p=0x"))
	require.Contains(t, got, "*p=99")
}

func TestDecodeArrayOfInts(t *testing.T) {
	var c classify.Cache
	d := NewDecoder(&c)

	arr := [3]int32{1, 2, 3}
	addr := uintptr(unsafe.Pointer(&arr[0]))

	dt := &dwarf.ArrayType{CommonType: dwarf.CommonType{}, Type: intType(4), Count: 3}

	got, ok := d.Decode(dt, "arr", addr)
	require.True(t, ok)
	require.Equal(t, "arr=0x"+hexNoPrefix(addr)+"={1, 2, 3}", got)
}

func hexNoPrefix(addr uintptr) string {
	s := ptrHex(addr)
	return strings.TrimPrefix(s, "0x")
}

func TestSeenMarksOncePerAddress(t *testing.T) {
	var s Seen
	require.False(t, s.Mark(100))
	require.True(t, s.Mark(100))
	require.False(t, s.Mark(200))
}

func TestMaxArrayDefaultsToEightWhenUnset(t *testing.T) {
	os.Unsetenv("ARF_MAXARRAY")
	envconfig.Reset()
	require.Equal(t, 8, maxArray())
}

func TestMaxStringDefaultsToSixtyFourWhenUnset(t *testing.T) {
	os.Unsetenv("ARF_MAXSTRING")
	envconfig.Reset()
	require.Equal(t, 64, maxString())
}

func TestDecodeUnsupportedType(t *testing.T) {
	var c classify.Cache
	d := NewDecoder(&c)
	var x int
	_, ok := d.Decode(&dwarf.StructType{}, "s", uintptr(unsafe.Pointer(&x)))
	require.False(t, ok)
}
