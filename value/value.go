// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package value decodes and formats the value a DWARF variable holds
// in this process's own memory: dereferencing through typedefs,
// qualifiers, pointers and arrays down to a basic type, validating
// every pointer indirection against the address classifier before
// following it.
package value

import (
	"fmt"
	"unicode"
	"unsafe"

	"debug/dwarf"

	"github.com/arfero/arfero/classify"
	"github.com/arfero/arfero/internal/buffer"
	"github.com/arfero/arfero/internal/envconfig"
)

const pointerSize = unsafe.Sizeof(uintptr(0))

func maxArray() int  { return envconfig.Int("ARF_MAXARRAY", 8) }
func maxString() int { return envconfig.Int("ARF_MAXSTRING", 64) }

// Seen remembers which variable addresses have already been printed
// during the current backtrace, so a variable visible in several
// nested lexical scopes is only decoded once. The zero value is ready
// to use; a fresh Seen belongs to one backtrace.
type Seen struct {
	addrs []uintptr
}

func lessAddr(a, b uintptr) bool { return a < b }

// Mark reports whether addr has already been seen, recording it if not.
func (s *Seen) Mark(addr uintptr) (alreadySeen bool) {
	if buffer.SearchSorted(s.addrs, addr, lessAddr) {
		return true
	}
	s.addrs = buffer.InsertSorted(s.addrs, addr, lessAddr)
	return false
}

// Decoder walks and decodes DWARF variables, validating every pointer
// dereference against an address classifier before following it.
type Decoder struct {
	classify *classify.Cache
}

// NewDecoder returns a Decoder that validates pointers with c.
func NewDecoder(c *classify.Cache) *Decoder {
	return &Decoder{classify: c}
}

// basicKind classifies the leaf scalar type value decodes, mirroring
// the DW_ATE_* switch in the original decodevar/print_basic.
type basicKind int

const (
	kindUnsupported basicKind = iota
	kindSignedChar
	kindUnsignedChar
	kindSigned
	kindUnsigned
	kindFloat
	kindBool
	kindAddress
)

func classifyBasic(t dwarf.Type) (basicKind, int64) {
	switch b := t.(type) {
	case *dwarf.CharType:
		return kindSignedChar, b.CommonType.ByteSize
	case *dwarf.UcharType:
		return kindUnsignedChar, b.CommonType.ByteSize
	case *dwarf.IntType:
		return kindSigned, b.CommonType.ByteSize
	case *dwarf.UintType:
		return kindUnsigned, b.CommonType.ByteSize
	case *dwarf.FloatType:
		return kindFloat, b.CommonType.ByteSize
	case *dwarf.BoolType:
		return kindBool, b.CommonType.ByteSize
	case *dwarf.AddrType:
		return kindAddress, b.CommonType.ByteSize
	default:
		return kindUnsupported, 0
	}
}

// Decode decodes the variable named name, of DWARF type dt, located at
// addr in this process's address space, and returns its formatted
// "name=value" string. The second result is false if dt's type chain
// contains nothing this decoder knows how to print (a struct, a
// function, an unhandled form).
func (d *Decoder) Decode(dt dwarf.Type, name string, addr uintptr) (string, bool) {
	var nameBuf, line buffer.Buffer
	nameBuf.Append(name)

	waspointer, isarray := false, false
	var nelems uint64 = 1
	t := dt

	for {
		switch x := t.(type) {
		case *dwarf.TypedefType:
			t = x.Type
			continue
		case *dwarf.QualType:
			t = x.Type
			continue
		case *dwarf.ArrayType:
			if isarray {
				if waspointer {
					nameBuf.Prepend("(")
					nameBuf.Append(")")
				}
				nameBuf.Append("[0]")
			}
			nelems = arrayCount(x)
			isarray = true
			t = x.Type
			continue
		}

		if waspointer {
			ok, newNelems := d.validatePointer(addr, sizeOf(t), nelems)
			if !ok {
				line.Appendf("%s%s=%s", commaIf(waspointer), nameBuf.String(), ptrHex(addr))
				return line.String(), true
			}
			nelems = newNelems
		}

		if ptr, isPtr := t.(*dwarf.PtrType); isPtr {
			size := int64(pointerSize)
			if _, isVoid := ptr.Type.(*dwarf.VoidType); isVoid {
				appendBasicLine(&line, &nameBuf, addr, waspointer, isarray, nelems, kindAddress, size)
				return line.String(), true
			}

			appendPointer(&line, &nameBuf, addr, waspointer, isarray, nelems)
			if !isarray || !waspointer {
				nameBuf.Prepend("*")
				if isarray {
					nameBuf.Append("[0]")
				}
			} else { // isarray && waspointer: *akarmi => *(*akarmi)[0]
				nameBuf.Prepend("*(")
				nameBuf.Append(")[0]")
			}

			next := *(*uintptr)(unsafe.Pointer(addr))
			addr = next
			waspointer = true
			isarray = false
			nelems = 1
			t = ptr.Type
			continue
		}

		kind, size := classifyBasic(t)
		if kind == kindUnsupported {
			return "", false
		}
		if !appendBasicLine(&line, &nameBuf, addr, waspointer, isarray, nelems, kind, size) {
			return "", false
		}
		return line.String(), true
	}
}

func commaIf(nonEmpty bool) string {
	if nonEmpty {
		return ", "
	}
	return ""
}

// validatePointer re-checks a dereferenced address against the
// classifier, shrinking nelems if the full array wouldn't fit in the
// containing segment and refusing to follow the pointer at all if it
// doesn't land in STACK, HEAP or DATA.
func (d *Decoder) validatePointer(addr uintptr, size int64, nelems uint64) (ok bool, newNelems uint64) {
	kind, end := d.classify.Classify(nil, addr)
	switch kind {
	case classify.Stack, classify.Heap, classify.Data:
	default:
		return false, nelems
	}
	if size <= 0 {
		return true, nelems
	}
	if addr+uintptr(size)*uintptr(nelems) < end {
		return true, nelems
	}
	if n := uint64(end-addr) / uint64(size); n > 0 {
		return true, n
	}
	return false, nelems
}

func sizeOf(t dwarf.Type) int64 {
	if _, isPtr := t.(*dwarf.PtrType); isPtr {
		return int64(pointerSize)
	}
	_, size := classifyBasic(t)
	return size
}

// arrayCount returns the element count debug/dwarf already computed
// from DW_AT_upper_bound+1; an unknown bound (flexible array member)
// is treated as a single element, matching the original's nelems=1
// default.
func arrayCount(x *dwarf.ArrayType) uint64 {
	if x.Count <= 0 {
		return 1
	}
	return uint64(x.Count)
}

func ptrHex(addr uintptr) string { return fmt.Sprintf("%#x", addr) }

func appendPointer(line, name *buffer.Buffer, addr uintptr, waspointer, isarray bool, nelems uint64) {
	line.Append(commaIf(waspointer))
	line.Append(name.String())
	line.Append("=")
	if isarray {
		line.Appendf("%s={", ptrHex(addr))
	}
	first := *(*uintptr)(unsafe.Pointer(addr))
	line.Append(ptrHex(first))
	n := uint64(1)
	for ; n < nelems && int(n) < maxArray(); n++ {
		p := *(*uintptr)(unsafe.Pointer(addr + uintptr(n)*pointerSize))
		line.Appendf(", %s", ptrHex(p))
	}
	if isarray {
		if n < nelems {
			line.Append(", ...}")
		} else {
			line.Append("}")
		}
	}
}

// appendBasicLine renders the final scalar (or array of scalars)
// value and appends it to line, dispatching to the string/byte-array
// rendering used for char data.
func appendBasicLine(line, name *buffer.Buffer, addr uintptr, waspointer, isarray bool, nelems uint64, kind basicKind, size int64) bool {
	if (kind == kindSignedChar || kind == kindUnsignedChar) && (waspointer || isarray) {
		appendCharData(line, name, addr, waspointer, isarray, nelems)
		return true
	}

	line.Append(commaIf(waspointer))
	line.Append(name.String())
	line.Append("=")

	if isarray {
		line.Appendf("%s={", ptrHex(addr))
	}
	if !appendBasic(line, addr, kind, size) {
		return false
	}
	i := uint64(1)
	for ; isarray && i < nelems && int(i) < maxArray(); i++ {
		cp := line.Checkpoint()
		line.Append(", ")
		if !appendBasic(line, addr+uintptr(i)*uintptr(size), kind, size) {
			line.Rollback(cp)
			break
		}
	}
	if isarray {
		if i < nelems {
			line.Append(", ...}")
		} else {
			line.Append("}")
		}
	}
	return true
}

func appendCharData(line, name *buffer.Buffer, addr uintptr, waspointer, isarray bool, nelems uint64) {
	line.Append(commaIf(waspointer))
	line.Append(name.String())
	line.Append("=")
	if isarray {
		line.Appendf("%s=", ptrHex(addr))
	}
	str := (*[1 << 30]byte)(unsafe.Pointer(addr))

	n := 0
	binary := false
	for {
		if isarray && uint64(n) >= nelems {
			break
		}
		if n >= maxString() || str[n] == 0 {
			break
		}
		if !unicode.IsPrint(rune(str[n])) {
			if n >= maxArray() {
				break
			}
			binary = true
			if !isarray {
				break
			}
			if int(nelems) <= maxArray() {
				n = int(nelems)
			} else {
				n = maxArray()
			}
			break
		}
		n++
	}

	switch {
	case binary:
		line.Append("0x")
		for i := 0; i < n; i++ {
			line.Appendf("%.2x", str[i])
		}
		if isarray && uint64(n) < nelems {
			line.Append("...")
		}
	case isarray && uint64(n) < nelems:
		line.Appendf("%q...", string(str[:n]))
	default:
		line.Appendf("%q", string(str[:n]))
	}
}

func appendBasic(line *buffer.Buffer, addr uintptr, kind basicKind, size int64) bool {
	switch kind {
	case kindFloat:
		switch size {
		case 4:
			line.Appendf("%f", *(*float32)(unsafe.Pointer(addr)))
		case 8:
			line.Appendf("%f", *(*float64)(unsafe.Pointer(addr)))
		default:
			return false
		}
	case kindAddress:
		switch size {
		case 1:
			line.Appendf("0x%.2x", *(*uint8)(unsafe.Pointer(addr)))
		case 2:
			line.Appendf("0x%.4x", *(*uint16)(unsafe.Pointer(addr)))
		case 4:
			line.Appendf("0x%.8x", *(*uint32)(unsafe.Pointer(addr)))
		case 8:
			line.Appendf("0x%.16x", *(*uint64)(unsafe.Pointer(addr)))
		default:
			return false
		}
	case kindSigned:
		switch size {
		case 1:
			line.Appendf("%d", *(*int8)(unsafe.Pointer(addr)))
		case 2:
			line.Appendf("%d", *(*int16)(unsafe.Pointer(addr)))
		case 4:
			line.Appendf("%d", *(*int32)(unsafe.Pointer(addr)))
		case 8:
			line.Appendf("%d", *(*int64)(unsafe.Pointer(addr)))
		default:
			return false
		}
	case kindUnsigned:
		switch size {
		case 1:
			line.Appendf("%d", *(*uint8)(unsafe.Pointer(addr)))
		case 2:
			line.Appendf("%d", *(*uint16)(unsafe.Pointer(addr)))
		case 4:
			line.Appendf("%d", *(*uint32)(unsafe.Pointer(addr)))
		case 8:
			line.Appendf("%d", *(*uint64)(unsafe.Pointer(addr)))
		default:
			return false
		}
	case kindSignedChar:
		if size != 1 {
			return false
		}
		line.Appendf("'%c'", *(*int8)(unsafe.Pointer(addr)))
	case kindUnsignedChar:
		if size != 1 {
			return false
		}
		line.Appendf("0x%.2x", *(*uint8)(unsafe.Pointer(addr)))
	case kindBool:
		var tf bool
		switch size {
		case 1:
			tf = *(*int8)(unsafe.Pointer(addr)) != 0
		case 2:
			tf = *(*int16)(unsafe.Pointer(addr)) != 0
		case 4:
			tf = *(*int32)(unsafe.Pointer(addr)) != 0
		case 8:
			tf = *(*int64)(unsafe.Pointer(addr)) != 0
		default:
			return false
		}
		line.Append(fmt.Sprintf("%t", tf))
	default:
		return false
	}
	return true
}
