// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package classify guesses what an address in this process points at:
// executable code, a thread's stack, the heap, initialized/static data,
// or something else. It is consulted both while unwinding (to validate
// candidate frame pointers) and while decoding variables (to validate
// pointer dereferences).
package classify

import (
	"sort"
	"sync"

	"github.com/arfero/arfero/internal/procmaps"
)

// Kind classifies a virtual address range.
type Kind int

const (
	Other Kind = iota
	Code
	Stack
	Heap
	Data
)

func (k Kind) String() string {
	switch k {
	case Code:
		return "CODE"
	case Stack:
		return "STACK"
	case Heap:
		return "HEAP"
	case Data:
		return "DATA"
	default:
		return "OTHER"
	}
}

// lowAddressGuard is the anti-corruption threshold below which nothing
// is ever legitimately mapped.
const lowAddressGuard = 4096

// Section describes one ELF section header, the subset Classify needs.
type Section struct {
	Addr, Size uint64
	Loadable   bool // SHT_PROGBITS or SHT_NOBITS
	Alloc      bool // SHF_ALLOC
	Exec       bool // SHF_EXECINSTR
}

// Image is the section-header view of a DSO that Classify consults before
// falling back to /proc/self/maps. module.DSO implements this.
type Image interface {
	Base() uint64
	Sections() []Section
}

type segment struct {
	start, end uintptr
	kind       Kind
}

// Cache is the classifier's /proc/self/maps-backed fallback cache. The
// zero value is ready to use. Lookups and rebuilds of the segment list
// are serialized by the Cache's own mutex, so one Cache may be shared
// between goroutines.
type Cache struct {
	mu       sync.Mutex
	segments []segment
}

// Classify tells what addr points to. If img is non-nil its ELF section
// headers are consulted first; otherwise (or on a miss) the segment
// cache, rebuilt from /proc/self/maps if necessary, is used. The second
// return value is the address just past the end of the containing
// region, letting callers bound array/string decoding.
func (c *Cache) Classify(img Image, addr uintptr) (Kind, uintptr) {
	if addr < lowAddressGuard {
		return Other, 0
	}

	if img != nil {
		base := uintptr(img.Base())
		for _, s := range img.Sections() {
			lo := base + uintptr(s.Addr)
			hi := lo + uintptr(s.Size)
			if addr < lo || addr >= hi {
				continue
			}
			if !s.Loadable || !s.Alloc {
				break // fall through to /proc/self/maps
			}
			if s.Exec {
				return Code, hi
			}
			return Data, hi
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if kind, end, ok := c.lookup(addr); ok {
		return kind, end
	}
	c.rebuild()
	if kind, end, ok := c.lookup(addr); ok {
		return kind, end
	}
	return Other, 0
}

func (c *Cache) lookup(addr uintptr) (Kind, uintptr, bool) {
	i := sort.Search(len(c.segments), func(i int) bool {
		return c.segments[i].end > addr
	})
	if i < len(c.segments) && c.segments[i].start <= addr {
		return c.segments[i].kind, c.segments[i].end, true
	}
	return Other, 0, false
}

func (c *Cache) rebuild() {
	entries, err := procmaps.Self()
	if err != nil {
		return
	}
	segs := make([]segment, 0, len(entries))
	for _, e := range entries {
		segs = append(segs, segment{start: e.Start, end: e.End, kind: classifyEntry(e)})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].start < segs[j].start })
	c.segments = segs
}

// classifyEntry applies the heuristics from /proc/self/maps lines: a
// writable, non-executable anonymous or unlabeled mapping is assumed to
// be some thread's stack (the kernel doesn't label non-main-thread
// stacks); "[heap]" and "[stack]" are taken at face value; any
// executable mapping, or "[vdso]", is CODE; everything else is OTHER.
func classifyEntry(e procmaps.Entry) Kind {
	switch e.Label {
	case "[stack]":
		return Stack
	case "[heap]":
		return Heap
	case "[vdso]":
		return Code
	}
	if e.Perm&procmaps.Exec != 0 {
		return Code
	}
	if e.Perm&procmaps.Write != 0 && e.Perm&procmaps.Exec == 0 {
		if e.Anonymous() {
			return Stack
		}
		return Other
	}
	return Other
}
