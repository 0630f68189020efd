// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symbolize turns a raw program counter into the function,
// class, source file and line that produced it, by walking the DWARF
// scope chain containing the address.
package symbolize

import (
	"strings"

	"debug/dwarf"

	"github.com/arfero/arfero/internal/envconfig"
	"github.com/arfero/arfero/module"
)

// Site is everything known about the call site that executed pc.
type Site struct {
	Scopes     []*dwarf.Entry // innermost scope last
	FuncName   string         // "" if unknown, or deliberately left blank for a mangled name
	Class      string         // method receiver's class, or a mangled identifier if FuncName == ""
	CUFile     string         // compilation unit source file
	HeaderFile string         // file that actually contains the call; equals CUFile unless the call is in another file
	Line       int
}

// Location formats CUFile/HeaderFile/Line the way the original bt1()
// chose between five printf variants depending on which pieces are
// present.
func (s Site) Location() string {
	switch {
	case s.CUFile == "" && s.HeaderFile == "":
		return ""
	case s.HeaderFile == "":
		return s.CUFile
	case s.CUFile == s.HeaderFile:
		return s.headerAndLine()
	case s.Line > 0:
		return s.CUFile + " " + s.headerAndLine()
	default:
		return s.CUFile + " " + s.HeaderFile
	}
}

func (s Site) headerAndLine() string {
	if s.Line > 0 {
		return s.HeaderFile + ":" + itoa(s.Line)
	}
	return s.HeaderFile
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Symbolizer resolves addresses against a module.Registry.
type Symbolizer struct {
	reg *module.Registry
}

// New returns a Symbolizer backed by reg.
func New(reg *module.Registry) *Symbolizer {
	return &Symbolizer{reg: reg}
}

// Lookup resolves pc to its call site. A pc with no matching compile
// unit (stripped binary, or within code with no debug info) yields a
// zero Site and a nil error; that is not a failure, just nothing to
// report.
func (s *Symbolizer) Lookup(pc uintptr) (Site, error) {
	dso, relpc, err := s.reg.Lookup(pc)
	if err != nil {
		return Site{}, err
	}
	d, err := dso.DWARF()
	if err != nil || d == nil {
		return Site{}, nil
	}

	cu, fn, ok := findSubprogram(d, uint64(relpc))
	if !ok {
		return Site{}, nil
	}

	var site Site
	site.Scopes = append(site.Scopes, cu)
	if fn != cu {
		site.Scopes = append(site.Scopes, fn)
	}
	site.FuncName, site.Class = funcIdentity(d, fn)

	cuFile, _ := fn.Val(dwarf.AttrName).(string)
	if cuName, ok := cu.Val(dwarf.AttrName).(string); ok {
		cuFile = trim(cuName)
	} else {
		cuFile = ""
	}

	header, line := lineInfo(d, cu, uint64(relpc))
	header = trim(header)
	site.CUFile, site.HeaderFile, site.Line = cuFile, header, line
	return site, nil
}

func trim(s string) string {
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// findSubprogram returns the compile unit entry and the innermost
// DW_TAG_subprogram entry whose range contains pc, using a recursive
// descent equivalent to the original's search_scopes fallback: Go's
// debug/dwarf has no built-in "get lexical scopes at this pc" query,
// so the fallback path is the only path.
func findSubprogram(d *dwarf.Data, pc uint64) (cu, fn *dwarf.Entry, ok bool) {
	r := d.Reader()
	for {
		e, err := r.Next()
		if err != nil || e == nil {
			return nil, nil, false
		}
		if e.Tag != dwarf.TagCompileUnit {
			continue
		}
		lo, hi, hasRange := entryRange(e)
		if hasRange && (pc < lo || pc >= hi) {
			r.SkipChildren()
			continue
		}
		if found, ok := searchChildren(d, r, pc); ok {
			return e, found, true
		}
	}
}

// searchChildren walks the children of the entry r is currently
// positioned after (a compile unit), looking for the innermost
// subprogram containing pc, recursing into nested subprograms the way
// the original search_scopes() does to catch lexical-but-not-pc nesting.
func searchChildren(d *dwarf.Data, r *dwarf.Reader, pc uint64) (*dwarf.Entry, bool) {
	for {
		e, err := r.Next()
		if err != nil || e == nil {
			return nil, false
		}
		if e.Tag == 0 {
			return nil, false // end of sibling list
		}
		if e.Tag != dwarf.TagSubprogram {
			if e.Children {
				r.SkipChildren()
			}
			continue
		}
		if e.Children {
			if nested, ok := searchChildren(d, r, pc); ok {
				return nested, true
			}
		}
		lo, hi, ok := entryRange(e)
		if ok && pc >= lo && pc < hi {
			return e, true
		}
	}
}

// entryRange extracts DW_AT_low_pc/DW_AT_high_pc, handling both the
// DWARF <4 absolute-address form and the DWARF>=4 offset-from-lowpc form.
func entryRange(e *dwarf.Entry) (lo, hi uint64, ok bool) {
	loVal, loOK := e.Val(dwarf.AttrLowpc).(uint64)
	if !loOK {
		return 0, 0, false
	}
	switch h := e.Val(dwarf.AttrHighpc).(type) {
	case uint64:
		hi = h
		if hi < loVal {
			hi += loVal // offset form
		}
	case int64:
		hi = loVal + uint64(h)
	default:
		return 0, 0, false
	}
	return loVal, hi, true
}

// funcIdentity extracts the function's printable name and, for a
// method, its class name, following DW_AT_specification to the
// declaration when the inlined/concrete instance carries no name of
// its own. If ARF_MANGLED is set and a linkage name is available, the
// function name is left blank so the caller knows to print the
// mangled identifier instead.
func funcIdentity(d *dwarf.Data, fn *dwarf.Entry) (name, class string) {
	if n, ok := fn.Val(dwarf.AttrName).(string); ok {
		return n, ""
	}

	specOff, ok := fn.Val(dwarf.AttrSpecification).(dwarf.Offset)
	if !ok {
		return "", ""
	}
	r := d.Reader()
	r.Seek(specOff)
	spec, err := r.Next()
	if err != nil || spec == nil || spec.Tag != dwarf.TagSubprogram {
		return "", ""
	}

	if envconfig.Bool("ARF_MANGLED") {
		if linkage, ok := spec.Val(dwarf.AttrMIPSLinkageName).(string); ok {
			return "", linkage
		}
	}

	n, ok := spec.Val(dwarf.AttrName).(string)
	if !ok {
		return "", ""
	}
	class = enclosingClassName(d, spec)
	return n, class
}

// enclosingClassName finds the name of the DW_TAG_structure_type or
// DW_TAG_class_type that directly contains spec, by scanning compile
// units for the entry whose subtree contains spec's offset.
func enclosingClassName(d *dwarf.Data, spec *dwarf.Entry) string {
	r := d.Reader()
	var stack []*dwarf.Entry
	for {
		e, err := r.Next()
		if err != nil || e == nil {
			return ""
		}
		if e.Tag == 0 {
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}
		if e.Offset == spec.Offset {
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].Tag == dwarf.TagStructType || stack[i].Tag == dwarf.TagClassType {
					if n, ok := stack[i].Val(dwarf.AttrName).(string); ok {
						return n
					}
				}
			}
			return ""
		}
		if e.Children {
			stack = append(stack, e)
		}
	}
}

// lineInfo returns the source file and line number that produced the
// call at pc (looked up at pc-1, since pc is a return address and may
// point just past the call instruction into the next line).
func lineInfo(d *dwarf.Data, cu *dwarf.Entry, pc uint64) (file string, line int) {
	lr, err := d.LineReader(cu)
	if err != nil || lr == nil {
		return "", 0
	}
	var entry dwarf.LineEntry
	target := pc - 1
	best := dwarf.LineEntry{Address: 0}
	found := false
	for {
		if err := lr.Next(&entry); err != nil {
			break
		}
		if entry.Address <= target && (!found || entry.Address > best.Address) {
			best = entry
			found = true
		}
	}
	if !found {
		return "", 0
	}
	return best.File.Name, best.Line
}
