// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package backtrace composes the unwinder, symbolizer and variable
// decoder into the formatted, column-aligned report the rest of this
// project calls "a backtrace": one line per frame, naming the module,
// source location and function, optionally followed by every local
// variable and parameter visible at that frame's pc.
package backtrace

import (
	"debug/dwarf"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/arfero/arfero/classify"
	"github.com/arfero/arfero/internal/envconfig"
	"github.com/arfero/arfero/module"
	"github.com/arfero/arfero/symbolize"
	"github.com/arfero/arfero/unwind"
	"github.com/arfero/arfero/value"
)

// Engine captures and prints backtraces for the calling goroutine.
type Engine struct {
	reg      *module.Registry
	sym      *symbolize.Symbolizer
	classify *classify.Cache
	strategy unwind.Strategy
	decoder  *value.Decoder

	mu           sync.Mutex
	wcol1, wcol2 int // grow-only column widths, shared across calls like the original's static locals
}

// New builds an Engine around a fresh module registry with room for
// idleCapacity cold DSO handles.
func New(idleCapacity int) *Engine {
	var c classify.Cache
	reg := module.NewRegistry(idleCapacity)
	return &Engine{
		reg:      reg,
		sym:      symbolize.New(reg),
		classify: &c,
		strategy: unwind.Select(&c),
		decoder:  value.NewDecoder(&c),
	}
}

// Print writes a backtrace labeled why to w, in the same vein as the
// original barf(): a header line, then one numbered line per frame.
func (e *Engine) Print(w io.Writer, why string) {
	fmt.Fprintf(w, "%s\n", why)

	frames, err := e.strategy.Frames(1, 64)
	if err != nil && len(frames) == 0 {
		return
	}

	wantVars := envconfig.Bool("ARF_PRINTVARS")
	var seen value.Seen

	for i, f := range frames {
		e.printFrame(w, i+1, f, wantVars, &seen)
	}
}

// CapturePCs returns up to max return-address program counters for the
// calling goroutine, skipping the innermost skip frames, using the
// best unwind strategy available on this architecture. It has the
// same shape as leak.CaptureFunc so the leak bookkeeper can capture
// origin backtraces without depending on the unwind package directly.
func CapturePCs(skip, max int) []uintptr {
	var c classify.Cache
	strategy := unwind.Select(&c)
	pcs, _ := strategy.Unwind(skip+1, max)
	return pcs
}

// PrintPCs prints a backtrace captured earlier and stored as a bare pc
// chain (as the leak bookkeeper does) rather than walked live. No
// frame pointer survives that storage, so variable printing is never
// attempted here even when ARF_PRINTVARS is set.
func (e *Engine) PrintPCs(w io.Writer, pcs []uintptr) {
	var seen value.Seen
	for i, pc := range pcs {
		e.printFrame(w, i+1, unwind.Frame{PC: pc}, false, &seen)
	}
}

func (e *Engine) printFrame(w io.Writer, i int, f unwind.Frame, wantVars bool, seen *value.Seen) {
	site, err := e.sym.Lookup(f.PC)
	if err != nil {
		return
	}

	e.mu.Lock()
	dsoName, loc := dsoNameOf(e.reg, f.PC), site.Location()
	if len(dsoName) > e.wcol1 {
		e.wcol1 = len(dsoName)
	}
	if len(loc) > e.wcol2 {
		e.wcol2 = len(loc)
	}
	w1, w2 := e.wcol1, e.wcol2
	e.mu.Unlock()

	fmt.Fprintf(w, "%4d. %-*s %-*s %s\n", i, w1, dsoName, w2, loc, funcLabel(site, f.PC))

	if wantVars && f.FP != 0 {
		for _, scope := range site.Scopes {
			e.printScopeVars(w, scope, f, seen)
		}
	}
}

// funcLabel renders the four name/class variants the original chose
// between based on which of funame/cls were resolved.
func funcLabel(s symbolize.Site, pc uintptr) string {
	switch {
	case s.FuncName == "" && s.Class == "":
		return fmt.Sprintf("[%#x]", pc)
	case s.FuncName != "" && s.Class == "":
		return s.FuncName + "()"
	case s.FuncName == "" && s.Class != "":
		return s.Class // already mangled; c++filt-equivalent demangling is out of scope
	default:
		return s.Class + "::" + s.FuncName + "()"
	}
}

func dsoNameOf(reg *module.Registry, pc uintptr) string {
	dso, _, err := reg.Lookup(pc)
	if err != nil || dso == nil {
		return ""
	}
	return filepath.Base(dso.Path)
}

func (e *Engine) printScopeVars(w io.Writer, scope *dwarf.Entry, f unwind.Frame, seen *value.Seen) {
	dso, _, err := e.reg.Lookup(f.PC)
	if err != nil {
		return
	}
	d, err := dso.DWARF()
	if err != nil || d == nil {
		return
	}
	frameBase := f.FP + frameBaseAdjust
	for _, v := range collectVars(d, scope) {
		e.printOneVar(w, d, v, dso.Base(), frameBase, seen)
	}
}

func (e *Engine) printOneVar(w io.Writer, d *dwarf.Data, v *dwarf.Entry, dsoBase uint64, frameBase uintptr, seen *value.Seen) {
	name, _ := v.Val(dwarf.AttrName).(string)
	if name == "" {
		return
	}
	block, _ := v.Val(dwarf.AttrLocation).([]byte)
	if block == nil {
		return
	}
	addr, ok := evalLocation(block, frameBase, dsoBase)
	if !ok || seen.Mark(addr) {
		return
	}
	typeOff, ok := v.Val(dwarf.AttrType).(dwarf.Offset)
	if !ok {
		return
	}
	dt, err := d.Type(typeOff)
	if err != nil {
		return
	}
	if s, ok := e.decoder.Decode(dt, name, addr); ok {
		fmt.Fprintf(w, "      %s\n", s)
	}
}

// collectVars gathers DW_TAG_variable/formal_parameter children of
// scope, recursing into nested lexical blocks, the same traversal as
// the original printvars().
func collectVars(d *dwarf.Data, scope *dwarf.Entry) []*dwarf.Entry {
	if !scope.Children {
		return nil
	}
	r := d.Reader()
	r.Seek(scope.Offset)
	r.Next() // re-read scope itself to position the reader at its children
	return walkVarSiblings(r)
}

func walkVarSiblings(r *dwarf.Reader) []*dwarf.Entry {
	var out []*dwarf.Entry
	for {
		e, err := r.Next()
		if err != nil || e == nil || e.Tag == 0 {
			return out
		}
		switch e.Tag {
		case dwarf.TagVariable, dwarf.TagFormalParameter:
			out = append(out, e)
			if e.Children {
				r.SkipChildren()
			}
		case dwarf.TagLexicalBlock:
			out = append(out, walkVarSiblings(r)...)
		default:
			if e.Children {
				r.SkipChildren()
			}
		}
	}
}
