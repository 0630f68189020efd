// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package module resolves a program counter to the shared object (or
// the main executable) that contains it, and keeps that object's ELF
// and DWARF handles around for the symbolizer and variable decoder to
// query. Go processes have no dladdr, so the registry is built and
// rebuilt from /proc/self/maps instead.
package module

import (
	"bytes"
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/arfero/arfero/classify"
	"github.com/arfero/arfero/internal/procmaps"
)

// DSO is one loaded ELF image: the main executable or a shared library.
// Once inserted into a Registry a DSO is immortal, and its ELF and DWARF
// handles, once opened, stay open for the life of the DSO.
type DSO struct {
	Path  string // path used to mmap it, "" for the main exe if unknown
	base  uint64 // relocation base: load address for a PIE/shared object, 0 otherwise
	inode uint64
	dev   uint64

	mu         sync.Mutex
	elfFile    *elf.File
	dwarfData  *dwarf.Data
	dwarfErr   error
	opened     bool
	openErr    error
	sections   []classify.Section
}

// Base implements classify.Image.
func (d *DSO) Base() uint64 { return d.base }

// Sections implements classify.Image.
func (d *DSO) Sections() []classify.Section {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureOpenLocked()
	return d.sections
}

// ELF returns the parsed ELF file, opening it on first use.
func (d *DSO) ELF() (*elf.File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureOpenLocked()
	return d.elfFile, d.openErr
}

// DWARF returns the debugging information for d, read from a separate
// debug file when the object's own .debug_info has been stripped and a
// .gnu_debuglink points at one.
func (d *DSO) DWARF() (*dwarf.Data, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureOpenLocked()
	if d.openErr != nil {
		return nil, d.openErr
	}
	if d.dwarfData == nil && d.dwarfErr == nil {
		d.dwarfData, d.dwarfErr = d.elfFile.DWARF()
		if d.dwarfErr != nil {
			if path, ok := findDebug(d.elfFile, d.Path); ok {
				if f2, err := elf.Open(path); err == nil {
					if dd, err := f2.DWARF(); err == nil {
						d.dwarfData, d.dwarfErr = dd, nil
					}
				}
			}
		}
	}
	return d.dwarfData, d.dwarfErr
}

func (d *DSO) ensureOpenLocked() {
	if d.opened {
		return
	}
	d.opened = true
	if d.Path == "" {
		d.openErr = fmt.Errorf("module: no backing file for in-memory mapping")
		return
	}
	f, err := elf.Open(d.Path)
	if err != nil {
		d.openErr = err
		return
	}
	d.elfFile = f
	d.sections = sectionsOf(f)
}

func sectionsOf(f *elf.File) []classify.Section {
	out := make([]classify.Section, 0, len(f.Sections))
	for _, s := range f.Sections {
		out = append(out, classify.Section{
			Addr:     s.Addr,
			Size:     s.Size,
			Loadable: s.Type == elf.SHT_PROGBITS || s.Type == elf.SHT_NOBITS,
			Alloc:    s.Flags&elf.SHF_ALLOC != 0,
			Exec:     s.Flags&elf.SHF_EXECINSTR != 0,
		})
	}
	return out
}

// debuglink returns the name and CRC recorded in a .gnu_debuglink
// section, if present. The CRC is deliberately not verified: a stale
// but present debug file is still more useful than none.
func debuglink(f *elf.File) (name string, ok bool) {
	sec := f.Section(".gnu_debuglink")
	if sec == nil {
		return "", false
	}
	data, err := sec.Data()
	if err != nil {
		return "", false
	}
	i := bytes.IndexByte(data, 0)
	if i < 0 {
		return "", false
	}
	return string(data[:i]), true
}

// debugCandidates returns the search order for a separate debug file
// named linkname, found via the .gnu_debuglink of the object at path:
// alongside the object, under its .debug subdirectory, and under the
// two canonical system debug trees.
func debugCandidates(path, linkname string) []string {
	dir := filepath.Dir(path)
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return []string{
		filepath.Join(dir, linkname),
		filepath.Join(dir, ".debug", linkname),
		filepath.Join("/usr/lib/debug", abs, linkname),
		filepath.Join("/usr/local/lib/debug", abs, linkname),
	}
}

// findDebug locates a separate debug file for f (opened from path), if
// any candidate in the standard search order exists. A candidate that
// is the object at path itself, or one already visited (compared by
// device/inode), is skipped.
func findDebug(f *elf.File, path string) (string, bool) {
	name, ok := debuglink(f)
	if !ok {
		return "", false
	}
	seen := map[[2]uint64]bool{}
	if key, ok := statKey(path); ok {
		seen[key] = true
	}
	for _, cand := range debugCandidates(path, name) {
		key, ok := statKey(cand)
		if !ok {
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		return cand, true
	}
	return "", false
}

// Registry resolves program counters to the DSO that contains them. It
// is built from /proc/self/maps and refreshed on a miss, since shared
// objects can be loaded (dlopen) after the registry is first built.
type Registry struct {
	mu      sync.Mutex
	byRange []mapping  // sorted by start, immortal once inserted
	idle    *lru.Cache // path -> *DSO, bounded cache of handles not on the hot path
}

type mapping struct {
	start, end uintptr
	dso        *DSO
}

// NewRegistry creates an empty registry with room for idleCapacity
// parsed-but-cold DSO handles beyond the always-resident hot set.
func NewRegistry(idleCapacity int) *Registry {
	c, _ := lru.New(idleCapacity)
	return &Registry{idle: c}
}

// Lookup resolves pc to its owning DSO and the DSO-relative address,
// rebuilding the registry from /proc/self/maps on a miss.
func (r *Registry) Lookup(pc uintptr) (*DSO, uintptr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, base, ok := r.find(pc); ok {
		return d, pc - base, nil
	}
	if err := r.rebuild(); err != nil {
		return nil, 0, err
	}
	if d, base, ok := r.find(pc); ok {
		return d, pc - base, nil
	}
	return nil, 0, fmt.Errorf("module: no mapping contains pc %#x", pc)
}

func (r *Registry) find(pc uintptr) (*DSO, uintptr, bool) {
	i := sort.Search(len(r.byRange), func(i int) bool { return r.byRange[i].end > pc })
	if i < len(r.byRange) && r.byRange[i].start <= pc {
		m := r.byRange[i]
		return m.dso, m.start, true
	}
	return nil, 0, false
}

// rebuild reparses /proc/self/maps, reusing any DSO already known for a
// given path so open ELF/DWARF handles survive a rebuild.
func (r *Registry) rebuild() error {
	entries, err := procmaps.Self()
	if err != nil {
		return err
	}
	known := map[string]*DSO{}
	for _, m := range r.byRange {
		known[m.dso.Path] = m.dso
	}

	var next []mapping
	for _, e := range entries {
		if e.Path == "" || e.Perm&procmaps.Exec == 0 {
			continue
		}
		d, ok := known[e.Path]
		if !ok {
			d = r.openOrReuse(e.Path, uint64(e.Start)-e.Offset)
			known[e.Path] = d
		}
		next = append(next, mapping{start: e.Start, end: e.End, dso: d})
	}
	sort.Slice(next, func(i, j int) bool { return next[i].start < next[j].start })
	r.byRange = next
	return nil
}

func (r *Registry) openOrReuse(path string, base uint64) *DSO {
	if v, ok := r.idle.Get(path); ok {
		d := v.(*DSO)
		d.base = base
		return d
	}
	d := &DSO{Path: path, base: base}
	if key, ok := statKey(path); ok {
		d.dev, d.inode = key[0], key[1]
	}
	r.idle.Add(path, d)
	return d
}
