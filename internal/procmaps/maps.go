// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package procmaps parses /proc/self/maps, the shared leaf both the
// module registry (resolving a pc to its owning shared object) and the
// address classifier (guessing whether an address is stack, heap, code
// or data) build on.
package procmaps

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Perm is the rwxp permission set of a mapping.
type Perm uint8

const (
	Read Perm = 1 << iota
	Write
	Exec
	Private
)

// Entry is one line of /proc/self/maps.
type Entry struct {
	Start, End uintptr
	Perm       Perm
	Offset     uint64
	Inode      uint64
	Path       string // empty for anonymous mappings
	Label      string // bracketed pseudo-path such as "[heap]", "[stack]", "[vdso]"
}

// Anonymous reports whether the mapping has no file backing (inode 0 and
// no path), the case the original addr_is() treats as a thread stack
// candidate.
func (e Entry) Anonymous() bool {
	return e.Inode == 0 && e.Path == ""
}

// Self reads and parses /proc/self/maps.
func Self() ([]Entry, error) {
	f, err := os.Open("/proc/self/maps")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads maps-format text, tolerating the handful of column layouts
// seen across kernel versions.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		e, ok, err := parseLine(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("procmaps: %v", err)
		}
		if ok {
			entries = append(entries, e)
		}
	}
	return entries, sc.Err()
}

func parseLine(line string) (Entry, bool, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return Entry{}, false, nil
	}
	addrs := strings.SplitN(fields[0], "-", 2)
	if len(addrs) != 2 {
		return Entry{}, false, nil
	}
	start, err := strconv.ParseUint(addrs[0], 16, 64)
	if err != nil {
		return Entry{}, false, nil
	}
	end, err := strconv.ParseUint(addrs[1], 16, 64)
	if err != nil {
		return Entry{}, false, nil
	}

	var perm Perm
	permStr := fields[1]
	if strings.Contains(permStr, "r") {
		perm |= Read
	}
	if strings.Contains(permStr, "w") {
		perm |= Write
	}
	if strings.Contains(permStr, "x") {
		perm |= Exec
	}
	if strings.Contains(permStr, "p") {
		perm |= Private
	}

	offset, _ := strconv.ParseUint(fields[2], 16, 64)
	inode, _ := strconv.ParseUint(fields[4], 10, 64)

	e := Entry{
		Start:  uintptr(start),
		End:    uintptr(end),
		Perm:   perm,
		Offset: offset,
		Inode:  inode,
	}
	if len(fields) > 5 {
		path := strings.Join(fields[5:], " ")
		if strings.HasPrefix(path, "[") && strings.HasSuffix(path, "]") {
			e.Label = path
		} else {
			e.Path = path
		}
	}
	return e, true, nil
}
