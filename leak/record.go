// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package leak

// Record is one live allocation: the pointer value returned to the
// caller, its current size, the thread that first allocated it, an age
// counter ("karma") incremented once per report it survives, and the
// backtrace chain captured at the allocating call site (a reallocation
// that finds the record keeps this chain).
type Record struct {
	TID   int32
	Ptr   uintptr
	Size  int64
	Karma int
	BT    *segment
	next  *Record
}

// Next returns the next record in Memories, or nil at the tail.
func (r *Record) Next() *Record { return r.next }

// SameBacktrace reports whether r and other were captured at the same
// call site, used by the report engine to group adjacent sorted
// records.
func (r *Record) SameBacktrace(other *Record) bool { return chainEqual(r.BT, other.BT) }

// PCs flattens r's backtrace chain into a slice of program counters,
// innermost frame first, stopping at the first zero slot (a segment's
// unused, zero-padded tail) or the end of the chain, whichever comes
// first.
func (r *Record) PCs() []uintptr {
	var out []uintptr
	for s := r.BT; s != nil; s = s.next {
		for _, pc := range s.pcs {
			if pc == 0 {
				return out
			}
			out = append(out, pc)
		}
	}
	return out
}

type recordPool struct {
	free *Record
}

func (p *recordPool) get() *Record {
	if p.free == nil {
		p.grow()
	}
	r := p.free
	p.free = r.next
	*r = Record{}
	return r
}

func (p *recordPool) put(r *Record) {
	*r = Record{next: p.free}
	p.free = r
}

func (p *recordPool) grow() {
	const recordsPerPage = 64
	batch := make([]Record, recordsPerPage)
	for i := range batch {
		batch[i].next = p.free
		p.free = &batch[i]
	}
}
