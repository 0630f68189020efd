// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build arm

package unwind

import (
	"debug/elf"
	"unsafe"

	"golang.org/x/arch/arm/armasm"

	"github.com/arfero/arfero/classify"
	"github.com/arfero/arfero/module"
)

const haveFramePointer = true

func currentFramePointer() uintptr { return currentR11() }

// currentR11 reads the r11 ("fp" in the classic ARM APCS convention)
// register, implemented in arm_prologue_arm.s.
func currentR11() uintptr

// armPrologueStrategy walks 32-bit ARM frames the way the original's
// ARM branch of getlr() does: it does not assume a fixed frame layout
// (compilers push varying register subsets), so at each frame it
// disassembles the callee's own prologue PUSH instruction to learn
// which stack slot holds the saved fp and which holds the saved lr.
//
// Coverage is narrow by design: only functions whose first instruction
// is a single STMFD sp!, {...} (a "push") that includes both fp and lr
// are walkable. A leaf function that omits the frame pointer entirely,
// or a prologue split across multiple instructions, terminates the
// walk early (UnwindGiveUp) rather than guess.
//
// TODO: leaf functions that never push fp are invisible to this
// strategy; closing that gap needs CFI (.debug_frame), which is out of
// scope here (see SPEC_FULL.md open questions).
type armPrologueStrategy struct {
	c   *classify.Cache
	reg *module.Registry
}

func newArmPrologueStrategy(c *classify.Cache, reg *module.Registry) Strategy {
	return armPrologueStrategy{c: c, reg: reg}
}

// selectBest is the arm chooser: the generic amd64/arm64 frame-record
// walker assumes a fixed [savedFP, retAddr] layout that 32-bit ARM
// prologues do not guarantee, so arm gets its own prologue-disassembling
// strategy with its own DSO registry for ELF symbol lookups.
func selectBest(c *classify.Cache) Strategy {
	return newArmPrologueStrategy(c, module.NewRegistry(4))
}

func (armPrologueStrategy) Name() string { return "arm-prologue" }

func (s armPrologueStrategy) Unwind(skip, max int) ([]uintptr, error) {
	frames, err := s.Frames(skip+1, max)
	pcs := make([]uintptr, len(frames))
	for i, f := range frames {
		pcs[i] = f.PC
	}
	return pcs, err
}

func (s armPrologueStrategy) Frames(skip, max int) ([]Frame, error) {
	fp := currentFramePointer()
	var frames []Frame
	for i := 0; fp != 0 && len(frames) < max; i++ {
		lrOff, fpOff, ok := s.prologueOffsets(fp)
		if !ok {
			break
		}
		lr := *(*uintptr)(unsafe.Pointer(fp + uintptr(lrOff)))
		savedFP := *(*uintptr)(unsafe.Pointer(fp + uintptr(fpOff)))

		if kind, _ := s.c.Classify(nil, lr); kind != classify.Code {
			break
		}
		if i >= skip {
			frames = append(frames, Frame{PC: lr, FP: fp})
		}
		if savedFP == 0 || savedFP <= fp {
			break
		}
		if sk, _ := s.c.Classify(nil, savedFP); sk != classify.Stack {
			break
		}
		fp = savedFP
	}
	if len(frames) == max {
		return frames, ErrTruncated
	}
	return frames, nil
}

// prologueOffsets finds the function containing fp's saved-pc slot (by
// asking the DSO registry for the ELF symbol covering that address),
// disassembles its first instruction, and if it is a push including
// both fp (r11) and lr (r14), returns the byte offsets from fp at
// which the saved lr and saved fp live.
//
// This mirrors the classic APCS "push {fp, ip, lr, pc}" convention
// generalized to whatever subset of {r4-r11, lr} the compiler actually
// pushed: ARM's STM writes registers to ascending addresses in
// increasing register-number order, so the offset of a given register
// is 4 * (number of lower-numbered registers also in the list).
func (s armPrologueStrategy) prologueOffsets(fp uintptr) (lrOff, fpOff int, ok bool) {
	pc := *(*uintptr)(unsafe.Pointer(fp))
	dso, relpc, err := s.reg.Lookup(pc)
	if err != nil {
		return 0, 0, false
	}
	f, err := dso.ELF()
	if err != nil {
		return 0, 0, false
	}
	lo, ok := funcEntry(f, relpc)
	if !ok {
		return 0, 0, false
	}
	text := f.Section(".text")
	if text == nil {
		return 0, 0, false
	}
	data, err := text.Data()
	if err != nil || lo < text.Addr || lo+4 > text.Addr+uint64(len(data)) {
		return 0, 0, false
	}
	off := lo - text.Addr
	inst, err := armasm.Decode(data[off:off+4], armasm.ModeARM)
	if err != nil || inst.Op != armasm.STMDB {
		return 0, 0, false
	}
	regList, ok := inst.Args[1].(armasm.RegList)
	if !ok {
		return 0, 0, false
	}
	const fpBit, lrBit = 1 << 11, 1 << 14
	if regList&fpBit == 0 || regList&lrBit == 0 {
		return 0, 0, false
	}
	lrOff = 4 * popcount(uint32(regList)&(lrBit-1))
	fpOff = 4 * popcount(uint32(regList)&(fpBit-1))
	return lrOff, fpOff, true
}

func popcount(x uint32) int {
	n := 0
	for x != 0 {
		n += int(x & 1)
		x >>= 1
	}
	return n
}

// funcEntry finds the symbol table entry covering relpc and returns
// its start address, the ELF-symbol-table analogue of the cheap
// function-bounds lookup the original performs without needing DWARF.
func funcEntry(f *elf.File, relpc uintptr) (uint64, bool) {
	syms, err := f.Symbols()
	if err != nil {
		return 0, false
	}
	target := uint64(relpc)
	for _, sym := range syms {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC {
			continue
		}
		if target >= sym.Value && target < sym.Value+sym.Size {
			return sym.Value, true
		}
	}
	return 0, false
}
