// Package decode defines the decoded-instruction record that the external
// x86-64 decoder is expected to fill in before each dispatch tick. Nothing
// in this package decodes raw bytes — that responsibility sits outside this
// core (see spec §1) — it only carries the shape of the record and the
// small bitfield accessors the dispatcher and opcode handlers consume.
package decode

// Width is the operand width selected by REX.W / the operand-size-override
// prefix, per the priority order in §4.1: REX.W beats OSZ beats the
// default 32-bit width. 8-bit forms are width-fixed by the opcode itself
// and never derived from RDE, so they are not a Width value.
type Width uint8

const (
	W16 Width = iota
	W32
	W64
)

// RDE is the packed decode field: REX bits, address/operand-size override
// prefixes, lock, and the ModR/M and SIB sub-fields, as an opaque 32-bit
// word. Handlers read it only through the named accessors below — the bit
// layout itself is private to this package, per the re-architecture
// guidance to never expose it to handlers directly.
type RDE uint32

const (
	rdeRexW = 1 << iota
	rdeRexR
	rdeRexX
	rdeRexB
	rdeOsz
	rdeAsz
	rdeLock
	rdeModShift   = 7
	rdeModMask    = 0x3 << rdeModShift
	rdeRegShift   = 9
	rdeRegMask    = 0x7 << rdeRegShift
	rdeRmShift    = 12
	rdeRmMask     = 0x7 << rdeRmShift
	rdeSibSShift  = 15
	rdeSibSMask   = 0x3 << rdeSibSShift
	rdeSibIShift  = 17
	rdeSibIMask   = 0x7 << rdeSibIShift
	rdeSibBShift  = 20
	rdeSibBMask   = 0x7 << rdeSibBShift
	rdeHasSib     = 1 << 23
	rdeHasModRM   = 1 << 24
	rdeHasRex     = 1 << 25
)

// Pack assembles an RDE word from its named fields. Intended for tests and
// for the (external) decoder to call once it has parsed a ModR/M/SIB byte.
// hasRex distinguishes "no REX prefix at all" from "REX.W/R/X/B all zero",
// since the two decode to the same four override bits but only the former
// enables AH/CH/DH/BH high-byte addressing for 8-bit register operands
// (§4.1 "byte/16-bit-write preservation").
func Pack(hasRex, rexW, rexR, rexX, rexB, osz, asz, lock bool, mod, reg, rm byte, hasSIB bool, scale, index, base byte) RDE {
	var r RDE
	if hasRex {
		r |= rdeHasRex
	}
	if rexW {
		r |= rdeRexW
	}
	if rexR {
		r |= rdeRexR
	}
	if rexX {
		r |= rdeRexX
	}
	if rexB {
		r |= rdeRexB
	}
	if osz {
		r |= rdeOsz
	}
	if asz {
		r |= rdeAsz
	}
	if lock {
		r |= rdeLock
	}
	r |= rdeHasModRM
	r |= RDE(mod&3) << rdeModShift
	r |= RDE(reg&7) << rdeRegShift
	r |= RDE(rm&7) << rdeRmShift
	if hasSIB {
		r |= rdeHasSib
		r |= RDE(scale&3) << rdeSibSShift
		r |= RDE(index&7) << rdeSibIShift
		r |= RDE(base&7) << rdeSibBShift
	}
	return r
}

// HasRex reports whether a REX prefix byte was present at all, regardless
// of whether its individual bits were set — the condition that disables
// legacy AH/CH/DH/BH high-byte register addressing.
func (r RDE) HasRex() bool { return r&rdeHasRex != 0 }

func (r RDE) RexW() bool { return r&rdeRexW != 0 }
func (r RDE) RexR() bool { return r&rdeRexR != 0 }
func (r RDE) RexX() bool { return r&rdeRexX != 0 }
func (r RDE) RexB() bool { return r&rdeRexB != 0 }
func (r RDE) Osz() bool  { return r&rdeOsz != 0 }
func (r RDE) Asz() bool  { return r&rdeAsz != 0 }
func (r RDE) Lock() bool { return r&rdeLock != 0 }

func (r RDE) HasModRM() bool { return r&rdeHasModRM != 0 }
func (r RDE) ModrmMod() byte { return byte((r & rdeModMask) >> rdeModShift) }
func (r RDE) ModrmReg() byte { return byte((r & rdeRegMask) >> rdeRegShift) }
func (r RDE) ModrmRm() byte  { return byte((r & rdeRmMask) >> rdeRmShift) }

// IsModrmRegister reports whether the ModR/M addresses a register (mod==3)
// rather than a memory operand.
func (r RDE) IsModrmRegister() bool { return r.ModrmMod() == 3 }

func (r RDE) HasSIB() bool       { return r&rdeHasSib != 0 }
func (r RDE) SIBScale() byte     { return byte((r & rdeSibSMask) >> rdeSibSShift) }
func (r RDE) SIBIndex() byte     { return byte((r & rdeSibIMask) >> rdeSibIShift) }
func (r RDE) SIBBase() byte      { return byte((r & rdeSibBMask) >> rdeSibBShift) }

// RegRexrReg returns the register number selected by ModR/M.reg, extended
// by REX.R into the 8-15 range.
func (r RDE) RegRexrReg() byte {
	reg := r.ModrmReg()
	if r.RexR() {
		reg |= 8
	}
	return reg
}

// RegRexbRm returns the register number selected by ModR/M.rm (register
// form), extended by REX.B.
func (r RDE) RegRexbRm() byte {
	rm := r.ModrmRm()
	if r.RexB() {
		rm |= 8
	}
	return rm
}

// Width returns the operand width selected by REX.W/OSZ for instructions
// whose byte-sized form is handled separately (§4.1 priority order).
func (r RDE) Width() Width {
	switch {
	case r.RexW():
		return W64
	case r.Osz():
		return W16
	default:
		return W32
	}
}

// OpcodeMap identifies which opcode table an instruction belongs to: the
// one-byte map, the 0F-prefixed two-byte map, or the 0F 38 three-byte map.
// All three maps have slots in the dense dispatch table; keys whose slot
// is empty are routed to the sparse fallback switch.
type OpcodeMap uint8

const (
	Map0 OpcodeMap = iota // one-byte opcodes
	Map1                  // 0F xx
	Map2                  // 0F 38 xx
)

// RepPrefix enumerates the three mutually-exclusive repeat-prefix states
// a decoded instruction can carry.
type RepPrefix uint8

const (
	RepNone  RepPrefix = 0
	RepNE    RepPrefix = 2 // F2
	RepEqual RepPrefix = 3 // F3
)

// Inst is the decoded-instruction record consumed by the dispatcher and
// every opcode handler. It is filled in by the external decoder (out of
// scope here) before each call to ops.ExecuteInstruction.
type Inst struct {
	Map    OpcodeMap
	Opcode byte
	Rde    RDE
	Disp   int64
	Uimm0  uint64
	Rep    RepPrefix
	Length int
}

// DispatchKey returns the dense-table index (map<<8)|opcode used by the
// dispatcher to find a handler.
func (in *Inst) DispatchKey() int {
	return int(in.Map)<<8 | int(in.Opcode)
}
