package ops

import (
	"math/bits"

	"github.com/polarisvm/x86core/decode"
	"github.com/polarisvm/x86core/machine"
)

// BitKind selects which of the four bit-base operations a Group-8/0F
// A3-BB opcode performs (§4.4 "bit-base family", grounded on blink's
// OpBit: Bts(x,y)=x|y, Btr(x,y)=x&^y, Btc(x,y)=(x&^y)|(^x&y)).
type BitKind uint8

const (
	BitTest BitKind = iota
	BitSet
	BitReset
	BitComplement
)

func applyBit(kind BitKind, x, mask uint64) uint64 {
	switch kind {
	case BitSet:
		return x | mask
	case BitReset:
		return x &^ mask
	case BitComplement:
		return (x &^ mask) | (^x & mask)
	default:
		return x
	}
}

// BitForm distinguishes the immediate (Group 8, opcode 0xBA) encoding from
// the register-operand (0F A3/AB/B3/BB) encoding: the two compute the bit
// index differently (§4.4).
type BitForm uint8

const (
	BitFormImm BitForm = iota
	BitFormReg
)

// OpBit builds the BT/BTS/BTR/BTC handler for kind in the given form. LOCK
// on this family is rejected with #UD rather than honored, per blink's
// unassert(!Lock(rde)) and the open question resolved in DESIGN.md.
func OpBit(kind BitKind, form BitForm) func(m *machine.Machine) {
	return func(m *machine.Machine) {
		rde := m.Cur.Rde
		if rde.Lock() {
			m.OpUd()
		}
		width := WidthBits(rde.Width())
		wBits := int64(width)

		if form == BitFormImm {
			bitIndex := uint64(m.Cur.Uimm0) & uint64(wBits-1)
			x := ReadRegisterOrMemory(m, rde)
			m.Flags.CF = (x>>bitIndex)&1 != 0
			if kind != BitTest {
				WriteRegisterOrMemory(m, rde, applyBit(kind, x, 1<<bitIndex))
			}
			return
		}

		disp := ReadRegisterSigned(m, rde, rde.RegRexrReg())
		bitIndex := uint64(disp) & uint64(wBits-1)
		if rde.IsModrmRegister() {
			reg := rde.RegRexbRm()
			x := ReadRegister(m, rde, reg)
			m.Flags.CF = (x>>bitIndex)&1 != 0
			if kind != BitTest {
				WriteRegister(m, rde, reg, applyBit(kind, x, 1<<bitIndex))
			}
			return
		}
		byteOff := disp &^ (wBits - 1) >> 3
		addr := m.ComputeAddress() + uint64(byteOff)
		x := readMemWidth(m, addr, width)
		m.Flags.CF = (x>>bitIndex)&1 != 0
		if kind != BitTest {
			writeMemWidth(m, addr, width, applyBit(kind, x, 1<<bitIndex))
		}
	}
}

func readMemWidth(m *machine.Machine, addr uint64, width int) uint64 {
	switch width {
	case 16:
		return uint64(m.Read16(addr))
	case 64:
		return m.Read64(addr)
	default:
		return uint64(m.Read32(addr))
	}
}

func writeMemWidth(m *machine.Machine, addr uint64, width int, v uint64) {
	switch width {
	case 16:
		m.Write16(addr, uint16(v))
	case 64:
		m.Write64(addr, v)
	default:
		m.Write32(addr, uint32(v))
	}
}

// OpBsf/OpBsr implement BSF/BSR: index of the lowest/highest set bit, ZF
// set when the source is zero (destination left unmodified, per the
// architecture's "undefined on zero source" — this core leaves it as-is).
// Under the F3 repeat prefix the same opcodes are TZCNT/LZCNT instead:
// CF reports a zero input and the destination receives the operand width
// rather than being left untouched (§4.4, Testable Property #11).
func OpBsf(m *machine.Machine) {
	rde := m.Cur.Rde
	width := WidthBits(rde.Width())
	x := ReadRegisterOrMemory(m, rde)
	if m.Cur.Rep == decode.RepEqual {
		var n int
		switch width {
		case 16:
			n = bits.TrailingZeros16(uint16(x))
		case 64:
			n = bits.TrailingZeros64(x)
		default:
			n = bits.TrailingZeros32(uint32(x))
		}
		if x == 0 {
			n = width
		}
		m.Flags.CF = x == 0
		m.Flags.ZF = n == 0
		WriteRegister(m, rde, rde.RegRexrReg(), uint64(n))
		return
	}
	m.Flags.ZF = x == 0
	if x == 0 {
		return
	}
	var idx int
	switch width {
	case 16:
		idx = bits.TrailingZeros16(uint16(x))
	case 64:
		idx = bits.TrailingZeros64(x)
	default:
		idx = bits.TrailingZeros32(uint32(x))
	}
	WriteRegister(m, rde, rde.RegRexrReg(), uint64(idx))
}

func OpBsr(m *machine.Machine) {
	rde := m.Cur.Rde
	width := WidthBits(rde.Width())
	x := ReadRegisterOrMemory(m, rde)
	if m.Cur.Rep == decode.RepEqual {
		var lz int
		switch width {
		case 16:
			lz = bits.LeadingZeros16(uint16(x))
		case 64:
			lz = bits.LeadingZeros64(x)
		default:
			lz = bits.LeadingZeros32(uint32(x))
		}
		if x == 0 {
			lz = width
		}
		m.Flags.CF = x == 0
		m.Flags.ZF = lz == 0
		WriteRegister(m, rde, rde.RegRexrReg(), uint64(lz))
		return
	}
	m.Flags.ZF = x == 0
	if x == 0 {
		return
	}
	var idx int
	switch width {
	case 16:
		idx = 15 - bits.LeadingZeros16(uint16(x))
	case 64:
		idx = 63 - bits.LeadingZeros64(x)
	default:
		idx = 31 - bits.LeadingZeros32(uint32(x))
	}
	WriteRegister(m, rde, rde.RegRexrReg(), uint64(idx))
}

// OpPopcnt implements POPCNT Gv, Ev. It only decodes under the F3 repeat
// prefix; without it, opcode 0F B8 is Op1b8 (JMPE on Itanium-era hardware,
// unimplemented here) and raises #UD, matching blink's rep==3 gating.
func OpPopcnt(m *machine.Machine) {
	rde := m.Cur.Rde
	if m.Cur.Rep != decode.RepEqual {
		m.OpUd()
	}
	width := WidthBits(rde.Width())
	x := ReadRegisterOrMemory(m, rde)
	var n int
	switch width {
	case 16:
		n = bits.OnesCount16(uint16(x))
	case 64:
		n = bits.OnesCount64(x)
	default:
		n = bits.OnesCount32(uint32(x))
	}
	m.Flags.ZF = n == 0
	m.Flags.CF, m.Flags.OF, m.Flags.SF, m.Flags.PF, m.Flags.AF = false, false, false, false, false
	WriteRegister(m, rde, rde.RegRexrReg(), uint64(n))
}
