package ops

import (
	"math/bits"

	"github.com/polarisvm/x86core/decode"
	"github.com/polarisvm/x86core/machine"
)

// Group3MulDiv covers ModR/M.reg 4-7 of opcode group 3 (F6/F7): MUL, IMUL,
// DIV, IDIV against AL/AX or rAX, producing a double-width result split
// across (e.g.) AX or DX:AX (§4.4).
func Group3MulDiv(m *machine.Machine) {
	rde := m.Cur.Rde
	reg := rde.ModrmReg()
	if m.Cur.Opcode == 0xF6 {
		x := ReadRegisterOrMemory8(m, rde)
		al := m.AL()
		switch reg {
		case 4:
			r := uint16(al) * uint16(x)
			m.SetAX(r)
			m.Flags.CF, m.Flags.OF = r>>8 != 0, r>>8 != 0
		case 5:
			r := int16(int8(al)) * int16(int8(x))
			m.SetAX(uint16(r))
			ext := int16(int8(byte(r)))
			m.Flags.CF, m.Flags.OF = r != ext, r != ext
		case 6:
			if x == 0 {
				m.OpUd()
			}
			ax := m.AX()
			q, rem := ax/uint16(x), ax%uint16(x)
			if q > 0xFF {
				m.OpUd() // quotient overflow, as in divUnsigned
			}
			m.SetAL(byte(q))
			m.WriteGPR8(machine.RegHigh(machine.RegAX), byte(rem))
		case 7:
			if x == 0 {
				m.OpUd()
			}
			ax := int16(m.AX())
			q, rem := ax/int16(int8(x)), ax%int16(int8(x))
			if q > 127 || q < -128 {
				m.OpUd()
			}
			m.SetAL(byte(q))
			m.WriteGPR8(machine.RegHigh(machine.RegAX), byte(rem))
		default:
			m.OpUd()
		}
		return
	}

	width := WidthBits(rde.Width())
	x := ReadRegisterOrMemory(m, rde)
	switch reg {
	case 4:
		hi, lo := mulUnsigned(ReadRegister(m, rde, machine.RegAX), x, width)
		writeWideResult(m, rde, width, hi, lo)
		m.Flags.CF, m.Flags.OF = hi != 0, hi != 0
	case 5:
		hi, lo, overflow := mulSigned(int64(signExtendWidth(ReadRegister(m, rde, machine.RegAX), width)), int64(signExtendWidth(x, width)), width)
		writeWideResult(m, rde, width, hi, lo)
		m.Flags.CF, m.Flags.OF = overflow, overflow
	case 6:
		if x == 0 {
			m.OpUd()
		}
		divUnsigned(m, rde, width, x)
	case 7:
		if x == 0 {
			m.OpUd()
		}
		divSigned(m, rde, width, x)
	default:
		m.OpUd()
	}
}

func signExtendWidth(v uint64, width int) int64 {
	switch width {
	case 16:
		return int64(int16(v))
	case 64:
		return int64(v)
	default:
		return int64(int32(v))
	}
}

func mulUnsigned(a, b uint64, width int) (hi, lo uint64) {
	if width == 64 {
		h, l := bits.Mul64(a, b)
		return h, l
	}
	full := a * b
	m := kernelsMask(width)
	return (full >> uint(width)) & m, full & m
}

func mulSigned(a, b int64, width int) (hi, lo uint64, overflow bool) {
	full := a * b
	m := kernelsMask(width)
	lo = uint64(full) & m
	signed := signExtendWidth(lo, width)
	overflow = signed != full
	hi = uint64(full>>uint(width)) & m
	return hi, lo, overflow
}

// writeWideResult splits a double-width product into the two registers the
// architecture uses per width: AL:AH pairs AX for 8-bit MUL (handled
// separately above), DX:AX/EDX:EAX/RDX:RAX for 16/32/64-bit.
func writeWideResult(m *machine.Machine, rde decode.RDE, width int, hi, lo uint64) {
	WriteRegister(m, rde, machine.RegAX, lo)
	WriteRegister(m, rde, machine.RegDX, hi)
}

func divUnsigned(m *machine.Machine, rde decode.RDE, width int, divisor uint64) {
	lo := ReadRegister(m, rde, machine.RegAX)
	hi := ReadRegister(m, rde, machine.RegDX)
	var dividend uint64
	var quotient, remainder uint64
	if width == 64 {
		q, r := bits.Div64(hi, lo, divisor)
		quotient, remainder = q, r
	} else {
		dividend = (hi << uint(width)) | lo
		quotient, remainder = dividend/divisor, dividend%divisor
	}
	if quotient > kernelsMask(width) {
		m.OpUd() // quotient overflow: real hardware raises #DE, modeled as #UD (§7 fault taxonomy)
	}
	WriteRegister(m, rde, machine.RegAX, quotient)
	WriteRegister(m, rde, machine.RegDX, remainder)
}

func divSigned(m *machine.Machine, rde decode.RDE, width int, divisorU uint64) {
	lo := ReadRegister(m, rde, machine.RegAX)
	hi := ReadRegister(m, rde, machine.RegDX)
	divisor := signExtendWidth(divisorU, width)
	if width == 64 {
		// math/bits has no signed 128-bit divide, so negate the
		// two's-complement (hi,lo) pair by hand when the dividend is
		// negative and divide the unsigned magnitudes instead.
		neg := int64(hi) < 0
		uh, ul := hi, lo
		if neg {
			var carry uint64
			ul, carry = bits.Add64(^lo, 1, 0)
			uh, _ = bits.Add64(^hi, 0, carry)
		}
		absDivisor := uint64(abs64(divisor))
		q, r := bits.Div64(uh, ul, absDivisor)
		quotient := int64(q)
		if neg != (divisor < 0) {
			quotient = -quotient
		}
		remainder := int64(r)
		if neg {
			remainder = -remainder
		}
		WriteRegister(m, rde, machine.RegAX, uint64(quotient))
		WriteRegister(m, rde, machine.RegDX, uint64(remainder))
		return
	}
	dividend := int64(hi)<<uint(width) | int64(lo)
	quotient, remainder := dividend/divisor, dividend%divisor
	if quotient > int64(kernelsMask(width)>>1) || quotient < -int64(kernelsMask(width)>>1)-1 {
		m.OpUd()
	}
	WriteRegister(m, rde, machine.RegAX, uint64(quotient)&kernelsMask(width))
	WriteRegister(m, rde, machine.RegDX, uint64(remainder)&kernelsMask(width))
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
