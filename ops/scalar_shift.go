package ops

import (
	"github.com/polarisvm/x86core/kernels"
	"github.com/polarisvm/x86core/machine"
)

// shiftCount names how a Group-2 opcode supplies its shift count: a literal
// 1 (D0/D1), CL (D2/D3), or an imm8 (C0/C1).
type shiftCount uint8

const (
	ShiftByOne shiftCount = iota
	ShiftByCL
	ShiftByImm8
)

// ShiftGroup2 builds the handler for Group-2 shift/rotate op in the given
// count form, byte or full-width. ModR/M.reg (0-7) has already selected op
// via kernels.BsuOp before the dispatcher wires this closure.
func ShiftGroup2(op kernels.BsuOp, count shiftCount, byteForm bool) func(m *machine.Machine) {
	return func(m *machine.Machine) {
		rde := m.Cur.Rde
		var c byte
		switch count {
		case ShiftByOne:
			c = 1
		case ShiftByCL:
			c = m.CL()
		case ShiftByImm8:
			c = byte(m.Cur.Uimm0)
		}
		if byteForm {
			x := ReadRegisterOrMemory8(m, rde)
			r := kernels.Bsu[op][0](uint64(x), c, 8, &m.Flags)
			WriteRegisterOrMemory8(m, rde, byte(r))
			return
		}
		width := WidthBits(rde.Width())
		x := ReadRegisterOrMemory(m, rde)
		r := kernels.Bsu[op][WidthIndex(width)](x, c, width, &m.Flags)
		WriteRegisterOrMemory(m, rde, r)
	}
}

// OpShld/OpShrd implement SHLD/SHRD Ev, Gv, Ib|CL: the ModR/M.rm operand is
// shifted by count bits, filling from ModR/M.reg's register.
func shiftDouble(right bool, count shiftCount) func(m *machine.Machine) {
	return func(m *machine.Machine) {
		rde := m.Cur.Rde
		var c byte
		if count == ShiftByCL {
			c = m.CL()
		} else {
			c = byte(m.Cur.Uimm0)
		}
		width := WidthBits(rde.Width())
		dst := ReadRegisterOrMemory(m, rde)
		src := ReadRegister(m, rde, rde.RegRexrReg())
		r := kernels.BsuDoubleShift(width, dst, src, c, right, &m.Flags)
		WriteRegisterOrMemory(m, rde, r)
	}
}

// OpShld builds a SHLD handler for the given count form.
func OpShld(count shiftCount) func(m *machine.Machine) { return shiftDouble(false, count) }

// OpShrd builds a SHRD handler for the given count form.
func OpShrd(count shiftCount) func(m *machine.Machine) { return shiftDouble(true, count) }
