package ops

import (
	"github.com/polarisvm/x86core/decode"
	"github.com/polarisvm/x86core/kernels"
	"github.com/polarisvm/x86core/machine"
)

// aluForm names the operand shape a Group-1 ALU opcode pairs with its
// ModR/M-or-immediate operands (§4.4 "ALU byte/word regular"). The six
// x86 opcode bytes per operation (e.g. ADD is 0x00-0x05) differ only in
// this shape, so one generic handler closed over (op, form) covers all of
// them instead of six near-identical functions, the same consolidation
// IntuitionEngine's cpu_x86_grp.go applies to its Group1-5 families.
type aluForm uint8

const (
	FormEbGb aluForm = iota
	FormEvGv
	FormGbEb
	FormGvEv
	FormALIb
	FormEaxIz
	FormEbImm
	FormEvImm
)

// AluGroup1 builds the handler for ALU operation op in the given operand
// shape. The dispatch table in dispatch.go instantiates one of these per
// opcode byte.
func AluGroup1(op kernels.AluOp, form aluForm) func(m *machine.Machine) {
	return func(m *machine.Machine) {
		rde := m.Cur.Rde
		switch form {
		case FormEbGb:
			x := ReadRegisterOrMemory8(m, rde)
			y := ReadRegister8(m, rde, rde.RegRexrReg())
			r := kernels.Alu[op][0](uint64(x), uint64(y), 8, &m.Flags)
			if op != kernels.AluCmp {
				WriteRegisterOrMemory8(m, rde, byte(r))
			}
		case FormGbEb:
			x := ReadRegister8(m, rde, rde.RegRexrReg())
			y := ReadRegisterOrMemory8(m, rde)
			r := kernels.Alu[op][0](uint64(x), uint64(y), 8, &m.Flags)
			if op != kernels.AluCmp {
				WriteRegister8(m, rde, rde.RegRexrReg(), byte(r))
			}
		case FormEvGv:
			width := WidthBits(rde.Width())
			x := ReadRegisterOrMemory(m, rde)
			y := ReadRegister(m, rde, rde.RegRexrReg())
			r := kernels.Alu[op][WidthIndex(width)](x, y, width, &m.Flags)
			if op != kernels.AluCmp {
				WriteRegisterOrMemory(m, rde, r)
			}
		case FormGvEv:
			width := WidthBits(rde.Width())
			x := ReadRegister(m, rde, rde.RegRexrReg())
			y := ReadRegisterOrMemory(m, rde)
			r := kernels.Alu[op][WidthIndex(width)](x, y, width, &m.Flags)
			if op != kernels.AluCmp {
				WriteRegister(m, rde, rde.RegRexrReg(), r)
			}
		case FormALIb:
			x, y := m.AL(), byte(m.Cur.Uimm0)
			r := kernels.Alu[op][0](uint64(x), uint64(y), 8, &m.Flags)
			if op != kernels.AluCmp {
				m.SetAL(byte(r))
			}
		case FormEaxIz:
			width := WidthBits(rde.Width())
			x := ReadRegister(m, rde, machine.RegAX)
			r := kernels.Alu[op][WidthIndex(width)](x, m.Cur.Uimm0, width, &m.Flags)
			if op != kernels.AluCmp {
				WriteRegister(m, rde, machine.RegAX, r)
			}
		case FormEbImm:
			x := ReadRegisterOrMemory8(m, rde)
			r := kernels.Alu[op][0](uint64(x), m.Cur.Uimm0, 8, &m.Flags)
			if op != kernels.AluCmp {
				WriteRegisterOrMemory8(m, rde, byte(r))
			}
		case FormEvImm:
			width := WidthBits(rde.Width())
			x := ReadRegisterOrMemory(m, rde)
			r := kernels.Alu[op][WidthIndex(width)](x, m.Cur.Uimm0, width, &m.Flags)
			if op != kernels.AluCmp {
				WriteRegisterOrMemory(m, rde, r)
			}
		}
	}
}

// Group3TestNotNeg covers ModR/M.reg 0-3 of opcode group 3 (F6/F7): TEST
// Eb/Ev,Ib/Iz (reg 0,1), NOT (reg 2), NEG (reg 3). MUL/IMUL/DIV/IDIV (reg
// 4-7) live in scalar_muldiv.go since they need the wide-result pair.
func Group3TestNotNeg(m *machine.Machine) {
	rde := m.Cur.Rde
	byteForm := m.Cur.Opcode == 0xF6
	reg := rde.ModrmReg()
	if byteForm {
		x := ReadRegisterOrMemory8(m, rde)
		switch reg {
		case 0, 1:
			kernels.Alu[kernels.AluAnd][0](uint64(x), m.Cur.Uimm0, 8, &m.Flags)
		case 2:
			WriteRegisterOrMemory8(m, rde, ^x)
		case 3:
			r := kernels.Alu[kernels.AluSub][0](0, uint64(x), 8, &m.Flags)
			WriteRegisterOrMemory8(m, rde, byte(r))
		default:
			m.OpUd()
		}
		return
	}
	width := WidthBits(rde.Width())
	x := ReadRegisterOrMemory(m, rde)
	switch reg {
	case 0, 1:
		kernels.Alu[kernels.AluAnd][WidthIndex(width)](x, m.Cur.Uimm0, width, &m.Flags)
	case 2:
		WriteRegisterOrMemory(m, rde, ^x&kernelsMask(width))
	case 3:
		r := kernels.Alu[kernels.AluSub][WidthIndex(width)](0, x, width, &m.Flags)
		WriteRegisterOrMemory(m, rde, r)
	default:
		m.OpUd()
	}
}

func kernelsMask(width int) uint64 {
	if width == 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(width)) - 1
}

// Group4Group5IncDec implements the INC/DEC Eb (group 4, reg 0/1) and
// INC/DEC Ev (group 5, reg 0/1) forms. CALL/CALLF/JMP/JMPF/PUSH (group 5,
// reg 2-6) are control transfers handled directly by the dispatcher rather
// than here, since they change Machine.IP instead of producing a value.
// INC and DEC leave CF unchanged.
func Group4Group5IncDec(m *machine.Machine) {
	rde := m.Cur.Rde
	cf := m.Flags.CF
	byteForm := m.Cur.Opcode == 0xFE
	if byteForm {
		x := ReadRegisterOrMemory8(m, rde)
		var r uint64
		if rde.ModrmReg() == 0 {
			r = kernels.Alu[kernels.AluAdd][0](uint64(x), 1, 8, &m.Flags)
		} else {
			r = kernels.Alu[kernels.AluSub][0](uint64(x), 1, 8, &m.Flags)
		}
		m.Flags.CF = cf
		WriteRegisterOrMemory8(m, rde, byte(r))
		return
	}
	width := WidthBits(rde.Width())
	x := ReadRegisterOrMemory(m, rde)
	var r uint64
	if rde.ModrmReg() == 0 {
		r = kernels.Alu[kernels.AluAdd][WidthIndex(width)](x, 1, width, &m.Flags)
	} else {
		r = kernels.Alu[kernels.AluSub][WidthIndex(width)](x, 1, width, &m.Flags)
	}
	m.Flags.CF = cf
	WriteRegisterOrMemory(m, rde, r)
}

// OpSetcc implements SETcc: writes 1 or 0 to an 8-bit destination depending
// on cc's condition (§4.4).
func OpSetcc(cc byte) func(m *machine.Machine) {
	return func(m *machine.Machine) {
		rde := m.Cur.Rde
		var v byte
		if CheckCondition(m, cc) {
			v = 1
		}
		WriteRegisterOrMemory8(m, rde, v)
	}
}

// OpMovzx/OpMovsx implement MOVZX/MOVSX Gv, Eb/Ew: the source is read at
// srcBits and zero- or sign-extended into the destination's rde.Width().
func OpMovzx(srcBits int) func(m *machine.Machine) {
	return func(m *machine.Machine) {
		rde := m.Cur.Rde
		var src uint64
		if srcBits == 8 {
			src = uint64(ReadRegisterOrMemory8(m, rde))
		} else {
			if rde.IsModrmRegister() {
				src = uint64(ReadRegister16(m, rde.RegRexbRm()))
			} else {
				src = uint64(ReadMemory16(m))
			}
		}
		WriteRegister(m, rde, rde.RegRexrReg(), src)
	}
}

func OpMovsx(srcBits int) func(m *machine.Machine) {
	return func(m *machine.Machine) {
		rde := m.Cur.Rde
		var src int64
		switch srcBits {
		case 8:
			src = int64(int8(ReadRegisterOrMemory8(m, rde)))
		case 16:
			if rde.IsModrmRegister() {
				src = int64(int16(ReadRegister16(m, rde.RegRexbRm())))
			} else {
				src = int64(int16(ReadMemory16(m)))
			}
		default: // MOVSXD: 32 -> 64
			if rde.IsModrmRegister() {
				src = int64(int32(ReadRegister32(m, rde.RegRexbRm())))
			} else {
				src = int64(int32(ReadMemory32(m)))
			}
		}
		WriteRegister(m, rde, rde.RegRexrReg(), uint64(src))
	}
}

// OpLea implements LEA Gv, M: writes the effective address itself (never
// dereferenced) into the destination register.
func OpLea(m *machine.Machine) {
	rde := m.Cur.Rde
	WriteRegister(m, rde, rde.RegRexrReg(), m.ComputeAddress())
}

// OpXchg implements XCHG Ev, Gv (and its Eb, Gb form when byteForm is set).
func OpXchg(byteForm bool) func(m *machine.Machine) {
	return func(m *machine.Machine) {
		rde := m.Cur.Rde
		if byteForm {
			a := ReadRegisterOrMemory8(m, rde)
			b := ReadRegister8(m, rde, rde.RegRexrReg())
			WriteRegisterOrMemory8(m, rde, b)
			WriteRegister8(m, rde, rde.RegRexrReg(), a)
			return
		}
		a := ReadRegisterOrMemory(m, rde)
		b := ReadRegister(m, rde, rde.RegRexrReg())
		WriteRegisterOrMemory(m, rde, b)
		WriteRegister(m, rde, rde.RegRexrReg(), a)
	}
}

// OpBswapZvqp implements BSWAP: reverses the byte order of a 32- or 64-bit
// register in place, grounded on blink's OpBswapZvqp explicit shift/mask
// formula (§4.4). The 16-bit form is architecturally undefined; this core
// preserves the documented legacy quirk instead of a true byte-swap — see
// the Open Question resolution in DESIGN.md.
func OpBswapZvqp(m *machine.Machine) {
	rde := m.Cur.Rde
	reg := rde.RegRexbRm()
	switch rde.Width() {
	case decode.W64:
		v := ReadRegister64(m, reg)
		r := v>>56&0xff | v>>40&0xff00 | v>>24&0xff0000 | v>>8&0xff000000 |
			v<<8&0xff00000000 | v<<24&0xff0000000000 | v<<40&0xff000000000000 | v<<56&0xff00000000000000
		WriteRegister64(m, reg, r)
	case decode.W16:
		v := uint32(ReadRegister16(m, reg))
		r := v&0xFF<<8 | v&0xFF00<<8
		WriteRegister16(m, reg, uint16(r))
	default:
		v := ReadRegister32(m, reg)
		r := v>>24&0xff | v>>8&0xff00 | v<<8&0xff0000 | v<<24&0xff000000
		WriteRegister32(m, reg, r)
	}
}
