package ops

import "github.com/polarisvm/x86core/machine"

// OpCallRel/OpJmpRel implement near CALL/JMP rel8/rel16/rel32: the target
// is the decoder-resolved relative displacement already added into
// m.Cur.Disp (§1's "decoder as external collaborator" boundary — this core
// never re-derives an IP-relative target from raw bytes).
func OpCallRel(m *machine.Machine) {
	pushWidth(m, 64, m.IP)
	m.IP = uint64(int64(m.IP) + m.Cur.Disp)
}

func OpJmpRel(m *machine.Machine) {
	m.IP = uint64(int64(m.IP) + m.Cur.Disp)
}

// OpJcc implements the near Jcc family: branch to the relative target when
// condition cc holds.
func OpJcc(cc byte) func(m *machine.Machine) {
	return func(m *machine.Machine) {
		if CheckCondition(m, cc) {
			m.IP = uint64(int64(m.IP) + m.Cur.Disp)
		}
	}
}

// OpRet/OpRetImm16 implement near RET and RET imm16: pop the return address
// off the stack and, for the imm16 form, additionally deallocate imm16
// bytes of arguments.
func OpRet(m *machine.Machine) {
	m.IP = popWidth(m, 64)
}

func OpRetImm16(m *machine.Machine) {
	target := popWidth(m, 64)
	sp := ReadRegister64(m, machine.RegSP) + m.Cur.Uimm0
	WriteRegister64(m, machine.RegSP, sp)
	m.IP = target
}

// Group5CallJmpPush implements the control-transfer sub-opcodes of
// Group 5 (FF /2 CALL Ev, /3 CALLF Ep, /4 JMP Ev, /5 JMPF Ep, /6 PUSH Ev).
// /0 and /1 (INC/DEC) are handled by Group4Group5IncDec instead.
func Group5CallJmpPush(m *machine.Machine) {
	rde := m.Cur.Rde
	switch rde.ModrmReg() {
	case 2:
		target := ReadRegisterOrMemory(m, rde)
		pushWidth(m, 64, m.IP)
		m.IP = target
	case 3:
		selector := uint16(m.Read16(m.ComputeAddress() + 8))
		offset := ReadMemory64(m)
		pushWidth(m, 64, m.IP)
		OpJmpf(m, selector, offset)
	case 4:
		m.IP = ReadRegisterOrMemory(m, rde)
	case 5:
		selector := uint16(m.Read16(m.ComputeAddress() + 8))
		offset := ReadMemory64(m)
		OpJmpf(m, selector, offset)
	case 6:
		pushWidth(m, 64, ReadRegisterOrMemory(m, rde))
	default:
		m.OpUd()
	}
}

// OpPushImm implements PUSH imm8/imm16/imm32: pushes the decoder-supplied
// sign-extended immediate.
func OpPushImm(m *machine.Machine) {
	pushWidth(m, 64, m.Cur.Uimm0)
}

// OpPushReg/OpPopReg implement the single-byte PUSH/POP r64 forms
// (0x50+r/0x58+r).
func OpPushReg(reg byte) func(m *machine.Machine) {
	return func(m *machine.Machine) { pushWidth(m, 64, ReadRegister64(m, reg)) }
}

func OpPopReg(reg byte) func(m *machine.Machine) {
	return func(m *machine.Machine) { WriteRegister64(m, reg, popWidth(m, 64)) }
}
