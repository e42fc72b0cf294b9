package ops

import (
	"github.com/polarisvm/x86core/decode"
	"github.com/polarisvm/x86core/machine"
)

// segmentSelector resolves a selector value to a segment base via the GDT,
// faulting #GP on an out-of-range selector — the path blink's OpMovSwEvqp
// and OpJmpf both funnel through before touching Machine.Seg (§4.3).
func segmentSelector(m *machine.Machine, selector uint64) (base uint64, desc uint64) {
	if !m.IsProtectedMode() || selector == 0 {
		return selector << 4, 0
	}
	d, ok := m.GetDescriptor(selector)
	if !ok {
		m.ThrowProtectionFault()
	}
	return machine.GetDescriptorBase(d), d
}

// OpMovSwEvqp implements MOV Sw, Ev/r — loading a segment register from a
// selector held in a GPR or memory operand (§4.3). ModR/M.reg selects the
// destination segment register (ES=0..GS=5); CS is not a valid destination
// for this form and is rejected with #UD, matching real hardware.
func OpMovSwEvqp(m *machine.Machine) {
	rde := m.Cur.Rde
	seg := rde.ModrmReg()
	if seg == machine.SegCS {
		m.OpUd()
	}
	selector := ReadRegisterOrMemory16(m, rde)
	base, _ := segmentSelector(m, uint64(selector))
	m.Seg[seg] = base
}

// OpMovEvqpSw implements MOV Ev, Sw — storing a segment register's selector
// (here: its base shifted back down, since this core keeps only bases) into
// a GPR or memory destination.
func OpMovEvqpSw(m *machine.Machine) {
	rde := m.Cur.Rde
	seg := rde.ModrmReg()
	WriteRegisterOrMemory16(m, rde, uint16(m.Seg[seg]>>4))
}

// ReadRegisterOrMemory16/WriteRegisterOrMemory16 are the 16-bit-fixed Ew
// operand forms MOV Sw uses regardless of REX.W/OSZ (§4.3).
func ReadRegisterOrMemory16(m *machine.Machine, rde decode.RDE) uint16 {
	if rde.IsModrmRegister() {
		return ReadRegister16(m, rde.RegRexbRm())
	}
	return ReadMemory16(m)
}

func WriteRegisterOrMemory16(m *machine.Machine, rde decode.RDE, v uint16) {
	if rde.IsModrmRegister() {
		WriteRegister16(m, rde.RegRexbRm(), v)
		return
	}
	WriteMemory16(m, v)
}

// OpJmpf implements a far JMP/CALL: selector:offset read from the operand.
// The CS base is always updated; in protected mode with a nonzero selector
// the target descriptor's mode is applied through ChangeMachineMode, which
// does nothing when that mode is already current (§4.3, §9
// "Mode-change invalidation").
func OpJmpf(m *machine.Machine, selector uint16, offset uint64) {
	base, desc := segmentSelector(m, uint64(selector))
	m.Seg[machine.SegCS] = base
	if m.IsProtectedMode() && selector != 0 {
		m.ChangeMachineMode(machine.GetDescriptorMode(desc))
	}
	m.IP = offset
	if m.System.OnLongBranch != nil {
		m.System.OnLongBranch(m)
	}
}

// OpJmpfDirect/OpCallfDirect implement the direct far JMP/CALL forms
// (0xEA/0x9A): selector and offset are immediates carried by the decoded
// instruction, the direct-operand counterpart of Group 5's memory-operand
// far forms in Group5CallJmpPush. The decoder places the jump offset in
// Disp and the 16-bit segment selector in Uimm0.
func OpJmpfDirect(m *machine.Machine) {
	OpJmpf(m, uint16(m.Cur.Uimm0), uint64(m.Cur.Disp))
}

func OpCallfDirect(m *machine.Machine) {
	pushWidth(m, 64, m.IP)
	OpJmpf(m, uint16(m.Cur.Uimm0), uint64(m.Cur.Disp))
}

// OpLsl implements LOAD SEGMENT LIMIT (LSL): reads a selector's descriptor
// limit into the destination register, setting ZF to report success, and
// leaving the destination unmodified on failure (§4.3, grounded on blink's
// OpLsl).
func OpLsl(m *machine.Machine) {
	rde := m.Cur.Rde
	selector := ReadRegisterOrMemory16(m, rde)
	if !m.IsProtectedMode() {
		m.Flags.ZF = false
		return
	}
	d, ok := m.GetDescriptor(uint64(selector))
	if !ok {
		m.Flags.ZF = false
		return
	}
	m.Flags.ZF = true
	WriteRegister(m, rde, rde.RegRexrReg(), machine.GetDescriptorLimit(d))
}
