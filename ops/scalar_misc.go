package ops

import (
	"github.com/polarisvm/x86core/decode"
	"github.com/polarisvm/x86core/kernels"
	"github.com/polarisvm/x86core/machine"
)

// pushWidth/popWidth are the small stack primitives PUSHF/POPF, PUSH Ev,
// and the string/loop helpers below build on. This core always addresses
// the stack through RSP regardless of mode, matching the flat-memory model
// in §3 — segmented real-mode SS:SP wrap-around is out of scope.
func pushWidth(m *machine.Machine, width int, v uint64) {
	sp := ReadRegister64(m, machine.RegSP) - uint64(width/8)
	WriteRegister64(m, machine.RegSP, sp)
	writeMemWidth(m, sp, width, v)
}

func popWidth(m *machine.Machine, width int) uint64 {
	sp := ReadRegister64(m, machine.RegSP)
	v := readMemWidth(m, sp, width)
	WriteRegister64(m, machine.RegSP, sp+uint64(width/8))
	return v
}

// OpPushf implements PUSHF/PUSHFQ: pushes the flags word masked to drop
// VM/RF (§4.4, grounded on blink's "Push(m,rde, ExportFlags(m->flags) &
// 0xFCFFFF)").
func OpPushf(m *machine.Machine) {
	width := WidthBits(m.Cur.Rde.Width())
	if width == 64 {
		width = 32 // PUSHFQ still pushes a 32-bit-shaped flags image
	}
	pushWidth(m, maxInt(width, 32), machine.PushfImage(&m.Flags))
}

// OpPopf implements POPF/POPFQ: a 16-bit pop with the operand-size
// override replaces only the low 16 bits of the flags word, leaving RF/VM
// untouched; otherwise the full 32-bit word is imported (§4.4, grounded on
// blink's OpPopf OSZ branch).
func OpPopf(m *machine.Machine) {
	if m.Cur.Rde.Osz() {
		machine.PopfImport16(&m.Flags, uint16(popWidth(m, 16)))
		return
	}
	machine.ImportFlags(&m.Flags, uint32(popWidth(m, 32)))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// OpLahf loads AH from the low byte of the flags word (SF:ZF:0:AF:0:PF:1:CF).
func OpLahf(m *machine.Machine) {
	m.WriteGPR8(machine.RegHigh(machine.RegAX), byte(machine.ExportFlags(&m.Flags)))
}

// OpSahf stores AH into the low byte of the flags word.
func OpSahf(m *machine.Machine) {
	prior := machine.ExportFlags(&m.Flags)
	merged := (prior &^ 0xff) | uint32(m.ReadGPR8(machine.RegHigh(machine.RegAX)))
	machine.ImportFlags(&m.Flags, merged)
}

// OpCld/OpStd clear/set the direction flag (§4.4).
func OpCld(m *machine.Machine) { m.Flags.DF = false }
func OpStd(m *machine.Machine) { m.Flags.DF = true }

func stringStep(m *machine.Machine, width int) int64 {
	if m.Flags.DF {
		return -int64(width / 8)
	}
	return int64(width / 8)
}

// OpLods implements LODS: AL/AX/EAX/RAX <- [RSI], then RSI += step.
func OpLods(width int) func(m *machine.Machine) {
	return func(m *machine.Machine) {
		si := ReadRegister64(m, machine.RegSI)
		v := readMemWidth(m, si, width)
		WriteRegister64(m, machine.RegSI, uint64(int64(si)+stringStep(m, width)))
		if width == 8 {
			m.SetAL(byte(v))
			return
		}
		WriteRegister(m, m.Cur.Rde, machine.RegAX, v)
	}
}

// OpStos implements STOS: [RDI] <- AL/AX/EAX/RAX, then RDI += step.
func OpStos(width int) func(m *machine.Machine) {
	return func(m *machine.Machine) {
		di := ReadRegister64(m, machine.RegDI)
		var v uint64
		if width == 8 {
			v = uint64(m.AL())
		} else {
			v = ReadRegister(m, m.Cur.Rde, machine.RegAX)
		}
		writeMemWidth(m, di, width, v)
		WriteRegister64(m, machine.RegDI, uint64(int64(di)+stringStep(m, width)))
	}
}

// OpMovs implements MOVS: [RDI] <- [RSI], both pointers advanced by step.
func OpMovs(width int) func(m *machine.Machine) {
	return func(m *machine.Machine) {
		si, di := ReadRegister64(m, machine.RegSI), ReadRegister64(m, machine.RegDI)
		writeMemWidth(m, di, width, readMemWidth(m, si, width))
		step := stringStep(m, width)
		WriteRegister64(m, machine.RegSI, uint64(int64(si)+step))
		WriteRegister64(m, machine.RegDI, uint64(int64(di)+step))
	}
}

// OpCmps implements CMPS: compares [RSI] against [RDI] (setting flags as
// SUB would), both pointers advanced by step.
func OpCmps(width int) func(m *machine.Machine) {
	return func(m *machine.Machine) {
		si, di := ReadRegister64(m, machine.RegSI), ReadRegister64(m, machine.RegDI)
		a, b := readMemWidth(m, si, width), readMemWidth(m, di, width)
		aluCmpInline(m, a, b, width)
		step := stringStep(m, width)
		WriteRegister64(m, machine.RegSI, uint64(int64(si)+step))
		WriteRegister64(m, machine.RegDI, uint64(int64(di)+step))
	}
}

// OpScas implements SCAS: compares AL/AX/EAX/RAX against [RDI], RDI
// advanced by step.
func OpScas(width int) func(m *machine.Machine) {
	return func(m *machine.Machine) {
		di := ReadRegister64(m, machine.RegDI)
		var a uint64
		if width == 8 {
			a = uint64(m.AL())
		} else {
			a = ReadRegister(m, m.Cur.Rde, machine.RegAX)
		}
		b := readMemWidth(m, di, width)
		aluCmpInline(m, a, b, width)
		WriteRegister64(m, machine.RegDI, uint64(int64(di)+stringStep(m, width)))
	}
}

func aluCmpInline(m *machine.Machine, a, b uint64, width int) {
	kernels.Alu[kernels.AluCmp][WidthIndex(width)](a, b, width, &m.Flags)
}

// OpLoop/OpLoope/OpLoopne implement LOOP/LOOPE/LOOPNE: decrement CX/ECX/RCX
// (address-size dependent; this core always uses the full register), branch
// to the decoder-resolved relative target in m.Cur.Disp when the count and
// (for LOOPE/LOOPNE) ZF condition hold.
func loopCommon(m *machine.Machine, take bool) {
	cx := ReadRegister64(m, machine.RegCX) - 1
	WriteRegister64(m, machine.RegCX, cx)
	if cx != 0 && take {
		m.IP = uint64(int64(m.IP) + m.Cur.Disp)
	}
}

func OpLoop(m *machine.Machine)   { loopCommon(m, true) }
func OpLoope(m *machine.Machine)  { loopCommon(m, m.Flags.ZF) }
func OpLoopne(m *machine.Machine) { loopCommon(m, !m.Flags.ZF) }

// OpJcxz implements JCXZ/JECXZ/JRCXZ: branch if CX/ECX/RCX is zero.
func OpJcxz(m *machine.Machine) {
	if ReadRegister64(m, machine.RegCX) == 0 {
		m.IP = uint64(int64(m.IP) + m.Cur.Disp)
	}
}

// OpXlat implements XLAT/XLATB: AL <- [RBX + AL].
func OpXlat(m *machine.Machine) {
	addr := ReadRegister64(m, machine.RegBX) + uint64(m.AL())
	m.SetAL(m.Read8(addr))
}

// OpInt3/OpInt1/OpIntImm8/OpHlt deliver the interrupt/halt family by
// terminating the current tick: this core has no IDT, so the vector is
// surfaced to the host as a halt code rather than dispatched to a handler
// (§4.4, §7, and the Open Question recorded in DESIGN.md).
func OpInt3(m *machine.Machine)  { m.HaltMachine(3) }
func OpInt1(m *machine.Machine)  { m.HaltMachine(1) }
func OpHlt(m *machine.Machine)   { m.HaltMachine(-1) }
func OpIntImm8(m *machine.Machine) { m.HaltMachine(int(byte(m.Cur.Uimm0))) }

// OpNop implements the 0x90 opcode family (§4.4): REX.B promotes it to
// XCHG RAX, R8 per the SRM encoding; a REP prefix makes it PAUSE; with
// neither it is a plain NOP. PAUSE and NOP are indistinguishable in a
// single-threaded interpreter, so both fall through as no-ops.
func OpNop(m *machine.Machine) {
	if !m.Cur.Rde.RexB() {
		return
	}
	a := ReadRegister64(m, machine.RegAX)
	b := ReadRegister64(m, 8)
	WriteRegister64(m, machine.RegAX, b)
	WriteRegister64(m, 8, a)
}

// OpMovRqCq/OpMovCqRq implement MOV Rq, Cq / MOV Cq, Rq: moves between a
// GPR and one of CR0/CR2/CR3/CR4, selected by ModR/M.reg.
func controlRegister(m *machine.Machine, n byte) *uint64 {
	switch n {
	case 0:
		return &m.System.CR0
	case 2:
		return &m.System.CR2
	case 3:
		return &m.System.CR3
	case 4:
		return &m.System.CR4
	default:
		m.OpUd()
		return nil
	}
}

func OpMovRqCq(m *machine.Machine) {
	rde := m.Cur.Rde
	cr := controlRegister(m, rde.RegRexrReg())
	WriteRegister64(m, rde.RegRexbRm(), *cr)
}

func OpMovCqRq(m *machine.Machine) {
	rde := m.Cur.Rde
	cr := controlRegister(m, rde.RegRexrReg())
	v := ReadRegister64(m, rde.RegRexbRm())
	if rde.RegRexrReg() == 0 {
		prev := *cr
		*cr = v
		if prev&1 != v&1 { // CR0.PE toggled
			if v&1 != 0 {
				m.ChangeMachineMode(machine.ModeLegacy32)
			} else {
				m.ChangeMachineMode(machine.ModeReal)
			}
		}
		return
	}
	if rde.RegRexrReg() == 3 && v >= m.System.Size() {
		m.ThrowProtectionFault() // CR3 must point inside guest memory
	}
	*cr = v
}

// OpRdmsr/OpWrmsr are the MSR stubs (§4.7): this core has no real MSR file,
// so RDMSR always returns zero and WRMSR silently discards its operand,
// per the Open Question resolution in DESIGN.md.
func OpRdmsr(m *machine.Machine) {
	WriteRegister64(m, machine.RegDX, 0)
	WriteRegister64(m, machine.RegAX, 0)
}

func OpWrmsr(m *machine.Machine) {}

// OpConvertSignExtendAcc implements CBW/CWDE/CDQE: sign-extend AL/AX/EAX into
// AX/EAX/RAX, selected by rde.Width().
func OpConvertSignExtendAcc(m *machine.Machine) {
	switch m.Cur.Rde.Width() {
	case decode.W16:
		m.SetAX(uint16(int16(int8(m.AL()))))
	case decode.W64:
		WriteRegister64(m, machine.RegAX, uint64(int64(int32(ReadRegister32(m, machine.RegAX)))))
	default:
		WriteRegister32(m, machine.RegAX, uint32(int32(int16(m.AX()))))
	}
}

// OpConvertSignExtendPair implements CWD/CDQ/CQO: sign-extend AX/EAX/RAX into
// DX:AX/EDX:EAX/RDX:RAX.
func OpConvertSignExtendPair(m *machine.Machine) {
	switch m.Cur.Rde.Width() {
	case decode.W16:
		if int16(m.AX()) < 0 {
			m.SetDX(0xFFFF)
		} else {
			m.SetDX(0)
		}
	case decode.W64:
		if int64(ReadRegister64(m, machine.RegAX)) < 0 {
			WriteRegister64(m, machine.RegDX, ^uint64(0))
		} else {
			WriteRegister64(m, machine.RegDX, 0)
		}
	default:
		if int32(ReadRegister32(m, machine.RegAX)) < 0 {
			WriteRegister32(m, machine.RegDX, 0xFFFFFFFF)
		} else {
			WriteRegister32(m, machine.RegDX, 0)
		}
	}
}
