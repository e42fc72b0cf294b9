package ops

import (
	"github.com/polarisvm/x86core/decode"
	"github.com/polarisvm/x86core/machine"
)

// ExecuteSparseInstruction is the overflow switch for dispatch keys absent
// from the dense DispatchTable (§6): low-frequency SSSE3/SSE4 opcodes
// (PABS*, PALIGNR, PCLMULQDQ, MOVNTDQA, PMULLD) and the ancillary control
// surface (§4.7) that doesn't carry per-opcode-byte variety worth a dense
// slot each. Anything still unrecognized here is genuinely undefined and
// raises #UD, the same terminal path an unfilled dense slot would reach.
func ExecuteSparseInstruction(m *machine.Machine) {
	switch m.Cur.DispatchKey() {
	case sparseKey(1, 0xAE):
		opGroup15(m)
	case sparseKey(1, 0x77):
		OpEmms(m)
	case sparseKey(2, 0x1C), sparseKey(2, 0x1D), sparseKey(2, 0x1E):
		OpPabs(m)
	case sparseKey(2, 0x40):
		OpPmulld(m)
	case sparseKey(2, 0x2A):
		OpMovntdqa(m)
	case sparseKey(2, 0x44):
		OpPclmulqdq(m)
	case sparseKey(2, 0x0F):
		OpPalignr(m)
	case sparseKey(1, 0x1F):
		OpNopEv(m)
	case sparseKey(1, 0xC7):
		Op1c7(m)
	default:
		m.OpUd()
	}
}

func sparseKey(mapID int, opcode byte) int { return mapID<<8 | int(opcode) }

// opGroup15 dispatches the Group 15 (0F AE) sub-opcodes: FXSAVE/FXRSTOR,
// LDMXCSR/STMXCSR, the fence no-ops, and — under the F3 repeat prefix,
// register form only — RDFSBASE/RDGSBASE/WRFSBASE/WRGSBASE (§4.7).
func opGroup15(m *machine.Machine) {
	rde := m.Cur.Rde
	if rde.IsModrmRegister() {
		if m.Cur.Rep == decode.RepEqual {
			switch rde.ModrmReg() {
			case 0:
				OpRdfsbase(m)
			case 1:
				OpRdgsbase(m)
			case 2:
				OpWrfsbase(m)
			case 3:
				OpWrgsbase(m)
			default:
				m.OpUd()
			}
			return
		}
		switch rde.ModrmReg() {
		case 5:
			OpLfence(m)
		case 6:
			OpMfence(m)
		case 7:
			OpSfence(m)
		default:
			m.OpUd()
		}
		return
	}
	switch rde.ModrmReg() {
	case 0:
		OpFxsave(m)
	case 1:
		OpFxrstor(m)
	case 2:
		OpLdmxcsr(m)
	case 3:
		OpStmxcsr(m)
	default:
		m.OpUd()
	}
}

// OpNopEv implements the 0F 1F /r multi-byte NOP family (§4.4, §3). Most
// ModR/M encodings are plain no-ops; two specific rm/reg combinations are
// the interpreter's private debug-hook encodings: rm=5,reg=5 sets the
// bofram IP window to [IP, IP+disp8], and rm=7,reg=0 invokes the host's
// OnBinBase callback.
func OpNopEv(m *machine.Machine) {
	rde := m.Cur.Rde
	switch {
	case rde.ModrmRm() == 5 && rde.ModrmReg() == 5:
		m.BofRAMLo = m.IP
		m.BofRAMHi = m.IP + uint64(m.Cur.Disp)
	case rde.ModrmRm() == 7 && rde.ModrmReg() == 0:
		if m.System.OnBinBase != nil {
			m.System.OnBinBase(m)
		}
	}
}

// Op1c7 implements Group 9 (0F C7): CMPXCHG8B/16B on a memory operand
// (ModR/M.reg==1, width selected by REX.W), and on a register operand
// RDRAND (reg==6) / RDSEED (reg==7, or RDPID under REP) gating (§4.7,
// §2's C7 row). This core has no hardware entropy source, so RDRAND and
// RDSEED report failure (CF=0) rather than fabricate randomness.
func Op1c7(m *machine.Machine) {
	rde := m.Cur.Rde
	if rde.IsModrmRegister() {
		switch rde.ModrmReg() {
		case 6:
			WriteRegister(m, rde, rde.RegRexbRm(), 0)
			m.Flags.CF, m.Flags.OF, m.Flags.SF, m.Flags.ZF, m.Flags.AF, m.Flags.PF = false, false, false, false, false, false
		case 7:
			if m.Cur.Rep == decode.RepEqual {
				WriteRegister64(m, rde.RegRexbRm(), 0)
				return
			}
			WriteRegister(m, rde, rde.RegRexbRm(), 0)
			m.Flags.CF, m.Flags.OF, m.Flags.SF, m.Flags.ZF, m.Flags.AF, m.Flags.PF = false, false, false, false, false, false
		default:
			m.OpUd()
		}
		return
	}
	if rde.ModrmReg() != 1 {
		m.OpUd()
	}
	addr := m.ComputeAddress()
	if rde.Width() == decode.W64 {
		lo, hi := m.Read64(addr), m.Read64(addr+8)
		cmpLo, cmpHi := ReadRegister64(m, machine.RegAX), ReadRegister64(m, machine.RegDX)
		if lo == cmpLo && hi == cmpHi {
			m.Write64(addr, ReadRegister64(m, machine.RegBX))
			m.Write64(addr+8, ReadRegister64(m, machine.RegCX))
			m.Flags.ZF = true
		} else {
			WriteRegister64(m, machine.RegAX, lo)
			WriteRegister64(m, machine.RegDX, hi)
			m.Flags.ZF = false
		}
		return
	}
	lo, hi := m.Read32(addr), m.Read32(addr+4)
	cmpLo, cmpHi := ReadRegister32(m, machine.RegAX), ReadRegister32(m, machine.RegDX)
	if lo == cmpLo && hi == cmpHi {
		m.Write32(addr, ReadRegister32(m, machine.RegBX))
		m.Write32(addr+4, ReadRegister32(m, machine.RegCX))
		m.Flags.ZF = true
	} else {
		WriteRegister32(m, machine.RegAX, lo)
		WriteRegister32(m, machine.RegDX, hi)
		m.Flags.ZF = false
	}
}
