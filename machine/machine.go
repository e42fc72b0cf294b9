// Package machine holds the guest CPU state the interpreter advances one
// instruction at a time: general registers, flags, segment bases,
// MMX/XMM/x87 state, control registers, flat guest memory, and the small
// op-cache used for deferred memory writeback (spec §3).
package machine

import "github.com/polarisvm/x86core/decode"

// Machine is the per-virtual-CPU state (§3). It is created once by the
// host; registers/flags/IP are mutated by opcode handlers in package ops,
// and the decoded-instruction record is refreshed by the external decoder
// before each dispatch tick.
type Machine struct {
	Regs  [NumGPR]uint64
	Flags Flags
	IP    uint64

	Seg [6]uint64 // segment bases, indexed by SegES..SegGS

	Vector Vector

	Mode Mode

	System *System

	Stash Stash

	// BofRAMLo/BofRAMHi is the debugger-assist IP window set by the
	// 0F 1F /5 NOP encoding (§4.4 OpNopEv, §3).
	BofRAMLo, BofRAMHi uint64

	// Cur is the decoded-instruction record for the instruction currently
	// being dispatched; refreshed by the external decoder before each
	// call to ops.ExecuteInstruction.
	Cur *decode.Inst

	// EffectiveAddress is the linear guest address of the current
	// instruction's ModR/M memory operand, computed by the external
	// decoder/EA helper surface and read by ComputeAddress (§6).
	EffectiveAddress uint64

	Halted     bool
	HaltVector int
}

// NewMachine creates a Machine over the given guest memory, starting in
// real mode with an empty flags word — the lifecycle spec.md §3 describes:
// "the machine is created once".
func NewMachine(sys *System) *Machine {
	return &Machine{System: sys, Mode: ModeReal}
}

// CF/PF/AF/ZF/SF/TF/IF/DF/OF are convenience flag readers mirroring the
// named boolean accessors the teacher exposes on its PSTATE-style flags
// (BranchUnit.CheckCondition reads m.PSTATE.N/Z/C/V the same way).
func (m *Machine) CF() bool { return m.Flags.CF }
func (m *Machine) PF() bool { return m.Flags.PF }
func (m *Machine) AF() bool { return m.Flags.AF }
func (m *Machine) ZF() bool { return m.Flags.ZF }
func (m *Machine) SF() bool { return m.Flags.SF }
func (m *Machine) TF() bool { return m.Flags.TF }
func (m *Machine) IFlag() bool { return m.Flags.IF }
func (m *Machine) DF() bool { return m.Flags.DF }
func (m *Machine) OF() bool { return m.Flags.OF }

func (m *Machine) SetFlag(mask uint32, v bool) {
	switch mask {
	case FlagCF:
		m.Flags.CF = v
	case FlagPF:
		m.Flags.PF = v
	case FlagAF:
		m.Flags.AF = v
	case FlagZF:
		m.Flags.ZF = v
	case FlagSF:
		m.Flags.SF = v
	case FlagTF:
		m.Flags.TF = v
	case FlagIF:
		m.Flags.IF = v
	case FlagDF:
		m.Flags.DF = v
	case FlagOF:
		m.Flags.OF = v
	}
}
