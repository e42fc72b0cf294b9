package ops

import "github.com/polarisvm/x86core/machine"

// The sixteen Jcc/SETcc/CMOVcc condition predicates (§4.4), grounded the
// same way the teacher's BranchUnit.CheckCondition reads PSTATE.{N,Z,C,V}
// for its sixteen ARM64 conditions: one small function per condition, each
// reading only the flag bits it needs.

func condO(f *machine.Flags) bool  { return f.OF }
func condNO(f *machine.Flags) bool { return !f.OF }
func condB(f *machine.Flags) bool  { return f.CF }
func condNB(f *machine.Flags) bool { return !f.CF }
func condZ(f *machine.Flags) bool  { return f.ZF }
func condNZ(f *machine.Flags) bool { return !f.ZF }
func condBE(f *machine.Flags) bool { return f.CF || f.ZF }
func condA(f *machine.Flags) bool  { return !f.CF && !f.ZF }
func condS(f *machine.Flags) bool  { return f.SF }
func condNS(f *machine.Flags) bool { return !f.SF }
func condP(f *machine.Flags) bool  { return f.PF }
func condNP(f *machine.Flags) bool { return !f.PF }
func condL(f *machine.Flags) bool  { return f.SF != f.OF }
func condGE(f *machine.Flags) bool { return f.SF == f.OF }
func condLE(f *machine.Flags) bool { return f.ZF || f.SF != f.OF }
func condG(f *machine.Flags) bool  { return !f.ZF && f.SF == f.OF }

// CondFunc checks a single architectural condition against flags.
type CondFunc func(f *machine.Flags) bool

// Cond is indexed by the low nibble of the Jcc/SETcc/CMOVcc opcode
// (0x0=O .. 0xF=G), the standard x86 condition-code ordering.
var Cond = [16]CondFunc{
	condO, condNO, condB, condNB,
	condZ, condNZ, condBE, condA,
	condS, condNS, condP, condNP,
	condL, condGE, condLE, condG,
}

// CheckCondition evaluates condition code cc (0-15) against m's flags.
func CheckCondition(m *machine.Machine, cc byte) bool {
	return Cond[cc&0xF](&m.Flags)
}

// Parity reports the 8-bit parity predicate PF is defined over (§4.2).
func Parity(v byte) bool { return machine.Parity(v) }

// BelowOrEqual, Above, Less, GreaterOrEqual, LessOrEqual, Greater are named
// predicate helpers mirroring the Jcc mnemonics, for handlers (e.g.
// CMOVcc, SETcc, Jcc) that read more naturally by mnemonic than by raw
// condition-code number.
func BelowOrEqual(m *machine.Machine) bool     { return condBE(&m.Flags) }
func Above(m *machine.Machine) bool            { return condA(&m.Flags) }
func Less(m *machine.Machine) bool             { return condL(&m.Flags) }
func GreaterOrEqual(m *machine.Machine) bool   { return condGE(&m.Flags) }
func LessOrEqual(m *machine.Machine) bool      { return condLE(&m.Flags) }
func Greater(m *machine.Machine) bool          { return condG(&m.Flags) }
