// Package ops implements the instruction-level semantics the dispatcher
// advances guest state with: operand access, flag predicates, segment
// operations, the scalar and vector opcode families, the dispatch table,
// and the small ancillary-control surface (spec §4, §6).
package ops

import (
	"github.com/polarisvm/x86core/decode"
	"github.com/polarisvm/x86core/machine"
)

// gprCell resolves an 8-bit register-number into the GPR cell it addresses,
// applying legacy AH/CH/DH/BH high-byte aliasing only when no REX prefix is
// present and the number falls in [4,8) (§3, §4.1).
func gprCell(rde decode.RDE, regNum byte) machine.GPRCell {
	if !rde.HasRex() && regNum >= 4 && regNum < 8 {
		return machine.RegHigh(regNum - 4)
	}
	return machine.Reg(regNum)
}

// ReadRegister8/16/32/64 read regNum at the named width.
func ReadRegister8(m *machine.Machine, rde decode.RDE, regNum byte) byte {
	return m.ReadGPR8(gprCell(rde, regNum))
}

func ReadRegister16(m *machine.Machine, regNum byte) uint16 { return m.ReadGPR16(regNum) }
func ReadRegister32(m *machine.Machine, regNum byte) uint32 { return m.ReadGPR32(regNum) }
func ReadRegister64(m *machine.Machine, regNum byte) uint64 { return m.ReadGPR64(regNum) }

// WriteRegister8/16/32/64 write regNum at the named width. WriteRegister32
// zero-extends into the full 64-bit cell (§3's zero-extension law); the
// narrower writers preserve the untouched bits of the cell.
func WriteRegister8(m *machine.Machine, rde decode.RDE, regNum byte, v byte) {
	m.WriteGPR8(gprCell(rde, regNum), v)
}

func WriteRegister16(m *machine.Machine, regNum byte, v uint16) { m.WriteGPR16(regNum, v) }
func WriteRegister32(m *machine.Machine, regNum byte, v uint32) { m.WriteGPR32(regNum, v) }
func WriteRegister64(m *machine.Machine, regNum byte, v uint64) { m.WriteGPR64(regNum, v) }

// ReadRegister reads regNum at the width carried by rde (16/32/64; 8-bit
// forms go through ReadRegister8 directly since their width never comes
// from rde.Width()).
func ReadRegister(m *machine.Machine, rde decode.RDE, regNum byte) uint64 {
	switch rde.Width() {
	case decode.W16:
		return uint64(ReadRegister16(m, regNum))
	case decode.W64:
		return ReadRegister64(m, regNum)
	default:
		return uint64(ReadRegister32(m, regNum))
	}
}

// WriteRegister writes v to regNum at the width carried by rde.
func WriteRegister(m *machine.Machine, rde decode.RDE, regNum byte, v uint64) {
	switch rde.Width() {
	case decode.W16:
		WriteRegister16(m, regNum, uint16(v))
	case decode.W64:
		WriteRegister64(m, regNum, v)
	default:
		WriteRegister32(m, regNum, uint32(v))
	}
}

// ReadRegisterSigned sign-extends regNum's value at rde's width to int64 —
// used by the register form of BT/BTS/BTR/BTC, whose bit-index displacement
// is a signed quantity (§4.4 "bit-base family").
func ReadRegisterSigned(m *machine.Machine, rde decode.RDE, regNum byte) int64 {
	switch rde.Width() {
	case decode.W16:
		return int64(int16(ReadRegister16(m, regNum)))
	case decode.W64:
		return int64(ReadRegister64(m, regNum))
	default:
		return int64(int32(ReadRegister32(m, regNum)))
	}
}

// ReadMemory8/16/32/64 read the current instruction's effective address at
// the named width, faulting on an unmapped guest range.
func ReadMemory8(m *machine.Machine) byte     { return m.Read8(m.ComputeAddress()) }
func ReadMemory16(m *machine.Machine) uint16  { return m.Read16(m.ComputeAddress()) }
func ReadMemory32(m *machine.Machine) uint32  { return m.Read32(m.ComputeAddress()) }
func ReadMemory64(m *machine.Machine) uint64  { return m.Read64(m.ComputeAddress()) }

// WriteMemory8/16/32/64 write the current instruction's effective address.
func WriteMemory8(m *machine.Machine, v byte)     { m.Write8(m.ComputeAddress(), v) }
func WriteMemory16(m *machine.Machine, v uint16)  { m.Write16(m.ComputeAddress(), v) }
func WriteMemory32(m *machine.Machine, v uint32)  { m.Write32(m.ComputeAddress(), v) }
func WriteMemory64(m *machine.Machine, v uint64)  { m.Write64(m.ComputeAddress(), v) }

// ReadMemory reads the effective address at rde's width.
func ReadMemory(m *machine.Machine, rde decode.RDE) uint64 {
	switch rde.Width() {
	case decode.W16:
		return uint64(ReadMemory16(m))
	case decode.W64:
		return ReadMemory64(m)
	default:
		return uint64(ReadMemory32(m))
	}
}

// WriteMemory writes the effective address at rde's width.
func WriteMemory(m *machine.Machine, rde decode.RDE, v uint64) {
	switch rde.Width() {
	case decode.W16:
		WriteMemory16(m, uint16(v))
	case decode.W64:
		WriteMemory64(m, v)
	default:
		WriteMemory32(m, uint32(v))
	}
}

// ReadRegisterOrMemory8/ReadRegisterOrMemory and their Write counterparts
// are the "Eb"/"Ev" operand forms used throughout §4.4: ModR/M.mod==3
// selects a register (ModR/M.rm, REX.B-extended); anything else selects
// the memory operand at the decoder-supplied effective address.
func ReadRegisterOrMemory8(m *machine.Machine, rde decode.RDE) byte {
	if rde.IsModrmRegister() {
		return ReadRegister8(m, rde, rde.RegRexbRm())
	}
	return ReadMemory8(m)
}

func WriteRegisterOrMemory8(m *machine.Machine, rde decode.RDE, v byte) {
	if rde.IsModrmRegister() {
		WriteRegister8(m, rde, rde.RegRexbRm(), v)
		return
	}
	WriteMemory8(m, v)
}

func ReadRegisterOrMemory(m *machine.Machine, rde decode.RDE) uint64 {
	if rde.IsModrmRegister() {
		return ReadRegister(m, rde, rde.RegRexbRm())
	}
	return ReadMemory(m, rde)
}

func WriteRegisterOrMemory(m *machine.Machine, rde decode.RDE, v uint64) {
	if rde.IsModrmRegister() {
		WriteRegister(m, rde, rde.RegRexbRm(), v)
		return
	}
	WriteMemory(m, rde, v)
}

// ReadRegisterOrMemorySigned sign-extends the Ev operand to int64 at rde's
// width — used by IMUL/IDIV and the displacement arithmetic in the
// register form of the bit-test family.
func ReadRegisterOrMemorySigned(m *machine.Machine, rde decode.RDE) int64 {
	v := ReadRegisterOrMemory(m, rde)
	switch rde.Width() {
	case decode.W16:
		return int64(int16(v))
	case decode.W64:
		return int64(v)
	default:
		return int64(int32(v))
	}
}

// WidthBits returns the bit width rde.Width() selects, for callers that
// need to parameterize a kernels table lookup by log2(width/8).
func WidthBits(w decode.Width) int {
	switch w {
	case decode.W16:
		return 16
	case decode.W64:
		return 64
	default:
		return 32
	}
}

// WidthIndex maps a bit width to the kernels table's log2W index
// (0=>8, 1=>16, 2=>32, 3=>64).
func WidthIndex(bits int) int {
	switch bits {
	case 8:
		return 0
	case 16:
		return 1
	case 32:
		return 2
	default:
		return 3
	}
}
