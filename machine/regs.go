package machine

// GPR count, numbered like the teacher's ARM64 RegFile but meaning the
// sixteen x86-64 general-purpose registers RAX..R15.
const NumGPR = 16

// GPRCell identifies a general-purpose register cell, optionally as the
// high-byte alias (AH/CH/DH/BH) used by 8-bit opcodes when no REX prefix
// is present. Cells are always stored little-endian, §3's invariant.
type GPRCell struct {
	Index   byte // 0-15
	HighByte bool // true selects bits [15:8] of Index (AH/CH/DH/BH, no REX only)
}

// Reg builds a full-width (non-high-byte) cell reference.
func Reg(index byte) GPRCell { return GPRCell{Index: index} }

// RegHigh builds a legacy high-byte cell reference (AH/CH/DH/BH).
func RegHigh(index byte) GPRCell { return GPRCell{Index: index, HighByte: true} }

// ReadGPR8 reads the 8-bit value addressed by cell.
func (m *Machine) ReadGPR8(cell GPRCell) byte {
	v := m.Regs[cell.Index]
	if cell.HighByte {
		return byte(v >> 8)
	}
	return byte(v)
}

// WriteGPR8 writes the 8-bit value addressed by cell, preserving every
// other bit of the 64-bit cell (§3 byte-write preservation invariant).
func (m *Machine) WriteGPR8(cell GPRCell, x byte) {
	if cell.HighByte {
		m.Regs[cell.Index] = (m.Regs[cell.Index] &^ 0xff00) | uint64(x)<<8
		return
	}
	m.Regs[cell.Index] = (m.Regs[cell.Index] &^ 0xff) | uint64(x)
}

// ReadGPR16 reads the 16-bit value of the given register index.
func (m *Machine) ReadGPR16(index byte) uint16 { return uint16(m.Regs[index]) }

// WriteGPR16 writes the low 16 bits of the register, preserving the rest.
func (m *Machine) WriteGPR16(index byte, x uint16) {
	m.Regs[index] = (m.Regs[index] &^ 0xffff) | uint64(x)
}

// ReadGPR32 reads the 32-bit value of the given register index.
func (m *Machine) ReadGPR32(index byte) uint32 { return uint32(m.Regs[index]) }

// WriteGPR32 writes the low 32 bits of the register and zero-extends: the
// upper 32 bits of the 64-bit cell are cleared (§3's zero-extension law).
func (m *Machine) WriteGPR32(index byte, x uint32) {
	m.Regs[index] = uint64(x)
}

// ReadGPR64 reads the full 64-bit register.
func (m *Machine) ReadGPR64(index byte) uint64 { return m.Regs[index] }

// WriteGPR64 writes the full 64-bit register.
func (m *Machine) WriteGPR64(index byte, x uint64) { m.Regs[index] = x }

// Named single-register accessors used by opcode handlers whose
// architectural name is clearer than a numeric index (AL, AX, EAX, RAX,
// and friends), mirroring the named accessors (AL/AH/AX/EAX/RAX) spec.md
// §3 calls out explicitly.
const (
	RegAX = 0
	RegCX = 1
	RegDX = 2
	RegBX = 3
	RegSP = 4
	RegBP = 5
	RegSI = 6
	RegDI = 7
)

func (m *Machine) AL() byte    { return m.ReadGPR8(Reg(RegAX)) }
func (m *Machine) SetAL(v byte) { m.WriteGPR8(Reg(RegAX), v) }
func (m *Machine) AH() byte    { return m.ReadGPR8(RegHigh(RegAX)) }
func (m *Machine) CL() byte    { return m.ReadGPR8(Reg(RegCX)) }
func (m *Machine) AX() uint16  { return m.ReadGPR16(RegAX) }
func (m *Machine) SetAX(v uint16) { m.WriteGPR16(RegAX, v) }
func (m *Machine) DX() uint16  { return m.ReadGPR16(RegDX) }
func (m *Machine) SetDX(v uint16) { m.WriteGPR16(RegDX, v) }
