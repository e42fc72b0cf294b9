package machine

// Mode is the current machine mode, derived from CR0.PE and (in protected
// mode) the code descriptor's mode bits (§4.3).
type Mode uint8

const (
	ModeReal Mode = iota
	ModeLegacy32
	ModeLong64
)

// Segment register indices into Machine.Seg (§3: each an 8-byte cell
// holding a base address, not a selector).
const (
	SegES = 0
	SegCS = 1
	SegSS = 2
	SegDS = 3
	SegFS = 4
	SegGS = 5
)

// IsProtectedMode reports CR0.PE (§4.3).
func (m *Machine) IsProtectedMode() bool { return m.System.CR0&1 != 0 }

// GetDescriptor reads the 8-byte GDT descriptor for selector, bounds
// checked against [8, gdt_limit] (§4.3, mirroring blink's GetDescriptor).
// It returns false if the selector is out of range.
func (m *Machine) GetDescriptor(selector uint64) (uint64, bool) {
	sys := m.System
	if sys.GDTBase+sys.GDTLimit > sys.Size() {
		// Invariant violated: the GDT itself doesn't fit in guest memory.
		return 0, false
	}
	sel := selector &^ 7
	if sel < 8 || sel+8 > sys.GDTLimit {
		return 0, false
	}
	m.SetReadAddr(sys.GDTBase+sel, 8)
	return m.Read64(sys.GDTBase + sel), true
}

// GetDescriptorBase extracts the 32-bit segment base from a packed
// descriptor (§4.3, scattered-bitfield composition).
func GetDescriptorBase(d uint64) uint64 {
	return (d&0xFF00000000000000)>>32 | (d&0x000000FFFFFF0000)>>16
}

// GetDescriptorLimit extracts the 20-bit segment limit from a packed
// descriptor.
func GetDescriptorLimit(d uint64) uint64 {
	return (d&0x000F000000000000)>>32 | (d & 0xFFFF)
}

// descriptorModeTable maps the two mode bits at position 53 to a Mode;
// both low-bit-set values deliberately map to ModeLong64, matching
// blink's kMode table verbatim (§4.3).
var descriptorModeTable = [4]Mode{ModeReal, ModeLong64, ModeLegacy32, ModeLong64}

// GetDescriptorMode extracts the machine mode a code descriptor selects.
func GetDescriptorMode(d uint64) Mode {
	return descriptorModeTable[(d&0x0060000000000000)>>53]
}

// ChangeMachineMode transitions the machine to mode, invalidating the
// instruction cache (via ResetInstructionCache) only when the mode
// actually changes (§3, §9 "Mode-change invalidation").
func (m *Machine) ChangeMachineMode(mode Mode) {
	if mode == m.Mode {
		return
	}
	if m.System.ResetInstructionCache != nil {
		m.System.ResetInstructionCache(m)
	}
	m.Mode = mode
}
