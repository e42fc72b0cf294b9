package machine

// Flag bit positions within the packed RFLAGS-style word, matching the
// architectural layout so ExportFlags/ImportFlags round-trip the bits a
// real PUSHF/POPF image would carry.
const (
	FlagCF uint32 = 1 << 0
	// bit 1 reserved, always reads as 1 on real hardware; this core treats
	// it as always-clear internally and only forces it on export.
	FlagPF uint32 = 1 << 2
	// bit 3 reserved
	FlagAF uint32 = 1 << 4
	// bit 5 reserved
	FlagZF uint32 = 1 << 6
	FlagSF uint32 = 1 << 7
	FlagTF uint32 = 1 << 8
	FlagIF uint32 = 1 << 9
	FlagDF uint32 = 1 << 10
	FlagOF uint32 = 1 << 11
	// VM (bit 17) and RF (bit 16) are the two bits PUSHF masks out.
	FlagRF uint32 = 1 << 16
	FlagVM uint32 = 1 << 17
)

// pushfMask is the set of bits preserved by PUSHF: VM and RF are dropped.
// 0xFCFFFF keeps bits 0-15 and 18-23, clearing bits 16-17.
const pushfMask = 0xFCFFFF

// Flags holds the nine named architectural flag bits plus the reserved
// VM/RF bits needed to round-trip PUSHF/POPF faithfully. Reads and writes
// go through the named booleans; ExportFlags/ImportFlags are the only
// places the packed word format is assembled or parsed.
type Flags struct {
	CF, PF, AF, ZF, SF, TF, IF, DF, OF bool
	RF, VM                             bool
}

// ExportFlags packs the flags into the architectural word layout, forcing
// the always-one reserved bit 1 as real hardware does.
func ExportFlags(f *Flags) uint32 {
	var w uint32 = 1 << 1 // reserved bit 1 always reads as 1
	if f.CF {
		w |= FlagCF
	}
	if f.PF {
		w |= FlagPF
	}
	if f.AF {
		w |= FlagAF
	}
	if f.ZF {
		w |= FlagZF
	}
	if f.SF {
		w |= FlagSF
	}
	if f.TF {
		w |= FlagTF
	}
	if f.IF {
		w |= FlagIF
	}
	if f.DF {
		w |= FlagDF
	}
	if f.OF {
		w |= FlagOF
	}
	if f.RF {
		w |= FlagRF
	}
	if f.VM {
		w |= FlagVM
	}
	return w
}

// ImportFlags unpacks a full 32-bit flags word into f, ignoring reserved
// bits. Used by POPF and the protected-mode IRET-equivalent paths.
func ImportFlags(f *Flags, w uint32) {
	f.CF = w&FlagCF != 0
	f.PF = w&FlagPF != 0
	f.AF = w&FlagAF != 0
	f.ZF = w&FlagZF != 0
	f.SF = w&FlagSF != 0
	f.TF = w&FlagTF != 0
	f.IF = w&FlagIF != 0
	f.DF = w&FlagDF != 0
	f.OF = w&FlagOF != 0
	f.RF = w&FlagRF != 0
	f.VM = w&FlagVM != 0
}

// PushfImage returns the value PUSHF/PUSHFQ would place on the stack: the
// exported flags word with VM and RF masked out (§4.4, §6).
func PushfImage(f *Flags) uint64 {
	return uint64(ExportFlags(f)) & pushfMask
}

// PopfImport16 replaces the whole low 16 bits of the flags word with v,
// TF/IF/DF/OF included, and keeps the bits above them (RF, VM) at their
// prior values — the behaviour of POPF when the operand-size-override
// prefix is present (§4.4 "PUSHF/POPF").
func PopfImport16(f *Flags, v uint16) {
	prior := ExportFlags(f)
	merged := (prior &^ 0xffff) | uint32(v)
	ImportFlags(f, merged)
}

// Parity reports the 8-bit parity (true = even number of set bits) of the
// low byte of v, the standard table-free computation used throughout the
// corpus (e.g. IntuitionEngine's cpu_x86.go parity helper).
func Parity(v byte) bool {
	v ^= v >> 4
	v ^= v >> 2
	v ^= v >> 1
	return v&1 == 0
}
