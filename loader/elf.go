// Package loader provides ELF binary loading for x86-64 executables.
package loader

import (
	"debug/elf"
	"fmt"
	"io"

	"github.com/polarisvm/x86core/machine"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// DefaultStackTop is the default stack top address for x86-64 Linux user
// space: a conventional high address below the kernel's half of the
// address space.
const DefaultStackTop = 0x7ffffffff000

// DefaultStackSize is the default stack size (8MB).
const DefaultStackSize = 8 * 1024 * 1024

// Segment represents a loadable segment from an ELF binary.
type Segment struct {
	// VirtAddr is the virtual address where this segment should be loaded.
	VirtAddr uint64
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint64
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// Program represents a loaded ELF program ready for execution.
type Program struct {
	// EntryPoint is the virtual address where execution should begin.
	EntryPoint uint64
	// Segments contains all loadable segments from the ELF file.
	Segments []Segment
	// InitialSP is the initial stack pointer value.
	InitialSP uint64
}

// Load parses an x86-64 ELF binary and returns a Program struct ready for
// loading into guest memory.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("not a 64-bit ELF file")
	}
	if f.Machine != elf.EM_X86_64 {
		return nil, fmt.Errorf("not an x86-64 ELF file (machine type: %v)", f.Machine)
	}

	prog := &Program{
		EntryPoint: f.Entry,
		InitialSP:  DefaultStackTop,
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		var flags SegmentFlags
		if phdr.Flags&elf.PF_X != 0 {
			flags |= SegmentFlagExecute
		}
		if phdr.Flags&elf.PF_W != 0 {
			flags |= SegmentFlagWrite
		}
		if phdr.Flags&elf.PF_R != 0 {
			flags |= SegmentFlagRead
		}

		prog.Segments = append(prog.Segments, Segment{
			VirtAddr: phdr.Vaddr,
			Data:     data,
			MemSize:  phdr.Memsz,
			Flags:    flags,
		})
	}

	return prog, nil
}

// LoadIntoMachine loads path's PT_LOAD segments and initial stack into a
// freshly sized flat guest-memory buffer, wiring the result into m (§3,
// §5 loader responsibilities). Guest memory is sized to the highest
// segment's end address plus the default stack region, rounded up to a
// page; this core has no demand paging, so everything is resident from
// the start.
func LoadIntoMachine(path string, m *machine.Machine) (entry uint64, err error) {
	prog, err := Load(path)
	if err != nil {
		return 0, err
	}

	var top uint64
	for _, seg := range prog.Segments {
		if end := seg.VirtAddr + seg.MemSize; end > top {
			top = end
		}
	}
	size := alignUp(top, 0x1000) + DefaultStackSize
	if stackAligned := alignUp(prog.InitialSP, 0x1000); size < stackAligned {
		size = stackAligned
	}

	m.System.RealMem = make([]byte, size)
	for _, seg := range prog.Segments {
		copy(m.System.RealMem[seg.VirtAddr:], seg.Data)
	}

	m.IP = prog.EntryPoint
	m.WriteGPR64(machine.RegSP, prog.InitialSP)
	return prog.EntryPoint, nil
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
