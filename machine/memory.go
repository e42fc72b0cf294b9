package machine

import (
	"encoding/binary"
	"sync/atomic"
)

// System is the resources shared by a Machine that are not part of its
// per-instruction architectural state: control registers, the GDT
// location, the flat guest-physical memory buffer, and the two coarse
// extensibility hooks (§3, §9 "Hooks for tooling").
type System struct {
	CR0, CR2, CR3, CR4 uint64
	GDTBase, GDTLimit  uint64

	// RealMem is the flat guest-physical memory buffer. Aliasing the same
	// RealMem slice across two Systems is how the host models memory
	// shared between interpreter instances (§5).
	RealMem []byte

	// OnLongBranch is invoked after any far control transfer (§4.3 OpJmpf).
	OnLongBranch func(m *Machine)
	// OnBinBase is invoked by the 0F 1F /0 debug-hook NOP encoding (§4.4
	// OpNopEv).
	OnBinBase func(m *Machine)

	// ResetInstructionCache is called once whenever ChangeMachineMode
	// observes an actual mode change (§9 "Mode-change invalidation"). The
	// decoder that owns the real instruction cache is external to this
	// core, so this is a single hook rather than scattered invalidation
	// logic living here.
	ResetInstructionCache func(m *Machine)
}

// Size returns the guest physical memory size in bytes.
func (s *System) Size() uint64 { return uint64(len(s.RealMem)) }

// Stash is the pending post-instruction guest-memory writeback described
// in §3 and §4.6: born in a memory helper that must defer an unaligned or
// split write, and flushed by the dispatcher immediately after the
// handler returns.
type Stash struct {
	Addr uint64
	Size int
	Buf  [8]byte
}

// Pending reports whether a stash write is outstanding.
func (s *Stash) Pending() bool { return s.Size != 0 }

// Clear empties the stash; invariant 8 in spec.md §8 requires Addr==0
// after every ExecuteInstruction.
func (s *Stash) Clear() { *s = Stash{} }

// ResolveAddress returns a slice of RealMem at guest address addr spanning
// length bytes, or nil if the range falls outside guest memory. Callers
// that require the address to exist should follow a nil result with
// ThrowSegmentationFault.
func (m *Machine) ResolveAddress(addr uint64, length int) []byte {
	sys := m.System
	if addr+uint64(length) > sys.Size() || addr+uint64(length) < addr {
		return nil
	}
	return sys.RealMem[addr : addr+uint64(length)]
}

// FindReal is the non-trapping counterpart of ResolveAddress: it returns
// (slice, true) when the range exists and (nil, false) otherwise, with no
// fault raised.
func (m *Machine) FindReal(addr uint64, length int) ([]byte, bool) {
	b := m.ResolveAddress(addr, length)
	return b, b != nil
}

// ReserveAddress returns a host-writable staging slice for a guest write of
// length bytes at addr. When the write falls entirely within guest memory
// it returns a direct view into RealMem, whatever its alignment; otherwise it
// stages the write into the Machine's Stash buffer (at most one stash is
// live per instruction, §3) and returns a view into that staging buffer,
// to be committed by the dispatcher's post-handler flush.
func (m *Machine) ReserveAddress(addr uint64, length int) []byte {
	if direct := m.ResolveAddress(addr, length); direct != nil {
		return direct
	}
	m.Stash.Addr = addr
	m.Stash.Size = length
	return m.Stash.Buf[:length]
}

// VirtualSend copies length bytes from guest memory at addr into dst.
func (m *Machine) VirtualSend(dst []byte, addr uint64, length int) {
	src := m.ResolveAddress(addr, length)
	if src == nil {
		m.ThrowSegmentationFault(addr)
	}
	copy(dst, src[:length])
}

// VirtualRecv copies length bytes from src into guest memory at addr.
func (m *Machine) VirtualRecv(addr uint64, src []byte, length int) {
	dst := m.ResolveAddress(addr, length)
	if dst == nil {
		m.ThrowSegmentationFault(addr)
	}
	copy(dst[:length], src)
}

// SetReadAddr/SetWriteAddr record an access for host-side tracing. This
// core has no tracer wired in by default; the hooks exist so a host can
// attach one without changing every handler's signature.
func (m *Machine) SetReadAddr(addr uint64, length int)  {}
func (m *Machine) SetWriteAddr(addr uint64, length int) {}

// BeginStore/EndStore bracket a masked store (MASKMOVDQU/MASKMOVQ) so the
// memory subsystem can apply byte-granular write permission checks around
// a partial write (§4.5). This flat-memory core has no page permissions,
// so the bracket is a no-op pair, kept so ops/vector.go's call shape
// matches the external interface in §6 exactly.
func (m *Machine) BeginStore(addr uint64, length int) {}
func (m *Machine) EndStore(addr uint64, length int)   {}

// Read8/16/32/64 and Write8/16/32/64 are the raw little-endian guest
// memory accessors. 32- and 64-bit accesses to a naturally aligned address
// use an acquire/release atomic operation; everything else is a plain
// byte-wise access — the atomicity contract in §4.1 and §5.
func (m *Machine) Read8(addr uint64) byte {
	return m.ResolveOrFault(addr, 1)[0]
}

func (m *Machine) Write8(addr uint64, v byte) {
	m.ResolveOrFault(addr, 1)[0] = v
}

func (m *Machine) Read16(addr uint64) uint16 {
	b := m.ResolveOrFault(addr, 2)
	return binary.LittleEndian.Uint16(b)
}

func (m *Machine) Write16(addr uint64, v uint16) {
	b := m.ResolveOrFault(addr, 2)
	binary.LittleEndian.PutUint16(b, v)
}

func (m *Machine) Read32(addr uint64) uint32 {
	b := m.ResolveOrFault(addr, 4)
	if addr&3 == 0 {
		return atomic.LoadUint32((*uint32)(asPtr32(b)))
	}
	return binary.LittleEndian.Uint32(b)
}

func (m *Machine) Write32(addr uint64, v uint32) {
	b := m.ResolveOrFault(addr, 4)
	if addr&3 == 0 {
		atomic.StoreUint32((*uint32)(asPtr32(b)), v)
		return
	}
	binary.LittleEndian.PutUint32(b, v)
}

func (m *Machine) Read64(addr uint64) uint64 {
	b := m.ResolveOrFault(addr, 8)
	if addr&7 == 0 {
		return atomic.LoadUint64((*uint64)(asPtr64(b)))
	}
	return binary.LittleEndian.Uint64(b)
}

func (m *Machine) Write64(addr uint64, v uint64) {
	b := m.ResolveOrFault(addr, 8)
	if addr&7 == 0 {
		atomic.StoreUint64((*uint64)(asPtr64(b)), v)
		return
	}
	binary.LittleEndian.PutUint64(b, v)
}

// ResolveOrFault is ResolveAddress followed by a segmentation fault on a
// missing range — the common path every fixed-width accessor above uses.
func (m *Machine) ResolveOrFault(addr uint64, length int) []byte {
	b := m.ResolveAddress(addr, length)
	if b == nil {
		m.ThrowSegmentationFault(addr)
	}
	return b
}

// ComputeAddress resolves the linear guest address of the current
// instruction's ModR/M memory operand. The effective-address arithmetic
// itself (SIB scale/index/base, displacement, segment base) is produced
// by the decoder/EA helper surface this core treats as an external
// collaborator (§1); Machine.EffectiveAddress is the seam a real decoder
// would populate per-instruction and which ComputeAddress simply reads.
func (m *Machine) ComputeAddress() uint64 {
	return m.EffectiveAddress
}

// ComputeReserveAddressRead2/4/8 and ComputeReserveAddressWrite4/8 resolve
// the current effective address and stage it for read or write of the
// named width — thin convenience wrappers spec.md §6 lists individually.
func (m *Machine) ComputeReserveAddressRead2() []byte { return m.ResolveOrFault(m.ComputeAddress(), 2) }
func (m *Machine) ComputeReserveAddressRead4() []byte { return m.ResolveOrFault(m.ComputeAddress(), 4) }
func (m *Machine) ComputeReserveAddressRead8() []byte { return m.ResolveOrFault(m.ComputeAddress(), 8) }

func (m *Machine) ComputeReserveAddressWrite4() []byte {
	return m.ReserveAddress(m.ComputeAddress(), 4)
}
func (m *Machine) ComputeReserveAddressWrite8() []byte {
	return m.ReserveAddress(m.ComputeAddress(), 8)
}
