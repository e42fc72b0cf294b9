package ops

import "github.com/polarisvm/x86core/machine"

// fxsaveLayout mirrors blink's FXSAVE area layout (§4.7, §6): a 32-byte
// header (control word, status word, tag word, last opcode, last
// instruction pointer, MXCSR), 128 bytes of x87 ST registers (16 padded
// bytes each, per the Open Question resolved in DESIGN.md), then 256 bytes
// of the sixteen XMM registers — 416 bytes total.
const (
	fxHeaderSize = 32
	fxSTSize     = 128
	fxXMMSize    = 256
	fxTotalSize  = fxHeaderSize + fxSTSize + fxXMMSize
)

// OpFxsave implements FXSAVE: serializes the x87/MMX/XMM state block to
// the effective address.
func OpFxsave(m *machine.Machine) {
	addr := m.ComputeAddress()
	var hdr [fxHeaderSize]byte
	le16(hdr[0:2], m.Vector.FPU.CW)
	le16(hdr[2:4], m.Vector.FPU.SW)
	hdr[4] = m.Vector.FPU.TW
	le16(hdr[6:8], m.Vector.FPU.Opcode)
	le32(hdr[8:12], m.Vector.FPU.IP)
	le32(hdr[24:28], m.Vector.MXCSR)
	m.VirtualRecv(addr, hdr[:], fxHeaderSize)

	var st [fxSTSize]byte
	for i := 0; i < 8; i++ {
		copy(st[i*16:i*16+16], m.Vector.FPU.ST[i][:])
	}
	m.VirtualRecv(addr+fxHeaderSize, st[:], fxSTSize)

	var xmm [fxXMMSize]byte
	for i := 0; i < machine.NumXMM; i++ {
		b := m.Vector.XMMBytes(i)
		copy(xmm[i*16:i*16+16], b[:])
	}
	m.VirtualRecv(addr+fxHeaderSize+fxSTSize, xmm[:], fxXMMSize)

	m.SetWriteAddr(addr, fxTotalSize)
}

// OpFxrstor implements FXRSTOR: the inverse of OpFxsave.
func OpFxrstor(m *machine.Machine) {
	addr := m.ComputeAddress()
	var hdr [fxHeaderSize]byte
	m.VirtualSend(hdr[:], addr, fxHeaderSize)
	m.Vector.FPU.CW = beOrLe16(hdr[0:2])
	m.Vector.FPU.SW = beOrLe16(hdr[2:4])
	m.Vector.FPU.TW = hdr[4]
	m.Vector.FPU.Opcode = beOrLe16(hdr[6:8])
	m.Vector.FPU.IP = beOrLe32(hdr[8:12])
	m.Vector.MXCSR = beOrLe32(hdr[24:28])

	var st [fxSTSize]byte
	m.VirtualSend(st[:], addr+fxHeaderSize, fxSTSize)
	for i := 0; i < 8; i++ {
		copy(m.Vector.FPU.ST[i][:], st[i*16:i*16+16])
	}

	var xmm [fxXMMSize]byte
	m.VirtualSend(xmm[:], addr+fxHeaderSize+fxSTSize, fxXMMSize)
	for i := 0; i < machine.NumXMM; i++ {
		var b [16]byte
		copy(b[:], xmm[i*16:i*16+16])
		m.Vector.SetXMMBytes(i, b)
	}
	m.SetReadAddr(addr, fxTotalSize)
}

func le16(b []byte, v uint16) { b[0], b[1] = byte(v), byte(v>>8) }
func le32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}
func beOrLe16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func beOrLe32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// OpLdmxcsr/OpStmxcsr implement LDMXCSR/STMXCSR: load/store the 32-bit
// MXCSR control/status register.
func OpLdmxcsr(m *machine.Machine) { m.Vector.MXCSR = ReadMemory32(m) }
func OpStmxcsr(m *machine.Machine) { WriteMemory32(m, m.Vector.MXCSR) }

// OpLfence/OpMfence/OpSfence are no-ops in this single-threaded
// interpreter: every guest memory access already happens in program
// order from the one goroutine driving ExecuteInstruction, so there is nothing for a
// fence to reorder against (§4.7, §7 concurrency model).
func OpLfence(m *machine.Machine) {}
func OpMfence(m *machine.Machine) {}
func OpSfence(m *machine.Machine) {}

// OpEmms implements EMMS: marks the x87 tag word entirely empty, ending
// the FPU/MMX register-file aliasing window (§4.7).
func OpEmms(m *machine.Machine) { m.Vector.FPU.TW = 0xFF }

// OpRdfsbase/OpRdgsbase/OpWrfsbase/OpWrgsbase read/write the FS/GS segment
// bases directly as 64-bit GPR values (§4.7); this core keeps segment
// state as bases already (machine.Machine.Seg), so these are plain
// accessors with no descriptor lookup.
func OpRdfsbase(m *machine.Machine) {
	WriteRegister64(m, m.Cur.Rde.RegRexbRm(), m.Seg[machine.SegFS])
}

func OpWrfsbase(m *machine.Machine) {
	m.Seg[machine.SegFS] = ReadRegister64(m, m.Cur.Rde.RegRexbRm())
}

func OpRdgsbase(m *machine.Machine) {
	WriteRegister64(m, m.Cur.Rde.RegRexbRm(), m.Seg[machine.SegGS])
}

func OpWrgsbase(m *machine.Machine) {
	m.Seg[machine.SegGS] = ReadRegister64(m, m.Cur.Rde.RegRexbRm())
}

// OpPabs implements PABSB/PABSW/PABSD: packed absolute value, element
// width selected by the dense-table slot (0F 38 1C/1D/1E).
func OpPabs(m *machine.Machine) {
	rde := m.Cur.Rde
	elemBytes := 1 << (m.Cur.Opcode - 0x1C)
	src := vecLoad(m, false)
	var dst [16]byte
	for off := 0; off < 16; off += elemBytes {
		v := int64(0)
		for i := elemBytes - 1; i >= 0; i-- {
			v = v<<8 | int64(src[off+i])
		}
		signBit := int64(1) << uint(elemBytes*8-1)
		if v&signBit != 0 {
			v = v - (signBit << 1)
		}
		if v < 0 {
			v = -v
		}
		for i := 0; i < elemBytes; i++ {
			dst[off+i] = byte(v >> uint(8*i))
		}
	}
	m.Vector.SetXMMBytes(int(rde.RegRexrReg()), dst)
}

// OpPmulld implements PMULLD: packed signed 32-bit multiply, low half.
func OpPmulld(m *machine.Machine) {
	rde := m.Cur.Rde
	dst := m.Vector.XMMBytes(int(rde.RegRexrReg()))
	src := vecLoad(m, false)
	var result [16]byte
	for off := 0; off < 16; off += 4 {
		a := int32(beOrLe32(dst[off : off+4]))
		b := int32(beOrLe32(src[off : off+4]))
		le32(result[off:off+4], uint32(a*b))
	}
	m.Vector.SetXMMBytes(int(rde.RegRexrReg()), result)
}

// OpMovntdqa implements MOVNTDQA: a non-temporal aligned load. This core
// has no cache model to bypass, so it behaves exactly like MOVDQA.
func OpMovntdqa(m *machine.Machine) { OpMovdqaVdqWdq(m) }

// OpPclmulqdq implements PCLMULQDQ: carry-less (XOR, no-carry) multiply of
// two 64-bit lanes selected by the immediate operand's bit 0 (destination)
// and bit 4 (source), producing a 128-bit product.
func OpPclmulqdq(m *machine.Machine) {
	rde := m.Cur.Rde
	dst := m.Vector.XMM[rde.RegRexrReg()]
	var srcLo, srcHi uint64
	if rde.IsModrmRegister() {
		s := m.Vector.XMM[rde.RegRexbRm()]
		srcLo, srcHi = s[0], s[1]
	} else {
		b := vecLoad(m, false)
		srcLo = beOrLe64(b[0:8])
		srcHi = beOrLe64(b[8:16])
	}
	imm := byte(m.Cur.Uimm0)
	a := dst[0]
	if imm&1 != 0 {
		a = dst[1]
	}
	b := srcLo
	if imm&0x10 != 0 {
		b = srcHi
	}
	lo, hi := clmul64(a, b)
	m.Vector.XMM[rde.RegRexrReg()] = [2]uint64{lo, hi}
}

func clmul64(a, b uint64) (lo, hi uint64) {
	for i := 0; i < 64; i++ {
		if b&(1<<uint(i)) != 0 {
			if i == 0 {
				lo ^= a
			} else {
				lo ^= a << uint(i)
				hi ^= a >> uint(64-i)
			}
		}
	}
	return lo, hi
}

func beOrLe64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// OpPalignr implements PALIGNR: concatenates dest:src (dest in the high
// bytes) and extracts a 16-byte window shifted right by the imm8 byte
// count.
func OpPalignr(m *machine.Machine) {
	rde := m.Cur.Rde
	dst := m.Vector.XMMBytes(int(rde.RegRexrReg()))
	src := vecLoad(m, false)
	var concat [32]byte
	copy(concat[0:16], src[:])
	copy(concat[16:32], dst[:])
	shift := int(byte(m.Cur.Uimm0))
	var result [16]byte
	for i := 0; i < 16; i++ {
		idx := i + shift
		if idx < 32 {
			result[i] = concat[idx]
		}
	}
	m.Vector.SetXMMBytes(int(rde.RegRexrReg()), result)
}
