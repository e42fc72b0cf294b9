package ops

import (
	"github.com/polarisvm/x86core/decode"
	"github.com/polarisvm/x86core/machine"
)

// vecLoad/vecStore move 16 bytes between an XMM register and the ModR/M
// operand (register or memory). aligned requests the 16-byte alignment
// check MOVDQA/MOVAPS impose on a memory operand; MOVDQU/MOVUPS pass
// aligned=false (§4.5).
func vecLoad(m *machine.Machine, aligned bool) [16]byte {
	rde := m.Cur.Rde
	if rde.IsModrmRegister() {
		return m.Vector.XMMBytes(int(rde.RegRexbRm()))
	}
	addr := m.ComputeAddress()
	if aligned && addr&0xF != 0 {
		m.ThrowSegmentationFault(addr)
	}
	var b [16]byte
	m.VirtualSend(b[:], addr, 16)
	return b
}

func vecStore(m *machine.Machine, aligned bool, b [16]byte) {
	rde := m.Cur.Rde
	if rde.IsModrmRegister() {
		m.Vector.SetXMMBytes(int(rde.RegRexbRm()), b)
		return
	}
	addr := m.ComputeAddress()
	if aligned && addr&0xF != 0 {
		m.ThrowSegmentationFault(addr)
	}
	m.VirtualRecv(addr, b[:], 16)
}

// OpMovdqaVdqWdq/OpMovdqaWdqVdq implement MOVDQA (load/store direction),
// requiring 16-byte alignment on the memory operand.
func OpMovdqaVdqWdq(m *machine.Machine) {
	rde := m.Cur.Rde
	m.Vector.SetXMMBytes(int(rde.RegRexrReg()), vecLoad(m, true))
}

func OpMovdqaWdqVdq(m *machine.Machine) {
	rde := m.Cur.Rde
	vecStore(m, true, m.Vector.XMMBytes(int(rde.RegRexrReg())))
}

// OpMovdquVdqWdq/OpMovdquWdqVdq implement MOVDQU/MOVUPS (no alignment
// requirement).
func OpMovdquVdqWdq(m *machine.Machine) {
	rde := m.Cur.Rde
	m.Vector.SetXMMBytes(int(rde.RegRexrReg()), vecLoad(m, false))
}

func OpMovdquWdqVdq(m *machine.Machine) {
	rde := m.Cur.Rde
	vecStore(m, false, m.Vector.XMMBytes(int(rde.RegRexrReg())))
}

// OpMovssVssWss/OpMovssWssVss implement MOVSS: the register-register form
// merges only the low dword into the destination, leaving its upper three
// dwords untouched; the memory form zeroes the upper lanes entirely
// (§4.5).
func OpMovssVssWss(m *machine.Machine) {
	rde := m.Cur.Rde
	dst := int(rde.RegRexrReg())
	if rde.IsModrmRegister() {
		src := m.Vector.XMMBytes(int(rde.RegRexbRm()))
		d := m.Vector.XMMBytes(dst)
		copy(d[0:4], src[0:4])
		m.Vector.SetXMMBytes(dst, d)
		return
	}
	var b [16]byte
	var lo [4]byte
	m.VirtualSend(lo[:], m.ComputeAddress(), 4)
	copy(b[0:4], lo[:])
	m.Vector.SetXMMBytes(dst, b)
}

func OpMovssWssVss(m *machine.Machine) {
	rde := m.Cur.Rde
	src := m.Vector.XMMBytes(int(rde.RegRexrReg()))
	if rde.IsModrmRegister() {
		d := m.Vector.XMMBytes(int(rde.RegRexbRm()))
		copy(d[0:4], src[0:4])
		m.Vector.SetXMMBytes(int(rde.RegRexbRm()), d)
		return
	}
	m.VirtualRecv(m.ComputeAddress(), src[0:4], 4)
}

// OpMovsdVsdWsd/OpMovsdWsdVsd implement MOVSD (scalar double), the 64-bit
// analogue of MOVSS.
func OpMovsdVsdWsd(m *machine.Machine) {
	rde := m.Cur.Rde
	dst := int(rde.RegRexrReg())
	if rde.IsModrmRegister() {
		src := m.Vector.XMMBytes(int(rde.RegRexbRm()))
		d := m.Vector.XMMBytes(dst)
		copy(d[0:8], src[0:8])
		m.Vector.SetXMMBytes(dst, d)
		return
	}
	var b [16]byte
	var lo [8]byte
	m.VirtualSend(lo[:], m.ComputeAddress(), 8)
	copy(b[0:8], lo[:])
	m.Vector.SetXMMBytes(dst, b)
}

func OpMovsdWsdVsd(m *machine.Machine) {
	rde := m.Cur.Rde
	src := m.Vector.XMMBytes(int(rde.RegRexrReg()))
	if rde.IsModrmRegister() {
		d := m.Vector.XMMBytes(int(rde.RegRexbRm()))
		copy(d[0:8], src[0:8])
		m.Vector.SetXMMBytes(int(rde.RegRexbRm()), d)
		return
	}
	m.VirtualRecv(m.ComputeAddress(), src[0:8], 8)
}

// OpMovupsFamily builds the 0F 10/11 multiplexer (§4.5's table): REP
// selects the scalar MOVSS lane move, REPNE selects MOVSD, and no repeat
// prefix selects the unaligned 16-byte MOVUPS/MOVDQU copy — OSZ (MOVUPD)
// is bitwise identical to the no-prefix form, since this core performs no
// format conversion on a plain move.
func OpMovupsFamily(load bool) Handler {
	return func(m *machine.Machine) {
		switch m.Cur.Rep {
		case decode.RepEqual:
			if load {
				OpMovssVssWss(m)
			} else {
				OpMovssWssVss(m)
			}
		case decode.RepNE:
			if load {
				OpMovsdVsdWsd(m)
			} else {
				OpMovsdWsdVsd(m)
			}
		default:
			if load {
				OpMovdquVdqWdq(m)
			} else {
				OpMovdquWdqVdq(m)
			}
		}
	}
}

// OpMovlpsFamily implements the 0F 12 multiplexer (§4.5's table):
// MOVHLPS on a register source (upper 64 bits of source into the lower 64
// of destination), MOVLPS/MOVLPD on a memory source (load low 64 bits),
// MOVDDUP under REPNE (broadcast the low qword into both lanes), and
// MOVSLDUP under REP (broadcast each lane's low dword across its lane).
func OpMovlpsFamily(m *machine.Machine) {
	rde := m.Cur.Rde
	dst := int(rde.RegRexrReg())
	switch m.Cur.Rep {
	case decode.RepNE:
		var lo uint64
		if rde.IsModrmRegister() {
			lo = m.Vector.XMM[rde.RegRexbRm()][0]
		} else {
			lo = ReadMemory64(m)
		}
		m.Vector.XMM[dst] = [2]uint64{lo, lo}
	case decode.RepEqual:
		b := vecLoad(m, false)
		var r [16]byte
		copy(r[0:4], b[0:4])
		copy(r[4:8], b[0:4])
		copy(r[8:12], b[8:12])
		copy(r[12:16], b[8:12])
		m.Vector.SetXMMBytes(dst, r)
	default:
		if rde.IsModrmRegister() {
			d := m.Vector.XMM[dst]
			d[0] = m.Vector.XMM[rde.RegRexbRm()][1]
			m.Vector.XMM[dst] = d
			return
		}
		d := m.Vector.XMM[dst]
		d[0] = ReadMemory64(m)
		m.Vector.XMM[dst] = d
	}
}

// OpMovhpsFamily implements the 0F 16 multiplexer: MOVLHPS on a register
// source (lower 64 bits of source into the upper 64 of destination),
// MOVHPS/MOVHPD on a memory source (load into the upper 64 bits), and
// MOVSHDUP under REP (broadcast each lane's high dword across its lane).
// REPNE has no defined instruction at this opcode and raises #UD.
func OpMovhpsFamily(m *machine.Machine) {
	rde := m.Cur.Rde
	dst := int(rde.RegRexrReg())
	switch m.Cur.Rep {
	case decode.RepNE:
		m.OpUd()
	case decode.RepEqual:
		b := vecLoad(m, false)
		var r [16]byte
		copy(r[0:4], b[4:8])
		copy(r[4:8], b[4:8])
		copy(r[8:12], b[12:16])
		copy(r[12:16], b[12:16])
		m.Vector.SetXMMBytes(dst, r)
	default:
		if rde.IsModrmRegister() {
			d := m.Vector.XMM[dst]
			d[1] = m.Vector.XMM[rde.RegRexbRm()][0]
			m.Vector.XMM[dst] = d
			return
		}
		d := m.Vector.XMM[dst]
		d[1] = ReadMemory64(m)
		m.Vector.XMM[dst] = d
	}
}

// OpMovqLoadXmm implements the 0F 6E MOVQ load: a 64-bit move from a GPR
// or memory into an XMM register that zeroes the upper 64 bits (the
// "upper-lane zeroing" invariant, §4.5).
func OpMovqLoadXmm(m *machine.Machine) {
	rde := m.Cur.Rde
	dst := int(rde.RegRexrReg())
	var v uint64
	if rde.IsModrmRegister() {
		v = ReadRegister64(m, rde.RegRexbRm())
	} else {
		v = ReadMemory64(m)
	}
	m.Vector.XMM[dst][0] = v
	m.Vector.XMM[dst][1] = 0
}

func OpMovqStoreGpr(m *machine.Machine) {
	rde := m.Cur.Rde
	v := m.Vector.XMM[rde.RegRexrReg()][0]
	if rde.IsModrmRegister() {
		WriteRegister64(m, rde.RegRexbRm(), v)
		return
	}
	WriteMemory64(m, v)
}

// OpMovqXmmXmm implements the 0F D6 MOVQ Wq, Vq form: stores the low 64
// bits of an XMM register, zeroing the destination's upper 64 bits when
// the destination is itself an XMM register.
func OpMovqXmmXmm(m *machine.Machine) {
	rde := m.Cur.Rde
	src := m.Vector.XMM[rde.RegRexrReg()][0]
	if rde.IsModrmRegister() {
		dst := int(rde.RegRexbRm())
		m.Vector.XMM[dst][0] = src
		m.Vector.XMM[dst][1] = 0
		return
	}
	m.Write64(m.ComputeAddress(), src)
}

// OpMaskmovdqu implements MASKMOVDQU: conditionally stores each of 16
// bytes of the source XMM register to [RDI] when the corresponding mask
// byte's sign bit is set, bracketed by BeginStore/EndStore so a host
// memory subsystem can apply byte-granular write permission checks around
// the partial write (§4.5, §6).
func OpMaskmovdqu(m *machine.Machine) {
	rde := m.Cur.Rde
	src := m.Vector.XMMBytes(int(rde.RegRexrReg()))
	mask := m.Vector.XMMBytes(int(rde.RegRexbRm()))
	addr := ReadRegister64(m, machine.RegDI)
	m.BeginStore(addr, 16)
	for i := 0; i < 16; i++ {
		if mask[i]&0x80 != 0 {
			m.Write8(addr+uint64(i), src[i])
		}
	}
	m.EndStore(addr, 16)
}

// OpPmovmskb implements PMOVMSKB: packs the sign bit of each of 16 bytes
// of an XMM source into the low 16 bits of a GPR. The source is always an
// XMM register; the 8-byte MMX form is not handled.
func OpPmovmskb(m *machine.Machine) {
	rde := m.Cur.Rde
	src := m.Vector.XMMBytes(int(rde.RegRexbRm()))
	var mask uint32
	for i := 0; i < 16; i++ {
		if src[i]&0x80 != 0 {
			mask |= 1 << uint(i)
		}
	}
	WriteRegister32(m, rde.RegRexrReg(), mask)
}
