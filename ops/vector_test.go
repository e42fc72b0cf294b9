package ops_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/polarisvm/x86core/decode"
	"github.com/polarisvm/x86core/machine"
	"github.com/polarisvm/x86core/ops"
)

var _ = Describe("OpMovdqaVdqWdq/OpMovdqaWdqVdq", func() {
	It("round-trips 16 bytes between two XMM registers", func() {
		m := newTestMachine()
		m.Vector.XMM[1] = [2]uint64{0x1122334455667788, 0x99AABBCCDDEEFF00}
		m.Cur.Rde = decode.Pack(true, true, false, false, false, false, false, false, 3, 0, 1, false, 0, 0, 0)
		ops.OpMovdqaVdqWdq(m)
		Expect(m.Vector.XMM[0]).To(Equal(m.Vector.XMM[1]))
	})

	It("faults on an unaligned memory operand", func() {
		m := newTestMachine()
		m.Cur.Rde = decode.Pack(true, true, false, false, false, false, false, false, 0, 0, 0, false, 0, 0, 0)
		m.EffectiveAddress = 0x1001 // not 16-byte aligned
		Expect(func() { ops.OpMovdqaVdqWdq(m) }).To(Panic())
	})
})

var _ = Describe("OpMovdquVdqWdq", func() {
	It("loads from an unaligned memory operand without faulting", func() {
		m := newTestMachine()
		m.EffectiveAddress = 0x1001
		for i := 0; i < 16; i++ {
			m.System.RealMem[0x1001+i] = byte(i + 1)
		}
		m.Cur.Rde = decode.Pack(true, true, false, false, false, false, false, false, 0, 0, 0, false, 0, 0, 0)
		ops.OpMovdquVdqWdq(m)
		Expect(m.Vector.XMMBytes(0)[0]).To(Equal(byte(1)))
		Expect(m.Vector.XMMBytes(0)[15]).To(Equal(byte(16)))
	})
})

var _ = Describe("OpMovssVssWss", func() {
	It("merges only the low dword when the source is a register", func() {
		m := newTestMachine()
		m.Vector.XMM[0] = [2]uint64{0, 0xFFFFFFFFFFFFFFFF}
		m.Vector.XMM[1] = [2]uint64{0x00000000AAAAAAAA, 0}
		m.Cur.Rde = decode.Pack(true, true, false, false, false, false, false, false, 3, 0, 1, false, 0, 0, 0)
		ops.OpMovssVssWss(m)
		Expect(m.Vector.XMM[0][0] & 0xFFFFFFFF).To(Equal(uint64(0xAAAAAAAA)))
		Expect(m.Vector.XMM[0][1]).To(Equal(uint64(0xFFFFFFFFFFFFFFFF))) // upper lanes untouched
	})

	It("zeroes the upper lanes entirely when loading from memory", func() {
		m := newTestMachine()
		m.Vector.XMM[0] = [2]uint64{0xFFFFFFFFFFFFFFFF, 0xFFFFFFFFFFFFFFFF}
		m.EffectiveAddress = 0x2000
		m.Write32(0x2000, 0x11223344)
		m.Cur.Rde = decode.Pack(true, true, false, false, false, false, false, false, 0, 0, 0, false, 0, 0, 0)
		ops.OpMovssVssWss(m)
		Expect(m.Vector.XMM[0][0] & 0xFFFFFFFF).To(Equal(uint64(0x11223344)))
		Expect(m.Vector.XMM[0][0] >> 32).To(Equal(uint64(0)))
		Expect(m.Vector.XMM[0][1]).To(Equal(uint64(0)))
	})
})

var _ = Describe("OpMovqLoadXmm", func() {
	It("zeroes the upper 64 bits of the destination XMM register", func() {
		m := newTestMachine()
		m.Vector.XMM[0][1] = 0xFFFFFFFFFFFFFFFF
		m.WriteGPR64(1, 0xDEADBEEF)
		m.Cur.Rde = decode.Pack(true, true, false, false, false, false, false, false, 3, 0, 1, false, 0, 0, 0)
		ops.OpMovqLoadXmm(m)
		Expect(m.Vector.XMM[0][0]).To(Equal(uint64(0xDEADBEEF)))
		Expect(m.Vector.XMM[0][1]).To(Equal(uint64(0)))
	})
})

var _ = Describe("OpMaskmovdqu", func() {
	It("writes only the bytes whose mask byte has the sign bit set", func() {
		m := newTestMachine()
		var src, mask [16]byte
		for i := range src {
			src[i] = byte(0xA0 + i)
		}
		mask[0] = 0x80
		mask[2] = 0x80
		m.Vector.SetXMMBytes(0, src)
		m.Vector.SetXMMBytes(1, mask)
		m.WriteGPR64(machine.RegDI, 0x3000)
		m.System.RealMem[0x3001] = 0xFF
		m.Cur.Rde = decode.Pack(true, true, false, false, false, false, false, false, 3, 0, 1, false, 0, 0, 0)
		ops.OpMaskmovdqu(m)
		Expect(m.System.RealMem[0x3000]).To(Equal(src[0]))
		Expect(m.System.RealMem[0x3001]).To(Equal(byte(0xFF))) // untouched
		Expect(m.System.RealMem[0x3002]).To(Equal(src[2]))
	})
})

var _ = Describe("OpPmovmskb", func() {
	It("packs the sign bit of each byte into a GPR", func() {
		m := newTestMachine()
		var b [16]byte
		b[0] = 0x80
		b[1] = 0x7F
		b[15] = 0x80
		m.Vector.SetXMMBytes(0, b)
		m.Cur.Rde = decode.Pack(true, true, false, false, false, false, false, false, 3, 1, 0, false, 0, 0, 0)
		ops.OpPmovmskb(m)
		Expect(m.ReadGPR32(1)).To(Equal(uint32(0x8001)))
	})
})
