package ops_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/polarisvm/x86core/decode"
	"github.com/polarisvm/x86core/machine"
	"github.com/polarisvm/x86core/ops"
)

var _ = Describe("OpFxsave/OpFxrstor", func() {
	It("round-trips the full FPU/MXCSR/XMM state through a 416-byte image", func() {
		m := newTestMachine()
		m.Vector.FPU.CW = 0x037F
		m.Vector.FPU.SW = 0x0001
		m.Vector.FPU.TW = 0xAB
		m.Vector.MXCSR = 0x1F80
		m.Vector.XMM[3] = [2]uint64{0x1111111111111111, 0x2222222222222222}
		m.EffectiveAddress = 0x400
		ops.OpFxsave(m)

		m2 := newTestMachine()
		copy(m2.System.RealMem, m.System.RealMem)
		m2.EffectiveAddress = 0x400
		ops.OpFxrstor(m2)

		Expect(m2.Vector.FPU.CW).To(Equal(uint16(0x037F)))
		Expect(m2.Vector.FPU.SW).To(Equal(uint16(0x0001)))
		Expect(m2.Vector.FPU.TW).To(Equal(uint8(0xAB)))
		Expect(m2.Vector.MXCSR).To(Equal(uint32(0x1F80)))
		Expect(m2.Vector.XMM[3]).To(Equal(m.Vector.XMM[3]))
	})
})

var _ = Describe("OpLdmxcsr/OpStmxcsr", func() {
	It("round-trips MXCSR through memory", func() {
		m := newTestMachine()
		m.EffectiveAddress = 0x500
		m.Vector.MXCSR = 0x5555
		ops.OpStmxcsr(m)
		m.Vector.MXCSR = 0
		ops.OpLdmxcsr(m)
		Expect(m.Vector.MXCSR).To(Equal(uint32(0x5555)))
	})
})

var _ = Describe("OpEmms", func() {
	It("marks the x87 tag word entirely empty", func() {
		m := newTestMachine()
		ops.OpEmms(m)
		Expect(m.Vector.FPU.TW).To(Equal(uint8(0xFF)))
	})
})

var _ = Describe("OpRdfsbase/OpWrfsbase", func() {
	It("reads and writes the FS base as a plain GPR value", func() {
		m := newTestMachine()
		m.Cur.Rde = decode.Pack(true, true, false, false, false, false, false, false, 3, 0, 2, false, 0, 0, 0)
		m.WriteGPR64(2, 0xABCD)
		ops.OpWrfsbase(m)
		Expect(m.Seg[machine.SegFS]).To(Equal(uint64(0xABCD)))

		m.WriteGPR64(2, 0)
		ops.OpRdfsbase(m)
		Expect(m.ReadGPR64(2)).To(Equal(uint64(0xABCD)))
	})
})

var _ = Describe("OpPabs", func() {
	It("computes the packed absolute value of signed dwords", func() {
		m := newTestMachine()
		m.Cur.Opcode = 0x1E // PABSD
		m.Cur.Rde = decode.Pack(true, true, false, false, false, false, false, false, 3, 0, 1, false, 0, 0, 0)
		var src [16]byte
		src[0], src[1], src[2], src[3] = 0xFF, 0xFF, 0xFF, 0xFF // -1
		m.Vector.SetXMMBytes(1, src)
		ops.OpPabs(m)
		dst := m.Vector.XMMBytes(0)
		Expect(dst[0]).To(Equal(byte(1)))
		Expect(dst[1]).To(Equal(byte(0)))
	})
})

var _ = Describe("OpPmulld", func() {
	It("multiplies packed signed 32-bit lanes, keeping the low half", func() {
		m := newTestMachine()
		m.Cur.Rde = decode.Pack(true, true, false, false, false, false, false, false, 3, 0, 1, false, 0, 0, 0)
		var a, b [16]byte
		a[0] = 3
		b[0] = 7
		m.Vector.SetXMMBytes(0, a)
		m.Vector.SetXMMBytes(1, b)
		ops.OpPmulld(m)
		dst := m.Vector.XMMBytes(0)
		Expect(dst[0]).To(Equal(byte(21)))
	})
})

var _ = Describe("OpPalignr", func() {
	It("concatenates dest:src and extracts a byte-shifted window", func() {
		m := newTestMachine()
		m.Cur.Rde = decode.Pack(true, true, false, false, false, false, false, false, 3, 0, 1, false, 0, 0, 0)
		m.Cur.Uimm0 = 1
		var dst, src [16]byte
		for i := range src {
			src[i] = byte(i)
		}
		for i := range dst {
			dst[i] = byte(0x80 + i)
		}
		m.Vector.SetXMMBytes(0, dst)
		m.Vector.SetXMMBytes(1, src)
		ops.OpPalignr(m)
		result := m.Vector.XMMBytes(0)
		Expect(result[0]).To(Equal(byte(1)))  // src[1]
		Expect(result[15]).To(Equal(byte(0x80))) // dst[0]
	})
})
