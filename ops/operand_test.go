package ops_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/polarisvm/x86core/decode"
	"github.com/polarisvm/x86core/ops"
)

var _ = Describe("Register operand access", func() {
	It("addresses AH via high-byte aliasing when no REX prefix is present", func() {
		m := newTestMachine()
		m.WriteGPR64(0, 0x1234)
		rde := decode.Pack(false, false, false, false, false, false, false, false, 3, 0, 0, false, 0, 0, 0)
		Expect(ops.ReadRegister8(m, rde, 4)).To(Equal(byte(0x12))) // regNum 4 => AH with no REX
	})

	It("addresses SPL (not AH) via regNum 4 when a REX prefix is present", func() {
		m := newTestMachine()
		m.WriteGPR64(4, 0xAB)
		rde := decode.Pack(true, false, false, false, false, false, false, false, 3, 0, 0, false, 0, 0, 0)
		Expect(ops.ReadRegister8(m, rde, 4)).To(Equal(byte(0xAB)))
	})

	It("ReadRegister/WriteRegister follow rde's width", func() {
		m := newTestMachine()
		rde := regForm(true, 0, 0)
		ops.WriteRegister(m, rde, 2, 0x1122334455667788)
		Expect(ops.ReadRegister(m, rde, 2)).To(Equal(uint64(0x1122334455667788)))

		rde32 := regForm(false, 0, 0)
		ops.WriteRegister(m, rde32, 2, 0xFFFFFFFF)
		Expect(m.ReadGPR64(2)).To(Equal(uint64(0xFFFFFFFF))) // zero-extends
	})

	It("ReadRegisterSigned sign-extends per width", func() {
		m := newTestMachine()
		rde32 := regForm(false, 0, 0)
		m.WriteGPR32(3, 0xFFFFFFFF) // -1 as int32
		Expect(ops.ReadRegisterSigned(m, rde32, 3)).To(Equal(int64(-1)))
	})
})

var _ = Describe("Register-or-memory operand forms", func() {
	It("reads/writes the register operand when mod==3", func() {
		m := newTestMachine()
		rde := regForm(true, 0, 5)
		m.Cur.Rde = rde
		ops.WriteRegisterOrMemory(m, rde, 0xDEADBEEF)
		Expect(ops.ReadRegisterOrMemory(m, rde)).To(Equal(uint64(0xDEADBEEF)))
	})

	It("reads/writes the memory operand when mod!=3", func() {
		m := newTestMachine()
		rde := decode.Pack(true, true, false, false, false, false, false, false, 0, 0, 5, false, 0, 0, 0)
		m.Cur.Rde = rde
		m.EffectiveAddress = 0x200
		ops.WriteRegisterOrMemory(m, rde, 0x1122334455667788)
		Expect(ops.ReadRegisterOrMemory(m, rde)).To(Equal(uint64(0x1122334455667788)))
		Expect(m.Read64(0x200)).To(Equal(uint64(0x1122334455667788)))
	})
})

var _ = Describe("WidthBits/WidthIndex", func() {
	It("maps decode.Width to bit counts and back to table indices", func() {
		Expect(ops.WidthBits(decode.W16)).To(Equal(16))
		Expect(ops.WidthBits(decode.W32)).To(Equal(32))
		Expect(ops.WidthBits(decode.W64)).To(Equal(64))
		Expect(ops.WidthIndex(8)).To(Equal(0))
		Expect(ops.WidthIndex(16)).To(Equal(1))
		Expect(ops.WidthIndex(32)).To(Equal(2))
		Expect(ops.WidthIndex(64)).To(Equal(3))
	})
})
