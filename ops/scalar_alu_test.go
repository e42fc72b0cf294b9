package ops_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/polarisvm/x86core/decode"
	"github.com/polarisvm/x86core/kernels"
	"github.com/polarisvm/x86core/machine"
	"github.com/polarisvm/x86core/ops"
)

var _ = Describe("AluGroup1", func() {
	It("FormEvGv adds a register source into a register destination", func() {
		m := newTestMachine()
		m.Cur.Rde = regForm(false, 1, 0)
		m.WriteGPR32(0, 5)
		m.WriteGPR32(1, 7)
		ops.AluGroup1(kernels.AluAdd, ops.FormEvGv)(m)
		Expect(m.ReadGPR32(0)).To(Equal(uint32(12)))
	})

	It("FormGvEv adds into the register named by reg instead of rm", func() {
		m := newTestMachine()
		m.Cur.Rde = regForm(false, 1, 0)
		m.WriteGPR32(0, 5)
		m.WriteGPR32(1, 7)
		ops.AluGroup1(kernels.AluAdd, ops.FormGvEv)(m)
		Expect(m.ReadGPR32(1)).To(Equal(uint32(12)))
	})

	It("FormALIb operates on AL against an immediate", func() {
		m := newTestMachine()
		m.SetAL(10)
		m.Cur.Uimm0 = 5
		ops.AluGroup1(kernels.AluSub, ops.FormALIb)(m)
		Expect(m.AL()).To(Equal(byte(5)))
	})

	It("FormEaxIz operates on the full-width accumulator against an immediate", func() {
		m := newTestMachine()
		m.Cur.Rde = regForm(false, 0, 0)
		m.WriteGPR32(machine.RegAX, 100)
		m.Cur.Uimm0 = 50
		ops.AluGroup1(kernels.AluAdd, ops.FormEaxIz)(m)
		Expect(m.ReadGPR32(machine.RegAX)).To(Equal(uint32(150)))
	})

	It("CMP forms never write back the result", func() {
		m := newTestMachine()
		m.Cur.Rde = regForm(false, 1, 0)
		m.WriteGPR32(0, 5)
		m.WriteGPR32(1, 7)
		ops.AluGroup1(kernels.AluCmp, ops.FormEvGv)(m)
		Expect(m.ReadGPR32(0)).To(Equal(uint32(5)))
		Expect(m.Flags.CF).To(BeTrue()) // 5-7 borrows
	})

	It("FormEbImm operates on an 8-bit r/m against an immediate", func() {
		m := newTestMachine()
		m.Cur.Rde = regForm(false, 0, 0)
		m.WriteGPR8(machine.Reg(0), 0x0F)
		m.Cur.Uimm0 = 0xF0
		ops.AluGroup1(kernels.AluOr, ops.FormEbImm)(m)
		Expect(m.ReadGPR8(machine.Reg(0))).To(Equal(byte(0xFF)))
	})
})

var _ = Describe("Group3TestNotNeg", func() {
	It("TEST (reg 0) computes AND without writing back", func() {
		m := newTestMachine()
		m.Cur.Opcode = 0xF7
		m.Cur.Rde = regForm(false, 0, 0)
		m.WriteGPR32(0, 0x0F)
		m.Cur.Uimm0 = 0xF0
		ops.Group3TestNotNeg(m)
		Expect(m.ReadGPR32(0)).To(Equal(uint32(0x0F)))
		Expect(m.Flags.ZF).To(BeTrue())
	})

	It("NOT (reg 2) inverts all bits", func() {
		m := newTestMachine()
		m.Cur.Opcode = 0xF7
		m.Cur.Rde = decode.Pack(true, false, false, false, false, false, false, false, 3, 2, 0, false, 0, 0, 0)
		m.WriteGPR32(0, 0)
		ops.Group3TestNotNeg(m)
		Expect(m.ReadGPR32(0)).To(Equal(uint32(0xFFFFFFFF)))
	})

	It("NEG (reg 3) computes the two's complement and sets CF unless the operand was zero", func() {
		m := newTestMachine()
		m.Cur.Opcode = 0xF7
		m.Cur.Rde = decode.Pack(true, false, false, false, false, false, false, false, 3, 3, 0, false, 0, 0, 0)
		m.WriteGPR32(0, 5)
		ops.Group3TestNotNeg(m)
		Expect(m.ReadGPR32(0)).To(Equal(uint32(0xFFFFFFFB)))
		Expect(m.Flags.CF).To(BeTrue())
	})

	It("byte form (opcode 0xF6) operates on 8-bit operands", func() {
		m := newTestMachine()
		m.Cur.Opcode = 0xF6
		m.Cur.Rde = decode.Pack(true, false, false, false, false, false, false, false, 3, 2, 0, false, 0, 0, 0)
		m.WriteGPR8(machine.Reg(0), 0x0F)
		ops.Group3TestNotNeg(m)
		Expect(m.ReadGPR8(machine.Reg(0))).To(Equal(byte(0xF0)))
	})

	It("reg 6/7 (DIV/IDIV, handled by Group3MulDiv) raise #UD here", func() {
		m := newTestMachine()
		m.Cur.Opcode = 0xF7
		m.Cur.Rde = decode.Pack(true, false, false, false, false, false, false, false, 3, 6, 0, false, 0, 0, 0)
		Expect(func() { ops.Group3TestNotNeg(m) }).To(Panic())
	})
})

var _ = Describe("Group4Group5IncDec", func() {
	It("INC (reg 0) on a full-width operand", func() {
		m := newTestMachine()
		m.Cur.Opcode = 0xFF
		m.Cur.Rde = regForm(false, 0, 0)
		m.WriteGPR32(0, 41)
		ops.Group4Group5IncDec(m)
		Expect(m.ReadGPR32(0)).To(Equal(uint32(42)))
	})

	It("DEC (reg 1) on a byte operand", func() {
		m := newTestMachine()
		m.Cur.Opcode = 0xFE
		m.Cur.Rde = decode.Pack(true, false, false, false, false, false, false, false, 3, 1, 0, false, 0, 0, 0)
		m.WriteGPR8(machine.Reg(0), 10)
		ops.Group4Group5IncDec(m)
		Expect(m.ReadGPR8(machine.Reg(0))).To(Equal(byte(9)))
	})

	It("leaves CF untouched, unlike ADD/SUB", func() {
		m := newTestMachine()
		m.Flags.CF = true
		m.Cur.Opcode = 0xFF
		m.Cur.Rde = regForm(false, 0, 0)
		m.WriteGPR32(0, 0xFFFFFFFF)
		ops.Group4Group5IncDec(m)
		Expect(m.Flags.CF).To(BeTrue())
	})
})

var _ = Describe("OpSetcc", func() {
	It("writes 1 when the condition holds, 0 otherwise", func() {
		m := newTestMachine()
		m.Cur.Rde = regForm(false, 0, 0)
		m.Flags.ZF = true
		ops.OpSetcc(4)(m) // SETZ
		Expect(m.ReadGPR8(machine.Reg(0))).To(Equal(byte(1)))

		m.Flags.ZF = false
		ops.OpSetcc(4)(m)
		Expect(m.ReadGPR8(machine.Reg(0))).To(Equal(byte(0)))
	})
})

var _ = Describe("OpMovzx/OpMovsx", func() {
	It("MOVZX zero-extends an 8-bit source", func() {
		m := newTestMachine()
		m.Cur.Rde = regForm(false, 1, 0)
		m.WriteGPR8(machine.Reg(0), 0xFF)
		ops.OpMovzx(8)(m)
		Expect(m.ReadGPR32(1)).To(Equal(uint32(0xFF)))
	})

	It("MOVSX sign-extends an 8-bit source", func() {
		m := newTestMachine()
		m.Cur.Rde = regForm(false, 1, 0)
		m.WriteGPR8(machine.Reg(0), 0xFF) // -1 as int8
		ops.OpMovsx(8)(m)
		Expect(m.ReadGPR32(1)).To(Equal(uint32(0xFFFFFFFF)))
	})

	It("MOVSXD sign-extends a 32-bit source into a 64-bit destination", func() {
		m := newTestMachine()
		m.Cur.Rde = regForm(true, 1, 0)
		m.WriteGPR32(0, 0xFFFFFFFF)
		ops.OpMovsx(32)(m)
		Expect(m.ReadGPR64(1)).To(Equal(uint64(0xFFFFFFFFFFFFFFFF)))
	})
})

var _ = Describe("OpLea", func() {
	It("writes the effective address without dereferencing it", func() {
		m := newTestMachine()
		m.Cur.Rde = decode.Pack(true, true, false, false, false, false, false, false, 0, 1, 5, false, 0, 0, 0)
		m.EffectiveAddress = 0x3000
		ops.OpLea(m)
		Expect(m.ReadGPR64(1)).To(Equal(uint64(0x3000)))
	})
})

var _ = Describe("OpXchg", func() {
	It("swaps two register operands", func() {
		m := newTestMachine()
		m.Cur.Rde = regForm(false, 1, 0)
		m.WriteGPR32(0, 1)
		m.WriteGPR32(1, 2)
		ops.OpXchg(false)(m)
		Expect(m.ReadGPR32(0)).To(Equal(uint32(2)))
		Expect(m.ReadGPR32(1)).To(Equal(uint32(1)))
	})
})

var _ = Describe("OpBswapZvqp", func() {
	It("reverses byte order of a 32-bit register", func() {
		m := newTestMachine()
		m.Cur.Rde = regForm(false, 0, 0)
		m.WriteGPR32(0, 0x11223344)
		ops.OpBswapZvqp(m)
		Expect(m.ReadGPR32(0)).To(Equal(uint32(0x44332211)))
	})

	It("reverses byte order of a 64-bit register", func() {
		m := newTestMachine()
		m.Cur.Rde = regForm(true, 0, 0)
		m.WriteGPR64(0, 0x1122334455667788)
		ops.OpBswapZvqp(m)
		Expect(m.ReadGPR64(0)).To(Equal(uint64(0x8877665544332211)))
	})

	It("applies the legacy undefined 16-bit formula and preserves the upper 48 bits", func() {
		m := newTestMachine()
		m.Cur.Rde = decode.Pack(true, false, false, false, false, true, false, false, 3, 0, 0, false, 0, 0, 0)
		m.WriteGPR64(0, 0xDEADBEEF00001122)
		ops.OpBswapZvqp(m)
		Expect(m.ReadGPR64(0)).To(Equal(uint64(0xDEADBEEF00002200)))
	})
})
