package ops_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/polarisvm/x86core/decode"
	"github.com/polarisvm/x86core/machine"
	"github.com/polarisvm/x86core/ops"
)

var _ = Describe("OpPushf/OpPopf", func() {
	It("PUSHFQ pushes a 32-bit-shaped flags image, then POPF restores it", func() {
		m := newTestMachine()
		m.WriteGPR64(machine.RegSP, 0x2000)
		m.Cur.Rde = decode.Pack(true, true, false, false, false, false, false, false, 3, 0, 0, false, 0, 0, 0)
		m.Flags.CF = true
		m.Flags.ZF = true
		ops.OpPushf(m)
		Expect(m.ReadGPR64(machine.RegSP)).To(Equal(uint64(0x1FFC)))

		m.Flags.CF = false
		m.Flags.ZF = false
		m.Cur.Rde = decode.Pack(true, false, false, false, false, false, false, false, 3, 0, 0, false, 0, 0, 0)
		ops.OpPopf(m)
		Expect(m.Flags.CF).To(BeTrue())
		Expect(m.Flags.ZF).To(BeTrue())
	})

	It("POPF with the operand-size override only imports the low 16 bits", func() {
		m := newTestMachine()
		m.WriteGPR64(machine.RegSP, 0x2000)
		m.Write16(0x2000, 0x0001) // CF set, rest clear
		m.Flags.RF = true
		m.Cur.Rde = decode.Pack(true, false, false, false, false, true, false, false, 3, 0, 0, false, 0, 0, 0)
		ops.OpPopf(m)
		Expect(m.Flags.CF).To(BeTrue())
		Expect(m.Flags.RF).To(BeTrue()) // outside the low word, untouched
	})
})

var _ = Describe("OpLahf/OpSahf", func() {
	It("round-trips the flags byte through AH", func() {
		m := newTestMachine()
		m.Flags.CF = true
		m.Flags.ZF = true
		ops.OpLahf(m)
		m.Flags.CF = false
		m.Flags.ZF = false
		ops.OpSahf(m)
		Expect(m.Flags.CF).To(BeTrue())
		Expect(m.Flags.ZF).To(BeTrue())
	})
})

var _ = Describe("OpCld/OpStd", func() {
	It("clear and set the direction flag", func() {
		m := newTestMachine()
		ops.OpStd(m)
		Expect(m.Flags.DF).To(BeTrue())
		ops.OpCld(m)
		Expect(m.Flags.DF).To(BeFalse())
	})
})

var _ = Describe("String instructions", func() {
	It("MOVS copies a dword from RSI to RDI and advances both forward", func() {
		m := newTestMachine()
		m.Write32(0x100, 0xCAFEBABE)
		m.WriteGPR64(machine.RegSI, 0x100)
		m.WriteGPR64(machine.RegDI, 0x200)
		ops.OpMovs(32)(m)
		Expect(m.Read32(0x200)).To(Equal(uint32(0xCAFEBABE)))
		Expect(m.ReadGPR64(machine.RegSI)).To(Equal(uint64(0x104)))
		Expect(m.ReadGPR64(machine.RegDI)).To(Equal(uint64(0x204)))
	})

	It("MOVS advances backward when DF is set", func() {
		m := newTestMachine()
		m.Flags.DF = true
		m.WriteGPR64(machine.RegSI, 0x100)
		m.WriteGPR64(machine.RegDI, 0x200)
		ops.OpMovs(32)(m)
		Expect(m.ReadGPR64(machine.RegSI)).To(Equal(uint64(0xFC)))
		Expect(m.ReadGPR64(machine.RegDI)).To(Equal(uint64(0x1FC)))
	})

	It("STOS stores AL at RDI for the byte-width form", func() {
		m := newTestMachine()
		m.SetAL(0x42)
		m.WriteGPR64(machine.RegDI, 0x300)
		ops.OpStos(8)(m)
		Expect(m.Read8(0x300)).To(Equal(byte(0x42)))
		Expect(m.ReadGPR64(machine.RegDI)).To(Equal(uint64(0x301)))
	})

	It("LODS loads AL from RSI for the byte-width form", func() {
		m := newTestMachine()
		m.Write8(0x300, 0x77)
		m.WriteGPR64(machine.RegSI, 0x300)
		ops.OpLods(8)(m)
		Expect(m.AL()).To(Equal(byte(0x77)))
		Expect(m.ReadGPR64(machine.RegSI)).To(Equal(uint64(0x301)))
	})

	It("CMPS sets flags as SUB would without modifying memory", func() {
		m := newTestMachine()
		m.Write8(0x100, 5)
		m.Write8(0x200, 5)
		m.WriteGPR64(machine.RegSI, 0x100)
		m.WriteGPR64(machine.RegDI, 0x200)
		ops.OpCmps(8)(m)
		Expect(m.Flags.ZF).To(BeTrue())
	})

	It("SCAS compares AL against [RDI]", func() {
		m := newTestMachine()
		m.SetAL(9)
		m.Write8(0x300, 9)
		m.WriteGPR64(machine.RegDI, 0x300)
		ops.OpScas(8)(m)
		Expect(m.Flags.ZF).To(BeTrue())
		Expect(m.ReadGPR64(machine.RegDI)).To(Equal(uint64(0x301)))
	})
})

var _ = Describe("OpLoop/OpLoope/OpLoopne/OpJcxz", func() {
	It("LOOP decrements CX and branches while nonzero", func() {
		m := newTestMachine()
		m.IP = 0x1000
		m.Cur.Disp = -0x10
		m.WriteGPR64(machine.RegCX, 2)
		ops.OpLoop(m)
		Expect(m.ReadGPR64(machine.RegCX)).To(Equal(uint64(1)))
		Expect(m.IP).To(Equal(uint64(0xFF0)))

		ops.OpLoop(m)
		Expect(m.ReadGPR64(machine.RegCX)).To(Equal(uint64(0)))
		Expect(m.IP).To(Equal(uint64(0xFF0))) // CX hit zero, no branch
	})

	It("LOOPE additionally requires ZF", func() {
		m := newTestMachine()
		m.IP = 0x1000
		m.Cur.Disp = 0x10
		m.WriteGPR64(machine.RegCX, 5)
		m.Flags.ZF = false
		ops.OpLoope(m)
		Expect(m.IP).To(Equal(uint64(0x1000))) // ZF clear, no branch despite CX!=0
	})

	It("JCXZ branches only when CX is zero", func() {
		m := newTestMachine()
		m.IP = 0x1000
		m.Cur.Disp = 0x10
		m.WriteGPR64(machine.RegCX, 0)
		ops.OpJcxz(m)
		Expect(m.IP).To(Equal(uint64(0x1010)))
	})
})

var _ = Describe("OpXlat", func() {
	It("loads AL from [RBX+AL]", func() {
		m := newTestMachine()
		m.WriteGPR64(machine.RegBX, 0x100)
		m.SetAL(4)
		m.Write8(0x104, 0x55)
		ops.OpXlat(m)
		Expect(m.AL()).To(Equal(byte(0x55)))
	})
})

var _ = Describe("OpInt3/OpHlt", func() {
	It("HLT sets Halted and records a sentinel vector", func() {
		m := newTestMachine()
		defer func() {
			_ = recover()
			Expect(m.Halted).To(BeTrue())
			Expect(m.HaltVector).To(Equal(-1))
		}()
		ops.OpHlt(m)
	})

	It("INT3 halts with vector 3", func() {
		m := newTestMachine()
		defer func() {
			_ = recover()
			Expect(m.Halted).To(BeTrue())
			Expect(m.HaltVector).To(Equal(3))
		}()
		ops.OpInt3(m)
	})
})

var _ = Describe("Control register moves", func() {
	It("MOV Rq,Cq reads CR3 into a GPR", func() {
		m := newTestMachine()
		m.System.CR3 = 0x9000
		m.Cur.Rde = decode.Pack(true, true, false, false, false, false, false, false, 3, 3, 1, false, 0, 0, 0)
		ops.OpMovRqCq(m)
		Expect(m.ReadGPR64(1)).To(Equal(uint64(0x9000)))
	})

	It("MOV Cq,Rq toggling CR0.PE switches machine mode", func() {
		m := newTestMachine()
		m.Mode = machine.ModeReal
		m.System.CR0 = 0
		m.Cur.Rde = decode.Pack(true, true, false, false, false, false, false, false, 3, 0, 1, false, 0, 0, 0)
		m.WriteGPR64(1, 1) // set PE
		ops.OpMovCqRq(m)
		Expect(m.Mode).To(Equal(machine.ModeLegacy32))
	})
})

var _ = Describe("OpRdmsr/OpWrmsr", func() {
	It("RDMSR always returns zero in EDX:EAX", func() {
		m := newTestMachine()
		m.WriteGPR64(machine.RegAX, 0xFF)
		m.WriteGPR64(machine.RegDX, 0xFF)
		ops.OpRdmsr(m)
		Expect(m.ReadGPR64(machine.RegAX)).To(Equal(uint64(0)))
		Expect(m.ReadGPR64(machine.RegDX)).To(Equal(uint64(0)))
	})
})

var _ = Describe("Sign-extension family", func() {
	It("CBW sign-extends AL into AX", func() {
		m := newTestMachine()
		m.Cur.Rde = decode.Pack(false, false, false, false, false, true, false, false, 3, 0, 0, false, 0, 0, 0)
		m.SetAL(0xFF)
		ops.OpConvertSignExtendAcc(m)
		Expect(m.AX()).To(Equal(uint16(0xFFFF)))
	})

	It("CDQ sign-extends EAX into EDX:EAX", func() {
		m := newTestMachine()
		m.Cur.Rde = regForm(false, 0, 0)
		m.WriteGPR32(machine.RegAX, 0xFFFFFFFF)
		ops.OpConvertSignExtendPair(m)
		Expect(m.ReadGPR32(machine.RegDX)).To(Equal(uint32(0xFFFFFFFF)))
	})
})
