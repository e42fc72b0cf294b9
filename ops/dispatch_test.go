package ops_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/polarisvm/x86core/decode"
	"github.com/polarisvm/x86core/machine"
	"github.com/polarisvm/x86core/ops"
)

var _ = Describe("ExecuteInstruction", func() {
	It("advances IP by the decoded instruction length before dispatch", func() {
		m := newTestMachine()
		m.IP = 0x1000
		m.Cur = &decode.Inst{
			Map: decode.Map0, Opcode: 0x00, Length: 2,
			Rde: regForm(false, 1, 0), // ADD r/m8, r8 — both register form
		}
		fault := ops.ExecuteInstruction(m)
		Expect(fault).To(BeNil())
		Expect(m.IP).To(Equal(uint64(0x1002)))
	})

	It("dispatches 0x00 (ADD Eb,Gb) and writes the sum", func() {
		m := newTestMachine()
		m.WriteGPR8(machine.Reg(0), 1) // AL = 1
		m.WriteGPR8(machine.Reg(1), 2) // CL = 2
		m.Cur = &decode.Inst{
			Map: decode.Map0, Opcode: 0x00, Length: 2,
			Rde: regForm(false, 1, 0), // reg=CL (src), rm=AL (dst)
		}
		fault := ops.ExecuteInstruction(m)
		Expect(fault).To(BeNil())
		Expect(m.ReadGPR8(machine.Reg(0))).To(Equal(byte(3)))
	})

	It("routes an unrecognized dispatch key to the sparse switch, which raises #UD", func() {
		m := newTestMachine()
		m.Cur = &decode.Inst{Map: decode.Map2, Opcode: 0xFF, Length: 3}
		fault := ops.ExecuteInstruction(m)
		Expect(fault).NotTo(BeNil())
		Expect(fault.Kind).To(Equal(machine.FaultUndefinedOpcode))
	})

	It("flushes a staged Stash write after the handler returns", func() {
		m := newTestMachine()
		m.Cur = &decode.Inst{Map: decode.Map0, Opcode: 0xEB, Length: 2, Disp: 0} // JMP rel, a no-op IP-wise
		m.Stash.Addr = 0x10
		m.Stash.Size = 4
		m.Stash.Buf[0] = 0xAA
		fault := ops.ExecuteInstruction(m)
		Expect(fault).To(BeNil())
		Expect(m.Stash.Pending()).To(BeFalse())
		Expect(m.System.RealMem[0x10]).To(Equal(byte(0xAA)))
	})

	It("recovers a #UD fault without corrupting machine state further", func() {
		m := newTestMachine()
		m.Cur = &decode.Inst{
			Map: decode.Map0, Opcode: 0xF6, Length: 2,
			Rde: decode.Pack(true, false, false, false, false, false, false, false, 3, 6, 0, false, 0, 0, 0), // reg=6 is DIV; AL (the divisor) is zero
		}
		fault := ops.ExecuteInstruction(m)
		Expect(fault).NotTo(BeNil())
		Expect(fault.Kind).To(Equal(machine.FaultUndefinedOpcode))
	})

	It("dispatches 0x90 as a plain NOP, leaving registers untouched", func() {
		m := newTestMachine()
		m.WriteGPR64(0, 0x1234)
		m.Cur = &decode.Inst{Map: decode.Map0, Opcode: 0x90, Length: 1}
		fault := ops.ExecuteInstruction(m)
		Expect(fault).To(BeNil())
		Expect(m.ReadGPR64(0)).To(Equal(uint64(0x1234)))
	})

	It("dispatches 0x90 with REX.B as XCHG RAX, R8", func() {
		m := newTestMachine()
		m.WriteGPR64(0, 1)
		m.WriteGPR64(8, 2)
		m.Cur = &decode.Inst{
			Map: decode.Map0, Opcode: 0x90, Length: 1,
			Rde: decode.Pack(true, false, false, false, true, false, false, false, 3, 0, 0, false, 0, 0, 0),
		}
		fault := ops.ExecuteInstruction(m)
		Expect(fault).To(BeNil())
		Expect(m.ReadGPR64(0)).To(Equal(uint64(2)))
		Expect(m.ReadGPR64(8)).To(Equal(uint64(1)))
	})

	It("dispatches 0F 10 under REP as MOVSS rather than the unconditional MOVUPS form", func() {
		m := newTestMachine()
		m.Vector.XMM[0] = [2]uint64{0, 0xFFFFFFFFFFFFFFFF}
		m.Vector.XMM[1] = [2]uint64{0x1122334455667788, 0x99AABBCCDDEEFF00}
		m.Cur = &decode.Inst{
			Map: decode.Map1, Opcode: 0x10, Length: 3,
			Rde: regForm(false, 0, 1), Rep: decode.RepEqual,
		}
		fault := ops.ExecuteInstruction(m)
		Expect(fault).To(BeNil())
		Expect(m.Vector.XMM[0][0] & 0xFFFFFFFF).To(Equal(uint64(0x55667788)))
		Expect(m.Vector.XMM[0][1]).To(Equal(uint64(0xFFFFFFFFFFFFFFFF))) // upper lanes preserved, not zeroed
	})

	It("dispatches 0F 12 on a register operand as MOVHLPS, not MOVSD", func() {
		m := newTestMachine()
		m.Vector.XMM[0] = [2]uint64{0x1111111111111111, 0x2222222222222222}
		m.Vector.XMM[1] = [2]uint64{0xAAAAAAAAAAAAAAAA, 0xBBBBBBBBBBBBBBBB}
		m.Cur = &decode.Inst{
			Map: decode.Map1, Opcode: 0x12, Length: 3,
			Rde: regForm(false, 0, 1),
		}
		fault := ops.ExecuteInstruction(m)
		Expect(fault).To(BeNil())
		Expect(m.Vector.XMM[0][0]).To(Equal(uint64(0xBBBBBBBBBBBBBBBB))) // src's upper half
		Expect(m.Vector.XMM[0][1]).To(Equal(uint64(0x2222222222222222))) // dst's upper half untouched
	})

	It("dispatches 0xEA as a direct far JMP", func() {
		m := newTestMachine()
		m.IP = 0x1000
		m.Cur = &decode.Inst{
			Map: decode.Map0, Opcode: 0xEA, Length: 7,
			Disp: 0x200, Uimm0: 0x08,
		}
		fault := ops.ExecuteInstruction(m)
		Expect(fault).To(BeNil())
		Expect(m.IP).To(Equal(uint64(0x200)))
	})
})
