package ops

import (
	"github.com/polarisvm/x86core/decode"
	"github.com/polarisvm/x86core/kernels"
	"github.com/polarisvm/x86core/machine"
)

// Handler advances m by exactly one decoded instruction. Handlers never
// return normally after raising a fault — HaltMachine/ThrowSegmentationFault
// /ThrowProtectionFault/OpUd all panic with *machine.Fault instead, and
// ExecuteInstruction is the only place that recovers one (§7).
type Handler func(m *machine.Machine)

// dispatchLen covers the one-byte map (256), the 0F map (256), and the
// 0F 38 map (256) — the dense region keyed by decode.Inst.DispatchKey().
// Opcodes absent from the dense region (the long tail of 0F 38/0F 3A
// encodings) fall through to ExecuteSparseInstruction instead of
// occupying a mostly-empty 65536-entry table.
const dispatchLen = 3 * 256

// DispatchTable is the dense array described in §6: indexed by
// (map<<8)|opcode, filled in by register() calls in init() below. A nil
// entry means "not present in the dense table"; ExecuteInstruction falls
// back to ExecuteSparseInstruction for those, and that in turn raises #UD
// for anything it doesn't recognize either.
var DispatchTable [dispatchLen]Handler

func register(mapID decode.OpcodeMap, opcode byte, h Handler) {
	DispatchTable[int(mapID)<<8|int(opcode)] = h
}

// ExecuteInstruction is the single dispatch entry point (§6): it advances
// IP past the current instruction, dispatches to the dense table or the
// sparse fallback, flushes any pending memory-write stash, and converts a
// raised *machine.Fault into a returned value instead of letting it
// escape to the host as a panic.
func ExecuteInstruction(m *machine.Machine) (fault *machine.Fault) {
	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(*machine.Fault)
			if !ok {
				panic(r)
			}
			fault = f
		}
		flushStash(m)
	}()

	m.IP += uint64(m.Cur.Length)

	key := m.Cur.DispatchKey()
	h := DispatchTable[key]
	if h == nil {
		h = ExecuteSparseInstruction
	}
	h(m)
	return nil
}

// flushStash commits a deferred guest-memory write staged by
// Machine.ReserveAddress, per the post-instruction writeback discipline in
// §3/§4.6. Invariant 8 (spec.md §8) requires Stash.Addr to read as empty
// again once this returns.
func flushStash(m *machine.Machine) {
	if !m.Stash.Pending() {
		return
	}
	if dst := m.ResolveAddress(m.Stash.Addr, m.Stash.Size); dst != nil {
		copy(dst, m.Stash.Buf[:m.Stash.Size])
	}
	m.Stash.Clear()
}

func init() {
	registerAluGroup1()
	registerShiftGroup2()
	registerGroups3to5()
	registerMovzxMovsx()
	registerSetccJcc()
	registerBitFamily()
	registerPushPopControl()
	registerStringLoop()
	registerAncillary()
	registerVector()
	registerSegop()
}

// registerAluGroup1 wires the eight Group-1 ALU opcodes (ADD..CMP), each
// at its six canonical forms (§4.4 "ALU byte/word regular").
func registerAluGroup1() {
	type formOp struct {
		opcode byte
		form   aluForm
	}
	layout := []formOp{
		{0x00, FormEbGb}, {0x01, FormEvGv}, {0x02, FormGbEb}, {0x03, FormGvEv},
		{0x04, FormALIb}, {0x05, FormEaxIz},
	}
	for i, op := range []kernels.AluOp{
		kernels.AluAdd, kernels.AluOr, kernels.AluAdc, kernels.AluSbb,
		kernels.AluAnd, kernels.AluSub, kernels.AluXor, kernels.AluCmp,
	} {
		base := byte(i * 8)
		for _, fo := range layout {
			register(decode.Map0, base+fo.opcode, AluGroup1(op, fo.form))
		}
	}
	// Group 1 immediate forms (0x80-0x83): op selected by ModR/M.reg, so
	// the three registered opcodes (0x82 is not) each dispatch through a reg-switch rather than
	// being split across eight slots.
	register(decode.Map0, 0x80, group1Imm(FormEbImm))
	register(decode.Map0, 0x81, group1Imm(FormEvImm))
	register(decode.Map0, 0x83, group1Imm(FormEvImm))
}

func group1RegToOp(reg byte) kernels.AluOp { return kernels.AluOp(reg) }

// group1Imm builds the Group-1 immediate-form handler: the ALU operation
// is selected by ModR/M.reg rather than by opcode byte, since 0x80/0x81/
// 0x83 each cover all eight operations (§4.4). The decoder is responsible
// for sign-extending the 0x83 imm8 into m.Cur.Uimm0 before dispatch.
func group1Imm(form aluForm) Handler {
	return func(m *machine.Machine) {
		AluGroup1(group1RegToOp(m.Cur.Rde.ModrmReg()), form)(m)
	}
}

// registerShiftGroup2 wires the Group-2 shift/rotate opcodes (C0/C1 imm8,
// D0/D1 by-one, D2/D3 by-CL), each a reg-switch over kernels.BsuOp.
func registerShiftGroup2() {
	shiftOpByReg := [8]kernels.BsuOp{
		kernels.BsuRol, kernels.BsuRor, kernels.BsuRcl, kernels.BsuRcr,
		kernels.BsuShl, kernels.BsuShr, kernels.BsuSal, kernels.BsuSar,
	}
	mk := func(count shiftCount, byteForm bool) Handler {
		return func(m *machine.Machine) {
			ShiftGroup2(shiftOpByReg[m.Cur.Rde.ModrmReg()], count, byteForm)(m)
		}
	}
	register(decode.Map0, 0xC0, mk(ShiftByImm8, true))
	register(decode.Map0, 0xC1, mk(ShiftByImm8, false))
	register(decode.Map0, 0xD0, mk(ShiftByOne, true))
	register(decode.Map0, 0xD1, mk(ShiftByOne, false))
	register(decode.Map0, 0xD2, mk(ShiftByCL, true))
	register(decode.Map0, 0xD3, mk(ShiftByCL, false))

	register(decode.Map1, 0xA4, OpShld(ShiftByImm8))
	register(decode.Map1, 0xA5, OpShld(ShiftByCL))
	register(decode.Map1, 0xAC, OpShrd(ShiftByImm8))
	register(decode.Map1, 0xAD, OpShrd(ShiftByCL))
}

// registerGroups3to5 wires TEST/NOT/NEG/MUL/IMUL/DIV/IDIV (Group 3, F6/F7),
// INC/DEC Eb (Group 4, FE), and INC/DEC/CALL/JMP/PUSH Ev (Group 5, FF).
func registerGroups3to5() {
	group3 := func(m *machine.Machine) {
		if m.Cur.Rde.ModrmReg() < 4 {
			Group3TestNotNeg(m)
		} else {
			Group3MulDiv(m)
		}
	}
	register(decode.Map0, 0xF6, group3)
	register(decode.Map0, 0xF7, group3)
	register(decode.Map0, 0xFE, Group4Group5IncDec)
	register(decode.Map0, 0xFF, func(m *machine.Machine) {
		if m.Cur.Rde.ModrmReg() < 2 {
			Group4Group5IncDec(m)
		} else {
			Group5CallJmpPush(m)
		}
	})
}

// registerMovzxMovsx wires MOVZX/MOVSX Gv, Eb/Ew and MOVSXD Gv, Ed.
func registerMovzxMovsx() {
	register(decode.Map1, 0xB6, OpMovzx(8))
	register(decode.Map1, 0xB7, OpMovzx(16))
	register(decode.Map1, 0xBE, OpMovsx(8))
	register(decode.Map1, 0xBF, OpMovsx(16))
	register(decode.Map0, 0x63, OpMovsx(32))
}

// registerSetccJcc wires the sixteen SETcc (0F 90-9F) and Jcc (0F 80-8F,
// and the short-form 70-7F) opcodes.
func registerSetccJcc() {
	for cc := byte(0); cc < 16; cc++ {
		register(decode.Map1, 0x90+cc, OpSetcc(cc))
		register(decode.Map1, 0x80+cc, OpJcc(cc))
		register(decode.Map0, 0x70+cc, OpJcc(cc))
	}
}

// registerBitFamily wires BT/BTS/BTR/BTC (Group 8 immediate form at 0F BA,
// register forms at 0F A3/AB/B3/BB), BSF/BSR, and POPCNT.
func registerBitFamily() {
	register(decode.Map1, 0xA3, OpBit(BitTest, BitFormReg))
	register(decode.Map1, 0xAB, OpBit(BitSet, BitFormReg))
	register(decode.Map1, 0xB3, OpBit(BitReset, BitFormReg))
	register(decode.Map1, 0xBB, OpBit(BitComplement, BitFormReg))
	register(decode.Map1, 0xBA, func(m *machine.Machine) {
		switch m.Cur.Rde.ModrmReg() {
		case 4:
			OpBit(BitTest, BitFormImm)(m)
		case 5:
			OpBit(BitSet, BitFormImm)(m)
		case 6:
			OpBit(BitReset, BitFormImm)(m)
		case 7:
			OpBit(BitComplement, BitFormImm)(m)
		default:
			m.OpUd()
		}
	})
	register(decode.Map1, 0xBC, OpBsf)
	register(decode.Map1, 0xBD, OpBsr)
	register(decode.Map1, 0xB8, OpPopcnt)
	for r := byte(0); r < 8; r++ {
		register(decode.Map1, 0xC8+r, OpBswapZvqp)
	}
}

// registerPushPopControl wires PUSH/POP reg, PUSH imm, LEA, XCHG, near
// CALL/JMP/RET, and the Jcc-adjacent control-transfer opcodes.
func registerPushPopControl() {
	for r := byte(0); r < 8; r++ {
		register(decode.Map0, 0x50+r, OpPushReg(r))
		register(decode.Map0, 0x58+r, OpPopReg(r))
	}
	register(decode.Map0, 0x68, OpPushImm)
	register(decode.Map0, 0x6A, OpPushImm)
	register(decode.Map0, 0x8D, OpLea)
	register(decode.Map0, 0x86, OpXchg(true))
	register(decode.Map0, 0x87, OpXchg(false))
	register(decode.Map0, 0xE8, OpCallRel)
	register(decode.Map0, 0xE9, OpJmpRel)
	register(decode.Map0, 0xEB, OpJmpRel)
	register(decode.Map0, 0xC3, OpRet)
	register(decode.Map0, 0xC2, OpRetImm16)
}

// registerStringLoop wires the byte/word/dword/qword string-instruction
// family, LOOP/LOOPE/LOOPNE/JCXZ, and XLAT.
func registerStringLoop() {
	register(decode.Map0, 0xAC, OpLods(8))
	register(decode.Map0, 0xAD, OpLodsWide)
	register(decode.Map0, 0xAA, OpStos(8))
	register(decode.Map0, 0xAB, OpStosWide)
	register(decode.Map0, 0xA4, OpMovs(8))
	register(decode.Map0, 0xA5, OpMovsWide)
	register(decode.Map0, 0xA6, OpCmps(8))
	register(decode.Map0, 0xA7, OpCmpsWide)
	register(decode.Map0, 0xAE, OpScas(8))
	register(decode.Map0, 0xAF, OpScasWide)
	register(decode.Map0, 0xE0, OpLoopne)
	register(decode.Map0, 0xE1, OpLoope)
	register(decode.Map0, 0xE2, OpLoop)
	register(decode.Map0, 0xE3, OpJcxz)
	register(decode.Map0, 0xD7, OpXlat)
}

// OpLodsWide/OpStosWide/OpMovsWide/OpCmpsWide/OpScasWide resolve the
// operand width from rde at call time, since the wide string-opcode forms
// (AD/AB/A5/A7/AF) vary with REX.W/OSZ rather than being width-fixed like
// their byte siblings.
func OpLodsWide(m *machine.Machine)  { OpLods(WidthBits(m.Cur.Rde.Width()))(m) }
func OpStosWide(m *machine.Machine)  { OpStos(WidthBits(m.Cur.Rde.Width()))(m) }
func OpMovsWide(m *machine.Machine)  { OpMovs(WidthBits(m.Cur.Rde.Width()))(m) }
func OpCmpsWide(m *machine.Machine)  { OpCmps(WidthBits(m.Cur.Rde.Width()))(m) }
func OpScasWide(m *machine.Machine)  { OpScas(WidthBits(m.Cur.Rde.Width()))(m) }

// registerAncillary wires PUSHF/POPF, LAHF/SAHF, CLD/STD, INT3/INT1/INT
// imm8/HLT, NOP (0x90), the CR-move pair, RDMSR/WRMSR, and CBW/CWD family.
func registerAncillary() {
	register(decode.Map0, 0x9C, OpPushf)
	register(decode.Map0, 0x9D, OpPopf)
	register(decode.Map0, 0x9F, OpLahf)
	register(decode.Map0, 0x9E, OpSahf)
	register(decode.Map0, 0xFC, OpCld)
	register(decode.Map0, 0xFD, OpStd)
	register(decode.Map0, 0xCC, OpInt3)
	register(decode.Map0, 0xF1, OpInt1)
	register(decode.Map0, 0xCD, OpIntImm8)
	register(decode.Map0, 0xF4, OpHlt)
	register(decode.Map0, 0x90, OpNop)
	register(decode.Map1, 0x20, OpMovRqCq)
	register(decode.Map1, 0x22, OpMovCqRq)
	register(decode.Map1, 0x32, OpRdmsr)
	register(decode.Map1, 0x30, OpWrmsr)
	register(decode.Map0, 0x98, OpConvertSignExtendAcc)
	register(decode.Map0, 0x99, OpConvertSignExtendPair)
}

// registerVector wires the SSE2 vector-movement opcodes described in §4.5.
// The 66-prefix-vs-not distinction (MOVDQA vs MOVUPS, MOVDQU vs MOVUPS)
// is resolved by the external decoder before Map/Opcode reach this table;
// this core treats 0F 6F/7F as the aligned/MOVDQA form. 0F 10/11/12/16
// each multiplex further on rep/OSZ per the table in §4.5.
func registerVector() {
	register(decode.Map1, 0x6F, OpMovdqaVdqWdq)
	register(decode.Map1, 0x7F, OpMovdqaWdqVdq)
	register(decode.Map1, 0x10, OpMovupsFamily(true))
	register(decode.Map1, 0x11, OpMovupsFamily(false))
	register(decode.Map1, 0x12, OpMovlpsFamily)
	register(decode.Map1, 0x16, OpMovhpsFamily)
	register(decode.Map1, 0x6E, OpMovqLoadXmm)
	register(decode.Map1, 0x7E, OpMovqStoreGpr)
	register(decode.Map1, 0xD6, OpMovqXmmXmm)
	register(decode.Map1, 0xF7, OpMaskmovdqu)
	register(decode.Map1, 0xD7, OpPmovmskb)
}

// registerSegop wires MOV Sw,Ev/MOV Ev,Sw (§4.3), LSL, and the direct
// far-jump/call forms — the rest of the C3 segmentation surface beyond
// what Group5CallJmpPush already reaches through an indirect operand.
func registerSegop() {
	register(decode.Map0, 0x8E, OpMovSwEvqp)
	register(decode.Map0, 0x8C, OpMovEvqpSw)
	register(decode.Map1, 0x03, OpLsl)
	register(decode.Map0, 0xEA, OpJmpfDirect)
	register(decode.Map0, 0x9A, OpCallfDirect)
}
