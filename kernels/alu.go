// Package kernels implements the width-specialized arithmetic and
// bit-shift/rotate function families the interpreter core calls into but
// does not re-specify (spec §1, §6): "ALU/BSU/FPU/SSE arithmetic kernels
// ... the core calls into them as tabulated function families but does
// not re-specify their flag math." Nothing outside this package provides
// them for this corpus, so this package ships a faithful-but-thin version
// grounded on the flag math in IntuitionEngine's cpu_x86.go
// (setFlagsArith8/16/32, parity) extended uniformly to 64-bit width.
package kernels

import "github.com/polarisvm/x86core/machine"

// AluOp enumerates the eight Group-1 ALU operations in opcode order
// (§4.4 "ALU byte/word regular").
type AluOp uint8

const (
	AluAdd AluOp = iota
	AluOr
	AluAdc
	AluSbb
	AluAnd
	AluSub
	AluXor
	AluCmp
)

// AluFunc computes op(x, y) at the given bit width, mutating flags as a
// side effect, and returns the (possibly discarded, for Cmp) result.
type AluFunc func(x, y uint64, width int, flags *machine.Flags) uint64

// Alu is the kAlu[OP][log2W] table from §6: indexed by AluOp and then by
// log2(width in bytes) (0=>8-bit, 1=>16, 2=>32, 3=>64). Every entry
// shares the same width-generic arithmetic, closed over the operation.
var Alu [8][4]AluFunc

var widthBits = [4]int{8, 16, 32, 64}

func init() {
	ops := []struct {
		op  AluOp
		fn  func(x, y uint64, width int, flags *machine.Flags) uint64
	}{
		{AluAdd, aluAdd},
		{AluOr, aluOr},
		{AluAdc, aluAdc},
		{AluSbb, aluSbb},
		{AluAnd, aluAnd},
		{AluSub, aluSub},
		{AluXor, aluXor},
		{AluCmp, aluCmp},
	}
	for _, o := range ops {
		for i := range widthBits {
			Alu[o.op][i] = o.fn
		}
	}
}

func mask(width int) uint64 {
	if width == 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(width)) - 1
}

func signBit(width int) uint64 { return uint64(1) << uint(width-1) }

func setArithFlags(x, y, result uint64, width int, sub bool, flags *machine.Flags) {
	m := mask(width)
	r := result & m
	sb := signBit(width)
	flags.ZF = r == 0
	flags.SF = r&sb != 0
	flags.PF = machine.Parity(byte(r))
	if sub {
		flags.CF = x&m < y&m
		flags.OF = (x^y)&(x^r)&sb != 0
		flags.AF = (x&0xF) < (y & 0xF)
	} else {
		flags.CF = result&m != result // false for an already-masked result; aluAdd/aluAdc then set CF from the unmasked sum
		flags.OF = (^(x ^ y))&(x^r)&sb != 0
		flags.AF = (x&0xF)+(y&0xF) > 0xF
	}
}

func setLogicFlags(result uint64, width int, flags *machine.Flags) {
	r := result & mask(width)
	flags.CF = false
	flags.OF = false
	flags.ZF = r == 0
	flags.SF = r&signBit(width) != 0
	flags.PF = machine.Parity(byte(r))
	// AF is architecturally undefined for logical ops; left unchanged.
}

func aluAdd(x, y uint64, width int, flags *machine.Flags) uint64 {
	m := mask(width)
	result := (x + y) & m
	// detect carry out of the width by widening the add
	full := (x & m) + (y & m)
	setArithFlags(x, y, result, width, false, flags)
	flags.CF = full&^m != 0
	return result
}

func aluOr(x, y uint64, width int, flags *machine.Flags) uint64 {
	result := (x | y) & mask(width)
	setLogicFlags(result, width, flags)
	return result
}

func aluAdc(x, y uint64, width int, flags *machine.Flags) uint64 {
	var carry uint64
	if flags.CF {
		carry = 1
	}
	m := mask(width)
	full := (x & m) + (y & m) + carry
	result := full & m
	setArithFlags(x, y+carry, result, width, false, flags)
	flags.CF = full&^m != 0
	return result
}

func aluSbb(x, y uint64, width int, flags *machine.Flags) uint64 {
	var borrow uint64
	if flags.CF {
		borrow = 1
	}
	m := mask(width)
	result := (x - y - borrow) & m
	setArithFlags(x, y+borrow, result, width, true, flags)
	return result
}

func aluAnd(x, y uint64, width int, flags *machine.Flags) uint64 {
	result := (x & y) & mask(width)
	setLogicFlags(result, width, flags)
	return result
}

func aluSub(x, y uint64, width int, flags *machine.Flags) uint64 {
	result := (x - y) & mask(width)
	setArithFlags(x, y, result, width, true, flags)
	return result
}

func aluXor(x, y uint64, width int, flags *machine.Flags) uint64 {
	result := (x ^ y) & mask(width)
	setLogicFlags(result, width, flags)
	return result
}

func aluCmp(x, y uint64, width int, flags *machine.Flags) uint64 {
	result := (x - y) & mask(width)
	setArithFlags(x, y, result, width, true, flags)
	return x // CMP is read-only: callers must discard the result (§4.4 "Ro" variants)
}
