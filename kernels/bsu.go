package kernels

import "github.com/polarisvm/x86core/machine"

// BsuOp enumerates the Group-2 shift/rotate operations, indexed the same
// way ModR/M.reg selects them (§4.4 "Bit-shift/rotate family").
type BsuOp uint8

const (
	BsuRol BsuOp = iota
	BsuRor
	BsuRcl
	BsuRcr
	BsuShl
	BsuShr
	BsuSal // alias of BsuShl; x86 encodes SHL at reg==4 and SAL at reg==6
	BsuSar
)

// BsuFunc computes a shift/rotate of val by count bits at the given
// width, mutating flags, and returns the result.
type BsuFunc func(val uint64, count byte, width int, flags *machine.Flags) uint64

// Bsu is the kBsu[OP][log2W] table from §6.
var Bsu [8][4]BsuFunc

func init() {
	fns := [8]func(uint64, byte, int, *machine.Flags) uint64{
		bsuRol, bsuRor, bsuRcl, bsuRcr, bsuShl, bsuShr, bsuShl, bsuSar,
	}
	for op, fn := range fns {
		for w := range widthBits {
			Bsu[op][w] = fn
		}
	}
}

func bsuRol(val uint64, count byte, width int, flags *machine.Flags) uint64 {
	m := mask(width)
	c := count & 0x1F
	if c == 0 {
		return val & m
	}
	c %= byte(width)
	if c == 0 {
		return val & m
	}
	v := val & m
	result := ((v << c) | (v >> uint(width-int(c)))) & m
	flags.CF = result&1 != 0
	if count&0x1F == 1 {
		flags.OF = (result>>uint(width-1))&1 != (result & 1)
	}
	return result
}

func bsuRor(val uint64, count byte, width int, flags *machine.Flags) uint64 {
	m := mask(width)
	c := count & 0x1F
	if c == 0 {
		return val & m
	}
	c %= byte(width)
	if c == 0 {
		return val & m
	}
	v := val & m
	result := ((v >> c) | (v << uint(width-int(c)))) & m
	top := result >> uint(width-1) & 1
	flags.CF = top != 0
	if count&0x1F == 1 {
		flags.OF = top != ((result >> uint(width-2)) & 1)
	}
	return result
}

func bsuRcl(val uint64, count byte, width int, flags *machine.Flags) uint64 {
	m := mask(width)
	v := val & m
	c := count & 0x1F
	mod := byte(width + 1)
	c %= mod
	var cf uint64
	if flags.CF {
		cf = 1
	}
	for i := byte(0); i < c; i++ {
		newCF := v >> uint(width-1) & 1
		v = ((v << 1) | cf) & m
		cf = newCF
	}
	flags.CF = cf != 0
	if count&0x1F == 1 {
		flags.OF = (v>>uint(width-1))&1 != cf
	}
	return v
}

func bsuRcr(val uint64, count byte, width int, flags *machine.Flags) uint64 {
	m := mask(width)
	v := val & m
	c := count & 0x1F
	mod := byte(width + 1)
	c %= mod
	var cf uint64
	if flags.CF {
		cf = 1
	}
	for i := byte(0); i < c; i++ {
		newCF := v & 1
		v = ((v >> 1) | (cf << uint(width-1))) & m
		cf = newCF
	}
	flags.CF = cf != 0
	if count&0x1F == 1 {
		flags.OF = (v>>uint(width-1))&1 != (v>>uint(width-2))&1
	}
	return v
}

func bsuShl(val uint64, count byte, width int, flags *machine.Flags) uint64 {
	m := mask(width)
	v := val & m
	c := count & 0x1F
	if c == 0 {
		return v
	}
	if int(c) >= width {
		flags.CF = false
		if int(c) == width {
			flags.CF = v&1 != 0
		}
		v = 0
	} else {
		flags.CF = (v>>uint(width-int(c)))&1 != 0
		v = (v << c) & m
	}
	if c == 1 {
		flags.OF = (v>>uint(width-1))&1 != (val>>uint(width-1))&1
	}
	flags.SF = v&signBit(width) != 0
	flags.ZF = v == 0
	flags.PF = machine.Parity(byte(v))
	return v
}

func bsuShr(val uint64, count byte, width int, flags *machine.Flags) uint64 {
	m := mask(width)
	v := val & m
	c := count & 0x1F
	if c == 0 {
		return v
	}
	if int(c) >= width {
		flags.CF = false
		if int(c) == width {
			flags.CF = v&signBit(width) != 0
		}
		v = 0
	} else {
		flags.CF = (v>>uint(c-1))&1 != 0
		v = v >> c
	}
	if c == 1 {
		flags.OF = (val & signBit(width)) != 0
	}
	flags.SF = v&signBit(width) != 0
	flags.ZF = v == 0
	flags.PF = machine.Parity(byte(v))
	return v
}

func bsuSar(val uint64, count byte, width int, flags *machine.Flags) uint64 {
	m := mask(width)
	v := val & m
	c := count & 0x1F
	signed := signExtend(v, width)
	if c == 0 {
		return v
	}
	if int(c) >= width {
		if signed < 0 {
			flags.CF = true
			v = m
		} else {
			flags.CF = false
			v = 0
		}
	} else {
		flags.CF = (v>>uint(c-1))&1 != 0
		v = uint64(signed>>c) & m
	}
	if c == 1 {
		flags.OF = false
	}
	flags.SF = v&signBit(width) != 0
	flags.ZF = v == 0
	flags.PF = machine.Parity(byte(v))
	return v
}

func signExtend(v uint64, width int) int64 {
	sb := signBit(width)
	if v&sb != 0 {
		return int64(v | ^mask(width))
	}
	return int64(v)
}

// BsuDoubleShift implements the SHLD/SHRD kernel (§6 "BsuDoubleShift"):
// shifts dst by count bits, filling the vacated bits from src, at the
// given width. right selects SHRD over SHLD.
func BsuDoubleShift(width int, dst, src uint64, count byte, right bool, flags *machine.Flags) uint64 {
	m := mask(width)
	c := count & 0x1F
	if c == 0 || int(c) > width {
		return dst & m
	}
	d, s := dst&m, src&m
	var result uint64
	if !right {
		result = ((d << c) | (s >> uint(width-int(c)))) & m
		flags.CF = (d>>uint(width-int(c)))&1 != 0
	} else {
		result = ((d >> c) | (s << uint(width-int(c)))) & m
		flags.CF = (d >> uint(c-1)) & 1 != 0
	}
	flags.SF = result&signBit(width) != 0
	flags.ZF = result == 0
	flags.PF = machine.Parity(byte(result))
	return result
}
