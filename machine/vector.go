package machine

// NumMMX and NumXMM are the sizes of the two parallel legacy vector
// register files (§3 data model).
const (
	NumMMX = 8
	NumXMM = 16
)

// X87 is the small x87 state block serialized/deserialized whole by
// FXSAVE/FXRSTOR (§4.7, §6 FXSAVE area, §9 open question on ST[i] width).
// Per the open question, ST[i] is stored here as 16 padded bytes per entry
// (128 bytes total for 8 registers) even though the real x87 extended
// format is 80 bits — the padding must stay consistent with the FXSAVE
// layout in §6, which is what OpFxsave/OpFxrstor in ops/ancillary.go rely
// on.
type X87 struct {
	CW     uint16
	SW     uint16
	TW     uint8
	Opcode uint16
	IP     uint32
	ST     [8][16]byte
}

// Vector holds the MMX and XMM register files plus MXCSR. Kept as its own
// type so Machine's hot GPR/flags fields stay in one cache-friendly block,
// the same separation of concerns the teacher draws between RegFile and
// SIMDRegFile.
type Vector struct {
	MMX   [NumMMX]uint64
	XMM   [NumXMM][2]uint64 // low/high 64-bit halves, little-endian within each half
	MXCSR uint32
	FPU   X87
}

// XMMBytes returns the 16 bytes of xmm register i as a little-endian byte
// slice view, used by the byte-granular vector-move handlers in
// ops/vector.go (MOVDQU/MASKMOVDQU byte lanes).
func (v *Vector) XMMBytes(i int) [16]byte {
	var b [16]byte
	lo, hi := v.XMM[i][0], v.XMM[i][1]
	for j := 0; j < 8; j++ {
		b[j] = byte(lo >> (8 * j))
		b[8+j] = byte(hi >> (8 * j))
	}
	return b
}

// SetXMMBytes stores 16 bytes back into xmm register i.
func (v *Vector) SetXMMBytes(i int, b [16]byte) {
	var lo, hi uint64
	for j := 0; j < 8; j++ {
		lo |= uint64(b[j]) << (8 * j)
		hi |= uint64(b[8+j]) << (8 * j)
	}
	v.XMM[i][0], v.XMM[i][1] = lo, hi
}
