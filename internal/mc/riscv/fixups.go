// Completion: 100% - RISC-V fixup encodings complete
package riscv

import (
	"errors"

	"github.com/xyproto/fixup/internal/mc"
)

// RISC-V fixup kinds
const (
	// High 20 bits of an absolute address, for lui
	FixupHi20 mc.Kind = mc.FirstTargetKind + iota
	// Low 12 bits of an absolute address, I-type immediate
	FixupLo12I
	// Low 12 bits of an absolute address, S-type immediate
	FixupLo12S
	// High 20 bits of a pc-relative offset, for auipc
	FixupPCRelHi20
	// 21-bit pc-relative jal target
	FixupJAL
	// 13-bit pc-relative conditional branch target
	FixupBranch
	// 12-bit pc-relative c.j / c.jal target
	FixupRVCJump
	// 9-bit pc-relative c.beqz / c.bnez target
	FixupRVCBranch

	numFixupKinds = int(iota)
)

var kindInfos = [numFixupKinds]mc.KindInfo{
	{Name: "riscv_hi20", TargetOffset: 12, TargetSize: 20},
	{Name: "riscv_lo12_i", TargetOffset: 20, TargetSize: 12},
	{Name: "riscv_lo12_s", TargetOffset: 0, TargetSize: 32},
	{Name: "riscv_pcrel_hi20", TargetOffset: 12, TargetSize: 20, Flags: mc.FlagPCRel},
	{Name: "riscv_jal", TargetOffset: 12, TargetSize: 20, Flags: mc.FlagPCRel},
	{Name: "riscv_branch", TargetOffset: 0, TargetSize: 32, Flags: mc.FlagPCRel},
	{Name: "riscv_rvc_jump", TargetOffset: 2, TargetSize: 11, Flags: mc.FlagPCRel},
	{Name: "riscv_rvc_branch", TargetOffset: 0, TargetSize: 16, Flags: mc.FlagPCRel},
}

// encodeLo12I places the low 12 bits in the I-type immediate
func encodeLo12I(v uint64) uint64 {
	return v & 0xfff
}

// encodeLo12S splits the low 12 bits over imm[11:5] (bits 31:25) and
// imm[4:0] (bits 11:7)
func encodeLo12S(v uint64) uint64 {
	return ((v>>5)&0x7f)<<25 | (v&0x1f)<<7
}

// encodeHi20 rounds so that adding the sign extended low 12 bits gives v back
func encodeHi20(v uint64) uint64 {
	return ((v + 0x800) >> 12) & 0xfffff
}

// encodeJAL permutes a jal offset into imm[20|10:1|11|19:12]
func encodeJAL(v uint64) uint64 {
	sbit := (v >> 20) & 1
	hi8 := (v >> 12) & 0xff
	mid1 := (v >> 11) & 1
	lo10 := (v >> 1) & 0x3ff
	return sbit<<19 | lo10<<9 | mid1<<8 | hi8
}

func decodeJAL(field uint64) int64 {
	sbit := (field >> 19) & 1
	lo10 := (field >> 9) & 0x3ff
	mid1 := (field >> 8) & 1
	hi8 := field & 0xff
	return mc.SignExtend(sbit<<20|hi8<<12|mid1<<11|lo10<<1, 21)
}

// encodeBranch scatters a branch offset over imm[12|10:5] (bits 31:25) and
// imm[4:1|11] (bits 11:7)
func encodeBranch(v uint64) uint64 {
	sbit := (v >> 12) & 1
	hi1 := (v >> 11) & 1
	mid6 := (v >> 5) & 0x3f
	lo4 := (v >> 1) & 0xf
	return sbit<<31 | mid6<<25 | lo4<<8 | hi1<<7
}

func decodeBranch(word uint64) int64 {
	v := ((word>>31)&1)<<12 | ((word>>7)&1)<<11 | ((word>>25)&0x3f)<<5 | ((word>>8)&0xf)<<1
	return mc.SignExtend(v, 13)
}

// encodeRVCJump permutes a c.j offset into imm[11|4|9:8|10|6|7|3:1|5]
func encodeRVCJump(v uint64) uint64 {
	bit11 := (v >> 11) & 1
	bit4 := (v >> 4) & 1
	bit9_8 := (v >> 8) & 3
	bit10 := (v >> 10) & 1
	bit6 := (v >> 6) & 1
	bit7 := (v >> 7) & 1
	bit3_1 := (v >> 1) & 7
	bit5 := (v >> 5) & 1
	return bit11<<10 | bit4<<9 | bit9_8<<7 | bit10<<6 | bit6<<5 | bit7<<4 | bit3_1<<1 | bit5
}

func decodeRVCJump(field uint64) int64 {
	v := ((field>>10)&1)<<11 |
		((field>>9)&1)<<4 |
		((field>>7)&3)<<8 |
		((field>>6)&1)<<10 |
		((field>>5)&1)<<6 |
		((field>>4)&1)<<7 |
		((field>>1)&7)<<1 |
		(field&1)<<5
	return mc.SignExtend(v, 12)
}

// encodeRVCBranch scatters a c.beqz offset over imm[8|4:3] (bits 12:10) and
// imm[7:6|2:1|5] (bits 6:2)
func encodeRVCBranch(v uint64) uint64 {
	bit8 := (v >> 8) & 1
	bit7_6 := (v >> 6) & 3
	bit5 := (v >> 5) & 1
	bit4_3 := (v >> 3) & 3
	bit2_1 := (v >> 1) & 3
	return bit8<<12 | bit4_3<<10 | bit7_6<<5 | bit2_1<<3 | bit5<<2
}

func decodeRVCBranch(word uint64) int64 {
	v := ((word>>12)&1)<<8 |
		((word>>10)&3)<<3 |
		((word>>5)&3)<<6 |
		((word>>3)&3)<<1 |
		((word>>2)&1)<<5
	return mc.SignExtend(v, 9)
}

// adjustValue checks v against the kind's range and alignment and returns
// the field bits, not yet shifted to the field offset. The bits are valid
// even when an error is returned.
func adjustValue(k mc.Kind, v mc.Value) (uint64, error) {
	if !k.IsTargetKind() {
		return mc.AdjustGeneric(k, v)
	}
	switch k {
	case FixupLo12I:
		return encodeLo12I(v.Bits), nil
	case FixupLo12S:
		return encodeLo12S(v.Bits), nil
	case FixupHi20, FixupPCRelHi20:
		return encodeHi20(v.Bits), nil
	case FixupJAL:
		return encodeJAL(v.Bits), errors.Join(mc.CheckSigned(v.Int(), 21), mc.CheckAligned(v.Bits, 2))
	case FixupBranch:
		return encodeBranch(v.Bits), errors.Join(mc.CheckSigned(v.Int(), 13), mc.CheckAligned(v.Bits, 2))
	case FixupRVCJump:
		return encodeRVCJump(v.Bits), errors.Join(mc.CheckSigned(v.Int(), 12), mc.CheckAligned(v.Bits, 2))
	case FixupRVCBranch:
		return encodeRVCBranch(v.Bits), errors.Join(mc.CheckSigned(v.Int(), 9), mc.CheckAligned(v.Bits, 2))
	default:
		panic(&mc.KindError{Kind: k, Backend: "riscv"})
	}
}

// fixupSize is the number of instruction bytes a kind touches
func fixupSize(k mc.Kind) int {
	switch {
	case !k.IsTargetKind():
		return mc.GenericSize(k)
	case k == FixupRVCJump, k == FixupRVCBranch:
		return 2
	default:
		return 4
	}
}
