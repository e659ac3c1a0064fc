// Completion: 100% - AArch64 backend complete
package aarch64

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"

	"github.com/xyproto/fixup/internal/engine"
	"github.com/xyproto/fixup/internal/mc"
)

// AArch64 fixup kinds
const (
	// adr: 21-bit pc-relative byte offset
	FixupAdrImm21 mc.Kind = mc.FirstTargetKind + iota
	// adrp: 21-bit pc-relative page offset
	FixupAdrpImm21
	// add: 12-bit unsigned immediate
	FixupAddImm12
	// ldr/str unsigned offsets, scaled by the access size
	FixupLdstImm12Scale1
	FixupLdstImm12Scale2
	FixupLdstImm12Scale4
	FixupLdstImm12Scale8
	FixupLdstImm12Scale16
	// ldr literal: 19-bit pc-relative word offset
	FixupLdrPCRelImm19
	// tbz/tbnz: 14-bit pc-relative word offset
	FixupBranch14
	// b.cond, cbz/cbnz: 19-bit pc-relative word offset
	FixupBranch19
	// b: 26-bit pc-relative word offset
	FixupBranch26
	// bl: 26-bit pc-relative word offset
	FixupCall26
	// Marker on the blr of a TLS descriptor call, patches nothing
	FixupTLSDescCall

	numFixupKinds = int(iota)
)

var kindInfos = [numFixupKinds]mc.KindInfo{
	{Name: "aarch64_pcrel_adr_imm21", TargetOffset: 0, TargetSize: 32, Flags: mc.FlagPCRel},
	{Name: "aarch64_pcrel_adrp_imm21", TargetOffset: 0, TargetSize: 32, Flags: mc.FlagPCRel | mc.FlagPageRel},
	{Name: "aarch64_add_imm12", TargetOffset: 10, TargetSize: 12},
	{Name: "aarch64_ldst_imm12_scale1", TargetOffset: 10, TargetSize: 12},
	{Name: "aarch64_ldst_imm12_scale2", TargetOffset: 10, TargetSize: 12},
	{Name: "aarch64_ldst_imm12_scale4", TargetOffset: 10, TargetSize: 12},
	{Name: "aarch64_ldst_imm12_scale8", TargetOffset: 10, TargetSize: 12},
	{Name: "aarch64_ldst_imm12_scale16", TargetOffset: 10, TargetSize: 12},
	{Name: "aarch64_ldr_pcrel_imm19", TargetOffset: 5, TargetSize: 19, Flags: mc.FlagPCRel},
	{Name: "aarch64_pcrel_branch14", TargetOffset: 5, TargetSize: 14, Flags: mc.FlagPCRel},
	{Name: "aarch64_pcrel_branch19", TargetOffset: 5, TargetSize: 19, Flags: mc.FlagPCRel},
	{Name: "aarch64_pcrel_branch26", TargetOffset: 0, TargetSize: 26, Flags: mc.FlagPCRel},
	{Name: "aarch64_pcrel_call26", TargetOffset: 0, TargetSize: 26, Flags: mc.FlagPCRel},
	{Name: "aarch64_tlsdesc_call", TargetOffset: 0, TargetSize: 0},
}

// nop is hint #0, stored little-endian on every AArch64 target
var nop = []byte{0x1f, 0x20, 0x03, 0xd5}

// Backend encodes fixups for AArch64. Instructions are little-endian even
// on aarch64_be; only data fixups follow the target byte order.
type Backend struct {
	mc.BackendBase
	order mc.Endian
}

// NewBackend creates an AArch64 backend for the target
func NewBackend(target engine.Target, opts mc.Options) (*Backend, error) {
	switch target.Arch() {
	case engine.ArchARM64, engine.ArchARM64BE:
	default:
		return nil, fmt.Errorf("aarch64 backend cannot target %s", target.Arch())
	}
	return &Backend{
		BackendBase: mc.NewBackendBase(target, kindInfos[:], opts),
		order:       mc.EndianOf(target.IsLittleEndian()),
	}, nil
}

// adrImmBits splits a 21-bit adr immediate into immlo (bits 30:29) and
// immhi (bits 23:5)
func adrImmBits(v uint64) uint64 {
	lo2 := v & 3
	hi19 := (v & 0x1ffffc) >> 2
	return hi19<<5 | lo2<<29
}

func decodeAdrImm(word uint64) int64 {
	lo2 := (word >> 29) & 3
	hi19 := (word >> 5) & 0x7ffff
	return mc.SignExtend(hi19<<2|lo2, 21)
}

// ldstScale returns log2 of the access size of a scaled load/store kind
func ldstScale(k mc.Kind) uint {
	return uint(k - FixupLdstImm12Scale1)
}

// adjustWordOffset checks a branch offset in bytes and returns it in words
func adjustWordOffset(v mc.Value, bits uint) (uint64, error) {
	err := errors.Join(mc.CheckSigned(v.Int(), bits+2), mc.CheckAligned(v.Bits, 4))
	return mc.Mask(v.Bits>>2, bits), err
}

func adjustValue(k mc.Kind, v mc.Value) (uint64, error) {
	switch k {
	case FixupAdrImm21:
		return adrImmBits(v.Bits & 0x1fffff), mc.CheckSigned(v.Int(), 21)
	case FixupAdrpImm21:
		err := errors.Join(mc.CheckSigned(v.Int(), 33), mc.CheckAligned(v.Bits, 0x1000))
		return adrImmBits((v.Bits & 0x1fffff000) >> 12), err
	case FixupAddImm12, FixupLdstImm12Scale1:
		return mc.Mask(v.Bits, 12), mc.CheckUnsigned(v.Bits, 12)
	case FixupLdstImm12Scale2, FixupLdstImm12Scale4, FixupLdstImm12Scale8, FixupLdstImm12Scale16:
		scale := ldstScale(k)
		err := errors.Join(mc.CheckUnsigned(v.Bits, 12+scale), mc.CheckAligned(v.Bits, 1<<scale))
		return mc.Mask(v.Bits>>scale, 12), err
	case FixupLdrPCRelImm19, FixupBranch19:
		return adjustWordOffset(v, 19)
	case FixupBranch14:
		return adjustWordOffset(v, 14)
	case FixupBranch26, FixupCall26:
		return adjustWordOffset(v, 26)
	case FixupTLSDescCall:
		return 0, nil
	default:
		return mc.AdjustGeneric(k, v)
	}
}

// fixupSize is the number of bytes a kind touches. Fields that end below
// bit 24 only need the low three bytes of the instruction.
func fixupSize(k mc.Kind) int {
	switch k {
	case FixupTLSDescCall:
		return 0
	case FixupAddImm12, FixupLdstImm12Scale1, FixupLdstImm12Scale2, FixupLdstImm12Scale4,
		FixupLdstImm12Scale8, FixupLdstImm12Scale16, FixupLdrPCRelImm19, FixupBranch14, FixupBranch19:
		return 3
	case FixupAdrImm21, FixupAdrpImm21, FixupBranch26, FixupCall26:
		return 4
	default:
		return mc.GenericSize(k)
	}
}

// orderOf returns the byte order for a kind: instructions are always
// little-endian, data follows the target
func (b *Backend) orderOf(k mc.Kind) mc.Endian {
	if k.IsTargetKind() {
		return mc.LittleEndian
	}
	return b.order
}

// ApplyFixup encodes v into the instruction or data at f.Offset
func (b *Backend) ApplyFixup(f mc.Fixup, v mc.Value, data []byte) error {
	info := b.KindInfo(f.Kind)
	bits, err := adjustValue(f.Kind, v)
	enc := mc.Encoding{
		Bits:  bits << info.TargetOffset,
		Size:  fixupSize(f.Kind),
		Order: b.orderOf(f.Kind),
	}
	return b.Apply(f, data, enc, err)
}

// DecodeFixup reads back the byte offset of a pc-relative fixup
func (b *Backend) DecodeFixup(f mc.Fixup, data []byte) (int64, bool, error) {
	if !f.Kind.IsTargetKind() {
		return mc.DecodeGeneric(f.Kind, data, f.Offset, b.order)
	}
	info := b.KindInfo(f.Kind)
	size := fixupSize(f.Kind)
	if size == 0 {
		return 0, false, nil
	}
	word, err := mc.Extract(data, f.Offset, size, mc.LittleEndian)
	if err != nil {
		return 0, false, err
	}
	field := mc.Mask(word>>info.TargetOffset, info.TargetSize)
	switch f.Kind {
	case FixupAdrImm21:
		return decodeAdrImm(word), true, nil
	case FixupAdrpImm21:
		return decodeAdrImm(word) << 12, true, nil
	case FixupLdrPCRelImm19, FixupBranch14, FixupBranch19, FixupBranch26, FixupCall26:
		return mc.SignExtend(field, info.TargetSize) * 4, true, nil
	case FixupAddImm12, FixupLdstImm12Scale1:
		return int64(field), true, nil
	default:
		return int64(field) << ldstScale(f.Kind), true, nil
	}
}

// WriteNop pads with 4 byte nops
func (b *Backend) WriteNop(count uint64, ow mc.ObjectWriter) error {
	return mc.WriteRepeated(ow, count, nop)
}

// CreateObjectWriter returns an ELF writer for the target
func (b *Backend) CreateObjectWriter(w io.Writer) mc.ObjectWriter {
	return mc.NewELFObjectWriter(w, b.ELFConfig(b))
}

// HasRelocationAddend is true, AArch64 uses RELA
func (b *Backend) HasRelocationAddend() bool {
	return true
}

// RelocType maps a fixup kind to its ELF relocation
func (b *Backend) RelocType(k mc.Kind) (uint32, bool) {
	var r elf.R_AARCH64
	switch k {
	case FixupAdrImm21:
		r = elf.R_AARCH64_ADR_PREL_LO21
	case FixupAdrpImm21:
		r = elf.R_AARCH64_ADR_PREL_PG_HI21
	case FixupAddImm12:
		r = elf.R_AARCH64_ADD_ABS_LO12_NC
	case FixupLdstImm12Scale1:
		r = elf.R_AARCH64_LDST8_ABS_LO12_NC
	case FixupLdstImm12Scale2:
		r = elf.R_AARCH64_LDST16_ABS_LO12_NC
	case FixupLdstImm12Scale4:
		r = elf.R_AARCH64_LDST32_ABS_LO12_NC
	case FixupLdstImm12Scale8:
		r = elf.R_AARCH64_LDST64_ABS_LO12_NC
	case FixupLdstImm12Scale16:
		r = elf.R_AARCH64_LDST128_ABS_LO12_NC
	case FixupLdrPCRelImm19:
		r = elf.R_AARCH64_LD_PREL_LO19
	case FixupBranch14:
		r = elf.R_AARCH64_TSTBR14
	case FixupBranch19:
		r = elf.R_AARCH64_CONDBR19
	case FixupBranch26:
		r = elf.R_AARCH64_JUMP26
	case FixupCall26:
		r = elf.R_AARCH64_CALL26
	case FixupTLSDescCall:
		r = elf.R_AARCH64_TLSDESC_CALL
	case mc.KindData2:
		r = elf.R_AARCH64_ABS16
	case mc.KindData4:
		r = elf.R_AARCH64_ABS32
	case mc.KindData8:
		r = elf.R_AARCH64_ABS64
	case mc.KindPCRel2:
		r = elf.R_AARCH64_PREL16
	case mc.KindPCRel4:
		r = elf.R_AARCH64_PREL32
	case mc.KindPCRel8:
		r = elf.R_AARCH64_PREL64
	default:
		return 0, false
	}
	return uint32(r), true
}
