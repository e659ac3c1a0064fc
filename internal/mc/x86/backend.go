// Completion: 100% - x86 backend complete
package x86

import (
	"debug/elf"
	"fmt"
	"io"

	"github.com/xyproto/fixup/internal/engine"
	"github.com/xyproto/fixup/internal/mc"
)

// x86 fixup kinds. All of them patch a 32-bit little-endian field.
const (
	// 32-bit rip-relative displacement
	FixupRIPRel4 mc.Kind = mc.FirstTargetKind + iota
	// rip-relative displacement of a movq load, which the linker may relax
	FixupRIPRel4MovqLoad
	// 32-bit sign extended immediate
	FixupSigned4
	// 32-bit offset to the global offset table
	FixupGlobalOffsetTable
	// rel32 of a call or jmp
	FixupBranch4PCRel

	numFixupKinds = int(iota)
)

var kindInfos = [numFixupKinds]mc.KindInfo{
	{Name: "reloc_riprel_4byte", TargetOffset: 0, TargetSize: 32, Flags: mc.FlagPCRel},
	{Name: "reloc_riprel_4byte_movq_load", TargetOffset: 0, TargetSize: 32, Flags: mc.FlagPCRel},
	{Name: "reloc_signed_4byte", TargetOffset: 0, TargetSize: 32},
	{Name: "reloc_global_offset_table", TargetOffset: 0, TargetSize: 32},
	{Name: "reloc_branch_4byte_pcrel", TargetOffset: 0, TargetSize: 32, Flags: mc.FlagPCRel},
}

// maxNopLength is the longest nop emitted in one instruction
const maxNopLength = 10

// nops[n-1] is the recommended n byte nop
var nops = [maxNopLength][]byte{
	{0x90},                                                       // nop
	{0x66, 0x90},                                                 // xchg %ax,%ax
	{0x0f, 0x1f, 0x00},                                           // nopl (%[re]ax)
	{0x0f, 0x1f, 0x40, 0x00},                                     // nopl 0(%[re]ax)
	{0x0f, 0x1f, 0x44, 0x00, 0x00},                               // nopl 0(%[re]ax,%[re]ax,1)
	{0x66, 0x0f, 0x1f, 0x44, 0x00, 0x00},                         // nopw 0(%[re]ax,%[re]ax,1)
	{0x0f, 0x1f, 0x80, 0x00, 0x00, 0x00, 0x00},                   // nopl 0L(%[re]ax)
	{0x0f, 0x1f, 0x84, 0x00, 0x00, 0x00, 0x00, 0x00},             // nopl 0L(%[re]ax,%[re]ax,1)
	{0x66, 0x0f, 0x1f, 0x84, 0x00, 0x00, 0x00, 0x00, 0x00},       // nopw 0L(%[re]ax,%[re]ax,1)
	{0x66, 0x2e, 0x0f, 0x1f, 0x84, 0x00, 0x00, 0x00, 0x00, 0x00}, // nopw %cs:0L(%[re]ax,%[re]ax,1)
}

// Backend encodes fixups for i386 and x86-64
type Backend struct {
	mc.BackendBase
	is64     bool
	longNops bool
}

// NewBackend creates an x86 backend for the target. Long nops are used on
// x86-64 and can be switched on for i686 and later with SetLongNops.
func NewBackend(target engine.Target, opts mc.Options) (*Backend, error) {
	switch target.Arch() {
	case engine.ArchX86, engine.ArchX86_64:
	default:
		return nil, fmt.Errorf("x86 backend cannot target %s", target.Arch())
	}
	return &Backend{
		BackendBase: mc.NewBackendBase(target, kindInfos[:], opts),
		is64:        target.Is64Bit(),
		longNops:    target.Is64Bit(),
	}, nil
}

// SetLongNops selects multi-byte nops instead of single 0x90 bytes
func (b *Backend) SetLongNops(enabled bool) {
	b.longNops = enabled
}

// LongNops returns true if multi-byte nops are emitted
func (b *Backend) LongNops() bool {
	return b.longNops
}

func adjustValue(k mc.Kind, v mc.Value) (uint64, error) {
	switch k {
	case FixupRIPRel4, FixupRIPRel4MovqLoad, FixupSigned4, FixupBranch4PCRel:
		return mc.Mask(v.Bits, 32), mc.CheckSigned(v.Int(), 32)
	case FixupGlobalOffsetTable:
		return mc.Mask(v.Bits, 32), nil
	default:
		return mc.AdjustGeneric(k, v)
	}
}

func fixupSize(k mc.Kind) int {
	if k.IsTargetKind() {
		return 4
	}
	return mc.GenericSize(k)
}

// ApplyFixup encodes v little-endian into the bytes at f.Offset
func (b *Backend) ApplyFixup(f mc.Fixup, v mc.Value, data []byte) error {
	bits, err := adjustValue(f.Kind, v)
	enc := mc.Encoding{
		Bits:  bits,
		Size:  fixupSize(f.Kind),
		Order: mc.LittleEndian,
	}
	return b.Apply(f, data, enc, err)
}

// DecodeFixup reads back a patched value. Every target kind is a signed
// 32-bit field except the GOT offset, which is read unsigned.
func (b *Backend) DecodeFixup(f mc.Fixup, data []byte) (int64, bool, error) {
	if !f.Kind.IsTargetKind() {
		return mc.DecodeGeneric(f.Kind, data, f.Offset, mc.LittleEndian)
	}
	b.KindInfo(f.Kind) // panics on unknown kinds
	raw, err := mc.Extract(data, f.Offset, 4, mc.LittleEndian)
	if err != nil {
		return 0, false, err
	}
	if f.Kind == FixupGlobalOffsetTable {
		return int64(raw), true, nil
	}
	return mc.SignExtend(raw, 32), true, nil
}

// WriteNop pads with the longest nops available, one byte granularity
func (b *Backend) WriteNop(count uint64, ow mc.ObjectWriter) error {
	if !b.longNops {
		return mc.WriteRepeated(ow, count, nops[0])
	}
	for count > 0 {
		n := min(count, maxNopLength)
		ow.WriteBytes(nops[n-1])
		count -= n
	}
	return ow.Err()
}

// CreateObjectWriter returns an ELF writer for the target
func (b *Backend) CreateObjectWriter(w io.Writer) mc.ObjectWriter {
	return mc.NewELFObjectWriter(w, b.ELFConfig(b))
}

// HasRelocationAddend is true on x86-64 (RELA). i386 uses REL and keeps the
// addend in the section bytes.
func (b *Backend) HasRelocationAddend() bool {
	return b.is64
}

// RelocType maps a fixup kind to its ELF relocation
func (b *Backend) RelocType(k mc.Kind) (uint32, bool) {
	if b.is64 {
		return relocType64(k)
	}
	return relocType32(k)
}

func relocType64(k mc.Kind) (uint32, bool) {
	var r elf.R_X86_64
	switch k {
	case FixupRIPRel4, FixupRIPRel4MovqLoad, mc.KindPCRel4:
		r = elf.R_X86_64_PC32
	case FixupBranch4PCRel:
		r = elf.R_X86_64_PLT32
	case FixupSigned4:
		r = elf.R_X86_64_32S
	case FixupGlobalOffsetTable:
		r = elf.R_X86_64_GOTPC32
	case mc.KindData1:
		r = elf.R_X86_64_8
	case mc.KindData2:
		r = elf.R_X86_64_16
	case mc.KindData4:
		r = elf.R_X86_64_32
	case mc.KindData8:
		r = elf.R_X86_64_64
	case mc.KindPCRel1:
		r = elf.R_X86_64_PC8
	case mc.KindPCRel2:
		r = elf.R_X86_64_PC16
	case mc.KindPCRel8:
		r = elf.R_X86_64_PC64
	default:
		return 0, false
	}
	return uint32(r), true
}

// relocType32 has no rip-relative or 64-bit relocations
func relocType32(k mc.Kind) (uint32, bool) {
	var r elf.R_386
	switch k {
	case FixupBranch4PCRel, mc.KindPCRel4:
		r = elf.R_386_PC32
	case FixupSigned4, mc.KindData4:
		r = elf.R_386_32
	case FixupGlobalOffsetTable:
		r = elf.R_386_GOTPC
	case mc.KindData1:
		r = elf.R_386_8
	case mc.KindData2:
		r = elf.R_386_16
	case mc.KindPCRel1:
		r = elf.R_386_PC8
	case mc.KindPCRel2:
		r = elf.R_386_PC16
	default:
		return 0, false
	}
	return uint32(r), true
}
