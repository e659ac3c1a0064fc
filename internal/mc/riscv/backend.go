// Completion: 100% - RISC-V backend complete
package riscv

import (
	"debug/elf"
	"fmt"
	"io"

	"github.com/xyproto/fixup/internal/engine"
	"github.com/xyproto/fixup/internal/mc"
)

// nop is addi x0, x0, 0
var nop = []byte{0x13, 0x00, 0x00, 0x00}

// Backend encodes fixups for RV32 and RV64. Instructions are always
// little-endian.
type Backend struct {
	mc.BackendBase
	is64 bool
}

// NewBackend creates a RISC-V backend for the target
func NewBackend(target engine.Target, opts mc.Options) (*Backend, error) {
	switch target.Arch() {
	case engine.ArchRiscv32, engine.ArchRiscv64:
	default:
		return nil, fmt.Errorf("riscv backend cannot target %s", target.Arch())
	}
	return &Backend{
		BackendBase: mc.NewBackendBase(target, kindInfos[:], opts),
		is64:        target.Is64Bit(),
	}, nil
}

// ApplyFixup encodes v into the instruction at f.Offset
func (b *Backend) ApplyFixup(f mc.Fixup, v mc.Value, data []byte) error {
	info := b.KindInfo(f.Kind)
	bits, err := adjustValue(f.Kind, v)
	enc := mc.Encoding{
		Bits:  bits << info.TargetOffset,
		Size:  fixupSize(f.Kind),
		Order: mc.LittleEndian,
	}
	return b.Apply(f, data, enc, err)
}

// DecodeFixup reads back the offset stored by a pc-relative fixup
func (b *Backend) DecodeFixup(f mc.Fixup, data []byte) (int64, bool, error) {
	if !f.Kind.IsTargetKind() {
		return mc.DecodeGeneric(f.Kind, data, f.Offset, mc.LittleEndian)
	}
	info := b.KindInfo(f.Kind)
	word, err := mc.Extract(data, f.Offset, fixupSize(f.Kind), mc.LittleEndian)
	if err != nil {
		return 0, false, err
	}
	field := mc.Mask(word>>info.TargetOffset, info.TargetSize)
	switch f.Kind {
	case FixupJAL:
		return decodeJAL(field), true, nil
	case FixupBranch:
		return decodeBranch(word), true, nil
	case FixupRVCJump:
		return decodeRVCJump(field), true, nil
	case FixupRVCBranch:
		return decodeRVCBranch(word), true, nil
	default:
		// hi20 and lo12 only hold part of the value
		return 0, false, nil
	}
}

// WriteNop pads with 4 byte nops. Compressed nops are not used, so the
// count must be a multiple of 4.
func (b *Backend) WriteNop(count uint64, ow mc.ObjectWriter) error {
	return mc.WriteRepeated(ow, count, nop)
}

// CreateObjectWriter returns an ELF writer for the target
func (b *Backend) CreateObjectWriter(w io.Writer) mc.ObjectWriter {
	return mc.NewELFObjectWriter(w, b.ELFConfig(b))
}

// HasRelocationAddend is true, RISC-V uses RELA
func (b *Backend) HasRelocationAddend() bool {
	return true
}

// RelocType maps a fixup kind to its ELF relocation
func (b *Backend) RelocType(k mc.Kind) (uint32, bool) {
	var r elf.R_RISCV
	switch k {
	case FixupHi20:
		r = elf.R_RISCV_HI20
	case FixupLo12I:
		r = elf.R_RISCV_LO12_I
	case FixupLo12S:
		r = elf.R_RISCV_LO12_S
	case FixupPCRelHi20:
		r = elf.R_RISCV_PCREL_HI20
	case FixupJAL:
		r = elf.R_RISCV_JAL
	case FixupBranch:
		r = elf.R_RISCV_BRANCH
	case FixupRVCJump:
		r = elf.R_RISCV_RVC_JUMP
	case FixupRVCBranch:
		r = elf.R_RISCV_RVC_BRANCH
	case mc.KindData4:
		r = elf.R_RISCV_32
	case mc.KindData8:
		if !b.is64 {
			return 0, false
		}
		r = elf.R_RISCV_64
	case mc.KindPCRel4:
		r = elf.R_RISCV_32_PCREL
	default:
		return 0, false
	}
	return uint32(r), true
}
