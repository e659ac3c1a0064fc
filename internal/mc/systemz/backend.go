// Completion: 100% - SystemZ backend complete
package systemz

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"

	"github.com/xyproto/fixup/internal/engine"
	"github.com/xyproto/fixup/internal/mc"
)

// SystemZ fixup kinds
const (
	// 16-bit pc-relative offset in halfwords (brc, brasl short forms)
	FixupPC16DBL mc.Kind = mc.FirstTargetKind + iota
	// 32-bit pc-relative offset in halfwords (brcl, brasl, larl)
	FixupPC32DBL
	// Marker on the call to __tls_get_offset, patches nothing
	FixupTLSCall

	numFixupKinds = int(iota)
)

var kindInfos = [numFixupKinds]mc.KindInfo{
	{Name: "390_pc16dbl", TargetOffset: 0, TargetSize: 16, Flags: mc.FlagPCRel},
	{Name: "390_pc32dbl", TargetOffset: 0, TargetSize: 32, Flags: mc.FlagPCRel},
	{Name: "390_tls_call", TargetOffset: 0, TargetSize: 0},
}

// nopr %r0 is 0x0707, a single 0x07 byte is used so any count works
const nopByte = 0x07

// Backend encodes fixups for z/Architecture. Everything is big-endian.
type Backend struct {
	mc.BackendBase
}

// NewBackend creates a SystemZ backend for the target
func NewBackend(target engine.Target, opts mc.Options) (*Backend, error) {
	if target.Arch() != engine.ArchS390x {
		return nil, fmt.Errorf("systemz backend cannot target %s", target.Arch())
	}
	return &Backend{
		BackendBase: mc.NewBackendBase(target, kindInfos[:], opts),
	}, nil
}

// adjustDBL halves a pc-relative byte offset. The offset has to be even and
// the halved value has to fit the field; in continue mode the truncated
// halfword count is still written.
func adjustDBL(v mc.Value, bits uint) (uint64, error) {
	err := errors.Join(mc.CheckSigned(v.Int(), bits+1), mc.CheckAligned(v.Bits, 2))
	return mc.Mask(uint64(v.Int()/2), bits), err
}

func adjustValue(k mc.Kind, v mc.Value) (uint64, error) {
	switch k {
	case FixupPC16DBL:
		return adjustDBL(v, 16)
	case FixupPC32DBL:
		return adjustDBL(v, 32)
	case FixupTLSCall:
		return 0, nil
	default:
		return mc.AdjustGeneric(k, v)
	}
}

// fixupSize rounds the field width up to whole bytes
func (b *Backend) fixupSize(k mc.Kind) int {
	return int(b.KindInfo(k).TargetSize+7) / 8
}

// ApplyFixup encodes v big-endian into the bytes at f.Offset
func (b *Backend) ApplyFixup(f mc.Fixup, v mc.Value, data []byte) error {
	info := b.KindInfo(f.Kind)
	bits, err := adjustValue(f.Kind, v)
	enc := mc.Encoding{
		Bits:  bits << info.TargetOffset,
		Size:  b.fixupSize(f.Kind),
		Order: mc.BigEndian,
	}
	return b.Apply(f, data, enc, err)
}

// DecodeFixup reads back a pc-relative byte offset
func (b *Backend) DecodeFixup(f mc.Fixup, data []byte) (int64, bool, error) {
	switch f.Kind {
	case FixupPC16DBL, FixupPC32DBL:
		info := b.KindInfo(f.Kind)
		raw, err := mc.Extract(data, f.Offset, b.fixupSize(f.Kind), mc.BigEndian)
		if err != nil {
			return 0, false, err
		}
		return mc.SignExtend(raw, info.TargetSize) * 2, true, nil
	case FixupTLSCall:
		return 0, false, nil
	default:
		return mc.DecodeGeneric(f.Kind, data, f.Offset, mc.BigEndian)
	}
}

// WriteNop pads with 0x07 bytes
func (b *Backend) WriteNop(count uint64, ow mc.ObjectWriter) error {
	return mc.WriteRepeated(ow, count, []byte{nopByte})
}

// CreateObjectWriter returns an ELF writer for the target
func (b *Backend) CreateObjectWriter(w io.Writer) mc.ObjectWriter {
	return mc.NewELFObjectWriter(w, b.ELFConfig(b))
}

// HasRelocationAddend is true, s390x uses RELA
func (b *Backend) HasRelocationAddend() bool {
	return true
}

// RelocType maps a fixup kind to its ELF relocation
func (b *Backend) RelocType(k mc.Kind) (uint32, bool) {
	var r elf.R_390
	switch k {
	case FixupPC16DBL:
		r = elf.R_390_PC16DBL
	case FixupPC32DBL:
		r = elf.R_390_PC32DBL
	case FixupTLSCall:
		r = elf.R_390_TLS_GDCALL
	case mc.KindData1:
		r = elf.R_390_8
	case mc.KindData2:
		r = elf.R_390_16
	case mc.KindData4:
		r = elf.R_390_32
	case mc.KindData8:
		r = elf.R_390_64
	case mc.KindPCRel2:
		r = elf.R_390_PC16
	case mc.KindPCRel4:
		r = elf.R_390_PC32
	case mc.KindPCRel8:
		r = elf.R_390_PC64
	default:
		return 0, false
	}
	return uint32(r), true
}
