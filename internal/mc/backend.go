// Completion: 100% - Backend contract complete
package mc

import (
	"fmt"
	"io"
	"os"

	"github.com/xyproto/fixup/internal/engine"
)

// Backend is the interface that all architecture backends must implement.
// A backend knows its fixup kinds, how to encode a resolved value into the
// instruction bytes, how to pad with nops and which object writer to use.
type Backend interface {
	// Name is the architecture name, for diagnostics
	Name() string
	Target() engine.Target
	Options() Options

	// Kind registry
	NumKinds() int
	KindInfo(k Kind) KindInfo
	KindByName(name string) (Kind, bool)

	// ApplyFixup encodes v into data according to f
	ApplyFixup(f Fixup, v Value, data []byte) error

	// Relaxation hooks
	MayNeedRelaxation(inst Inst) bool
	FixupNeedsRelaxation(f Fixup, v Value, layout *Layout) bool
	RelaxInstruction(inst Inst) Inst

	// WriteNop fills count bytes of padding with nops
	WriteNop(count uint64, ow ObjectWriter) error

	CreateObjectWriter(w io.Writer) ObjectWriter
}

// Decoder is implemented by backends that can read a patched field back
type Decoder interface {
	// DecodeFixup returns the value encoded for f, or false if the kind
	// does not store the whole value
	DecodeFixup(f Fixup, data []byte) (int64, bool, error)
}

// Inst is an instruction as seen by the relaxation hooks
type Inst struct {
	Opcode   uint32
	Operands []int64
	Size     int
}

// Mode selects what ApplyFixup does with a value it cannot encode
type Mode int

const (
	// ModeContinue reports the error and still patches the truncated value,
	// so that a single run reports every bad fixup
	ModeContinue Mode = iota
	// ModeAbort reports the error and leaves the buffer untouched
	ModeAbort
)

// BoundsPolicy selects how a patch outside the buffer is reported
type BoundsPolicy int

const (
	BoundsReturnError BoundsPolicy = iota
	BoundsPanic
)

// Options tune backend error handling
type Options struct {
	Mode   Mode
	Bounds BoundsPolicy
}

// Encoding is an adjusted value ready to be ORed into the buffer
type Encoding struct {
	Bits  uint64 // already shifted to the field position
	Size  int    // number of bytes touched
	Order Endian
}

// BackendBase holds what all backends share: the kind table, the target and
// the error policy. Backends embed it.
type BackendBase struct {
	name   string
	target engine.Target
	kinds  []KindInfo
	opts   Options
}

// NewBackendBase creates the shared backend state
func NewBackendBase(target engine.Target, kinds []KindInfo, opts Options) BackendBase {
	return BackendBase{
		name:   target.Arch().String(),
		target: target,
		kinds:  kinds,
		opts:   opts,
	}
}

func (b *BackendBase) Name() string {
	return b.name
}

func (b *BackendBase) Target() engine.Target {
	return b.target
}

func (b *BackendBase) Options() Options {
	return b.opts
}

// NumKinds returns the number of target specific kinds
func (b *BackendBase) NumKinds() int {
	return len(b.kinds)
}

// KindInfo describes k. Unknown kinds panic with a *KindError.
func (b *BackendBase) KindInfo(k Kind) KindInfo {
	return LookupKindInfo(b.name, b.kinds, k)
}

// KindByName finds a generic or target kind by name
func (b *BackendBase) KindByName(name string) (Kind, bool) {
	for i, info := range genericKinds {
		if info.Name == name {
			return Kind(i), true
		}
	}
	for i, info := range b.kinds {
		if info.Name == name {
			return FirstTargetKind + Kind(i), true
		}
	}
	return KindNone, false
}

// MayNeedRelaxation reports whether inst has a longer form; none do yet
func (b *BackendBase) MayNeedRelaxation(inst Inst) bool {
	return false
}

// FixupNeedsRelaxation reports whether f does not fit the short form
func (b *BackendBase) FixupNeedsRelaxation(f Fixup, v Value, layout *Layout) bool {
	return false
}

// RelaxInstruction must never be reached, since nothing asks for relaxation
func (b *BackendBase) RelaxInstruction(inst Inst) Inst {
	panic(fmt.Errorf("%s: %w", b.name, ErrRelaxationUnsupported))
}

// Apply is the common tail of ApplyFixup. It checks the bounds, reports
// adjustErr against f and patches enc into data as the mode allows.
func (b *BackendBase) Apply(f Fixup, data []byte, enc Encoding, adjustErr error) error {
	info := b.KindInfo(f.Kind)

	if err := checkBounds(data, f.Offset, enc.Size); err != nil {
		ferr := &FixupError{Err: err, Kind: info.Name, Loc: f.Loc}
		if b.opts.Bounds == BoundsPanic {
			panic(ferr)
		}
		return ferr
	}

	var ferr error
	if adjustErr != nil {
		ferr = &FixupError{Err: adjustErr, Kind: info.Name, Loc: f.Loc}
		if b.opts.Mode == ModeAbort {
			return ferr
		}
	}

	if engine.VerboseMode {
		fmt.Fprintf(os.Stderr, "%s: %s at 0x%x: 0x%x over %d byte(s), %s\n",
			b.name, info.Name, f.Offset, enc.Bits, enc.Size, enc.Order)
	}

	if err := Patch(data, f.Offset, enc.Bits, enc.Size, enc.Order); err != nil {
		return &FixupError{Err: err, Kind: info.Name, Loc: f.Loc}
	}
	return ferr
}

// ELFConfig returns the object writer settings for the target
func (b *BackendBase) ELFConfig(tw ELFTargetWriter) ELFConfig {
	return ELFConfig{
		Machine: b.target.ELFMachine(),
		OSABI:   b.target.OSABI(),
		Is64Bit: b.target.Is64Bit(),
		Order:   EndianOf(b.target.IsLittleEndian()),
		Target:  tw,
	}
}

// AdjustGeneric handles the target independent kinds. Data kinds are
// truncated to their width; pc-relative kinds must fit as signed values.
func AdjustGeneric(k Kind, v Value) (uint64, error) {
	info := GenericKindInfo(k)
	switch k {
	case KindNone:
		return 0, nil
	case KindPCRel1, KindPCRel2, KindPCRel4:
		return Mask(v.Bits, info.TargetSize), CheckSigned(v.Int(), info.TargetSize)
	default:
		return Mask(v.Bits, info.TargetSize), nil
	}
}

// GenericSize returns the number of bytes a generic kind patches
func GenericSize(k Kind) int {
	return int(GenericKindInfo(k).TargetSize+7) / 8
}

// DecodeGeneric reads back a generic kind. Pc-relative values are signed.
func DecodeGeneric(k Kind, data []byte, offset uint64, order Endian) (int64, bool, error) {
	info := GenericKindInfo(k)
	if k == KindNone {
		return 0, false, nil
	}
	raw, err := Extract(data, offset, GenericSize(k), order)
	if err != nil {
		return 0, false, err
	}
	if info.IsPCRel() {
		return SignExtend(raw, info.TargetSize), true, nil
	}
	return int64(raw), true, nil
}
