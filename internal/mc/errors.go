// Completion: 100% - Fixup error reporting complete
package mc

import (
	"errors"
	"fmt"
)

var (
	// ErrFixupOutOfRange is reported when a value does not fit its field
	ErrFixupOutOfRange = errors.New("fixup value out of range")
	// ErrFixupMisaligned is reported when a value violates the kind's alignment
	ErrFixupMisaligned = errors.New("fixup value misaligned")
	// ErrBufferOverrun is reported when a patch would fall outside the buffer
	ErrBufferOverrun = errors.New("invalid fixup offset")
	// ErrNopCount is reported when padding cannot be filled with whole nops
	ErrNopCount = errors.New("nop padding is not a multiple of the instruction size")
	// ErrUnknownKindName is reported when a kind name is not known to a backend
	ErrUnknownKindName = errors.New("unknown fixup kind")
	// ErrRelaxationUnsupported is the panic value of RelaxInstruction
	ErrRelaxationUnsupported = errors.New("instruction relaxation is not supported")
)

// FixupError ties a fixup failure to the fixup that caused it
type FixupError struct {
	Err  error // wraps one or more of the sentinels above
	Kind string
	Loc  SourceLocation
}

func (e *FixupError) Error() string {
	if loc := e.Loc.String(); loc != "" {
		return fmt.Sprintf("%s: %s: %v", loc, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FixupError) Unwrap() error {
	return e.Err
}

// Code is a numeric error code for hosts that embed the engine
// and cannot carry Go errors across their boundary
type Code int

const (
	CodeOK Code = iota
	CodeFixupInvalid
	CodeFixupOutOfRange
	CodeFixupMisaligned
	CodeUnknownKind
	CodeNopCount
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeFixupInvalid:
		return "FIXUP_INVALID"
	case CodeFixupOutOfRange:
		return "FIXUP_OUT_OF_RANGE"
	case CodeFixupMisaligned:
		return "FIXUP_MISALIGNED"
	case CodeUnknownKind:
		return "UNKNOWN_KIND"
	case CodeNopCount:
		return "NOP_COUNT"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// ErrorCode maps an error to its code. When several conditions are joined
// the first in the order out of range, misaligned wins.
func ErrorCode(err error) Code {
	var kindErr *KindError
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrBufferOverrun):
		return CodeFixupInvalid
	case errors.Is(err, ErrFixupOutOfRange):
		return CodeFixupOutOfRange
	case errors.Is(err, ErrFixupMisaligned):
		return CodeFixupMisaligned
	case errors.Is(err, ErrUnknownKindName), errors.As(err, &kindErr):
		return CodeUnknownKind
	case errors.Is(err, ErrNopCount):
		return CodeNopCount
	default:
		return CodeFixupInvalid
	}
}

// ApplyFixupCode applies a fixup and returns only the error code.
// The buffer is patched exactly as ApplyFixup would patch it.
func ApplyFixupCode(b Backend, f Fixup, v Value, data []byte) Code {
	return ErrorCode(b.ApplyFixup(f, v, data))
}
