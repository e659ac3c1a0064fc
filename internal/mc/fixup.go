// Completion: 100% - Fixup records complete
package mc

import "fmt"

// SourceLocation represents a position in the assembly source
type SourceLocation struct {
	File   string
	Line   int
	Column int
	Length int // Length of the problematic token (for highlighting)
}

func (loc SourceLocation) String() string {
	if loc.File == "" && loc.Line == 0 {
		return ""
	}
	if loc.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", loc.File, loc.Line, loc.Column)
	}
	return fmt.Sprintf("%s:%d", loc.File, loc.Line)
}

// Modifier selects a part of the symbol value before the kind sees it
type Modifier uint8

const (
	ModNone Modifier = iota
	ModLo12          // low 12 bits of S+A
)

// Fixup is a deferred patch of an instruction field at Offset bytes into a
// section's data
type Fixup struct {
	Offset   uint64
	Kind     Kind
	Loc      SourceLocation
	Symbol   string // empty when Addend is already the final value
	Addend   int64
	Modifier Modifier
}

// Value is a resolved fixup value as a raw 64-bit pattern.
// Backends reinterpret it as signed where the kind is signed.
type Value struct {
	Bits  uint64
	PCRel bool
}

// ValueOf wraps a signed value
func ValueOf(v int64) Value {
	return Value{Bits: uint64(v)}
}

// Int returns the value as a signed integer
func (v Value) Int() int64 {
	return int64(v.Bits)
}

func (v Value) String() string {
	if v.PCRel {
		return fmt.Sprintf("%d (pc-relative)", v.Int())
	}
	return fmt.Sprintf("%d", v.Int())
}
