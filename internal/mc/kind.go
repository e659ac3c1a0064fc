// Completion: 100% - Fixup kind registry complete
package mc

import (
	"fmt"
	"strings"
)

// Kind identifies how a fixup value is encoded into the instruction stream.
// Kinds below FirstTargetKind are shared by all targets; each backend
// numbers its own kinds from FirstTargetKind upwards.
type Kind uint32

const (
	KindNone Kind = iota
	KindData1
	KindData2
	KindData4
	KindData8
	KindPCRel1
	KindPCRel2
	KindPCRel4
	KindPCRel8

	// NumGenericKinds is the number of target independent kinds
	NumGenericKinds = int(iota)
)

// FirstTargetKind is the first kind number a backend may use
const FirstTargetKind Kind = 128

// IsTargetKind returns true for kinds owned by a backend
func (k Kind) IsTargetKind() bool {
	return k >= FirstTargetKind
}

// KindFlags describe how the resolver computes a value for a kind
type KindFlags uint8

const (
	// FlagPCRel marks kinds whose value is relative to the fixup address
	FlagPCRel KindFlags = 1 << iota
	// FlagPageRel marks kinds whose value is a 4 KiB page delta
	FlagPageRel
)

// KindInfo describes where a kind's value lands in the instruction
type KindInfo struct {
	Name         string
	TargetOffset uint // bit offset of the field
	TargetSize   uint // width of the field in bits
	Flags        KindFlags
}

// IsPCRel returns true if the value is computed relative to the fixup address
func (i KindInfo) IsPCRel() bool {
	return i.Flags&FlagPCRel != 0
}

// IsPageRel returns true if the value is a page delta
func (i KindInfo) IsPageRel() bool {
	return i.Flags&FlagPageRel != 0
}

// String returns a one line description of the kind layout
func (i KindInfo) String() string {
	var flags []string
	if i.IsPCRel() {
		flags = append(flags, "pcrel")
	}
	if i.IsPageRel() {
		flags = append(flags, "page")
	}
	s := fmt.Sprintf("%s offset=%d size=%d", i.Name, i.TargetOffset, i.TargetSize)
	if len(flags) > 0 {
		s += " [" + strings.Join(flags, ",") + "]"
	}
	return s
}

var genericKinds = [NumGenericKinds]KindInfo{
	{"none", 0, 0, 0},
	{"data_1", 0, 8, 0},
	{"data_2", 0, 16, 0},
	{"data_4", 0, 32, 0},
	{"data_8", 0, 64, 0},
	{"pcrel_1", 0, 8, FlagPCRel},
	{"pcrel_2", 0, 16, FlagPCRel},
	{"pcrel_4", 0, 32, FlagPCRel},
	{"pcrel_8", 0, 64, FlagPCRel},
}

// KindError is raised (as a panic value) when a kind number is not known
// to the backend asked about it. That is always a programming error in the
// code that produced the fixup.
type KindError struct {
	Kind    Kind
	Backend string
}

func (e *KindError) Error() string {
	return fmt.Sprintf("invalid fixup kind %d for %s backend", e.Kind, e.Backend)
}

// GenericKindInfo returns the description of a target independent kind
func GenericKindInfo(k Kind) KindInfo {
	if int(k) >= NumGenericKinds {
		panic(&KindError{Kind: k, Backend: "generic"})
	}
	return genericKinds[k]
}

// LookupKindInfo resolves k against the generic table or, for target kinds,
// against the backend's table
func LookupKindInfo(backend string, table []KindInfo, k Kind) KindInfo {
	if !k.IsTargetKind() {
		if int(k) >= NumGenericKinds {
			panic(&KindError{Kind: k, Backend: backend})
		}
		return genericKinds[k]
	}
	idx := int(k - FirstTargetKind)
	if idx >= len(table) {
		panic(&KindError{Kind: k, Backend: backend})
	}
	return table[idx]
}

// KindNames lists every kind name a backend accepts, generic kinds first
func KindNames(b Backend) []string {
	names := make([]string, 0, NumGenericKinds+b.NumKinds())
	for _, k := range AllKinds(b) {
		names = append(names, b.KindInfo(k).Name)
	}
	return names
}

// AllKinds lists every kind a backend accepts, generic kinds first
func AllKinds(b Backend) []Kind {
	kinds := make([]Kind, 0, NumGenericKinds+b.NumKinds())
	for k := KindNone; int(k) < NumGenericKinds; k++ {
		kinds = append(kinds, k)
	}
	for i := 0; i < b.NumKinds(); i++ {
		kinds = append(kinds, FirstTargetKind+Kind(i))
	}
	return kinds
}
