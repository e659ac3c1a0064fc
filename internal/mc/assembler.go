// Completion: 100% - Assembler driver complete
package mc

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/oleiade/lane"
	"github.com/xyproto/fixup/internal/engine"
)

// ErrAlreadyFinished is returned when Finish is called twice
var ErrAlreadyFinished = errors.New("assembly is already finished")

const pageSize = 0x1000

// Section is a run of encoded bytes with the fixups that still apply to it
type Section struct {
	Name   string
	Data   []byte
	Align  uint64
	Fixups []Fixup

	// Addr is assigned by the layout
	Addr uint64
}

// Layout records the address of every section
type Layout struct {
	Base  uint64
	End   uint64
	addrs map[string]uint64
}

// SectionAddr returns the address assigned to a section
func (l *Layout) SectionAddr(name string) (uint64, bool) {
	addr, ok := l.addrs[name]
	return addr, ok
}

// Relocation is a fixup left for the linker because its symbol is undefined
type Relocation struct {
	Section string
	Offset  uint64
	Kind    Kind
	Symbol  string
	Addend  int64
}

// Object is everything an object writer needs
type Object struct {
	Sections    []*Section
	Symbols     *SymbolTable
	Relocations []Relocation
}

// pendingFixup is a queued fixup together with the section it patches
type pendingFixup struct {
	section *Section
	fixup   Fixup
}

// Assembler lays out sections, resolves fixups against the symbol table and
// hands the results to the backend
type Assembler struct {
	backend  Backend
	symbols  *SymbolTable
	sections []*Section
	diags    *Diagnostics
	relocs   []Relocation
	layout   *Layout
}

// NewAssembler creates an assembler. diags may be nil.
func NewAssembler(b Backend, diags *Diagnostics) *Assembler {
	if diags == nil {
		diags = NewDiagnostics(0)
	}
	return &Assembler{
		backend: b,
		symbols: NewSymbolTable(),
		diags:   diags,
	}
}

// Backend returns the backend fixups are applied with
func (a *Assembler) Backend() Backend {
	return a.backend
}

// Symbols returns the symbol table
func (a *Assembler) Symbols() *SymbolTable {
	return a.symbols
}

// Diagnostics returns the collected diagnostics
func (a *Assembler) Diagnostics() *Diagnostics {
	return a.diags
}

// AddSection appends a section. Section names must be unique.
func (a *Assembler) AddSection(s *Section) error {
	for _, existing := range a.sections {
		if existing.Name == s.Name {
			return fmt.Errorf("section %q is already defined", s.Name)
		}
	}
	a.sections = append(a.sections, s)
	return nil
}

// Section returns a section by name
func (a *Assembler) Section(name string) (*Section, bool) {
	for _, s := range a.sections {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Sections returns the sections in layout order
func (a *Assembler) Sections() []*Section {
	return a.sections
}

// Relocations returns the fixups that were left for the linker
func (a *Assembler) Relocations() []Relocation {
	return a.relocs
}

// Layout returns the layout computed by Finish, or nil
func (a *Assembler) Layout() *Layout {
	return a.layout
}

// Object returns the finished assembly for an object writer
func (a *Assembler) Object() *Object {
	return &Object{
		Sections:    a.sections,
		Symbols:     a.symbols,
		Relocations: a.relocs,
	}
}

func alignUp(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// layoutSections pads every section to its alignment with nops and assigns
// consecutive addresses starting at base
func (a *Assembler) layoutSections(base uint64) (*Layout, error) {
	l := &Layout{Base: base, addrs: make(map[string]uint64)}
	addr := base
	for _, s := range a.sections {
		if s.Align > 1 {
			if s.Align&(s.Align-1) != 0 {
				return nil, fmt.Errorf("section %s: alignment %d is not a power of two", s.Name, s.Align)
			}
			size := uint64(len(s.Data))
			if pad := alignUp(size, s.Align) - size; pad > 0 {
				frag := NewFragment(s.Name + ".pad")
				ow := a.backend.CreateObjectWriter(frag)
				if err := a.backend.WriteNop(pad, ow); err != nil {
					return nil, fmt.Errorf("section %s: %w", s.Name, err)
				}
				frag.Seal()
				s.Data = append(s.Data, frag.Bytes()...)
			}
			addr = alignUp(addr, s.Align)
		}
		s.Addr = addr
		l.addrs[s.Name] = addr
		addr += uint64(len(s.Data))
	}
	l.End = addr
	return l, nil
}

// SymbolAddress returns the address of a defined symbol under the layout
func (a *Assembler) SymbolAddress(name string, l *Layout) (uint64, bool, error) {
	sym, ok := a.symbols.Lookup(name)
	if !ok {
		return 0, false, nil
	}
	if sym.Section == "" {
		return sym.Value, true, nil
	}
	base, ok := l.SectionAddr(sym.Section)
	if !ok {
		return 0, false, fmt.Errorf("symbol %s is defined in unknown section %s", name, sym.Section)
	}
	return base + sym.Value, true, nil
}

// Resolve computes the value of a fixup. The second result is false when the
// symbol is undefined and the fixup has to become a relocation.
//
// Fixups without a symbol carry their final value in Addend. Otherwise the
// value is S+A, minus the fixup address P for pc-relative kinds, or the
// distance between the 4 KiB pages of S+A and P for page-relative kinds.
func (a *Assembler) Resolve(f Fixup, s *Section, l *Layout) (Value, bool, error) {
	info := a.backend.KindInfo(f.Kind)
	if f.Symbol == "" {
		return Value{Bits: uint64(f.Addend), PCRel: info.IsPCRel()}, true, nil
	}

	target, ok, err := a.SymbolAddress(f.Symbol, l)
	if err != nil || !ok {
		return Value{}, false, err
	}

	v := target + uint64(f.Addend)
	if f.Modifier == ModLo12 {
		v &= 0xfff
	}
	p := s.Addr + f.Offset
	switch {
	case info.IsPageRel():
		v = (v &^ (pageSize - 1)) - (p &^ (pageSize - 1))
	case info.IsPCRel():
		v -= p
	}
	return Value{Bits: v, PCRel: info.IsPCRel()}, true, nil
}

// Finish lays out the sections at base and applies every fixup. Fixups are
// worked off a queue in section order; failures are collected in the
// diagnostics and the first one is returned once the queue is drained (or
// immediately in ModeAbort).
func (a *Assembler) Finish(base uint64) error {
	if a.layout != nil {
		return ErrAlreadyFinished
	}
	l, err := a.layoutSections(base)
	if err != nil {
		a.diags.AddError(Diagnostic{Level: LevelError, Category: CategoryLayout, Message: err.Error(), Err: err})
		return err
	}
	a.layout = l

	// Targets without relocation addends keep the addend in the section bytes
	inPlaceAddend := false
	if tw, ok := a.backend.(ELFTargetWriter); ok {
		inPlaceAddend = !tw.HasRelocationAddend()
	}

	q := lane.NewQueue()
	for _, s := range a.sections {
		for _, f := range s.Fixups {
			q.Enqueue(pendingFixup{section: s, fixup: f})
		}
	}

	for !q.Empty() {
		p := q.Dequeue().(pendingFixup)

		v, resolved, err := a.Resolve(p.fixup, p.section, l)
		if err != nil {
			a.diags.Add(&FixupError{Err: err, Kind: a.backend.KindInfo(p.fixup.Kind).Name, Loc: p.fixup.Loc})
			if a.stop() {
				break
			}
			continue
		}

		if !resolved {
			a.relocs = append(a.relocs, Relocation{
				Section: p.section.Name,
				Offset:  p.fixup.Offset,
				Kind:    p.fixup.Kind,
				Symbol:  p.fixup.Symbol,
				Addend:  p.fixup.Addend,
			})
			if !inPlaceAddend {
				continue
			}
			v = ValueOf(p.fixup.Addend)
		}

		if engine.VerboseMode {
			fmt.Fprintf(os.Stderr, "%s+0x%x: %s", p.section.Name, p.fixup.Offset, spew.Sdump(p.fixup, v))
		}

		if a.backend.FixupNeedsRelaxation(p.fixup, v, l) {
			// Nothing reports a fixup as needing relaxation, so reaching this is a defect
			a.backend.RelaxInstruction(Inst{})
		}

		if err := a.backend.ApplyFixup(p.fixup, v, p.section.Data); err != nil {
			a.diags.Add(err)
			if a.stop() {
				break
			}
		}
	}

	return a.diags.Err()
}

func (a *Assembler) stop() bool {
	return a.backend.Options().Mode == ModeAbort || a.diags.ShouldStop()
}

// WriteObject writes the finished assembly with the backend's object writer
func (a *Assembler) WriteObject(w io.Writer) error {
	if a.layout == nil {
		return errors.New("assembly is not finished")
	}
	ow := a.backend.CreateObjectWriter(w)
	if err := ow.WriteObject(a.Object()); err != nil {
		return err
	}
	return ow.Err()
}
