// Completion: 100% - ELF relocatable writer complete
package mc

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xyproto/fixup/internal/engine"
)

const (
	// ELF structure sizes
	elf64HeaderSize = 64
	elf32HeaderSize = 52
	elf64ShdrSize   = 64
	elf32ShdrSize   = 40
	elf64SymSize    = 24
	elf32SymSize    = 16

	etRel = 1 // relocatable object

	// Section header types
	shtNull     = 0
	shtProgbits = 1
	shtSymtab   = 2
	shtStrtab   = 3
	shtRela     = 4
	shtRel      = 9

	// Section header flags
	shfWrite     = 0x1
	shfAlloc     = 0x2
	shfExecinstr = 0x4
	shfInfoLink  = 0x40

	shnUndef = 0
	shnAbs   = 0xfff1

	stbLocal  = 0
	stbGlobal = 1
	sttNotype = 0
)

// ELFTargetWriter maps fixup kinds to the target's relocation types
type ELFTargetWriter interface {
	// RelocType returns the ELF relocation type for a kind
	RelocType(k Kind) (uint32, bool)
	// HasRelocationAddend is true for targets using SHT_RELA sections
	HasRelocationAddend() bool
}

// ELFConfig is everything target specific about the object file
type ELFConfig struct {
	Machine uint16
	OSABI   uint8
	Is64Bit bool
	Order   Endian
	Flags   uint32
	Target  ELFTargetWriter
}

// ELFObjectWriter writes relocatable ELF objects
type ELFObjectWriter struct {
	*StreamWriter
	cfg ELFConfig
}

// NewELFObjectWriter creates an ELF writer on top of w
func NewELFObjectWriter(w io.Writer, cfg ELFConfig) *ELFObjectWriter {
	return &ELFObjectWriter{
		StreamWriter: NewStreamWriter(w, cfg.Order),
		cfg:          cfg,
	}
}

// stringTable builds a NUL separated string section
type stringTable struct {
	buf   bytes.Buffer
	index map[string]uint32
}

func newStringTable() *stringTable {
	t := &stringTable{index: map[string]uint32{"": 0}}
	t.buf.WriteByte(0)
	return t
}

func (t *stringTable) add(s string) uint32 {
	if i, ok := t.index[s]; ok {
		return i
	}
	i := uint32(t.buf.Len())
	t.buf.WriteString(s)
	t.buf.WriteByte(0)
	t.index[s] = i
	return i
}

type elfSectionHeader struct {
	name      uint32
	typ       uint32
	flags     uint64
	offset    uint64
	size      uint64
	link      uint32
	info      uint32
	addralign uint64
	entsize   uint64
	data      []byte
}

type elfSymbol struct {
	name  uint32
	info  uint8
	shndx uint16
	value uint64
}

func sectionFlags(name string) uint64 {
	switch {
	case strings.HasPrefix(name, ".text"):
		return shfAlloc | shfExecinstr
	case strings.HasPrefix(name, ".data"), strings.HasPrefix(name, ".bss"):
		return shfAlloc | shfWrite
	default:
		return shfAlloc
	}
}

// encode runs fn against a scratch stream in the object's byte order
func (w *ELFObjectWriter) encode(fn func(s *StreamWriter)) []byte {
	var buf bytes.Buffer
	fn(NewStreamWriter(&buf, w.cfg.Order))
	return buf.Bytes()
}

// WriteObject writes the ELF header, the section contents, one relocation
// section per section with relocations, the symbol table, the string tables
// and finally the section header table
func (w *ELFObjectWriter) WriteObject(obj *Object) error {
	is64 := w.cfg.Is64Bit
	rela := w.cfg.Target.HasRelocationAddend()

	ehsize, shentsize, symentsize, wordAlign := uint64(elf32HeaderSize), uint64(elf32ShdrSize), uint64(elf32SymSize), uint64(4)
	if is64 {
		ehsize, shentsize, symentsize, wordAlign = elf64HeaderSize, elf64ShdrSize, elf64SymSize, 8
	}
	relentsize := 2 * wordAlign
	if rela {
		relentsize = 3 * wordAlign
	}

	shstrtab := newStringTable()
	strtab := newStringTable()

	// Section indices: null, user sections, relocation sections, then the tables
	secIndex := make(map[string]uint16, len(obj.Sections))
	relocsBySection := make(map[string][]Relocation)
	for i, s := range obj.Sections {
		secIndex[s.Name] = uint16(i + 1)
	}
	for _, r := range obj.Relocations {
		if _, ok := secIndex[r.Section]; !ok {
			return fmt.Errorf("relocation against unknown section %s", r.Section)
		}
		relocsBySection[r.Section] = append(relocsBySection[r.Section], r)
	}
	numRelSections := len(relocsBySection)
	symtabIndex := uint32(len(obj.Sections) + numRelSections + 1)

	// Symbols: null, locals, then globals and undefined references
	syms := []elfSymbol{{}}
	symIndex := make(map[string]uint32)
	addSym := func(name string, bind uint8, shndx uint16, value uint64) {
		symIndex[name] = uint32(len(syms))
		syms = append(syms, elfSymbol{
			name:  strtab.add(name),
			info:  bind<<4 | sttNotype,
			shndx: shndx,
			value: value,
		})
	}
	shndxOf := func(s *Symbol) (uint16, error) {
		if s.Section == "" {
			return shnAbs, nil
		}
		idx, ok := secIndex[s.Section]
		if !ok {
			return 0, fmt.Errorf("symbol %s is defined in unknown section %s", s.Name, s.Section)
		}
		return idx, nil
	}
	for _, global := range []bool{false, true} {
		for _, s := range obj.Symbols.Symbols() {
			if s.Global != global {
				continue
			}
			shndx, err := shndxOf(s)
			if err != nil {
				return err
			}
			bind := uint8(stbLocal)
			if global {
				bind = stbGlobal
			}
			addSym(s.Name, bind, shndx, s.Value)
		}
	}
	firstGlobal := uint32(1)
	for _, s := range obj.Symbols.Symbols() {
		if !s.Global {
			firstGlobal++
		}
	}
	for _, r := range obj.Relocations {
		if _, ok := symIndex[r.Symbol]; !ok {
			addSym(r.Symbol, stbGlobal, shnUndef, 0)
		}
	}

	headers := []elfSectionHeader{{}}
	for _, s := range obj.Sections {
		headers = append(headers, elfSectionHeader{
			name:      shstrtab.add(s.Name),
			typ:       shtProgbits,
			flags:     sectionFlags(s.Name),
			size:      uint64(len(s.Data)),
			addralign: max(s.Align, 1),
			data:      s.Data,
		})
	}

	for _, s := range obj.Sections {
		relocs, ok := relocsBySection[s.Name]
		if !ok {
			continue
		}
		var encodeErr error
		data := w.encode(func(sw *StreamWriter) {
			for _, r := range relocs {
				typ, ok := w.cfg.Target.RelocType(r.Kind)
				if !ok {
					encodeErr = fmt.Errorf("%s+0x%x: no relocation type for fixup kind %d", r.Section, r.Offset, r.Kind)
					return
				}
				sym := uint64(symIndex[r.Symbol])
				sw.WriteWord(r.Offset, is64)
				if is64 {
					sw.Write64(sym<<32 | uint64(typ))
				} else {
					sw.Write32(uint32(sym<<8 | uint64(typ&0xff)))
				}
				if rela {
					sw.WriteWord(uint64(r.Addend), is64)
				}
			}
		})
		if encodeErr != nil {
			return encodeErr
		}
		prefix, typ := ".rel", uint32(shtRel)
		if rela {
			prefix, typ = ".rela", shtRela
		}
		headers = append(headers, elfSectionHeader{
			name:      shstrtab.add(prefix + s.Name),
			typ:       typ,
			flags:     shfInfoLink,
			size:      uint64(len(data)),
			link:      symtabIndex,
			info:      uint32(secIndex[s.Name]),
			addralign: wordAlign,
			entsize:   relentsize,
			data:      data,
		})
	}

	symData := w.encode(func(sw *StreamWriter) {
		for _, s := range syms {
			if is64 {
				sw.Write32(s.name)
				sw.Write8(s.info)
				sw.Write8(0)
				sw.Write16(s.shndx)
				sw.Write64(s.value)
				sw.Write64(0)
			} else {
				sw.Write32(s.name)
				sw.Write32(uint32(s.value))
				sw.Write32(0)
				sw.Write8(s.info)
				sw.Write8(0)
				sw.Write16(s.shndx)
			}
		}
	})
	headers = append(headers, elfSectionHeader{
		name:      shstrtab.add(".symtab"),
		typ:       shtSymtab,
		size:      uint64(len(symData)),
		link:      symtabIndex + 1,
		info:      firstGlobal,
		addralign: wordAlign,
		entsize:   symentsize,
		data:      symData,
	})
	headers = append(headers, elfSectionHeader{
		name:      shstrtab.add(".strtab"),
		typ:       shtStrtab,
		size:      uint64(strtab.buf.Len()),
		addralign: 1,
		data:      strtab.buf.Bytes(),
	})
	shstrName := shstrtab.add(".shstrtab")
	headers = append(headers, elfSectionHeader{
		name:      shstrName,
		typ:       shtStrtab,
		size:      uint64(shstrtab.buf.Len()),
		addralign: 1,
		data:      shstrtab.buf.Bytes(),
	})

	// File offsets
	offset := ehsize
	for i := 1; i < len(headers); i++ {
		offset = alignUp(offset, headers[i].addralign)
		headers[i].offset = offset
		offset += headers[i].size
	}
	shoff := alignUp(offset, wordAlign)

	if engine.VerboseMode {
		fmt.Fprintf(os.Stderr, "ELF: %d sections, %d symbols, %d relocation sections, section headers at 0x%x\n",
			len(headers), len(syms), numRelSections, shoff)
	}

	w.writeHeader(shoff, uint16(shentsize), uint16(len(headers)))
	for _, h := range headers[1:] {
		w.PadTo(int64(h.offset))
		w.WriteBytes(h.data)
	}
	w.PadTo(int64(shoff))
	for _, h := range headers {
		w.writeSectionHeader(h)
	}
	return w.Err()
}

func (w *ELFObjectWriter) writeHeader(shoff uint64, shentsize, shnum uint16) {
	class, data, ehsize := byte(1), byte(1), uint16(elf32HeaderSize)
	if w.cfg.Is64Bit {
		class, ehsize = 2, elf64HeaderSize
	}
	if w.cfg.Order == BigEndian {
		data = 2
	}

	w.WriteBytes([]byte{0x7f, 'E', 'L', 'F'})
	w.Write8(class)
	w.Write8(data)
	w.Write8(1) // ELF version
	w.Write8(w.cfg.OSABI)
	w.Write8(0) // ABI version
	w.WriteZeros(7)
	w.Write16(etRel)
	w.Write16(w.cfg.Machine)
	w.Write32(1)                      // ELF version
	w.WriteWord(0, w.cfg.Is64Bit)     // entry
	w.WriteWord(0, w.cfg.Is64Bit)     // program header offset
	w.WriteWord(shoff, w.cfg.Is64Bit) // section header offset
	w.Write32(w.cfg.Flags)
	w.Write16(ehsize)
	w.Write16(0) // program header entry size
	w.Write16(0) // program header count
	w.Write16(shentsize)
	w.Write16(shnum)
	w.Write16(shnum - 1) // .shstrtab is last
}

func (w *ELFObjectWriter) writeSectionHeader(h elfSectionHeader) {
	is64 := w.cfg.Is64Bit
	w.Write32(h.name)
	w.Write32(h.typ)
	w.WriteWord(h.flags, is64)
	w.WriteWord(0, is64) // address
	w.WriteWord(h.offset, is64)
	w.WriteWord(h.size, is64)
	w.Write32(h.link)
	w.Write32(h.info)
	w.WriteWord(h.addralign, is64)
	w.WriteWord(h.entsize, is64)
}
