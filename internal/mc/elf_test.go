package mc

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xyproto/fixup/internal/engine"
)

func writeSample(t *testing.T, arch engine.Arch) (*Assembler, *elf.File) {
	t.Helper()
	a := buildSample(t, arch)
	require.NoError(t, a.Finish(0x1000))

	var buf bytes.Buffer
	require.NoError(t, a.WriteObject(&buf))
	f, err := elf.NewFile(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	return a, f
}

func sectionNames(f *elf.File) []string {
	names := make([]string, len(f.Sections))
	for i, s := range f.Sections {
		names[i] = s.Name
	}
	return names
}

func TestWriteObjectBeforeFinish(t *testing.T) {
	a := buildSample(t, engine.ArchX86_64)
	var buf bytes.Buffer
	assert.Error(t, a.WriteObject(&buf))
	assert.Zero(t, buf.Len())
}

func TestELF64Rela(t *testing.T) {
	a, f := writeSample(t, engine.ArchX86_64)

	assert.Equal(t, elf.ELFCLASS64, f.Class)
	assert.Equal(t, elf.ELFDATA2LSB, f.Data)
	assert.Equal(t, elf.ET_REL, f.Type)
	assert.Equal(t, elf.EM_X86_64, f.Machine)
	assert.Equal(t, []string{"", ".text", ".data", ".rela.data", ".symtab", ".strtab", ".shstrtab"}, sectionNames(f))

	text := f.Section(".text")
	assert.Equal(t, elf.SHF_ALLOC|elf.SHF_EXECINSTR, text.Flags)
	got, err := text.Data()
	require.NoError(t, err)
	want, _ := a.Section(".text")
	assert.Equal(t, want.Data, got)

	data := f.Section(".data")
	assert.Equal(t, elf.SHF_ALLOC|elf.SHF_WRITE, data.Flags)
	assert.Equal(t, uint64(16), data.Addralign)

	syms, err := f.Symbols()
	require.NoError(t, err)
	require.Len(t, syms, 3)
	assert.Equal(t, "start", syms[0].Name)
	assert.Equal(t, elf.STB_LOCAL, elf.ST_BIND(syms[0].Info))
	assert.Equal(t, "msg", syms[1].Name)
	assert.Equal(t, elf.STB_GLOBAL, elf.ST_BIND(syms[1].Info))
	assert.Equal(t, uint64(4), syms[1].Value)
	assert.Equal(t, elf.SectionIndex(2), syms[1].Section)
	assert.Equal(t, "ext", syms[2].Name)
	assert.Equal(t, elf.SHN_UNDEF, syms[2].Section)
	assert.Equal(t, uint32(2), f.Section(".symtab").Info)

	rela := f.Section(".rela.data")
	assert.Equal(t, elf.SHT_RELA, rela.Type)
	assert.Equal(t, uint32(2), rela.Info)
	assert.Equal(t, uint32(4), rela.Link)
	assert.Equal(t, uint64(24), rela.Entsize)
	raw, err := rela.Data()
	require.NoError(t, err)
	require.Len(t, raw, 24)
	info := binary.LittleEndian.Uint64(raw[8:16])
	assert.Equal(t, uint64(2), binary.LittleEndian.Uint64(raw[0:8]))
	assert.Equal(t, uint64(3), info>>32) // ext
	assert.Equal(t, uint64(3), info&0xffffffff)
	assert.Equal(t, int64(8), int64(binary.LittleEndian.Uint64(raw[16:24])))
}

func TestELF32Rel(t *testing.T) {
	_, f := writeSample(t, engine.ArchX86)

	assert.Equal(t, elf.ELFCLASS32, f.Class)
	assert.Equal(t, elf.EM_386, f.Machine)
	assert.Equal(t, []string{"", ".text", ".data", ".rel.data", ".symtab", ".strtab", ".shstrtab"}, sectionNames(f))

	rel := f.Section(".rel.data")
	assert.Equal(t, elf.SHT_REL, rel.Type)
	raw, err := rel.Data()
	require.NoError(t, err)
	require.Len(t, raw, 8)
	info := binary.LittleEndian.Uint32(raw[4:8])
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(raw[0:4]))
	assert.Equal(t, uint32(3), info>>8)
	assert.Equal(t, uint32(3), info&0xff)

	syms, err := f.Symbols()
	require.NoError(t, err)
	assert.Len(t, syms, 3)
}

func TestELFBigEndian(t *testing.T) {
	_, f := writeSample(t, engine.ArchS390x)

	assert.Equal(t, elf.ELFDATA2MSB, f.Data)
	assert.Equal(t, elf.EM_S390, f.Machine)
	text, err := f.Section(".text").Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0x14, 0, 0, 0x40, 0x00}, text)

	raw, err := f.Section(".rela.data").Data()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), binary.BigEndian.Uint64(raw[0:8]))
}

func TestELFNoRelocations(t *testing.T) {
	a := NewAssembler(newFakeBackend(engine.ArchX86_64, Options{}), nil)
	require.NoError(t, a.AddSection(&Section{Name: ".rodata", Data: []byte("hi")}))
	require.NoError(t, a.Finish(0))

	var buf bytes.Buffer
	require.NoError(t, a.WriteObject(&buf))
	f, err := elf.NewFile(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []string{"", ".rodata", ".symtab", ".strtab", ".shstrtab"}, sectionNames(f))
	assert.Equal(t, elf.SHF_ALLOC, f.Section(".rodata").Flags)

	syms, err := f.Symbols()
	require.NoError(t, err)
	assert.Empty(t, syms)
}
