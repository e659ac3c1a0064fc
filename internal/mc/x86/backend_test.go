package x86

import (
	"debug/elf"
	"math"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"

	"github.com/xyproto/fixup/internal/engine"
	"github.com/xyproto/fixup/internal/mc"
)

func newBackend(t *testing.T, arch engine.Arch, opts mc.Options) *Backend {
	b, err := NewBackend(engine.NewTarget(arch, engine.OSLinux), opts)
	require.NoError(t, err)
	return b
}

func TestCallRel32Decodes(t *testing.T) {
	b := newBackend(t, engine.ArchX86_64, mc.Options{})
	f := gofakeit.New(3)
	for i := 0; i < 100; i++ {
		v := int64(f.Number(math.MinInt32, math.MaxInt32))
		code := []byte{0xe8, 0, 0, 0, 0} // call rel32
		require.NoError(t, b.ApplyFixup(mc.Fixup{Offset: 1, Kind: FixupBranch4PCRel}, mc.ValueOf(v), code))

		inst, err := x86asm.Decode(code, 64)
		require.NoError(t, err)
		assert.Equal(t, x86asm.CALL, inst.Op)
		assert.Equal(t, x86asm.Rel(v), inst.Args[0])

		got, ok, err := b.DecodeFixup(mc.Fixup{Offset: 1, Kind: FixupBranch4PCRel}, code)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, v, got)
	}
}

func TestShortJumpRel8(t *testing.T) {
	b := newBackend(t, engine.ArchX86_64, mc.Options{})

	code := []byte{0xeb, 0x00} // jmp rel8
	require.NoError(t, b.ApplyFixup(mc.Fixup{Offset: 1, Kind: mc.KindPCRel1}, mc.ValueOf(-2), code))
	inst, err := x86asm.Decode(code, 64)
	require.NoError(t, err)
	assert.Equal(t, x86asm.JMP, inst.Op)
	assert.Equal(t, x86asm.Rel(-2), inst.Args[0])

	err = b.ApplyFixup(mc.Fixup{Offset: 1, Kind: mc.KindPCRel1}, mc.ValueOf(128), []byte{0xeb, 0x00})
	assert.ErrorIs(t, err, mc.ErrFixupOutOfRange)
	assert.Equal(t, mc.CodeFixupOutOfRange, mc.ErrorCode(err))
}

func TestRIPRelativeLea(t *testing.T) {
	b := newBackend(t, engine.ArchX86_64, mc.Options{})
	code := []byte{0x48, 0x8d, 0x05, 0, 0, 0, 0} // lea rax, [rip+disp32]
	require.NoError(t, b.ApplyFixup(mc.Fixup{Offset: 3, Kind: FixupRIPRel4}, mc.ValueOf(0x1234), code))

	inst, err := x86asm.Decode(code, 64)
	require.NoError(t, err)
	assert.Equal(t, x86asm.LEA, inst.Op)
	mem, ok := inst.Args[1].(x86asm.Mem)
	require.True(t, ok)
	assert.Equal(t, x86asm.RIP, mem.Base)
	assert.Equal(t, int64(0x1234), mem.Disp)
}

func TestSigned4Range(t *testing.T) {
	b := newBackend(t, engine.ArchX86_64, mc.Options{})
	require.NoError(t, b.ApplyFixup(mc.Fixup{Kind: FixupSigned4}, mc.ValueOf(math.MinInt32), make([]byte, 4)))
	err := b.ApplyFixup(mc.Fixup{Kind: FixupSigned4}, mc.ValueOf(math.MaxInt32+1), make([]byte, 4))
	assert.ErrorIs(t, err, mc.ErrFixupOutOfRange)

	// the GOT offset is stored as is
	data := make([]byte, 4)
	require.NoError(t, b.ApplyFixup(mc.Fixup{Kind: FixupGlobalOffsetTable}, mc.ValueOf(0xffffffff), data))
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, data)
}

func TestAbortModeLeavesBuffer(t *testing.T) {
	b := newBackend(t, engine.ArchX86_64, mc.Options{Mode: mc.ModeAbort})
	code := []byte{0xe9, 0xaa, 0xbb, 0xcc, 0xdd}
	err := b.ApplyFixup(mc.Fixup{Offset: 1, Kind: FixupBranch4PCRel}, mc.ValueOf(1<<40), code)
	require.ErrorIs(t, err, mc.ErrFixupOutOfRange)
	assert.Equal(t, []byte{0xe9, 0xaa, 0xbb, 0xcc, 0xdd}, code)
}

func TestEveryNopDecodes(t *testing.T) {
	for n := 1; n <= maxNopLength; n++ {
		for _, mode := range []int{32, 64} {
			inst, err := x86asm.Decode(nops[n-1], mode)
			require.NoError(t, err, "%d byte nop", n)
			assert.Equal(t, x86asm.NOP, inst.Op, "%d byte nop", n)
			assert.Equal(t, n, inst.Len, "%d byte nop", n)
		}
	}
}

// decodeNops walks a padding run and returns the length of each nop
func decodeNops(t *testing.T, code []byte, mode int) []int {
	t.Helper()
	var lens []int
	for len(code) > 0 {
		inst, err := x86asm.Decode(code, mode)
		require.NoError(t, err)
		require.Equal(t, x86asm.NOP, inst.Op)
		lens = append(lens, inst.Len)
		code = code[inst.Len:]
	}
	return lens
}

func TestWriteNopGreedy(t *testing.T) {
	b := newBackend(t, engine.ArchX86_64, mc.Options{})
	assert.True(t, b.LongNops())

	frag := mc.NewFragment("pad")
	require.NoError(t, b.WriteNop(25, b.CreateObjectWriter(frag)))
	assert.Len(t, frag.Bytes(), 25)
	assert.Equal(t, []int{10, 10, 5}, decodeNops(t, frag.Bytes(), 64))

	frag = mc.NewFragment("pad")
	require.NoError(t, b.WriteNop(0, b.CreateObjectWriter(frag)))
	assert.Empty(t, frag.Bytes())
}

func TestI386Nops(t *testing.T) {
	b := newBackend(t, engine.ArchX86, mc.Options{})
	assert.False(t, b.LongNops())

	frag := mc.NewFragment("pad")
	require.NoError(t, b.WriteNop(3, b.CreateObjectWriter(frag)))
	assert.Equal(t, []byte{0x90, 0x90, 0x90}, frag.Bytes())

	b.SetLongNops(true)
	frag = mc.NewFragment("pad")
	require.NoError(t, b.WriteNop(7, b.CreateObjectWriter(frag)))
	assert.Equal(t, []int{7}, decodeNops(t, frag.Bytes(), 32))
}

func TestRelocTypes(t *testing.T) {
	b64 := newBackend(t, engine.ArchX86_64, mc.Options{})
	assert.True(t, b64.HasRelocationAddend())
	r, ok := b64.RelocType(FixupBranch4PCRel)
	require.True(t, ok)
	assert.Equal(t, uint32(elf.R_X86_64_PLT32), r)
	r, ok = b64.RelocType(FixupRIPRel4)
	require.True(t, ok)
	assert.Equal(t, uint32(elf.R_X86_64_PC32), r)

	b32 := newBackend(t, engine.ArchX86, mc.Options{})
	assert.False(t, b32.HasRelocationAddend())
	r, ok = b32.RelocType(FixupBranch4PCRel)
	require.True(t, ok)
	assert.Equal(t, uint32(elf.R_386_PC32), r)
	_, ok = b32.RelocType(FixupRIPRel4)
	assert.False(t, ok)
	_, ok = b32.RelocType(mc.KindData8)
	assert.False(t, ok)
}

func TestRejectsOtherArchitectures(t *testing.T) {
	_, err := NewBackend(engine.NewTarget(engine.ArchARM64, engine.OSLinux), mc.Options{})
	assert.Error(t, err)
}
