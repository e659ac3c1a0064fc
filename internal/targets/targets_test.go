package targets

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"

	"github.com/xyproto/fixup/internal/engine"
	"github.com/xyproto/fixup/internal/mc"
	"github.com/xyproto/fixup/internal/mc/aarch64"
	"github.com/xyproto/fixup/internal/mc/riscv"
	"github.com/xyproto/fixup/internal/mc/systemz"
	"github.com/xyproto/fixup/internal/mc/x86"
)

func le32(ws ...uint32) []byte {
	b := make([]byte, 4*len(ws))
	for i, w := range ws {
		binary.LittleEndian.PutUint32(b[4*i:], w)
	}
	return b
}

// assemble runs one .text section at base through the driver
func assemble(t *testing.T, target string, base uint64, code []byte, fixups []mc.Fixup, syms ...mc.Symbol) []byte {
	t.Helper()
	b, err := Parse(target, mc.Options{})
	require.NoError(t, err)
	a := mc.NewAssembler(b, nil)
	require.NoError(t, a.AddSection(&mc.Section{Name: ".text", Data: code, Fixups: fixups}))
	for _, s := range syms {
		require.NoError(t, a.Symbols().Define(s))
	}
	require.NoError(t, a.Finish(base))
	require.Empty(t, a.Relocations())
	text, _ := a.Section(".text")
	return text.Data
}

func TestSupported(t *testing.T) {
	archs := Supported()
	assert.Len(t, archs, 7)
	assert.Equal(t, engine.ArchX86, archs[0])
	for _, arch := range archs {
		b, err := New(engine.NewTarget(arch, engine.OSLinux), mc.Options{})
		require.NoError(t, err, arch.String())
		assert.Equal(t, arch.String(), b.Name())
		_, ok := b.(mc.Decoder)
		assert.True(t, ok, "%s backend decodes fixups", arch)
		_, ok = b.(mc.ELFTargetWriter)
		assert.True(t, ok, "%s backend writes ELF", arch)
	}
}

func TestRejectsNonELF(t *testing.T) {
	_, err := New(engine.NewTarget(engine.ArchARM64, engine.OSDarwin), mc.Options{})
	assert.Error(t, err)
	_, err = Parse("x86_64-windows", mc.Options{})
	assert.Error(t, err)
	_, err = Parse("sparc64-linux", mc.Options{})
	assert.Error(t, err)
	_, err = New(engine.NewTarget(engine.ArchUnknown, engine.OSLinux), mc.Options{})
	assert.Error(t, err)
}

func TestParseTriple(t *testing.T) {
	b, err := Parse("riscv64-unknown-linux-gnu", mc.Options{Mode: mc.ModeAbort})
	require.NoError(t, err)
	assert.Equal(t, "riscv64", b.Name())
	assert.Equal(t, mc.ModeAbort, b.Options().Mode)
	assert.IsType(t, &riscv.Backend{}, b)

	b, err = Parse("aarch64_be-none", mc.Options{})
	require.NoError(t, err)
	assert.False(t, b.Target().IsLittleEndian())
}

// Every kind name maps back to the same kind, and every field fits its
// instruction word
func TestKindTables(t *testing.T) {
	for _, arch := range Supported() {
		b, err := New(engine.NewTarget(arch, engine.OSLinux), mc.Options{})
		require.NoError(t, err)
		for _, k := range mc.AllKinds(b) {
			info := b.KindInfo(k)
			got, ok := b.KindByName(info.Name)
			require.True(t, ok, info.Name)
			assert.Equal(t, k, got, info.Name)
			limit := uint(64)
			if k.IsTargetKind() {
				limit = 32
			}
			assert.LessOrEqual(t, info.TargetOffset+info.TargetSize, limit, info.Name)
		}
	}
}

func TestRelocationPatchingARM64(t *testing.T) {
	// adrp x0, sym; add x0, x0, :lo12:sym
	text := assemble(t, "aarch64-linux", 0x402000,
		le32(0x90000000, 0x91000000),
		[]mc.Fixup{
			{Offset: 0, Kind: aarch64.FixupAdrpImm21, Symbol: "sym"},
			{Offset: 4, Kind: aarch64.FixupAddImm12, Symbol: "sym", Modifier: mc.ModLo12},
		},
		mc.Symbol{Name: "sym", Value: 0x404123})

	inst, err := arm64asm.Decode(text[0:4])
	require.NoError(t, err)
	assert.Equal(t, arm64asm.ADRP, inst.Op)
	assert.Equal(t, arm64asm.PCRel(0x2000), inst.Args[1])

	add := binary.LittleEndian.Uint32(text[4:8])
	assert.Equal(t, uint32(0x123), (add>>10)&0xfff)
}

func TestRelocationPatchingRISCV(t *testing.T) {
	// auipc a0, %pcrel_hi(sym); addi a0, a0, %lo(sym)
	text := assemble(t, "riscv64-linux", 0x10000,
		le32(0x00000517, 0x00050513),
		[]mc.Fixup{
			{Offset: 0, Kind: riscv.FixupPCRelHi20, Symbol: "sym"},
			{Offset: 4, Kind: riscv.FixupLo12I, Symbol: "sym", Modifier: mc.ModLo12},
		},
		mc.Symbol{Name: "sym", Value: 0x12945})

	auipc := binary.LittleEndian.Uint32(text[0:4])
	addi := binary.LittleEndian.Uint32(text[4:8])
	assert.Equal(t, uint32(0x00003517), auipc)
	assert.Equal(t, uint32(0x94550513), addi)

	// the pair rebuilds the distance, with the low part sign extended
	hi := int64(auipc >> 12 << 12)
	lo := mc.SignExtend(uint64(addi>>20), 12)
	assert.Equal(t, int64(0x2945), hi+lo)
}

func TestRelocationPatchingX86(t *testing.T) {
	// lea rdi, [rip+sym]; the displacement is relative to the next instruction
	text := assemble(t, "x86_64-linux", 0x402000,
		[]byte{0x48, 0x8d, 0x3d, 0, 0, 0, 0},
		[]mc.Fixup{{Offset: 3, Kind: x86.FixupRIPRel4, Symbol: "sym", Addend: -4}},
		mc.Symbol{Name: "sym", Value: 0x404000})

	inst, err := x86asm.Decode(text, 64)
	require.NoError(t, err)
	mem, ok := inst.Args[1].(x86asm.Mem)
	require.True(t, ok)
	assert.Equal(t, int64(0x404000-0x402007), mem.Disp)
}

func TestRelocationPatchingSystemZ(t *testing.T) {
	// brasl %r14, sym; the offset counts halfwords from the instruction start
	text := assemble(t, "s390x-linux", 0x1000,
		[]byte{0xc0, 0xe5, 0, 0, 0, 0},
		[]mc.Fixup{{Offset: 2, Kind: systemz.FixupPC32DBL, Symbol: "sym", Addend: 2}},
		mc.Symbol{Name: "sym", Value: 0x1100})

	assert.Equal(t, []byte{0xc0, 0xe5, 0x00, 0x00, 0x00, 0x80}, text)
}

func TestUndefinedSymbolBecomesRelocation(t *testing.T) {
	b, err := Parse("riscv64-linux", mc.Options{})
	require.NoError(t, err)
	a := mc.NewAssembler(b, nil)
	require.NoError(t, a.AddSection(&mc.Section{
		Name:   ".text",
		Data:   le32(0x0000006f), // jal x0, .
		Fixups: []mc.Fixup{{Kind: riscv.FixupJAL, Symbol: "far_away"}},
	}))
	require.NoError(t, a.Finish(0))
	require.Len(t, a.Relocations(), 1)
	assert.Equal(t, "far_away", a.Relocations()[0].Symbol)

	text, _ := a.Section(".text")
	assert.Equal(t, le32(0x0000006f), text.Data)
}
