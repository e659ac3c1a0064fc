package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xyproto/fixup/internal/mc"
	"github.com/xyproto/fixup/internal/targets"
)

const sampleJob = `
target: riscv64-linux
base: 0x8000
mode: abort
sections:
  - name: .text
    align: 4
    hex: "13 00 00 00  6f 00 00 00"
    fixups:
      - {offset: 4, kind: riscv_jal, symbol: loop, line: 9}
      - {offset: 0, kind: data_4, value: -1}
symbols:
  - {name: loop, section: .text, global: true}
  - {name: abs, value: 0x1234}
`

func TestParseJob(t *testing.T) {
	job, err := ParseJob([]byte(sampleJob), "sample.yaml")
	require.NoError(t, err)

	assert.Equal(t, "sample.yaml", job.Path())
	assert.Equal(t, "riscv64-linux", job.Target)
	assert.Equal(t, uint64(0x8000), job.Base)
	assert.Equal(t, "abort", job.Mode)
	assert.Nil(t, job.LongNops)
	require.Len(t, job.Sections, 1)
	assert.Equal(t, uint64(4), job.Sections[0].Align)
	require.Len(t, job.Sections[0].Fixups, 2)
	assert.Equal(t, "riscv_jal", job.Sections[0].Fixups[0].Kind)
	require.NotNil(t, job.Sections[0].Fixups[1].Value)
	assert.Equal(t, int64(-1), *job.Sections[0].Fixups[1].Value)
	require.Len(t, job.Symbols, 2)
	assert.True(t, job.Symbols[0].Global)
	assert.Equal(t, uint64(0x1234), job.Symbols[1].Value)
}

func TestParseJobErrors(t *testing.T) {
	_, err := ParseJob([]byte("target: x86_64-linux\nsectons: []\n"), "typo.yaml")
	assert.ErrorContains(t, err, "typo.yaml")

	_, err = ParseJob([]byte("target: x86_64-linux\n"), "empty.yaml")
	assert.ErrorContains(t, err, "no sections")

	_, err = LoadJob("testdata/does-not-exist.yaml")
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want mc.Mode
		ok   bool
	}{
		{"", mc.ModeContinue, true},
		{"continue", mc.ModeContinue, true},
		{"Abort", mc.ModeAbort, true},
		{"panic", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestDecodeHex(t *testing.T) {
	got, err := decodeHex("de ad\n\tbe ef")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, got)

	_, err = decodeHex("abc")
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	job, err := ParseJob([]byte(sampleJob), "sample.yaml")
	require.NoError(t, err)
	b, err := targets.Parse(job.Target, mc.Options{})
	require.NoError(t, err)

	a := mc.NewAssembler(b, nil)
	require.NoError(t, job.Build(a))

	text, ok := a.Section(".text")
	require.True(t, ok)
	assert.Equal(t, []byte{0x13, 0, 0, 0, 0x6f, 0, 0, 0}, text.Data)
	require.Len(t, text.Fixups, 2)

	jal := text.Fixups[0]
	assert.Equal(t, "riscv_jal", b.KindInfo(jal.Kind).Name)
	assert.Equal(t, "loop", jal.Symbol)
	assert.Equal(t, "sample.yaml:9", jal.Loc.String())

	data := text.Fixups[1]
	assert.Equal(t, mc.KindData4, data.Kind)
	assert.Empty(t, data.Symbol)
	assert.Equal(t, int64(-1), data.Addend)

	assert.Equal(t, 2, a.Symbols().Len())
}

func TestBuildUnknownKind(t *testing.T) {
	job, err := LoadJob("testdata/bad_kind.yaml")
	require.NoError(t, err)
	b, err := targets.Parse(job.Target, mc.Options{})
	require.NoError(t, err)

	err = job.Build(mc.NewAssembler(b, nil))
	require.ErrorIs(t, err, mc.ErrUnknownKindName)
	assert.Contains(t, err.Error(), "testdata/bad_kind.yaml:1")
	assert.Contains(t, err.Error(), "did you mean aarch64_pcrel_call26")
	assert.Equal(t, mc.CodeUnknownKind, mc.ErrorCode(err))
}

func TestBuildRejectsValueWithSymbol(t *testing.T) {
	job, err := ParseJob([]byte(`
sections:
  - name: .data
    hex: "00000000"
    fixups:
      - {kind: data_4, symbol: x, value: 3}
`), "both.yaml")
	require.NoError(t, err)
	b, err := targets.Parse("x86_64-linux", mc.Options{})
	require.NoError(t, err)
	assert.ErrorContains(t, job.Build(mc.NewAssembler(b, nil)), "either a value or a symbol")
}

func TestBuildRejectsBadModifier(t *testing.T) {
	job, err := ParseJob([]byte(`
sections:
  - name: .text
    hex: "00000091"
    fixups:
      - {kind: aarch64_add_imm12, symbol: x, modifier: hi20}
`), "mod.yaml")
	require.NoError(t, err)
	b, err := targets.Parse("aarch64-linux", mc.Options{})
	require.NoError(t, err)
	assert.ErrorContains(t, job.Build(mc.NewAssembler(b, nil)), "unknown modifier")
}
