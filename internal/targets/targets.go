// Completion: 100% - Backend registry complete
package targets

import (
	"fmt"
	"slices"

	"github.com/xyproto/fixup/internal/engine"
	"github.com/xyproto/fixup/internal/mc"
	"github.com/xyproto/fixup/internal/mc/aarch64"
	"github.com/xyproto/fixup/internal/mc/riscv"
	"github.com/xyproto/fixup/internal/mc/systemz"
	"github.com/xyproto/fixup/internal/mc/x86"
)

// Constructor creates a backend for a target
type Constructor func(target engine.Target, opts mc.Options) (mc.Backend, error)

// registry maps every supported architecture to its backend. It is filled
// once here and never written afterwards.
var registry = map[engine.Arch]Constructor{
	engine.ArchX86:     newX86,
	engine.ArchX86_64:  newX86,
	engine.ArchARM64:   newAArch64,
	engine.ArchARM64BE: newAArch64,
	engine.ArchRiscv32: newRISCV,
	engine.ArchRiscv64: newRISCV,
	engine.ArchS390x:   newSystemZ,
}

func newX86(target engine.Target, opts mc.Options) (mc.Backend, error) {
	b, err := x86.NewBackend(target, opts)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func newAArch64(target engine.Target, opts mc.Options) (mc.Backend, error) {
	b, err := aarch64.NewBackend(target, opts)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func newRISCV(target engine.Target, opts mc.Options) (mc.Backend, error) {
	b, err := riscv.NewBackend(target, opts)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func newSystemZ(target engine.Target, opts mc.Options) (mc.Backend, error) {
	b, err := systemz.NewBackend(target, opts)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// New creates the backend for the given target. Only ELF targets are
// supported, since ELF is the only object format written.
func New(target engine.Target, opts mc.Options) (mc.Backend, error) {
	ctor, ok := registry[target.Arch()]
	if !ok {
		return nil, fmt.Errorf("no backend for architecture %s", target.Arch())
	}
	if !target.IsELF() {
		return nil, fmt.Errorf("%s: only ELF object files are supported", target.FullString())
	}
	return ctor(target, opts)
}

// Parse creates a backend from a target string such as "riscv64-linux"
func Parse(s string, opts mc.Options) (mc.Backend, error) {
	p, err := engine.ParsePlatform(s)
	if err != nil {
		return nil, err
	}
	return New(engine.PlatformToTarget(p), opts)
}

// Supported returns every architecture with a backend, in a stable order
func Supported() []engine.Arch {
	archs := make([]engine.Arch, 0, len(registry))
	for arch := range registry {
		archs = append(archs, arch)
	}
	slices.Sort(archs)
	return archs
}
