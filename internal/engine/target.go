// Completion: 100% - Target descriptor complete
package engine

import "golang.org/x/sys/cpu"

// Target represents an assembly target (architecture + OS)
//
// The OS only matters to the object file: it picks the ELF OS/ABI byte.
// Fixup encoding itself depends on the architecture and the word size.
type Target interface {
	Arch() Arch
	OS() OS

	String() string     // Returns arch string (e.g., "aarch64")
	FullString() string // Returns full target string (e.g., "aarch64-linux")

	Is64Bit() bool
	IsLittleEndian() bool
	IsELF() bool

	// OSABI is the e_ident[EI_OSABI] byte for ELF objects
	OSABI() uint8
	// ELFMachine is the e_machine value for ELF objects
	ELFMachine() uint16
}

// TargetImpl is the concrete implementation of Target
type TargetImpl struct {
	arch Arch
	os   OS
}

// NewTarget creates a new Target instance for the given architecture and OS
func NewTarget(arch Arch, os OS) Target {
	return &TargetImpl{
		arch: arch,
		os:   os,
	}
}

// PlatformToTarget converts a Platform struct to a Target interface
func PlatformToTarget(p Platform) Target {
	return NewTarget(p.Arch, p.OS)
}

// Arch returns the architecture
func (t *TargetImpl) Arch() Arch {
	return t.arch
}

// OS returns the operating system
func (t *TargetImpl) OS() OS {
	return t.os
}

// String returns the architecture name
func (t *TargetImpl) String() string {
	return t.arch.String()
}

// FullString returns the full target string like "riscv64-linux"
func (t *TargetImpl) FullString() string {
	return t.arch.String() + "-" + t.os.String()
}

// Is64Bit returns true for targets with 64-bit addresses
func (t *TargetImpl) Is64Bit() bool {
	switch t.arch {
	case ArchX86, ArchRiscv32:
		return false
	default:
		return true
	}
}

// IsLittleEndian returns true unless the target stores data big-endian
func (t *TargetImpl) IsLittleEndian() bool {
	return t.arch != ArchS390x && t.arch != ArchARM64BE
}

// IsELF returns true if this target uses ELF format
func (t *TargetImpl) IsELF() bool {
	return t.os != OSDarwin && t.os != OSWindows
}

// OSABI returns ELFOSABI_FREEBSD for FreeBSD and ELFOSABI_NONE otherwise
func (t *TargetImpl) OSABI() uint8 {
	if t.os == OSFreeBSD {
		return 9
	}
	return 0
}

// ELFMachine returns the ELF machine type
func (t *TargetImpl) ELFMachine() uint16 {
	return GetELFMachineType(t.arch)
}

// GetELFMachineType returns the ELF machine type constant for a given architecture
func GetELFMachineType(arch Arch) uint16 {
	switch arch {
	case ArchX86:
		return 0x03 // Intel 80386
	case ArchX86_64:
		return 0x3e // AMD x86-64
	case ArchARM64, ArchARM64BE:
		return 0xB7 // ARM64
	case ArchRiscv32, ArchRiscv64:
		return 0xF3 // RISC-V
	case ArchS390x:
		return 0x16 // IBM S/390
	default:
		return 0
	}
}

// GetDefaultTarget returns the target for the current runtime
func GetDefaultTarget() Target {
	return PlatformToTarget(DefaultPlatform())
}

// fallbackArch picks a supported architecture with the host's byte order
// when GOARCH has no backend
func fallbackArch() Arch {
	if cpu.IsBigEndian {
		return ArchS390x
	}
	return ArchX86_64
}
