// Completion: 100% - Target descriptor parsing complete
package engine

import (
	"fmt"
	"runtime"
	"strings"
)

// Architecture type
type Arch int

const (
	ArchUnknown Arch = iota
	ArchX86
	ArchX86_64
	ArchARM64
	ArchARM64BE
	ArchRiscv32
	ArchRiscv64
	ArchS390x
)

func (a Arch) String() string {
	switch a {
	case ArchX86:
		return "i386"
	case ArchX86_64:
		return "x86_64"
	case ArchARM64:
		return "aarch64"
	case ArchARM64BE:
		return "aarch64_be"
	case ArchRiscv32:
		return "riscv32"
	case ArchRiscv64:
		return "riscv64"
	case ArchS390x:
		return "s390x"
	default:
		return "unknown"
	}
}

// ParseArch parses an architecture string (like GOARCH values or triple prefixes)
func ParseArch(s string) (Arch, error) {
	switch strings.ToLower(s) {
	case "i386", "i486", "i586", "i686", "x86", "386":
		return ArchX86, nil
	case "x86_64", "amd64", "x86-64":
		return ArchX86_64, nil
	case "aarch64", "arm64":
		return ArchARM64, nil
	case "aarch64_be", "arm64be", "arm64_be":
		return ArchARM64BE, nil
	case "riscv32", "rv32":
		return ArchRiscv32, nil
	case "riscv64", "riscv", "rv64":
		return ArchRiscv64, nil
	case "s390x", "systemz":
		return ArchS390x, nil
	default:
		return 0, fmt.Errorf("unsupported architecture: %s (supported: i386, amd64, arm64, arm64be, riscv32, riscv64, s390x)", s)
	}
}

// OS type
type OS int

const (
	OSLinux OS = iota
	OSDarwin
	OSFreeBSD
	OSWindows
	OSNetBSD
	OSOpenBSD
	OSNone
	OSSolaris
)

func (o OS) String() string {
	switch o {
	case OSLinux:
		return "linux"
	case OSDarwin:
		return "darwin"
	case OSFreeBSD:
		return "freebsd"
	case OSWindows:
		return "windows"
	case OSNetBSD:
		return "netbsd"
	case OSOpenBSD:
		return "openbsd"
	case OSNone:
		return "none"
	case OSSolaris:
		return "solaris"
	default:
		return "unknown"
	}
}

// ParseOS parses an OS string (like GOOS values)
func ParseOS(s string) (OS, error) {
	switch strings.ToLower(s) {
	case "linux", "gnu":
		return OSLinux, nil
	case "darwin", "macos":
		return OSDarwin, nil
	case "freebsd":
		return OSFreeBSD, nil
	case "windows", "win", "wine":
		return OSWindows, nil
	case "netbsd":
		return OSNetBSD, nil
	case "openbsd":
		return OSOpenBSD, nil
	case "solaris", "illumos":
		return OSSolaris, nil
	case "none", "elf", "unknown":
		return OSNone, nil
	default:
		return 0, fmt.Errorf("unsupported OS: %s (supported: linux, darwin, freebsd, netbsd, openbsd, solaris, windows, none)", s)
	}
}

// Platform represents a target platform (architecture + OS)
type Platform struct {
	Arch Arch
	OS   OS
}

// String returns a human-readable platform string
func (p Platform) String() string {
	return fmt.Sprintf("%s-%s", p.Arch, p.OS)
}

// FullString returns a detailed platform string
func (p Platform) FullString() string {
	return fmt.Sprintf("%s on %s", p.Arch, p.OS)
}

// DefaultPlatform returns the platform for the current runtime
func DefaultPlatform() Platform {
	var arch Arch
	switch runtime.GOARCH {
	case "386":
		arch = ArchX86
	case "amd64":
		arch = ArchX86_64
	case "arm64":
		arch = ArchARM64
	case "riscv64":
		arch = ArchRiscv64
	case "s390x":
		arch = ArchS390x
	default:
		arch = fallbackArch()
	}

	var os OS
	switch runtime.GOOS {
	case "linux":
		os = OSLinux
	case "darwin":
		os = OSDarwin
	case "freebsd":
		os = OSFreeBSD
	case "netbsd":
		os = OSNetBSD
	case "openbsd":
		os = OSOpenBSD
	case "solaris", "illumos":
		os = OSSolaris
	case "windows":
		os = OSWindows
	default:
		os = OSLinux // fallback
	}

	return Platform{Arch: arch, OS: os}
}

// ParsePlatform accepts "arch", "arch-os" or a triple such as
// "riscv64-unknown-linux-gnu" (the vendor field is skipped)
func ParsePlatform(s string) (Platform, error) {
	parts := strings.Split(s, "-")
	arch, err := ParseArch(parts[0])
	if err != nil {
		return Platform{}, err
	}

	var os OS
	switch len(parts) {
	case 1:
		os = DefaultPlatform().OS
	case 2:
		os, err = ParseOS(parts[1])
	default:
		os, err = ParseOS(parts[2])
	}
	if err != nil {
		return Platform{}, err
	}

	return Platform{Arch: arch, OS: os}, nil
}
