// Completion: 100% - CLI interface complete
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/xyproto/fixup/internal/engine"
	"github.com/xyproto/fixup/internal/mc"
	"github.com/xyproto/fixup/internal/targets"
)

// cli.go - command-line interface for fixup
//
// Subcommands:
// - fixup apply <job.yaml> (lay out, resolve and patch, print or write ELF)
// - fixup kinds (list the fixup kinds of the target)
// - fixup nop <count> (print the nop padding for count bytes)
// - fixup targets (list the supported targets)

// CommandContext holds the execution context for a CLI command
type CommandContext struct {
	Args         []string
	Target       string // empty means the job's target, then FIXUP_TARGET, then the host
	OutputPath   string
	Verbose      bool
	Embed        bool // abort on the first error and exit with its numeric code
	Hex          bool // print the patched bytes even when writing an object
	Verify       bool // decode every patched field and compare it to the resolved value
	StrictBounds bool
	MaxErrors    int
	Color        bool
	Stdout       io.Writer
	Stderr       io.Writer
}

// ExitCodeError is returned when a job fails in embed mode. main exits
// with Code instead of printing the error.
type ExitCodeError struct {
	Code mc.Code
	Err  error
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("%v (%s)", e.Err, e.Code)
}

func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

// RunCLI is the main entry point for the command line.
// It determines which command to run based on arguments.
func RunCLI(ctx *CommandContext) error {
	if ctx.Stdout == nil {
		ctx.Stdout = os.Stdout
	}
	if ctx.Stderr == nil {
		ctx.Stderr = os.Stderr
	}
	args := ctx.Args
	if len(args) == 0 {
		return cmdHelp(ctx)
	}

	switch args[0] {
	case "apply":
		if len(args) < 2 {
			return fmt.Errorf("usage: fixup apply <job.yaml> [-o output.o]")
		}
		return cmdApply(ctx, args[1:])
	case "kinds":
		return cmdKinds(ctx)
	case "nop":
		if len(args) != 2 {
			return fmt.Errorf("usage: fixup nop <count>")
		}
		return cmdNop(ctx, args[1])
	case "targets":
		return cmdTargets(ctx)
	case "help", "--help", "-h":
		return cmdHelp(ctx)
	case "version", "--version", "-V":
		fmt.Fprintln(ctx.Stdout, versionString)
		return nil
	default:
		// A job file on its own is shorthand for apply
		if strings.HasSuffix(args[0], ".yaml") || strings.HasSuffix(args[0], ".yml") {
			return cmdApply(ctx, args)
		}
		commands := []string{"apply", "kinds", "nop", "targets", "help", "version"}
		msg := fmt.Sprintf("unknown command: %s", args[0])
		if hint := engine.DidYouMean(args[0], commands); hint != "" {
			msg += ", " + hint
		}
		return fmt.Errorf("%s\n\nRun 'fixup help' for usage information", msg)
	}
}

// options returns the backend options for the context
func (ctx *CommandContext) options(mode mc.Mode) mc.Options {
	opts := mc.Options{Mode: mode}
	if ctx.Embed {
		opts.Mode = mc.ModeAbort
	}
	if ctx.StrictBounds {
		opts.Bounds = mc.BoundsPanic
	}
	return opts
}

// backend creates the backend for the first target that is set
func (ctx *CommandContext) backend(jobTarget string, opts mc.Options) (mc.Backend, error) {
	target := ctx.Target
	if target == "" {
		target = jobTarget
	}
	if target == "" {
		target = engine.DefaultPlatform().String()
	}
	b, err := targets.Parse(target, opts)
	if err != nil {
		return nil, err
	}
	if ctx.Verbose {
		fmt.Fprintf(ctx.Stderr, "Target: %s\n", b.Target().FullString())
	}
	return b, nil
}

// cmdApply runs a job file through the assembler
func cmdApply(ctx *CommandContext, args []string) error {
	jobPath := ""
	outputPath := ctx.OutputPath
	for i := 0; i < len(args); i++ {
		if args[i] == "-o" && i+1 < len(args) {
			outputPath = args[i+1]
			i++ // Skip the output filename
		} else if !strings.HasPrefix(args[i], "-") && jobPath == "" {
			jobPath = args[i]
		}
	}
	if jobPath == "" {
		return fmt.Errorf("no job file specified")
	}

	job, err := LoadJob(jobPath)
	if err != nil {
		return err
	}
	mode, err := ParseMode(job.Mode)
	if err != nil {
		return fmt.Errorf("%s: %w", jobPath, err)
	}
	b, err := ctx.backend(job.Target, ctx.options(mode))
	if err != nil {
		return err
	}
	if job.LongNops != nil {
		if ln, ok := b.(interface{ SetLongNops(bool) }); ok {
			ln.SetLongNops(*job.LongNops)
		}
	}

	diags := mc.NewDiagnostics(ctx.MaxErrors)
	a := mc.NewAssembler(b, diags)
	if err := job.Build(a); err != nil {
		if ctx.Embed {
			return &ExitCodeError{Code: mc.ErrorCode(err), Err: err}
		}
		return err
	}

	if ctx.Verbose {
		fmt.Fprintf(ctx.Stderr, "Applying %s: %d section(s), %d symbol(s)\n", jobPath, len(a.Sections()), a.Symbols().Len())
	}

	if err := a.Finish(job.Base); err != nil {
		fmt.Fprint(ctx.Stderr, diags.Report(ctx.Color))
		if ctx.Embed {
			return &ExitCodeError{Code: mc.ErrorCode(err), Err: err}
		}
		return fmt.Errorf("%s: %d fixup error(s)", jobPath, diags.ErrorCount())
	}
	if diags.WarningCount() > 0 {
		fmt.Fprint(ctx.Stderr, diags.Report(ctx.Color))
	}

	if ctx.Verbose && len(a.Relocations()) > 0 {
		fmt.Fprintf(ctx.Stderr, "Relocations left for the linker:\n")
		spew.Fdump(ctx.Stderr, a.Relocations())
	}

	if ctx.Verify {
		if err := verify(ctx, a); err != nil {
			return err
		}
	}

	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return err
		}
		if err := a.WriteObject(f); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", outputPath, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		if ctx.Verbose {
			fmt.Fprintf(ctx.Stderr, "Wrote %s\n", outputPath)
		}
		if !ctx.Hex {
			return nil
		}
	}

	for _, s := range a.Sections() {
		fmt.Fprintf(ctx.Stdout, "%s @ 0x%x (%d bytes)\n", s.Name, s.Addr, len(s.Data))
		fmt.Fprint(ctx.Stdout, hex.Dump(s.Data))
	}
	for _, r := range a.Relocations() {
		fmt.Fprintf(ctx.Stdout, "reloc %s+0x%x %s %s%+d\n", r.Section, r.Offset, b.KindInfo(r.Kind).Name, r.Symbol, r.Addend)
	}
	return nil
}

// verify reads every resolved fixup back from the patched bytes
func verify(ctx *CommandContext, a *mc.Assembler) error {
	dec, ok := a.Backend().(mc.Decoder)
	if !ok {
		return fmt.Errorf("%s backend cannot decode fixups", a.Backend().Name())
	}
	checked := 0
	var failures []error
	for _, s := range a.Sections() {
		for _, f := range s.Fixups {
			v, resolved, err := a.Resolve(f, s, a.Layout())
			if err != nil || !resolved {
				continue
			}
			got, ok, err := dec.DecodeFixup(f, s.Data)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			checked++
			info := a.Backend().KindInfo(f.Kind)
			want := v.Int()
			if !f.Kind.IsTargetKind() && !info.IsPCRel() {
				// data kinds are stored truncated
				want = int64(mc.Mask(v.Bits, info.TargetSize))
			}
			if got != want {
				failures = append(failures, fmt.Errorf("%s+0x%x: %s decodes as %d, expected %d", s.Name, f.Offset, info.Name, got, want))
			}
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("verification failed: %w", errors.Join(failures...))
	}
	fmt.Fprintf(ctx.Stderr, "Verified %d fixup(s)\n", checked)
	return nil
}

// cmdKinds lists the kind table of the target
func cmdKinds(ctx *CommandContext) error {
	b, err := ctx.backend("", ctx.options(mc.ModeContinue))
	if err != nil {
		return err
	}
	for _, k := range mc.AllKinds(b) {
		fmt.Fprintf(ctx.Stdout, "%4d  %s\n", k, b.KindInfo(k))
	}
	return nil
}

// cmdNop prints the padding the target emits for count bytes
func cmdNop(ctx *CommandContext, countArg string) error {
	count, err := strconv.ParseUint(countArg, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid byte count %q: %w", countArg, err)
	}
	b, err := ctx.backend("", ctx.options(mc.ModeContinue))
	if err != nil {
		return err
	}
	frag := mc.NewFragment("nop")
	if err := b.WriteNop(count, b.CreateObjectWriter(frag)); err != nil {
		if ctx.Embed {
			return &ExitCodeError{Code: mc.ErrorCode(err), Err: err}
		}
		return fmt.Errorf("%s: %w", b.Name(), err)
	}
	fmt.Fprintln(ctx.Stdout, hex.EncodeToString(frag.Bytes()))
	return nil
}

// cmdTargets lists the supported architectures
func cmdTargets(ctx *CommandContext) error {
	for _, arch := range targets.Supported() {
		t := engine.NewTarget(arch, engine.OSLinux)
		bits := 32
		if t.Is64Bit() {
			bits = 64
		}
		endian := "little-endian"
		if !t.IsLittleEndian() {
			endian = "big-endian"
		}
		fmt.Fprintf(ctx.Stdout, "%-12s %d-bit %s, ELF machine 0x%x\n", arch, bits, endian, t.ELFMachine())
	}
	return nil
}

// cmdHelp shows usage information
func cmdHelp(ctx *CommandContext) error {
	fmt.Fprintf(ctx.Stdout, `%s - fixup and relocation encoder

USAGE:
    fixup [flags] <command> [arguments]

COMMANDS:
    apply <job.yaml>      Lay out a job, resolve and patch its fixups
    kinds                 List the fixup kinds of the target
    nop <count>           Print the nop padding for count bytes
    targets               List the supported targets
    help                  Show this help message
    version               Show version information

SHORTHAND:
    fixup <job.yaml>      Same as 'fixup apply <job.yaml>'

FLAGS (must come before the command):
    -target <triple>      Target: x86_64-linux, aarch64-linux, riscv64-linux, s390x-linux, ...
    -o <file>             Write an ELF relocatable object instead of printing the bytes
    -hex                  Print the patched bytes even when writing an object
    -verify               Decode every patched field and compare it to the resolved value
    -embed                Stop at the first error and exit with its numeric code
    -strict-bounds        Treat a fixup outside its section as a fatal error
    -max-errors <n>       Stop after n errors (default: %d)
    -v, -verbose          Verbose mode

ENVIRONMENT:
    FIXUP_TARGET, FIXUP_VERBOSE, FIXUP_STRICT_BOUNDS, FIXUP_MAX_ERRORS, NO_COLOR

EXAMPLES:
    fixup apply testdata/riscv64.yaml
    fixup -target aarch64-linux kinds
    fixup -target x86_64-linux nop 15

`, versionString, engine.DefaultMaxErrors)
	return nil
}
