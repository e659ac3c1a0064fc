// Completion: 100% - CLI interface complete, all flags working
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/xyproto/fixup/internal/engine"
)

// A fixup and relocation encoder for x86, aarch64, riscv and s390x.
// It takes sections of encoded bytes with their pending fixups, lays them
// out, patches every fixup it can resolve and writes an ELF relocatable
// object with relocations for the rest.

const versionString = "fixup 1.0.0"

func main() {
	cfg := engine.LoadConfig()

	// NOTE: Go's flag package stops parsing at the first non-flag argument
	// So flags must come BEFORE the command: fixup -target riscv64 apply job.yaml
	var targetFlag = flag.String("target", cfg.Target, "target platform (e.g., x86_64-linux, aarch64-linux, riscv64-linux, s390x-linux)")
	var outputFilenameFlag = flag.String("o", "", "output object filename")
	var outputFilenameLongFlag = flag.String("output", "", "output object filename")
	var versionShort = flag.Bool("V", false, "print version information and exit")
	var version = flag.Bool("version", false, "print version information and exit")
	var verbose = flag.Bool("v", cfg.Verbose, "verbose mode (show every applied fixup)")
	var verboseLong = flag.Bool("verbose", cfg.Verbose, "verbose mode (show every applied fixup)")
	var embedFlag = flag.Bool("embed", false, "stop at the first error and exit with its numeric code")
	var hexFlag = flag.Bool("hex", false, "print the patched bytes even when writing an object")
	var verifyFlag = flag.Bool("verify", false, "decode every patched field and compare it to the resolved value")
	var strictBoundsFlag = flag.Bool("strict-bounds", cfg.StrictBounds, "treat a fixup outside its section as a fatal error")
	var maxErrorsFlag = flag.Int("max-errors", cfg.MaxErrors, "stop after this many errors")
	flag.Parse()

	if *version || *versionShort {
		fmt.Println(versionString)
		os.Exit(0)
	}

	// Set global verbosity flag (use whichever was specified)
	engine.VerboseMode = *verbose || *verboseLong

	// Use whichever output flag was specified (prefer short form if both given)
	outputFilename := *outputFilenameLongFlag
	if *outputFilenameFlag != "" {
		outputFilename = *outputFilenameFlag
	}

	maxErrors := *maxErrorsFlag
	if maxErrors <= 0 {
		maxErrors = engine.DefaultMaxErrors
	}

	ctx := &CommandContext{
		Args:         flag.Args(),
		Target:       *targetFlag,
		OutputPath:   outputFilename,
		Verbose:      engine.VerboseMode,
		Embed:        *embedFlag,
		Hex:          *hexFlag,
		Verify:       *verifyFlag,
		StrictBounds: *strictBoundsFlag,
		MaxErrors:    maxErrors,
		Color:        cfg.Color,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
	}

	if err := RunCLI(ctx); err != nil {
		var exitErr *ExitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
