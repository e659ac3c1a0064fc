// Completion: 100% - Diagnostics complete
package mc

import (
	"errors"
	"fmt"
	"strings"
)

// Level indicates the severity of a diagnostic
type Level int

const (
	LevelWarning Level = iota
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal error"
	default:
		return "unknown"
	}
}

// Category classifies what went wrong with a fixup
type Category int

const (
	CategoryRange Category = iota
	CategoryAlignment
	CategoryOffset
	CategoryKind
	CategoryLayout
	CategoryInternal
)

func (c Category) String() string {
	switch c {
	case CategoryRange:
		return "range"
	case CategoryAlignment:
		return "alignment"
	case CategoryOffset:
		return "offset"
	case CategoryKind:
		return "kind"
	case CategoryLayout:
		return "layout"
	case CategoryInternal:
		return "internal"
	default:
		return "unknown"
	}
}

func categoryOf(err error) Category {
	switch ErrorCode(err) {
	case CodeFixupOutOfRange:
		return CategoryRange
	case CodeFixupMisaligned:
		return CategoryAlignment
	case CodeUnknownKind:
		return CategoryKind
	case CodeNopCount:
		return CategoryLayout
	}
	if errors.Is(err, ErrBufferOverrun) {
		return CategoryOffset
	}
	return CategoryInternal
}

// Diagnostic is one reported problem, tied to a source location
type Diagnostic struct {
	Level    Level
	Category Category
	Message  string
	Location SourceLocation
	Help     string
	Err      error // the underlying error, if any
}

// Error implements the error interface
func (d Diagnostic) Error() string {
	if loc := d.Location.String(); loc != "" {
		return fmt.Sprintf("%s: %s", loc, d.Message)
	}
	return d.Message
}

func (d Diagnostic) Unwrap() error {
	return d.Err
}

// Format returns the diagnostic with a location line and optional help
func (d Diagnostic) Format(useColor bool) string {
	var sb strings.Builder

	paint := func(code, s string) {
		if useColor {
			sb.WriteString(code)
		}
		sb.WriteString(s)
		if useColor {
			sb.WriteString("\033[0m")
		}
	}

	paint("\033[1;31m", d.Level.String()+": ") // Bold red
	sb.WriteString(d.Message)
	sb.WriteString("\n")

	if loc := d.Location.String(); loc != "" {
		paint("\033[1;34m", "  --> "+loc) // Bold blue
		sb.WriteString("\n")
	}

	if d.Help != "" {
		paint("\033[1;32m", "   help: ") // Bold green
		sb.WriteString(d.Help)
		sb.WriteString("\n")
	}

	return sb.String()
}

// Diagnostics accumulates fixup errors so that one run reports all of them
type Diagnostics struct {
	errors    []Diagnostic
	warnings  []Diagnostic
	maxErrors int
}

// NewDiagnostics creates a collector that asks to stop after maxErrors errors
func NewDiagnostics(maxErrors int) *Diagnostics {
	if maxErrors <= 0 {
		maxErrors = 10 // Default: stop after 10 errors
	}
	return &Diagnostics{maxErrors: maxErrors}
}

// Add records err as an error diagnostic. Nil is ignored.
func (ds *Diagnostics) Add(err error) {
	if err == nil {
		return
	}
	var d Diagnostic
	if errors.As(err, &d) {
		ds.AddError(d)
		return
	}
	d = Diagnostic{
		Level:    LevelError,
		Category: categoryOf(err),
		Message:  err.Error(),
		Err:      err,
	}
	var fe *FixupError
	if errors.As(err, &fe) {
		d.Location = fe.Loc
		d.Message = fmt.Sprintf("%s: %v", fe.Kind, fe.Err)
	}
	ds.AddError(d)
}

// AddError records a diagnostic as an error unless it is a warning
func (ds *Diagnostics) AddError(d Diagnostic) {
	if d.Level == LevelWarning {
		ds.warnings = append(ds.warnings, d)
		return
	}
	ds.errors = append(ds.errors, d)
}

// AddWarning records a warning
func (ds *Diagnostics) AddWarning(loc SourceLocation, format string, args ...any) {
	ds.warnings = append(ds.warnings, Diagnostic{
		Level:    LevelWarning,
		Category: CategoryInternal,
		Message:  fmt.Sprintf(format, args...),
		Location: loc,
	})
}

// HasErrors returns true if any errors were collected
func (ds *Diagnostics) HasErrors() bool {
	return len(ds.errors) > 0
}

// ErrorCount returns the number of errors
func (ds *Diagnostics) ErrorCount() int {
	return len(ds.errors)
}

// WarningCount returns the number of warnings
func (ds *Diagnostics) WarningCount() int {
	return len(ds.warnings)
}

// Errors returns the collected errors in the order they were added
func (ds *Diagnostics) Errors() []Diagnostic {
	return ds.errors
}

// ShouldStop returns true if we've hit the error limit
func (ds *Diagnostics) ShouldStop() bool {
	return len(ds.errors) >= ds.maxErrors
}

// Err returns the first error, or nil
func (ds *Diagnostics) Err() error {
	if len(ds.errors) == 0 {
		return nil
	}
	return ds.errors[0]
}

// Report formats all errors and warnings for display
func (ds *Diagnostics) Report(useColor bool) string {
	var sb strings.Builder

	for i, d := range ds.errors {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(d.Format(useColor))
	}

	for i, w := range ds.warnings {
		if i > 0 || len(ds.errors) > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(w.Format(useColor))
	}

	if len(ds.errors) > 0 || len(ds.warnings) > 0 {
		sb.WriteString("\n")
		var parts []string
		if len(ds.errors) > 0 {
			parts = append(parts, fmt.Sprintf("%d error(s)", len(ds.errors)))
		}
		if len(ds.warnings) > 0 {
			parts = append(parts, fmt.Sprintf("%d warning(s)", len(ds.warnings)))
		}
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString(" found\n")
	}

	return sb.String()
}

// Clear resets the collector
func (ds *Diagnostics) Clear() {
	ds.errors = nil
	ds.warnings = nil
}
