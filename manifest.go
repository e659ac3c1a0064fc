// Completion: 100% - YAML job manifests complete
package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xyproto/fixup/internal/engine"
	"github.com/xyproto/fixup/internal/mc"
)

// Job is one assembly job: sections of already encoded bytes, the fixups
// that still apply to them and the symbols they refer to
type Job struct {
	Target   string        `yaml:"target"`
	Base     uint64        `yaml:"base"`
	Mode     string        `yaml:"mode"`      // continue (default) or abort
	LongNops *bool         `yaml:"long_nops"` // x86 only
	Sections []SectionSpec `yaml:"sections"`
	Symbols  []SymbolSpec  `yaml:"symbols"`

	path string
}

// SectionSpec describes one section of a job
type SectionSpec struct {
	Name   string      `yaml:"name"`
	Align  uint64      `yaml:"align"`
	Hex    string      `yaml:"hex"`
	Fixups []FixupSpec `yaml:"fixups"`
}

// FixupSpec names its kind; Value is a final value that needs no symbol
type FixupSpec struct {
	Offset   uint64 `yaml:"offset"`
	Kind     string `yaml:"kind"`
	Symbol   string `yaml:"symbol"`
	Addend   int64  `yaml:"addend"`
	Value    *int64 `yaml:"value"`
	Modifier string `yaml:"modifier"`
	Line     int    `yaml:"line"`
}

// SymbolSpec defines a symbol. Without a section the value is absolute.
type SymbolSpec struct {
	Name    string `yaml:"name"`
	Section string `yaml:"section"`
	Value   uint64 `yaml:"value"`
	Global  bool   `yaml:"global"`
}

// LoadJob reads a job file
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseJob(data, path)
}

// ParseJob decodes a job. Unknown fields are rejected, so that a typo does
// not silently drop a fixup.
func ParseJob(data []byte, path string) (*Job, error) {
	var job Job
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&job); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(job.Sections) == 0 {
		return nil, fmt.Errorf("%s: no sections", path)
	}
	job.path = path
	return &job, nil
}

// Path returns the file the job was read from
func (j *Job) Path() string {
	return j.path
}

// ParseMode converts the mode field
func ParseMode(s string) (mc.Mode, error) {
	switch strings.ToLower(s) {
	case "", "continue":
		return mc.ModeContinue, nil
	case "abort":
		return mc.ModeAbort, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (continue or abort)", s)
	}
}

func parseModifier(s string) (mc.Modifier, error) {
	switch strings.ToLower(s) {
	case "":
		return mc.ModNone, nil
	case "lo12":
		return mc.ModLo12, nil
	default:
		return 0, fmt.Errorf("unknown modifier %q", s)
	}
}

// decodeHex accepts hex bytes with any whitespace in between
func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.Join(strings.Fields(s), ""))
}

// Build adds the job's sections and symbols to an assembler. Kind names are
// looked up in the assembler's backend.
func (j *Job) Build(a *mc.Assembler) error {
	b := a.Backend()
	for _, ss := range j.Sections {
		data, err := decodeHex(ss.Hex)
		if err != nil {
			return fmt.Errorf("%s: section %s: %w", j.path, ss.Name, err)
		}
		sec := &mc.Section{Name: ss.Name, Data: data, Align: ss.Align}
		for _, fs := range ss.Fixups {
			f, err := j.fixup(b, fs)
			if err != nil {
				return err
			}
			sec.Fixups = append(sec.Fixups, f)
		}
		if err := a.AddSection(sec); err != nil {
			return fmt.Errorf("%s: %w", j.path, err)
		}
	}
	for _, s := range j.Symbols {
		sym := mc.Symbol{Name: s.Name, Section: s.Section, Value: s.Value, Global: s.Global}
		if err := a.Symbols().Define(sym); err != nil {
			return fmt.Errorf("%s: %w", j.path, err)
		}
	}
	return nil
}

func (j *Job) fixup(b mc.Backend, fs FixupSpec) (mc.Fixup, error) {
	loc := mc.SourceLocation{File: j.path, Line: fs.Line}
	where := loc.String()
	if where == "" {
		where = j.path
	}

	kind, ok := b.KindByName(fs.Kind)
	if !ok {
		err := fmt.Errorf("%s: %w %q for %s", where, mc.ErrUnknownKindName, fs.Kind, b.Name())
		if hint := engine.DidYouMean(fs.Kind, mc.KindNames(b)); hint != "" {
			err = fmt.Errorf("%w, %s", err, hint)
		}
		return mc.Fixup{}, err
	}
	mod, err := parseModifier(fs.Modifier)
	if err != nil {
		return mc.Fixup{}, fmt.Errorf("%s: %w", where, err)
	}

	f := mc.Fixup{
		Offset:   fs.Offset,
		Kind:     kind,
		Loc:      loc,
		Symbol:   fs.Symbol,
		Addend:   fs.Addend,
		Modifier: mod,
	}
	if fs.Value != nil {
		if fs.Symbol != "" {
			return mc.Fixup{}, fmt.Errorf("%s: a fixup has either a value or a symbol", where)
		}
		f.Addend = *fs.Value
	}
	return f, nil
}
