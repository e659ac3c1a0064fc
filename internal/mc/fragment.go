// Completion: 100% - Fragment buffers complete
package mc

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/xyproto/fixup/internal/engine"
)

// ErrFragmentSealed is returned by writes to a sealed fragment
var ErrFragmentSealed = errors.New("write to sealed fragment")

// Fragment is a named run of bytes that is still being emitted. Once the
// layout has given it an address it is sealed, and later writes fail
// instead of silently moving everything after it.
type Fragment struct {
	buf    bytes.Buffer
	sealed bool
	name   string
}

// NewFragment creates an empty fragment with a name for diagnostics
func NewFragment(name string) *Fragment {
	return &Fragment{name: name}
}

// Write appends bytes to the fragment
func (f *Fragment) Write(p []byte) (int, error) {
	if f.sealed {
		return 0, fmt.Errorf("%s: %w", f.name, ErrFragmentSealed)
	}
	return f.buf.Write(p)
}

// Bytes returns the fragment contents
func (f *Fragment) Bytes() []byte {
	return f.buf.Bytes()
}

// Len returns the fragment length
func (f *Fragment) Len() int {
	return f.buf.Len()
}

// Seal marks the fragment as laid out
func (f *Fragment) Seal() {
	if engine.VerboseMode {
		fmt.Fprintf(os.Stderr, "fragment %s: sealed with %d bytes\n", f.name, f.buf.Len())
	}
	f.sealed = true
}

// Sealed returns true once Seal has been called
func (f *Fragment) Sealed() bool {
	return f.sealed
}

// Reset clears the fragment and unseals it
func (f *Fragment) Reset() {
	if engine.VerboseMode && f.sealed {
		fmt.Fprintf(os.Stderr, "fragment %s: reset after seal, dropping %d bytes\n", f.name, f.buf.Len())
	}
	f.buf.Reset()
	f.sealed = false
}
