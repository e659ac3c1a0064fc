// Completion: 100% - Environment configuration complete
package engine

import (
	"github.com/xyproto/env/v2"
)

// VerboseMode enables progress output on stderr
var VerboseMode bool

// Config holds the settings that can be given through the environment.
// Command line flags override them.
type Config struct {
	Verbose      bool   // FIXUP_VERBOSE
	Target       string // FIXUP_TARGET, empty means the host
	StrictBounds bool   // FIXUP_STRICT_BOUNDS, out of bounds patches panic
	MaxErrors    int    // FIXUP_MAX_ERRORS
	Color        bool   // off when NO_COLOR is set
}

// DefaultMaxErrors is how many errors are collected before giving up
const DefaultMaxErrors = 10

// LoadConfig reads the configuration from the environment
func LoadConfig() Config {
	maxErrors := env.Int("FIXUP_MAX_ERRORS", DefaultMaxErrors)
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}
	return Config{
		Verbose:      env.Bool("FIXUP_VERBOSE"),
		Target:       env.Str("FIXUP_TARGET"),
		StrictBounds: env.Bool("FIXUP_STRICT_BOUNDS"),
		MaxErrors:    maxErrors,
		Color:        !env.Has("NO_COLOR"),
	}
}

// Platform returns the configured platform, or the host platform
func (c Config) Platform() (Platform, error) {
	if c.Target == "" {
		return DefaultPlatform(), nil
	}
	return ParsePlatform(c.Target)
}
