// Package config loads a RunConfig from a TOML resource file, the
// engine-facing descendant of moonunit's original .moonunitrc
// (src/moonunit/option.c's option_process_resources), rebuilt on
// github.com/BurntSushi/toml instead of the original's hand-rolled ini
// reader. Full CLI/glob parsing remains the non-goal the spec names;
// this package only covers the subset of run options a file can
// usefully pin defaults for.
package config

import (
	"github.com/BurntSushi/toml"

	"github.com/ehrlich-b/muonrun/internal/model"
)

// RunConfig holds the defaults a Dispatcher.Config is built from. Zero
// values mean "use the dispatcher's own built-in default" — Load never
// has to guess at a TOML file's omissions itself.
type RunConfig struct {
	// DefaultTimeoutMillis bounds how long the parent read loop waits
	// for a test's result before sending SIGTERM, unless the test
	// overrides it at runtime via meta(Timeout, ms).
	DefaultTimeoutMillis int64 `toml:"timeout_ms"`

	// DefaultIterations is how many times each test runs before the
	// dispatcher moves on, unless overridden via meta(Iterations, n).
	DefaultIterations int `toml:"iterations"`

	// MaxLogLevel ceils which LogEvent severities reach the configured
	// Logger; anything stricter is dropped at the token.
	MaxLogLevel string `toml:"max_log_level"`

	// Debug selects ModeDebug (in-process, attachable) over the
	// default ModeFork.
	Debug bool `toml:"debug"`
}

// Load reads path as TOML and returns the RunConfig it describes. A
// missing or empty file is not this package's concern — the caller
// decides whether a missing resource file is fatal, the way
// option_process_resources let a caller supply zero -r flags.
func Load(path string) (*RunConfig, error) {
	cfg := &RunConfig{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogLevel resolves the configured MaxLogLevel string to a
// model.LogLevel, defaulting to model.LevelInfo for an empty or
// unrecognized value the same way the dispatcher's own Config does.
func (c *RunConfig) LogLevel() model.LogLevel {
	switch c.MaxLogLevel {
	case "warning":
		return model.LevelWarning
	case "verbose":
		return model.LevelVerbose
	case "debug":
		return model.LevelDebug
	case "trace":
		return model.LevelTrace
	default:
		return model.LevelInfo
	}
}
