package muonrun

import (
	"github.com/ehrlich-b/muonrun/internal/config"
	"github.com/ehrlich-b/muonrun/internal/model"
)

// RunConfig is the public alias of internal/config.RunConfig — engine
// internals live under internal/, but callers need the type to build a
// Params from a loaded file.
type RunConfig = config.RunConfig

// LoadConfig reads path as a TOML resource file (internal/config.Load),
// the engine-facing descendant of moonunit's original .moonunitrc.
func LoadConfig(path string) (*RunConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, WrapError("LoadConfig", err)
	}
	return cfg, nil
}

// ApplyTo overlays non-zero fields of cfg onto params: every field the
// resource file sets replaces whatever params already held, and fields
// the file leaves zero keep the caller's values.
func (cfg *RunConfig) ApplyTo(params *Params) {
	if cfg.DefaultTimeoutMillis != 0 {
		params.DefaultTimeoutMillis = cfg.DefaultTimeoutMillis
	}
	if cfg.DefaultIterations != 0 {
		params.DefaultIterations = cfg.DefaultIterations
	}
	if cfg.MaxLogLevel != "" {
		params.MaxLogLevel = cfg.LogLevel()
	}
	if cfg.Debug {
		params.Debug = true
	}
}

// LogLevel re-exports model.LogLevel so callers configuring Params
// don't need to import internal/model directly.
type LogLevel = model.LogLevel

const (
	LevelWarning = model.LevelWarning
	LevelInfo    = model.LevelInfo
	LevelVerbose = model.LevelVerbose
	LevelDebug   = model.LevelDebug
	LevelTrace   = model.LevelTrace
)
