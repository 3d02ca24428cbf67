// Package dispatch runs one test to completion under either fork
// isolation (a re-exec'd child process communicating over
// internal/shmem) or debug isolation (in-process, via internal/token's
// DebugToken). Grounded on original_source/src/moonunit-unix/
// unixharness.c's unixharness_dispatch/unixharness_debug and on the
// teacher's internal/queue.Runner lifecycle shape: a Config struct, a
// constructor that wires up OS resources, and a blocking per-test
// routine rather than a long-lived background loop (this engine runs
// tests strictly sequentially, so there is no ioLoop goroutine to
// start/stop — Run itself blocks until the test's result is known).
package dispatch

import (
	"github.com/ehrlich-b/muonrun/internal/logging"
	"github.com/ehrlich-b/muonrun/internal/model"
)

// Mode selects which isolation strategy Dispatcher.Run uses for a test,
// spec §4.I's "a configuration flag chooses between fork dispatcher and
// in-process dispatcher".
type Mode int

const (
	// ModeFork runs each iteration of a test in a freshly re-exec'd
	// child process (the default: isolates a crashing test from the
	// dispatcher itself).
	ModeFork Mode = iota
	// ModeDebug runs the test in the dispatcher's own process, trading
	// isolation for attachability under an interactive debugger.
	ModeDebug
)

func (m Mode) String() string {
	if m == ModeDebug {
		return "debug"
	}
	return "fork"
}

// Config configures a Dispatcher. DefaultTimeoutMillis and
// DefaultIterations apply until a running test overrides them via
// meta(Timeout, ms)/meta(Iterations, n); MaxLogLevel is the initial
// ceiling handed to each fresh token. When left zero and Logger is set,
// NewDispatcher sources it from Logger.MaxLogLevel() instead of
// defaulting to Info, per spec §4.E's "the token reports the current
// maximum log level to the caller on request" — the caller here being
// the configured Logger.
type Config struct {
	Mode                 Mode
	Loader               model.Loader
	Logger               model.Logger
	DefaultTimeoutMillis int64
	DefaultIterations    int
	MaxLogLevel          model.LogLevel
}

// Dispatcher owns one Config and runs tests against it one at a time —
// the spec's "strictly sequential, single-threaded at the parent level"
// scheduling (§5).
type Dispatcher struct {
	cfg Config
	log *logging.Logger
}

// NewDispatcher validates cfg and returns a ready Dispatcher, applying
// the documented defaults (1000ms timeout, 1 iteration, Info ceiling)
// when the caller leaves a field zero.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.DefaultTimeoutMillis <= 0 {
		cfg.DefaultTimeoutMillis = 1000
	}
	if cfg.DefaultIterations <= 0 {
		cfg.DefaultIterations = 1
	}
	if cfg.MaxLogLevel == 0 {
		if cfg.Logger != nil {
			cfg.MaxLogLevel = cfg.Logger.MaxLogLevel()
		} else {
			cfg.MaxLogLevel = model.LevelInfo
		}
	}
	return &Dispatcher{cfg: cfg, log: logging.Default()}
}

// iterationOutcome is one iteration's result plus any iteration-count
// override the test declared via meta(Iterations, n) during that run —
// carried separately from model.TestResult since iteration count is
// dispatcher bookkeeping, not part of a test's outcome.
type iterationOutcome struct {
	result    model.TestResult
	overrideN int // 0 means "no override this iteration"
}

// Run executes desc to completion — possibly across several iterations,
// per the iteration policy in spec §4.G — and returns the final
// iteration's result plus the total number of iterations actually run.
func (d *Dispatcher) Run(desc *model.TestDescriptor) (model.TestResult, int) {
	if d.cfg.Mode == ModeDebug {
		return d.runIterations(desc, d.runDebugIteration)
	}
	return d.runIterations(desc, d.runForkIteration)
}

// runIterations implements spec §4.G's iteration policy: re-run until
// either the configured count is reached, or a run's status differs
// from the expected status, or it is Skipped. Each iteration starts
// from a fresh child/fresh DebugToken, so state never leaks between
// runs.
func (d *Dispatcher) runIterations(desc *model.TestDescriptor, run func(*model.TestDescriptor) iterationOutcome) (model.TestResult, int) {
	n := d.cfg.DefaultIterations
	var result model.TestResult
	ran := 0
	for i := 0; i < n; i++ {
		outcome := run(desc)
		result = outcome.result
		ran++
		if outcome.overrideN > 0 {
			n = outcome.overrideN
		}
		if result.Status == model.Skipped {
			break
		}
		if !result.Passed() {
			break
		}
	}
	return result, ran
}
