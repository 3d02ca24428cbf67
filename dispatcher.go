// Package muonrun is the public API of the engine: load a compiled test
// library through a Loader, run its tests through a Dispatcher, and
// report results through a Logger. Engine internals (wire transport,
// shared memory, marshalling, the fork/debug dispatcher itself) live
// under internal/ the way the teacher keeps ctrl/uring/uapi under its
// own internal/.
package muonrun

import (
	"sort"

	"github.com/ehrlich-b/muonrun/internal/dispatch"
	"github.com/ehrlich-b/muonrun/internal/model"
)

// Re-exported so callers can build a Loader/Logger/TestDescriptor
// without importing internal/model directly — the same re-export
// pattern the teacher uses for its internal/constants values.
type (
	Loader         = model.Loader
	Logger         = model.Logger
	TestDescriptor = model.TestDescriptor
	LibraryHandle  = model.LibraryHandle
	TestResult     = model.TestResult
	TestStatus     = model.TestStatus
	Stage          = model.Stage
	LogEvent       = model.LogEvent
	TestAPI        = model.TestAPI
)

const (
	Success   = model.Success
	Failure   = model.Failure
	Assertion = model.Assertion
	Crash     = model.Crash
	Timeout   = model.Timeout
	Exception = model.Exception
	Skipped   = model.Skipped
)

// Params configures one RunLibrary call: which Loader opens the
// artifact, which Logger reports results, and the iteration/timeout/
// log-level defaults a Dispatcher.Config needs. Mirrors the shape of
// the teacher's own DeviceParams/Options split — Params here folds
// both together since a test run has no analogous "device vs. runtime
// options" distinction.
type Params struct {
	Loader               Loader
	Logger               Logger
	DefaultTimeoutMillis int64
	DefaultIterations    int
	MaxLogLevel          LogLevel
	// Debug selects dispatch.ModeDebug (in-process) for both RunTest and
	// RunLibrary; when false, tests run under fork isolation.
	Debug bool
}

func (p Params) dispatcherConfig() dispatch.Config {
	mode := dispatch.ModeFork
	if p.Debug {
		mode = dispatch.ModeDebug
	}
	return dispatch.Config{
		Mode:                 mode,
		Loader:               p.Loader,
		Logger:               p.Logger,
		DefaultTimeoutMillis: p.DefaultTimeoutMillis,
		DefaultIterations:    p.DefaultIterations,
		MaxLogLevel:          p.MaxLogLevel,
	}
}

// Dispatcher is the public handle callers drive test runs through. It
// wraps internal/dispatch.Dispatcher plus the MaybeRunChild re-exec
// contract, so a caller's main() only needs to import this package.
type Dispatcher struct {
	inner *dispatch.Dispatcher
}

// NewDispatcher constructs a Dispatcher from params.
func NewDispatcher(params Params) *Dispatcher {
	return &Dispatcher{inner: dispatch.NewDispatcher(params.dispatcherConfig())}
}

// MaybeRunChild must be called as the very first statement of a
// muonrun-based CLI's main(), before any flag parsing: fork-mode spawns
// children by re-executing the same binary with a sentinel environment
// variable, and this is the hook that recognizes and services that
// sentinel. It returns normally (doing nothing) when the sentinel is
// absent.
func MaybeRunChild(loader Loader) {
	dispatch.MaybeRunChild(loader)
}

// RunTest runs a single test via the configured dispatcher. It makes no
// Enter/Leave/TestEnter/TestLeave calls on the Logger (log events the
// test emits still reach Logger.TestLog) — callers wanting the full
// library traversal with that reporting should use RunLibrary.
func (d *Dispatcher) RunTest(desc *TestDescriptor) (TestResult, int) {
	return d.inner.Run(desc)
}

// DebugAttach spawns desc's test under fork isolation, immediately
// stops it, and returns the pid for an external debugger to attach to
// — the non-goal-scoped operation named in SPEC_FULL's Non-goals.
func (d *Dispatcher) DebugAttach(desc *TestDescriptor) (int, error) {
	pid, err := d.inner.DebugAttach(desc)
	if err != nil {
		return pid, WrapError("DebugAttach", err)
	}
	return pid, nil
}

// Summary tallies one RunLibrary call's outcome.
type Summary struct {
	Total, Passed, Failed int
}

func testCompare(a, b *TestDescriptor) bool {
	if a.Suite != b.Suite {
		return a.Suite < b.Suite
	}
	return a.Name < b.Name
}

// RunLibrary opens path through params.Loader, runs every test it
// contains to completion through a freshly constructed Dispatcher, and
// drives params.Logger's Enter/Leave lifecycle around it — the Go
// translation of run.c's run_tests/run_all: sort tests by suite, run
// the loader's Construct once, walk tests emitting SuiteEnter/SuiteLeave
// at each suite boundary, TestEnter/TestLeave around each test's
// iterations, and Destruct once at the end. The handle's LibrarySetup/
// LibraryTeardown thunks are not run here; the dispatcher runs them as
// stages of every test iteration.
func RunLibrary(path string, params Params) (*Summary, error) {
	loader := params.Loader
	handle, err := loader.Open(path)
	if err != nil {
		if params.Logger != nil {
			params.Logger.LibraryFail(err.Error())
		}
		return nil, &Error{Op: "Open", Library: path, Code: ErrCodeLoadFailed, Msg: err.Error(), Inner: err}
	}
	defer loader.Close(handle)

	logger := params.Logger
	if logger != nil {
		logger.Enter()
		defer logger.Leave()
		logger.LibraryEnter(path, handle)
		defer logger.LibraryLeave()
	}

	if err := loader.Construct(handle); err != nil {
		return nil, &Error{Op: "Construct", Library: path, Code: ErrCodeLoadFailed, Msg: err.Error(), Inner: err}
	}
	defer loader.Destruct(handle)

	tests := make([]*TestDescriptor, len(handle.Tests))
	copy(tests, handle.Tests)
	sort.SliceStable(tests, func(i, j int) bool { return testCompare(tests[i], tests[j]) })

	dispatcher := NewDispatcher(params)

	summary := &Summary{}
	currentSuite := ""
	suiteOpen := false
	for _, desc := range tests {
		if !suiteOpen || desc.Suite != currentSuite {
			if suiteOpen && logger != nil {
				logger.SuiteLeave()
			}
			currentSuite = desc.Suite
			suiteOpen = true
			if logger != nil {
				logger.SuiteEnter(currentSuite)
			}
		}

		if logger != nil {
			logger.TestEnter(desc)
		}
		result, _ := dispatcher.RunTest(desc)
		if logger != nil {
			logger.TestLeave(desc, result)
		}

		summary.Total++
		if result.Passed() {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}
	if suiteOpen && logger != nil {
		logger.SuiteLeave()
	}

	return summary, nil
}
