package token

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/muonrun/internal/model"
)

// debugAbort is the sentinel panic value DebugToken.Result uses to
// unwind the remainder of a running test — Go has no setjmp/longjmp, so
// the "abort the test immediately" pattern becomes a typed early exit
// propagated to the dispatcher's per-test recover() frame (spec §9's
// prescribed translation).
type debugAbort struct {
	result model.TestResult
}

// DebugToken is the in-process ("debug mode") test API: same surface as
// ForkToken, but results are recorded directly in memory instead of
// being sent over a transport, and "abort the test" is a panic instead
// of a process exit (spec §4.F).
type DebugToken struct {
	mu          sync.Mutex
	stage       model.Stage
	expected    model.TestStatus
	maxLogLevel model.LogLevel
	onEvent     func(model.LogEvent)
	iterations  uint32

	timer      *time.Timer
	sigCh      chan os.Signal
	sigStop    chan struct{}
	crashArmed bool

	// abortCh carries a result from an async handler (the timeout timer
	// or the crash-signal monitor goroutine) back to RunUnderRecover.
	// Those handlers run on a goroutine distinct from the one executing
	// the test body, so a direct panic(debugAbort{}) from them would
	// only unwind their own goroutine and crash the program instead of
	// being recovered by the test body's frame — abortCh is how the
	// result crosses the goroutine boundary instead.
	abortCh chan model.TestResult
}

// NewDebugToken creates a token whose Event callback is onEvent — the
// caller-supplied callback spec §4.F names directly, since debug mode
// runs in the same address space as the dispatcher.
func NewDebugToken(onEvent func(model.LogEvent)) *DebugToken {
	return &DebugToken{
		onEvent:     onEvent,
		maxLogLevel: model.LevelInfo,
		expected:    model.Success,
		abortCh:     make(chan model.TestResult, 1),
	}
}

// SetStage records the lifecycle phase for subsequent events/results.
func (t *DebugToken) SetStage(stage model.Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage = stage
}

// Event invokes the caller-supplied callback directly, spec §4.F's
// "event calls the caller-supplied callback directly".
func (t *DebugToken) Event(level model.LogLevel, file string, line int, message string) {
	t.mu.Lock()
	if level > t.maxLogLevel {
		t.mu.Unlock()
		return
	}
	ev := model.LogEvent{
		Stage:    t.stage,
		Level:    level,
		Location: model.SourceLocation{File: file, Line: line, Set: file != ""},
		Message:  message,
	}
	cb := t.onEvent
	t.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// Result records r and panics with the debugAbort sentinel, aborting
// the remainder of the test. If the status does not match the declared
// expected status, debug-mode policy is to escape to the debugger
// rather than recover cleanly — spec §4.F: "if the status does not
// match the declared expected status, it aborts the process".
func (t *DebugToken) Result(r model.TestResult) {
	t.mu.Lock()
	r.Stage = t.stage
	expected := t.expected
	t.mu.Unlock()
	if r.Expected == 0 {
		r.Expected = expected
	}

	t.clearTimers()

	if r.Status != r.Expected {
		fmt.Fprintf(os.Stderr, "muonrun: debug mode: unexpected result %s (expected %s), aborting process\n", r.Status, r.Expected)
		os.Exit(134) // SIGABRT-equivalent exit code, matching the documented escape-to-debugger policy
	}

	panic(debugAbort{result: r})
}

// Meta applies an Expect, Timeout, or Iterations declaration.
func (t *DebugToken) Meta(kind model.MetaKind, value uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch kind {
	case model.MetaExpect:
		t.expected = model.TestStatus(value)
		if model.TestStatus(value) == model.Crash {
			t.armCrashHandlersLocked()
		}
	case model.MetaTimeout:
		t.armTimeoutLocked(time.Duration(value) * time.Millisecond)
	case model.MetaIterations:
		t.iterations = value
	}
}

// Iterations reports the most recent meta(Iterations, n) declaration,
// or 0 if none was made — the dispatcher reads this after each run to
// apply an iteration-count override, the same as the value it decodes
// from a fork-mode child's Iterations message.
func (t *DebugToken) Iterations() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.iterations
}

// armTimeoutLocked arms a timer that calls Result with a synthetic
// Timeout status, the debug-mode translation of spec §4.F's
// `alarm(ms/1000)` — unified on deadline-style arithmetic rather than a
// raw alarm() per the spec's resolved open question on timeout
// semantics (DESIGN.md).
func (t *DebugToken) armTimeoutLocked(d time.Duration) {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(d, func() {
		t.postAsyncAbort(model.TestResult{
			Status: model.Timeout,
			Reason: fmt.Sprintf("test timed out after %s", d),
		})
	})
}

// armCrashHandlersLocked installs best-effort signal handlers for
// SIGILL/SIGABRT/SIGFPE/SIGSEGV/SIGPIPE that synthesize a Crash result,
// mirroring spec §4.F's meta(Expect=Crash) behavior. A caught signal is
// delivered to signal.Notify's own monitor goroutine, not the goroutine
// running the test body, so the handler below posts through abortCh
// rather than panicking directly — the same best-effort guarantee the
// source provides (spec §9: "do not attempt to make async-signal-safety
// guarantees stronger than the source's"), translated to Go's
// channel-based signal delivery instead of a literal signal handler
// frame.
func (t *DebugToken) armCrashHandlersLocked() {
	if t.crashArmed {
		return
	}
	t.crashArmed = true
	t.sigCh = make(chan os.Signal, 8)
	t.sigStop = make(chan struct{})
	signal.Notify(t.sigCh, unix.SIGILL, unix.SIGABRT, unix.SIGFPE, unix.SIGSEGV, unix.SIGPIPE)
	go func() {
		select {
		case sig := <-t.sigCh:
			t.postAsyncAbort(model.TestResult{
				Status: model.Crash,
				Reason: fmt.Sprintf("debug mode caught %s", sig),
			})
		case <-t.sigStop:
		}
	}()
}

// postAsyncAbort records kind/expected bookkeeping the same way Result
// does, then delivers r to RunUnderRecover via abortCh instead of
// panicking — the cross-goroutine-safe half of debug mode's abort path.
func (t *DebugToken) postAsyncAbort(r model.TestResult) {
	t.mu.Lock()
	r.Stage = t.stage
	if r.Expected == 0 {
		r.Expected = t.expected
	}
	t.mu.Unlock()

	t.clearTimers()

	select {
	case t.abortCh <- r:
	default:
	}
}

// clearTimers disarms any installed alarm/signal handlers, spec §4.I's
// "clear any installed alarm/signal handlers on exit".
func (t *DebugToken) clearTimers() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.crashArmed {
		signal.Stop(t.sigCh)
		close(t.sigStop)
		t.crashArmed = false
	}
}

// RunUnderRecover runs fn (the stage sequence) in its own goroutine and
// converts a debugAbort panic into its carried TestResult; any other
// panic is re-raised, matching "abort the remainder of the test"
// semantics without swallowing genuine programming errors in the
// dispatcher itself. It also races fn against t.abortCh, since a
// timeout or crash detected asynchronously (armTimeoutLocked,
// armCrashHandlersLocked) arrives on a different goroutine than the one
// running fn and cannot unwind fn's stack directly — when abortCh wins,
// RunUnderRecover returns immediately and fn is left to finish (or hang)
// in the background, the same best-effort guarantee fork mode's SIGKILL
// gives a child that ignores its first SIGTERM.
func (t *DebugToken) RunUnderRecover(fn func()) (result model.TestResult, aborted bool) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				if abort, ok := r.(debugAbort); ok {
					result = abort.result
					aborted = true
					return
				}
				panic(r)
			}
		}()
		fn()
	}()

	select {
	case <-done:
		return result, aborted
	case r := <-t.abortCh:
		return r, true
	}
}
