// Package procsync implements the child-side crash-signal plumbing and
// the parent-side bounded child wait, grounded on
// src/moonunit-unix/unixharness.c's signal_handler/unixharness_dispatch.
// Go cannot install a sigaction with a restricted mask the way C can —
// there is no way to say "block the rest of this signal set while this
// handler runs" — so the restriction that one handler cannot preempt
// another is approximated by funneling every crash signal through a
// single signal.Notify channel read by one dedicated goroutine, which is
// the idiomatic Go equivalent of a shared blocking mask. This is a
// deliberate, named deviation from the source, not a silent one.
package procsync

import (
	"fmt"
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
)

// CrashSignals is the set the child installs handlers for, matching
// unixharness.c's signal(SIGSEGV...)/signal(SIGPIPE...)/... list plus
// SIGBUS, SIGFPE and SIGTERM named by spec §4.H.
var CrashSignals = []os.Signal{
	unix.SIGSEGV,
	unix.SIGBUS,
	unix.SIGILL,
	unix.SIGPIPE,
	unix.SIGFPE,
	unix.SIGABRT,
	unix.SIGTERM,
}

// CrashHandler receives the signal that fired; it is expected to
// synthesize a Crash result through the test token and terminate the
// process, exactly as unixharness.c's signal_handler does.
type CrashHandler func(sig os.Signal)

// Watcher funnels CrashSignals through one signal.Notify channel read by
// a single goroutine — the child installs exactly one of these.
type Watcher struct {
	ch      chan os.Signal
	stop    chan struct{}
	once    sync.Once
	handler CrashHandler
}

// NewWatcher installs signal handling for CrashSignals and starts the
// dedicated goroutine that invokes handler for the first signal it sees.
// Only the first signal is handled — matching the original's "this is
// the designated child's one-shot crash path" behavior, since the
// process is expected to exit from within handler.
func NewWatcher(handler CrashHandler) *Watcher {
	w := &Watcher{
		ch:      make(chan os.Signal, len(CrashSignals)),
		stop:    make(chan struct{}),
		handler: handler,
	}
	signal.Notify(w.ch, CrashSignals...)
	go w.run()
	return w
}

func (w *Watcher) run() {
	select {
	case sig := <-w.ch:
		w.handler(sig)
	case <-w.stop:
	}
}

// Stop removes the signal handlers, mirroring the source's "grandchild
// reinstalls the default and re-raises" concern: once a test is done,
// its own child processes (if any) must not have this watcher's signals
// still wired to it.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		signal.Stop(w.ch)
		close(w.stop)
	})
}

// Description returns a strsignal-equivalent description of sig, used
// to build the Crash result's reason string the way signal_handler's
// strsignal(sig) does.
func Description(sig os.Signal) string {
	if s, ok := sig.(unix.Signal); ok {
		return fmt.Sprintf("%s (signal %d)", signalName(s), int(s))
	}
	return sig.String()
}

func signalName(s unix.Signal) string {
	switch s {
	case unix.SIGSEGV:
		return "segmentation fault"
	case unix.SIGBUS:
		return "bus error"
	case unix.SIGILL:
		return "illegal instruction"
	case unix.SIGPIPE:
		return "broken pipe"
	case unix.SIGFPE:
		return "floating point exception"
	case unix.SIGABRT:
		return "aborted"
	case unix.SIGTERM:
		return "terminated"
	default:
		return s.String()
	}
}
