package dispatch

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/muonrun/internal/backtrace"
	"github.com/ehrlich-b/muonrun/internal/deadline"
	"github.com/ehrlich-b/muonrun/internal/model"
	"github.com/ehrlich-b/muonrun/internal/procsync"
	"github.com/ehrlich-b/muonrun/internal/shmem"
	"github.com/ehrlich-b/muonrun/internal/token"
	"github.com/ehrlich-b/muonrun/internal/wire"
)

// Go has no safe fork()-without-exec: after a raw fork only the forking
// OS thread survives in the child, while the Go scheduler/GC/goroutine-held
// locks are all still "present" in the copied address space and corrupt
// state the moment the child touches the runtime. The idiomatic
// replacement is fork+exec: re-invoke the same binary with a sentinel
// environment variable, inheriting one end of a socketpair(2) via
// exec.Cmd.ExtraFiles. These constants are the contract between the
// parent side below and MaybeRunChild, which the re-invoked process's
// main() calls before doing anything else.
const (
	envChildSentinel = "MUONRUN_CHILD"
	envChildLibrary  = "MUONRUN_CHILD_LIBRARY"
	envChildSuite    = "MUONRUN_CHILD_SUITE"
	envChildTest     = "MUONRUN_CHILD_TEST"
	envChildMaxLevel = "MUONRUN_CHILD_MAX_LEVEL"

	// childSocketFD is where the inherited socketpair end lands in the
	// child: exec.Cmd.ExtraFiles starts allocating at fd 3 (0/1/2 are
	// stdin/stdout/stderr), and ExtraFiles[0] here is always that one fd.
	childSocketFD = 3
)

// MaybeRunChild inspects the environment for the fork-mode sentinel. If
// present, it reconstructs the named test from loader, runs exactly one
// iteration under a ForkToken, and terminates the process — mirroring
// the child branch of unixharness_dispatch, just entered via re-exec
// instead of by returning 0 from fork(). The caller's main() should call
// this before parsing CLI flags or doing anything else. It returns only
// when the sentinel is absent, and main() then carries on as usual; when
// the sentinel is set it never returns, since the child always calls
// os.Exit.
func MaybeRunChild(loader model.Loader) {
	if os.Getenv(envChildSentinel) == "" {
		return
	}
	runChild(loader)
	// runChild always terminates the process; this is unreachable, but
	// guards against a future runChild refactor silently falling through.
	os.Exit(1)
}

func runChild(loader model.Loader) {
	libPath := os.Getenv(envChildLibrary)
	suite := os.Getenv(envChildSuite)
	name := os.Getenv(envChildTest)

	handle, err := loader.Open(libPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "muonrun: child: loader.Open(%q): %v\n", libPath, err)
		os.Exit(1)
	}
	defer loader.Close(handle)

	var desc *model.TestDescriptor
	for _, td := range handle.Tests {
		if td.Suite == suite && td.Name == name {
			desc = td
			break
		}
	}
	if desc == nil {
		fmt.Fprintf(os.Stderr, "muonrun: child: test %s/%s not found in %s\n", suite, name, libPath)
		os.Exit(1)
	}

	h := shmem.NewHandle(childSocketFD)
	tok := token.NewForkToken(h, childSocketFD)
	if lvl := os.Getenv(envChildMaxLevel); lvl != "" {
		var v int
		if _, err := fmt.Sscanf(lvl, "%d", &v); err == nil {
			tok.SetMaxLogLevel(model.LogLevel(v))
		}
	}

	watcher := procsync.NewWatcher(func(sig os.Signal) {
		tok.Result(model.TestResult{
			Status:    model.Crash,
			Reason:    procsync.Description(sig),
			Backtrace: backtrace.Capture(1, 32),
		})
	})
	defer watcher.Stop()

	runChildStages(tok, handle, desc)

	// Every stage ran without the test (or a stage itself) calling
	// Result — spec §4.G step 3: "If no stage has produced a result by
	// the end, emit an explicit Success result."
	tok.Result(model.TestResult{Status: model.Success, Stage: model.StageTest})
}

// runChildStages runs LibrarySetup, FixtureSetup, Test, FixtureTeardown,
// LibraryTeardown in order. A Go-level panic from any stage (distinct
// from a real OS signal, which procsync's Watcher already handles) is
// reported as Exception — the status spec §3 adds beyond the original
// C enum specifically for a managed-runtime fault of this kind. Because
// ForkToken.Result always exits the process, a call to Result from
// within a stage never returns here. The recovered value is wrapped with
// errors.WithStack so the Exception's Backtrace is the engine's own Go
// stack at the panic site, distinct from the backtrace.Capture call the
// procsync.Watcher callback in runChild makes for a real OS crash
// signal.
func runChildStages(tok *token.ForkToken, handle *model.LibraryHandle, desc *model.TestDescriptor) {
	defer func() {
		if r := recover(); r != nil {
			wrapped := errors.WithStack(fmt.Errorf("%v", r))
			tok.Result(model.TestResult{
				Status:    model.Exception,
				Reason:    fmt.Sprintf("%v", r),
				Backtrace: backtrace.FromStackTrace(wrapped),
			})
		}
	}()

	fixtures := handle.Fixtures[desc.Suite]

	runThunk(tok, model.StageLibrarySetup, handle.LibrarySetup)
	runThunk(tok, model.StageFixtureSetup, fixtures.Setup)

	tok.SetStage(model.StageTest)
	desc.Entry(tok)

	runThunk(tok, model.StageFixtureTeardown, fixtures.Teardown)
	runThunk(tok, model.StageLibraryTeardown, handle.LibraryTeardown)
}

// runThunk runs an optional setup/teardown thunk, reporting its error
// (if any) as a Failure result tagged with stage — which, since Result
// exits the process, ends the test immediately, exactly as a failing
// LibrarySetup/FixtureSetup/Teardown should.
func runThunk(tok *token.ForkToken, stage model.Stage, thunk func() error) {
	if thunk == nil {
		return
	}
	tok.SetStage(stage)
	if err := thunk(); err != nil {
		tok.Result(model.TestResult{
			Status: model.Failure,
			Stage:  stage,
			Reason: err.Error(),
		})
	}
}

// runForkIteration is the parent side of one fork-mode iteration: spawn
// a child, drive the read loop, classify the outcome.
func (d *Dispatcher) runForkIteration(desc *model.TestDescriptor) iterationOutcome {
	d.log.Debug("dispatch: spawning fork child", "suite", desc.Suite, "test", desc.Name)
	cmd, parentFd, err := d.spawnChild(desc)
	if err != nil {
		return iterationOutcome{result: model.TestResult{Status: model.Failure, Reason: err.Error()}}
	}

	waiter, err := procsync.NewBoundedWaiter(cmd)
	if err != nil {
		unix.Close(parentFd)
		return iterationOutcome{result: model.TestResult{Status: model.Failure, Reason: "bounded waiter: " + err.Error()}}
	}
	defer waiter.Close()

	handle := shmem.NewHandle(parentFd)
	defer handle.Close()
	defer unix.Close(parentFd)

	return d.driveParentLoop(cmd, waiter, handle)
}

// spawnChild re-execs the current binary with the fork-mode sentinel
// set, handing it one end of a fresh socketpair via ExtraFiles, and
// returns the running command plus the parent's end of that socket.
func (d *Dispatcher) spawnChild(desc *model.TestDescriptor) (*exec.Cmd, int, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, -1, errors.Wrap(err, "socketpair")
	}
	parentFd, childFd := fds[0], fds[1]

	exe, err := os.Executable()
	if err != nil {
		unix.Close(parentFd)
		unix.Close(childFd)
		return nil, -1, errors.Wrap(err, "os.Executable")
	}

	childFile := os.NewFile(uintptr(childFd), "muonrun-child-socket")
	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(),
		envChildSentinel+"=1",
		envChildLibrary+"="+desc.Library.Path,
		envChildSuite+"="+desc.Suite,
		envChildTest+"="+desc.Name,
		fmt.Sprintf("%s=%d", envChildMaxLevel, d.cfg.MaxLogLevel),
	)
	cmd.ExtraFiles = []*os.File{childFile}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		unix.Close(parentFd)
		childFile.Close()
		return nil, -1, errors.Wrap(err, "exec")
	}
	childFile.Close() // parent's copy of the fd the child inherited

	return cmd, parentFd, nil
}

// DebugAttach spawns desc's child the same way a fork-mode iteration
// does, immediately stops it with SIGSTOP, and returns its pid without
// driving the parent read loop — the non-goal-scoped "surface a
// suspended pid for external debugger attachment" operation named in
// SPEC_FULL.md's Non-goals. The caller is responsible for SIGCONT/
// SIGKILL once done; muonrun itself never resumes this child.
func (d *Dispatcher) DebugAttach(desc *model.TestDescriptor) (int, error) {
	cmd, parentFd, err := d.spawnChild(desc)
	if err != nil {
		return 0, err
	}
	unix.Close(parentFd) // no transport needed for a debugger-attached child
	pid := cmd.Process.Pid
	if err := cmd.Process.Signal(syscall.SIGSTOP); err != nil {
		return pid, errors.Wrap(err, "SIGSTOP")
	}
	return pid, nil
}

// driveParentLoop is spec §4.G step 4's parent read loop plus step 5's
// post-loop classification, grounded on unixharness_dispatch's parent
// branch.
func (d *Dispatcher) driveParentLoop(cmd *exec.Cmd, waiter *procsync.BoundedWaiter, handle *shmem.Handle) iterationOutcome {
	abs := deadline.Now().Add(d.cfg.DefaultTimeoutMillis)
	timeoutMillis := d.cfg.DefaultTimeoutMillis
	expected := model.Success
	timedOutOnce := false
	var result model.TestResult
	haveResult := false
	overrideN := 0

recvLoop:
	for {
		status := handle.WaitRecv(abs)
		switch status {
		case wire.Ok:
			msg, ok := handle.Recv()
			if !ok {
				continue
			}
			done, r := d.handleMessage(msg)
			if msg.Kind == uint32(wire.KindExpect) {
				expected = model.TestStatus(token.DecodeMeta(msg.Segment.Bytes()[msg.PayloadOffset():]))
			}
			if msg.Kind == uint32(wire.KindTimeout) {
				ms := int64(token.DecodeMeta(msg.Segment.Bytes()[msg.PayloadOffset():]))
				timeoutMillis = ms
				abs = deadline.Now().Add(ms)
			}
			if msg.Kind == uint32(wire.KindIterations) {
				overrideN = int(token.DecodeMeta(msg.Segment.Bytes()[msg.PayloadOffset():]))
			}
			_ = msg.Free()
			if done {
				result = r
				haveResult = true
				break recvLoop
			}
		case wire.Timeout:
			if !timedOutOnce {
				timedOutOnce = true
				_ = cmd.Process.Signal(syscall.SIGTERM)
				abs = deadline.Now().Add(100)
				continue
			}
			break recvLoop
		default:
			break recvLoop
		}
	}

	waitAbs := abs
	if waitAbs.Passed() {
		waitAbs = deadline.Now().Add(500)
	}
	if waiter.Wait(waitAbs) == procsync.TimedOut {
		_ = cmd.Process.Kill()
		waiter.Wait(deadline.Now().Add(2000))
	}

	if !haveResult {
		if timedOutOnce {
			result = model.TestResult{Status: model.Timeout, Reason: fmt.Sprintf("test timed out after %dms", timeoutMillis)}
		} else {
			result = classifyExit(cmd)
		}
	} else if timedOutOnce {
		result.Status = model.Timeout
	}
	if result.Expected == 0 {
		result.Expected = expected
	}
	d.log.Debug("dispatch: fork child finished", "status", result.Status.String())

	return iterationOutcome{result: result, overrideN: overrideN}
}

// handleMessage processes one inbox message: Event is forwarded to the
// logger and consumed; Result is decoded and reported as done. Expect/
// Timeout/Iterations are left for the caller to decode (it already has
// the raw bytes) since they update loop-local state the message itself
// doesn't carry.
func (d *Dispatcher) handleMessage(msg *shmem.Msg) (done bool, result model.TestResult) {
	seg := msg.Segment.Bytes()[msg.PayloadOffset():]
	switch wire.MessageKind(msg.Kind) {
	case wire.KindEvent:
		if ev, err := token.DecodeEvent(seg); err == nil && d.cfg.Logger != nil {
			d.cfg.Logger.TestLog(ev)
		}
		return false, model.TestResult{}
	case wire.KindResult:
		r, err := token.DecodeResult(seg)
		if err != nil {
			return true, model.TestResult{Status: model.Failure, Reason: "result decode: " + err.Error()}
		}
		return true, r
	default:
		return false, model.TestResult{}
	}
}
