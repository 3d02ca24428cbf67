// Package reporter provides the one console model.Logger the engine
// ships — not a generalized reporting subsystem (pluggable logger
// back-ends beyond this are a named non-goal), but enough to exercise
// the dispatcher end to end, the way the teacher always ships a
// MockBackend in testing.go purely so backend.go itself is exercisable.
// Grounded on original_source/src/moonunit-misc/console.c.
package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ehrlich-b/muonrun/internal/model"
)

// Console is a line-oriented test-result reporter: library and suite
// headers, then one aligned PASS/FAIL line per test, mirroring
// console.c's library_enter/suite_enter/result callbacks.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	ansi   bool
	align  int
	maxLvl model.LogLevel

	current string // the test name currently between TestEnter and TestLeave
}

// ConsoleOption configures a Console at construction, the Go
// replacement for console.c's option_set callback (fd/ansi/align were
// runtime-settable options there; here they're constructor arguments
// since there is no generic plugin-option string to parse).
type ConsoleOption func(*Console)

// WithOutput directs output at w instead of the default os.Stdout.
func WithOutput(w io.Writer) ConsoleOption {
	return func(c *Console) { c.out = w }
}

// WithANSI enables ANSI color codes around PASS/FAIL, matching
// console.c's ansi option.
func WithANSI(enabled bool) ConsoleOption {
	return func(c *Console) { c.ansi = enabled }
}

// WithAlign sets the column PASS/FAIL/reason text is right-aligned to,
// matching console.c's align option (default 50).
func WithAlign(col int) ConsoleOption {
	return func(c *Console) { c.align = col }
}

// WithMaxLogLevel caps which LogEvent severities TestLog prints.
func WithMaxLogLevel(level model.LogLevel) ConsoleOption {
	return func(c *Console) { c.maxLvl = level }
}

// NewConsole constructs a Console with console.c's defaults (align 50,
// no ANSI, stdout) plus any supplied options.
func NewConsole(opts ...ConsoleOption) *Console {
	c := &Console{
		out:    os.Stdout,
		align:  50,
		maxLvl: model.LevelInfo,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Console) Enter() {}
func (c *Console) Leave() {}

// LibraryEnter prints the library header, console.c's library_enter.
func (c *Console) LibraryEnter(path string, handle *model.LibraryHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "Library: %s\n", path)
}

// LibraryFail reports a library that failed to load at all — no
// equivalent callback existed in console.c, since the original loader
// aborted the whole process on a load failure; here the dispatcher
// keeps running, so the reporter needs a way to surface it.
func (c *Console) LibraryFail(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "  (failed to load: %s)\n", reason)
}

func (c *Console) LibraryLeave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out)
}

// SuiteEnter prints the suite header, console.c's suite_enter.
func (c *Console) SuiteEnter(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "  Suite: %s\n", name)
}

func (c *Console) SuiteLeave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out)
}

func (c *Console) TestEnter(desc *model.TestDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = desc.Name
	fmt.Fprintf(c.out, "    %s:", desc.Name)
}

// TestLog prints a log line emitted by the running test, gated by
// MaxLogLevel the way console.c's logger ignored events above its own
// configured verbosity.
func (c *Console) TestLog(event model.LogEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if event.Level > c.maxLvl {
		return
	}
	fmt.Fprintf(c.out, "\n      [%s] %s", event.Level, event.Message)
}

// TestLeave prints the aligned PASS/FAIL line, console.c's result().
// A result whose status matches its expected status prints a bare PASS;
// any other result prints the stage, FAIL, and then the reason (prefixed
// with file:line when a location is set) on its own line.
func (c *Console) TestLeave(desc *model.TestDescriptor, result model.TestResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := c.current
	c.current = ""

	if result.Passed() {
		c.pad(c.align - len(name) - 5 - 4)
		c.status("PASS", "32")
		fmt.Fprintln(c.out)
		return
	}

	stage := result.Stage.String()
	c.pad(c.align - len(name) - len(stage) - 3 - 5 - 4)
	fmt.Fprintf(c.out, "(%s) ", stage)
	c.status("FAIL", "31")
	fmt.Fprintln(c.out)

	reason := result.Reason
	if reason == "" {
		reason = "unknown"
	}
	message := reason
	if result.Location.Set && result.Location.Line != 0 {
		message = fmt.Sprintf("%s:%d: %s", filepath.Base(result.Location.File), result.Location.Line, reason)
	}
	c.pad(c.align - len(message))
	fmt.Fprintf(c.out, "%s\n", message)
}

func (c *Console) MaxLogLevel() model.LogLevel {
	return c.maxLvl
}

func (c *Console) status(word, ansiCode string) {
	if c.ansi {
		fmt.Fprintf(c.out, "\x1b[%sm%s\x1b[0m", ansiCode, word)
		return
	}
	fmt.Fprint(c.out, word)
}

func (c *Console) pad(n int) {
	if n > 0 {
		fmt.Fprint(c.out, strings.Repeat(" ", n))
	}
}

var _ model.Logger = (*Console)(nil)
