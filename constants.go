package muonrun

// Default configuration constants, mirrored from internal/dispatch's own
// built-in defaults so callers constructing a Params by hand have a
// documented starting point without reaching into internal/.
const (
	// DefaultTimeoutMillis bounds how long the parent read loop waits
	// for a test's result before sending it SIGTERM.
	DefaultTimeoutMillis = 1000

	// DefaultIterations is how many times each test runs unless the
	// test or a loaded RunConfig overrides it.
	DefaultIterations = 1

	// DefaultConsoleAlign is the column PASS/FAIL text right-aligns to
	// in the bundled console reporter.
	DefaultConsoleAlign = 50
)
