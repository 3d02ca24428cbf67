package model

// Loader is the external collaborator that enumerates tests in a
// compiled artifact (spec §6's loader interface; symbol discovery
// itself is an explicit non-goal of the core). Grounded on the
// teacher's internal/interfaces.Backend — an internal interface whose
// only job is dodging an import cycle between internal/dispatch and the
// root package, same as the teacher's own internal/interfaces package.
type Loader interface {
	// Open loads the artifact at path and enumerates its tests into a
	// fresh LibraryHandle.
	Open(path string) (*LibraryHandle, error)
	// Close releases any resources Open acquired for handle.
	Close(handle *LibraryHandle)
	// Name identifies this loader implementation (e.g. "goloader").
	Name() string
	// Construct performs one-shot in-process initialization for handle,
	// run under the in-process token (spec §6).
	Construct(handle *LibraryHandle) error
	// Destruct is Construct's counterpart, run once after all of
	// handle's tests have completed.
	Destruct(handle *LibraryHandle) error
}

// MetaKind distinguishes the three meta declarations a running test can
// make: expected status, timeout override, iteration count (spec §4.E's
// meta(kind, value)).
type MetaKind int

const (
	MetaExpect MetaKind = iota
	MetaTimeout
	MetaIterations
)

// TestAPI is the common surface of ForkToken and DebugToken (spec
// §4.E/§4.F): whichever token a TestDescriptor.Entry function receives,
// it calls the same four operations. Entry is declared as
// func(TestAPI) so the dispatcher can run the identical user-supplied
// function under either fork or debug isolation.
type TestAPI interface {
	SetStage(stage Stage)
	Event(level LogLevel, file string, line int, message string)
	Result(r TestResult)
	Meta(kind MetaKind, value uint32)
}

// Logger is the external collaborator that consumes engine events: a
// pluggable test-result reporter (spec §6's logger interface). Distinct
// from internal/logging.Logger, which is the engine's own operational
// logging.
type Logger interface {
	Enter()
	Leave()
	LibraryEnter(path string, handle *LibraryHandle)
	LibraryFail(reason string)
	LibraryLeave()
	SuiteEnter(name string)
	SuiteLeave()
	TestEnter(desc *TestDescriptor)
	TestLog(event LogEvent)
	TestLeave(desc *TestDescriptor, result TestResult)
	MaxLogLevel() LogLevel
}
