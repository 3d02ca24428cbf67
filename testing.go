package muonrun

import "sync"

// MockLoader is a trivial in-memory Loader for exercising RunLibrary
// and Dispatcher without a real compiled artifact — the same role the
// teacher's MockBackend plays for backend.go: it implements the
// interface fully and tracks calls for test assertions.
type MockLoader struct {
	mu sync.Mutex

	// Handle is returned by Open regardless of the requested path;
	// tests build it directly with whatever TestDescriptors they want
	// exercised.
	Handle *LibraryHandle

	openCalls, closeCalls, constructCalls, destructCalls int
	lastPath                                             string
}

// NewMockLoader wraps handle in a MockLoader.
func NewMockLoader(handle *LibraryHandle) *MockLoader {
	return &MockLoader{Handle: handle}
}

func (m *MockLoader) Open(path string) (*LibraryHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openCalls++
	m.lastPath = path
	return m.Handle, nil
}

func (m *MockLoader) Close(handle *LibraryHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
}

func (m *MockLoader) Name() string { return "mock" }

func (m *MockLoader) Construct(handle *LibraryHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.constructCalls++
	return nil
}

func (m *MockLoader) Destruct(handle *LibraryHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destructCalls++
	return nil
}

// CallCounts mirrors the teacher's MockBackend.CallCounts testing
// utility method.
func (m *MockLoader) CallCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		"open":      m.openCalls,
		"close":     m.closeCalls,
		"construct": m.constructCalls,
		"destruct":  m.destructCalls,
	}
}

// LastPath returns the path most recently passed to Open.
func (m *MockLoader) LastPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPath
}

// MockLogger records every Logger callback it receives, for assertions
// in tests that exercise RunLibrary end to end without a console.
type MockLogger struct {
	mu sync.Mutex

	Entered, Left   int
	Libraries       []string
	LibraryFailures []string
	Suites          []string
	TestEnters      []string
	TestLeaves      []TestResult
	Events          []string
	maxLogLevel     LogLevel
}

// NewMockLogger creates a MockLogger with the given max log level.
func NewMockLogger(maxLogLevel LogLevel) *MockLogger {
	return &MockLogger{maxLogLevel: maxLogLevel}
}

func (m *MockLogger) Enter() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entered++
}

func (m *MockLogger) Leave() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Left++
}

func (m *MockLogger) LibraryEnter(path string, handle *LibraryHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Libraries = append(m.Libraries, path)
}

func (m *MockLogger) LibraryFail(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LibraryFailures = append(m.LibraryFailures, reason)
}

func (m *MockLogger) LibraryLeave() {}

func (m *MockLogger) SuiteEnter(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Suites = append(m.Suites, name)
}

func (m *MockLogger) SuiteLeave() {}

func (m *MockLogger) TestEnter(desc *TestDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TestEnters = append(m.TestEnters, desc.Suite+"/"+desc.Name)
}

func (m *MockLogger) TestLog(event LogEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event.Message)
}

func (m *MockLogger) TestLeave(desc *TestDescriptor, result TestResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TestLeaves = append(m.TestLeaves, result)
}

func (m *MockLogger) MaxLogLevel() LogLevel {
	return m.maxLogLevel
}

var (
	_ Loader = (*MockLoader)(nil)
	_ Logger = (*MockLogger)(nil)
)
