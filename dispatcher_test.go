package muonrun

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLibraryReportsEachTestAndTalliesSummary(t *testing.T) {
	handle := &LibraryHandle{Path: "lib.so"}
	handle.Tests = []*TestDescriptor{
		{Suite: "b", Name: "ok", Library: handle, Entry: func(api TestAPI) {}},
		{Suite: "a", Name: "fails", Library: handle, Entry: func(api TestAPI) {
			api.Result(TestResult{Status: Failure, Reason: "boom"})
		}},
		{Suite: "a", Name: "ok", Library: handle, Entry: func(api TestAPI) {}},
	}
	loader := NewMockLoader(handle)
	logger := NewMockLogger(LevelInfo)

	summary, err := RunLibrary("lib.so", Params{
		Loader: loader,
		Logger: logger,
		Debug:  true, // in-process, so the test runs in this process without a re-exec
	})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Passed)
	assert.Equal(t, 1, summary.Failed)

	// suite a's two tests bracket before suite b's one, per sort-by-suite
	assert.Equal(t, []string{"a", "b"}, logger.Suites)
	assert.Equal(t, 1, logger.Entered)
	assert.Equal(t, 1, logger.Left)
	assert.Equal(t, []string{"lib.so"}, logger.Libraries)
}

func TestRunLibraryReportsLoadFailure(t *testing.T) {
	loader := &failingLoader{err: NewError("Open", ErrCodeLoadFailed, "corrupt")}
	logger := NewMockLogger(LevelInfo)

	_, err := RunLibrary("broken.so", Params{Loader: loader, Logger: logger})
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeLoadFailed))
	require.Len(t, logger.LibraryFailures, 1)
	assert.Contains(t, logger.LibraryFailures[0], "corrupt")
}

type failingLoader struct{ err error }

func (f *failingLoader) Open(path string) (*LibraryHandle, error) { return nil, f.err }
func (f *failingLoader) Close(handle *LibraryHandle)              {}
func (f *failingLoader) Name() string                             { return "failing" }
func (f *failingLoader) Construct(handle *LibraryHandle) error     { return nil }
func (f *failingLoader) Destruct(handle *LibraryHandle) error      { return nil }

func TestErrorWrapsAndComparesByCode(t *testing.T) {
	base := NewError("Dispatch", ErrCodeDispatchFailed, "timed out")
	wrapped := WrapError("RunTest", base)

	assert.ErrorIs(t, wrapped, base)
	assert.True(t, IsCode(wrapped, ErrCodeDispatchFailed))
	assert.Contains(t, wrapped.Error(), "RunTest")
}
