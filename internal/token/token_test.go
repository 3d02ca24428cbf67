package token

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/muonrun/internal/model"
)

func TestEncodeDecodeResultRoundTrip(t *testing.T) {
	seg := make([]byte, 4096)
	r := model.TestResult{
		Status:   model.Assertion,
		Expected: model.Success,
		Stage:    model.StageTest,
		Reason:   "1+1==3",
		Location: model.SourceLocation{File: "f.c", Line: 42, Set: true},
		Backtrace: []model.BacktraceFrame{
			{BinaryFile: "libtest.so", Function: "test_body", FunctionAddr: 0x1000, ReturnAddr: 0x2000},
		},
	}

	_, err := EncodeResult(seg, r)
	require.NoError(t, err)

	got, err := DecodeResult(seg)
	require.NoError(t, err)
	assert.Equal(t, r.Status, got.Status)
	assert.Equal(t, r.Expected, got.Expected)
	assert.Equal(t, r.Stage, got.Stage)
	assert.Equal(t, r.Reason, got.Reason)
	assert.Equal(t, r.Location, got.Location)
	require.Len(t, got.Backtrace, 1)
	assert.Equal(t, r.Backtrace[0].BinaryFile, got.Backtrace[0].BinaryFile)
	assert.Equal(t, r.Backtrace[0].Function, got.Backtrace[0].Function)
}

func TestEncodeDecodeEventRoundTrip(t *testing.T) {
	seg := make([]byte, 512)
	e := model.LogEvent{
		Stage:    model.StageTest,
		Level:    model.LevelTrace,
		Location: model.SourceLocation{File: "t.c", Line: 7, Set: true},
		Message:  "entering loop",
	}
	require.NoError(t, EncodeEvent(seg, e))

	got, err := DecodeEvent(seg)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestDebugTokenResultPanicsWithSentinelOnMatchingExpectation(t *testing.T) {
	dt := NewDebugToken(nil)
	dt.Meta(model.MetaExpect, uint32(model.Crash))

	result, aborted := dt.RunUnderRecover(func() {
		dt.Result(model.TestResult{Status: model.Crash, Reason: "boom"})
	})
	assert.True(t, aborted)
	assert.Equal(t, model.Crash, result.Status)
	assert.Equal(t, model.Crash, result.Expected)
}

func TestDebugTokenRunUnderRecoverSurvivesAsyncTimeout(t *testing.T) {
	dt := NewDebugToken(nil)
	dt.Meta(model.MetaTimeout, 10)

	result, aborted := dt.RunUnderRecover(func() {
		time.Sleep(time.Second)
	})
	assert.True(t, aborted)
	assert.Equal(t, model.Timeout, result.Status)
}

func TestDebugTokenRunUnderRecoverSurvivesAsyncCrash(t *testing.T) {
	dt := NewDebugToken(nil)
	dt.Meta(model.MetaExpect, uint32(model.Crash))

	result, aborted := dt.RunUnderRecover(func() {
		require.NoError(t, unix.Kill(os.Getpid(), unix.SIGSEGV))
		time.Sleep(time.Second)
	})
	assert.True(t, aborted)
	assert.Equal(t, model.Crash, result.Status)
}

func TestDebugTokenEventInvokesCallback(t *testing.T) {
	var got model.LogEvent
	dt := NewDebugToken(func(e model.LogEvent) { got = e })
	dt.SetStage(model.StageTest)
	dt.Event(model.LevelInfo, "f.c", 1, "hello")
	assert.Equal(t, "hello", got.Message)
}

func TestDebugTokenEventSuppressedAboveCeiling(t *testing.T) {
	called := false
	dt := NewDebugToken(func(e model.LogEvent) { called = true })
	dt.Event(model.LevelTrace, "", 0, "suppressed")
	assert.False(t, called)
}
