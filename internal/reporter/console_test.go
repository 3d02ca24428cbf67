package reporter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ehrlich-b/muonrun/internal/model"
)

func TestConsoleReportsPassingTest(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(WithOutput(&buf), WithAlign(20))

	desc := &model.TestDescriptor{Suite: "suite", Name: "ok"}
	c.TestEnter(desc)
	c.TestLeave(desc, model.TestResult{Status: model.Success, Expected: model.Success})

	out := buf.String()
	assert.Contains(t, out, "ok:")
	assert.Contains(t, out, "PASS")
}

func TestConsoleReportsFailingTestWithStageAndReason(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(WithOutput(&buf), WithAlign(20))

	desc := &model.TestDescriptor{Suite: "suite", Name: "boom"}
	c.TestEnter(desc)
	c.TestLeave(desc, model.TestResult{
		Status:   model.Failure,
		Expected: model.Success,
		Stage:    model.StageTest,
		Reason:   "assertion failed",
	})

	out := buf.String()
	assert.Contains(t, out, "(Test)")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "assertion failed")
}

func TestConsoleSuppressesLogAboveMaxLevel(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(WithOutput(&buf), WithMaxLogLevel(model.LevelInfo))

	c.TestLog(model.LogEvent{Level: model.LevelDebug, Message: "should not appear"})
	assert.Empty(t, buf.String())

	c.TestLog(model.LogEvent{Level: model.LevelInfo, Message: "should appear"})
	assert.Contains(t, buf.String(), "should appear")
}

func TestConsoleLibraryAndSuiteHeaders(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(WithOutput(&buf))

	c.LibraryEnter("/path/to/lib.so", &model.LibraryHandle{})
	c.SuiteEnter("mysuite")

	out := buf.String()
	assert.Contains(t, out, "Library: /path/to/lib.so")
	assert.Contains(t, out, "Suite: mysuite")
}
