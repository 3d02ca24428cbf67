package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPassedComparesStatusToExpected(t *testing.T) {
	assert.True(t, TestResult{Status: Success, Expected: Success}.Passed())
	assert.True(t, TestResult{Status: Crash, Expected: Crash}.Passed())
	assert.False(t, TestResult{Status: Crash, Expected: Success}.Passed())
}

func TestStatusStringsCoverAllValues(t *testing.T) {
	for _, s := range []TestStatus{Success, Failure, Assertion, Crash, Timeout, Exception, Skipped} {
		assert.NotEqual(t, "Unknown", s.String())
	}
}

func TestStageStringsCoverAllValues(t *testing.T) {
	for _, s := range []Stage{StageLibrarySetup, StageFixtureSetup, StageTest, StageFixtureTeardown, StageLibraryTeardown} {
		assert.NotEqual(t, "Unknown", s.String())
	}
}
