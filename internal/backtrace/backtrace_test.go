package backtrace

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureReturnsAtLeastOneFrame(t *testing.T) {
	frames := Capture(0, 32)
	require.NotEmpty(t, frames)
	assert.NotEmpty(t, frames[0].Function)
}

func TestFromStackTraceExtractsFramesFromPkgErrors(t *testing.T) {
	err := errors.New("boom")
	frames := FromStackTrace(err)
	require.NotEmpty(t, frames)
	assert.Contains(t, frames[0].Function, "TestFromStackTraceExtractsFramesFromPkgErrors")
}

func TestFromStackTraceReturnsNilForPlainError(t *testing.T) {
	err := assert.AnError
	frames := FromStackTrace(err)
	assert.Nil(t, frames)
}
