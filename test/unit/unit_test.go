//go:build !integration

package unit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/muonrun"
	"github.com/ehrlich-b/muonrun/examples/goloader"
)

// These tests run without spawning any subprocess: debug mode drives
// goloader's tests in-process, the way test/integration drives them
// under real fork isolation.

func TestGoloaderRegistersExpectedSuites(t *testing.T) {
	handle, err := goloader.New().Open("goloader")
	require.NoError(t, err)

	suites := map[string]bool{}
	for _, desc := range handle.Tests {
		suites[desc.Suite] = true
	}
	assert.True(t, suites["arithmetic"])
	assert.True(t, suites["strings"])
	assert.True(t, suites["lifecycle"])
}

func TestGoloaderRunsInDebugModeWithoutSubprocess(t *testing.T) {
	logger := muonrun.NewMockLogger(muonrun.LevelInfo)

	summary, err := muonrun.RunLibrary("goloader", muonrun.Params{
		Loader: goloader.New(),
		Logger: logger,
		Debug:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Total)
	assert.Equal(t, []string{"goloader"}, logger.Libraries)
}
