package dispatch

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/muonrun/internal/model"
)

func TestClassifyExitSynthesizesCrashForSignalledChild(t *testing.T) {
	cmd := exec.Command("sh", "-c", "kill -SEGV $$")
	_ = cmd.Run() // a signalled child reports through ProcessState, not the returned error
	require.NotNil(t, cmd.ProcessState)

	result := classifyExit(cmd)
	assert.Equal(t, model.Crash, result.Status)
	assert.Contains(t, result.Reason, "segmentation fault")
}

func TestClassifyExitSynthesizesFailureForMissingProcessState(t *testing.T) {
	cmd := exec.Command("true")
	result := classifyExit(cmd)
	assert.Equal(t, model.Failure, result.Status)
	assert.Equal(t, "Unexpected termination", result.Reason)
}
