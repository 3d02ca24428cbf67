package dispatch

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/muonrun/internal/model"
	"github.com/ehrlich-b/muonrun/internal/procsync"
)

// classifyExit synthesizes a result for a child that exited without
// ever sending a Result message, per spec §4.G step 5: signalled →
// Crash with the signal's description; normal exit → Failure with
// reason "Unexpected termination".
func classifyExit(cmd *exec.Cmd) model.TestResult {
	state := cmd.ProcessState
	if state == nil {
		return model.TestResult{Status: model.Failure, Reason: "Unexpected termination"}
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		sig := unix.Signal(ws.Signal())
		return model.TestResult{
			Status: model.Crash,
			Reason: procsync.Description(sig),
		}
	}
	return model.TestResult{Status: model.Failure, Reason: "Unexpected termination"}
}
