package procsync

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/muonrun/internal/deadline"
)

func TestWatcherInvokesHandlerOnSignal(t *testing.T) {
	caught := make(chan os.Signal, 1)
	w := NewWatcher(func(sig os.Signal) { caught <- sig })
	defer w.Stop()

	require.NoError(t, unix.Kill(os.Getpid(), unix.SIGTERM))

	select {
	case sig := <-caught:
		assert.Equal(t, unix.SIGTERM, sig)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestDescriptionNamesKnownSignals(t *testing.T) {
	assert.Contains(t, Description(unix.SIGSEGV), "segmentation fault")
	assert.Contains(t, Description(unix.SIGTERM), "terminated")
}

func TestBoundedWaiterExitsBeforeDeadline(t *testing.T) {
	cmd := exec.Command("sh", "-c", "exit 0")
	require.NoError(t, cmd.Start())

	bw, err := NewBoundedWaiter(cmd)
	require.NoError(t, err)
	defer bw.Close()

	result := bw.Wait(deadline.Now().Add(2000))
	assert.Equal(t, Exited, result)
}

func TestBoundedWaiterTimesOut(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	defer cmd.Process.Kill()

	bw, err := NewBoundedWaiter(cmd)
	require.NoError(t, err)
	defer bw.Close()

	result := bw.Wait(deadline.Now().Add(50))
	assert.Equal(t, TimedOut, result)
}
