package procsync

import (
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/muonrun/internal/deadline"
)

// WaitResult is the outcome of a bounded child wait.
type WaitResult int

const (
	// Exited means the child was reaped before the deadline.
	Exited WaitResult = iota
	// TimedOut means the deadline passed first; the caller is
	// responsible for SIGKILL plus a final unbounded reap.
	TimedOut
)

// BoundedWaiter lets a parent wait for a child with an absolute
// deadline without racing SIGCHLD. Go's runtime already reaps children
// asynchronously (wait4 happens inside the runtime's own SIGCHLD
// handling), so blocking SIGCHLD and sigtimedwait-ing on it the way the
// C original's first option does would fight the runtime. Instead this
// uses the self-pipe variant spec §4.H names as an equivalent
// alternative: a dedicated goroutine blocks in cmd.Wait() and writes a
// byte to a pipe on completion, and Wait selects on that pipe's
// read end against the deadline with unix.Select.
type BoundedWaiter struct {
	cmd      *exec.Cmd
	done     *os.File
	doneSend *os.File
	result   chan struct{}
}

// NewBoundedWaiter starts the background reaper for cmd, which must
// already have been Start()ed.
func NewBoundedWaiter(cmd *exec.Cmd) (*BoundedWaiter, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	bw := &BoundedWaiter{cmd: cmd, done: r, doneSend: w, result: make(chan struct{})}
	go bw.reap()
	return bw, nil
}

func (bw *BoundedWaiter) reap() {
	_ = bw.cmd.Wait()
	bw.doneSend.Write([]byte{1})
	close(bw.result)
}

// Wait blocks until the child exits or abs passes, whichever is first.
func (bw *BoundedWaiter) Wait(abs deadline.Deadline) WaitResult {
	for {
		if abs.Passed() {
			return TimedOut
		}
		rem := abs.Remaining()
		tv := unix.NsecToTimeval(rem.Sec*1e9 + rem.Usec*1000)

		var readFds unix.FdSet
		fd := int(bw.done.Fd())
		readFds.Bits[fd/64] |= 1 << uint(fd%64)

		n, err := unix.Select(fd+1, &readFds, nil, nil, &tv)
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return TimedOut
		}
		if n > 0 {
			return Exited
		}
	}
}

// Close releases the self-pipe fds. Safe to call after Wait returns
// Exited; if it returns TimedOut the caller should SIGKILL and call
// Wait again with a fresh, generous deadline to perform the final reap
// before calling Close.
func (bw *BoundedWaiter) Close() {
	bw.done.Close()
	bw.doneSend.Close()
}
