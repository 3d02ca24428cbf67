package shmem

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/muonrun/internal/deadline"
	"github.com/ehrlich-b/muonrun/internal/wire"
)

func handlePair(t *testing.T) (*Handle, *Handle) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	a := NewHandle(fds[0])
	b := NewHandle(fds[1])
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return a, b
}

func TestHandleSendReceivesAckAndFreesSegment(t *testing.T) {
	sender, receiver := handlePair(t)

	msg, err := NewMsg(1, uint32(wire.KindResult), os.Getpid(), 10, 1, 64)
	require.NoError(t, err)
	copy(msg.Segment.Bytes(), []byte("payload"))

	desc := wire.Message{
		MsgID:         msg.ID,
		MsgKind:       wire.KindResult,
		PayloadOffset: 0,
		SegmentSize:   64,
		SegmentPath:   msg.Segment.Path,
	}
	sender.QueueMessage(desc, msg)

	deadline := deadlineInFuture()
	// Flush the Message packet onto the wire without yet waiting for
	// the ack — the receiver hasn't looked at the socket at all yet.
	require.Equal(t, wire.Ok, sender.Process())

	require.Equal(t, wire.Ok, receiver.WaitRecv(deadline))
	got, ok := receiver.Recv()
	require.True(t, ok)
	assert.Equal(t, "payload", string(got.Segment.Bytes()[:7]))

	// Flush the Ack queued by handlePacket, then let the sender observe it.
	require.Equal(t, wire.Ok, receiver.Process())
	require.Equal(t, wire.Ok, sender.WaitDone(deadline))
	_, stillAwaiting := sender.awaitingAck[msg.ID]
	assert.False(t, stillAwaiting)

	require.NoError(t, got.Free())
}

func deadlineInFuture() deadline.Deadline {
	return deadline.Now().Add(2000)
}
