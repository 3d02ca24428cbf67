package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/muonrun/internal/deadline"
)

func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestSendRecvMessageRoundTrip(t *testing.T) {
	a, b := socketpair(t)

	msg := Message{
		MsgID:         7,
		MsgKind:       KindResult,
		PayloadOffset: 16,
		SegmentSize:   4096,
		SegmentPath:   "/mu_100_7_1",
	}
	sendCtx := NewSendContext(EncodeMessage(msg))
	require.Equal(t, Ok, Send(a, sendCtx))

	recvCtx := NewRecvContext()
	pkt, status := Recv(b, recvCtx)
	require.Equal(t, Ok, status)
	assert.Equal(t, PacketMessage, pkt.Kind)
	assert.Equal(t, msg, pkt.Message)
}

func TestSendRecvAckRoundTrip(t *testing.T) {
	a, b := socketpair(t)

	sendCtx := NewSendContext(EncodeAck(Ack{MsgID: 42}))
	require.Equal(t, Ok, Send(a, sendCtx))

	recvCtx := NewRecvContext()
	pkt, status := Recv(b, recvCtx)
	require.Equal(t, Ok, status)
	assert.Equal(t, PacketAck, pkt.Kind)
	assert.Equal(t, uint32(42), pkt.Ack.MsgID)
}

func TestRecvEofOnClosedPeer(t *testing.T) {
	a, b := socketpair(t)
	unix.Close(a)

	recvCtx := NewRecvContext()
	_, status := Recv(b, recvCtx)
	assert.Equal(t, Eof, status)
}

func TestWaitReadableTimesOutPastDeadline(t *testing.T) {
	_, b := socketpair(t)

	past := deadline.Now().Add(-10)
	status := WaitReadable(b, past, true)
	assert.Equal(t, Timeout, status)
}
