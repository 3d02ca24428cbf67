// Package wire implements the framed packet transport that rides over
// the AF_UNIX SOCK_STREAM socket pair connecting a dispatcher to the
// child process running one test. It mirrors src/libuipc/wire.c's
// uipc_packet_send/recv/available/sendable: resumable partial I/O,
// EINTR/EAGAIN folded into Retry, and readiness waits that recompute
// their remaining time from an absolute deadline on every restart.
package wire

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/muonrun/internal/deadline"
)

// SendContext tracks partial progress of a Send call so a Retry can
// resume without re-sending already-written bytes.
type SendContext struct {
	buf         []byte
	transferred int
}

// NewSendContext prepares ctx to send the given encoded packet.
func NewSendContext(encoded []byte) *SendContext {
	return &SendContext{buf: encoded}
}

// Send writes as much of the context's buffer as the socket accepts
// without blocking, ignoring SIGPIPE via MSG_NOSIGNAL the way the
// original blocked-and-restored sigaction did.
func Send(fd int, ctx *SendContext) Status {
	total := len(ctx.buf)
	for ctx.transferred < total {
		n, err := unix.Send(fd, ctx.buf[ctx.transferred:], unix.MSG_NOSIGNAL)
		if err != nil {
			switch err {
			case unix.EAGAIN, unix.EINTR:
				return Retry
			case unix.EPIPE:
				return Eof
			default:
				return Error
			}
		}
		if n == 0 {
			return Error
		}
		ctx.transferred += n
	}
	return Ok
}

// RecvContext tracks partial progress of a Recv call across a header
// phase and a body phase, exactly as uipc_async_context does.
type RecvContext struct {
	headerBuf   [headerSize]byte
	headerDone  int
	kind        PacketKind
	bodyLen     uint32
	body        []byte
	bodyDone    int
	headerReady bool
}

// NewRecvContext returns a fresh context for one Recv call sequence.
func NewRecvContext() *RecvContext {
	return &RecvContext{}
}

// Recv reads one packet from fd, resuming from ctx's partial state.
// Returns Ok with the decoded packet, or Retry/Eof/Nomem/Error.
func Recv(fd int, ctx *RecvContext) (Packet, Status) {
	for ctx.headerDone < headerSize {
		n, err := unix.Read(fd, ctx.headerBuf[ctx.headerDone:])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				return Packet{}, Retry
			}
			return Packet{}, Error
		}
		if n == 0 {
			return Packet{}, Eof
		}
		ctx.headerDone += n
	}

	if !ctx.headerReady {
		if ctx.headerBuf[0] != wireVersion {
			return Packet{}, Error
		}
		kind := uint32(ctx.headerBuf[4]) | uint32(ctx.headerBuf[5])<<8 |
			uint32(ctx.headerBuf[6])<<16 | uint32(ctx.headerBuf[7])<<24
		length := uint32(ctx.headerBuf[8]) | uint32(ctx.headerBuf[9])<<8 |
			uint32(ctx.headerBuf[10])<<16 | uint32(ctx.headerBuf[11])<<24
		ctx.kind = PacketKind(kind)
		ctx.bodyLen = length
		ctx.body = make([]byte, length)
		if ctx.body == nil && length != 0 {
			return Packet{}, Nomem
		}
		ctx.headerReady = true
	}

	for uint32(ctx.bodyDone) < ctx.bodyLen {
		n, err := unix.Read(fd, ctx.body[ctx.bodyDone:])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				return Packet{}, Retry
			}
			return Packet{}, Error
		}
		if n == 0 {
			return Packet{}, Eof
		}
		ctx.bodyDone += n
	}

	pkt, err := decodeBody(ctx.kind, ctx.body)
	if err != nil {
		return Packet{}, Error
	}
	return pkt, Ok
}

// WaitReadable blocks until fd has data to read or, when hasDeadline is
// set, abs passes, recomputing the remaining time from abs on each restart so
// it can be called again after a Retry without losing track of the
// overall deadline.
func WaitReadable(fd int, abs deadline.Deadline, hasDeadline bool) Status {
	return wait(fd, abs, hasDeadline, true)
}

// WaitWritable is WaitReadable's write-side counterpart.
func WaitWritable(fd int, abs deadline.Deadline, hasDeadline bool) Status {
	return wait(fd, abs, hasDeadline, false)
}

func wait(fd int, abs deadline.Deadline, hasDeadline bool, read bool) Status {
	var timeout *unix.Timeval
	if hasDeadline {
		if abs.Passed() {
			return Timeout
		}
		rem := abs.Remaining()
		tv := unix.NsecToTimeval(rem.Sec*1e9 + rem.Usec*1000)
		timeout = &tv
	}

	var readFds, writeFds unix.FdSet
	set := &readFds
	if !read {
		set = &writeFds
	}
	fdSetBit(set, fd)

	n, err := unix.Select(fd+1, &readFds, &writeFds, nil, timeout)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return Retry
		}
		return Error
	}
	if n > 0 {
		return Ok
	}
	if hasDeadline && abs.Passed() {
		return Timeout
	}
	return Retry
}

// PollReadable performs a genuine non-blocking check of whether fd
// currently has data to read: a select with an all-zero timeout, not a
// deadline that may already have elapsed before Select is ever called.
// Used to drain a socket's pending backlog without blocking once
// nothing more is immediately available — unlike WaitReadable, it takes
// no deadline.Deadline and never returns Timeout.
func PollReadable(fd int) Status {
	var readFds, writeFds unix.FdSet
	fdSetBit(&readFds, fd)

	zero := unix.Timeval{}
	n, err := unix.Select(fd+1, &readFds, &writeFds, nil, &zero)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return Retry
		}
		return Error
	}
	if n > 0 {
		return Ok
	}
	return Retry
}

func fdSetBit(set *unix.FdSet, fd int) {
	idx := fd / 64
	if idx < 0 || idx >= len(set.Bits) {
		panic(fmt.Sprintf("wire: fd %d out of FdSet range", fd))
	}
	set.Bits[idx] |= 1 << uint(fd%64)
}
