package shmem

import (
	"github.com/ehrlich-b/muonrun/internal/deadline"
	"github.com/ehrlich-b/muonrun/internal/logging"
	"github.com/ehrlich-b/muonrun/internal/wire"
)

// outboxEntry pairs an encoded packet with the Msg it originated from
// (nil for a bare Ack packet), so a successfully sent Message packet can
// move into awaitingAck.
type outboxEntry struct {
	ctx *wire.SendContext
	msg *Msg // nil for Ack packets
}

// Handle is one endpoint of the shared-memory message layer riding over
// a single socket fd — the Go counterpart of struct __uipc_handle.
// Three queues mirror the original: outbound packets not yet fully
// written, sent Message packets awaiting the peer's Ack, and fully
// received-and-acked messages waiting for the caller to consume them.
type Handle struct {
	fd          int
	outbox      []*outboxEntry
	awaitingAck map[uint32]*Msg
	inbox       []*Msg
	recvCtx     *wire.RecvContext
	log         *logging.Logger
}

// NewHandle wraps fd (one end of a connected socket pair) in a Handle.
func NewHandle(fd int) *Handle {
	return &Handle{
		fd:          fd,
		awaitingAck: make(map[uint32]*Msg),
		recvCtx:     wire.NewRecvContext(),
		log:         logging.Default(),
	}
}

// QueueMessage enqueues a Message packet for sending; msg is kept alive
// (refcounted) until the peer acks it.
func (h *Handle) QueueMessage(desc wire.Message, msg *Msg) {
	msg.Send()
	h.outbox = append(h.outbox, &outboxEntry{ctx: wire.NewSendContext(wire.EncodeMessage(desc)), msg: msg})
}

// QueueAck enqueues a bare Ack packet for sending.
func (h *Handle) QueueAck(id uint32) {
	h.outbox = append(h.outbox, &outboxEntry{ctx: wire.NewSendContext(wire.EncodeAck(wire.Ack{MsgID: id}))})
}

// Recv pops one received-and-acked message, if any is queued.
func (h *Handle) Recv() (*Msg, bool) {
	if len(h.inbox) == 0 {
		return nil, false
	}
	m := h.inbox[0]
	h.inbox = h.inbox[1:]
	return m, true
}

// Process drains as much of the outbox as the socket will currently
// accept and, if anything is readable, processes a batch of incoming
// packets: an Ack clears the corresponding awaitingAck entry and frees
// its segment (no fallthrough into the Message case — this is the spec's
// resolved Open Question, confirmed against the original's own
// non-buggy uipc_process); a Message packet opens the peer's segment,
// queues it in inbox, and queues an Ack back.
func (h *Handle) Process() wire.Status {
	for len(h.outbox) > 0 {
		entry := h.outbox[0]
		status := wire.Send(h.fd, entry.ctx)
		switch status {
		case wire.Ok:
			h.outbox = h.outbox[1:]
			if entry.msg != nil {
				h.awaitingAck[entry.msg.ID] = entry.msg
			}
		case wire.Retry:
			goto drainInbox
		default:
			return status
		}
	}

drainInbox:
	for {
		if wire.PollReadable(h.fd) != wire.Ok {
			return wire.Ok
		}
		pkt, status := wire.Recv(h.fd, h.recvCtx)
		switch status {
		case wire.Ok:
			h.recvCtx = wire.NewRecvContext()
			h.handlePacket(pkt)
		case wire.Retry:
			return wire.Ok
		default:
			return status
		}
	}
}

func (h *Handle) handlePacket(pkt wire.Packet) {
	switch pkt.Kind {
	case wire.PacketAck:
		if msg, ok := h.awaitingAck[pkt.Ack.MsgID]; ok {
			delete(h.awaitingAck, pkt.Ack.MsgID)
			msg.Ack()
			if err := msg.Free(); err != nil {
				h.log.Warn("shmem: free after ack failed", "id", pkt.Ack.MsgID, "error", err.Error())
			}
		}
		return
	case wire.PacketMessage:
		seg, err := Open(pkt.Message.SegmentPath, int(pkt.Message.SegmentSize))
		if err != nil {
			h.log.Warn("shmem: open received segment failed", "path", pkt.Message.SegmentPath, "error", err.Error())
			return
		}
		msg := &Msg{ID: pkt.Message.MsgID, Kind: uint32(pkt.Message.MsgKind), Segment: seg, offset: uintptr(pkt.Message.PayloadOffset)}
		h.inbox = append(h.inbox, msg)
		h.QueueAck(pkt.Message.MsgID)
	}
}

// WaitRecv blocks until at least one message is available to Recv, or
// abs passes.
func (h *Handle) WaitRecv(abs deadline.Deadline) wire.Status {
	for {
		if len(h.inbox) > 0 {
			return wire.Ok
		}
		if abs.Passed() {
			return wire.Timeout
		}
		if status := wire.WaitReadable(h.fd, abs, true); status != wire.Ok && status != wire.Retry {
			return status
		}
		if status := h.Process(); status != wire.Ok {
			return status
		}
	}
}

// WaitDone blocks until every queued message has been sent and acked.
func (h *Handle) WaitDone(abs deadline.Deadline) wire.Status {
	for len(h.outbox) > 0 || len(h.awaitingAck) > 0 {
		if abs.Passed() {
			return wire.Timeout
		}
		if status := h.Process(); status != wire.Ok {
			return status
		}
	}
	return wire.Ok
}

// Close releases all queued messages' segments. It does not close the
// socket fd; the caller that owns the fd closes it.
func (h *Handle) Close() error {
	for _, msg := range h.awaitingAck {
		_ = msg.Free()
	}
	for _, msg := range h.inbox {
		_ = msg.Free()
	}
	h.awaitingAck = nil
	h.inbox = nil
	return nil
}
