package shmem

import (
	"fmt"
)

// Msg is the shared-memory-backed message, named Msg (not Message) to
// avoid confusion with wire.Message — the socket-level descriptor that
// merely points at one of these. Mirrors struct __uipc_message: a
// refcounted segment with a bump allocator and a payload offset.
type Msg struct {
	ID      uint32
	Kind    uint32
	Segment *Segment
	next    uintptr // bump-allocator high-water mark
	offset  uintptr // offset of the top-level payload within Segment
	refs    int
	acked   bool
}

// NewMsg allocates a fresh segment of size bytes and wraps it in a Msg
// ready for payload allocation, mirroring uipc_msg_new.
func NewMsg(id, kind uint32, pid, fd, counter, size int) (*Msg, error) {
	seg, err := New(pid, fd, counter, size)
	if err != nil {
		return nil, err
	}
	return &Msg{ID: id, Kind: kind, Segment: seg, next: 0}, nil
}

// Alloc reserves n bytes from the segment's bump allocator and returns
// the offset at which they start, mirroring uipc_msg_alloc's
// bounds-checked bump allocation.
func (m *Msg) Alloc(n uintptr) (uintptr, error) {
	if int(m.next+n) > len(m.Segment.data) {
		return 0, fmt.Errorf("shmem: alloc of %d bytes exceeds segment size %d", n, len(m.Segment.data))
	}
	off := m.next
	m.next += n
	return off, nil
}

// SetPayloadOffset records where the top-level payload begins, set once
// the caller has marshalled it into the segment via internal/marshal.
func (m *Msg) SetPayloadOffset(off uintptr) {
	m.offset = off
}

// PayloadOffset returns the top-level payload's offset within the segment.
func (m *Msg) PayloadOffset() uintptr {
	return m.offset
}

// Send increments the refcount, mirroring uipc_msg_send — a message
// queued for sending is kept alive until acked.
func (m *Msg) Send() {
	m.refs++
}

// Ack marks the message as acknowledged by its peer.
func (m *Msg) Ack() {
	m.acked = true
}

// Free decrements the refcount; at zero it unmaps the segment and, per
// uipc_msg_free, unlinks the backing file only on the creator's side —
// the side that sent the Message packet and is waiting to be
// acknowledged, not the side doing the acknowledging. acked is only
// ever set on that side, by Ack() in response to the peer's Ack packet
// (see handlePacket's PacketAck case); a receiver's Msg, built straight
// from an opened segment path, never has Ack() called on it and so
// never unlinks. Getting this backwards — unlinking on the
// not-yet-acked side — would leave the name behind if the receiver
// tears down abnormally before its own Free() runs.
func (m *Msg) Free() error {
	m.refs--
	if m.refs > 0 {
		return nil
	}
	if err := m.Segment.Close(); err != nil {
		return err
	}
	if m.acked {
		return m.Segment.Unlink()
	}
	return nil
}
