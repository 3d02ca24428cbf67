package token

import (
	"os"
	"sync"

	"github.com/ehrlich-b/muonrun/internal/deadline"
	"github.com/ehrlich-b/muonrun/internal/model"
	"github.com/ehrlich-b/muonrun/internal/shmem"
	"github.com/ehrlich-b/muonrun/internal/wire"
)

// resultDrainBudgetMillis bounds how long Result will wait for the ack queue
// to drain before exiting anyway — the parent may already be gone
// (spec §5: "the write returns EPIPE... but because the parent is gone,
// the send fails and the child simply exits").
const resultDrainBudgetMillis = 2000

// ForkToken is the child-side test API (spec §4.E): every operation
// marshals a typed message and forwards it through the shared-memory
// layer. A mutex guards the send path so a signal-triggered Result (see
// internal/procsync) cannot interleave with a user-triggered one,
// exactly as spec §4.E requires.
type ForkToken struct {
	mu          sync.Mutex
	handle      *shmem.Handle
	pid, fd     int
	segCounter  int
	nextMsgID   uint32
	stage       model.Stage
	maxLogLevel model.LogLevel
	expected    model.TestStatus
}

// NewForkToken wraps an already-connected shmem.Handle (built around
// the child's end of the socket pair) in a ForkToken.
func NewForkToken(handle *shmem.Handle, fd int) *ForkToken {
	return &ForkToken{
		handle:      handle,
		pid:         os.Getpid(),
		fd:          fd,
		maxLogLevel: model.LevelInfo,
		expected:    model.Success,
	}
}

// SetStage records the lifecycle phase for any result or event sent
// from this point until the next SetStage call.
func (t *ForkToken) SetStage(stage model.Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage = stage
}

// Event sends an Event message, tagged with the current stage, unless
// its level exceeds the configured ceiling.
func (t *ForkToken) Event(level model.LogLevel, file string, line int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if level > t.maxLogLevel {
		return
	}
	ev := model.LogEvent{
		Stage:    t.stage,
		Level:    level,
		Location: model.SourceLocation{File: file, Line: line, Set: file != ""},
		Message:  message,
	}
	t.sendLocked(uint32(wire.KindEvent), func(seg []byte) (uintptr, error) {
		return eventFixedSize + uintptr(len(message)+1), EncodeEvent(seg, ev)
	})
}

// Result sends a Result message tagged with the current stage, waits
// for the ack queue to drain so the segment is safe for the parent to
// free, and exits the process — spec §4.E's result() contract.
func (t *ForkToken) Result(r model.TestResult) {
	t.mu.Lock()
	r.Stage = t.stage
	if r.Expected == 0 && t.expected != 0 {
		r.Expected = t.expected
	}
	t.sendLocked(uint32(wire.KindResult), func(seg []byte) (uintptr, error) {
		return EncodeResult(seg, r)
	})
	t.mu.Unlock()

	t.handle.WaitDone(deadline.Now().Add(resultDrainBudgetMillis))
	os.Exit(0)
}

// Meta sends an Expect, Timeout, or Iterations message.
func (t *ForkToken) Meta(kind model.MetaKind, value uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if kind == model.MetaExpect {
		t.expected = model.TestStatus(value)
	}
	msgKind := metaWireKind(kind)
	t.sendLocked(uint32(msgKind), func(seg []byte) (uintptr, error) {
		EncodeMeta(seg, value)
		return 4, nil
	})
}

// MaxLogLevel reports the current log-level ceiling, as the transport
// descriptor's receiver may query it (spec §4.E: "reports the current
// maximum log level to the caller on request").
func (t *ForkToken) MaxLogLevel() model.LogLevel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxLogLevel
}

// SetMaxLogLevel applies a ceiling handed down by the parent; the child
// entrypoint reads it from the environment the parent spawned it with.
func (t *ForkToken) SetMaxLogLevel(level model.LogLevel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maxLogLevel = level
}

func metaWireKind(kind model.MetaKind) wire.MessageKind {
	switch kind {
	case model.MetaTimeout:
		return wire.KindTimeout
	case model.MetaIterations:
		return wire.KindIterations
	default:
		return wire.KindExpect
	}
}

// sendLocked allocates a fresh segment, lets encode fill it starting at
// offset 0 and returning the bytes used, then queues the message for
// send. Caller must already hold t.mu.
func (t *ForkToken) sendLocked(kind uint32, encode func(seg []byte) (uintptr, error)) {
	t.segCounter++
	t.nextMsgID++
	id := t.nextMsgID

	const segSize = 4096
	msg, err := shmem.NewMsg(id, kind, t.pid, t.fd, t.segCounter, segSize)
	if err != nil {
		return // best effort: a failed allocation here is the OOM case spec §7 calls unrecoverable
	}

	used, err := encode(msg.Segment.Bytes())
	if err != nil {
		_ = msg.Free()
		return
	}
	msg.SetPayloadOffset(0)
	_ = used

	desc := wire.Message{
		MsgID:         id,
		MsgKind:       wire.MessageKind(kind),
		PayloadOffset: 0,
		SegmentSize:   segSize,
		SegmentPath:   msg.Segment.Path,
	}
	t.handle.QueueMessage(desc, msg)
	t.handle.Process()
}
