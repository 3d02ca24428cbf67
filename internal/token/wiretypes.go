// Package token implements the user-visible test API: ForkToken for
// child-process isolation (spec §4.E) and DebugToken for in-process
// debug mode (spec §4.F). Both share the wire encoding in this file,
// hand-written per message kind rather than derived from reflection —
// spec §9's own recommended simplification ("restrict wire types to a
// small fixed set... and hand-write codecs").
package token

import (
	"encoding/binary"

	"github.com/ehrlich-b/muonrun/internal/marshal"
	"github.com/ehrlich-b/muonrun/internal/model"
)

// resultTypeInfo describes the one pointer field (Reason, a
// null-terminated string) in the fixed part of an encoded TestResult,
// exercising internal/marshal the way spec §4.D's depth-first walk is
// meant to be used — the rest of the payload's fields are fixed-size
// scalars encoded directly, matching the teacher's per-struct
// hand-written marshal functions rather than a fully generic walker.
var resultTypeInfo = &marshal.TypeInfo{
	Size:     resultFixedSize,
	Pointers: []marshal.PointerField{{Offset: resultReasonOffset, Of: nil}},
}

const (
	resultStatusOffset    = 0
	resultExpectedOffset  = 4
	resultStageOffset     = 8
	resultLineOffset      = 12
	resultLocSetOffset    = 16
	resultReasonOffset    = 20
	resultFrameCountOff   = 28
	resultFixedSize       = 32
)

// EncodeResult writes r into seg starting at offset 0, allocating its
// reason string and backtrace frames via the bump-allocator convention
// (everything after resultFixedSize is free space the caller has sized
// the segment to hold). Returns the total bytes used.
func EncodeResult(seg []byte, r model.TestResult) (uintptr, error) {
	binary.LittleEndian.PutUint32(seg[resultStatusOffset:], uint32(r.Status))
	binary.LittleEndian.PutUint32(seg[resultExpectedOffset:], uint32(r.Expected))
	binary.LittleEndian.PutUint32(seg[resultStageOffset:], uint32(r.Stage))
	binary.LittleEndian.PutUint32(seg[resultLineOffset:], uint32(r.Location.Line))
	if r.Location.Set {
		binary.LittleEndian.PutUint32(seg[resultLocSetOffset:], 1)
	}

	next := uintptr(resultFixedSize)
	if r.Reason != "" {
		off, err := marshal.WriteString(seg, next, r.Reason)
		if err != nil {
			return 0, err
		}
		marshal.WriteOffset(seg, 0, resultReasonOffset, next)
		next += off
	}

	binary.LittleEndian.PutUint32(seg[resultFrameCountOff:], uint32(len(r.Backtrace)))
	for _, frame := range r.Backtrace {
		frameOff := next
		if int(frameOff+32) > len(seg) {
			break // segment too small for the full chain; truncate silently, matching best-effort crash diagnostics
		}
		binary.LittleEndian.PutUint64(seg[frameOff+16:], uint64(frame.FunctionAddr))
		binary.LittleEndian.PutUint64(seg[frameOff+24:], uint64(frame.ReturnAddr))
		next = frameOff + 32
		if off, err := marshal.WriteString(seg, next, frame.BinaryFile); err == nil {
			marshal.WriteOffset(seg, frameOff, 0, next)
			next += off
		}
		if off, err := marshal.WriteString(seg, next, frame.Function); err == nil {
			marshal.WriteOffset(seg, frameOff, 8, next)
			next += off
		}
	}

	if err := marshal.Marshal(seg, 0, resultTypeInfo); err != nil {
		return 0, err
	}
	return next, nil
}

// DecodeResult reads a TestResult previously written by EncodeResult
// out of seg.
func DecodeResult(seg []byte) (model.TestResult, error) {
	if err := marshal.Unmarshal(seg, 0, resultTypeInfo); err != nil {
		return model.TestResult{}, err
	}

	r := model.TestResult{
		Status:   model.TestStatus(binary.LittleEndian.Uint32(seg[resultStatusOffset:])),
		Expected: model.TestStatus(binary.LittleEndian.Uint32(seg[resultExpectedOffset:])),
		Stage:    model.Stage(binary.LittleEndian.Uint32(seg[resultStageOffset:])),
	}
	r.Location.Line = int(binary.LittleEndian.Uint32(seg[resultLineOffset:]))
	r.Location.Set = binary.LittleEndian.Uint32(seg[resultLocSetOffset:]) != 0

	reasonOff := marshal.ReadOffset(seg, 0, resultReasonOffset)
	if reasonOff != 0 {
		s, err := marshal.ReadString(seg, reasonOff)
		if err == nil {
			r.Reason = s
		}
	}

	count := binary.LittleEndian.Uint32(seg[resultFrameCountOff:])
	next := uintptr(resultFixedSize)
	if r.Reason != "" {
		next += uintptr(len(r.Reason) + 1)
	}
	for i := uint32(0); i < count; i++ {
		frameOff := next
		if int(frameOff+32) > len(seg) {
			break
		}
		var frame model.BacktraceFrame
		frame.FunctionAddr = uintptr(binary.LittleEndian.Uint64(seg[frameOff+16:]))
		frame.ReturnAddr = uintptr(binary.LittleEndian.Uint64(seg[frameOff+24:]))
		next = frameOff + 32
		if fileOff := marshal.ReadOffset(seg, frameOff, 0); fileOff != 0 {
			if s, err := marshal.ReadString(seg, fileOff); err == nil {
				frame.BinaryFile = s
				next = fileOff + uintptr(len(s)+1)
			}
		}
		if fnOff := marshal.ReadOffset(seg, frameOff, 8); fnOff != 0 {
			if s, err := marshal.ReadString(seg, fnOff); err == nil {
				frame.Function = s
				next = fnOff + uintptr(len(s)+1)
			}
		}
		r.Backtrace = append(r.Backtrace, frame)
	}

	return r, nil
}

const (
	eventStageOffset   = 0
	eventLevelOffset   = 4
	eventLineOffset    = 8
	eventLocSetOffset  = 12
	eventMessageOffset = 16
	eventFixedSize     = 24
)

// EncodeEvent writes e into seg starting at offset 0.
func EncodeEvent(seg []byte, e model.LogEvent) error {
	binary.LittleEndian.PutUint32(seg[eventStageOffset:], uint32(e.Stage))
	binary.LittleEndian.PutUint32(seg[eventLevelOffset:], uint32(e.Level))
	binary.LittleEndian.PutUint32(seg[eventLineOffset:], uint32(e.Location.Line))
	if e.Location.Set {
		binary.LittleEndian.PutUint32(seg[eventLocSetOffset:], 1)
	}
	if _, err := marshal.WriteString(seg, eventFixedSize, e.Message); err != nil {
		return err
	}
	marshal.WriteOffset(seg, 0, eventMessageOffset, eventFixedSize)
	return nil
}

// DecodeEvent reads a LogEvent previously written by EncodeEvent.
func DecodeEvent(seg []byte) (model.LogEvent, error) {
	e := model.LogEvent{
		Stage: model.Stage(binary.LittleEndian.Uint32(seg[eventStageOffset:])),
		Level: model.LogLevel(binary.LittleEndian.Uint32(seg[eventLevelOffset:])),
	}
	e.Location.Line = int(binary.LittleEndian.Uint32(seg[eventLineOffset:]))
	e.Location.Set = binary.LittleEndian.Uint32(seg[eventLocSetOffset:]) != 0
	msgOff := marshal.ReadOffset(seg, 0, eventMessageOffset)
	s, err := marshal.ReadString(seg, msgOff)
	if err != nil {
		return e, err
	}
	e.Message = s
	return e, nil
}

// EncodeMeta writes a scalar meta value (expected status, timeout ms,
// or iteration count) into seg — all three are a single uint32, so no
// pointer fields and no TypeInfo are needed.
func EncodeMeta(seg []byte, value uint32) {
	binary.LittleEndian.PutUint32(seg[0:], value)
}

// DecodeMeta reads back a meta value written by EncodeMeta.
func DecodeMeta(seg []byte) uint32 {
	return binary.LittleEndian.Uint32(seg[0:])
}
