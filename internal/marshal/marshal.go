// Package marshal implements the pointer-swizzling walk that lets a
// struct containing internal pointers live in a shared-memory segment
// and be read by a different process with a different mapping address.
// It is the Go counterpart of src/liburpc/marshal.c's
// urpc_marshal_payload/urpc_unmarshal_payload: rather than
// unsafe.Pointer arithmetic against a live mapping (which breaks the
// moment the two processes map the segment at different addresses —
// exactly the problem the original solves), pointers are represented as
// uintptr offsets into a []byte segment, hand-written per wire message
// kind the way the teacher's internal/uapi marshal functions are
// hand-written per struct rather than reflected.
package marshal

import "fmt"

// PointerField describes one pointer-shaped field within a struct: its
// byte offset from the struct's own base, and the TypeInfo of what it
// points to (nil Of means "null-terminated string", the terminal case
// in the original's recursion).
type PointerField struct {
	Offset uintptr
	Of     *TypeInfo
}

// TypeInfo is a struct's marshalling shape: how many bytes it occupies
// and which of those bytes are pointer fields needing recursive
// swizzling, exactly mirroring urpc_typeinfo's {size, num_pointers,
// pointers[]}.
type TypeInfo struct {
	Size     uintptr
	Pointers []PointerField
}

// Marshal walks payload (an offset into seg) depth-first per t,
// rewriting every live pointer field — currently an absolute offset
// valid only within this process's view, or for freshly-written structs
// a sentinel the caller has pre-populated with an absolute offset — into
// a segment-relative offset safe to hand to another process. Unlike the
// C original, Go never holds a real pointer into the segment, so
// "marshal" here just validates bounds; the offset representation is
// already relative. Kept for symmetry with Unmarshal and to validate
// that nested pointer fields are in range before the segment is handed
// off.
func Marshal(seg []byte, payloadOffset uintptr, t *TypeInfo) error {
	if t == nil {
		return nil
	}
	if int(payloadOffset+t.Size) > len(seg) {
		return fmt.Errorf("marshal: payload at %d size %d exceeds segment of %d bytes", payloadOffset, t.Size, len(seg))
	}
	for _, pf := range t.Pointers {
		fieldOff := payloadOffset + pf.Offset
		if int(fieldOff+8) > len(seg) {
			return fmt.Errorf("marshal: pointer field at %d exceeds segment", fieldOff)
		}
		target := readOffset(seg, fieldOff)
		if target == 0 {
			continue
		}
		if pf.Of == nil {
			continue // null-terminated string: no further structure to walk
		}
		if err := Marshal(seg, target, pf.Of); err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal is Marshal's inverse: it walks the same TypeInfo shape
// validating that every non-null pointer offset is in range, mirroring
// urpc_unmarshal_payload's bounds check (`pointer < memsize`) before the
// receiving process treats an offset as trustworthy.
func Unmarshal(seg []byte, payloadOffset uintptr, t *TypeInfo) error {
	if t == nil {
		return nil
	}
	if int(payloadOffset+t.Size) > len(seg) {
		return fmt.Errorf("unmarshal: payload at %d size %d exceeds segment of %d bytes", payloadOffset, t.Size, len(seg))
	}
	for _, pf := range t.Pointers {
		fieldOff := payloadOffset + pf.Offset
		if int(fieldOff+8) > len(seg) {
			return fmt.Errorf("unmarshal: pointer field at %d exceeds segment", fieldOff)
		}
		target := readOffset(seg, fieldOff)
		if target == 0 {
			continue
		}
		if target >= uintptr(len(seg)) {
			return fmt.Errorf("unmarshal: pointer field at %d targets out-of-range offset %d", fieldOff, target)
		}
		if pf.Of == nil {
			continue
		}
		if err := Unmarshal(seg, target, pf.Of); err != nil {
			return err
		}
	}
	return nil
}

func readOffset(seg []byte, at uintptr) uintptr {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(seg[int(at)+i]) << (8 * i)
	}
	return uintptr(v)
}

func writeOffset(seg []byte, at uintptr, v uintptr) {
	for i := 0; i < 8; i++ {
		seg[int(at)+i] = byte(v >> (8 * i))
	}
}

// WriteOffset sets the pointer field at fieldOffset within the struct
// based at structOffset to point at targetOffset (or 0 for null),
// exposed for callers assembling a payload before Marshal validates it.
func WriteOffset(seg []byte, structOffset, fieldOffset, targetOffset uintptr) {
	writeOffset(seg, structOffset+fieldOffset, targetOffset)
}

// ReadOffset reads the pointer field at fieldOffset within the struct
// based at structOffset, exposed for callers walking a received payload.
func ReadOffset(seg []byte, structOffset, fieldOffset uintptr) uintptr {
	return readOffset(seg, structOffset+fieldOffset)
}

// WriteString writes s, NUL-terminated, at offset and returns the
// number of bytes consumed (len(s)+1). Strings are leaf nodes: a
// PointerField with Of == nil.
func WriteString(seg []byte, offset uintptr, s string) (uintptr, error) {
	n := uintptr(len(s) + 1)
	if int(offset+n) > len(seg) {
		return 0, fmt.Errorf("marshal: string at %d length %d exceeds segment", offset, n)
	}
	copy(seg[offset:], s)
	seg[int(offset)+len(s)] = 0
	return n, nil
}

// ReadString reads a NUL-terminated string starting at offset.
func ReadString(seg []byte, offset uintptr) (string, error) {
	for i := int(offset); i < len(seg); i++ {
		if seg[i] == 0 {
			return string(seg[offset:i]), nil
		}
	}
	return "", fmt.Errorf("marshal: unterminated string at offset %d", offset)
}
