package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// wireVersion is the protocol version stamped into every packet header.
// The original C protocol has no version field at all
// (spec §9 Open Questions flags this); a mismatch on Recv is an Error,
// not silently ignored.
const wireVersion byte = 1

// PacketKind distinguishes a Message packet from an Ack packet at the
// framing level — orthogonal to MessageKind, which tags what a Message
// packet's payload means.
type PacketKind uint32

const (
	PacketMessage PacketKind = iota
	PacketAck
)

// MessageKind tags the payload of a Message packet.
type MessageKind uint32

const (
	KindResult MessageKind = iota + 1
	KindEvent
	KindExpect
	KindTimeout
	KindIterations
)

// header is the fixed-size prefix of every packet on the wire.
type header struct {
	Version byte
	_       [3]byte // padding, keeps Length 4-byte aligned
	Kind    uint32
	Length  uint32
}

const headerSize = 12

// Message is the body of a PacketMessage packet: the shared-memory
// descriptor for the actual payload, never the payload itself.
type Message struct {
	MsgID         uint32
	MsgKind       MessageKind
	PayloadOffset uint32
	SegmentSize   uint32
	SegmentPath   string
}

// Ack is the body of a PacketAck packet.
type Ack struct {
	MsgID uint32
}

// Packet is a fully decoded frame: exactly one of Message/Ack is valid,
// selected by Kind.
type Packet struct {
	Kind    PacketKind
	Message Message
	Ack     Ack
}

// EncodeMessage serializes a Message packet ready to hand to Send.
func EncodeMessage(m Message) []byte {
	var body bytes.Buffer
	binary.Write(&body, binary.LittleEndian, m.MsgID)
	binary.Write(&body, binary.LittleEndian, uint32(m.MsgKind))
	binary.Write(&body, binary.LittleEndian, m.PayloadOffset)
	binary.Write(&body, binary.LittleEndian, m.SegmentSize)
	pathBytes := []byte(m.SegmentPath)
	binary.Write(&body, binary.LittleEndian, uint32(len(pathBytes)))
	body.Write(pathBytes)

	return frame(PacketMessage, body.Bytes())
}

// EncodeAck serializes an Ack packet ready to hand to Send.
func EncodeAck(a Ack) []byte {
	var body bytes.Buffer
	binary.Write(&body, binary.LittleEndian, a.MsgID)
	return frame(PacketAck, body.Bytes())
}

func frame(kind PacketKind, body []byte) []byte {
	buf := make([]byte, headerSize+len(body))
	buf[0] = wireVersion
	binary.LittleEndian.PutUint32(buf[4:8], uint32(kind))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(body)))
	copy(buf[headerSize:], body)
	return buf
}

// decodeBody parses a packet's body given its kind, producing a Packet.
func decodeBody(kind PacketKind, body []byte) (Packet, error) {
	switch kind {
	case PacketMessage:
		if len(body) < 16 {
			return Packet{}, fmt.Errorf("wire: message body too short: %d bytes", len(body))
		}
		msgID := binary.LittleEndian.Uint32(body[0:4])
		msgKind := binary.LittleEndian.Uint32(body[4:8])
		payloadOffset := binary.LittleEndian.Uint32(body[8:12])
		segSize := binary.LittleEndian.Uint32(body[12:16])
		if len(body) < 20 {
			return Packet{}, fmt.Errorf("wire: message body missing path length")
		}
		pathLen := binary.LittleEndian.Uint32(body[16:20])
		if len(body) < int(20+pathLen) {
			return Packet{}, fmt.Errorf("wire: message body truncated path")
		}
		path := string(body[20 : 20+pathLen])
		return Packet{
			Kind: PacketMessage,
			Message: Message{
				MsgID:         msgID,
				MsgKind:       MessageKind(msgKind),
				PayloadOffset: payloadOffset,
				SegmentSize:   segSize,
				SegmentPath:   path,
			},
		}, nil
	case PacketAck:
		if len(body) < 4 {
			return Packet{}, fmt.Errorf("wire: ack body too short: %d bytes", len(body))
		}
		return Packet{
			Kind: PacketAck,
			Ack:  Ack{MsgID: binary.LittleEndian.Uint32(body[0:4])},
		}, nil
	default:
		return Packet{}, fmt.Errorf("wire: unknown packet kind %d", kind)
	}
}
