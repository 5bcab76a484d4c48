// Package packet defines the frame format exchanged over a tunnel.
//
// Every frame is a 1-byte type, a 4-byte big-endian payload length and the
// payload itself. Tunnels preserve frame boundaries, so the length is only
// used to reject truncated or padded frames.
package packet

import (
	"encoding/binary"
	"errors"
	"time"
)

const (
	HeaderSize = 1 + 4

	TypeData      byte = 0x01
	TypeHandshake byte = 0x02
	TypePing      byte = 0x03
	TypePong      byte = 0x04

	timestampSize = 8
)

var (
	// ErrShortPacket is returned when a frame is smaller than the header
	ErrShortPacket = errors.New("packet: frame shorter than header")
	// ErrLengthMismatch is returned when the header length disagrees with the frame size
	ErrLengthMismatch = errors.New("packet: length mismatch")
	// ErrUnknownType is returned for frames carrying an unknown type byte
	ErrUnknownType = errors.New("packet: unknown type")
)

// Packet is one decoded frame
type Packet struct {
	Type    byte
	Payload []byte
}

// Encode serialises p into a single frame
func (p Packet) Encode() []byte {
	buf := make([]byte, HeaderSize+len(p.Payload))
	buf[0] = p.Type
	binary.BigEndian.PutUint32(buf[1:HeaderSize], uint32(len(p.Payload)))
	copy(buf[HeaderSize:], p.Payload)
	return buf
}

// Decode parses a frame. The returned payload aliases b.
func Decode(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, ErrShortPacket
	}
	typ := b[0]
	switch typ {
	case TypeData, TypeHandshake, TypePing, TypePong:
	default:
		return Packet{}, ErrUnknownType
	}
	n := binary.BigEndian.Uint32(b[1:HeaderSize])
	if int(n) != len(b)-HeaderSize {
		return Packet{}, ErrLengthMismatch
	}
	return Packet{Type: typ, Payload: b[HeaderSize:]}, nil
}

// NewData wraps an application payload
func NewData(payload []byte) Packet {
	return Packet{Type: TypeData, Payload: payload}
}

// NewPing creates a keep-alive probe carrying the send time
func NewPing(now time.Time) Packet {
	return Packet{Type: TypePing, Payload: encodeTimestamp(now)}
}

// NewPong answers ping, echoing its timestamp
func NewPong(ping Packet) Packet {
	payload := make([]byte, len(ping.Payload))
	copy(payload, ping.Payload)
	return Packet{Type: TypePong, Payload: payload}
}

// Timestamp extracts the send time of a ping or pong
func (p Packet) Timestamp() (time.Time, bool) {
	if len(p.Payload) != timestampSize {
		return time.Time{}, false
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(p.Payload))), true
}

func encodeTimestamp(t time.Time) []byte {
	b := make([]byte, timestampSize)
	binary.BigEndian.PutUint64(b, uint64(t.UnixNano()))
	return b
}
