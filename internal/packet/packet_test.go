package packet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	frame := NewData([]byte("hello")).Encode()
	require.Len(t, frame, HeaderSize+5)

	p, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, TypeData, p.Type)
	assert.Equal(t, []byte("hello"), p.Payload)
}

func TestDecode_EmptyPayload(t *testing.T) {
	p, err := Decode(Packet{Type: TypeHandshake}.Encode())
	require.NoError(t, err)
	assert.Equal(t, TypeHandshake, p.Type)
	assert.Empty(t, p.Payload)
}

func TestDecode_Errors(t *testing.T) {
	t.Run("short", func(t *testing.T) {
		_, err := Decode([]byte{TypeData, 0, 0})
		assert.ErrorIs(t, err, ErrShortPacket)
	})

	t.Run("unknown_type", func(t *testing.T) {
		frame := NewData([]byte("x")).Encode()
		frame[0] = 0x7f
		_, err := Decode(frame)
		assert.ErrorIs(t, err, ErrUnknownType)
	})

	t.Run("truncated", func(t *testing.T) {
		frame := NewData([]byte("hello")).Encode()
		_, err := Decode(frame[:len(frame)-1])
		assert.ErrorIs(t, err, ErrLengthMismatch)
	})

	t.Run("padded", func(t *testing.T) {
		frame := append(NewData([]byte("hello")).Encode(), 0)
		_, err := Decode(frame)
		assert.ErrorIs(t, err, ErrLengthMismatch)
	})
}

func TestPingPongTimestamp(t *testing.T) {
	now := time.Unix(1700000000, 12345)
	ping := NewPing(now)
	pong := NewPong(ping)

	assert.Equal(t, TypePong, pong.Type)
	ts, ok := pong.Timestamp()
	require.True(t, ok)
	assert.True(t, now.Equal(ts))

	_, ok = NewData([]byte("abc")).Timestamp()
	assert.False(t, ok)
}
