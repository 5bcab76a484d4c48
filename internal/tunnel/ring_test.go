package tunnel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingPair_SendRecv(t *testing.T) {
	a, b := NewRingPair()
	defer a.Close()

	ctx := context.Background()
	require.NoError(t, a.Send(ctx, []byte("hello")))
	require.NoError(t, b.Send(ctx, []byte("world")))

	got, err := b.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	got, err = a.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), got)
}

func TestRingPair_SendCopiesFrame(t *testing.T) {
	a, b := NewRingPair()
	defer a.Close()

	ctx := context.Background()
	frame := []byte("abc")
	require.NoError(t, a.Send(ctx, frame))
	frame[0] = 'x'

	got, err := b.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestRingPair_Info(t *testing.T) {
	a, b := NewRingPair()
	defer a.Close()

	assert.Equal(t, "ring", a.Info().Type)
	assert.Equal(t, a.Info().LocalAddr, b.Info().RemoteAddr)
	assert.Equal(t, a.Info().RemoteAddr, b.Info().LocalAddr)
	assert.NotEqual(t, a.Info().LocalAddr, b.Info().LocalAddr)
}

func TestRingPair_CloseClosesBothEnds(t *testing.T) {
	a, b := NewRingPair()

	recvErr := make(chan error, 1)
	go func() {
		_, err := b.Recv(context.Background())
		recvErr <- err
	}()

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	select {
	case err := <-recvErr:
		assert.ErrorIs(t, err, ErrTunnelClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Recv on the other end did not unblock")
	}

	assert.ErrorIs(t, b.Send(context.Background(), []byte("x")), ErrTunnelClosed)
	assert.ErrorIs(t, a.Send(context.Background(), []byte("x")), ErrTunnelClosed)
}

func TestRingPair_SendBlocksUntilContextDone(t *testing.T) {
	a, _ := NewRingPairWithOptions(&Options{RingBufferSize: 1})
	defer a.Close()

	require.NoError(t, a.Send(context.Background(), []byte("fills buffer")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := a.Send(ctx, []byte("blocked"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRingPair_RecvHonoursContext(t *testing.T) {
	a, _ := NewRingPair()
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Recv(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptions_SetDefaults(t *testing.T) {
	var o Options
	o.SetDefaults()

	assert.Equal(t, 4*1024*1024, o.MaxFrameSize)
	assert.Equal(t, 64, o.RingBufferSize)
	assert.NotNil(t, o.Logger)
}
