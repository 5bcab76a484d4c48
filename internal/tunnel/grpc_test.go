package tunnel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialPair(t *testing.T) (*GRPCListener, *GRPCTunnel, Tunnel) {
	t.Helper()

	lis, err := Listen("127.0.0.1:0", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lis.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := DialGRPC(ctx, lis.Addr().String(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	// the first frame guarantees the stream has reached the server
	require.NoError(t, client.Send(ctx, []byte("hello")))

	server, err := lis.Accept(ctx)
	require.NoError(t, err)

	got, err := server.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	return lis, client, server
}

func recvAsync(tun Tunnel) <-chan error {
	errs := make(chan error, 1)
	go func() {
		for {
			if _, err := tun.Recv(context.Background()); err != nil {
				errs <- err
				return
			}
		}
	}()
	return errs
}

func TestGRPCTunnel_Roundtrip(t *testing.T) {
	lis, client, server := dialPair(t)
	ctx := context.Background()

	require.NoError(t, server.Send(ctx, []byte("reply")))
	got, err := client.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("reply"), got)

	assert.Equal(t, "grpc", client.Info().Type)
	assert.Equal(t, lis.Addr().String(), client.Info().RemoteAddr)
	assert.Equal(t, "grpc", server.Info().Type)
	assert.Equal(t, lis.Addr().String(), server.Info().LocalAddr)
	assert.NotEmpty(t, server.Info().RemoteAddr)
}

func TestGRPCTunnel_ClientCloseEndsServerRecv(t *testing.T) {
	_, client, server := dialPair(t)
	errs := recvAsync(server)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server Recv did not unblock")
	}
	assert.ErrorIs(t, client.Send(context.Background(), []byte("x")), ErrTunnelClosed)
}

func TestGRPCTunnel_ServerCloseEndsClientRecv(t *testing.T) {
	_, client, server := dialPair(t)
	errs := recvAsync(client)

	require.NoError(t, server.Close())

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrTunnelClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("client Recv did not unblock")
	}
}

func TestGRPCListener_AcceptAfterClose(t *testing.T) {
	lis, err := Listen("127.0.0.1:0", nil)
	require.NoError(t, err)

	require.NoError(t, lis.Close())
	require.NoError(t, lis.Close())

	_, err = lis.Accept(context.Background())
	assert.ErrorIs(t, err, ErrListenerClosed)
}

func TestGRPCListener_AcceptHonoursContext(t *testing.T) {
	lis, err := Listen("127.0.0.1:0", nil)
	require.NoError(t, err)
	defer lis.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = lis.Accept(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDialGRPC_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DialGRPC(ctx, "127.0.0.1:1", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
