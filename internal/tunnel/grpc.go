package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcpeer "google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rmacdonaldsmith/meshpeer-go/pkg/peerconn"
)

const (
	grpcServiceName = "meshpeer.tunnel.v1.Tunnel"
	grpcStreamName  = "Stream"
	grpcFullMethod  = "/" + grpcServiceName + "/" + grpcStreamName
)

// ErrListenerClosed is returned by Accept after the listener is closed
var ErrListenerClosed = errors.New("tunnel listener closed")

// streamHandler is implemented by GRPCListener to receive new tunnel streams
type streamHandler interface {
	handleStream(stream grpc.ServerStream) error
}

// Each tunnel is one bidirectional stream; every frame travels as a
// google.protobuf.BytesValue so the default proto codec applies.
var tunnelServiceDesc = grpc.ServiceDesc{
	ServiceName: grpcServiceName,
	HandlerType: (*streamHandler)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName: grpcStreamName,
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				return srv.(streamHandler).handleStream(stream)
			},
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "meshpeer/tunnel/v1/tunnel.proto",
}

// msgStream is the subset shared by grpc.ClientStream and grpc.ServerStream
type msgStream interface {
	SendMsg(m interface{}) error
	RecvMsg(m interface{}) error
	Context() context.Context
}

// GRPCTunnel carries frames over one gRPC bidirectional stream.
// Recv does not observe ctx; it returns once the stream ends, which Close forces.
type GRPCTunnel struct {
	stream msgStream
	info   peerconn.TunnelInfo

	sendMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
	onClose   func()
}

func newGRPCTunnel(stream msgStream, info peerconn.TunnelInfo, onClose func()) *GRPCTunnel {
	return &GRPCTunnel{
		stream:  stream,
		info:    info,
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// Send writes one frame to the stream
func (t *GRPCTunnel) Send(ctx context.Context, frame []byte) error {
	select {
	case <-t.done:
		return ErrTunnelClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	if err := t.stream.SendMsg(wrapperspb.Bytes(frame)); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrTunnelClosed
		}
		return fmt.Errorf("grpc tunnel send: %w", err)
	}
	return nil
}

// Recv reads the next frame from the stream
func (t *GRPCTunnel) Recv(ctx context.Context) ([]byte, error) {
	msg := new(wrapperspb.BytesValue)
	if err := t.stream.RecvMsg(msg); err != nil {
		select {
		case <-t.done:
			return nil, ErrTunnelClosed
		default:
		}
		if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
			return nil, ErrTunnelClosed
		}
		return nil, fmt.Errorf("grpc tunnel recv: %w", err)
	}
	return msg.GetValue(), nil
}

func (t *GRPCTunnel) Info() peerconn.TunnelInfo {
	return t.info
}

// Close ends the stream. The remote end sees its Recv fail.
func (t *GRPCTunnel) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		if t.onClose != nil {
			t.onClose()
		}
	})
	return nil
}

// GRPCListener accepts tunnels opened by DialGRPC
type GRPCListener struct {
	lis    net.Listener
	server *grpc.Server
	logger *zap.Logger

	accepted  chan *GRPCTunnel
	done      chan struct{}
	closeOnce sync.Once
}

// Listen starts a gRPC server on addr serving the tunnel stream
func Listen(addr string, opts *Options) (*GRPCListener, error) {
	o := resolveOptions(opts)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("net.Listen: %w", err)
	}

	server := grpc.NewServer(
		grpc.MaxRecvMsgSize(o.MaxFrameSize),
		grpc.MaxSendMsgSize(o.MaxFrameSize),
	)

	l := &GRPCListener{
		lis:      lis,
		server:   server,
		logger:   o.Logger.With(zap.String("listen_addr", lis.Addr().String())),
		accepted: make(chan *GRPCTunnel),
		done:     make(chan struct{}),
	}
	server.RegisterService(&tunnelServiceDesc, l)

	go func() {
		if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			l.logger.Error("grpc tunnel server stopped", zap.Error(err))
		}
	}()

	l.logger.Info("grpc tunnel listener started")
	return l, nil
}

func (l *GRPCListener) handleStream(stream grpc.ServerStream) error {
	ctx := stream.Context()

	info := peerconn.TunnelInfo{Type: "grpc", LocalAddr: l.lis.Addr().String()}
	if p, ok := grpcpeer.FromContext(ctx); ok && p.Addr != nil {
		info.RemoteAddr = p.Addr.String()
	}
	t := newGRPCTunnel(stream, info, nil)

	select {
	case l.accepted <- t:
	case <-l.done:
		return status.Error(codes.Unavailable, "listener closed")
	case <-ctx.Done():
		return ctx.Err()
	}

	// returning from the handler ends the stream
	select {
	case <-t.done:
	case <-ctx.Done():
		_ = t.Close()
	case <-l.done:
		_ = t.Close()
	}
	return nil
}

// Accept waits for the next inbound tunnel
func (l *GRPCListener) Accept(ctx context.Context) (Tunnel, error) {
	select {
	case t := <-l.accepted:
		return t, nil
	case <-l.done:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Addr returns the address the listener is bound to
func (l *GRPCListener) Addr() net.Addr {
	return l.lis.Addr()
}

// Close stops accepting tunnels and tears down the server and its streams
func (l *GRPCListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.server.Stop()
		l.logger.Info("grpc tunnel listener closed")
	})
	return nil
}

// DialGRPC opens a tunnel to a GRPCListener at addr
func DialGRPC(ctx context.Context, addr string, opts *Options) (*GRPCTunnel, error) {
	o := resolveOptions(opts)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(o.MaxFrameSize),
			grpc.MaxCallSendMsgSize(o.MaxFrameSize),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc.NewClient: %w", err)
	}

	// the stream outlives the dial context
	streamCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)

	stream, err := conn.NewStream(streamCtx, &tunnelServiceDesc.Streams[0], grpcFullMethod)
	stopped := stop()
	if err != nil || !stopped {
		cancel()
		_ = conn.Close()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("open tunnel stream to %s: %w", addr, err)
	}

	info := peerconn.TunnelInfo{Type: "grpc", RemoteAddr: addr}
	t := newGRPCTunnel(stream, info, func() {
		// cancelling also releases a SendMsg blocked on flow control
		cancel()
		_ = conn.Close()
	})

	o.Logger.Debug("grpc tunnel dialed", zap.String("remote_addr", addr))
	return t, nil
}

// Verify that GRPCTunnel implements the Tunnel interface at compile time
var _ Tunnel = (*GRPCTunnel)(nil)
