// Package tunnel defines the frame-oriented transport a peer connection runs
// over and provides implementations for production (gRPC) and testing
// (in-memory ring pairs).
package tunnel

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/rmacdonaldsmith/meshpeer-go/pkg/peerconn"
)

// ErrTunnelClosed is returned by Send and Recv once either end has closed the tunnel
var ErrTunnelClosed = errors.New("tunnel closed")

// Tunnel abstracts bidirectional frame I/O between two endpoints.
// Frame boundaries are preserved. One goroutine may Send while another Recvs.
type Tunnel interface {
	// Send writes one frame
	Send(ctx context.Context, frame []byte) error

	// Recv blocks until a frame arrives or the tunnel is closed
	Recv(ctx context.Context) ([]byte, error)

	// Info describes the endpoints of this tunnel
	Info() peerconn.TunnelInfo

	// Close closes the tunnel in both directions. Safe to call multiple times.
	Close() error
}

// Options holds transport settings shared by the tunnel implementations
type Options struct {
	// MaxFrameSize bounds a single frame in bytes
	MaxFrameSize int

	// RingBufferSize is the per-direction frame capacity of ring tunnels
	RingBufferSize int

	Logger *zap.Logger
}

// SetDefaults sets sensible default values for unset option fields
func (o *Options) SetDefaults() {
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = 4 * 1024 * 1024 // 4MB
	}
	if o.RingBufferSize <= 0 {
		o.RingBufferSize = 64
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

func resolveOptions(opts *Options) Options {
	var o Options
	if opts != nil {
		o = *opts
	}
	o.SetDefaults()
	return o
}
