package peerconn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rmacdonaldsmith/meshpeer-go/internal/packet"
	"github.com/rmacdonaldsmith/meshpeer-go/internal/tunnel"
	"github.com/rmacdonaldsmith/meshpeer-go/pkg/peerconn"
)

var (
	// ErrConnClosed is returned when using a connection after it was closed
	ErrConnClosed = errors.New("peer conn closed")
	// ErrHandshakeNotDone is returned when sending before the handshake completed
	ErrHandshakeNotDone = errors.New("peer conn handshake not done")
	// ErrMessageTooLarge is returned when a payload exceeds MaxMessageSize
	ErrMessageTooLarge = errors.New("message exceeds max message size")
	// ErrKeepAliveTimeout is the failure reason when the remote end stays silent too long
	ErrKeepAliveTimeout = errors.New("keep-alive timeout")
)

// PeerConn is a handshaken connection to a remote node over a single tunnel.
// It implements peerconn.Conn.
type PeerConn struct {
	connID   uuid.UUID
	myNodeID uuid.UUID
	config   Config
	tunnel   tunnel.Tunnel
	logger   *zap.Logger

	mu           sync.RWMutex
	peerNodeID   uuid.UUID
	remoteConnID uuid.UUID

	handshakeDone atomic.Bool
	recvStarted   atomic.Bool
	pingStarted   atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once

	notifierMu    sync.Mutex
	closeNotifier func(uuid.UUID)
	failed        bool
	notifyOnce    sync.Once

	lastRecv  atomic.Int64 // unix nanos
	rxPackets atomic.Uint64
	txPackets atomic.Uint64
	rxBytes   atomic.Uint64
	txBytes   atomic.Uint64
	latencyUs atomic.Uint64
}

// New wraps t in a connection owned by myNodeID. The handshake has not run yet.
func New(myNodeID uuid.UUID, t tunnel.Tunnel, config *Config) (*PeerConn, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if t == nil {
		return nil, fmt.Errorf("tunnel cannot be nil")
	}

	configCopy := *config
	configCopy.SetDefaults()

	connID := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())

	c := &PeerConn{
		connID:   connID,
		myNodeID: myNodeID,
		config:   configCopy,
		tunnel:   t,
		logger: configCopy.Logger.With(
			zap.Stringer("conn_id", connID),
			zap.String("tunnel", t.Info().Type)),
		ctx:    ctx,
		cancel: cancel,
	}
	c.lastRecv.Store(time.Now().UnixNano())
	return c, nil
}

func (c *PeerConn) ID() uuid.UUID {
	return c.connID
}

// PeerNodeID returns the remote node id learned during the handshake
func (c *PeerConn) PeerNodeID() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peerNodeID
}

// RemoteConnID returns the id the remote end uses for this connection
func (c *PeerConn) RemoteConnID() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remoteConnID
}

func (c *PeerConn) HandshakeDone() bool {
	return c.handshakeDone.Load()
}

func (c *PeerConn) Info() peerconn.ConnInfo {
	return peerconn.ConnInfo{
		ConnID:      c.connID,
		MyNodeID:    c.myNodeID,
		PeerNodeID:  c.PeerNodeID(),
		NetworkName: c.config.NetworkName,
		Tunnel:      c.tunnel.Info(),
		Stats: peerconn.ConnStats{
			RxPackets: c.rxPackets.Load(),
			TxPackets: c.txPackets.Load(),
			RxBytes:   c.rxBytes.Load(),
			TxBytes:   c.txBytes.Load(),
			LatencyUs: c.latencyUs.Load(),
		},
		Health: c.health(),
	}
}

func (c *PeerConn) health() peerconn.HealthState {
	if c.closed.Load() {
		return peerconn.Disconnected
	}
	silent := time.Since(time.Unix(0, c.lastRecv.Load()))
	if silent > 2*c.config.HeartbeatInterval {
		return peerconn.Unhealthy
	}
	return peerconn.Healthy
}

// Send transmits payload as a single data packet
func (c *PeerConn) Send(ctx context.Context, payload []byte) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	if !c.handshakeDone.Load() {
		return ErrHandshakeNotDone
	}
	if len(payload) > c.config.MaxMessageSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(payload), c.config.MaxMessageSize)
	}

	if err := c.sendPacket(ctx, packet.NewData(payload)); err != nil {
		if errors.Is(err, tunnel.ErrTunnelClosed) {
			c.fail(err)
		}
		return fmt.Errorf("peer conn %s send: %w", c.connID, err)
	}
	return nil
}

func (c *PeerConn) sendPacket(ctx context.Context, p packet.Packet) error {
	frame := p.Encode()
	if err := c.tunnel.Send(ctx, frame); err != nil {
		return err
	}
	c.txPackets.Add(1)
	c.txBytes.Add(uint64(len(frame)))
	return nil
}

// SetCloseNotifier registers fn. If the connection already failed, fn runs now.
func (c *PeerConn) SetCloseNotifier(fn func(connID uuid.UUID)) {
	c.notifierMu.Lock()
	c.closeNotifier = fn
	failed := c.failed
	c.notifierMu.Unlock()

	if failed {
		c.notifyClosed()
	}
}

func (c *PeerConn) notifyClosed() {
	c.notifierMu.Lock()
	fn := c.closeNotifier
	c.notifierMu.Unlock()

	if fn == nil {
		return
	}
	c.notifyOnce.Do(func() {
		fn(c.connID)
	})
}

// fail closes the connection and reports it, once, to the notifier
func (c *PeerConn) fail(reason error) {
	c.notifierMu.Lock()
	first := !c.failed
	c.failed = true
	c.notifierMu.Unlock()

	if first {
		if c.closed.Load() {
			c.logger.Debug("peer conn stopped", zap.Error(reason))
		} else {
			c.logger.Warn("peer conn failed", zap.Error(reason))
		}
	}

	_ = c.Close()
	c.notifyClosed()
}

// StartRecvLoop forwards received data payloads to sink. Only the first call has effect.
func (c *PeerConn) StartRecvLoop(sink chan<- []byte) {
	if !c.recvStarted.CompareAndSwap(false, true) {
		return
	}
	go c.recvLoop(sink)
}

func (c *PeerConn) recvLoop(sink chan<- []byte) {
	for {
		frame, err := c.tunnel.Recv(c.ctx)
		if err != nil {
			c.fail(fmt.Errorf("recv: %w", err))
			return
		}
		c.lastRecv.Store(time.Now().UnixNano())

		pkt, err := packet.Decode(frame)
		if err != nil {
			c.fail(fmt.Errorf("decode: %w", err))
			return
		}
		c.rxPackets.Add(1)
		c.rxBytes.Add(uint64(len(frame)))

		switch pkt.Type {
		case packet.TypeData:
			select {
			case sink <- pkt.Payload:
			case <-c.ctx.Done():
				c.fail(ErrConnClosed)
				return
			}

		case packet.TypePing:
			if err := c.sendPacket(c.ctx, packet.NewPong(pkt)); err != nil {
				c.fail(fmt.Errorf("send pong: %w", err))
				return
			}

		case packet.TypePong:
			if sent, ok := pkt.Timestamp(); ok {
				c.latencyUs.Store(uint64(time.Since(sent).Microseconds()))
			}

		default:
			c.logger.Debug("ignoring unexpected packet", zap.Uint8("type", pkt.Type))
		}
	}
}

// StartPingPong starts the keep-alive. Only the first call has effect.
func (c *PeerConn) StartPingPong() {
	if !c.pingStarted.CompareAndSwap(false, true) {
		return
	}
	go c.pingLoop()
}

func (c *PeerConn) pingLoop() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case now := <-ticker.C:
			silent := now.Sub(time.Unix(0, c.lastRecv.Load()))
			if silent > c.config.HeartbeatTimeout {
				c.fail(fmt.Errorf("%w: silent for %s", ErrKeepAliveTimeout, silent))
				return
			}
			if err := c.sendPacket(c.ctx, packet.NewPing(now)); err != nil {
				if c.ctx.Err() != nil {
					return
				}
				c.fail(fmt.Errorf("send ping: %w", err))
				return
			}
		}
	}
}

// Close releases the tunnel and stops background work without waiting for it.
// It never invokes the close notifier itself.
func (c *PeerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		err = c.tunnel.Close()
	})
	return err
}

// Verify that PeerConn implements the Conn interface at compile time
var _ peerconn.Conn = (*PeerConn)(nil)
